// Command dircache-sim runs the directory cache against a simulated
// multi-silo cluster with placement churn and reports hit-ratio behavior.
// Optional Prometheus metrics are served at -http.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/virtgrid/dircache/cache"
	"github.com/virtgrid/dircache/directory"
	"github.com/virtgrid/dircache/internal/util"
	"github.com/virtgrid/dircache/maintainer"
	"github.com/virtgrid/dircache/metrics/prom"
)

type placement struct {
	host       directory.SiloAddress
	activation string
	tag        directory.VersionTag
}

// cluster simulates the authoritative directory: partition ownership is
// fixed by grain hash, hosting silos churn over time. It doubles as the
// PartitionResolver and the ValidationClient.
type cluster struct {
	silos []directory.SiloAddress

	mu    sync.Mutex
	table map[directory.GrainID]placement
}

func newCluster(n int) *cluster {
	c := &cluster{table: make(map[directory.GrainID]placement)}
	for i := 0; i < n; i++ {
		c.silos = append(c.silos, directory.SiloAddress("silo-"+strconv.Itoa(i)))
	}
	return c
}

func (c *cluster) ResolveOwner(id directory.GrainID) (directory.SiloAddress, bool) {
	h := util.Fnv64a(string(id))
	return c.silos[h%uint64(len(c.silos))], true
}

func (c *cluster) LookupMany(_ context.Context, owner directory.SiloAddress, batch []directory.LookupRequest) ([]directory.Verdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	verdicts := make([]directory.Verdict, 0, len(batch))
	for _, req := range batch {
		p, ok := c.table[req.Grain]
		switch {
		case !ok:
			verdicts = append(verdicts, directory.Verdict{
				Address: directory.ActivationAddress{Grain: req.Grain},
				Tag:     directory.NotOwnedTag,
			})
		case p.tag == req.Tag:
			verdicts = append(verdicts, directory.Verdict{
				Address: directory.ActivationAddress{Grain: req.Grain},
				Tag:     p.tag,
			})
		default:
			verdicts = append(verdicts, directory.Verdict{
				Address: directory.ActivationAddress{
					Grain:      req.Grain,
					Silo:       p.host,
					Activation: p.activation,
					Complete:   true,
				},
				Tag: p.tag,
			})
		}
	}
	return verdicts, nil
}

// lookup is the foreground directory consultation on a cache miss.
func (c *cluster) lookup(id directory.GrainID) (directory.ActivationAddress, directory.VersionTag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.table[id]
	if !ok {
		p = placement{
			host:       c.silos[rand.Intn(len(c.silos))],
			activation: uuid.NewString(),
			tag:        0,
		}
		c.table[id] = p
	}
	return directory.ActivationAddress{
		Grain:      id,
		Silo:       p.host,
		Activation: p.activation,
		Complete:   true,
	}, p.tag
}

// churn migrates one random resident grain to another silo.
func (c *cluster) churn(r *rand.Rand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.table {
		c.table[id] = placement{
			host:       c.silos[r.Intn(len(c.silos))],
			activation: uuid.NewString(),
			tag:        p.tag + 1,
		}
		return
	}
}

func main() {
	var (
		silos    = flag.Int("silos", 4, "simulated cluster size")
		grains   = flag.Int("grains", 50_000, "grain keyspace size")
		capacity = flag.Int("cap", 20_000, "cache capacity (entries)")
		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "workload goroutines")
		duration = flag.Duration("duration", 10*time.Second, "simulation duration")
		interval = flag.Duration("interval", 500*time.Millisecond, "maintenance interval")
		baseTTL  = flag.Duration("ttl", time.Second, "base freshness window")
		churnOps = flag.Int("churn", 200, "placement migrations per second")
		addr     = flag.String("http", "", "serve Prometheus metrics at addr (empty = disabled)")
		verbose  = flag.Bool("v", false, "trace-level logging")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.TraceLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	var (
		cacheMetrics      cache.Metrics
		maintainerMetrics maintainer.Metrics
	)
	if *addr != "" {
		cacheMetrics = prom.NewCache(nil, "dircache", "store", nil)
		maintainerMetrics = prom.NewMaintainer(nil, "dircache", "maintainer", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info().Str("addr", *addr).Msg("serving metrics")
			logger.Err(http.ListenAndServe(*addr, nil)).Msg("metrics server stopped")
		}()
	}

	cl := newCluster(*silos)
	store := cache.New(cache.Options{
		Capacity: *capacity,
		BaseTTL:  *baseTTL,
		MaxTTL:   16 * *baseTTL,
		Metrics:  cacheMetrics,
		Logger:   &logger,
	})
	defer func() { _ = store.Close() }()

	m := maintainer.New(store, cl, cl, maintainer.Options{
		Interval:  *interval,
		LocalSilo: "silo-local",
		Metrics:   maintainerMetrics,
		Logger:    &logger,
	})
	m.Start()
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var g errgroup.Group

	// Placement churn on the authoritative side.
	g.Go(func() error {
		r := rand.New(rand.NewSource(1))
		tick := time.NewTicker(time.Second / time.Duration(max(*churnOps, 1)))
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tick.C:
				cl.churn(r)
			}
		}
	})

	// Foreground routing workload: cache lookup, directory consultation
	// on miss (the path outside this module's core).
	for w := 0; w < *workers; w++ {
		seed := int64(w) + 42
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			zipfish := rand.NewZipf(r, 1.1, 1.0, uint64(*grains-1))
			for ctx.Err() == nil {
				id := directory.GrainID("grain/" + strconv.FormatUint(zipfish.Uint64(), 10))
				if _, ok := store.Get(id); ok {
					continue
				}
				a, tag := cl.lookup(id)
				store.AddOrUpdate(a, tag)
			}
			return nil
		})
	}

	_ = g.Wait()

	accesses, hits := store.Stats()
	ratio := 0.0
	if accesses > 0 {
		ratio = float64(hits) / float64(accesses)
	}
	fmt.Printf("accesses=%d hits=%d hit_ratio=%.3f resident=%d\n", accesses, hits, ratio, store.Len())
}
