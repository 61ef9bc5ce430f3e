// Package maintainer runs the background consistency maintenance of the
// directory cache: it periodically scans the store, evicts cold expired
// entries, batches hot expired entries per owning silo, validates each
// batch against its owner, and folds the verdicts back into the store.
//
// The cache stays best-effort throughout. A failed cycle is logged and
// skipped, never retried mid-cycle; entries that stay inconsistent are
// simply reconsidered on the next tick.
package maintainer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtgrid/dircache/cache"
	"github.com/virtgrid/dircache/directory"
)

const defaultInterval = time.Minute

// Options configures a Maintainer. Zero values are safe:
//   - Interval <= 0 -> 1m
//   - nil Metrics   -> NoopMetrics
//   - nil Clock     -> wall clock
//   - nil Logger    -> zerolog.Nop()
type Options struct {
	// Interval between maintenance cycles.
	Interval time.Duration

	// LocalSilo is used only for log attribution, never for protocol
	// decisions.
	LocalSilo directory.SiloAddress

	Metrics Metrics
	Clock   cache.Clock
	Logger  *zerolog.Logger
}

// Maintainer is the per-node background worker. Construct one per node
// with New, wire it with Start, and tear it down with Stop. All
// collaborators are injected; nothing is looked up ambiently.
type Maintainer struct {
	store    cache.Cache
	resolver directory.PartitionResolver
	client   directory.ValidationClient

	interval time.Duration
	metrics  Metrics
	clock    cache.Clock
	log      zerolog.Logger

	stats statTracker

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Maintainer over the given store and collaborators.
func New(store cache.Cache, resolver directory.PartitionResolver, client directory.ValidationClient, opt Options) *Maintainer {
	m := &Maintainer{
		store:    store,
		resolver: resolver,
		client:   client,
		interval: opt.Interval,
		metrics:  opt.Metrics,
		clock:    opt.Clock,
		done:     make(chan struct{}),
	}
	if m.interval <= 0 {
		m.interval = defaultInterval
	}
	if m.metrics == nil {
		m.metrics = NoopMetrics{}
	}
	logger := zerolog.Nop()
	if opt.Logger != nil {
		logger = *opt.Logger
	}
	m.log = logger.With().
		Str("component", "dircache-maintainer").
		Str("silo", string(opt.LocalSilo)).
		Logger()
	return m
}

// Start launches the maintenance loop. Calling Start twice is a no-op.
func (m *Maintainer) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
}

// Stop cancels the loop and waits for it to exit. Only the loop itself is
// drained: verdict processing already in flight keeps running on its own
// goroutines and may never be applied. Stop before Start, or a second
// Stop, is a no-op.
func (m *Maintainer) Stop() {
	if !m.started.Load() || !m.stopped.CompareAndSwap(false, true) {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Maintainer) run(ctx context.Context) {
	defer close(m.done)
	m.log.Info().Dur("interval", m.interval).Msg("directory cache maintenance started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("directory cache maintenance stopped")
			return
		case <-ticker.C:
		}
		m.runCycle(ctx)
	}
}

func (m *Maintainer) now() int64 {
	if m.clock != nil {
		return m.clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
