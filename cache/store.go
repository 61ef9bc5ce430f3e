package cache

import (
	"iter"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/virtgrid/dircache/directory"
	"github.com/virtgrid/dircache/internal/util"
)

// store is the sharded Cache implementation.
type store struct {
	shards []*shard
	closed atomic.Bool

	baseTTL time.Duration
	maxTTL  time.Duration
	metrics Metrics
	clock   Clock
	log     zerolog.Logger

	// Global counters on their own cache lines: every foreground lookup
	// hits these.
	_        util.CacheLinePad
	accesses util.PaddedAtomicUint64
	hits     util.PaddedAtomicUint64
}

// New constructs a directory cache store with the provided Options.
func New(opt Options) Cache {
	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	perShardCap := 0
	if opt.Capacity > 0 {
		perShardCap = (opt.Capacity + sh - 1) / sh
	}

	c := &store{
		shards:  make([]*shard, sh),
		baseTTL: opt.BaseTTL,
		maxTTL:  opt.MaxTTL,
		metrics: opt.Metrics,
		clock:   opt.Clock,
	}
	if c.baseTTL <= 0 {
		c.baseTTL = defaultBaseTTL
	}
	if c.maxTTL <= 0 {
		c.maxTTL = defaultMaxTTL
	}
	if c.metrics == nil {
		c.metrics = NoopMetrics{}
	}
	if opt.Logger != nil {
		c.log = *opt.Logger
	} else {
		c.log = zerolog.Nop()
	}
	for i := range c.shards {
		c.shards[i] = newShard(perShardCap)
	}
	return c
}

func (c *store) Get(id directory.GrainID) (*Entry, bool) {
	if c.closed.Load() {
		return nil, false
	}
	c.accesses.Add(1)
	e := c.shardFor(id).get(id)
	if e == nil {
		c.metrics.Miss()
		return nil, false
	}
	c.hits.Add(1)
	e.touch()
	c.metrics.Hit()
	return e, true
}

func (c *store) Peek(id directory.GrainID) (*Entry, bool) {
	if c.closed.Load() {
		return nil, false
	}
	e := c.shardFor(id).get(id)
	return e, e != nil
}

func (c *store) AddOrUpdate(addr directory.ActivationAddress, tag directory.VersionTag) {
	if c.closed.Load() {
		return
	}
	e := newEntry(addr, tag, c.now(), c.baseTTL)
	if pressured := c.shardFor(addr.Grain).set(addr.Grain, e); pressured {
		c.metrics.PressureEvict()
		c.log.Debug().Str("grain", string(addr.Grain)).Msg("dropped an entry under capacity pressure")
	}
}

func (c *store) Remove(id directory.GrainID) {
	if c.closed.Load() {
		return
	}
	c.shardFor(id).remove(id)
}

func (c *store) MarkFresh(id directory.GrainID) {
	if c.closed.Load() {
		return
	}
	c.shardFor(id).markFresh(id, c.now(), c.maxTTL)
}

func (c *store) Snapshot() iter.Seq2[directory.GrainID, *Entry] {
	return func(yield func(directory.GrainID, *Entry) bool) {
		for _, sh := range c.shards {
			for _, id := range sh.keys() {
				if !yield(id, sh.get(id)) {
					return
				}
			}
		}
	}
}

func (c *store) Stats() (accesses, hits uint64) {
	return c.accesses.Load(), c.hits.Load()
}

func (c *store) Len() int {
	n := 0
	for _, sh := range c.shards {
		n += sh.len()
	}
	return n
}

func (c *store) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *store) shardFor(id directory.GrainID) *shard {
	h := util.Fnv64a(string(id))
	return c.shards[util.ShardIndex(h, len(c.shards))]
}

func (c *store) now() int64 {
	if c.clock != nil {
		return c.clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
