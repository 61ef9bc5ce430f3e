package cache

import (
	"time"

	"github.com/rs/zerolog"
)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Metrics exposes store-level observability hooks. A NoopMetrics
// implementation is provided and used by default; failures or slowness in
// an implementation must not affect callers, so keep these cheap.
type Metrics interface {
	Hit()
	Miss()
	// PressureEvict records an entry dropped to satisfy the capacity
	// bound (as opposed to maintainer-driven removal, which the
	// maintainer accounts for itself).
	PressureEvict()
}

// Options configures the store. Zero values are safe; defaults are
// applied in New:
//   - Capacity <= 0 -> unbounded
//   - Shards   <= 0 -> auto (power of two from CPU count)
//   - BaseTTL  <= 0 -> 2m
//   - MaxTTL   <= 0 -> 32m
//   - nil Metrics   -> NoopMetrics
//   - nil Clock     -> wall clock
//   - nil Logger    -> zerolog.Nop()
type Options struct {
	// Capacity bounds the resident entry count (split evenly across
	// shards). When a shard is full, inserts drop an arbitrary resident
	// entry; the rest of the system tolerates entries vanishing at any
	// time, so the victim choice is deliberately unsophisticated.
	Capacity int

	// Shards sets the shard count, rounded up to a power of two.
	Shards int

	// BaseTTL is the freshness window given to newly stored entries.
	BaseTTL time.Duration

	// MaxTTL caps the adaptive window growth applied by MarkFresh.
	MaxTTL time.Duration

	Metrics Metrics
	Clock   Clock
	Logger  *zerolog.Logger
}

const (
	defaultBaseTTL = 2 * time.Minute
	defaultMaxTTL  = 32 * time.Minute
)
