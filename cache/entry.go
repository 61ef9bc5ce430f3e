package cache

import (
	"sync/atomic"
	"time"

	"github.com/virtgrid/dircache/directory"
)

// Entry is a cached placement for a single grain. Address and Tag are
// immutable after construction; AddOrUpdate replaces the whole entry
// rather than mutating one in place. The remaining fields are atomics and
// may be touched concurrently by foreground readers and the maintainer.
type Entry struct {
	Address directory.ActivationAddress
	Tag     directory.VersionTag

	// Accesses since the last maintenance cycle. Best-effort: a reset
	// racing a foreground increment may lose that increment.
	accesses atomic.Int32

	expiresAt atomic.Int64 // unixnano deadline
	interval  atomic.Int64 // current freshness window, ns
}

func newEntry(addr directory.ActivationAddress, tag directory.VersionTag, now int64, base time.Duration) *Entry {
	e := &Entry{Address: addr, Tag: tag}
	e.interval.Store(int64(base))
	e.expiresAt.Store(now + int64(base))
	return e
}

// Expired reports whether the entry is due for revalidation at the given
// unixnano instant.
func (e *Entry) Expired(now int64) bool {
	return now >= e.expiresAt.Load()
}

// Accesses returns the approximate access count since the last
// maintenance cycle.
func (e *Entry) Accesses() int {
	return int(e.accesses.Load())
}

// ResetAccesses zeroes the per-cycle access counter. Called by the
// maintainer exactly once per cycle for entries it batches for refresh.
func (e *Entry) ResetAccesses() {
	e.accesses.Store(0)
}

func (e *Entry) touch() {
	e.accesses.Add(1)
}

// extend doubles the freshness window (capped at max) and pushes the
// expiry deadline out by the new window. Address and tag are untouched.
func (e *Entry) extend(now int64, max time.Duration) {
	iv := e.interval.Load() * 2
	if iv > int64(max) {
		iv = int64(max)
	}
	e.interval.Store(iv)
	e.expiresAt.Store(now + iv)
}
