package cache

import (
	"iter"

	"github.com/virtgrid/dircache/directory"
)

// Cache is the directory cache store. All methods are safe for
// unsynchronized concurrent use by many foreground callers plus the
// single background maintainer.
type Cache interface {
	// Get returns the cached entry for id, if any. Every call counts one
	// access; a found entry additionally counts one hit and bumps the
	// entry's per-cycle access counter. Expired entries are still
	// returned: expiry means "due for revalidation", and removal is the
	// maintainer's call, not the read path's.
	Get(id directory.GrainID) (*Entry, bool)

	// Peek returns the entry without touching any counter. Used by the
	// maintainer to re-read tags at dispatch time.
	Peek(id directory.GrainID) (*Entry, bool)

	// AddOrUpdate installs a fresh entry for addr's grain with the base
	// freshness window. This is the only operation that changes a stored
	// address, and the stored tag is always one received from an owner.
	AddOrUpdate(addr directory.ActivationAddress, tag directory.VersionTag)

	// Remove deletes the entry for id; no-op if absent.
	Remove(id directory.GrainID)

	// MarkFresh extends the entry's freshness window (doubling, capped at
	// MaxTTL) without altering address or tag; no-op if absent.
	MarkFresh(id directory.GrainID)

	// Snapshot returns a lazy scan over the store. Keys are captured per
	// shard as the scan reaches it; entries are re-fetched at visit time,
	// so a yielded entry may be nil if it vanished mid-scan. Consumers
	// treat nil as "already gone", not as an error.
	Snapshot() iter.Seq2[directory.GrainID, *Entry]

	// Stats returns the cumulative access and hit counters. Relaxed
	// atomics: approximate by design.
	Stats() (accesses, hits uint64)

	// Len returns the number of resident entries.
	Len() int

	// Close marks the store closed; subsequent operations are no-ops.
	Close() error
}
