// Package cache implements the local directory cache of a grain placement
// service: a sharded, concurrent map from grain identity to the activation
// address that is believed to host it, with an adaptively sized freshness
// window per entry.
//
// Design
//
//   - Concurrency: the store is split into shards, each protected by an
//     RWMutex. The default shard count is chosen by a heuristic
//     (ReasonableShardCount) and is a power of two.
//
//   - Entries: an entry's address and version tag are immutable once
//     stored; AddOrUpdate always installs a fresh entry, so readers that
//     hold an *Entry never observe a torn address. Mutable per-entry state
//     (access counter, expiry, freshness interval) lives in atomics.
//
//   - Freshness: every entry carries an absolute expiry deadline. Expiry
//     means "due for revalidation", not "unusable": Get still returns
//     expired entries, and only the background maintainer (or the capacity
//     bound) removes them. MarkFresh doubles the entry's freshness window
//     up to MaxTTL, so entries that keep validating clean are revalidated
//     less and less often.
//
//   - Capacity: an optional per-shard entry cap. Inserting over the cap
//     drops an arbitrary resident entry. Consumers must treat a vanished
//     entry as "not currently known", never as an error.
//
//   - Statistics: global access/hit counters are relaxed padded atomics.
//     Counts are approximate on purpose; the read path is never blocked
//     for counter exactness.
//
// The store never talks to the network. Reconciliation against owning
// silos is the maintainer package's job.
package cache
