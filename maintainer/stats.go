package maintainer

// statTracker remembers the cumulative access/hit counters observed at
// the end of the previous cycle, so each cycle reports deltas instead of
// lifetime totals. Owned by the loop goroutine; no locking needed.
type statTracker struct {
	accesses uint64
	hits     uint64
}

// advance consumes the latest cumulative counters, returns the deltas and
// the hit ratio for the elapsed cycle (0 when there were no accesses),
// and moves the baselines forward.
func (t *statTracker) advance(accesses, hits uint64) (dAccesses, dHits uint64, ratio float64) {
	dAccesses = accesses - t.accesses
	dHits = hits - t.hits
	t.accesses = accesses
	t.hits = hits
	if dAccesses > 0 {
		ratio = float64(dHits) / float64(dAccesses)
	}
	return dAccesses, dHits, ratio
}

func (m *Maintainer) reportHitRatio() {
	accesses, hits := m.store.Stats()
	dAccesses, dHits, ratio := m.stats.advance(accesses, hits)
	m.metrics.HitRatio(ratio)
	m.log.Debug().
		Uint64("accesses", dAccesses).
		Uint64("hits", dHits).
		Float64("ratio", ratio).
		Msg("cache hit ratio since last cycle")
}
