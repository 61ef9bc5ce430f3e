package maintainer

import (
	"context"

	"github.com/virtgrid/dircache/directory"
)

// refreshBatch groups refresh candidates by owning silo, preserving scan
// order within each owner. Rebuilt from scratch every cycle.
type refreshBatch map[directory.SiloAddress][]directory.LookupRequest

// runCycle performs one scan -> classify -> dispatch -> report pass.
// Panics are contained here: a failed cycle never takes the loop down.
func (m *Maintainer) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.CycleFailed()
			m.log.Error().Interface("panic", r).Msg("maintenance cycle failed; retrying next interval")
		}
	}()

	now := m.now()
	batch := make(refreshBatch)
	var kept, removed, refreshed, skipped int

	for id, e := range m.store.Snapshot() {
		owner, ok := m.resolver.ResolveOwner(id)
		if !ok {
			// No resolvable owner: leave the entry alone this cycle,
			// whatever its expiry state.
			skipped++
			continue
		}
		switch {
		case e == nil:
			// Vanished mid-scan. Make sure it is gone and move on.
			m.store.Remove(id)
			removed++
		case !e.Expired(now):
			kept++
		case e.Accesses() == 0:
			// Expired and cold: not worth a remote round-trip.
			m.store.Remove(id)
			removed++
		default:
			batch[owner] = append(batch[owner], directory.LookupRequest{Grain: id, Tag: e.Tag})
			// Reset at classification, not at dispatch: the next cycle
			// must not count this cycle's accesses again, even if the
			// RPC never happens.
			e.ResetAccesses()
			refreshed++
		}
	}

	m.dispatch(ctx, batch)

	resident := m.store.Len()
	m.metrics.CycleCompleted(kept, removed, refreshed, skipped, resident)
	m.log.Trace().
		Int("kept", kept).
		Int("removed", removed).
		Int("refreshed", refreshed).
		Int("skipped", skipped).
		Int("resident", resident).
		Msg("scan classified")

	m.reportHitRatio()
}

// dispatch sends one batched validation request per owner, each on its
// own goroutine. The scan loop never waits on them: a slow or failing
// owner delays only its own verdicts.
func (m *Maintainer) dispatch(ctx context.Context, batch refreshBatch) {
	for owner, reqs := range batch {
		out := make([]directory.LookupRequest, 0, len(reqs))
		for _, r := range reqs {
			e, ok := m.store.Peek(r.Grain)
			if !ok {
				// Classified for refresh but gone before dispatch. An
				// accepted data-loss window, not a fault.
				m.log.Warn().Str("grain", string(r.Grain)).Msg("entry vanished before dispatch")
				continue
			}
			// The tag may have moved since classification; send the
			// latest one.
			r.Tag = e.Tag
			out = append(out, r)
		}
		if len(out) == 0 {
			continue
		}
		m.metrics.BatchSent(owner, len(out))
		m.log.Trace().Str("owner", string(owner)).Int("entries", len(out)).Msg("validation batch sent")
		go m.validate(ctx, owner, out)
	}
}

// validate performs one owner's batched lookup and applies the verdicts.
// Runs detached from the scan loop; failures are logged locally and never
// propagated.
func (m *Maintainer) validate(ctx context.Context, owner directory.SiloAddress, reqs []directory.LookupRequest) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("owner", string(owner)).Msg("verdict processing failed")
		}
	}()

	verdicts, err := m.client.LookupMany(ctx, owner, reqs)
	if err != nil {
		// No verdicts from this owner this cycle. Affected entries stay
		// expired and will be reclassified next cycle.
		m.log.Error().Err(err).Str("owner", string(owner)).Int("entries", len(reqs)).Msg("batched validation failed")
		return
	}

	var adopted, dropped, extended int
	for _, v := range verdicts {
		id := v.Address.Grain
		switch {
		case v.Authoritative():
			m.store.AddOrUpdate(v.Address, v.Tag)
			adopted++
		case v.NotOwned():
			m.store.Remove(id)
			dropped++
		case v.Unchanged():
			m.store.MarkFresh(id)
			extended++
		default:
			m.log.Trace().Str("grain", string(id)).Int64("tag", int64(v.Tag)).Msg("unrecognized verdict ignored")
		}
	}
	// Grains present in the batch but absent from the response are left
	// untouched on purpose.
	m.metrics.VerdictsApplied(owner, adopted, dropped, extended)
	m.log.Trace().
		Str("owner", string(owner)).
		Int("adopted", adopted).
		Int("dropped", dropped).
		Int("extended", extended).
		Msg("validation response applied")
}
