package maintainer

import "github.com/virtgrid/dircache/directory"

// Metrics receives maintenance-cycle observability signals. Implementations
// must be cheap and must never fail in a way that reaches the caller; a
// NoopMetrics default is used when none is configured.
type Metrics interface {
	// CycleCompleted reports the classification partition of one cycle
	// plus the resident entry count after it.
	CycleCompleted(kept, removed, refreshed, skipped, resident int)

	// CycleFailed counts a cycle aborted by an internal fault.
	CycleFailed()

	// BatchSent counts one batched validation request to an owner.
	BatchSent(owner directory.SiloAddress, size int)

	// VerdictsApplied reports how one owner's response was folded back.
	VerdictsApplied(owner directory.SiloAddress, adopted, dropped, extended int)

	// HitRatio reports the hit ratio over the last cycle.
	HitRatio(ratio float64)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) CycleCompleted(kept, removed, refreshed, skipped, resident int) {}
func (NoopMetrics) CycleFailed()                                                  {}
func (NoopMetrics) BatchSent(owner directory.SiloAddress, size int)               {}
func (NoopMetrics) VerdictsApplied(owner directory.SiloAddress, adopted, dropped, extended int) {
}
func (NoopMetrics) HitRatio(ratio float64) {}

var _ Metrics = NoopMetrics{}
