// Package prom exports the cache and maintainer metrics interfaces as
// Prometheus collectors.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/virtgrid/dircache/cache"
	"github.com/virtgrid/dircache/directory"
	"github.com/virtgrid/dircache/maintainer"
)

// CacheAdapter implements cache.Metrics and exports Prometheus counters.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type CacheAdapter struct {
	hits           prometheus.Counter
	misses         prometheus.Counter
	pressureEvicts prometheus.Counter
}

// NewCache constructs a Prometheus adapter for the store.
//   - reg:         registry to register with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func NewCache(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *CacheAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &CacheAdapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Directory cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Directory cache misses",
			ConstLabels: constLabels,
		}),
		pressureEvicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "pressure_evictions_total",
			Help:        "Entries dropped to satisfy the capacity bound",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.pressureEvicts)
	return a
}

func (a *CacheAdapter) Hit()           { a.hits.Inc() }
func (a *CacheAdapter) Miss()          { a.misses.Inc() }
func (a *CacheAdapter) PressureEvict() { a.pressureEvicts.Inc() }

var _ cache.Metrics = (*CacheAdapter)(nil)

// MaintainerAdapter implements maintainer.Metrics and exports per-cycle
// maintenance counters.
type MaintainerAdapter struct {
	cycles        prometheus.Counter
	cycleFailures prometheus.Counter
	classified    *prometheus.CounterVec // outcome: kept|removed|refreshed|skipped
	resident      prometheus.Gauge
	batches       *prometheus.CounterVec // by owning silo
	batchEntries  *prometheus.CounterVec
	verdicts      *prometheus.CounterVec // by owning silo and verdict kind
	hitRatio      prometheus.Gauge
}

// NewMaintainer constructs a Prometheus adapter for the maintainer.
// Arguments follow NewCache.
func NewMaintainer(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *MaintainerAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &MaintainerAdapter{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cycles_total",
			Help:        "Completed maintenance cycles",
			ConstLabels: constLabels,
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "cycle_failures_total",
			Help:        "Maintenance cycles aborted by an internal fault",
			ConstLabels: constLabels,
		}),
		classified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "entries_classified_total",
				Help:        "Scanned entries by classification outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "resident_entries",
			Help:        "Resident cache entries after the last cycle",
			ConstLabels: constLabels,
		}),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "validations_sent_total",
				Help:        "Batched validation requests sent, by owning silo",
				ConstLabels: constLabels,
			},
			[]string{"silo"},
		),
		batchEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "validation_entries_total",
				Help:        "Entries sent for validation, by owning silo",
				ConstLabels: constLabels,
			},
			[]string{"silo"},
		),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "verdicts_applied_total",
				Help:        "Verdicts folded back into the cache, by owning silo and kind",
				ConstLabels: constLabels,
			},
			[]string{"silo", "verdict"},
		),
		hitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hit_ratio",
			Help:        "Cache hit ratio over the last maintenance cycle",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(
		a.cycles, a.cycleFailures, a.classified, a.resident,
		a.batches, a.batchEntries, a.verdicts, a.hitRatio,
	)
	return a
}

func (a *MaintainerAdapter) CycleCompleted(kept, removed, refreshed, skipped, resident int) {
	a.cycles.Inc()
	a.classified.WithLabelValues("kept").Add(float64(kept))
	a.classified.WithLabelValues("removed").Add(float64(removed))
	a.classified.WithLabelValues("refreshed").Add(float64(refreshed))
	a.classified.WithLabelValues("skipped").Add(float64(skipped))
	a.resident.Set(float64(resident))
}

func (a *MaintainerAdapter) CycleFailed() { a.cycleFailures.Inc() }

func (a *MaintainerAdapter) BatchSent(owner directory.SiloAddress, size int) {
	a.batches.WithLabelValues(string(owner)).Inc()
	a.batchEntries.WithLabelValues(string(owner)).Add(float64(size))
}

func (a *MaintainerAdapter) VerdictsApplied(owner directory.SiloAddress, adopted, dropped, extended int) {
	s := string(owner)
	a.verdicts.WithLabelValues(s, "adopted").Add(float64(adopted))
	a.verdicts.WithLabelValues(s, "dropped").Add(float64(dropped))
	a.verdicts.WithLabelValues(s, "extended").Add(float64(extended))
}

func (a *MaintainerAdapter) HitRatio(ratio float64) { a.hitRatio.Set(ratio) }

var _ maintainer.Metrics = (*MaintainerAdapter)(nil)
