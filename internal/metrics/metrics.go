// Package metrics holds the Prometheus collectors for the query cache, the
// document store write path and reconciliation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ballotdesk"

// Metrics groups every collector. Components take a *Metrics and tolerate nil.
type Metrics struct {
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	CacheEntries       prometheus.Gauge

	StoreWriteFailures *prometheus.CounterVec

	ReconcilePasses   *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	DriftCorrections  *prometheus.CounterVec
	DegradedLoads     prometheus.Counter
	UnsyncedFlushed   prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cacheable finds served from the query cache",
		}, []string{"collection"}),

		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cacheable finds that went to the store",
		}, []string{"collection"}),

		CacheInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Collection-wide cache invalidations caused by writes",
		}, []string{"collection"}),

		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held by the query cache",
		}),

		StoreWriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "store_write_failures_total",
			Help:      "Store writes that failed and were left to the next reconciliation pass",
		}, []string{"operation"}),

		ReconcilePasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Reconciliation passes by trigger",
		}, []string{"trigger"}),

		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "duration_seconds",
			Help:      "Time to load and reconcile one course",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		DriftCorrections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "drift_corrections_total",
			Help:      "Optimistic cache records overwritten with store-derived truth",
		}, []string{"kind"}),

		DegradedLoads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "degraded_loads_total",
			Help:      "Course loads served from the optimistic cache because the store was unavailable",
		}),

		UnsyncedFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "unsynced_flushed_total",
			Help:      "Optimistic mutations written to the store on a later pass",
		}),
	}
}

// Snapshot flattens gathered counters and gauges for CLI summaries, keyed by
// metric name plus label values ("ballotdesk_cache_hits_total{collection=students}").
// Histograms report their sample count under "<name>_count".
func Snapshot(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				key += "{"
				for i, lp := range labels {
					if i > 0 {
						key += ","
					}
					key += lp.GetName() + "=" + lp.GetValue()
				}
				key += "}"
			}

			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
