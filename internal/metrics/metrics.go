// Package metrics exposes Prometheus collectors for ingestion and rebalance
// runs on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hrp"

type Metrics struct {
	registry *prometheus.Registry

	IngestRuns       *prometheus.CounterVec
	RowsInserted     prometheus.Counter
	RebalanceRuns    *prometheus.CounterVec
	LastAllocation   prometheus.Gauge
	AllocationWeight *prometheus.GaugeVec
	RunDuration      prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_rows_inserted_total",
			Help:      "Price rows newly written to the store.",
		}),
		RebalanceRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalance_runs_total",
			Help:      "Rebalance runs by status.",
		}, []string{"status"}),
		LastAllocation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_allocation_timestamp_seconds",
			Help:      "Unix time of the most recent allocation date.",
		}),
		AllocationWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allocation_weight",
			Help:      "Weight of each ticker in the latest allocation.",
		}, []string{"ticker"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Wall time of a full ingest and rebalance cycle.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
	reg.MustRegister(
		m.IngestRuns, m.RowsInserted, m.RebalanceRuns,
		m.LastAllocation, m.AllocationWeight, m.RunDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveIngest records one ingestion outcome ("ok", "feed_failure", ...).
func (m *Metrics) ObserveIngest(outcome string, inserted int) {
	if m == nil {
		return
	}
	m.IngestRuns.WithLabelValues(outcome).Inc()
	m.RowsInserted.Add(float64(inserted))
}

func (m *Metrics) ObserveRebalance(status string) {
	if m == nil {
		return
	}
	m.RebalanceRuns.WithLabelValues(status).Inc()
}

// SetAllocation replaces the exported weights with the given allocation.
func (m *Metrics) SetAllocation(day time.Time, weights map[string]float64) {
	if m == nil {
		return
	}
	m.LastAllocation.Set(float64(day.Unix()))
	m.AllocationWeight.Reset()
	for t, w := range weights {
		m.AllocationWeight.WithLabelValues(t).Set(w)
	}
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
