// Package metrics exposes Prometheus instruments for the position engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vaultbot"

// Metrics groups every instrument the engine records.
type Metrics struct {
	admissions    *prometheus.CounterVec
	exits         *prometheus.CounterVec
	swapFailures  *prometheus.CounterVec
	priceMisses   prometheus.Counter
	skippedTicks  prometheus.Counter
	tickDuration  prometheus.Histogram
	swapLatency   *prometheus.HistogramVec
	openPositions prometheus.Gauge
	groups        prometheus.Gauge
	recovered     *prometheus.CounterVec
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by kind.",
		}, []string{"decision"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exit",
			Name:      "executed_total",
			Help:      "Executed exits by reason and kind.",
		}, []string{"reason", "kind"}),
		swapFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "swap_failures_total",
			Help:      "Failed swaps by leg.",
		}, []string{"leg"}),
		priceMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "price_unavailable_total",
			Help:      "Tokens skipped in a tick because no price was available.",
		}),
		skippedTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a monitoring tick.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		swapLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "swap_latency_seconds",
			Help:      "Swap call latency by leg.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"leg"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "open_positions",
			Help:      "Pending and active positions held in memory.",
		}),
		groups: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "groups",
			Help:      "Position groups held in memory.",
		}),
		recovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "records_total",
			Help:      "Records processed during recovery by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Admission(decision string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(decision).Inc()
}

func (m *Metrics) Exit(reason, kind string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(reason, kind).Inc()
}

func (m *Metrics) SwapFailed(leg string) {
	if m == nil {
		return
	}
	m.swapFailures.WithLabelValues(leg).Inc()
}

func (m *Metrics) SwapLatency(leg string, d time.Duration) {
	if m == nil {
		return
	}
	m.swapLatency.WithLabelValues(leg).Observe(d.Seconds())
}

func (m *Metrics) PriceUnavailable() {
	if m == nil {
		return
	}
	m.priceMisses.Inc()
}

func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.skippedTicks.Inc()
}

func (m *Metrics) TickDone(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// Book sets the registry gauges.
func (m *Metrics) Book(open, groups int) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(open))
	m.groups.Set(float64(groups))
}

func (m *Metrics) Recovered(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recovered.WithLabelValues(outcome).Add(float64(n))
}
