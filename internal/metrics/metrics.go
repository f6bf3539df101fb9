// Package metrics exposes refresh loop health to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"cryptowatch/internal/refresh"
	"cryptowatch/internal/snapshot"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptowatch"

// Metrics holds the collectors for all refresh loops.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	fetchResults  *prometheus.CounterVec
	staleItems    *prometheus.GaugeVec
	lastCycle     *prometheus.GaugeVec
	effectiveRate *prometheus.GaugeVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Published refresh cycles.",
		}, []string{"loop"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent fetching and merging one cycle.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 1.5, 3, 5, 10, 30},
		}, []string{"loop"}),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Fetch outcomes per loop.",
		}, []string{"loop", "outcome"}),
		staleItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_items",
			Help:      "Items whose latest fetch failed.",
		}, []string{"loop"}),
		lastCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle",
			Help:      "Cycle number of the latest published snapshot.",
		}, []string{"loop"}),
		effectiveRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effective_rate_hz",
			Help:      "Smoothed cycles per second.",
		}, []string{"loop"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.fetchResults,
		m.staleItems,
		m.lastCycle,
		m.effectiveRate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// CycleStats summarises one published cycle.
type CycleStats struct {
	Cycle         uint64
	DurationSec   float64
	EffectiveRate float64
	Succeeded     int
	Failed        int
}

// RecordCycle updates the collectors for one loop.
func (m *Metrics) RecordCycle(loop string, s CycleStats) {
	m.cycles.WithLabelValues(loop).Inc()
	m.cycleDuration.WithLabelValues(loop).Observe(s.DurationSec)
	m.fetchResults.WithLabelValues(loop, "success").Add(float64(s.Succeeded))
	m.fetchResults.WithLabelValues(loop, "failure").Add(float64(s.Failed))
	m.staleItems.WithLabelValues(loop).Set(float64(s.Failed))
	m.lastCycle.WithLabelValues(loop).Set(float64(s.Cycle))
	m.effectiveRate.WithLabelValues(loop).Set(s.EffectiveRate)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observer returns a refresh observer recording every published snapshot
// under the given loop name.
func Observer[V any](m *Metrics, loop string) refresh.Observer[V] {
	return refresh.ObserverFunc[V](func(_ context.Context, s *snapshot.Snapshot[V]) {
		failed := s.Failed()
		m.RecordCycle(loop, CycleStats{
			Cycle:         s.Cycle,
			DurationSec:   s.CycleDuration.Seconds(),
			EffectiveRate: s.EffectiveRate,
			Succeeded:     len(s.Records) - failed,
			Failed:        failed,
		})
	})
}
