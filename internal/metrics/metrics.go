// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lpsentinel"

// Registry holds all engine metrics. A nil *Registry is a valid no-op recorder.
type Registry struct {
	registry *prometheus.Registry

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheSize   *prometheus.GaugeVec

	OperationDuration *prometheus.HistogramVec
	Operations        *prometheus.CounterVec

	TriggerFires *prometheus.CounterVec
	Executions   *prometheus.CounterVec
	ActiveAlerts prometheus.Gauge

	CycleDuration  prometheus.Histogram
	CycleFailures  prometheus.Counter
	CyclePositions prometheus.Gauge
}

// New creates a registry with every engine metric registered on a private prometheus registry
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of result cache hits by cache",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of result cache misses by cache",
			},
			[]string{"cache"},
		),
		CacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Live entries per result cache",
			},
			[]string{"cache"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of engine operations in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"operation", "result"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of engine operations by result",
			},
			[]string{"operation", "result"},
		),
		TriggerFires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_fires_total",
				Help:      "Rebalancing trigger fires by trigger type",
			},
			[]string{"type"},
		),
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebalance_executions_total",
				Help:      "Rebalancing executions by terminal state",
			},
			[]string{"state"},
		),
		ActiveAlerts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_alerts",
				Help:      "Number of currently active health alerts",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "monitor_cycle_duration_seconds",
				Help:      "Duration of monitoring cycles in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		CycleFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_position_failures_total",
				Help:      "Per-position failures skipped during monitoring cycles",
			},
		),
		CyclePositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "monitor_positions",
				Help:      "Positions evaluated in the last monitoring cycle",
			},
		),
	}

	r.registry.MustRegister(
		r.CacheHits,
		r.CacheMisses,
		r.CacheSize,
		r.OperationDuration,
		r.Operations,
		r.TriggerFires,
		r.Executions,
		r.ActiveAlerts,
		r.CycleDuration,
		r.CycleFailures,
		r.CyclePositions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler exposes the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer returns the underlying gatherer, mainly for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordCacheHit records a cache hit for the named cache
func (r *Registry) RecordCacheHit(cache string) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss for the named cache
func (r *Registry) RecordCacheMiss(cache string) {
	if r == nil {
		return
	}
	r.CacheMisses.WithLabelValues(cache).Inc()
}

// SetCacheSize records the live entry count of a cache
func (r *Registry) SetCacheSize(cache string, entries int) {
	if r == nil {
		return
	}
	r.CacheSize.WithLabelValues(cache).Set(float64(entries))
}

// OperationTimer tracks the duration of one engine operation
type OperationTimer struct {
	registry  *Registry
	operation string
	start     time.Time
}

// StartOperation begins timing an engine operation
func (r *Registry) StartOperation(operation string) *OperationTimer {
	return &OperationTimer{registry: r, operation: operation, start: time.Now()}
}

// Stop records the duration with a success/error result label
func (t *OperationTimer) Stop(err error) {
	if t == nil || t.registry == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	t.registry.OperationDuration.WithLabelValues(t.operation, result).Observe(time.Since(t.start).Seconds())
	t.registry.Operations.WithLabelValues(t.operation, result).Inc()
}

// RecordTriggerFire counts a trigger fire
func (r *Registry) RecordTriggerFire(triggerType string) {
	if r == nil {
		return
	}
	r.TriggerFires.WithLabelValues(triggerType).Inc()
}

// RecordExecution counts an execution reaching a terminal state
func (r *Registry) RecordExecution(state string) {
	if r == nil {
		return
	}
	r.Executions.WithLabelValues(state).Inc()
}

// SetActiveAlerts records the active alert count
func (r *Registry) SetActiveAlerts(n int) {
	if r == nil {
		return
	}
	r.ActiveAlerts.Set(float64(n))
}

// ObserveCycle records one monitoring cycle
func (r *Registry) ObserveCycle(duration time.Duration, positions, failures int) {
	if r == nil {
		return
	}
	r.CycleDuration.Observe(duration.Seconds())
	r.CyclePositions.Set(float64(positions))
	r.CycleFailures.Add(float64(failures))
}
