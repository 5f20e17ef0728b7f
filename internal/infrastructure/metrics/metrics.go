// Package metrics exposes engine counters and histograms through Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beanwise/learning-engine/pkg/circuitbreaker"
)

const namespace = "learning_engine"

// Collector implements saga.CompletionMetrics and messaging.HandlerObserver,
// and tracks circuit breaker states.
type Collector struct {
	registry *prometheus.Registry

	completions   *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
	xpAwarded     prometheus.Counter
	heartsLost    prometheus.Counter
	eventHandlers *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
}

// New creates a Collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		completions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lesson_completion_duration_seconds",
			Help:      "Duration of lesson completion runs by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"outcome"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lesson_completion_step_failures_total",
			Help:      "Failed completion steps.",
		}, []string{"step"}),
		xpAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "XP awarded by persisted completions.",
		}),
		heartsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hearts_lost_total",
			Help:      "Hearts spent on wrong answers.",
		}),
		eventHandlers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Event handler executions by event type and result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type", "result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
	}

	c.registry.MustRegister(
		c.completions,
		c.stepFailures,
		c.xpAwarded,
		c.heartsLost,
		c.eventHandlers,
		c.breakerState,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCompletion records a finished completion run.
func (c *Collector) ObserveCompletion(outcome string, d time.Duration) {
	c.completions.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncStepFailure counts a failed completion step.
func (c *Collector) IncStepFailure(step string) {
	c.stepFailures.WithLabelValues(step).Inc()
}

// AddXPAwarded adds persisted XP.
func (c *Collector) AddXPAwarded(n int) {
	if n > 0 {
		c.xpAwarded.Add(float64(n))
	}
}

// IncHeartLost counts a heart spent.
func (c *Collector) IncHeartLost() {
	c.heartsLost.Inc()
}

// ObserveEventHandler records one event handler execution.
func (c *Collector) ObserveEventHandler(eventType string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.eventHandlers.WithLabelValues(eventType, result).Observe(d.Seconds())
}

// OnBreakerStateChange is passed to circuitbreaker constructors.
func (c *Collector) OnBreakerStateChange(name string, _, to circuitbreaker.State) {
	c.breakerState.WithLabelValues(name).Set(breakerValue(to))
}

func breakerValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
