package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/af-corp/helmsman/internal/types"
)

// Metrics holds all Prometheus metrics for the routing engine.
type Metrics struct {
	DecisionTotal      *prometheus.CounterVec
	RoutingErrorTotal  *prometheus.CounterVec
	ScoringDurationMs  *prometheus.HistogramVec
	EstimatedCostUSD   *prometheus.CounterVec
	FeedbackTotal      *prometheus.CounterVec
	ModelLatencyEWMAMs *prometheus.GaugeVec
	RegistryModels     prometheus.Gauge
	RegistryRefresh    *prometheus.CounterVec
	RateLimitHit       *prometheus.CounterVec
	EmitterDropped     prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry.
func NewMetrics() *Metrics {
	return newMetricsWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsFor registers on a caller-supplied registry, used by tests to
// avoid duplicate registration.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	return newMetricsWith(promauto.With(reg))
}

func newMetricsWith(factory promauto.Factory) *Metrics {
	return &Metrics{
		DecisionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_decision_total",
			Help: "Routing decisions produced, by query class, primary model, and cache outcome.",
		}, []string{"class", "primary", "cache"}),

		RoutingErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_routing_error_total",
			Help: "Routing failures by error kind.",
		}, []string{"kind"}),

		ScoringDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helmsman_scoring_duration_ms",
			Help:    "Wall time of a full route() call in milliseconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"class"}),

		EstimatedCostUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_estimated_cost_usd_total",
			Help: "Sum of estimated decision costs in USD, by primary model.",
		}, []string{"model"}),

		FeedbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_feedback_total",
			Help: "Feedback records ingested, by model and outcome.",
		}, []string{"model", "outcome"}),

		ModelLatencyEWMAMs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "helmsman_model_latency_ewma_ms",
			Help: "Current smoothed latency per model in milliseconds.",
		}, []string{"model"}),

		RegistryModels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "helmsman_registry_models",
			Help: "Model count in the current registry snapshot.",
		}),

		RegistryRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_registry_refresh_total",
			Help: "Registry refresh attempts by status.",
		}, []string{"status"}),

		RateLimitHit: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helmsman_ratelimit_hit_total",
			Help: "Requests rejected by rate limiting, by dimension and subject.",
		}, []string{"dimension", "subject"}),

		EmitterDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "helmsman_emitter_dropped_total",
			Help: "Telemetry events dropped because the emitter buffer was full.",
		}),
	}
}

// RecordDecision records metrics for one completed route() call.
func (m *Metrics) RecordDecision(d *types.RoutingDecision, durationMs float64) {
	cache := "miss"
	if d.CacheHit {
		cache = "hit"
	}
	m.DecisionTotal.WithLabelValues(string(d.QueryClass), d.PrimaryModel, cache).Inc()
	m.ScoringDurationMs.WithLabelValues(string(d.QueryClass)).Observe(durationMs)
	if d.EstimatedCostUSD > 0 {
		m.EstimatedCostUSD.WithLabelValues(d.PrimaryModel).Add(d.EstimatedCostUSD)
	}
}

// RecordRoutingError records a failed route() call.
func (m *Metrics) RecordRoutingError(kind string) {
	m.RoutingErrorTotal.WithLabelValues(kind).Inc()
}

// RecordFeedback records an ingested feedback event and the model's updated
// smoothed latency.
func (m *Metrics) RecordFeedback(rec types.FeedbackRecord, latencyEWMAMs float64) {
	outcome := "failure"
	if rec.Success {
		outcome = "success"
	}
	m.FeedbackTotal.WithLabelValues(rec.ModelID, outcome).Inc()
	m.ModelLatencyEWMAMs.WithLabelValues(rec.ModelID).Set(latencyEWMAMs)
}

// RecordRateLimitHit records a request rejected by rate limiting.
func (m *Metrics) RecordRateLimitHit(dimension, subject string) {
	m.RateLimitHit.WithLabelValues(dimension, subject).Inc()
}

// RecordRegistryRefresh records the outcome of a refresh attempt.
func (m *Metrics) RecordRegistryRefresh(ok bool, modelCount int) {
	status := "error"
	if ok {
		status = "ok"
		m.RegistryModels.Set(float64(modelCount))
	}
	m.RegistryRefresh.WithLabelValues(status).Inc()
}
