package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/af-corp/helmsman/internal/types"
)

func TestNewMetricsFor(t *testing.T) {
	m := NewMetricsFor(prometheus.NewRegistry())

	if m.DecisionTotal == nil {
		t.Error("DecisionTotal should not be nil")
	}
	if m.RoutingErrorTotal == nil {
		t.Error("RoutingErrorTotal should not be nil")
	}
	if m.ScoringDurationMs == nil {
		t.Error("ScoringDurationMs should not be nil")
	}
	if m.EstimatedCostUSD == nil {
		t.Error("EstimatedCostUSD should not be nil")
	}
	if m.FeedbackTotal == nil {
		t.Error("FeedbackTotal should not be nil")
	}
	if m.ModelLatencyEWMAMs == nil {
		t.Error("ModelLatencyEWMAMs should not be nil")
	}
	if m.RegistryModels == nil {
		t.Error("RegistryModels should not be nil")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestRecordDecision(t *testing.T) {
	m := NewMetricsFor(prometheus.NewRegistry())

	d := &types.RoutingDecision{
		QueryClass:       types.ClassCode,
		PrimaryModel:     "coder-xl",
		EstimatedCostUSD: 0.25,
		CacheHit:         false,
	}
	m.RecordDecision(d, 1.5)
	m.RecordDecision(d, 0.9)

	got := counterValue(t, m.DecisionTotal.WithLabelValues("code", "coder-xl", "miss"))
	if got != 2 {
		t.Errorf("decision counter = %f, want 2", got)
	}

	cost := counterValue(t, m.EstimatedCostUSD.WithLabelValues("coder-xl"))
	if cost != 0.5 {
		t.Errorf("cost counter = %f, want 0.5", cost)
	}
}

func TestRecordDecision_CacheLabel(t *testing.T) {
	m := NewMetricsFor(prometheus.NewRegistry())

	d := &types.RoutingDecision{QueryClass: types.ClassGeneral, PrimaryModel: "m", CacheHit: true}
	m.RecordDecision(d, 0.1)

	if got := counterValue(t, m.DecisionTotal.WithLabelValues("general", "m", "hit")); got != 1 {
		t.Errorf("hit counter = %f, want 1", got)
	}
	if got := counterValue(t, m.DecisionTotal.WithLabelValues("general", "m", "miss")); got != 0 {
		t.Errorf("miss counter = %f, want 0", got)
	}
}

func TestRecordFeedback(t *testing.T) {
	m := NewMetricsFor(prometheus.NewRegistry())

	m.RecordFeedback(types.FeedbackRecord{ModelID: "m", Success: true, Latency: time.Second}, 950)
	m.RecordFeedback(types.FeedbackRecord{ModelID: "m", Success: false, Latency: time.Second}, 1000)

	if got := counterValue(t, m.FeedbackTotal.WithLabelValues("m", "success")); got != 1 {
		t.Errorf("success counter = %f, want 1", got)
	}
	if got := counterValue(t, m.FeedbackTotal.WithLabelValues("m", "failure")); got != 1 {
		t.Errorf("failure counter = %f, want 1", got)
	}

	var metric dto.Metric
	if err := m.ModelLatencyEWMAMs.WithLabelValues("m").Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetGauge().GetValue(); got != 1000 {
		t.Errorf("latency gauge = %f, want 1000", got)
	}
}

func TestRecordRegistryRefresh(t *testing.T) {
	m := NewMetricsFor(prometheus.NewRegistry())

	m.RecordRegistryRefresh(true, 7)
	m.RecordRegistryRefresh(false, 0)

	if got := counterValue(t, m.RegistryRefresh.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok counter = %f, want 1", got)
	}
	if got := counterValue(t, m.RegistryRefresh.WithLabelValues("error")); got != 1 {
		t.Errorf("error counter = %f, want 1", got)
	}

	var metric dto.Metric
	if err := m.RegistryModels.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetGauge().GetValue(); got != 7 {
		t.Errorf("registry gauge = %f, want 7", got)
	}
}
