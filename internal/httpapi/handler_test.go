package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/af-corp/helmsman/internal/auth"
	"github.com/af-corp/helmsman/internal/classifier"
	"github.com/af-corp/helmsman/internal/cost"
	"github.com/af-corp/helmsman/internal/feedback"
	"github.com/af-corp/helmsman/internal/httputil"
	"github.com/af-corp/helmsman/internal/registry"
	"github.com/af-corp/helmsman/internal/router"
	"github.com/af-corp/helmsman/internal/telemetry"
	"github.com/af-corp/helmsman/internal/tracker"
	"github.com/af-corp/helmsman/internal/types"
)

func testModels() []types.Model {
	return []types.Model{
		{
			ID:               "swift-general",
			Provider:         "acme",
			Capabilities:     []types.Capability{types.CapGeneral, types.CapShortAnswer},
			InputCostPer1K:   0.01,
			OutputCostPer1K:  0.01,
			MaxContextTokens: 16384,
		},
		{
			ID:               "coder-xl",
			Provider:         "acme",
			Capabilities:     []types.Capability{types.CapCode, types.CapLongContext},
			InputCostPer1K:   0.05,
			OutputCostPer1K:  0.05,
			MaxContextTokens: 128000,
		},
	}
}

func newTestHandler(t *testing.T) (*Handler, *tracker.Tracker) {
	t.Helper()
	reg := registry.New(&registry.StaticSource{Models: testModels()}, slog.Default())
	if _, err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("registry refresh: %v", err)
	}

	trk := tracker.New(tracker.DefaultAlpha, tracker.DefaultWindowSize)
	est := cost.NewEstimator(nil, cost.DefaultOutputRatio)
	cls := classifier.New(0)
	rt := router.New(router.Config{}, reg, trk, est, cls, slog.Default())
	rec := feedback.NewRecorder(reg, trk, nil, slog.Default())

	return NewHandler(rt, rec, reg, nil, nil, nil), trk
}

func newMetricsHandler(t *testing.T) (*Handler, *tracker.Tracker, *telemetry.Metrics) {
	t.Helper()
	reg := registry.New(&registry.StaticSource{Models: testModels()}, slog.Default())
	if _, err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("registry refresh: %v", err)
	}

	trk := tracker.New(tracker.DefaultAlpha, tracker.DefaultWindowSize)
	est := cost.NewEstimator(nil, cost.DefaultOutputRatio)
	cls := classifier.New(0)
	rt := router.New(router.Config{}, reg, trk, est, cls, slog.Default())
	rec := feedback.NewRecorder(reg, trk, nil, slog.Default())
	metrics := telemetry.NewMetricsFor(prometheus.NewRegistry())

	return NewHandler(rt, rec, reg, metrics, nil, nil), trk, metrics
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-test")
	handler(w, req)
	return w
}

func TestRoute_ReturnsDecision(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"correlation_id": "corr-1",
		"text":           "what is the capital of France?",
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var decision types.RoutingDecision
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if decision.CorrelationID != "corr-1" {
		t.Errorf("correlation_id = %q, want corr-1", decision.CorrelationID)
	}
	if decision.PrimaryModel == "" {
		t.Error("expected a primary model")
	}
	if decision.RegistryVersion == 0 {
		t.Error("expected a registry version")
	}
}

func TestRoute_CodeQueryPicksSpecialist(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"text": "refactor this parser and debug the regex that breaks it",
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var decision types.RoutingDecision
	json.Unmarshal(w.Body.Bytes(), &decision)
	if decision.PrimaryModel != "coder-xl" {
		t.Errorf("primary = %q, want coder-xl", decision.PrimaryModel)
	}
}

func TestRoute_MissingText(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRoute_UnknownCapability(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"text": "hello",
		"constraints": map[string]interface{}{
			"required_capabilities": []string{"telepathy"},
		},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRoute_NoEligibleModel(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"text": "describe this image",
		"constraints": map[string]interface{}{
			"required_capabilities": []string{"vision"},
		},
	}, nil)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var apiErr httputil.APIError
	json.Unmarshal(w.Body.Bytes(), &apiErr)
	if apiErr.Error.Code != "no_eligible_model" {
		t.Errorf("code = %q, want no_eligible_model", apiErr.Error.Code)
	}
}

func TestRoute_ConstraintUnsatisfiable_CarriesSuggestion(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"text": "hello there",
		"constraints": map[string]interface{}{
			"max_cost_usd": 0.0000001,
		},
	}, nil)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var apiErr httputil.APIError
	json.Unmarshal(w.Body.Bytes(), &apiErr)
	if apiErr.Error.Code != "constraint_unsatisfiable" {
		t.Errorf("code = %q, want constraint_unsatisfiable", apiErr.Error.Code)
	}
	if apiErr.Error.Details == nil {
		t.Error("expected a suggestion in details")
	}
}

func TestRoute_KeyAllowListBlocks(t *testing.T) {
	h, _ := newTestHandler(t)

	ctx := auth.ContextWithAuth(context.Background(), &auth.AuthInfo{
		KeyID:         "key-1",
		TeamID:        "team-1",
		AllowedModels: []string{"some-other-model"},
	})

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"text": "hello there",
	}, ctx)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestFeedback_Accepted(t *testing.T) {
	h, trk := newTestHandler(t)

	w := postJSON(t, h.Feedback, "/v1/feedback", map[string]interface{}{
		"correlation_id": "corr-1",
		"model_id":       "swift-general",
		"success":        true,
		"latency_ms":     800,
	}, nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	// The tracker update is synchronous with the 202.
	profile := trk.Snapshot("swift-general")
	if profile.SampleCount != 1 {
		t.Errorf("sample count = %d, want 1", profile.SampleCount)
	}
	if profile.LatencyEWMA != 800*time.Millisecond {
		t.Errorf("latency EWMA = %s, want 800ms", profile.LatencyEWMA)
	}
}

func TestFeedback_LatencyGaugeReportsEWMA(t *testing.T) {
	h, trk, metrics := newMetricsHandler(t)

	for _, latency := range []int{1000, 2000} {
		w := postJSON(t, h.Feedback, "/v1/feedback", map[string]interface{}{
			"model_id":   "swift-general",
			"success":    true,
			"latency_ms": latency,
		}, nil)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
		}
	}

	var metric dto.Metric
	if err := metrics.ModelLatencyEWMAMs.WithLabelValues("swift-general").Write(&metric); err != nil {
		t.Fatal(err)
	}
	got := metric.GetGauge().GetValue()

	// The gauge carries the smoothed latency the router scores on,
	// 0.2*2000 + 0.8*1000 = 1200, not the last raw sample.
	wantMs := float64(trk.Snapshot("swift-general").LatencyEWMA) / float64(time.Millisecond)
	if math.Abs(wantMs-1200) > 0.001 {
		t.Fatalf("tracker EWMA = %fms, want 1200ms", wantMs)
	}
	if math.Abs(got-wantMs) > 0.001 {
		t.Errorf("latency gauge = %fms, want tracker EWMA %fms", got, wantMs)
	}
}

func TestRoute_ObservesScoringDuration(t *testing.T) {
	h, _, metrics := newMetricsHandler(t)

	w := postJSON(t, h.Route, "/v1/route", map[string]interface{}{
		"text": "what is the capital of France?",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var metric dto.Metric
	hist := metrics.ScoringDurationMs.WithLabelValues("factual").(prometheus.Histogram)
	if err := hist.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("scoring duration samples = %d, want 1", got)
	}
}

func TestFeedback_MissingModelID(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Feedback, "/v1/feedback", map[string]interface{}{
		"correlation_id": "corr-1",
		"success":        true,
	}, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestFeedback_UnknownModel(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postJSON(t, h.Feedback, "/v1/feedback", map[string]interface{}{
		"model_id":   "retired-model",
		"success":    true,
		"latency_ms": 100,
	}, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRefreshRegistry(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/registry/refresh", nil)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-test")
	h.RefreshRegistry(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["models"].(float64) != 2 {
		t.Errorf("models = %v, want 2", resp["models"])
	}
}

func TestListModels(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-test")
	h.ListModels(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		RegistryVersion uint64      `json:"registry_version"`
		Models          []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Models) != 2 {
		t.Fatalf("models = %d, want 2", len(resp.Models))
	}
	for _, m := range resp.Models {
		if !m.Allowed {
			t.Errorf("model %s should be allowed without an allow-list", m.ID)
		}
	}
}

func TestListModels_AllowListAnnotations(t *testing.T) {
	h, _ := newTestHandler(t)

	ctx := auth.ContextWithAuth(context.Background(), &auth.AuthInfo{
		KeyID:         "key-1",
		AllowedModels: []string{"coder-xl"},
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-test")
	h.ListModels(w, req)

	var resp struct {
		Models []modelInfo `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, m := range resp.Models {
		want := m.ID == "coder-xl"
		if m.Allowed != want {
			t.Errorf("model %s allowed = %v, want %v", m.ID, m.Allowed, want)
		}
	}
}
