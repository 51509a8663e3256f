package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/helmsman/internal/auth"
	"github.com/af-corp/helmsman/internal/feedback"
	"github.com/af-corp/helmsman/internal/httputil"
	"github.com/af-corp/helmsman/internal/ratelimit"
	"github.com/af-corp/helmsman/internal/registry"
	"github.com/af-corp/helmsman/internal/router"
	"github.com/af-corp/helmsman/internal/telemetry"
	"github.com/af-corp/helmsman/internal/types"
)

// Handler holds dependencies for the routing HTTP handlers.
type Handler struct {
	router   *router.Router
	recorder *feedback.Recorder
	registry *registry.Registry
	metrics  *telemetry.Metrics
	emitter  *telemetry.Emitter
	budget   *ratelimit.BudgetTracker
}

func NewHandler(rt *router.Router, rec *feedback.Recorder, reg *registry.Registry, metrics *telemetry.Metrics, emitter *telemetry.Emitter, budget *ratelimit.BudgetTracker) *Handler {
	return &Handler{
		router:   rt,
		recorder: rec,
		registry: reg,
		metrics:  metrics,
		emitter:  emitter,
		budget:   budget,
	}
}

// routeRequest is the wire shape of POST /v1/route. Durations come in as
// milliseconds; the internal types use time.Duration.
type routeRequest struct {
	CorrelationID string          `json:"correlation_id"`
	Text          string          `json:"text"`
	Constraints   constraintsWire `json:"constraints"`
}

type constraintsWire struct {
	MaxCostUSD           float64  `json:"max_cost_usd"`
	MaxLatencyMs         int64    `json:"max_latency_ms"`
	RequiredCapabilities []string `json:"required_capabilities"`
	ForceFresh           bool     `json:"force_fresh"`
}

// Route handles POST /v1/route.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req routeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		httputil.WriteBadRequestError(w, reqID, "text is required")
		return
	}

	caps := make([]types.Capability, 0, len(req.Constraints.RequiredCapabilities))
	for _, raw := range req.Constraints.RequiredCapabilities {
		c, ok := types.ParseCapability(raw)
		if !ok {
			httputil.WriteBadRequestError(w, reqID, "unknown capability: "+raw)
			return
		}
		caps = append(caps, c)
	}
	if req.Constraints.MaxLatencyMs < 0 || req.Constraints.MaxCostUSD < 0 {
		httputil.WriteBadRequestError(w, reqID, "constraints must be non-negative")
		return
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = reqID
	}

	q := types.Query{
		CorrelationID: correlationID,
		Text:          req.Text,
		Constraints: types.Constraints{
			MaxCostUSD:           req.Constraints.MaxCostUSD,
			MaxLatency:           time.Duration(req.Constraints.MaxLatencyMs) * time.Millisecond,
			RequiredCapabilities: caps,
			ForceFresh:           req.Constraints.ForceFresh,
		},
		ReceivedAt: receivedAt,
	}

	routeStart := time.Now()
	decision, err := h.router.Route(r.Context(), q)
	durationMs := float64(time.Since(routeStart).Microseconds()) / 1000.0
	if err != nil {
		h.writeRoutingError(w, reqID, err)
		return
	}

	if authInfo, ok := auth.AuthFromContext(r.Context()); ok {
		if !authInfo.AllowsModel(decision.PrimaryModel) {
			slog.Warn("decision blocked by key allow-list",
				"request_id", reqID,
				"key_id", authInfo.KeyID,
				"model", decision.PrimaryModel,
			)
			httputil.WriteError(w, reqID, http.StatusForbidden, "routing_error", "model_not_permitted",
				"Selected model "+decision.PrimaryModel+" is not permitted for this API key")
			return
		}
		if h.budget != nil && !decision.CacheHit {
			h.budget.RecordSpendUSD(r.Context(), authInfo.TeamID, decision.EstimatedCostUSD)
		}
	}

	if h.metrics != nil {
		h.metrics.RecordDecision(decision, durationMs)
	}
	if h.emitter != nil {
		h.emitter.EmitDecision(*decision)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}

func (h *Handler) writeRoutingError(w http.ResponseWriter, reqID string, err error) {
	var noEligible *router.NoEligibleModelError
	var unsatisfiable *router.ConstraintUnsatisfiableError
	switch {
	case errors.As(err, &noEligible):
		if h.metrics != nil {
			h.metrics.RecordRoutingError("no_eligible_model")
		}
		httputil.WriteNoEligibleModelError(w, reqID, err.Error())
	case errors.As(err, &unsatisfiable):
		if h.metrics != nil {
			h.metrics.RecordRoutingError("constraint_unsatisfiable")
		}
		httputil.WriteConstraintError(w, reqID, err.Error(), unsatisfiable.Suggestion)
	default:
		if h.metrics != nil {
			h.metrics.RecordRoutingError("internal")
		}
		slog.Error("routing failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Internal routing error")
	}
}

// feedbackRequest is the wire shape of POST /v1/feedback.
type feedbackRequest struct {
	CorrelationID string   `json:"correlation_id"`
	ModelID       string   `json:"model_id"`
	Success       bool     `json:"success"`
	LatencyMs     int64    `json:"latency_ms"`
	InputTokens   int      `json:"input_tokens"`
	OutputTokens  int      `json:"output_tokens"`
	CostUSD       float64  `json:"cost_usd"`
	Quality       *float64 `json:"quality"`
}

// Feedback handles POST /v1/feedback. The tracker update completes before
// the 202 is written, so a route call issued by the same client immediately
// afterwards observes the new statistics.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	rec := types.FeedbackRecord{
		CorrelationID: req.CorrelationID,
		ModelID:       req.ModelID,
		Success:       req.Success,
		Latency:       time.Duration(req.LatencyMs) * time.Millisecond,
		InputTokens:   req.InputTokens,
		OutputTokens:  req.OutputTokens,
		CostUSD:       req.CostUSD,
		Quality:       req.Quality,
	}

	profile, err := h.recorder.Record(rec)
	if err != nil {
		var fbErr *feedback.Error
		if errors.As(err, &fbErr) {
			httputil.WriteBadRequestError(w, reqID, fbErr.Error())
			return
		}
		httputil.WriteInternalError(w, reqID, "Failed to record feedback")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordFeedback(rec, float64(profile.LatencyEWMA)/float64(time.Millisecond))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// RefreshRegistry handles POST /v1/registry/refresh, forcing an immediate
// catalog reload outside the background refresh cycle.
func (h *Handler) RefreshRegistry(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	version, err := h.registry.Refresh(ctx)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordRegistryRefresh(false, 0)
		}
		slog.Error("manual registry refresh failed", "request_id", reqID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Registry refresh failed: "+err.Error())
		return
	}

	snap := h.registry.Snapshot()
	if h.metrics != nil {
		h.metrics.RecordRegistryRefresh(true, len(snap.Models))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"version": version,
		"models":  len(snap.Models),
	})
}

// modelInfo is one entry of GET /v1/models.
type modelInfo struct {
	ID               string   `json:"id"`
	Provider         string   `json:"provider"`
	Capabilities     []string `json:"capabilities"`
	InputCostPer1K   float64  `json:"input_cost_per_1k"`
	OutputCostPer1K  float64  `json:"output_cost_per_1k"`
	MaxContextTokens int      `json:"max_context_tokens"`
	Allowed          bool     `json:"allowed"`
}

// ListModels handles GET /v1/models, returning the current catalog snapshot
// with per-key allow-list annotations.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	snap := h.registry.Snapshot()
	if snap == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Model catalog not loaded yet")
		return
	}

	authInfo, hasAuth := auth.AuthFromContext(r.Context())

	out := make([]modelInfo, 0, len(snap.Models))
	for _, m := range snap.Models {
		caps := make([]string, len(m.Capabilities))
		for i, c := range m.Capabilities {
			caps[i] = string(c)
		}
		allowed := true
		if hasAuth {
			allowed = authInfo.AllowsModel(m.ID)
		}
		out = append(out, modelInfo{
			ID:               m.ID,
			Provider:         m.Provider,
			Capabilities:     caps,
			InputCostPer1K:   m.InputCostPer1K,
			OutputCostPer1K:  m.OutputCostPer1K,
			MaxContextTokens: m.MaxContextTokens,
			Allowed:          allowed,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"registry_version": snap.Version,
		"models":           out,
	})
}
