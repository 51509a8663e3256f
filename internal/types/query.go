package types

import "time"

// Query is the canonical internal representation of an incoming routing
// request.
type Query struct {
	// CorrelationID links the decision to later feedback. Set by the
	// caller; the HTTP layer generates one when absent.
	CorrelationID string `json:"correlation_id"`

	Text        string      `json:"text"`
	Constraints Constraints `json:"constraints"`

	// Internal tracking
	ReceivedAt time.Time `json:"-"`
}

// Constraints are caller-declared limits on a single query. Zero values
// mean "no constraint".
type Constraints struct {
	MaxCostUSD           float64       `json:"max_cost_usd,omitempty"`
	MaxLatency           time.Duration `json:"max_latency,omitempty"`
	RequiredCapabilities []Capability  `json:"required_capabilities,omitempty"`

	// ForceFresh bypasses the routing cache for this query.
	ForceFresh bool `json:"force_fresh,omitempty"`
}

// FeedbackRecord is an outcome signal for a completed model invocation.
// ModelID may differ from the decision's primary if a fallback fired.
type FeedbackRecord struct {
	CorrelationID string        `json:"correlation_id"`
	ModelID       string        `json:"model_id"`
	Success       bool          `json:"success"`
	Latency       time.Duration `json:"latency"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	CostUSD       float64       `json:"cost_usd,omitempty"`

	// Quality is an optional explicit rating in [0,1].
	Quality *float64 `json:"quality,omitempty"`
}
