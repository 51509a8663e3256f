package types

import "time"

// CostEstimate is the expected monetary cost of serving a query on a
// candidate model. Token counts are estimates, rounded up to bias
// conservative; costs are USD.
type CostEstimate struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	InputCostUSD  float64 `json:"input_cost_usd"`
	OutputCostUSD float64 `json:"output_cost_usd"`
	TotalUSD      float64 `json:"total_usd"`
}

// CandidateScore records the scoring inputs for one eligible model, kept on
// the decision for observability.
type CandidateScore struct {
	ModelID          string        `json:"model_id"`
	Score            float64       `json:"score"`
	PerfScore        float64       `json:"perf_score"`
	CostScore        float64       `json:"cost_score"`
	CapabilityScore  float64       `json:"capability_score"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	EstimatedLatency time.Duration `json:"estimated_latency"`
	ErrorRate        float64       `json:"error_rate"`
}

// RoutingDecision is the router's output: a primary model, an ordered
// fallback chain, and the reasoning inputs that produced the ordering.
// Immutable once produced.
type RoutingDecision struct {
	CorrelationID string     `json:"correlation_id"`
	QueryClass    QueryClass `json:"query_class"`
	Confidence    float64    `json:"confidence"`

	PrimaryModel string   `json:"primary_model"`
	Fallbacks    []string `json:"fallbacks"`

	// Scores holds every surviving candidate in selection order
	// (primary first).
	Scores []CandidateScore `json:"scores"`

	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	EstimatedLatency time.Duration `json:"estimated_latency"`

	RegistryVersion uint64    `json:"registry_version"`
	CacheHit        bool      `json:"cache_hit"`
	DecidedAt       time.Time `json:"decided_at"`
}

// Candidates returns the primary and fallbacks as one ordered list.
func (d *RoutingDecision) Candidates() []string {
	out := make([]string, 0, 1+len(d.Fallbacks))
	out = append(out, d.PrimaryModel)
	out = append(out, d.Fallbacks...)
	return out
}
