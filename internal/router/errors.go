package router

import (
	"fmt"

	"github.com/af-corp/helmsman/internal/types"
)

// NoEligibleModelError means the registry contains zero models satisfying
// the query's capability and context requirements. Surfaced to the caller,
// never retried internally.
type NoEligibleModelError struct {
	QueryClass      types.QueryClass
	Required        []types.Capability
	EstimatedTokens int
	RegistryVersion uint64
}

func (e *NoEligibleModelError) Error() string {
	return fmt.Sprintf("no eligible model for class %s (required %v, ~%d tokens, registry v%d)",
		e.QueryClass, e.Required, e.EstimatedTokens, e.RegistryVersion)
}

// ConstraintUnsatisfiableError means eligible models exist but every one of
// them exceeds a caller-supplied cost or latency ceiling. Suggestion is the
// best-scoring candidate, included so the caller can decide what to relax.
type ConstraintUnsatisfiableError struct {
	Constraints types.Constraints
	Suggestion  types.CandidateScore
}

func (e *ConstraintUnsatisfiableError) Error() string {
	return fmt.Sprintf("no eligible model satisfies constraints (max_cost_usd=%.6f, max_latency=%s); best candidate %s at $%.6f / %s",
		e.Constraints.MaxCostUSD, e.Constraints.MaxLatency,
		e.Suggestion.ModelID, e.Suggestion.EstimatedCostUSD, e.Suggestion.EstimatedLatency)
}
