package router

import (
	"time"

	"github.com/af-corp/helmsman/internal/cost"
	"github.com/af-corp/helmsman/internal/tracker"
	"github.com/af-corp/helmsman/internal/types"
)

// Scorer computes per-candidate scores for one query. Injected so tests can
// count scoring passes when verifying cache behavior.
type Scorer interface {
	Score(class types.QueryClass, candidates []types.Model, estimatedTokens int) []types.CandidateScore
}

// Weights configure the composite score. Each sub-score lands in [0,1], so
// weights control the trade-off directly. Fixed per deployment, not per
// request, to keep scoring auditable.
type Weights struct {
	Perf       float64 `yaml:"perf"`
	Cost       float64 `yaml:"cost"`
	Capability float64 `yaml:"capability"`
}

// DefaultWeights favor cost slightly over performance and capability fit.
func DefaultWeights() Weights {
	return Weights{Perf: 0.3, Cost: 0.4, Capability: 0.3}
}

// weightedScorer is the production scorer: pure in-memory computation over
// the registry candidates, tracker profiles, and cost estimates.
type weightedScorer struct {
	weights   Weights
	tracker   *tracker.Tracker
	estimator *cost.Estimator
}

func (s *weightedScorer) Score(class types.QueryClass, candidates []types.Model, estimatedTokens int) []types.CandidateScore {
	profiles := make([]tracker.Profile, len(candidates))
	estimates := make([]types.CostEstimate, len(candidates))

	maxLatency := time.Duration(0)
	cheapest := -1.0
	for i, m := range candidates {
		profiles[i] = s.tracker.Snapshot(m.ID)
		estimates[i] = s.estimator.EstimateFromTokens(m, estimatedTokens)
		if profiles[i].LatencyEWMA > maxLatency {
			maxLatency = profiles[i].LatencyEWMA
		}
		if cheapest < 0 || estimates[i].TotalUSD < cheapest {
			cheapest = estimates[i].TotalUSD
		}
	}

	scores := make([]types.CandidateScore, len(candidates))
	for i, m := range candidates {
		perf := perfScore(profiles[i], maxLatency)
		costScore := costScore(estimates[i].TotalUSD, cheapest)
		capScore := capabilityScore(m, class)

		scores[i] = types.CandidateScore{
			ModelID:          m.ID,
			Score:            s.weights.Perf*perf + s.weights.Cost*costScore + s.weights.Capability*capScore,
			PerfScore:        perf,
			CostScore:        costScore,
			CapabilityScore:  capScore,
			EstimatedCostUSD: estimates[i].TotalUSD,
			EstimatedLatency: profiles[i].LatencyEWMA,
			ErrorRate:        profiles[i].ErrorRate,
		}
	}
	return scores
}

// perfScore rewards low latency (relative to the slowest candidate in the
// set) and a low error rate. An explicit quality signal, when present,
// takes a share of the weight.
func perfScore(p tracker.Profile, maxLatency time.Duration) float64 {
	latComponent := 0.0
	if maxLatency > 0 {
		latComponent = 1.0 - float64(p.LatencyEWMA)/float64(maxLatency)
	}
	reliability := 1.0 - p.ErrorRate

	if p.HasQuality {
		return 0.4*latComponent + 0.4*reliability + 0.2*p.Quality
	}
	return 0.5*latComponent + 0.5*reliability
}

// costScore rewards low estimated cost relative to the cheapest eligible
// candidate: the cheapest scores 1.0, everything else proportionally less.
func costScore(total, cheapest float64) float64 {
	if total <= 0 {
		return 1.0
	}
	if cheapest <= 0 {
		return 0.0
	}
	return cheapest / total
}

// capabilityScore rewards exact query-class specialization over generic
// coverage.
func capabilityScore(m types.Model, class types.QueryClass) float64 {
	if m.HasCapability(types.SpecialistCapability(class)) {
		return 1.0
	}
	if m.HasCapability(types.CapGeneral) {
		return 0.6
	}
	return 0.4
}
