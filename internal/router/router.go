package router

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/af-corp/helmsman/internal/classifier"
	"github.com/af-corp/helmsman/internal/cost"
	"github.com/af-corp/helmsman/internal/registry"
	"github.com/af-corp/helmsman/internal/tracker"
	"github.com/af-corp/helmsman/internal/types"
)

// DefaultMaxFallbacks caps the fallback chain length.
const DefaultMaxFallbacks = 2

// Config is the router's startup configuration. Nothing here changes per
// request.
type Config struct {
	Weights         Weights
	CacheTTL        time.Duration
	CacheMaxEntries int
	MaxFallbacks    int

	// ClassRequirements adds default required capabilities per query
	// class, merged with the query's own requirements before the
	// eligibility test.
	ClassRequirements map[types.QueryClass][]types.Capability
}

func (c Config) withDefaults() Config {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.MaxFallbacks <= 0 {
		c.MaxFallbacks = DefaultMaxFallbacks
	}
	if c.ClassRequirements == nil {
		c.ClassRequirements = DefaultClassRequirements()
	}
	return c
}

// DefaultClassRequirements routes code-class queries to code-capable models
// only. Other classes rely on scoring alone.
func DefaultClassRequirements() map[types.QueryClass][]types.Capability {
	return map[types.QueryClass][]types.Capability{
		types.ClassCode: {types.CapCode},
	}
}

// Router orchestrates classification, cache lookup, candidate scoring, and
// selection. Construct one per configuration; there is no package-level
// state, so independently configured routers can coexist.
type Router struct {
	cfg        Config
	registry   *registry.Registry
	classifier *classifier.Classifier
	estimator  *cost.Estimator
	scorer     Scorer
	cache      *decisionCache
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Router beyond the required dependencies.
type Option func(*Router)

// WithScorer replaces the production scorer, used by tests to count
// scoring passes.
func WithScorer(s Scorer) Option {
	return func(r *Router) { r.scorer = s }
}

// WithClock replaces the time source, used by tests to drive TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func New(cfg Config, reg *registry.Registry, trk *tracker.Tracker, est *cost.Estimator, cls *classifier.Classifier, logger *slog.Logger, opts ...Option) *Router {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		cfg:        cfg,
		registry:   reg,
		classifier: cls,
		estimator:  est,
		scorer:     &weightedScorer{weights: cfg.Weights, tracker: trk, estimator: est},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = newDecisionCache(cfg.CacheTTL, cfg.CacheMaxEntries, r.now)
	return r
}

// Route produces a routing decision for the query. It performs no network
// I/O: everything it reads is in memory, so callers should apply timeouts
// to the model invocation that follows, not to Route itself.
func (r *Router) Route(ctx context.Context, q types.Query) (*types.RoutingDecision, error) {
	classification := r.classifier.Classify(q.Text)
	estimatedTokens := r.estimator.EstimateTokens(q.Text)

	snap := r.registry.Snapshot()
	if snap == nil {
		return nil, &NoEligibleModelError{
			QueryClass:      classification.Class,
			Required:        q.Constraints.RequiredCapabilities,
			EstimatedTokens: estimatedTokens,
		}
	}

	key := fingerprint(classification.Class, q.Constraints, snap.Version)
	if !q.Constraints.ForceFresh {
		if cached, ok := r.cache.get(key); ok {
			cached.CorrelationID = q.CorrelationID
			cached.CacheHit = true
			return &cached, nil
		}
	}

	required := r.requiredCapabilities(classification.Class, q.Constraints)
	candidates := snap.Eligible(required, estimatedTokens)
	if len(candidates) == 0 {
		return nil, &NoEligibleModelError{
			QueryClass:      classification.Class,
			Required:        required,
			EstimatedTokens: estimatedTokens,
			RegistryVersion: snap.Version,
		}
	}

	scores := r.scorer.Score(classification.Class, candidates, estimatedTokens)
	sortCandidates(scores)

	kept := filterConstraints(scores, q.Constraints)
	if len(kept) == 0 {
		return nil, &ConstraintUnsatisfiableError{
			Constraints: q.Constraints,
			Suggestion:  scores[0],
		}
	}

	fallbacks := make([]string, 0, r.cfg.MaxFallbacks)
	for _, c := range kept[1:] {
		if len(fallbacks) == r.cfg.MaxFallbacks {
			break
		}
		fallbacks = append(fallbacks, c.ModelID)
	}

	decision := &types.RoutingDecision{
		CorrelationID:    q.CorrelationID,
		QueryClass:       classification.Class,
		Confidence:       classification.Confidence,
		PrimaryModel:     kept[0].ModelID,
		Fallbacks:        fallbacks,
		Scores:           kept,
		EstimatedCostUSD: kept[0].EstimatedCostUSD,
		EstimatedLatency: kept[0].EstimatedLatency,
		RegistryVersion:  snap.Version,
		DecidedAt:        r.now(),
	}

	r.cache.put(key, *decision)

	r.logger.Debug("routing decision",
		"correlation_id", q.CorrelationID,
		"class", classification.Class,
		"primary", decision.PrimaryModel,
		"fallbacks", decision.Fallbacks,
		"estimated_cost_usd", decision.EstimatedCostUSD,
		"registry_version", snap.Version,
	)
	return decision, nil
}

// requiredCapabilities merges the query's explicit requirements with the
// configured defaults for its class, deduplicated.
func (r *Router) requiredCapabilities(class types.QueryClass, c types.Constraints) []types.Capability {
	defaults := r.cfg.ClassRequirements[class]
	if len(defaults) == 0 {
		return c.RequiredCapabilities
	}
	seen := make(map[types.Capability]bool, len(c.RequiredCapabilities)+len(defaults))
	merged := make([]types.Capability, 0, len(c.RequiredCapabilities)+len(defaults))
	for _, cap := range c.RequiredCapabilities {
		if !seen[cap] {
			seen[cap] = true
			merged = append(merged, cap)
		}
	}
	for _, cap := range defaults {
		if !seen[cap] {
			seen[cap] = true
			merged = append(merged, cap)
		}
	}
	return merged
}

// sortCandidates orders candidates by score descending; ties break by
// lowest estimated cost, then lowest error rate, then model id, so the
// ordering is fully deterministic.
func sortCandidates(scores []types.CandidateScore) {
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.EstimatedCostUSD != b.EstimatedCostUSD {
			return a.EstimatedCostUSD < b.EstimatedCostUSD
		}
		if a.ErrorRate != b.ErrorRate {
			return a.ErrorRate < b.ErrorRate
		}
		return a.ModelID < b.ModelID
	})
}

// filterConstraints drops candidates whose estimates violate the caller's
// explicit ceilings, preserving order.
func filterConstraints(scores []types.CandidateScore, c types.Constraints) []types.CandidateScore {
	kept := make([]types.CandidateScore, 0, len(scores))
	for _, s := range scores {
		if c.MaxCostUSD > 0 && s.EstimatedCostUSD > c.MaxCostUSD {
			continue
		}
		if c.MaxLatency > 0 && s.EstimatedLatency > c.MaxLatency {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
