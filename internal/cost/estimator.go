package cost

import (
	"math"

	"github.com/af-corp/helmsman/internal/types"
)

const (
	// DefaultCharsPerToken is the crude chars-to-tokens ratio used when no
	// real tokenizer is plugged in.
	DefaultCharsPerToken = 4
	// DefaultOutputRatio sizes the output-token estimate as a fraction of
	// the input estimate.
	DefaultOutputRatio = 0.5
)

// TokenEstimator approximates the token count of a text. Estimates are
// never exact; implementations should round up to bias conservative.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// CharEstimator estimates tokens from byte length. It overestimates short
// inputs slightly, which is the safe direction for cost and context checks.
type CharEstimator struct {
	CharsPerToken int
}

func (c CharEstimator) EstimateTokens(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	if text == "" {
		return 0
	}
	return (len(text) + per - 1) / per
}

// Estimator computes expected serving cost for a query on a candidate
// model. Scoring is monotonic: more estimated tokens never costs less.
type Estimator struct {
	tokens      TokenEstimator
	outputRatio float64
}

func NewEstimator(tokens TokenEstimator, outputRatio float64) *Estimator {
	if tokens == nil {
		tokens = CharEstimator{CharsPerToken: DefaultCharsPerToken}
	}
	if outputRatio <= 0 {
		outputRatio = DefaultOutputRatio
	}
	return &Estimator{tokens: tokens, outputRatio: outputRatio}
}

// EstimateTokens exposes the input-token estimate used for eligibility
// checks.
func (e *Estimator) EstimateTokens(text string) int {
	return e.tokens.EstimateTokens(text)
}

// Estimate prices a query on the model from its raw text.
func (e *Estimator) Estimate(m types.Model, text string) types.CostEstimate {
	return e.EstimateFromTokens(m, e.tokens.EstimateTokens(text))
}

// EstimateFromTokens prices a query given a precomputed input-token
// estimate. Output tokens are estimated as a fixed ratio of the input,
// rounded up.
func (e *Estimator) EstimateFromTokens(m types.Model, inputTokens int) types.CostEstimate {
	if inputTokens < 0 {
		inputTokens = 0
	}
	outputTokens := int(math.Ceil(float64(inputTokens) * e.outputRatio))

	inputCost := float64(inputTokens) / 1000.0 * m.InputCostPer1K
	outputCost := float64(outputTokens) / 1000.0 * m.OutputCostPer1K

	return types.CostEstimate{
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		TotalUSD:      inputCost + outputCost,
	}
}
