package types

// Capability is a validated tag a model declares and a query may require.
type Capability string

const (
	CapGeneral     Capability = "general"
	CapCode        Capability = "code"
	CapCreative    Capability = "creative"
	CapFactual     Capability = "factual"
	CapShortAnswer Capability = "short_answer"
	CapLongContext Capability = "long-context"
	CapVision      Capability = "vision"
)

func ParseCapability(s string) (Capability, bool) {
	switch Capability(s) {
	case CapGeneral, CapCode, CapCreative, CapFactual, CapShortAnswer, CapLongContext, CapVision:
		return Capability(s), true
	default:
		return "", false
	}
}

// SpecialistCapability maps a query class to the capability tag a model
// declares when it is specialized for that class of work.
func SpecialistCapability(class QueryClass) Capability {
	switch class {
	case ClassCode:
		return CapCode
	case ClassCreative:
		return CapCreative
	case ClassFactual:
		return CapFactual
	case ClassShortAnswer:
		return CapShortAnswer
	default:
		return CapGeneral
	}
}

// Model is one backend in the registry catalog. Records are immutable per
// registry snapshot; a refresh replaces the whole snapshot rather than
// mutating models in place.
type Model struct {
	ID                string       `json:"id" yaml:"id"`
	Capabilities      []Capability `json:"capabilities" yaml:"capabilities"`
	InputCostPer1K    float64      `json:"input_cost_per_1k" yaml:"input_cost_per_1k"`
	OutputCostPer1K   float64      `json:"output_cost_per_1k" yaml:"output_cost_per_1k"`
	Provider          string       `json:"provider" yaml:"provider"`
	MaxContextTokens  int          `json:"max_context_tokens" yaml:"max_context_tokens"`
}

// HasCapability reports whether the model declares the given tag.
func (m Model) HasCapability(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// EligibleFor reports whether the model can serve a query requiring the
// given capabilities with the given estimated token count. Eligibility is
// independent of cost and latency scoring.
func (m Model) EligibleFor(required []Capability, estimatedTokens int) bool {
	if estimatedTokens > m.MaxContextTokens {
		return false
	}
	for _, want := range required {
		if !m.HasCapability(want) {
			return false
		}
	}
	return true
}
