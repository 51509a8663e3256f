package types

// QueryClass is a discrete bucket assigned to an incoming query by the
// classifier. The set is closed: routing config and capability matching
// refer to these values by name.
type QueryClass string

const (
	ClassGeneral     QueryClass = "general"
	ClassCode        QueryClass = "code"
	ClassCreative    QueryClass = "creative"
	ClassFactual     QueryClass = "factual"
	ClassShortAnswer QueryClass = "short_answer"
)

// AllQueryClasses lists every valid bucket, in stable order.
func AllQueryClasses() []QueryClass {
	return []QueryClass{ClassGeneral, ClassCode, ClassCreative, ClassFactual, ClassShortAnswer}
}

func ParseQueryClass(s string) (QueryClass, bool) {
	switch QueryClass(s) {
	case ClassGeneral, ClassCode, ClassCreative, ClassFactual, ClassShortAnswer:
		return QueryClass(s), true
	default:
		return "", false
	}
}

// Classification is the classifier's output: a bucket plus a confidence
// in [0,1]. Malformed input classifies as ClassGeneral with confidence 0.
type Classification struct {
	Class      QueryClass `json:"class"`
	Confidence float64    `json:"confidence"`
}
