package classifier

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/af-corp/helmsman/internal/types"
)

// DefaultMaxChars bounds how much of the query text is inspected, in
// bytes. Triggers past this window do not affect the result.
const DefaultMaxChars = 2000

// Classifier assigns an incoming query to a QueryClass bucket using
// keyword triggers. Classification is a pure function of the bounded input
// window: same text, same result.
type Classifier struct {
	maxChars int
	triggers map[types.QueryClass][]string
}

// New creates a classifier with the built-in trigger table. maxChars <= 0
// selects DefaultMaxChars.
func New(maxChars int) *Classifier {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Classifier{
		maxChars: maxChars,
		triggers: defaultTriggers(),
	}
}

func defaultTriggers() map[types.QueryClass][]string {
	return map[types.QueryClass][]string{
		types.ClassCode: {
			"func ", "def ", "class ", "import ", "compile", "stack trace",
			"refactor", "debug", "regex", "sql", "unit test", "```",
			"implement", "segfault", "nullpointer", "exception",
		},
		types.ClassCreative: {
			"write a story", "write a poem", "poem", "story about",
			"imagine", "fiction", "lyrics", "brainstorm", "creative",
			"screenplay", "haiku",
		},
		types.ClassFactual: {
			"what is", "what are", "who is", "who was", "when did",
			"when was", "where is", "why does", "how many", "define",
			"explain", "history of", "capital of",
		},
		types.ClassShortAnswer: {
			"yes or no", "true or false", "one word", "briefly",
			"tl;dr", "in one sentence", "in a word",
		},
	}
}

type candidate struct {
	class   types.QueryClass
	matches int
}

// truncate bounds text to max bytes, backing off so a multi-byte rune is
// never split.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}

// Classify buckets the query text. Empty or unmatched input returns
// ClassGeneral with confidence 0; it never fails.
func (c *Classifier) Classify(text string) types.Classification {
	if text == "" {
		return types.Classification{Class: types.ClassGeneral, Confidence: 0}
	}
	text = truncate(text, c.maxChars)
	lower := strings.ToLower(text)

	var candidates []candidate
	for class, triggers := range c.triggers {
		matched := 0
		for _, trig := range triggers {
			if strings.Contains(lower, trig) {
				matched++
			}
		}
		if matched > 0 {
			candidates = append(candidates, candidate{class: class, matches: matched})
		}
	}

	if len(candidates) == 0 {
		return types.Classification{Class: types.ClassGeneral, Confidence: 0}
	}

	// Highest match count wins; ties resolve by class name so the result
	// is stable regardless of map iteration order.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].matches == candidates[j].matches {
			return candidates[i].class < candidates[j].class
		}
		return candidates[i].matches > candidates[j].matches
	})

	top := candidates[0].matches
	second := 0
	if len(candidates) > 1 {
		second = candidates[1].matches
	}

	margin := float64(top-second) / float64(top)
	strength := float64(min(top, 5)) / 5.0
	confidence := 0.75*margin + 0.25*strength
	if top >= 2 && second == 0 {
		confidence = max(confidence, 0.9)
	}
	if top >= 3 {
		confidence = min(confidence+0.15, 1.0)
	}

	return types.Classification{Class: candidates[0].class, Confidence: confidence}
}
