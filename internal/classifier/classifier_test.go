package classifier

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/af-corp/helmsman/internal/types"
)

func TestClassify_Buckets(t *testing.T) {
	c := New(0)

	tests := []struct {
		name string
		text string
		want types.QueryClass
	}{
		{"code by keywords", "please debug this stack trace and refactor the func ", types.ClassCode},
		{"code fence", "why does this fail?\n```\nx := 1\n```", types.ClassCode},
		{"creative", "write a poem about the sea", types.ClassCreative},
		{"factual", "what is the capital of France and when did it become one?", types.ClassFactual},
		{"short answer", "yes or no: is the sky blue?", types.ClassShortAnswer},
		{"no triggers", "asdf qwerty zxcv", types.ClassGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			if got.Class != tt.want {
				t.Errorf("Classify(%q).Class = %s, want %s", tt.text, got.Class, tt.want)
			}
		})
	}
}

func TestClassify_EmptyInput(t *testing.T) {
	c := New(0)
	got := c.Classify("")
	if got.Class != types.ClassGeneral {
		t.Errorf("expected general class for empty input, got %s", got.Class)
	}
	if got.Confidence != 0 {
		t.Errorf("expected confidence 0 for empty input, got %f", got.Confidence)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(0)
	text := "explain what is a regex and implement one in sql"
	first := c.Classify(text)
	for i := 0; i < 10; i++ {
		if got := c.Classify(text); got != first {
			t.Fatalf("Classify is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestClassify_BoundedWindow(t *testing.T) {
	c := New(50)
	// Trigger appears only past the window, so it must not count.
	text := strings.Repeat("x", 60) + " write a poem"
	got := c.Classify(text)
	if got.Class != types.ClassGeneral {
		t.Errorf("trigger past window should be ignored, got class %s", got.Class)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"within limit", "hello", 10, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"multi-byte rune straddles the limit", "abécd", 3, "ab"},
		{"multi-byte rune ends at the limit", "abécd", 4, "abé"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8 %q", tt.text, tt.max, got)
			}
		})
	}
}

func TestClassify_MultiByteWindowEdge(t *testing.T) {
	// 50-byte window cuts into the run of multi-byte runes; the window
	// must end on a rune boundary and the trigger inside it still counts.
	c := New(50)
	text := "write a poem " + strings.Repeat("é", 40)
	got := c.Classify(text)
	if got.Class != types.ClassCreative {
		t.Errorf("expected creative class, got %s", got.Class)
	}
}

func TestClassify_ConfidenceRange(t *testing.T) {
	c := New(0)
	texts := []string{
		"",
		"write a poem",
		"debug refactor regex sql implement",
		"what is a poem and who was its author, briefly",
	}
	for _, text := range texts {
		got := c.Classify(text)
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("Classify(%q).Confidence = %f, out of [0,1]", text, got.Confidence)
		}
	}
}

func TestClassify_StrongSingleClassHighConfidence(t *testing.T) {
	c := New(0)
	got := c.Classify("debug this stack trace, then refactor and add a unit test")
	if got.Class != types.ClassCode {
		t.Fatalf("expected code class, got %s", got.Class)
	}
	if got.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9 for unambiguous match, got %f", got.Confidence)
	}
}
