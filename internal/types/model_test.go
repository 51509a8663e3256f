package types

import "testing"

func TestParseQueryClass(t *testing.T) {
	tests := []struct {
		in    string
		want  QueryClass
		valid bool
	}{
		{"general", ClassGeneral, true},
		{"code", ClassCode, true},
		{"creative", ClassCreative, true},
		{"factual", ClassFactual, true},
		{"short_answer", ClassShortAnswer, true},
		{"CODE", "", false},
		{"", "", false},
		{"poetry", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseQueryClass(tt.in)
		if ok != tt.valid {
			t.Errorf("ParseQueryClass(%q) valid = %v, want %v", tt.in, ok, tt.valid)
		}
		if got != tt.want {
			t.Errorf("ParseQueryClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCapability(t *testing.T) {
	for _, valid := range []string{"general", "code", "creative", "factual", "short_answer", "long-context", "vision"} {
		if _, ok := ParseCapability(valid); !ok {
			t.Errorf("ParseCapability(%q) should be valid", valid)
		}
	}
	if _, ok := ParseCapability("telepathy"); ok {
		t.Error("ParseCapability should reject unknown tags")
	}
}

func TestSpecialistCapability(t *testing.T) {
	tests := []struct {
		class QueryClass
		want  Capability
	}{
		{ClassCode, CapCode},
		{ClassCreative, CapCreative},
		{ClassFactual, CapFactual},
		{ClassShortAnswer, CapShortAnswer},
		{ClassGeneral, CapGeneral},
	}
	for _, tt := range tests {
		if got := SpecialistCapability(tt.class); got != tt.want {
			t.Errorf("SpecialistCapability(%s) = %s, want %s", tt.class, got, tt.want)
		}
	}
}

func TestModelEligibleFor(t *testing.T) {
	m := Model{
		ID:               "gpt-test",
		Capabilities:     []Capability{CapGeneral, CapCode},
		MaxContextTokens: 8192,
	}

	tests := []struct {
		name     string
		required []Capability
		tokens   int
		want     bool
	}{
		{"no requirements", nil, 100, true},
		{"declared capability", []Capability{CapCode}, 100, true},
		{"subset of declared", []Capability{CapGeneral, CapCode}, 100, true},
		{"missing capability", []Capability{CapVision}, 100, false},
		{"partially missing", []Capability{CapCode, CapVision}, 100, false},
		{"context overflow", nil, 8193, false},
		{"context exact fit", nil, 8192, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.EligibleFor(tt.required, tt.tokens); got != tt.want {
				t.Errorf("EligibleFor(%v, %d) = %v, want %v", tt.required, tt.tokens, got, tt.want)
			}
		})
	}
}

func TestDecisionCandidates(t *testing.T) {
	d := &RoutingDecision{PrimaryModel: "a", Fallbacks: []string{"b", "c"}}
	got := d.Candidates()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Candidates() length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidates()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
