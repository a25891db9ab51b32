package intent

import "testing"

func TestIsValid(t *testing.T) {
	valid := []Intent{FactualLookup, RelationshipExploration, Conversational, Command}
	for _, in := range valid {
		if !in.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", in)
		}
	}
	invalid := []Intent{"", "chat", "FACTUAL_LOOKUP", "lookup"}
	for _, in := range invalid {
		if in.IsValid() {
			t.Errorf("IsValid(%q) = true, want false", in)
		}
	}
}

func TestCacheable(t *testing.T) {
	cases := []struct {
		in   Intent
		want bool
	}{
		{FactualLookup, true},
		{RelationshipExploration, true},
		{Conversational, false},
		{Command, false},
	}
	for _, tc := range cases {
		if got := tc.in.Cacheable(); got != tc.want {
			t.Errorf("Cacheable(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
