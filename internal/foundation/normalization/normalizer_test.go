package normalization

import (
	"testing"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

type mode string

const (
	modeFixed  mode = "fixed"
	modeLinear mode = "linear"
)

func newModes() *Normalizer[mode] {
	return NewNormalizer(map[string]mode{"Fixed": modeFixed, "linear": modeLinear}, "")
}

func TestNormalize(t *testing.T) {
	n := newModes()
	tests := []struct {
		input string
		want  mode
	}{
		{"fixed", modeFixed},
		{"FIXED", modeFixed},
		{"  Linear ", modeLinear},
		{"quadratic", ""},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeWithError(t *testing.T) {
	n := newModes()
	if got, err := n.NormalizeWithError("retry mode", "LINEAR"); err != nil || got != modeLinear {
		t.Fatalf("got %q, %v", got, err)
	}
	_, err := n.NormalizeWithError("retry mode", "quadratic")
	c, ok := errors.AsClassified(err)
	if !ok || c.Category() != errors.CategoryValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if c.Message() != "unknown retry mode" {
		t.Errorf("message = %q", c.Message())
	}
	if valid, _ := c.Context().GetString("valid"); valid != "fixed, linear" {
		t.Errorf("valid = %q", valid)
	}
}

func TestValidKeysIsACopy(t *testing.T) {
	n := newModes()
	keys := n.ValidKeys()
	keys[0] = "mutated"
	if n.ValidKeys()[0] != "fixed" {
		t.Fatal("ValidKeys exposed internal state")
	}
}
