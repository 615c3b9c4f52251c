package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "config.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "config.yaml" {
			t.Errorf("expected context file=config.yaml, got %v", file)
		}
	})

	t.Run("Wrapped chain is searched", func(t *testing.T) {
		inner := GatewayError("fetch page failed").WithContext("page_id", "42").Build()
		outer := fmt.Errorf("load corpus: %w", inner)

		if !IsClassified(outer) {
			t.Fatal("expected wrapped error to be classified")
		}
		if !HasCategory(outer, CategoryGateway) {
			t.Errorf("expected gateway category, got %s", GetCategory(outer))
		}
		if !inner.CanRetry() {
			t.Error("expected gateway errors to be retryable")
		}
	})

	t.Run("Initialization categories", func(t *testing.T) {
		cases := map[ErrorCategory]bool{
			CategoryConfig:  true,
			CategoryAuth:    true,
			CategoryLink:    false,
			CategoryPath:    false,
			CategoryGateway: false,
		}
		for cat, want := range cases {
			err := NewError(cat, "x").Build()
			if got := IsInitialization(err); got != want {
				t.Errorf("%s: IsInitialization=%v, want %v", cat, got, want)
			}
		}
		if IsInitialization(errors.New("plain")) {
			t.Error("unclassified errors are not initialization errors")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("connection reset")
	err := WrapError(originalErr, CategoryNetwork, "listing failed").
		Warning().
		Retryable().
		Build()

	if !errors.Is(err, originalErr) {
		t.Error("expected cause to be reachable with errors.Is")
	}
	if err.Severity() != SeverityWarning {
		t.Errorf("expected warning severity, got %s", err.Severity())
	}
	if !err.IsTransient() {
		t.Error("expected retryable error to be transient")
	}
	want := "[network:warning] listing failed: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWithContextDoesNotMutate(t *testing.T) {
	base := LinkError("unresolved link").Build()
	derived := base.WithContext("href", "/confluence/display/X/Y")

	if _, ok := base.Context().Get("href"); ok {
		t.Error("base context was mutated")
	}
	if v, _ := derived.Context().GetString("href"); v != "/confluence/display/X/Y" {
		t.Errorf("derived context missing href, got %q", v)
	}
}
