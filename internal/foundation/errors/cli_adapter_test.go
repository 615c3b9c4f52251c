package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation", err: ValidationError("bad flag").Build(), expected: 2},
		{name: "auth", err: AuthError("login refused").Build(), expected: 5},
		{name: "config", err: ConfigError("missing space").Build(), expected: 7},
		{name: "wrapped config", err: fmt.Errorf("corpus CXF: %w", ConfigError("missing template").Build()), expected: 7},
		{name: "gateway", err: GatewayError("503").Build(), expected: 8},
		{name: "filesystem", err: FileSystemError("disk full").Build(), expected: 11},
		{name: "unclassified", err: errors.New("boom"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, nil)
	verbose := NewCLIErrorAdapter(true, nil)
	err := WrapError(errors.New("no such file"), CategoryConfig, "load config").Build()

	if got := quiet.FormatError(err); got != "Error: load config: no such file" {
		t.Errorf("quiet FormatError = %q", got)
	}
	if got := verbose.FormatError(err); got != "Error: "+err.Error() {
		t.Errorf("verbose FormatError = %q", got)
	}
}
