package errors

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
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
		{name: "config", err: ConfigError("bad config").Build(), expected: 7},
		{name: "ambiguous rules", err: RuleMatchAmbiguity("fonts", "assets").Build(), expected: 7},
		{name: "transform failure", err: TransformFailure("src/index.js", fmt.Errorf("syntax")).Build(), expected: 11},
		{name: "collision", err: EmissionCollision("main.js", "a", "b").Build(), expected: 11},
		{name: "wrapped transform failure", err: fmt.Errorf("stage: %w", TransformFailure("a.js", nil).Build()), expected: 11},
		{name: "unclassified error", err: fmt.Errorf("boom"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatErrorIncludesModule(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())
	err := TransformFailure("src/broken.js", fmt.Errorf("unexpected token")).Build()

	msg := adapter.FormatError(err)
	if !strings.Contains(msg, "src/broken.js") {
		t.Errorf("expected module path in message, got %q", msg)
	}
	if !strings.Contains(msg, "unexpected token") {
		t.Errorf("expected cause in message, got %q", msg)
	}
}

func TestCLIErrorAdapter_Report(t *testing.T) {
	var logs, out bytes.Buffer
	adapter := NewCLIErrorAdapter(true, slog.New(slog.NewTextHandler(&logs, nil)))
	adapter.out = &out

	code := adapter.Report(CleanupFailure("dist", fmt.Errorf("permission denied")).Build())
	if code != 11 {
		t.Fatalf("expected exit code 11, got %d", code)
	}
	if !strings.Contains(out.String(), "cleanup_failure") {
		t.Errorf("verbose output should contain the category, got %q", out.String())
	}
	if !strings.Contains(logs.String(), "path=dist") {
		t.Errorf("log should carry the context, got %q", logs.String())
	}
}
