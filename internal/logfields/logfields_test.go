package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"BuildID", KeyBuildID, "b1", BuildID("b1")},
		{"Stage", KeyStage, "transforming", Stage("transforming")},
		{"State", KeyState, "done", State("done")},
		{"Phase", KeyPhase, "post", Phase("post")},
		{"Plugin", KeyPlugin, "html", Plugin("html")},
		{"Module", KeyModule, "src/index.js", Module("src/index.js")},
		{"Rule", KeyRule, "fonts", Rule("fonts")},
		{"Transform", KeyTransform, "script", Transform("script")},
		{"Artifact", KeyArtifact, "main.js", Artifact("main.js")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Pattern", KeyPattern, "*.js", Pattern("*.js")},
		{"Mode", KeyMode, "production", Mode("production")},
		{"Hash", KeyHash, "abc", Hash("abc")},
	}
	for _, c := range cases {
		if c.attr.Key != c.attrKey {
			t.Fatalf("%s key mismatch: got %s want %s", c.name, c.attr.Key, c.attrKey)
		}
		if c.attr.Value.String() != c.attrVal {
			t.Fatalf("%s value mismatch: got %s want %s", c.name, c.attr.Value.String(), c.attrVal)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := Size(42); a.Key != KeySize || a.Value.Int64() != 42 {
		t.Fatalf("unexpected size attr: %v", a)
	}
	if a := Workers(4); a.Key != KeyWorkers || a.Value.Int64() != 4 {
		t.Fatalf("unexpected workers attr: %v", a)
	}
	if a := DurationMS(1.5); a.Value.Float64() != 1.5 {
		t.Fatalf("unexpected duration attr: %v", a)
	}
}

func TestErrorHelper(t *testing.T) {
	if Error(nil).Value.String() != "" {
		t.Fatal("nil error should produce empty value")
	}
	if Error(errors.New("boom")).Value.String() != "boom" {
		t.Fatal("error message not propagated")
	}
}
