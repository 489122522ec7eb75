package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyState      = "state"
	KeyPhase      = "phase"
	KeyPlugin     = "plugin"
	KeyModule     = "module"
	KeyRule       = "rule"
	KeyTransform  = "transform"
	KeyArtifact   = "artifact"
	KeyPath       = "path"
	KeyPattern    = "pattern"
	KeyMode       = "mode"
	KeyHash       = "hash"
	KeySize       = "size"
	KeyCount      = "count"
	KeyWorkers    = "workers"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func Plugin(name string) slog.Attr    { return slog.String(KeyPlugin, name) }
func Module(id string) slog.Attr      { return slog.String(KeyModule, id) }
func Rule(name string) slog.Attr      { return slog.String(KeyRule, name) }
func Transform(ref string) slog.Attr  { return slog.String(KeyTransform, ref) }
func Artifact(name string) slog.Attr  { return slog.String(KeyArtifact, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Pattern(p string) slog.Attr      { return slog.String(KeyPattern, p) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Hash(h string) slog.Attr         { return slog.String(KeyHash, h) }
func Size(n int) slog.Attr            { return slog.Int(KeySize, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Workers(n int) slog.Attr         { return slog.Int(KeyWorkers, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
