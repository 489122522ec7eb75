package config

import "git.home.luguber.info/inful/assetpipe/internal/foundation/normalization"

// Mode selects development or production output policy.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// LogLevel is the configured slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

var modeEnum = normalization.NewEnum("mode", map[string]Mode{
	"development": ModeDevelopment,
	"dev":         ModeDevelopment,
	"production":  ModeProduction,
	"prod":        ModeProduction,
}, ModeProduction)

var logLevelEnum = normalization.NewEnum("log level", map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

var logFormatEnum = normalization.NewEnum("log format", map[string]LogFormat{
	"text": LogFormatText,
	"json": LogFormatJSON,
}, LogFormatText)

// ParseMode parses a mode flag. Empty input yields production.
func ParseMode(raw string) (Mode, error) {
	return modeEnum.Parse(raw)
}

// IsProduction reports whether hashed, minified output is produced.
func (m Mode) IsProduction() bool { return m == ModeProduction }
