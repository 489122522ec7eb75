// Package config loads and validates assetpipe.yaml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// DefaultFilename is the configuration file looked up when none is given.
const DefaultFilename = "assetpipe.yaml"

// Config is the complete build configuration.
type Config struct {
	Entry      string         `yaml:"entry"`
	SourceRoot string         `yaml:"source_root"`
	Mode       Mode           `yaml:"mode"`
	Output     OutputConfig   `yaml:"output"`
	Resolve    ResolveConfig  `yaml:"resolve"`
	Rules      []RuleConfig   `yaml:"rules"`
	Plugins    []PluginConfig `yaml:"plugins"`
	Env        EnvConfig      `yaml:"env"`
	Build      BuildConfig    `yaml:"build"`
	Cache      CacheConfig    `yaml:"cache"`
	Watch      WatchConfig    `yaml:"watch"`
	Events     EventsConfig   `yaml:"events"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Logging    LoggingConfig  `yaml:"logging"`
}

// OutputConfig describes where and how artifacts are written.
type OutputConfig struct {
	Directory   string           `yaml:"directory"`
	Filename    string           `yaml:"filename"`     // JS bundle name template
	CSSFilename string           `yaml:"css_filename"` // extracted stylesheet name template
	PublicPath  PublicPathConfig `yaml:"public_path"`
	HashLength  int              `yaml:"hash_length"`
}

// PublicPathConfig holds the URL prefix used in generated references per mode.
type PublicPathConfig struct {
	Development string `yaml:"development"`
	Production  string `yaml:"production"`
}

// For returns the public path for mode.
func (p PublicPathConfig) For(mode Mode) string {
	if mode == ModeProduction {
		return p.Production
	}
	return p.Development
}

// ResolveConfig controls import resolution during discovery.
type ResolveConfig struct {
	Alias      map[string]string `yaml:"alias"`
	Extensions []string          `yaml:"extensions"`
}

// RuleConfig is one entry of the ordered rule table.
type RuleConfig struct {
	Name    string  `yaml:"name"`
	Test    string  `yaml:"test"`
	Exclude string  `yaml:"exclude,omitempty"`
	Use     string  `yaml:"use"`
	Options Options `yaml:"options,omitempty"`
}

// PluginConfig is one entry of the ordered plugin list.
type PluginConfig struct {
	Name    string  `yaml:"name"`
	Options Options `yaml:"options,omitempty"`
}

// EnvConfig selects the environment variables visible to env injection.
type EnvConfig struct {
	Allow []string `yaml:"allow"`
	Files []string `yaml:"files"`
}

// BuildConfig tunes the transform stage.
type BuildConfig struct {
	Workers int `yaml:"workers"`
}

// CacheConfig enables the persistent transform cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig tunes watch mode. A non-empty PollInterval selects polling
// instead of filesystem notifications.
type WatchConfig struct {
	Debounce     string `yaml:"debounce"`
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// EventsConfig enables build event publishing to NATS.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig enables the Prometheus textfile written after each build.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// LoggingConfig selects the slog handler and level.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads, normalizes, defaults and validates a configuration file.
// Normalization warnings are returned alongside the config.
func Load(configPath string) (*Config, []string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewError(errors.CategoryNotFound, "configuration file not found").
				WithContext("path", configPath).
				UserAction().
				Build()
		}
		return nil, nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML content after expanding ${VAR} references.
func Parse(data []byte) (*Config, []string, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Build()
	}

	res, err := NormalizeConfig(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, res.Warnings, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, res.Warnings, err
	}
	return &cfg, res.Warnings, nil
}

// Init writes an example configuration mirroring the stock web app layout.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Example()
	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	header := "# assetpipe configuration\n# ${VAR} references are expanded from the environment.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}

// Example returns a fully defaulted configuration for a src/index.js app.
func Example() *Config {
	cfg := &Config{
		Entry:      "./src/index.js",
		SourceRoot: ".",
		Mode:       ModeProduction,
		Env:        EnvConfig{Allow: []string{"NODE_ENV"}, Files: []string{".env"}},
		Cache:      CacheConfig{Enabled: true},
	}
	_ = applyDefaults(cfg)
	return cfg
}

// Default returns a defaulted configuration for entry without reading a file.
func Default(entry string, mode Mode) (*Config, error) {
	cfg := &Config{Entry: entry, Mode: mode}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) error {
	return NewDefaultApplier().ApplyDefaults(cfg)
}
