package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// problems collects every validation failure so a bad file is reported in one pass.
type problems []string

func (p *problems) check(ok bool, field, format string, args ...any) {
	if ok {
		return
	}
	*p = append(*p, field+": "+fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return errors.ValidationError(strings.Join(p, "; ")).
		WithContext("problems", len(p)).
		Build()
}

// ValidateConfig checks a defaulted configuration and reports every problem at once.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.ValidationError("configuration is nil").Build()
	}
	var p problems
	for _, validate := range []func(*Config, *problems){
		validateCore,
		validateOutput,
		validateRules,
		validatePlugins,
		validateRuntime,
	} {
		validate(cfg, &p)
	}
	return p.err()
}

func validateCore(cfg *Config, p *problems) {
	p.check(cfg.Entry != "", "entry", "entry module must be set")
	p.check(slices.Contains([]Mode{ModeDevelopment, ModeProduction}, cfg.Mode), "mode",
		"must be %q or %q, got %q", ModeDevelopment, ModeProduction, cfg.Mode)
	for name := range cfg.Resolve.Alias {
		p.check(name != "", "resolve.alias", "alias name must not be empty")
	}
	for _, name := range cfg.Env.Allow {
		p.check(envNamePattern.MatchString(name), "env.allow", "invalid environment variable name %q", name)
	}
}

func validateOutput(cfg *Config, p *problems) {
	o := cfg.Output
	dir := filepath.Clean(o.Directory)
	p.check(o.Directory != "", "output.directory", "output directory must be set")
	p.check(dir != "." && dir != string(filepath.Separator), "output.directory",
		"output directory must not be the working directory or filesystem root")
	p.check(o.HashLength >= 4 && o.HashLength <= 64, "output.hash_length", "hash length must be between 4 and 64")
	p.check(o.Filename != "", "output.filename", "bundle filename must be set")
	p.check(o.CSSFilename != "", "output.css_filename", "stylesheet filename must be set")
}

func validateRules(cfg *Config, p *problems) {
	seen := make(map[string]bool, len(cfg.Rules))
	for i, r := range cfg.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		p.check(!seen[r.Name], field+".name", "duplicate rule name %q", r.Name)
		p.check(r.Test != "", field+".test", "test pattern must be set")
		p.check(r.Use != "", field+".use", "transform reference must be set")
		seen[r.Name] = true
		if r.Test != "" {
			_, err := regexp.Compile(r.Test)
			p.check(err == nil, field+".test", "invalid pattern: %v", err)
		}
		if r.Exclude != "" {
			_, err := regexp.Compile(r.Exclude)
			p.check(err == nil, field+".exclude", "invalid pattern: %v", err)
		}
	}
}

func validatePlugins(cfg *Config, p *problems) {
	known := map[string]bool{
		PluginClean: true, PluginEnv: true, PluginCSSExtract: true, PluginJSBundle: true,
		PluginHTML: true, PluginMinify: true, PluginCopy: true, PluginNotify: true,
	}
	seen := make(map[string]bool, len(cfg.Plugins))
	for i, pl := range cfg.Plugins {
		field := fmt.Sprintf("plugins[%d].name", i)
		p.check(known[pl.Name], field, "unknown plugin %q", pl.Name)
		p.check(!seen[pl.Name], field, "plugin %q listed twice", pl.Name)
		seen[pl.Name] = true
	}
	if seen[PluginNotify] {
		p.check(cfg.Events.NATSURL != "", "events.nats_url", "notify plugin requires events.nats_url")
	}
}

func validateRuntime(cfg *Config, p *problems) {
	_, err := time.ParseDuration(cfg.Watch.Debounce)
	p.check(err == nil, "watch.debounce", "%v", err)
	if cfg.Watch.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Watch.PollInterval)
		p.check(err == nil && d > 0, "watch.poll_interval", "poll interval must be a positive duration")
	}
	p.check(!cfg.Cache.Enabled || cfg.Cache.Path != "", "cache.path",
		"cache path must be set when the cache is enabled")
}

// DebounceDuration returns the parsed watch debounce.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}

// PollDuration returns the polling interval, or zero when polling is off.
func (w WatchConfig) PollDuration() time.Duration {
	if w.PollInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(w.PollInterval)
	if err != nil {
		return 0
	}
	return d
}
