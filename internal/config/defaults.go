package config

import "fmt"

// Plugin names understood by the orchestrator.
const (
	PluginClean      = "clean"
	PluginEnv        = "env"
	PluginCSSExtract = "css-extract"
	PluginJSBundle   = "js-bundle"
	PluginHTML       = "html"
	PluginMinify     = "minify"
	PluginCopy       = "copy"
	PluginNotify     = "notify"
)

// Default values.
const (
	DefaultOutputDir      = "dist"
	DefaultJSFilename     = "main.[hash].js"
	DefaultCSSFilename    = "assets/[name].[hash].css"
	DefaultHashLength     = 20
	DefaultInlineLimit    = 10000
	DefaultDebounce       = "300ms"
	DefaultCachePath      = ".assetpipe/cache.db"
	DefaultEventsSubject  = "assetpipe.build"
	DefaultHTMLFilename   = "index.html"
	DefaultManifestName   = "manifest.json"
	defaultDevPublicPath  = "/"
	defaultProdPublicPath = "./"
)

// DefaultCleanPatterns target the layout this tool emits.
var DefaultCleanPatterns = []string{"*.js", "*.css", "assets/**", "index.html", "manifest.json"}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&coreDefaultApplier{},
			&outputDefaultApplier{},
			&ruleDefaultApplier{},
			&pluginDefaultApplier{},
			&runtimeDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

type coreDefaultApplier struct{}

func (coreDefaultApplier) Domain() string { return "core" }

func (coreDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Mode == "" {
		cfg.Mode = ModeProduction
	}
	if cfg.SourceRoot == "" {
		cfg.SourceRoot = "."
	}
	if len(cfg.Resolve.Extensions) == 0 {
		cfg.Resolve.Extensions = []string{".js", ".mjs"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	return nil
}

type outputDefaultApplier struct{}

func (outputDefaultApplier) Domain() string { return "output" }

func (outputDefaultApplier) ApplyDefaults(cfg *Config) error {
	o := &cfg.Output
	if o.Directory == "" {
		o.Directory = DefaultOutputDir
	}
	if o.Filename == "" {
		o.Filename = DefaultJSFilename
	}
	if o.CSSFilename == "" {
		o.CSSFilename = DefaultCSSFilename
	}
	if o.HashLength == 0 {
		o.HashLength = DefaultHashLength
	}
	if o.PublicPath.Development == "" {
		o.PublicPath.Development = defaultDevPublicPath
	}
	if o.PublicPath.Production == "" {
		o.PublicPath.Production = defaultProdPublicPath
	}
	return nil
}

type ruleDefaultApplier struct{}

func (ruleDefaultApplier) Domain() string { return "rules" }

func (ruleDefaultApplier) ApplyDefaults(cfg *Config) error {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].Name == "" {
			cfg.Rules[i].Name = fmt.Sprintf("rule-%d", i)
		}
	}
	return nil
}

// DefaultRules is the stock rule table: scripts, stylesheets, stylus,
// images, fonts and markdown. Order matters: first match wins.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Name:    "scripts",
			Test:    `\.m?js$`,
			Exclude: `node_modules`,
			Use:     "script",
			Options: Options{"target": "es2015"},
		},
		{
			Name: "styles",
			Test: `\.css$`,
			Use:  "style",
		},
		{
			Name: "stylus",
			Test: `\.styl$`,
			Use:  "command",
			Options: Options{
				"command": []any{"stylus", "--print"},
				"then":    "style",
			},
		},
		{
			Name: "images",
			Test: `(?i)\.(png|jpe?g|gif|svg)$`,
			Use:  "asset",
			Options: Options{
				"type":     "auto",
				"limit":    DefaultInlineLimit,
				"filename": "assets/images/[hash][ext]",
			},
		},
		{
			Name: "fonts",
			Test: `\.(woff|woff2)$`,
			Use:  "asset",
			Options: Options{
				"type":        "auto",
				"limit":       DefaultInlineLimit,
				"mimetype":    "application/font-woff",
				"filename":    "assets/fonts/[name].[hash][ext]",
				"public_path": "./assets/fonts/",
			},
		},
		{
			Name: "markdown",
			Test: `\.md$`,
			Use:  "markdown",
		},
	}
}

type pluginDefaultApplier struct{}

func (pluginDefaultApplier) Domain() string { return "plugins" }

func (pluginDefaultApplier) ApplyDefaults(cfg *Config) error {
	if len(cfg.Plugins) == 0 {
		cfg.Plugins = DefaultPlugins()
		if cfg.Events.NATSURL != "" {
			cfg.Plugins = append(cfg.Plugins, PluginConfig{Name: PluginNotify})
		}
	}
	return nil
}

// DefaultPlugins is the stock plugin list in execution order.
func DefaultPlugins() []PluginConfig {
	patterns := make([]any, 0, len(DefaultCleanPatterns))
	for _, p := range DefaultCleanPatterns {
		patterns = append(patterns, p)
	}
	return []PluginConfig{
		{Name: PluginClean, Options: Options{"patterns": patterns}},
		{Name: PluginEnv},
		{Name: PluginCSSExtract},
		{Name: PluginJSBundle},
		{Name: PluginHTML, Options: Options{"filename": DefaultHTMLFilename, "inject": "body"}},
		{Name: PluginMinify},
		{Name: PluginCopy, Options: Options{"from": "src/assets/images", "to": "assets/images"}},
	}
}

type runtimeDefaultApplier struct{}

func (runtimeDefaultApplier) Domain() string { return "runtime" }

func (runtimeDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultDebounce
	}
	if cfg.Events.NATSURL != "" && cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventsSubject
	}
	return nil
}
