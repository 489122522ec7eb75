package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// Global is passed to every subcommand's Run.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path" default:"assetpipe.yaml"`
	Verbose     bool             `short:"v" help:"Enable verbose logging"`
	Mode        string           `short:"m" help:"Override the configured mode (development|production)"`
	MetricsFile string           `name:"metrics-file" help:"Write Prometheus textfile metrics after each build"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" help:"Run one build"`
	Clean    CleanCmd    `cmd:"" help:"Remove emitted files from the output directory"`
	Watch    WatchCmd    `cmd:"" help:"Build, then rebuild on every source change"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Manifest ManifestCmd `cmd:"" help:"Print or diff a build manifest"`
}

// AfterApply runs after flag parsing; sets up logging once. The configured
// format and level replace this logger when a config file is loaded.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = observability.NewLogger(os.Stderr, string(config.LogFormatText), observability.ParseLevel("", c.Verbose))
	slog.SetDefault(g.Logger)
	return nil
}

// loadConfig reads the configuration file, applies the --mode override and
// reconfigures logging. The returned directory anchors relative paths.
func (c *CLI) loadConfig(g *Global) (*config.Config, string, error) {
	cfg, warnings, err := config.Load(c.Config)
	if err != nil {
		return nil, "", err
	}
	if c.Mode != "" {
		mode, modeErr := config.ParseMode(c.Mode)
		if modeErr != nil {
			return nil, "", modeErr
		}
		cfg.Mode = mode
	}

	g.Logger = observability.NewLogger(os.Stderr, string(cfg.Logging.Format), observability.ParseLevel(string(cfg.Logging.Level), c.Verbose))
	slog.SetDefault(g.Logger)
	for _, w := range warnings {
		slog.Warn("Configuration normalized", slog.String("detail", w))
	}

	abs, err := filepath.Abs(c.Config)
	if err != nil {
		return nil, "", errors.WrapError(err, errors.CategoryFileSystem, "resolve config path").Build()
	}
	return cfg, filepath.Dir(abs), nil
}

// metricsFile picks the textfile path: the flag wins over metrics.textfile,
// which is relative to the config file.
func (c *CLI) metricsFile(cfg *config.Config, baseDir string) string {
	if c.MetricsFile != "" {
		return c.MetricsFile
	}
	p := cfg.Metrics.Textfile
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
