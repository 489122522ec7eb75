package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Poll string `help:"Poll at this interval instead of using filesystem notifications (e.g. 2s)"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, baseDir, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if w.Poll != "" {
		cfg.Watch.PollInterval = w.Poll
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(cfg, baseDir, root.metricsFile(cfg, baseDir))
	if err != nil {
		return err
	}
	defer s.close()

	sourceRoot := cfg.SourceRoot
	if !filepath.IsAbs(sourceRoot) {
		sourceRoot = filepath.Join(baseDir, sourceRoot)
	}
	watcher, err := watch.New(watch.Options{
		Root:     sourceRoot,
		Ignore:   watchIgnores(cfg, baseDir, sourceRoot),
		Debounce: cfg.Watch.DebounceDuration(),
		Poll:     cfg.Watch.PollDuration(),
	}, func(ctx context.Context) error {
		report, err := s.build(ctx)
		if report != nil {
			fmt.Println(report.Summary())
		}
		return err
	})
	if err != nil {
		return err
	}

	err = watcher.Run(ctx)
	slog.Info("Watch stopped", slog.Int("builds", watcher.Builds()))
	return err
}

// watchIgnores keeps the output directory, its staging copy, its lock file
// and the transform cache from retriggering builds.
func watchIgnores(cfg *config.Config, baseDir, sourceRoot string) []string {
	ignores := append([]string(nil), watch.DefaultIgnore...)
	rel := func(p string) (string, bool) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		r, err := filepath.Rel(sourceRoot, p)
		if err != nil || r == "." || strings.HasPrefix(r, "..") {
			return "", false
		}
		return filepath.ToSlash(r), true
	}
	out := cfg.Output.Directory
	for _, dir := range []string{out, out + "_stage", out + ".prev"} {
		if r, ok := rel(dir); ok {
			ignores = append(ignores, r+"/**")
		}
	}
	for _, file := range []string{out + ".lock", cfg.Cache.Path} {
		if r, ok := rel(file); ok {
			ignores = append(ignores, r, r+"-*")
		}
	}
	return ignores
}
