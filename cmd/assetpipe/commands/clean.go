package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/cache"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/plugins"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct {
	Cache     bool `help:"Also clear the transform cache"`
	BreakLock bool `name:"break-lock" help:"Remove a stale output lock left by a crashed build"`
}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, baseDir, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	outputDir := cfg.Output.Directory
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(baseDir, outputDir)
	}

	if c.BreakLock {
		if err := workspace.BreakLock(outputDir); err != nil {
			return err
		}
	}
	lock, err := workspace.AcquireLock(outputDir, "clean")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	removed, err := plugins.Clean(outputDir, cleanPatterns(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d files from %s\n", len(removed), outputDir)

	if c.Cache {
		p := cfg.Cache.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		store, err := cache.Open(p)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Clear(context.Background()); err != nil {
			return err
		}
		fmt.Println("Transform cache cleared")
	}
	return nil
}

// cleanPatterns uses the configured clean plugin's patterns, falling back to
// the stock list when the plugin is absent or has none.
func cleanPatterns(cfg *config.Config) []string {
	for _, p := range cfg.Plugins {
		if p.Name == config.PluginClean {
			if patterns := p.Options.Strings("patterns"); len(patterns) > 0 {
				return patterns
			}
		}
	}
	return append([]string(nil), config.DefaultCleanPatterns...)
}
