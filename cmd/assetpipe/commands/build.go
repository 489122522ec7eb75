package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	NoCache bool `name:"no-cache" help:"Disable the transform cache for this run"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, baseDir, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if b.NoCache {
		cfg.Cache.Enabled = false
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(cfg, baseDir, root.metricsFile(cfg, baseDir))
	if err != nil {
		return err
	}
	defer s.close()

	report, err := s.build(ctx)
	if report != nil {
		fmt.Println(report.Summary())
		for _, w := range report.Warnings {
			fmt.Printf("warning: %v\n", w)
		}
	}
	return err
}
