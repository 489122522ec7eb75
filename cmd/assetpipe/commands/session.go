package commands

import (
	"context"
	"log/slog"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
	"git.home.luguber.info/inful/assetpipe/internal/cache"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/pipeline"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

// session holds what outlives a single build: the metrics registry, the
// transform cache and the event publisher. Watch mode reuses one session
// for every rebuild.
type session struct {
	cfg         *config.Config
	baseDir     string
	registry    *prom.Registry
	recorder    metrics.Recorder
	cache       *cache.SQLiteCache
	publisher   events.Publisher
	metricsFile string
}

func openSession(cfg *config.Config, baseDir, metricsFile string) (*session, error) {
	s := &session{
		cfg:         cfg,
		baseDir:     baseDir,
		recorder:    metrics.NoopRecorder{},
		publisher:   events.NoopPublisher{},
		metricsFile: metricsFile,
	}
	if metricsFile != "" {
		s.registry = prom.NewRegistry()
		s.recorder = metrics.NewPrometheusRecorder(s.registry)
	}
	if cfg.Cache.Enabled {
		p := cfg.Cache.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		c, err := cache.Open(p)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			s.close()
			return nil, err
		}
		s.publisher = pub
	}
	return s, nil
}

func (s *session) close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Warn("Failed to close transform cache", logfields.Error(err))
		}
	}
	if err := s.publisher.Close(); err != nil {
		slog.Warn("Failed to close event publisher", logfields.Error(err))
	}
}

// build runs one pipeline under the output directory lock.
func (s *session) build(ctx context.Context) (*pipeline.BuildReport, error) {
	bctx, err := buildctx.New(s.cfg, buildctx.WithBaseDir(s.baseDir))
	if err != nil {
		return nil, err
	}
	lock, err := workspace.AcquireLock(bctx.OutputDir, bctx.BuildID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			slog.Warn("Failed to release output lock", logfields.Path(lock.Path()), logfields.Error(relErr))
		}
	}()

	opts := []pipeline.Option{
		pipeline.WithRecorder(s.recorder),
		pipeline.WithPublisher(s.publisher),
	}
	if s.cache != nil {
		opts = append(opts, pipeline.WithCache(s.cache))
	}
	d, err := pipeline.New(s.cfg, bctx, opts...)
	if err != nil {
		return nil, err
	}
	report, runErr := d.Run(ctx)

	if s.registry != nil {
		if err := metrics.WriteTextfile(s.metricsFile, s.registry); err != nil {
			slog.Warn("Failed to write metrics textfile", logfields.Path(s.metricsFile), logfields.Error(err))
		}
	}
	return report, runErr
}
