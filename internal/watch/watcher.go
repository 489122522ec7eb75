// Package watch rebuilds when files under the source root change.
//
// Two change sources are supported: filesystem notifications (fsnotify) and,
// when a poll interval is configured, a periodic tree fingerprint scheduled
// with gocron. Both feed the same debounced trigger, and builds never overlap:
// a change seen while a build is running queues exactly one follow-up build.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// BuildFunc runs one build. Errors are logged; watching continues.
type BuildFunc func(ctx context.Context) error

// DefaultIgnore lists paths that never trigger a rebuild.
var DefaultIgnore = []string{
	".git/**",
	"node_modules/**",
	".assetpipe/**",
	"**/*~",
	"**/.#*",
	"**/*.swp",
}

// Options configures a Watcher.
type Options struct {
	Root     string        // directory to watch
	Ignore   []string      // doublestar patterns relative to Root
	Debounce time.Duration // quiet window before a rebuild
	Poll     time.Duration // non-zero selects polling instead of notifications
}

// Watcher runs a build on start and again after every debounced change.
type Watcher struct {
	opts    Options
	build   BuildFunc
	trigger chan struct{}

	mu     sync.Mutex
	builds int
}

// New validates opts. Ignore patterns are checked with doublestar.
func New(opts Options, build BuildFunc) (*Watcher, error) {
	if build == nil {
		return nil, errors.ValidationError("build function is required").Build()
	}
	if opts.Root == "" {
		return nil, errors.ValidationError("watch root is required").Build()
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "resolve watch root").Build()
	}
	opts.Root = abs
	for _, p := range opts.Ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.ConfigError("invalid watch ignore pattern").WithContext("pattern", p).Build()
		}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	return &Watcher{opts: opts, build: build, trigger: make(chan struct{}, 1)}, nil
}

// Builds returns how many builds have run.
func (w *Watcher) Builds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.builds
}

// Trigger requests a rebuild. Requests made while one is pending coalesce.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Ignored reports whether rel (slash separated, relative to Root) is excluded.
func (w *Watcher) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range w.opts.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		// A pattern naming a directory tree also covers the directory itself.
		if strings.HasSuffix(p, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(p, "/**"), rel); ok {
				return true
			}
		}
	}
	return false
}

// Run builds once, then watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.runBuild(ctx)

	stop, err := w.startSource(ctx)
	if err != nil {
		return err
	}
	defer stop()

	mode := "notify"
	if w.opts.Poll > 0 {
		mode = "poll"
	}
	slog.Info("Watching for changes", logfields.Path(w.opts.Root), slog.String("mode", mode),
		logfields.DurationMS(float64(w.opts.Debounce.Milliseconds())))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.trigger:
			timer.Reset(w.opts.Debounce)
		case <-timer.C:
			w.runBuild(ctx)
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context) {
	w.mu.Lock()
	w.builds++
	n := w.builds
	w.mu.Unlock()

	start := time.Now()
	if err := w.build(ctx); err != nil {
		slog.Error("Watch build failed", slog.Int("build", n), logfields.Error(err))
		return
	}
	slog.Info("Watch build finished", slog.Int("build", n),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
}

func (w *Watcher) startSource(ctx context.Context) (func(), error) {
	if w.opts.Poll > 0 {
		return w.startPolling()
	}
	return w.startNotify(ctx)
}

func (w *Watcher) startNotify(ctx context.Context) (func(), error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create file watcher").Build()
	}
	if err := w.addTree(fw, w.opts.Root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				w.handleEvent(fw, ev)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Error("File watcher error", logfields.Error(err))
			}
		}
	}()
	return func() {
		if err := fw.Close(); err != nil {
			slog.Error("Error closing file watcher", logfields.Error(err))
		}
		<-done
	}, nil
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.opts.Root, ev.Name)
	if err != nil || w.Ignored(rel) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if addErr := w.addTree(fw, ev.Name); addErr != nil {
				slog.Warn("Cannot watch new directory", logfields.Path(ev.Name), logfields.Error(addErr))
			}
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	slog.Debug("Change detected", logfields.Path(filepath.ToSlash(rel)), slog.String("op", ev.Op.String()))
	w.Trigger()
}

// addTree registers dir and every non-ignored directory below it. fsnotify
// does not watch recursively.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.opts.Root, p); relErr == nil && rel != "." && w.Ignored(rel) {
			return filepath.SkipDir
		}
		if addErr := fw.Add(p); addErr != nil {
			return errors.WrapError(addErr, errors.CategoryFileSystem, "failed to watch directory").
				WithContext("path", p).
				Build()
		}
		return nil
	})
}

func (w *Watcher) startPolling() (func(), error) {
	last, err := w.Fingerprint()
	if err != nil {
		return nil, err
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to create gocron scheduler").Build()
	}

	var mu sync.Mutex
	poll := func() {
		fp, fpErr := w.Fingerprint()
		if fpErr != nil {
			slog.Warn("Poll failed", logfields.Error(fpErr))
			return
		}
		mu.Lock()
		changed := fp != last
		last = fp
		mu.Unlock()
		if changed {
			slog.Debug("Change detected by poll")
			w.Trigger()
		}
	}
	if _, err := s.NewJob(
		gocron.DurationJob(w.opts.Poll),
		gocron.NewTask(poll),
		gocron.WithName("watch-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to schedule poll job").Build()
	}
	s.Start()
	return func() {
		if err := s.Shutdown(); err != nil {
			slog.Error("Error stopping poll scheduler", logfields.Error(err))
		}
	}, nil
}
