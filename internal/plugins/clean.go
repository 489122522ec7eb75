package plugins

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

type cleanPlugin struct {
	patterns []string
}

func newClean(opts config.Options, _ *config.Config, _ Deps) (Plugin, error) {
	patterns := opts.Strings("patterns")
	if len(patterns) == 0 {
		patterns = append([]string(nil), config.DefaultCleanPatterns...)
	}
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}
	return &cleanPlugin{patterns: patterns}, nil
}

func (*cleanPlugin) Name() string { return config.PluginClean }
func (*cleanPlugin) Phase() Phase { return PhasePre }

func (c *cleanPlugin) PreBuild(ctx context.Context, env *Env) error {
	removed, err := Clean(env.StageDir, c.patterns)
	if err != nil {
		return err
	}
	observability.DebugContext(ctx, "Cleaned previous output", logfields.Count(len(removed)))
	return nil
}

// ValidatePatterns rejects glob patterns that are malformed or could reach
// outside the directory being cleaned.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid clean pattern %q", p)
		}
		if strings.HasPrefix(p, "/") || p == ".." || strings.HasPrefix(p, "../") || strings.Contains(p, "/../") {
			return fmt.Errorf("clean pattern %q escapes the output directory", p)
		}
	}
	return nil
}

// Clean deletes every regular file under dir matching one of patterns and
// prunes directories the deletion left empty. A missing dir is already
// clean. Running it twice in a row leaves the same state as running it once.
func Clean(dir string, patterns []string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	if err := ValidatePatterns(patterns); err != nil {
		return nil, errors.CleanupFailure(dir, err).Build()
	}

	fsys := os.DirFS(dir)
	matched := map[string]struct{}{}
	for _, pattern := range patterns {
		hits, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, errors.CleanupFailure(dir, err).WithContext("pattern", pattern).Build()
		}
		for _, h := range hits {
			info, err := fs.Stat(fsys, h)
			if err != nil || info.IsDir() {
				continue
			}
			matched[h] = struct{}{}
		}
	}

	removed := make([]string, 0, len(matched))
	for rel := range matched {
		removed = append(removed, rel)
	}
	sort.Strings(removed)

	parents := map[string]struct{}{}
	for _, rel := range removed {
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
			return nil, errors.CleanupFailure(filepath.Join(dir, rel), err).Build()
		}
		for d := path.Dir(rel); d != "." && d != "/"; d = path.Dir(d) {
			parents[d] = struct{}{}
		}
	}

	// Deepest first so nested empty directories collapse.
	dirs := make([]string, 0, len(parents))
	for d := range parents {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		full := filepath.Join(dir, filepath.FromSlash(d))
		entries, err := os.ReadDir(full)
		if err == nil && len(entries) == 0 {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return nil, errors.CleanupFailure(full, err).Build()
			}
		}
	}
	return removed, nil
}
