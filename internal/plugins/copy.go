package plugins

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// copyPlugin copies a static directory verbatim into the output.
type copyPlugin struct {
	from string // relative to the source root
	to   string // output relative
}

func newCopy(opts config.Options, _ *config.Config, _ Deps) (Plugin, error) {
	from := opts.String("from", "")
	if from == "" {
		return nil, errors.ConfigError("copy plugin requires from").Build()
	}
	to := path.Clean(opts.String("to", "."))
	if !filepath.IsLocal(filepath.FromSlash(to)) && to != "." {
		return nil, errors.ConfigError("copy destination must stay inside the output directory").
			WithContext("to", to).
			Build()
	}
	return &copyPlugin{from: from, to: to}, nil
}

func (*copyPlugin) Name() string { return config.PluginCopy }
func (*copyPlugin) Phase() Phase { return PhasePost }

func (p *copyPlugin) PostBuild(ctx context.Context, env *Env) error {
	root := p.from
	if !filepath.IsAbs(root) {
		root = filepath.Join(env.Build.SourceRoot, filepath.FromSlash(root))
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		observability.WarnContext(ctx, "Copy source missing, skipping", logfields.Path(root))
		return nil
	}

	copied := 0
	err = filepath.WalkDir(root, func(p0 string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p0)
		if err != nil {
			return err
		}
		dest := path.Join(p.to, filepath.ToSlash(rel))
		data, err := os.ReadFile(p0)
		if err != nil {
			return err
		}
		// A module rule may already have emitted the same file here.
		if _, owned := env.Emitter.Manifest().Owner(dest); owned {
			if existing, err := env.Output.ReadFile(dest); err == nil && bytes.Equal(existing, data) {
				return nil
			}
		}
		a := &emit.Artifact{
			Name:     dest,
			Kind:     manifest.KindCopy,
			Content:  data,
			Template: dest,
		}
		if err := env.Artifacts.Emit(config.PluginCopy, a); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		if errors.IsClassified(err) {
			return err
		}
		return errors.WrapError(err, errors.CategoryFileSystem, "copy static files").
			WithContext("path", root).
			Build()
	}
	observability.DebugContext(ctx, "Copied static files", logfields.Path(p.to), logfields.Count(copied))
	return nil
}
