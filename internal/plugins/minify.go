package plugins

import (
	"context"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/minify"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// minifyPlugin compresses emitted scripts and stylesheets in production.
// Paths and hashes are kept, so references already rendered stay valid.
type minifyPlugin struct {
	enabled *bool
	minify  func([]byte, minify.Kind) ([]byte, error)
}

func newMinify(opts config.Options, _ *config.Config, deps Deps) (Plugin, error) {
	p := &minifyPlugin{minify: deps.Minifier}
	if opts.Has("enabled") {
		v := opts.Bool("enabled", true)
		p.enabled = &v
	}
	return p, nil
}

func (*minifyPlugin) Name() string { return config.PluginMinify }
func (*minifyPlugin) Phase() Phase { return PhasePost }

func (p *minifyPlugin) PostBuild(ctx context.Context, env *Env) error {
	enabled := env.Build.Production()
	if p.enabled != nil {
		enabled = *p.enabled
	}
	if !enabled {
		return nil
	}
	for _, a := range env.Artifacts.List() {
		if a.Inline || a.Path == "" || (a.Kind != manifest.KindScript && a.Kind != manifest.KindStyle) {
			continue
		}
		kind, ok := minify.KindForPath(a.Path)
		if !ok {
			continue
		}
		before := len(a.Content)
		out, err := p.minify(a.Content, kind)
		if err != nil {
			warn := errors.MinifyFailure(a.Name, err).WithContext("path", a.Path).Build()
			observability.WarnContext(ctx, "Minification failed, keeping original content",
				logfields.Artifact(a.Name), logfields.Error(warn))
			env.Warn(warn)
			continue
		}
		if err := env.Artifacts.Rewrite(config.PluginMinify, a.Name, out); err != nil {
			return err
		}
		observability.DebugContext(ctx, "Minified artifact", logfields.Artifact(a.Name),
			logfields.Size(len(out)), logfields.Count(before-len(out)))
	}
	return nil
}
