package plugins

import (
	"context"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/htmlgen"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// htmlPlugin renders the entry page with references from the manifest.
type htmlPlugin struct {
	filename string
	template string // path relative to the source root; empty for the built-in page
	title    string
	inject   htmlgen.Inject
	renderer htmlgen.Renderer
}

func newHTML(opts config.Options, _ *config.Config, deps Deps) (Plugin, error) {
	inject := htmlgen.InjectBody
	switch v := opts["inject"].(type) {
	case bool:
		if !v {
			inject = htmlgen.InjectNone
		}
	case string:
		switch htmlgen.Inject(v) {
		case htmlgen.InjectHead, htmlgen.InjectNone:
			inject = htmlgen.Inject(v)
		}
	}
	return &htmlPlugin{
		filename: opts.String("filename", config.DefaultHTMLFilename),
		template: opts.String("template", ""),
		title:    opts.String("title", ""),
		inject:   inject,
		renderer: deps.Renderer,
	}, nil
}

func (*htmlPlugin) Name() string { return config.PluginHTML }
func (*htmlPlugin) Phase() Phase { return PhasePost }

// PostBuild finalizes the manifest, so references are taken from a frozen
// set, then renders and emits the page.
func (p *htmlPlugin) PostBuild(ctx context.Context, env *Env) error {
	m := env.Emitter.Manifest()
	m.Finalize()

	refs := htmlgen.Refs{
		Title:  p.title,
		Inject: p.inject,
		Mode:   string(env.Build.Mode),
		Env:    map[string]string{},
	}
	for _, n := range m.ByKind(manifest.KindStyle) {
		if n.Entry.Path != "" {
			refs.Styles = append(refs.Styles, n.Entry.PublicRef)
		}
	}
	for _, n := range m.ByKind(manifest.KindScript) {
		if n.Entry.Path != "" {
			refs.Scripts = append(refs.Scripts, n.Entry.PublicRef)
		}
	}
	for _, name := range env.Build.EnvNames() {
		v, _ := env.Build.Env(name)
		refs.Env[name] = v
	}

	source := ""
	if p.template != "" {
		tplPath := p.template
		if !filepath.IsAbs(tplPath) {
			tplPath = filepath.Join(env.Build.SourceRoot, filepath.FromSlash(tplPath))
		}
		data, err := os.ReadFile(tplPath)
		if err != nil {
			return errors.TemplateRenderFailure(p.template, err).Build()
		}
		source = string(data)
	}

	page, err := p.renderer.Render(source, refs)
	if err != nil {
		name := p.template
		if name == "" {
			name = "default"
		}
		return errors.TemplateRenderFailure(name, err).Build()
	}

	a := &emit.Artifact{
		Name:     p.filename,
		Kind:     manifest.KindHTML,
		Content:  []byte(page),
		Template: p.filename,
	}
	if err := env.Artifacts.Emit(config.PluginHTML, a); err != nil {
		return err
	}
	observability.DebugContext(ctx, "Rendered HTML page", logfields.Path(a.Path),
		logfields.Count(len(refs.Scripts)+len(refs.Styles)))
	return nil
}
