package plugins

import (
	"bytes"
	"context"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
)

var (
	cssImportStmt = regexp.MustCompile(`(?m)^[ \t]*@import[^;]*;[ \t]*\n?`)
	cssURLRef     = regexp.MustCompile(`url\(\s*(["']?)([^"')]+?)(["']?)\s*\)`)
)

// cssExtractPlugin concatenates every style output into one stylesheet.
type cssExtractPlugin struct {
	name     string
	template string
}

func newCSSExtract(opts config.Options, cfg *config.Config, _ Deps) (Plugin, error) {
	return &cssExtractPlugin{
		name:     opts.String("name", "main"),
		template: opts.String("filename", cfg.Output.CSSFilename),
	}, nil
}

func (*cssExtractPlugin) Name() string { return config.PluginCSSExtract }
func (*cssExtractPlugin) Phase() Phase { return PhaseBuild }

// Seal walks the graph in dependency order so an @import-ed sheet precedes
// its importer, then emits the combined sheet.
func (p *cssExtractPlugin) Seal(ctx context.Context, env *Env) error {
	cssDir := path.Dir(p.template)
	if strings.Contains(cssDir, "[") {
		cssDir = ""
	}

	var buf bytes.Buffer
	count := 0
	for _, mod := range env.Graph.DependencyOrder() {
		out, ok := env.Results.Get(mod.ID)
		if !ok || out.Kind != transform.KindStyle {
			continue
		}
		body := cssImportStmt.ReplaceAll(out.Content, nil)
		body = rewriteURLs(env, mod, body, cssDir)
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.Write(body)
		count++
	}
	if count == 0 {
		return nil
	}

	a := &emit.Artifact{
		Name:     p.name + ".css",
		Kind:     manifest.KindStyle,
		Content:  buf.Bytes(),
		Template: p.template,
	}
	if err := env.Artifacts.Emit(config.PluginCSSExtract, a); err != nil {
		return err
	}
	observability.DebugContext(ctx, "Extracted stylesheet",
		logfields.Artifact(a.Name), logfields.Path(a.Path), logfields.Count(count))
	return nil
}

// rewriteURLs points url() references at emitted assets. References to
// emitted files become relative to the stylesheet's directory when the
// public path is relative and the asset's rule kept it; inlined assets
// become their data URI.
func rewriteURLs(env *Env, mod *discovery.Module, css []byte, cssDir string) []byte {
	return cssURLRef.ReplaceAllFunc(css, func(ref []byte) []byte {
		m := cssURLRef.FindSubmatch(ref)
		spec := string(m[2])
		if discovery.IsExternalURL(spec) {
			return ref
		}
		id, ok := mod.ImportID(discovery.StripQuery(spec))
		if !ok {
			return ref
		}
		entry, ok := env.Emitter.Manifest().Get(id)
		if !ok {
			return ref
		}
		target := entry.PublicRef
		if !entry.Inline && entry.Path != "" && isRelativeRef(env.Build.PublicPath) &&
			entry.PublicRef == env.Build.PublicRef(entry.Path) {
			if rel, err := filepath.Rel(filepath.FromSlash(cssDir), filepath.FromSlash(entry.Path)); err == nil {
				target = filepath.ToSlash(rel)
			}
		}
		return []byte(`url("` + target + `")`)
	})
}

func isRelativeRef(publicPath string) bool {
	return !strings.HasPrefix(publicPath, "/") && !strings.Contains(publicPath, "://")
}
