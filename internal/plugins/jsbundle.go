package plugins

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
)

//go:embed runtime.js
var bundleRuntime []byte

// jsBundlePlugin links CommonJS module outputs into a single script.
type jsBundlePlugin struct {
	name     string
	template string
}

func newJSBundle(opts config.Options, cfg *config.Config, _ Deps) (Plugin, error) {
	return &jsBundlePlugin{
		name:     opts.String("name", "main"),
		template: opts.String("filename", cfg.Output.Filename),
	}, nil
}

func (*jsBundlePlugin) Name() string { return config.PluginJSBundle }
func (*jsBundlePlugin) Phase() Phase { return PhaseBuild }

func (p *jsBundlePlugin) Seal(ctx context.Context, env *Env) error {
	entry, ok := env.Graph.Get(env.Graph.Entry)
	if !ok {
		return errors.InternalError("entry module missing from graph").
			WithContext("module", env.Graph.Entry).
			Build()
	}
	if out, ok := env.Results.Get(entry.ID); !ok || out.Kind != transform.KindScript {
		return nil
	}

	content, count, err := Link(env, entry.ID)
	if err != nil {
		return err
	}
	a := &emit.Artifact{
		Name:     p.name + ".js",
		Kind:     manifest.KindScript,
		Content:  content,
		Template: p.template,
	}
	if err := env.Artifacts.Emit(config.PluginJSBundle, a); err != nil {
		return err
	}
	observability.DebugContext(ctx, "Linked script bundle",
		logfields.Artifact(a.Name), logfields.Path(a.Path), logfields.Count(count))
	return nil
}

// Link renders the bundle for entryID: the embedded runtime applied to a
// module table. Scripts contribute their code as CommonJS, stylesheets an empty object
// and assets their public reference. Modules appear in graph order.
func Link(env *Env, entryID string) ([]byte, int, error) {
	needed := requiredModules(env)

	var buf bytes.Buffer
	buf.Write(bytes.TrimRight(bundleRuntime, "\n"))
	buf.WriteString("({\n")
	count := 0
	for _, mod := range env.Graph.Modules() {
		if !needed[mod.ID] {
			continue
		}
		body, err := moduleBody(env, mod)
		if err != nil {
			return nil, 0, err
		}
		id, _ := json.Marshal(mod.ID)
		deps, err := depTable(mod)
		if err != nil {
			return nil, 0, err
		}
		if count > 0 {
			buf.WriteString(",\n")
		}
		buf.Write(id)
		buf.WriteString(": [")
		buf.Write(deps)
		buf.WriteString(", function (module, exports, require, process) {\n")
		buf.Write(body)
		if len(body) > 0 && body[len(body)-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.WriteString("}]")
		count++
	}
	entry, _ := json.Marshal(entryID)
	buf.WriteString("\n}, ")
	buf.Write(entry)
	buf.WriteString(");\n")
	return buf.Bytes(), count, nil
}

// requiredModules is the entry plus everything a script module imports,
// transitively through scripts.
func requiredModules(env *Env) map[string]bool {
	needed := map[string]bool{env.Graph.Entry: true}
	queue := []string{env.Graph.Entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		mod, ok := env.Graph.Get(id)
		if !ok {
			continue
		}
		out, ok := env.Results.Get(id)
		if !ok || out.Kind != transform.KindScript {
			continue
		}
		for _, imp := range mod.Imports {
			if !needed[imp.ID] {
				needed[imp.ID] = true
				queue = append(queue, imp.ID)
			}
		}
	}
	return needed
}

func moduleBody(env *Env, mod *discovery.Module) ([]byte, error) {
	out, ok := env.Results.Get(mod.ID)
	if !ok {
		return nil, errors.InternalError("module was not transformed").
			WithContext("module", mod.ID).
			Build()
	}
	switch out.Kind {
	case transform.KindScript:
		// Scripts no rule matched reach the bundle untransformed.
		body, err := transform.ToCommonJS(mod.ID, out.Content)
		if err != nil {
			return nil, errors.TransformFailure(mod.ID, err).Build()
		}
		return body, nil
	case transform.KindStyle:
		return []byte("module.exports = {};\n"), nil
	default:
		entry, ok := env.Emitter.Manifest().Get(mod.ID)
		if !ok {
			return nil, errors.InternalError("asset module has no manifest entry").
				WithContext("module", mod.ID).
				Build()
		}
		ref, err := json.Marshal(entry.PublicRef)
		if err != nil {
			return nil, err
		}
		return append(append([]byte("module.exports = "), ref...), ";\n"...), nil
	}
}

func depTable(mod *discovery.Module) ([]byte, error) {
	deps := make(map[string]string, len(mod.Imports))
	for _, imp := range mod.Imports {
		deps[imp.Specifier] = imp.ID
	}
	// encoding/json writes map keys sorted.
	return json.Marshal(deps)
}
