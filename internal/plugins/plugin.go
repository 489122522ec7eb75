// Package plugins runs the three plugin phases around the transform loop.
//
// Plugins form an explicit ordered list of {phase, plugin} entries built from
// configuration. The orchestrator walks that list once per phase; nothing
// registers itself as a side effect of being imported.
package plugins

import (
	"context"
	"fmt"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/htmlgen"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/minify"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// Phase is one of the three orchestrator phases.
type Phase string

const (
	PhasePre   Phase = "pre"
	PhaseBuild Phase = "build"
	PhasePost  Phase = "post"
)

// Plugin is implemented by every plugin. The hook interfaces below decide
// what it does within its phase.
type Plugin interface {
	Name() string
	Phase() Phase
}

// PreBuilder runs before any module is transformed.
type PreBuilder interface {
	PreBuild(ctx context.Context, env *Env) error
}

// SourceHook rewrites module source before its transform runs. It is called
// from transform workers and must be safe for concurrent use.
type SourceHook interface {
	TransformSource(env *Env, mod *discovery.Module, content []byte) ([]byte, error)
}

// Sealer runs once every module has been transformed, still in the build phase.
type Sealer interface {
	Seal(ctx context.Context, env *Env) error
}

// PostBuilder runs after the build phase has sealed.
type PostBuilder interface {
	PostBuild(ctx context.Context, env *Env) error
}

// Completer is told about a build whose output has been published.
type Completer interface {
	Complete(ctx context.Context, env *Env, snap manifest.Snapshot) error
}

// Env is what plugins see of the running build.
type Env struct {
	Build     *buildctx.Context
	Config    *config.Config
	Graph     *discovery.Graph
	StageDir  string
	Output    emit.Writer
	Emitter   *emit.Emitter
	Artifacts *ArtifactSet
	Results   *Results

	mu       sync.Mutex
	warnings []error
}

// Warn records a non-fatal problem for the build report.
func (e *Env) Warn(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, err)
}

// Warnings returns recorded warnings in order.
func (e *Env) Warnings() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.warnings...)
}

// Entry tags a plugin with the phase it runs in.
type Entry struct {
	Phase  Phase
	Plugin Plugin
}

// Deps are the collaborators plugins are bound to.
type Deps struct {
	Renderer  htmlgen.Renderer
	Minifier  func([]byte, minify.Kind) ([]byte, error)
	Publisher events.Publisher
}

type factory func(opts config.Options, cfg *config.Config, deps Deps) (Plugin, error)

var factories = map[string]factory{
	config.PluginClean:      newClean,
	config.PluginEnv:        newEnv,
	config.PluginCSSExtract: newCSSExtract,
	config.PluginJSBundle:   newJSBundle,
	config.PluginHTML:       newHTML,
	config.PluginMinify:     newMinify,
	config.PluginCopy:       newCopy,
	config.PluginNotify:     newNotify,
}

// Orchestrator executes plugin phases in declared order.
type Orchestrator struct {
	entries []Entry
}

// New builds the orchestrator from the configured plugin list.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if deps.Renderer == nil {
		deps.Renderer = htmlgen.TemplateRenderer{}
	}
	if deps.Minifier == nil {
		deps.Minifier = minify.Minify
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	entries := make([]Entry, 0, len(cfg.Plugins))
	for _, pc := range cfg.Plugins {
		f, ok := factories[pc.Name]
		if !ok {
			return nil, errors.ConfigError(fmt.Sprintf("unknown plugin %q", pc.Name)).Build()
		}
		p, err := f(pc.Options, cfg, deps)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "invalid plugin options").
				WithContext("plugin", pc.Name).
				Build()
		}
		entries = append(entries, Entry{Phase: p.Phase(), Plugin: p})
	}
	return NewOrchestrator(entries...), nil
}

// NewOrchestrator wraps an explicit entry list.
func NewOrchestrator(entries ...Entry) *Orchestrator {
	return &Orchestrator{entries: append([]Entry(nil), entries...)}
}

// Entries returns the ordered entry list.
func (o *Orchestrator) Entries() []Entry {
	return append([]Entry(nil), o.entries...)
}

func (o *Orchestrator) inPhase(p Phase) []Plugin {
	var out []Plugin
	for _, e := range o.entries {
		if e.Phase == p {
			out = append(out, e.Plugin)
		}
	}
	return out
}

// RunPre runs pre-build plugins. It must complete before any emitter write.
func (o *Orchestrator) RunPre(ctx context.Context, env *Env) error {
	env.Artifacts.SetPhase(PhasePre)
	for _, p := range o.inPhase(PhasePre) {
		h, ok := p.(PreBuilder)
		if !ok {
			continue
		}
		pctx := observability.WithPlugin(ctx, string(PhasePre), p.Name())
		observability.DebugContext(pctx, "Running plugin")
		if err := h.PreBuild(pctx, env); err != nil {
			return err
		}
	}
	return nil
}

// BeginBuild opens the build phase for the transform loop.
func (o *Orchestrator) BeginBuild(env *Env) {
	env.Artifacts.SetPhase(PhaseBuild)
}

// TransformSource applies build-phase source hooks in order.
func (o *Orchestrator) TransformSource(env *Env, mod *discovery.Module, content []byte) ([]byte, error) {
	for _, p := range o.inPhase(PhaseBuild) {
		h, ok := p.(SourceHook)
		if !ok {
			continue
		}
		out, err := h.TransformSource(env, mod, content)
		if err != nil {
			return nil, errors.TransformFailure(mod.ID, err).
				WithContext("plugin", p.Name()).
				Build()
		}
		content = out
	}
	return content, nil
}

// SealBuild runs build-phase sealers once all transforms are done.
func (o *Orchestrator) SealBuild(ctx context.Context, env *Env) error {
	for _, p := range o.inPhase(PhaseBuild) {
		h, ok := p.(Sealer)
		if !ok {
			continue
		}
		pctx := observability.WithPlugin(ctx, string(PhaseBuild), p.Name())
		if err := h.Seal(pctx, env); err != nil {
			return err
		}
	}
	return nil
}

// RunPost runs post-build plugins.
func (o *Orchestrator) RunPost(ctx context.Context, env *Env) error {
	env.Artifacts.SetPhase(PhasePost)
	for _, p := range o.inPhase(PhasePost) {
		h, ok := p.(PostBuilder)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		pctx := observability.WithPlugin(ctx, string(PhasePost), p.Name())
		observability.DebugContext(pctx, "Running plugin")
		if err := h.PostBuild(pctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Complete notifies completers after the output has been promoted. Their
// errors are warnings.
func (o *Orchestrator) Complete(ctx context.Context, env *Env, snap manifest.Snapshot) {
	for _, e := range o.entries {
		h, ok := e.Plugin.(Completer)
		if !ok {
			continue
		}
		if err := h.Complete(ctx, env, snap); err != nil {
			observability.WarnContext(ctx, "Plugin completion hook failed",
				logfields.Plugin(e.Plugin.Name()), logfields.Error(err))
			env.Warn(err)
		}
	}
}
