// Package pipeline drives one build from the entry module to a published
// output directory.
//
// The driver is a small state machine:
//
//	Idle -> Discovering -> Transforming -> PostProcessing -> Done
//
// with Failed reachable from every non-terminal state. Output is written to a
// staging copy of the output directory and promoted only on the way to Done,
// so a failed or canceled run leaves the previous output untouched.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/htmlgen"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/minify"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/plugins"
	"git.home.luguber.info/inful/assetpipe/internal/rules"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

// Option configures a Driver.
type Option func(*options)

type options struct {
	registry  *transform.Registry
	cache     transform.Cache
	recorder  metrics.Recorder
	publisher events.Publisher
	renderer  htmlgen.Renderer
	minifier  func([]byte, minify.Kind) ([]byte, error)
	workers   int
	now       func() time.Time
}

// WithRegistry replaces the built-in transform registry.
func WithRegistry(r *transform.Registry) Option { return func(o *options) { o.registry = r } }

// WithCache enables the persistent transform cache.
func WithCache(c transform.Cache) Option { return func(o *options) { o.cache = c } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(o *options) { o.recorder = r } }

// WithPublisher sets where lifecycle events go.
func WithPublisher(p events.Publisher) Option { return func(o *options) { o.publisher = p } }

// WithRenderer replaces the HTML template capability.
func WithRenderer(r htmlgen.Renderer) Option { return func(o *options) { o.renderer = r } }

// WithMinifier replaces the minifier capability.
func WithMinifier(fn func([]byte, minify.Kind) ([]byte, error)) Option {
	return func(o *options) { o.minifier = fn }
}

// WithWorkers overrides build.workers.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Driver runs a single build. It is not reusable: create one per run.
type Driver struct {
	cfg       *config.Config
	bctx      *buildctx.Context
	matcher   *rules.Matcher
	runner    *transform.Runner
	plugins   *plugins.Orchestrator
	recorder  metrics.Recorder
	publisher events.Publisher
	workers   int
	now       func() time.Time
	sm        *machine
}

// New wires a driver for one run of cfg.
func New(cfg *config.Config, bctx *buildctx.Context, opts ...Option) (*Driver, error) {
	o := options{
		recorder:  metrics.NoopRecorder{},
		publisher: events.NoopPublisher{},
		now:       time.Now,
		workers:   cfg.Build.Workers,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = transform.NewDefaultRegistry()
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}

	matcher, err := rules.NewMatcher(cfg.Rules)
	if err != nil {
		return nil, err
	}
	uses := make(map[string]string, len(cfg.Rules))
	for _, r := range cfg.Rules {
		uses[r.Name] = r.Use
	}
	if err := o.registry.Check(uses); err != nil {
		return nil, err
	}
	orchestrator, err := plugins.New(cfg, plugins.Deps{
		Renderer:  o.renderer,
		Minifier:  o.minifier,
		Publisher: o.publisher,
	})
	if err != nil {
		return nil, err
	}

	return &Driver{
		cfg:       cfg,
		bctx:      bctx,
		matcher:   matcher,
		runner:    transform.NewRunner(o.registry, o.cache, o.recorder, string(bctx.Mode)),
		plugins:   orchestrator,
		recorder:  o.recorder,
		publisher: o.publisher,
		workers:   o.workers,
		now:       o.now,
		sm:        newMachine(),
	}, nil
}

// State returns the current driver state.
func (d *Driver) State() State { return d.sm.current() }

// run holds what one build accumulates across states.
type run struct {
	report   *BuildReport
	graph    *discovery.Graph
	stage    *workspace.Stage
	env      *plugins.Env
	snapshot manifest.Snapshot
	promoted bool
}

// Run executes the build. The report is returned even when the build fails.
func (d *Driver) Run(ctx context.Context) (*BuildReport, error) {
	if d.sm.current() != StateIdle {
		return nil, errors.InternalError("driver has already run").Build()
	}
	ctx = observability.WithBuildID(ctx, d.bctx.BuildID)
	start := d.now()
	r := &run{report: newReport(d.bctx.BuildID, string(d.bctx.Mode), d.cfg.Snapshot(), start)}
	d.recorder.SetWorkers(d.workers)

	observability.InfoContext(ctx, "Build started", logfields.Mode(string(d.bctx.Mode)), logfields.Workers(d.workers))
	for _, e := range d.plugins.Entries() {
		observability.DebugContext(ctx, "Plugin enabled", logfields.Plugin(e.Plugin.Name()), logfields.Phase(string(e.Phase)))
	}
	if evt, err := events.NewBuildStarted(d.bctx.BuildID, string(d.bctx.Mode), d.cfg.Entry, start); err == nil {
		d.publish(ctx, evt)
	}

	err := d.execute(ctx, r)
	if r.stage != nil && !r.promoted {
		r.stage.Abort()
	}

	rep := r.report
	rep.End = d.now()
	rep.Trail = d.sm.trail()
	rep.FinalState = d.sm.current()
	if r.env != nil {
		rep.Warnings = r.env.Warnings()
		rep.Artifacts = r.env.Artifacts.Len()
	}
	if err != nil {
		rep.Errors = append(rep.Errors, err)
	}
	rep.DeriveOutcome()
	d.recorder.ObserveBuildDuration(rep.End.Sub(rep.Start))

	switch rep.Outcome {
	case OutcomeFailed:
		d.recorder.IncBuildOutcome(metrics.OutcomeFailed)
	case OutcomeCanceled:
		d.recorder.IncBuildOutcome(metrics.OutcomeCanceled)
	default:
		d.recorder.IncBuildOutcome(metrics.OutcomeSuccess)
	}

	if err != nil {
		failedIn := StateIdle
		if n := len(rep.Stages); n > 0 {
			failedIn = rep.Stages[n-1].State
		}
		if evt, evtErr := events.NewBuildFailed(d.bctx.BuildID, string(failedIn), string(errors.GetCategory(err)), err.Error(), rep.End); evtErr == nil {
			d.publish(ctx, evt)
		}
		observability.ErrorContext(ctx, "Build failed", logfields.State(string(failedIn)), logfields.Error(err))
		return rep, err
	}
	observability.InfoContext(ctx, "Build completed", logfields.Count(rep.Artifacts),
		logfields.DurationMS(float64(rep.End.Sub(rep.Start).Microseconds())/1000))
	return rep, nil
}

func (d *Driver) execute(ctx context.Context, r *run) error {
	if err := d.step(ctx, r, StateDiscovering, d.discover); err != nil {
		return err
	}
	if err := d.step(ctx, r, StateTransforming, d.transformModules); err != nil {
		return err
	}
	if err := d.step(ctx, r, StatePostProcessing, d.postProcess); err != nil {
		return err
	}
	if err := d.sm.transition(StateDone); err != nil {
		return errors.InternalError(err.Error()).Build()
	}
	d.plugins.Complete(ctx, r.env, r.snapshot)
	return nil
}

// step enters state, runs fn and records the outcome. On error the machine
// moves to Failed.
func (d *Driver) step(ctx context.Context, r *run, state State, fn func(context.Context, *run) error) error {
	if err := d.sm.transition(state); err != nil {
		return errors.InternalError(err.Error()).Build()
	}
	sctx := observability.WithStage(ctx, string(state))
	observability.DebugContext(sctx, "Entering state")

	warningsBefore := 0
	if r.env != nil {
		warningsBefore = len(r.env.Warnings())
	}
	start := d.now()
	err := fn(sctx, r)
	if err == nil && ctx.Err() != nil && !r.promoted {
		err = canceled(ctx)
	}
	dur := d.now().Sub(start)

	res := resultFor(err)
	if res == StageResultSuccess && r.env != nil && len(r.env.Warnings()) > warningsBefore {
		res = StageResultWarning
	}
	r.report.RecordStage(state, res, dur, d.recorder)
	if evt, evtErr := events.NewStageCompleted(d.bctx.BuildID, string(state), string(res), dur, d.now()); evtErr == nil {
		d.publish(sctx, evt)
	}

	if err != nil {
		if tErr := d.sm.transition(StateFailed); tErr != nil {
			observability.ErrorContext(sctx, "Cannot enter failed state", logfields.Error(tErr))
		}
		return err
	}
	return nil
}

func (d *Driver) discover(ctx context.Context, r *run) error {
	graph, err := discovery.Walk(ctx, d.bctx)
	if err != nil {
		return err
	}
	r.graph = graph
	r.report.Modules = graph.Len()
	observability.InfoContext(ctx, "Discovered modules", logfields.Count(graph.Len()))
	return nil
}

func (d *Driver) transformModules(ctx context.Context, r *run) error {
	stage, err := workspace.Begin(d.bctx.OutputDir)
	if err != nil {
		return err
	}
	r.stage = stage

	m := manifest.New(d.bctx.BuildID, string(d.bctx.Mode), d.cfg.Snapshot())
	emitter := emit.New(d.bctx, m, stage, d.recorder)
	r.env = &plugins.Env{
		Build:     d.bctx,
		Config:    d.cfg,
		Graph:     r.graph,
		StageDir:  stage.Dir(),
		Output:    stage,
		Emitter:   emitter,
		Artifacts: plugins.NewArtifactSet(emitter),
		Results:   plugins.NewResults(),
	}

	// Cleanup finishes before the first emitter write.
	if err := d.plugins.RunPre(ctx, r.env); err != nil {
		return err
	}
	d.plugins.BeginBuild(r.env)
	if err := d.transformAll(ctx, r); err != nil {
		return err
	}
	return d.plugins.SealBuild(ctx, r.env)
}

// transformAll runs modules on a bounded pool. Once ctx is canceled or a
// module fails no further modules are scheduled; modules already running
// finish on a context detached from cancellation.
func (d *Driver) transformAll(ctx context.Context, r *run) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	scheduled := 0
	for _, mod := range r.graph.Modules() {
		if gctx.Err() != nil {
			break
		}
		mod := mod
		scheduled++
		g.Go(func() error {
			// Go may block on the limit past a cancellation.
			if gctx.Err() != nil {
				return nil
			}
			return d.processModule(context.WithoutCancel(gctx), r.env, mod)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		observability.WarnContext(ctx, "Build canceled during transforms", logfields.Count(scheduled))
		return canceled(ctx)
	}
	return nil
}

func (d *Driver) processModule(ctx context.Context, env *plugins.Env, mod *discovery.Module) error {
	rule, _ := d.matcher.Match(mod.ID)
	content, err := d.plugins.TransformSource(env, mod, mod.Content)
	if err != nil {
		return err
	}
	out, err := d.runner.Run(ctx, mod, rule, content)
	if err != nil {
		return err
	}
	env.Results.Set(mod.ID, out)
	d.recorder.IncModules(string(mod.Type))

	hash := emit.ContentHash(mod.Content)
	if n := d.bctx.HashLength; n > 0 && n < len(hash) {
		hash = hash[:n]
	}
	env.Emitter.Manifest().RecordModule(mod.ID, hash)

	if out.Kind != transform.KindAsset {
		return nil
	}
	return env.Artifacts.Emit(plugins.OwnerTransform, &emit.Artifact{
		Name:       mod.ID,
		Kind:       manifest.KindAsset,
		Content:    out.Content,
		Template:   out.Filename,
		PublicPath: out.PublicPath,
		Inline:     out.Inline,
		DataURI:    out.DataURI,
	})
}

func (d *Driver) postProcess(ctx context.Context, r *run) error {
	if err := d.plugins.RunPost(ctx, r.env); err != nil {
		return err
	}
	m := r.env.Emitter.Manifest()
	m.Finalize()

	data, err := m.ToJSON()
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "serialize manifest").Build()
	}
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	// The manifest is the last file written for a build.
	if err := r.stage.WriteFile(config.DefaultManifestName, data); err != nil {
		return err
	}
	if err := r.stage.Promote(); err != nil {
		return err
	}
	r.promoted = true

	r.snapshot = m.Snapshot()
	if hash, err := r.snapshot.Hash(); err == nil {
		r.report.ManifestHash = hash
	}
	return nil
}

func (d *Driver) publish(ctx context.Context, evt events.Event) {
	if err := d.publisher.Publish(ctx, evt); err != nil {
		observability.WarnContext(ctx, "Failed to publish build event", logfields.Error(err))
	}
}

func canceled(ctx context.Context) error {
	return errors.WrapError(ctx.Err(), errors.CategoryCanceled, "build canceled").Build()
}
