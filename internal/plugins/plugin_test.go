package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/workspace"
)

func newTestEnv(t *testing.T, mode config.Mode, mods ...*discovery.Module) *Env {
	t.Helper()
	root := t.TempDir()
	cfg, err := config.Default("src/index.js", mode)
	require.NoError(t, err)
	cfg.Env.Allow = []string{"API_URL"}

	bctx, err := buildctx.New(cfg,
		buildctx.WithBaseDir(root),
		buildctx.WithBuildID("test-build"),
		buildctx.WithLookupEnv(func(name string) (string, bool) {
			if name == "API_URL" {
				return "https://api.test", true
			}
			return "", false
		}),
	)
	require.NoError(t, err)

	stage, err := workspace.Begin(bctx.OutputDir)
	require.NoError(t, err)
	t.Cleanup(stage.Abort)

	m := manifest.New(bctx.BuildID, string(mode), "")
	em := emit.New(bctx, m, stage, nil)
	entry := ""
	if len(mods) > 0 {
		entry = mods[0].ID
	}
	return &Env{
		Build:     bctx,
		Config:    cfg,
		Graph:     discovery.NewGraph(entry, mods),
		StageDir:  stage.Dir(),
		Output:    stage,
		Emitter:   em,
		Artifacts: NewArtifactSet(em),
		Results:   NewResults(),
	}
}

type recordingPlugin struct {
	name  string
	phase Phase
	calls *[]string
}

func (p *recordingPlugin) Name() string { return p.name }
func (p *recordingPlugin) Phase() Phase { return p.phase }

func (p *recordingPlugin) PreBuild(context.Context, *Env) error {
	*p.calls = append(*p.calls, "pre:"+p.name)
	return nil
}

func (p *recordingPlugin) Seal(context.Context, *Env) error {
	*p.calls = append(*p.calls, "seal:"+p.name)
	return nil
}

func (p *recordingPlugin) PostBuild(context.Context, *Env) error {
	*p.calls = append(*p.calls, "post:"+p.name)
	return nil
}

func TestOrchestratorRunsPhasesInDeclaredOrder(t *testing.T) {
	var calls []string
	mk := func(name string, phase Phase) Entry {
		return Entry{Phase: phase, Plugin: &recordingPlugin{name: name, phase: phase, calls: &calls}}
	}
	o := NewOrchestrator(
		mk("post-b", PhasePost),
		mk("pre-a", PhasePre),
		mk("build-a", PhaseBuild),
		mk("post-a", PhasePost),
		mk("pre-b", PhasePre),
	)
	env := newTestEnv(t, config.ModeDevelopment)
	ctx := context.Background()

	require.NoError(t, o.RunPre(ctx, env))
	o.BeginBuild(env)
	require.NoError(t, o.SealBuild(ctx, env))
	require.NoError(t, o.RunPost(ctx, env))

	assert.Equal(t, []string{"pre:pre-a", "pre:pre-b", "seal:build-a", "post:post-b", "post:post-a"}, calls)
}

func TestRunPostStopsWhenCanceled(t *testing.T) {
	var calls []string
	o := NewOrchestrator(Entry{Phase: PhasePost, Plugin: &recordingPlugin{name: "p", phase: PhasePost, calls: &calls}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.RunPost(ctx, newTestEnv(t, config.ModeDevelopment))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestNewBuildsConfiguredPluginList(t *testing.T) {
	cfg, err := config.Default("src/index.js", config.ModeProduction)
	require.NoError(t, err)

	o, err := New(cfg, Deps{})
	require.NoError(t, err)

	var names []string
	var phases []Phase
	for _, e := range o.Entries() {
		names = append(names, e.Plugin.Name())
		phases = append(phases, e.Phase)
	}
	assert.Equal(t, []string{"clean", "env", "css-extract", "js-bundle", "html", "minify", "copy"}, names)
	assert.Equal(t, []Phase{PhasePre, PhaseBuild, PhaseBuild, PhaseBuild, PhasePost, PhasePost, PhasePost}, phases)
}

func TestNewRejectsUnknownPlugin(t *testing.T) {
	cfg, err := config.Default("src/index.js", config.ModeProduction)
	require.NoError(t, err)
	cfg.Plugins = append(cfg.Plugins, config.PluginConfig{Name: "bogus"})

	_, err = New(cfg, Deps{})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestArtifactSetOwnershipWithinPhase(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	set := env.Artifacts
	set.SetPhase(PhaseBuild)

	a := &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte("1"), Template: "main.[hash].js"}
	require.NoError(t, set.Emit("js-bundle", a))
	assert.Equal(t, "build", a.Phase)
	assert.Equal(t, "js-bundle", a.Owner)

	err := set.Rewrite("css-extract", "main.js", []byte("2"))
	require.Error(t, err, "another plugin cannot mutate output of the current phase")

	require.NoError(t, set.Rewrite("js-bundle", "main.js", []byte("3")))

	set.SetPhase(PhasePost)
	require.NoError(t, set.Rewrite("minify", "main.js", []byte("4")), "earlier phase output is open to later phases")

	data, err := env.Output.ReadFile("main.js")
	require.NoError(t, err)
	assert.Equal(t, "4", string(data))

	err = set.Emit("other", &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte("x")})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryEmission))
}

func TestArtifactSetSurfacesPathCollision(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	env.Artifacts.SetPhase(PhaseBuild)
	require.NoError(t, env.Artifacts.Emit("a", &emit.Artifact{Name: "one.js", Content: []byte("a"), Template: "bundle.js"}))
	err := env.Artifacts.Emit("b", &emit.Artifact{Name: "two.js", Content: []byte("b"), Template: "bundle.js"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryEmission))
	_, ok := env.Artifacts.Get("two.js")
	assert.False(t, ok)
}
