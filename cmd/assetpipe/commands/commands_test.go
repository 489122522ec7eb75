package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	cli := &CLI{}
	g := &Global{}
	parser, err := kong.New(cli,
		kong.Name("assetpipe"),
		kong.Vars{"version": "test"},
		kong.Bind(g),
		kong.Exit(func(int) {}),
	)
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(g, cli)
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	cfgPath := filepath.Join(root, "assetpipe.yaml")
	require.NoError(t, runCLI(t, "--config", cfgPath, "init"))
	files := map[string]string{
		"src/index.js":  "import './style.css';\nconsole.log('app');\n",
		"src/style.css": "body { margin: 0; }\n",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return cfgPath
}

func TestInitRefusesToOverwrite(t *testing.T) {
	cfgPath := newProject(t)
	err := runCLI(t, "--config", cfgPath, "init")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	require.NoError(t, runCLI(t, "--config", cfgPath, "init", "--force"))
}

func TestBuildManifestAndClean(t *testing.T) {
	cfgPath := newProject(t)
	root := filepath.Dir(cfgPath)
	metricsPath := filepath.Join(root, "metrics.prom")

	require.NoError(t, runCLI(t, "--config", cfgPath, "--mode", "development", "--metrics-file", metricsPath, "build"))

	snap, err := manifest.Load(filepath.Join(root, "dist", config.DefaultManifestName))
	require.NoError(t, err)
	assert.Equal(t, "development", snap.Mode)
	assert.Equal(t, "main.js", snap.Assets["main.js"].Path)
	assert.FileExists(t, filepath.Join(root, "dist", "main.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "index.html"))
	assert.FileExists(t, filepath.Join(root, ".assetpipe", "cache.db"))
	assert.NoFileExists(t, filepath.Join(root, "dist.lock"))

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "assetpipe_")

	require.NoError(t, runCLI(t, "--config", cfgPath, "manifest"))
	require.NoError(t, runCLI(t, "--config", cfgPath, "manifest", "--json"))

	require.NoError(t, runCLI(t, "--config", cfgPath, "clean", "--cache"))
	assert.NoFileExists(t, filepath.Join(root, "dist", "main.js"))
	assert.NoFileExists(t, filepath.Join(root, "dist", config.DefaultManifestName))
}

func TestBuildFailsWhileLocked(t *testing.T) {
	cfgPath := newProject(t)
	root := filepath.Dir(cfgPath)
	require.NoError(t, os.WriteFile(filepath.Join(root, "dist.lock"), []byte("other"), 0o644))

	err := runCLI(t, "--config", cfgPath, "build", "--no-cache")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryLocked))
	assert.Equal(t, 9, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	require.NoError(t, runCLI(t, "--config", cfgPath, "clean", "--break-lock"))
	require.NoError(t, runCLI(t, "--config", cfgPath, "build", "--no-cache"))
}

func TestMissingConfig(t *testing.T) {
	err := runCLI(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "build")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestCleanPatterns(t *testing.T) {
	cfg, err := config.Default("src/index.js", config.ModeProduction)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCleanPatterns, cleanPatterns(cfg))

	cfg.Plugins = []config.PluginConfig{{Name: config.PluginClean, Options: config.Options{"patterns": []any{"*.map"}}}}
	assert.Equal(t, []string{"*.map"}, cleanPatterns(cfg))

	cfg.Plugins = nil
	assert.Equal(t, config.DefaultCleanPatterns, cleanPatterns(cfg))
}

func TestWatchIgnores(t *testing.T) {
	cfg, err := config.Default("src/index.js", config.ModeDevelopment)
	require.NoError(t, err)
	base := t.TempDir()

	ignores := watchIgnores(cfg, base, base)
	assert.Contains(t, ignores, "dist/**")
	assert.Contains(t, ignores, "dist_stage/**")
	assert.Contains(t, ignores, "dist.lock")
	assert.Contains(t, ignores, ".assetpipe/cache.db")

	nested := watchIgnores(cfg, base, filepath.Join(base, "src"))
	assert.NotContains(t, nested, "dist/**", "output outside the watched root needs no pattern")
}

func TestDiffManifests(t *testing.T) {
	a := &manifest.Snapshot{
		BuildID: "a",
		Assets:  map[string]manifest.Entry{"main.js": {Path: "main.aaa.js", Kind: manifest.KindScript}},
		Modules: map[string]string{"src/index.js": "111"},
	}
	b := &manifest.Snapshot{
		BuildID: "b",
		Assets:  map[string]manifest.Entry{"main.js": {Path: "main.aaa.js", Kind: manifest.KindScript}},
		Modules: map[string]string{"src/index.js": "111"},
	}
	assert.Empty(t, DiffManifests(a, b))

	b.Modules["src/index.js"] = "222"
	diff := DiffManifests(a, b)
	assert.Contains(t, diff, "111")
	assert.Contains(t, diff, "222")
}

func TestMetricsFilePrecedence(t *testing.T) {
	cfg, err := config.Default("src/index.js", config.ModeDevelopment)
	require.NoError(t, err)
	cfg.Metrics.Textfile = "out/metrics.prom"

	assert.Equal(t, filepath.Join("/base", "out/metrics.prom"), (&CLI{}).metricsFile(cfg, "/base"))
	assert.Equal(t, "flag.prom", (&CLI{MetricsFile: "flag.prom"}).metricsFile(cfg, "/base"))
}
