package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, warnings, err := Load(writeConfig(t, "entry: ./src/index.js\n"))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, "dist", cfg.Output.Directory)
	assert.Equal(t, "main.[hash].js", cfg.Output.Filename)
	assert.Equal(t, "assets/[name].[hash].css", cfg.Output.CSSFilename)
	assert.Equal(t, 20, cfg.Output.HashLength)
	assert.Equal(t, []string{".js", ".mjs"}, cfg.Resolve.Extensions)
	assert.Equal(t, "300ms", cfg.Watch.Debounce)

	require.Len(t, cfg.Rules, 6)
	assert.Equal(t, "scripts", cfg.Rules[0].Name)
	assert.Equal(t, "node_modules", cfg.Rules[0].Exclude)
	fonts := cfg.Rules[4]
	assert.Equal(t, "fonts", fonts.Name)
	assert.Equal(t, 10000, fonts.Options.Int("limit", 0))
	assert.Equal(t, "application/font-woff", fonts.Options.String("mimetype", ""))

	names := make([]string, 0, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"clean", "env", "css-extract", "js-bundle", "html", "minify", "copy"}, names)
	assert.Equal(t, []string{"*.js", "*.css", "assets/**", "index.html", "manifest.json"},
		cfg.Plugins[0].Options.Strings("patterns"))
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ASSETPIPE_TEST_OUT", "public_build")
	cfg, _, err := Load(writeConfig(t, "entry: ./src/index.js\noutput:\n  directory: ${ASSETPIPE_TEST_OUT}\n"))
	require.NoError(t, err)
	assert.Equal(t, "public_build", cfg.Output.Directory)
}

func TestLoadNormalizesEnumerations(t *testing.T) {
	cfg, warnings, err := Load(writeConfig(t, `
entry: ./src/index.js
mode: DEV
logging:
  level: Warning
  format: JSON
resolve:
  extensions: [js, .JSX]
`))
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
	assert.Equal(t, []string{".js", ".jsx"}, cfg.Resolve.Extensions)
	assert.NotEmpty(t, warnings)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing entry", "mode: production\n", "entry module must be set"},
		{"bad regexp", "entry: a.js\nrules:\n  - name: x\n    test: '('\n    use: raw\n", "rules[0].test"},
		{"unknown plugin", "entry: a.js\nplugins:\n  - name: sprites\n", "unknown plugin"},
		{"duplicate plugin", "entry: a.js\nplugins:\n  - name: html\n  - name: html\n", "listed twice"},
		{"notify without nats", "entry: a.js\nplugins:\n  - name: notify\n", "events.nats_url"},
		{"unsafe output", "entry: a.js\noutput:\n  directory: .\n", "output.directory"},
		{"bad hash length", "entry: a.js\noutput:\n  hash_length: 2\n", "hash length"},
		{"bad env name", "entry: a.js\nenv:\n  allow: ['1BAD']\n", "env.allow"},
		{"bad poll interval", "entry: a.js\nwatch:\n  poll_interval: soon\n", "poll interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryValidation), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateConfigReportsEveryProblem(t *testing.T) {
	cfg, err := Default("src/index.js", ModeProduction)
	require.NoError(t, err)
	cfg.Mode = "staging"
	cfg.Output.HashLength = 100
	cfg.Env.Allow = []string{"OK_NAME", "no-dash"}

	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	for _, want := range []string{`mode: must be "development" or "production", got "staging"`, "output.hash_length", `env.allow: invalid environment variable name "no-dash"`} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NotContains(t, err.Error(), "OK_NAME")

	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	n, _ := ce.Context().Get("problems")
	assert.Equal(t, 3, n)

	assert.Error(t, ValidateConfig(nil))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, _, err := Load(writeConfig(t, "entry: [unterminated\n"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestNotifyAddedWhenNATSConfigured(t *testing.T) {
	cfg, _, err := Load(writeConfig(t, "entry: a.js\nevents:\n  nats_url: nats://127.0.0.1:4222\n"))
	require.NoError(t, err)
	assert.Equal(t, PluginNotify, cfg.Plugins[len(cfg.Plugins)-1].Name)
	assert.Equal(t, DefaultEventsSubject, cfg.Events.Subject)
}

func TestInitWritesLoadableExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, Init(path, false))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./src/index.js", cfg.Entry)
	assert.True(t, cfg.Cache.Enabled)

	err = Init(path, false)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	require.NoError(t, Init(path, true))
}

func TestDefault(t *testing.T) {
	cfg, err := Default("src/main.js", ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, "/", cfg.Output.PublicPath.For(cfg.Mode))
	assert.Equal(t, "./", cfg.Output.PublicPath.For(ModeProduction))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Production")
	require.NoError(t, err)
	assert.True(t, m.IsProduction())

	m, err = ParseMode("dev")
	require.NoError(t, err)
	assert.False(t, m.IsProduction())

	_, err = ParseMode("staging")
	require.Error(t, err)
}

func TestSnapshotIgnoresAmbientSettings(t *testing.T) {
	a, err := Default("src/index.js", ModeProduction)
	require.NoError(t, err)
	b, err := Default("src/index.js", ModeProduction)
	require.NoError(t, err)

	b.Logging.Level = LogLevelDebug
	b.Watch.Debounce = "1s"
	b.Metrics.Textfile = "/tmp/x.prom"
	assert.Equal(t, a.Snapshot(), b.Snapshot())

	b.Rules[0].Options["target"] = "es2020"
	assert.NotEqual(t, a.Snapshot(), b.Snapshot())
	assert.NotEqual(t, a.Rules[0].Fingerprint(), b.Rules[0].Fingerprint())
}

func TestOptionsAccessors(t *testing.T) {
	o := Options{
		"s":    "text",
		"i":    12,
		"f":    3.0,
		"si":   "7",
		"b":    true,
		"sb":   "false",
		"list": []any{"a", 1},
		"one":  "solo",
		"d":    "250ms",
	}
	assert.Equal(t, "text", o.String("s", "x"))
	assert.Equal(t, "12", o.String("i", "x"))
	assert.Equal(t, "x", o.String("missing", "x"))
	assert.Equal(t, 12, o.Int("i", 0))
	assert.Equal(t, 3, o.Int("f", 0))
	assert.Equal(t, 7, o.Int("si", 0))
	assert.Equal(t, 5, o.Int("s", 5))
	assert.True(t, o.Bool("b", false))
	assert.False(t, o.Bool("sb", true))
	assert.Equal(t, []string{"a", "1"}, o.Strings("list"))
	assert.Equal(t, []string{"solo"}, o.Strings("one"))
	assert.Nil(t, o.Strings("missing"))
	assert.Equal(t, "250ms", o.Duration("d", 0).String())
	assert.True(t, o.Has("b"))
	assert.False(t, Options(nil).Has("b"))
}
