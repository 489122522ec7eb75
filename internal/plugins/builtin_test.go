package plugins

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/htmlgen"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/minify"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			rel += "/"
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	}))
	sort.Strings(out)
	return out
}

func TestCleanIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"main.0123.js":        "old",
		"assets/main.css":     "old",
		"assets/images/x.png": "old",
		"index.html":          "old",
		"manifest.json":       "{}",
		"robots.txt":          "keep",
		"vendor/keep.js":      "keep",
	})

	removed, err := Clean(dir, config.DefaultCleanPatterns)
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/images/x.png", "assets/main.css", "index.html", "main.0123.js", "manifest.json"}, removed)
	once := listTree(t, dir)
	assert.Equal(t, []string{"robots.txt", "vendor/", "vendor/keep.js"}, once)

	removed, err = Clean(dir, config.DefaultCleanPatterns)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, once, listTree(t, dir))
}

func TestCleanMissingDirectoryIsNoop(t *testing.T) {
	removed, err := Clean(filepath.Join(t.TempDir(), "absent"), config.DefaultCleanPatterns)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestValidatePatterns(t *testing.T) {
	require.NoError(t, ValidatePatterns([]string{"*.js", "assets/**"}))
	require.Error(t, ValidatePatterns([]string{"../*.js"}))
	require.Error(t, ValidatePatterns([]string{"/etc/*"}))
	require.Error(t, ValidatePatterns([]string{"a/../../b"}))
	require.Error(t, ValidatePatterns([]string{"[unterminated"}))

	err := func() error {
		_, err := Clean(t.TempDir(), []string{"../*"})
		return err
	}()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCleanup))
}

func TestCleanPluginOperatesOnStage(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction)
	writeTree(t, env.StageDir, map[string]string{"main.old.js": "x", "keep.txt": "y"})

	p, err := newClean(config.Options{}, env.Config, Deps{})
	require.NoError(t, err)
	require.NoError(t, p.(PreBuilder).PreBuild(context.Background(), env))
	assert.Equal(t, []string{"keep.txt"}, listTree(t, env.StageDir))
}

func TestEnvPluginSubstitutesSnapshot(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction)
	p, err := newEnv(config.Options{"defaults": map[string]any{"FEATURE": true}}, env.Config, Deps{})
	require.NoError(t, err)
	hook := p.(SourceHook)

	script := &discovery.Module{ID: "src/index.js", Type: discovery.TypeScript}
	src := []byte("fetch(process.env.API_URL + process.env.NODE_ENV + process.env.FEATURE + process.env.SECRET);")
	out, err := hook.TransformSource(env, script, src)
	require.NoError(t, err)
	assert.Equal(t, `fetch("https://api.test" + "production" + "true" + process.env.SECRET);`, string(out))

	style := &discovery.Module{ID: "src/a.css", Type: discovery.TypeStyle}
	css := []byte("/* process.env.API_URL */")
	out, err = hook.TransformSource(env, style, css)
	require.NoError(t, err)
	assert.Equal(t, string(css), string(out))
}

func cssGraph() []*discovery.Module {
	return []*discovery.Module{
		{ID: "src/index.js", Type: discovery.TypeScript, Imports: []discovery.Import{
			{Specifier: "./a.css", ID: "src/a.css", Kind: discovery.ImportESM},
			{Specifier: "./logo.png", ID: "src/logo.png", Kind: discovery.ImportESM},
		}},
		{ID: "src/a.css", Type: discovery.TypeStyle, Imports: []discovery.Import{
			{Specifier: "./b.css", ID: "src/b.css", Kind: discovery.ImportCSSImport},
			{Specifier: "./logo.png", ID: "src/logo.png", Kind: discovery.ImportURL},
		}},
		{ID: "src/logo.png", Type: discovery.TypeImage},
		{ID: "src/b.css", Type: discovery.TypeStyle},
	}
}

func TestCSSExtractConcatenatesInDependencyOrder(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction, cssGraph()...)
	env.Artifacts.SetPhase(PhaseBuild)

	logo := &emit.Artifact{Name: "src/logo.png", Kind: manifest.KindAsset, Content: []byte(strings.Repeat("p", 20000)), Template: "assets/images/[hash][ext]"}
	require.NoError(t, env.Artifacts.Emit(OwnerTransform, logo))

	env.Results.Set("src/index.js", transform.Output{Kind: transform.KindScript, Content: []byte("require('./a.css');\n")})
	env.Results.Set("src/a.css", transform.Output{Kind: transform.KindStyle, Content: []byte("@import \"./b.css\";\n.a {\n  background: url(./logo.png);\n}\n")})
	env.Results.Set("src/b.css", transform.Output{Kind: transform.KindStyle, Content: []byte(".b {\n  color: red;\n}\n")})
	env.Results.Set("src/logo.png", transform.Output{Kind: transform.KindAsset})

	p, err := newCSSExtract(config.Options{}, env.Config, Deps{})
	require.NoError(t, err)
	require.NoError(t, p.(Sealer).Seal(context.Background(), env))

	a, ok := env.Artifacts.Get("main.css")
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^assets/main\.[0-9a-f]{20}\.css$`), a.Path)

	css := string(a.Content)
	assert.NotContains(t, css, "@import")
	assert.Less(t, strings.Index(css, ".b {"), strings.Index(css, ".a {"), "imported sheet comes first")
	assert.Contains(t, css, `url("images/`+filepath.Base(logo.Path)+`")`)

	staged, err := env.Output.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, css, string(staged))
}

func TestCSSExtractHonorsAssetPublicPath(t *testing.T) {
	tests := []struct {
		name       string
		publicPath string
		want       func(a *emit.Artifact) string
	}{
		{
			name: "mode public path",
			want: func(a *emit.Artifact) string { return "images/" + filepath.Base(a.Path) },
		},
		{
			name:       "absolute override",
			publicPath: "https://cdn.example/fonts/",
			want:       func(a *emit.Artifact) string { return "https://cdn.example/fonts/" + filepath.Base(a.Path) },
		},
		{
			name:       "root override",
			publicPath: "/static/",
			want:       func(a *emit.Artifact) string { return "/static/" + filepath.Base(a.Path) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, config.ModeProduction, cssGraph()...)
			env.Artifacts.SetPhase(PhaseBuild)
			logo := &emit.Artifact{
				Name: "src/logo.png", Kind: manifest.KindAsset, Content: []byte(strings.Repeat("p", 20000)),
				Template: "assets/images/[hash][ext]", PublicPath: tt.publicPath,
			}
			require.NoError(t, env.Artifacts.Emit(OwnerTransform, logo))
			env.Results.Set("src/index.js", transform.Output{Kind: transform.KindScript, Content: []byte("require('./a.css');\n")})
			env.Results.Set("src/a.css", transform.Output{Kind: transform.KindStyle, Content: []byte(".a {\n  background: url(./logo.png);\n}\n")})
			env.Results.Set("src/b.css", transform.Output{Kind: transform.KindStyle})
			env.Results.Set("src/logo.png", transform.Output{Kind: transform.KindAsset})

			p, err := newCSSExtract(config.Options{}, env.Config, Deps{})
			require.NoError(t, err)
			require.NoError(t, p.(Sealer).Seal(context.Background(), env))

			a, ok := env.Artifacts.Get("main.css")
			require.True(t, ok)
			assert.Contains(t, string(a.Content), `url("`+tt.want(logo)+`")`)
		})
	}
}

func TestCSSExtractWithoutStylesEmitsNothing(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction, &discovery.Module{ID: "src/index.js", Type: discovery.TypeScript})
	env.Results.Set("src/index.js", transform.Output{Kind: transform.KindScript, Content: []byte("1")})
	p, _ := newCSSExtract(config.Options{}, env.Config, Deps{})
	require.NoError(t, p.(Sealer).Seal(context.Background(), env))
	assert.Equal(t, 0, env.Artifacts.Len())
}

func TestJSBundleLinksModules(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment, cssGraph()...)
	env.Artifacts.SetPhase(PhaseBuild)
	require.NoError(t, env.Artifacts.Emit(OwnerTransform, &emit.Artifact{
		Name: "src/logo.png", Kind: manifest.KindAsset, Content: []byte("png"),
		Inline: true, DataURI: "data:image/png;base64,cG5n",
	}))
	env.Results.Set("src/index.js", transform.Output{Kind: transform.KindScript, Content: []byte("var logo = require(\"./logo.png\");\nrequire(\"./a.css\");\nconsole.log(logo);")})
	env.Results.Set("src/a.css", transform.Output{Kind: transform.KindStyle, Content: []byte(".a{}")})
	env.Results.Set("src/b.css", transform.Output{Kind: transform.KindStyle, Content: []byte(".b{}")})
	env.Results.Set("src/logo.png", transform.Output{Kind: transform.KindAsset, Inline: true})

	p, err := newJSBundle(config.Options{}, env.Config, Deps{})
	require.NoError(t, err)
	require.NoError(t, p.(Sealer).Seal(context.Background(), env))

	a, ok := env.Artifacts.Get("main.js")
	require.True(t, ok)
	assert.Equal(t, "main.js", a.Path, "development names carry no hash")
	assert.Equal(t, "/main.js", a.PublicRef)

	js := string(a.Content)
	assert.True(t, strings.HasPrefix(js, "(function (modules, entry) {"))
	assert.Contains(t, js, `"src/index.js": [{"./a.css":"src/a.css","./logo.png":"src/logo.png"}, function (module, exports, require, process) {`)
	assert.Contains(t, js, "console.log(logo);\n}]")
	assert.Contains(t, js, `module.exports = "data:image/png;base64,cG5n";`)
	assert.Contains(t, js, "module.exports = {};")
	assert.NotContains(t, js, `"src/b.css": [`, "sheets reachable only through CSS stay out of the bundle")
	assert.True(t, strings.HasSuffix(js, `}, "src/index.js");`+"\n"))
}

func TestJSBundleConvertsUntransformedScripts(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "esm export", content: "export const answer = 42;\n"},
		{name: "esm import", content: "import './a.css';\nexport default 1;\n"},
		{name: "syntax error", content: "export function ( {\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, config.ModeDevelopment,
				&discovery.Module{ID: "src/index.js", Type: discovery.TypeScript},
			)
			env.Artifacts.SetPhase(PhaseBuild)
			env.Results.Set("src/index.js", transform.Output{Kind: transform.KindScript, Content: []byte(tt.content)})

			js, count, err := Link(env, "src/index.js")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCategory(err, errors.CategoryTransform))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, count)
			assert.NotRegexp(t, regexp.MustCompile(`(?m)(^|[;{\s])(export|import)\s`), string(js))
			assert.Contains(t, string(js), "module.exports = __toCommonJS(")
		})
	}
}

func TestJSBundleIsDeterministic(t *testing.T) {
	build := func() string {
		env := newTestEnv(t, config.ModeProduction, cssGraph()...)
		env.Artifacts.SetPhase(PhaseBuild)
		require.NoError(t, env.Artifacts.Emit(OwnerTransform, &emit.Artifact{
			Name: "src/logo.png", Kind: manifest.KindAsset, Content: []byte("png"), Template: "assets/images/[hash][ext]",
		}))
		env.Results.Set("src/index.js", transform.Output{Kind: transform.KindScript, Content: []byte("require('./logo.png')")})
		env.Results.Set("src/a.css", transform.Output{Kind: transform.KindStyle})
		env.Results.Set("src/b.css", transform.Output{Kind: transform.KindStyle})
		env.Results.Set("src/logo.png", transform.Output{Kind: transform.KindAsset})
		p, _ := newJSBundle(config.Options{}, env.Config, Deps{})
		require.NoError(t, p.(Sealer).Seal(context.Background(), env))
		a, _ := env.Artifacts.Get("main.js")
		return a.Path
	}
	first := build()
	assert.Regexp(t, `^main\.[0-9a-f]{20}\.js$`, first)
	assert.Equal(t, first, build())
}

func TestHTMLPluginInjectsManifestRefs(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction)
	env.Artifacts.SetPhase(PhaseBuild)
	require.NoError(t, env.Artifacts.Emit("js-bundle", &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte("1"), Template: "main.[hash].js"}))
	require.NoError(t, env.Artifacts.Emit("css-extract", &emit.Artifact{Name: "main.css", Kind: manifest.KindStyle, Content: []byte("a{}"), Template: "assets/[name].[hash].css"}))
	env.Artifacts.SetPhase(PhasePost)

	p, err := newHTML(config.Options{"title": "Demo", "inject": "body"}, env.Config, Deps{Renderer: htmlgen.TemplateRenderer{}})
	require.NoError(t, err)
	require.NoError(t, p.(PostBuilder).PostBuild(context.Background(), env))

	assert.True(t, env.Emitter.Manifest().Finalized())
	js, _ := env.Emitter.Manifest().Get("main.js")
	css, _ := env.Emitter.Manifest().Get("main.css")

	page, err := env.Output.ReadFile("index.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), `<script src="`+js.PublicRef+`"></script>`)
	assert.Contains(t, string(page), `<link rel="stylesheet" href="`+css.PublicRef+`"/>`)
	assert.Contains(t, string(page), "<title>Demo</title>")

	entry, ok := env.Emitter.Manifest().Get("index.html")
	require.True(t, ok)
	assert.Equal(t, "index.html", entry.Path)
	assert.Equal(t, manifest.KindHTML, entry.Kind)
}

func TestHTMLPluginTemplateFailures(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	env.Artifacts.SetPhase(PhasePost)

	p, _ := newHTML(config.Options{"template": "missing.html"}, env.Config, Deps{Renderer: htmlgen.TemplateRenderer{}})
	err := p.(PostBuilder).PostBuild(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryTemplate))

	writeTree(t, env.Build.SourceRoot, map[string]string{"broken.html": "<p>{{.Nope}}</p>"})
	p, _ = newHTML(config.Options{"template": "broken.html", "inject": false}, env.Config, Deps{Renderer: htmlgen.TemplateRenderer{}})
	err = p.(PostBuilder).PostBuild(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryTemplate))
}

func TestHTMLPluginFragmentTemplateFails(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	env.Artifacts.SetPhase(PhaseBuild)
	require.NoError(t, env.Artifacts.Emit("js-bundle", &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte("1")}))
	env.Artifacts.SetPhase(PhasePost)

	writeTree(t, env.Build.SourceRoot, map[string]string{"fragment.html": "<div id=\"app\"></div>"})
	p, err := newHTML(config.Options{"template": "fragment.html"}, env.Config, Deps{Renderer: htmlgen.TemplateRenderer{}})
	require.NoError(t, err)
	err = p.(PostBuilder).PostBuild(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryTemplate))
	_, statErr := env.Output.ReadFile("index.html")
	assert.Error(t, statErr)
}

func TestMinifyRewritesInPlace(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction)
	env.Artifacts.SetPhase(PhaseBuild)
	src := "function add(first, second) {\n  return first + second;\n}\nconsole.log(add(1, 2));\n"
	a := &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte(src), Template: "main.[hash].js"}
	require.NoError(t, env.Artifacts.Emit("js-bundle", a))
	pathBefore := a.Path
	env.Artifacts.SetPhase(PhasePost)

	p, _ := newMinify(config.Options{}, env.Config, Deps{Minifier: minify.Minify})
	require.NoError(t, p.(PostBuilder).PostBuild(context.Background(), env))

	assert.Equal(t, pathBefore, a.Path)
	staged, err := env.Output.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Less(t, len(staged), len(src))
	entry, _ := env.Emitter.Manifest().Get("main.js")
	assert.Equal(t, len(staged), entry.Size)
	assert.Empty(t, env.Warnings())
}

func TestMinifyFailureIsAWarning(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction)
	env.Artifacts.SetPhase(PhaseBuild)
	require.NoError(t, env.Artifacts.Emit("js-bundle", &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte("original"), Template: "main.[hash].js"}))
	env.Artifacts.SetPhase(PhasePost)

	failing := func([]byte, minify.Kind) ([]byte, error) { return nil, fmt.Errorf("minifier crashed") }
	p, _ := newMinify(config.Options{}, env.Config, Deps{Minifier: failing})
	require.NoError(t, p.(PostBuilder).PostBuild(context.Background(), env))

	a, _ := env.Artifacts.Get("main.js")
	staged, err := env.Output.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(staged))
	require.Len(t, env.Warnings(), 1)
	assert.True(t, errors.HasCategory(env.Warnings()[0], errors.CategoryMinify))
	assert.False(t, errors.IsFatal(env.Warnings()[0]))
}

func TestMinifySkippedInDevelopment(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	env.Artifacts.SetPhase(PhaseBuild)
	require.NoError(t, env.Artifacts.Emit("js-bundle", &emit.Artifact{Name: "main.js", Kind: manifest.KindScript, Content: []byte("var  a = 1;"), Template: "main.js"}))
	env.Artifacts.SetPhase(PhasePost)

	called := false
	p, _ := newMinify(config.Options{}, env.Config, Deps{Minifier: func(b []byte, _ minify.Kind) ([]byte, error) {
		called = true
		return b, nil
	}})
	require.NoError(t, p.(PostBuilder).PostBuild(context.Background(), env))
	assert.False(t, called)
}

func TestCopyPlugin(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	writeTree(t, env.Build.SourceRoot, map[string]string{
		"src/assets/images/logo.png":    "logo",
		"src/assets/images/icons/a.svg": "<svg/>",
	})
	env.Artifacts.SetPhase(PhaseBuild)
	// The same image already emitted by the images rule at the same path.
	require.NoError(t, env.Artifacts.Emit(OwnerTransform, &emit.Artifact{
		Name: "src/assets/images/logo.png", Kind: manifest.KindAsset, Content: []byte("logo"), Template: "assets/images/[hash][ext]",
	}))
	env.Artifacts.SetPhase(PhasePost)

	p, err := newCopy(config.Options{"from": "src/assets/images", "to": "assets/images"}, env.Config, Deps{})
	require.NoError(t, err)
	require.NoError(t, p.(PostBuilder).PostBuild(context.Background(), env))

	data, err := env.Output.ReadFile("assets/images/icons/a.svg")
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
	entry, ok := env.Emitter.Manifest().Get("assets/images/icons/a.svg")
	require.True(t, ok)
	assert.Equal(t, manifest.KindCopy, entry.Kind)

	owner, _ := env.Emitter.Manifest().Owner("assets/images/logo.png")
	assert.Equal(t, "src/assets/images/logo.png", owner, "identical file is not copied twice")
}

func TestCopyPluginMissingSourceIsSkipped(t *testing.T) {
	env := newTestEnv(t, config.ModeDevelopment)
	env.Artifacts.SetPhase(PhasePost)
	p, err := newCopy(config.Options{"from": "nope"}, env.Config, Deps{})
	require.NoError(t, err)
	require.NoError(t, p.(PostBuilder).PostBuild(context.Background(), env))
	assert.Equal(t, 0, env.Artifacts.Len())

	_, err = newCopy(config.Options{}, env.Config, Deps{})
	require.Error(t, err)
	_, err = newCopy(config.Options{"from": "x", "to": "../up"}, env.Config, Deps{})
	require.Error(t, err)
}

func TestNotifyPublishesOnComplete(t *testing.T) {
	env := newTestEnv(t, config.ModeProduction)
	pub := &events.MemoryPublisher{}
	p, err := newNotify(config.Options{}, env.Config, Deps{Publisher: pub})
	require.NoError(t, err)
	p.(*notifyPlugin).now = func() time.Time { return env.Build.Started.Add(2 * time.Second) }

	o := NewOrchestrator(Entry{Phase: PhasePost, Plugin: p})
	o.Complete(context.Background(), env, env.Emitter.Manifest().Snapshot())

	got := pub.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeBuildCompleted, got[0].Type())
	assert.Equal(t, "test-build", got[0].BuildID())
	assert.Equal(t, 2*time.Second, got[0].(*events.BuildCompleted).Duration)
	assert.Empty(t, env.Warnings())
}
