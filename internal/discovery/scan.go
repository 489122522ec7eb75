package discovery

import (
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	esmImportRe  = regexp.MustCompile(`(?m)(?:^|[;\s])(?:import|export)\s+(?:[\w*${}\s,]+?\s+from\s+)?["']([^"'\n]+)["']`)
	requireRe    = regexp.MustCompile(`\brequire\(\s*["']([^"'\n]+)["']\s*\)`)
	dynImportRe  = regexp.MustCompile(`\bimport\(\s*["']([^"'\n]+)["']\s*\)`)
	cssImportRe  = regexp.MustCompile(`@import\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?`)
	cssURLRe     = regexp.MustCompile(`url\(\s*["']?([^"')]+?)["']?\s*\)`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
)

type rawImport struct {
	specifier string
	kind      ImportKind
}

// scanImports extracts import specifiers from module content in order of
// appearance. Each specifier is reported once. Scripts and plain CSS are
// parsed by esbuild; content esbuild rejects, and preprocessor sheets, fall
// back to a textual scan so syntax errors surface when the module is
// transformed.
func scanImports(p string, t Type, content []byte) []rawImport {
	if found, ok := parseImports(p, t, content); ok {
		return found
	}
	return matchImports(t, content)
}

var resolveKinds = map[api.ResolveKind]ImportKind{
	api.ResolveJSImportStatement: ImportESM,
	api.ResolveJSRequireCall:     ImportRequire,
	api.ResolveJSRequireResolve:  ImportRequire,
	api.ResolveJSDynamicImport:   ImportDynamic,
	api.ResolveCSSImportRule:     ImportCSSImport,
	api.ResolveCSSURLToken:       ImportURL,
}

// kindRank picks one kind when a specifier is imported more than one way.
var kindRank = map[ImportKind]int{
	ImportESM:       0,
	ImportRequire:   1,
	ImportDynamic:   2,
	ImportCSSImport: 3,
	ImportURL:       4,
}

// parseImports records every path esbuild asks to resolve and marks it
// external, so nothing beyond the module itself is read.
func parseImports(p string, t Type, content []byte) ([]rawImport, bool) {
	var loader api.Loader
	switch {
	case t == TypeScript:
		loader = scriptLoader(p)
	case t == TypeStyle && strings.EqualFold(path.Ext(p), ".css"):
		loader = api.LoaderCSS
	default:
		return nil, false
	}

	var (
		mu   sync.Mutex
		hits []rawImport
	)
	collector := api.Plugin{
		Name: "imports",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind != api.ResolveEntryPoint {
					kind, ok := resolveKinds[args.Kind]
					if !ok {
						kind = ImportESM
					}
					mu.Lock()
					hits = append(hits, rawImport{specifier: args.Path, kind: kind})
					mu.Unlock()
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
	res := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(content),
			Sourcefile: path.Base(p),
			Loader:     loader,
		},
		Bundle:   true,
		Format:   api.FormatESModule,
		Write:    false,
		LogLevel: api.LogLevelSilent,
		Plugins:  []api.Plugin{collector},
	})
	if len(res.Errors) > 0 {
		return nil, false
	}

	src := string(content)
	type located struct {
		rawImport
		pos int
	}
	var ordered []located
	seen := map[string]int{}
	for _, h := range hits {
		spec := strings.TrimSpace(h.specifier)
		if spec == "" || IsExternalURL(spec) {
			continue
		}
		if h.kind == ImportURL {
			spec = StripQuery(spec)
		}
		if i, ok := seen[spec]; ok {
			if kindRank[h.kind] < kindRank[ordered[i].kind] {
				ordered[i].kind = h.kind
			}
			continue
		}
		seen[spec] = len(ordered)
		ordered = append(ordered, located{rawImport{specifier: spec, kind: h.kind}, sourcePos(src, h.specifier)})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].pos < ordered[j].pos })
	found := make([]rawImport, 0, len(ordered))
	for _, l := range ordered {
		found = append(found, l.rawImport)
	}
	return found, true
}

// sourcePos is the first quoted occurrence of spec, or the first bare one
// for unquoted CSS url() tokens.
func sourcePos(src, spec string) int {
	best := -1
	for _, q := range []string{`"`, `'`, "`"} {
		if i := strings.Index(src, q+spec+q); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		best = strings.Index(src, spec)
	}
	if best < 0 {
		return len(src)
	}
	return best
}

func scriptLoader(p string) api.Loader {
	switch strings.ToLower(path.Ext(p)) {
	case ".jsx":
		return api.LoaderJSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	default:
		return api.LoaderJS
	}
}

// matchImports is the textual scan used when esbuild cannot parse a module.
func matchImports(t Type, content []byte) []rawImport {
	src := blockComment.ReplaceAllString(string(content), "")
	if t == TypeScript {
		src = lineComment.ReplaceAllString(src, "")
	}
	var found []rawImport
	seen := map[string]bool{}
	add := func(spec string, kind ImportKind) {
		spec = strings.TrimSpace(spec)
		if spec == "" || seen[spec] {
			return
		}
		seen[spec] = true
		found = append(found, rawImport{specifier: spec, kind: kind})
	}

	switch t {
	case TypeScript:
		type hit struct {
			pos  int
			spec string
			kind ImportKind
		}
		var hits []hit
		collect := func(re *regexp.Regexp, kind ImportKind) {
			for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
				hits = append(hits, hit{pos: m[2], spec: src[m[2]:m[3]], kind: kind})
			}
		}
		collect(esmImportRe, ImportESM)
		collect(requireRe, ImportRequire)
		collect(dynImportRe, ImportDynamic)
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
		for _, h := range hits {
			add(h.spec, h.kind)
		}
	case TypeStyle:
		for _, m := range cssImportRe.FindAllStringSubmatchIndex(src, -1) {
			if spec := src[m[2]:m[3]]; !IsExternalURL(spec) {
				add(spec, ImportCSSImport)
			}
		}
		for _, m := range cssURLRe.FindAllStringSubmatchIndex(src, -1) {
			if insideImport(src, m[0]) {
				continue
			}
			spec := src[m[2]:m[3]]
			if IsExternalURL(spec) {
				continue
			}
			add(StripQuery(spec), ImportURL)
		}
	}
	return found
}

// insideImport reports whether a url( at pos belongs to an @import statement.
func insideImport(src string, pos int) bool {
	lineStart := strings.LastIndexAny(src[:pos], ";\n}") + 1
	return strings.Contains(src[lineStart:pos], "@import")
}

// IsExternalURL reports references that are never resolved against the source tree.
func IsExternalURL(spec string) bool {
	s := strings.ToLower(strings.TrimSpace(spec))
	return strings.HasPrefix(s, "data:") ||
		strings.HasPrefix(s, "http:") ||
		strings.HasPrefix(s, "https:") ||
		strings.HasPrefix(s, "//") ||
		strings.HasPrefix(s, "#")
}

// StripQuery removes ?query and #fragment suffixes such as font ?#iefix hacks.
func StripQuery(spec string) string {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		return spec[:i]
	}
	return spec
}
