package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
)

// Resolver maps import specifiers to files using the alias table and the
// extension list. Bare specifiers are looked up under node_modules in the
// source root; package.json fields are not interpreted.
type Resolver struct {
	sourceRoot string
	aliases    []alias
	extensions []string
}

type alias struct {
	name   string
	target string
}

// NewResolver builds a resolver from the build context.
func NewResolver(bctx *buildctx.Context) *Resolver {
	r := &Resolver{sourceRoot: bctx.SourceRoot, extensions: bctx.Extensions}
	for name, target := range bctx.Aliases {
		r.aliases = append(r.aliases, alias{name: name, target: target})
	}
	// Longest alias first so "@app/ui" beats "@app".
	sort.Slice(r.aliases, func(i, j int) bool {
		if len(r.aliases[i].name) != len(r.aliases[j].name) {
			return len(r.aliases[i].name) > len(r.aliases[j].name)
		}
		return r.aliases[i].name < r.aliases[j].name
	})
	return r
}

// Resolve returns the absolute path for specifier imported from importer.
func (r *Resolver) Resolve(importer, specifier string, kind ImportKind) (string, bool) {
	base := r.candidateBase(importer, specifier, kind)
	if base == "" {
		return "", false
	}
	return r.tryFile(base)
}

func (r *Resolver) candidateBase(importer, spec string, kind ImportKind) string {
	spec = filepath.FromSlash(spec)
	for _, a := range r.aliases {
		if spec == a.name {
			return a.target
		}
		if strings.HasPrefix(spec, a.name+string(filepath.Separator)) {
			return filepath.Join(a.target, strings.TrimPrefix(spec, a.name))
		}
	}
	switch {
	case strings.HasPrefix(spec, "."+string(filepath.Separator)),
		strings.HasPrefix(spec, ".."+string(filepath.Separator)),
		spec == "." || spec == "..":
		return filepath.Join(filepath.Dir(importer), spec)
	case filepath.IsAbs(spec):
		return filepath.Join(r.sourceRoot, spec)
	case kind == ImportURL || kind == ImportCSSImport:
		// CSS treats bare references as relative, like css-loader does for url().
		if strings.HasPrefix(spec, "~") {
			return filepath.Join(r.sourceRoot, "node_modules", strings.TrimPrefix(spec, "~"))
		}
		return filepath.Join(filepath.Dir(importer), spec)
	default:
		return filepath.Join(r.sourceRoot, "node_modules", spec)
	}
}

func (r *Resolver) tryFile(base string) (string, bool) {
	if isFile(base) {
		return base, true
	}
	for _, ext := range r.extensions {
		if isFile(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range r.extensions {
		idx := filepath.Join(base, "index"+ext)
		if isFile(idx) {
			return idx, true
		}
	}
	return "", false
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
