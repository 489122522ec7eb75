package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Graph is the set of modules reachable from the entry.
type Graph struct {
	Entry   string
	modules []*Module
	byID    map[string]*Module
}

// NewGraph assembles a graph from already-read modules. The first module
// with ID entry is the root.
func NewGraph(entry string, modules []*Module) *Graph {
	g := &Graph{Entry: entry, byID: make(map[string]*Module, len(modules))}
	for _, m := range modules {
		if _, dup := g.byID[m.ID]; dup {
			continue
		}
		g.byID[m.ID] = m
		g.modules = append(g.modules, m)
	}
	return g
}

// Modules returns modules in discovery (breadth-first) order.
func (g *Graph) Modules() []*Module { return g.modules }

// Get returns a module by ID.
func (g *Graph) Get(id string) (*Module, bool) {
	m, ok := g.byID[id]
	return m, ok
}

// Len is the number of distinct modules.
func (g *Graph) Len() int { return len(g.modules) }

// DependencyOrder returns modules depth-first with dependencies before their
// dependents, following imports in source order. Cycles are broken at the
// first revisit.
func (g *Graph) DependencyOrder() []*Module {
	out := make([]*Module, 0, len(g.modules))
	state := make(map[string]uint8, len(g.modules))
	var visit func(id string)
	visit = func(id string) {
		if state[id] != 0 {
			return
		}
		m, ok := g.byID[id]
		if !ok {
			return
		}
		state[id] = 1
		for _, imp := range m.Imports {
			visit(imp.ID)
		}
		state[id] = 2
		out = append(out, m)
	}
	visit(g.Entry)
	return out
}

// ModuleID converts an absolute path into a source-root relative NFC identifier.
func ModuleID(bctx *buildctx.Context, abs string) (string, error) {
	rel, err := bctx.RelSource(abs)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(rel), nil
}

// Walk reads the entry and every module it reaches, breadth first. Each
// resolved path is read at most once, so shared and cyclic imports are safe.
// An unresolvable import or unreadable file is a fatal discovery error.
func Walk(ctx context.Context, bctx *buildctx.Context) (*Graph, error) {
	resolver := NewResolver(bctx)
	g := &Graph{byID: map[string]*Module{}}

	entryID, err := ModuleID(bctx, bctx.Entry)
	if err != nil {
		return nil, errors.DiscoveryError(bctx.Entry, err).Build()
	}
	g.Entry = entryID

	type item struct{ path, id string }
	queue := []item{{bctx.Entry, entryID}}
	visited := map[string]bool{filepath.Clean(bctx.Entry): true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapError(err, errors.CategoryCanceled, "discovery canceled").Build()
		}
		cur := queue[0]
		queue = queue[1:]

		content, err := os.ReadFile(cur.path)
		if err != nil {
			return nil, errors.DiscoveryError(cur.id, err).WithContext("path", cur.path).Build()
		}
		mod := &Module{Path: cur.path, ID: cur.id, Type: DetectType(cur.path), Content: content}

		for _, raw := range scanImports(cur.path, mod.Type, content) {
			resolved, ok := resolver.Resolve(cur.path, raw.specifier, raw.kind)
			if !ok {
				return nil, errors.DiscoveryError(cur.id,
					fmt.Errorf("cannot resolve %q", raw.specifier)).
					WithContext("specifier", raw.specifier).
					Build()
			}
			id, err := ModuleID(bctx, resolved)
			if err != nil {
				return nil, errors.DiscoveryError(cur.id, err).Build()
			}
			mod.Imports = append(mod.Imports, Import{Specifier: raw.specifier, ID: id, Kind: raw.kind})
			if !visited[resolved] {
				visited[resolved] = true
				queue = append(queue, item{resolved, id})
			}
		}

		g.modules = append(g.modules, mod)
		g.byID[mod.ID] = mod
		slog.Debug("Discovered module", logfields.Module(mod.ID), slog.String("type", string(mod.Type)),
			logfields.Count(len(mod.Imports)))
	}
	return g, nil
}
