// Package transform binds rule transform references to capabilities and runs
// them for one module at a time.
package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/discovery"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Kind is what the pipeline does with a transform output.
type Kind string

const (
	KindScript Kind = "script" // linked by the bundler
	KindStyle  Kind = "style"  // collected by CSS extraction
	KindAsset  Kind = "asset"  // emitted as a file or inlined
)

// Input is the material handed to a capability.
type Input struct {
	Module  *discovery.Module
	Content []byte // module content after build-phase source hooks
	Options config.Options
}

// Output is the result of a transform.
type Output struct {
	Kind       Kind   `json:"kind"`
	Content    []byte `json:"content"`
	Inline     bool   `json:"inline,omitempty"`
	DataURI    string `json:"data_uri,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
	Filename   string `json:"filename,omitempty"`    // output name template for assets
	PublicPath string `json:"public_path,omitempty"` // public prefix override for assets
}

// Capability is an external transform engine bound behind a stable interface.
type Capability interface {
	Transform(ctx context.Context, in Input) (Output, error)
}

// Func adapts a function to Capability.
type Func func(ctx context.Context, in Input) (Output, error)

func (f Func) Transform(ctx context.Context, in Input) (Output, error) { return f(ctx, in) }

// Registry maps transform references (a rule's use field) to capabilities.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: map[string]Capability{}}
}

// NewDefaultRegistry registers every built-in capability.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("script", ScriptCapability{})
	r.Register("style", StyleCapability{})
	r.Register("asset", AssetCapability{})
	r.Register("markdown", NewMarkdownCapability())
	r.Register("raw", RawCapability{})
	r.Register("command", NewCommandCapability(r))
	return r
}

// Register binds name to capability, replacing any previous binding.
func (r *Registry) Register(name string, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[name] = c
}

// Get returns the capability bound to name.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Names lists registered references in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for n := range r.caps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check verifies that every rule references a registered capability.
func (r *Registry) Check(uses map[string]string) error {
	for rule, use := range uses {
		if _, ok := r.Get(use); !ok {
			return errors.ConfigError(fmt.Sprintf("rule references unknown transform %q", use)).
				WithContext("rule", rule).
				WithContext("known", r.Names()).
				Build()
		}
	}
	return nil
}

// Passthrough is the output for a module no rule matched: scripts and
// stylesheets keep their content, everything else is emitted as a file.
func Passthrough(mod *discovery.Module) Output {
	switch mod.Type {
	case discovery.TypeScript:
		return Output{Kind: KindScript, Content: mod.Content}
	case discovery.TypeStyle:
		return Output{Kind: KindStyle, Content: mod.Content}
	default:
		return Output{
			Kind:     KindAsset,
			Content:  mod.Content,
			MIMEType: mimeFor(mod.ID, ""),
			Filename: defaultAssetFilename,
		}
	}
}
