// Package emit decides where artifacts land and writes them to the stage.
//
// The emitter owns naming policy: in production output paths carry a content
// hash, in development they are literal. Every placed artifact is recorded in
// the manifest, which rejects two artifacts claiming the same path.
package emit

import (
	"log/slog"
	"path"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/buildctx"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

// Artifact is one unit of output. Name is its logical (manifest) name.
type Artifact struct {
	Name       string
	Kind       manifest.Kind
	Content    []byte
	Template   string // filename template; Name's base is used for [name]
	PublicPath string // overrides the mode public path when set
	Inline     bool
	DataURI    string

	// Set by Place.
	Hash      string
	Path      string
	PublicRef string

	// Provenance for the append-only phase rule.
	Phase string
	Owner string
}

// Writer persists output-relative files. *workspace.Stage implements it.
type Writer interface {
	WriteFile(rel string, data []byte) error
	ReadFile(rel string) ([]byte, error)
}

// Emitter places and writes artifacts for one build.
type Emitter struct {
	bctx     *buildctx.Context
	naming   Naming
	manifest *manifest.Manifest
	out      Writer
	recorder metrics.Recorder
}

// New creates an emitter writing through out and recording into m.
func New(bctx *buildctx.Context, m *manifest.Manifest, out Writer, recorder metrics.Recorder) *Emitter {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Emitter{
		bctx:     bctx,
		naming:   Naming{Production: bctx.Production(), HashLength: bctx.HashLength},
		manifest: m,
		out:      out,
		recorder: recorder,
	}
}

// Manifest returns the manifest this emitter records into.
func (e *Emitter) Manifest() *manifest.Manifest { return e.manifest }

// Naming returns the naming policy in effect.
func (e *Emitter) Naming() Naming { return e.naming }

// Place computes hash, output path and public reference and records the
// artifact in the manifest. Inline artifacts get no path; their public
// reference is the data URI.
func (e *Emitter) Place(a *Artifact) error {
	if a.Inline {
		a.Path = ""
		a.PublicRef = a.DataURI
		if e.naming.Production {
			a.Hash = ContentHash(a.Content)[:e.hashLen()]
		}
		return e.manifest.Record(a.Name, e.entry(a))
	}

	full := ContentHash(a.Content)
	if e.naming.Production {
		a.Hash = full[:e.hashLen()]
	} else {
		a.Hash = ""
	}
	base := path.Base(a.Name)
	ext := path.Ext(base)
	template := a.Template
	if template == "" {
		template = "[name][ext]"
	}
	a.Path = e.naming.Expand(template, strings.TrimSuffix(base, ext), ext, full)
	if a.PublicPath != "" {
		a.PublicRef = buildctx.JoinPublic(a.PublicPath, path.Base(a.Path))
	} else {
		a.PublicRef = e.bctx.PublicRef(a.Path)
	}
	return e.manifest.Record(a.Name, e.entry(a))
}

// Write stores a placed artifact in the stage.
func (e *Emitter) Write(a *Artifact) error {
	if a.Inline {
		return nil
	}
	if a.Path == "" {
		return errors.InternalError("artifact written before placement").
			WithContext("artifact", a.Name).
			Build()
	}
	if err := e.out.WriteFile(a.Path, a.Content); err != nil {
		return err
	}
	e.recorder.AddEmittedBytes(string(a.Kind), len(a.Content))
	slog.Debug("Emitted artifact", logfields.Artifact(a.Name), logfields.Path(a.Path), logfields.Size(len(a.Content)))
	return nil
}

// Emit places and writes an artifact.
func (e *Emitter) Emit(a *Artifact) error {
	if err := e.Place(a); err != nil {
		return err
	}
	return e.Write(a)
}

// Rewrite replaces the content of an emitted artifact without changing its
// path or hash. Used for in-place minification.
func (e *Emitter) Rewrite(a *Artifact, content []byte) error {
	if a.Inline || a.Path == "" {
		return errors.InternalError("only emitted files can be rewritten").
			WithContext("artifact", a.Name).
			Build()
	}
	if err := e.out.WriteFile(a.Path, content); err != nil {
		return err
	}
	a.Content = content
	e.manifest.Resize(a.Name, len(content))
	return nil
}

func (e *Emitter) hashLen() int {
	if e.bctx.HashLength <= 0 || e.bctx.HashLength > 64 {
		return 64
	}
	return e.bctx.HashLength
}

func (e *Emitter) entry(a *Artifact) manifest.Entry {
	return manifest.Entry{
		Path:      a.Path,
		PublicRef: a.PublicRef,
		Hash:      a.Hash,
		Size:      len(a.Content),
		Kind:      a.Kind,
		Inline:    a.Inline,
	}
}
