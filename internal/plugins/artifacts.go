package plugins

import (
	"sort"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/emit"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/transform"
)

// OwnerTransform owns artifacts emitted directly by the transform loop.
const OwnerTransform = "transform"

// ArtifactSet tracks emitted artifacts with their phase and owner. Within a
// phase the set is append-only for everyone but an artifact's owner.
type ArtifactSet struct {
	mu        sync.Mutex
	emitter   *emit.Emitter
	phase     Phase
	artifacts map[string]*emit.Artifact
}

// NewArtifactSet creates an empty set writing through emitter.
func NewArtifactSet(emitter *emit.Emitter) *ArtifactSet {
	return &ArtifactSet{emitter: emitter, artifacts: map[string]*emit.Artifact{}}
}

// SetPhase ends the current phase and starts p.
func (s *ArtifactSet) SetPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Phase returns the current phase.
func (s *ArtifactSet) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Emit places, records and writes a new artifact on behalf of owner.
func (s *ArtifactSet) Emit(owner string, a *emit.Artifact) error {
	s.mu.Lock()
	if _, exists := s.artifacts[a.Name]; exists {
		s.mu.Unlock()
		return errors.EmissionCollision(a.Name, s.artifacts[a.Name].Owner, owner).
			WithContext("artifact", a.Name).
			Build()
	}
	a.Phase = string(s.phase)
	a.Owner = owner
	s.artifacts[a.Name] = a
	s.mu.Unlock()

	if err := s.emitter.Emit(a); err != nil {
		s.mu.Lock()
		delete(s.artifacts, a.Name)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Rewrite replaces an emitted artifact's content in place. Artifacts created
// in the current phase may only be rewritten by their owner.
func (s *ArtifactSet) Rewrite(owner, name string, content []byte) error {
	s.mu.Lock()
	a, ok := s.artifacts[name]
	phase := s.phase
	s.mu.Unlock()
	if !ok {
		return errors.InternalError("rewrite of unknown artifact").
			WithContext("artifact", name).
			Build()
	}
	if a.Phase == string(phase) && a.Owner != owner {
		return errors.InternalError("artifact is owned by another plugin in this phase").
			WithContext("artifact", name).
			WithContext("owner", a.Owner).
			WithContext("plugin", owner).
			Build()
	}
	return s.emitter.Rewrite(a, content)
}

// Get returns an artifact by logical name.
func (s *ArtifactSet) Get(name string) (*emit.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[name]
	return a, ok
}

// List returns every artifact sorted by name.
func (s *ArtifactSet) List() []*emit.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*emit.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByKind filters List by manifest kind.
func (s *ArtifactSet) ByKind(kind manifest.Kind) []*emit.Artifact {
	var out []*emit.Artifact
	for _, a := range s.List() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Len is the number of artifacts.
func (s *ArtifactSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

// Results holds transform outputs by module ID for the sealers.
type Results struct {
	mu      sync.Mutex
	outputs map[string]transform.Output
}

// NewResults creates an empty result table.
func NewResults() *Results {
	return &Results{outputs: map[string]transform.Output{}}
}

// Set stores the output of one module.
func (r *Results) Set(id string, out transform.Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[id] = out
}

// Get returns the output of one module.
func (r *Results) Get(id string) (transform.Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.outputs[id]
	return out, ok
}

// Len is the number of stored outputs.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outputs)
}
