// Package manifest records the mapping from logical asset names to emitted
// files. It is the contract between the emitter and the HTML phase and is
// serialized to manifest.json as the last write of a successful build.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Kind classifies manifest entries.
type Kind string

const (
	KindScript Kind = "script"
	KindStyle  Kind = "style"
	KindAsset  Kind = "asset"
	KindHTML   Kind = "html"
	KindCopy   Kind = "copy"
)

// Entry describes one emitted (or inlined) artifact.
type Entry struct {
	Path      string `json:"path,omitempty"` // output-relative, empty when inlined
	PublicRef string `json:"public_ref"`
	Hash      string `json:"hash,omitempty"` // production only
	Size      int    `json:"size"`
	Kind      Kind   `json:"kind"`
	Inline    bool   `json:"inline,omitempty"`
}

// Manifest is safe for concurrent use; every mutation takes the same lock so
// path assignment has a single writer.
type Manifest struct {
	mu         sync.RWMutex
	buildID    string
	mode       string
	configHash string
	entries    map[string]Entry
	byPath     map[string]string
	modules    map[string]string
	finalized  bool
}

// New creates an empty manifest for one build.
func New(buildID, mode, configHash string) *Manifest {
	return &Manifest{
		buildID:    buildID,
		mode:       mode,
		configHash: configHash,
		entries:    map[string]Entry{},
		byPath:     map[string]string{},
		modules:    map[string]string{},
	}
}

// Record adds an entry under a logical name. Two names claiming the same
// output path is an emission collision. Re-recording a name with the same
// path updates it; with a different path it is also a collision. After
// Finalize existing entries can no longer be replaced.
func (m *Manifest) Record(name string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.entries[name]; ok {
		if m.finalized {
			return errors.InternalError("manifest is finalized").
				WithContext("artifact", name).
				Build()
		}
		if prev.Path != e.Path {
			return errors.EmissionCollision(e.Path, name, name).
				WithContext("previous_path", prev.Path).
				Build()
		}
	}
	if e.Path != "" {
		if owner, ok := m.byPath[e.Path]; ok && owner != name {
			return errors.EmissionCollision(e.Path, owner, name).Build()
		}
		m.byPath[e.Path] = name
	}
	m.entries[name] = e
	return nil
}

// Resize updates the recorded size of an entry whose content was rewritten
// in place (minification). Paths and hashes never change.
func (m *Manifest) Resize(name string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[name]; ok {
		e.Size = size
		m.entries[name] = e
	}
}

// RecordModule stores the source content hash of a module.
func (m *Manifest) RecordModule(id, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[id] = hash
}

// Finalize freezes existing entries. It is called by the HTML phase once it
// has taken the references it injects.
func (m *Manifest) Finalize() {
	m.mu.Lock()
	m.finalized = true
	m.mu.Unlock()
}

// Finalized reports whether Finalize has been called.
func (m *Manifest) Finalized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finalized
}

// Get returns the entry for a logical name.
func (m *Manifest) Get(name string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	return e, ok
}

// Owner returns the logical name that claimed an output path.
func (m *Manifest) Owner(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byPath[path]
	return n, ok
}

// Named pairs a logical name with its entry.
type Named struct {
	Name string
	Entry
}

// ByKind returns entries of one kind sorted by logical name.
func (m *Manifest) ByKind(kind Kind) []Named {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Named
	for name, e := range m.entries {
		if e.Kind == kind {
			out = append(out, Named{Name: name, Entry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot is the serialized form of a manifest.
type Snapshot struct {
	BuildID    string            `json:"build_id"`
	Mode       string            `json:"mode"`
	ConfigHash string            `json:"config_hash,omitempty"`
	Assets     map[string]Entry  `json:"assets"`
	Modules    map[string]string `json:"modules"`
}

// Snapshot returns a copy of the current state.
func (m *Manifest) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		BuildID:    m.buildID,
		Mode:       m.mode,
		ConfigHash: m.configHash,
		Assets:     make(map[string]Entry, len(m.entries)),
		Modules:    make(map[string]string, len(m.modules)),
	}
	for k, v := range m.entries {
		s.Assets[k] = v
	}
	for k, v := range m.modules {
		s.Modules[k] = v
	}
	return s
}

// ToJSON serializes the manifest. Map keys are emitted in sorted order.
func (m *Manifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// FromJSON deserializes a manifest snapshot.
func FromJSON(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &s, nil
}

// Load reads a manifest.json from disk.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewError(errors.CategoryNotFound, "manifest not found").
				WithContext("path", path).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read manifest").
			WithContext("path", path).
			Build()
	}
	return FromJSON(data)
}

// Hash fingerprints the asset paths and module hashes, ignoring build identity.
// Two builds of the same inputs produce the same hash.
func (s *Snapshot) Hash() (string, error) {
	hashInput := struct {
		Assets  map[string]Entry  `json:"assets"`
		Modules map[string]string `json:"modules"`
	}{s.Assets, s.Modules}
	data, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

// Names returns the logical asset names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Assets))
	for n := range s.Assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
