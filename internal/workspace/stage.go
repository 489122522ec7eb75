package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Stage is an isolated copy of the output directory for one build.
type Stage struct {
	outputDir string
	dir       string

	mu      sync.Mutex
	written map[string]int
	done    bool
}

// Begin creates <output>_stage, removing any leftover from an interrupted run,
// and seeds it with the current contents of the output directory.
func Begin(outputDir string) (*Stage, error) {
	dir := outputDir + "_stage"
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "remove stale staging directory").
			WithContext("path", dir).
			Build()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create staging directory").
			WithContext("path", dir).
			Build()
	}
	if err := copyTree(outputDir, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "seed staging directory").
			WithContext("path", outputDir).
			Build()
	}
	slog.Debug("Initialized staging directory", slog.String("staging", dir), slog.String("final", outputDir))
	return &Stage{outputDir: outputDir, dir: dir, written: map[string]int{}}, nil
}

// Dir is the staging directory. Cleanup operates on it.
func (s *Stage) Dir() string { return s.dir }

// OutputDir is the directory the stage will be promoted to.
func (s *Stage) OutputDir() string { return s.outputDir }

// Path resolves an output-relative path inside the stage.
func (s *Stage) Path(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) {
		return "", errors.ValidationError("output path escapes the output directory").
			WithContext("path", rel).
			Build()
	}
	return filepath.Join(s.dir, clean), nil
}

// WriteFile writes an output-relative file into the stage.
func (s *Stage) WriteFile(rel string, data []byte) error {
	p, err := s.Path(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create output directory").
			WithContext("path", rel).
			Build()
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write artifact").
			WithContext("path", rel).
			Build()
	}
	s.mu.Lock()
	s.written[filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))] = len(data)
	s.mu.Unlock()
	return nil
}

// ReadFile reads an output-relative file from the stage.
func (s *Stage) ReadFile(rel string) ([]byte, error) {
	p, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Written lists the paths written during this build in sorted order.
func (s *Stage) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.written))
	for p := range s.written {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Promote swaps the stage into place.
//  1. Move the existing output directory to <output>.prev.
//  2. Rename the stage to the output directory.
//  3. Remove the backup; failure there is only logged.
func (s *Stage) Promote() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return errors.InternalError("staging directory already promoted or aborted").Build()
	}
	if _, err := os.Stat(s.dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "staging directory missing").
			WithContext("path", s.dir).
			Build()
	}

	prev := s.outputDir + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "remove previous backup").
			WithContext("path", prev).
			Build()
	}
	if _, err := os.Stat(s.outputDir); err == nil {
		if err := os.Rename(s.outputDir, prev); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "backup existing output").
				WithContext("path", s.outputDir).
				Build()
		}
	}
	if err := os.Rename(s.dir, s.outputDir); err != nil {
		// Put the previous output back so a failed promotion changes nothing.
		if _, statErr := os.Stat(prev); statErr == nil {
			_ = os.Rename(prev, s.outputDir)
		}
		return errors.WrapError(err, errors.CategoryFileSystem, "promote staging").
			WithContext("path", s.outputDir).
			Build()
	}
	s.done = true
	if err := os.RemoveAll(prev); err != nil {
		slog.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
	}
	slog.Info("Promoted staging directory", logfields.Path(s.outputDir), logfields.Count(len(s.written)))
	return nil
}

// Abort removes the stage. The output directory is left as it was.
func (s *Stage) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if err := os.RemoveAll(s.dir); err != nil {
		slog.Warn("Failed to remove staging directory after abort", logfields.Path(s.dir), logfields.Error(err))
		return
	}
	slog.Debug("Removed staging directory after abort", logfields.Path(s.dir))
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return CopyFile(p, target)
	})
}

// CopyFile copies a single regular file, creating parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
