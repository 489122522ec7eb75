package watch

import (
	"encoding/binary"
	"hash/fnv"
	"io/fs"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Fingerprint summarizes the non-ignored files under Root by path, size and
// modification time. Two equal fingerprints mean no visible change.
func (w *Watcher) Fingerprint() (uint64, error) {
	h := fnv.New64a()
	var buf [16]byte
	err := filepath.WalkDir(w.opts.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(w.opts.Root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		if w.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		_, _ = h.Write([]byte(filepath.ToSlash(rel)))
		binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
		binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
		_, _ = h.Write(buf[:])
		return nil
	})
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "fingerprint source tree").
			WithContext("path", w.opts.Root).
			Build()
	}
	return h.Sum64(), nil
}
