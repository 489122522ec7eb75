package workspace

import (
	"fmt"
	"os"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Lock is an exclusive claim on an output directory.
type Lock struct {
	path string
}

// LockPath returns the lock file used for outputDir.
func LockPath(outputDir string) string {
	return strings.TrimRight(outputDir, string(os.PathSeparator)) + ".lock"
}

// AcquireLock creates <output>.lock exclusively. If another build holds it the
// call fails immediately with a locked error naming the holder.
func AcquireLock(outputDir, buildID string) (*Lock, error) {
	path := LockPath(outputDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := os.ReadFile(path)
			return nil, errors.NewError(errors.CategoryLocked, "another build is using the output directory").
				WithContext("path", path).
				WithContext("holder", strings.TrimSpace(string(holder))).
				UserAction().
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create lock file").
			WithContext("path", path).
			Build()
	}
	_, werr := fmt.Fprintf(f, "pid=%d build=%s since=%s\n", os.Getpid(), buildID, time.Now().UTC().Format(time.RFC3339))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return nil, errors.FileSystemError("write lock file").WithContext("path", path).Build()
	}
	return &Lock{path: path}, nil
}

// Path is the lock file location.
func (l *Lock) Path() string { return l.path }

// Release removes the lock file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.CategoryFileSystem, "remove lock file").Build()
	}
	return nil
}

// BreakLock removes a lock left behind by a crashed build.
func BreakLock(outputDir string) error {
	err := os.Remove(LockPath(outputDir))
	if err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.CategoryFileSystem, "remove lock file").Build()
	}
	return nil
}
