package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func TestStagePromoteReplacesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "keep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "keep", "robots.txt"), []byte("ok"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(out, "old.js"), []byte("old"), 0o600))

	st, err := Begin(out)
	require.NoError(t, err)
	assert.Equal(t, out+"_stage", st.Dir())

	seeded, err := st.ReadFile("keep/robots.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(seeded))

	require.NoError(t, st.WriteFile("assets/main.css", []byte("body{}")))
	require.NoError(t, st.WriteFile("main.js", []byte("js")))
	assert.Equal(t, []string{"assets/main.css", "main.js"}, st.Written())

	// Nothing is visible before promotion.
	_, err = os.Stat(filepath.Join(out, "main.js"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, st.Promote())
	data, err := os.ReadFile(filepath.Join(out, "assets", "main.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))
	assert.FileExists(t, filepath.Join(out, "keep", "robots.txt"))
	assert.FileExists(t, filepath.Join(out, "old.js"), "files are only removed by cleanup")
	assert.NoDirExists(t, out+"_stage")
	assert.NoDirExists(t, out+".prev")

	require.Error(t, st.Promote())
}

func TestStageAbortLeavesOutputUntouched(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "manifest.json"), []byte(`{"v":1}`), 0o600))

	st, err := Begin(out)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(st.Dir(), "manifest.json")))
	require.NoError(t, st.WriteFile("manifest.json", []byte(`{"v":2}`)))
	st.Abort()
	st.Abort()

	data, err := os.ReadFile(filepath.Join(out, "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))
	assert.NoDirExists(t, st.Dir())
}

func TestBeginWithoutExistingOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fresh")
	st, err := Begin(out)
	require.NoError(t, err)
	require.NoError(t, st.WriteFile("index.html", []byte("<html></html>")))
	require.NoError(t, st.Promote())
	assert.FileExists(t, filepath.Join(out, "index.html"))
}

func TestBeginRemovesLeftoverStage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(out+"_stage", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out+"_stage", "junk"), []byte("x"), 0o600))

	st, err := Begin(out)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(st.Dir(), "junk"))
	st.Abort()
}

func TestStageRejectsEscapingPaths(t *testing.T) {
	st, err := Begin(filepath.Join(t.TempDir(), "dist"))
	require.NoError(t, err)
	defer st.Abort()

	err = st.WriteFile("../evil.js", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	_, err = st.Path("/etc/passwd")
	require.Error(t, err)
}

func TestLockIsExclusive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dist")
	l, err := AcquireLock(out, "b1")
	require.NoError(t, err)
	assert.Equal(t, out+".lock", l.Path())

	_, err = AcquireLock(out, "b2")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryLocked))
	ce, _ := errors.AsClassified(err)
	holder, _ := ce.Context().GetString("holder")
	assert.Contains(t, holder, "build=b1")

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	l2, err := AcquireLock(out, "b3")
	require.NoError(t, err)
	require.NoError(t, BreakLock(out))
	require.NoError(t, BreakLock(out))
	_ = l2
}
