package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
)

func TestNewRequiresExistingRoot(t *testing.T) {
	missingDir := filepath.Join(t.TempDir(), "missing")

	_, err := New(missingDir)
	assert.True(t, errors.Is(err, ErrNotFound))

	lfs, err := New(missingDir, WithCreateRoot())
	require.NoError(t, err)
	defer lfs.Close()
	assert.DirExists(t, missingDir)
	assert.DirExists(t, filepath.Join(missingDir, ControlDirName, "props"))
	assert.DirExists(t, filepath.Join(missingDir, ControlDirName, "locks"))
}

func TestNewRejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New(file)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestRoot(t *testing.T) {
	fx := newFixture(t)
	root := fx.root()

	assert.True(t, root.IsRoot())
	assert.True(t, root.IsFolder())
	assert.Equal(t, "/", root.Path().String())
	assert.Equal(t, "", root.Name())
	assert.Nil(t, root.Parent())
	assert.Equal(t, fx.fs.RootDir(), root.OSPath())
}

func TestGetAndLookup(t *testing.T) {
	fx := newFixture(t)
	fx.folder(fx.root(), "a/b")
	fx.file(fx.get("/a/b"), "f", "x")

	f, err := fx.fs.Get(paths.MustParse("/a/b/f"))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.IsFile())

	missing, err := fx.fs.Lookup("/a/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	control, err := fx.fs.Lookup("/" + ControlDirName)
	require.NoError(t, err)
	assert.Nil(t, control)

	_, err = fx.fs.Lookup("/a//b")
	assert.True(t, errors.Is(err, ErrInvalidPath))
}

func TestLocksSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	lfs, err := New(dir)
	require.NoError(t, err)
	f, err := lfs.Root().CreateFileString("file", defaultContent)
	require.NoError(t, err)
	token, err := f.Lock(0)
	require.NoError(t, err)
	require.NoError(t, lfs.Close())

	metrics := monitoring.NewMetrics()
	reopened, err := New(dir, WithMetrics(metrics))
	require.NoError(t, err)
	defer reopened.Close()

	f, err = reopened.Lookup("/file")
	require.NoError(t, err)
	locked, err := f.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveLocks)

	assert.True(t, errors.Is(f.UpdateContentString("other", ""), ErrForbidden))
	require.NoError(t, f.Unlock(token))
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveLocks)
}

func TestExpiredLocksArePurgedOnOpen(t *testing.T) {
	dir := t.TempDir()
	clock := newFakeClock()
	lfs, err := New(dir, WithClock(clock.Now))
	require.NoError(t, err)
	f, err := lfs.Root().CreateFileString("file", defaultContent)
	require.NoError(t, err)
	_, err = f.Lock(time.Second)
	require.NoError(t, err)
	require.NoError(t, lfs.Close())

	clock.Advance(2 * time.Second)
	reopened, err := New(dir, WithClock(clock.Now))
	require.NoError(t, err)
	defer reopened.Close()

	assert.NoFileExists(t, filepath.Join(dir, ControlDirName, "locks", "file.lock"))
}

func TestLockSweeperPurgesExpiredLocks(t *testing.T) {
	clock := newFakeClock()
	fx := newFixture(t, WithClock(clock.Now), WithLockSweep(10*time.Millisecond))
	f := fx.file(fx.root(), "file", defaultContent)
	_, err := f.Lock(time.Second)
	require.NoError(t, err)
	lockFile := fx.sidecarPath("locks", ".lock", f.Path())
	require.FileExists(t, lockFile)

	clock.Advance(2 * time.Second)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(lockFile)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStagingLeftoversArePurged(t *testing.T) {
	dir := t.TempDir()
	staging := filepath.Join(dir, ControlDirName, stagingDir)
	require.NoError(t, os.MkdirAll(staging, 0o755))
	stale := filepath.Join(staging, "copy-stale")
	fresh := filepath.Join(staging, "copy-fresh")
	require.NoError(t, os.Mkdir(stale, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	old := time.Now().Add(-2 * stagingMaxAge)
	require.NoError(t, os.Chtimes(stale, old, old))

	lfs, err := New(dir)
	require.NoError(t, err)
	defer lfs.Close()

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}

func TestOperationsAreCounted(t *testing.T) {
	metrics := monitoring.NewMetrics()
	fx := newFixture(t, WithMetrics(metrics))

	fx.file(fx.root(), "file", defaultContent)
	_, err := fx.root().CreateFileString("file", defaultContent)
	require.Error(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.TotalOperations)
	assert.Equal(t, int64(1), snap.FailedOperations)
}

func TestCloseIsIdempotent(t *testing.T) {
	lfs, err := New(t.TempDir(), WithLockSweep(time.Millisecond))
	require.NoError(t, err)
	assert.NoError(t, lfs.Close())
	assert.NoError(t, lfs.Close())
}

func TestSymlinksAreNotFollowed(t *testing.T) {
	fx := newFixture(t)
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("host data"), 0o644))

	folder := fx.folder(fx.root(), "dir")
	stale := fx.file(folder, "secret.txt", "inside")
	require.NoError(t, os.RemoveAll(filepath.Join(fx.dir, "dir")))
	if err := os.Symlink(outside, filepath.Join(fx.dir, "dir")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(secret, filepath.Join(fx.dir, "link.txt")))

	for _, p := range []string{"/dir", "/dir/secret.txt", "/link.txt"} {
		f, err := fx.fs.Lookup(p)
		require.NoError(t, err)
		assert.Nil(t, f, p)
	}

	children, err := fx.root().Children()
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = stale.ContentString()
	assert.True(t, errors.Is(err, ErrNotFound))
	err = stale.UpdateContentString("overwritten", "")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = folder.CreateFileString("new.txt", "x")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(stale.Delete(""), ErrNotFound))
	_, err = stale.Lock(0)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = stale.CopyTo(fx.root())
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = stale.MoveTo(fx.root())
	assert.True(t, errors.Is(err, ErrNotFound))

	data, err := os.ReadFile(secret)
	require.NoError(t, err)
	assert.Equal(t, "host data", string(data))
	assert.NoFileExists(t, filepath.Join(outside, "new.txt"))
}

func TestStorageErrorsShowLogicalPaths(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "a.txt", "v1")

	staging := filepath.Join(fx.dir, ControlDirName, "tmp")
	require.NoError(t, os.RemoveAll(staging))
	require.NoError(t, os.WriteFile(staging, nil, 0o644))

	err := file.UpdateContentString("v2", "")
	require.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "/a.txt")
	assert.NotContains(t, err.Error(), fx.dir)
	fx.assertContent(file, "v1")
}
