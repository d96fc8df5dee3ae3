package vfs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/id"
)

func TestLockFile(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	token, err := file.Lock(0)
	require.NoError(t, err)
	assert.True(t, id.IsValidLockToken(token))

	locked, err := file.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)
	assert.FileExists(t, fx.sidecarPath("locks", ".lock", file.Path()))
}

func TestZeroTimeoutLockNeverExpires(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)
	fx.lock(file)

	fx.clock.Advance(24 * 365 * time.Hour)
	locked, err := file.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)

	expiry, ok, err := file.LockExpiry()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, expiry.IsZero())
}

func TestLockExpiresAfterTimeout(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)
	_, err := file.Lock(500 * time.Millisecond)
	require.NoError(t, err)

	expiry, ok, err := file.LockExpiry()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fx.clock.Now().Add(500*time.Millisecond).UnixMilli(), expiry.UnixMilli())

	fx.clock.Advance(501 * time.Millisecond)
	locked, err := file.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoFileExists(t, fx.sidecarPath("locks", ".lock", file.Path()))

	require.NoError(t, file.UpdateContentString("free again", ""))
}

func TestLockExpiresInRealTime(t *testing.T) {
	dir := t.TempDir()
	lfs, err := New(dir)
	require.NoError(t, err)
	defer lfs.Close()
	file, err := lfs.Root().CreateFileString("file", defaultContent)
	require.NoError(t, err)

	_, err = file.Lock(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		locked, err := file.IsLocked()
		return err == nil && !locked
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLockHeldLockIsForbidden(t *testing.T) {
	metrics := monitoring.NewMetrics()
	fx := newFixture(t, WithMetrics(metrics))
	file := fx.file(fx.root(), "file", defaultContent)
	fx.lock(file)

	_, err := file.Lock(0)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, int64(1), metrics.Snapshot().LockConflicts)
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveLocks)
}

func TestLockFolderIsForbidden(t *testing.T) {
	fx := newFixture(t)
	folder := fx.folder(fx.root(), "folder")

	_, err := folder.Lock(0)
	assert.True(t, errors.Is(err, ErrForbidden))
	locked, err := folder.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockNegativeTimeout(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	_, err := file.Lock(-time.Second)
	assert.True(t, errors.Is(err, ErrServer))
}

func TestLockMissingFile(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)
	require.NoError(t, file.Delete(""))

	_, err := file.Lock(0)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUnlockFile(t *testing.T) {
	metrics := monitoring.NewMetrics()
	fx := newFixture(t, WithMetrics(metrics))
	file := fx.file(fx.root(), "file", defaultContent)
	token := fx.lock(file)
	assert.Equal(t, int64(1), metrics.Snapshot().ActiveLocks)

	require.NoError(t, file.Unlock(token))
	locked, err := file.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoFileExists(t, fx.sidecarPath("locks", ".lock", file.Path()))
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveLocks)
}

func TestUnlockErrors(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	assert.True(t, errors.Is(file.Unlock("anything"), ErrForbidden), "not locked")

	token := fx.lock(file)
	assert.True(t, errors.Is(file.Unlock(""), ErrForbidden), "missing token")
	assert.True(t, errors.Is(file.Unlock(token+"_invalid"), ErrForbidden), "invalid token")

	locked, err := file.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)
}
