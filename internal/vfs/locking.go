package vfs

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// Lock locks the file and returns the token needed to change it. A zero
// timeout locks it until Unlock.
func (f *VirtualFile) Lock(timeout time.Duration) (string, error) {
	op := f.fs.begin(errs.OpLock, f.path)

	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	info, err := f.info(errs.OpLock)
	if err != nil {
		return "", op.done(err)
	}
	if info.IsDir() {
		return "", op.done(forbidden(errs.OpLock, f.path.String(), "folders cannot be locked"))
	}
	token, err := f.fs.locks.Lock(f.path, timeout)
	if err != nil {
		if errs.KindOf(err) == errs.ErrForbidden {
			return "", op.done(op.lockDenied(f.path, err))
		}
		return "", op.done(errs.Wrap(errs.OpLock, f.path.String(), errs.ErrStorage, err))
	}
	return token, op.done(nil)
}

// IsLocked reports whether the file holds a live lock
func (f *VirtualFile) IsLocked() (bool, error) {
	locked, err := f.fs.locks.IsLocked(f.path)
	if err != nil {
		return false, f.storage(errs.OpLock, err)
	}
	return locked, nil
}

// Unlock releases the lock of the file
func (f *VirtualFile) Unlock(lockToken string) error {
	op := f.fs.begin(errs.OpUnlock, f.path)

	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	if _, err := f.info(errs.OpUnlock); err != nil {
		return op.done(err)
	}
	if err := f.fs.locks.Unlock(f.path, lockToken); err != nil {
		return op.done(errs.Wrap(errs.OpUnlock, f.path.String(), errs.ErrStorage, err))
	}
	return op.done(nil)
}

// LockExpiry returns when the lock of the file expires. ok is false when
// the file is unlocked; a zero time means the lock never expires.
func (f *VirtualFile) LockExpiry() (expiry time.Time, ok bool, err error) {
	rec, live, err := f.fs.locks.Get(f.path)
	if err != nil {
		return time.Time{}, false, f.storage(errs.OpLock, err)
	}
	return rec.Expiry, live, nil
}
