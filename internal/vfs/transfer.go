package vfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/multierr"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// CopyTo copies f into the folder target. The copy is never locked and
// carries the properties of the original.
func (f *VirtualFile) CopyTo(target *VirtualFile, opts ...TransferOption) (*VirtualFile, error) {
	t := newTransfer(opts)
	op := f.fs.begin(errs.OpCopy, f.path)

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	info, err := f.info(errs.OpCopy)
	if err != nil {
		return nil, op.done(err)
	}
	if f.IsRoot() {
		return nil, op.done(forbidden(errs.OpCopy, f.path.String(), "the root folder cannot be copied"))
	}
	dest, existing, err := f.destination(op, target, t)
	if err != nil {
		return nil, op.done(err)
	}

	staged := op.staged("copy")
	if err := copyTree(f.OSPath(), staged, info); err != nil {
		os.RemoveAll(staged)
		return nil, op.done(op.storage(err))
	}
	if err := op.replace(staged, f.fs.osPath(dest), existing != nil); err != nil {
		os.RemoveAll(staged)
		return nil, op.done(op.storage(err))
	}

	op.dropSidecars(dest)
	if existing != nil {
		op.indexDelete(dest, !existing.IsDir())
	}
	op.warn("Failed to copy properties", f.fs.props.CopyTree(f.path, dest))

	copied := f.fs.file(dest)
	op.indexAdd(copied)
	return copied, op.done(nil)
}

// MoveTo moves f into the folder target. Every locked entry being moved
// must accept the lock token given with WithLockToken; the locks travel
// with their entries.
func (f *VirtualFile) MoveTo(target *VirtualFile, opts ...TransferOption) (*VirtualFile, error) {
	t := newTransfer(opts)
	op := f.fs.begin(errs.OpMove, f.path)

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	info, err := f.info(errs.OpMove)
	if err != nil {
		return nil, op.done(err)
	}
	if f.IsRoot() {
		return nil, op.done(forbidden(errs.OpMove, f.path.String(), "the root folder cannot be moved"))
	}
	dest, existing, err := f.destination(op, target, t)
	if err != nil {
		return nil, op.done(err)
	}
	if err := f.checkLocks(op, t.lockToken); err != nil {
		return nil, op.done(err)
	}

	if err := op.replace(f.OSPath(), f.fs.osPath(dest), existing != nil); err != nil {
		return nil, op.done(op.storage(err))
	}

	op.dropSidecars(dest)
	if existing != nil {
		op.indexDelete(dest, !existing.IsDir())
	}
	op.warn("Failed to move properties", f.fs.props.MoveTree(f.path, dest))
	op.warn("Failed to move locks", f.fs.locks.TransferUnder(f.path, dest))

	op.indexDelete(f.path, !info.IsDir())
	moved := f.fs.file(dest)
	op.indexAdd(moved)
	return moved, op.done(nil)
}

// Rename gives f a new name within its folder
func (f *VirtualFile) Rename(name, lockToken string) (*VirtualFile, error) {
	if f.IsRoot() {
		return nil, forbidden(errs.OpMove, f.path.String(), "the root folder cannot be renamed")
	}
	return f.MoveTo(f.Parent(), WithName(name), WithLockToken(lockToken))
}

// Delete removes f and everything below it. Every locked entry must accept
// lockToken.
func (f *VirtualFile) Delete(lockToken string) error {
	op := f.fs.begin(errs.OpDelete, f.path)

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	info, err := f.info(errs.OpDelete)
	if err != nil {
		return op.done(err)
	}
	if f.IsRoot() {
		return op.done(forbidden(errs.OpDelete, f.path.String(), "the root folder cannot be deleted"))
	}
	if err := f.checkLocks(op, lockToken); err != nil {
		return op.done(err)
	}

	trash := op.staged("trash")
	if err := os.Rename(f.OSPath(), trash); err != nil {
		return op.done(op.storage(err))
	}
	op.warn("Failed to discard deleted entry", os.RemoveAll(trash))
	op.dropSidecars(f.path)
	op.indexDelete(f.path, !info.IsDir())
	return op.done(nil)
}

// destination validates target and resolves the path f is copied or moved
// to. existing is the entry being replaced, nil when the path is free.
func (f *VirtualFile) destination(op *operation, target *VirtualFile, t transfer) (dest paths.Path, existing fs.FileInfo, err error) {
	if target == nil {
		return dest, nil, errs.New(op.name, f.path.String(), errs.ErrServer, "target folder is required")
	}
	if target.fs != f.fs {
		return dest, nil, forbidden(op.name, target.path.String(), "target belongs to another file system")
	}
	if err := target.requireFolder(op.name); err != nil {
		return dest, nil, err
	}

	name := t.name
	if name == "" {
		name = f.Name()
	}
	dest, err = target.childPath(op.name, name)
	if err != nil {
		return dest, nil, err
	}
	if reserved(dest) {
		return dest, nil, forbidden(op.name, dest.String(), "%s is reserved", ControlDirName)
	}
	if dest.IsChildOf(f.path) {
		return dest, nil, forbidden(op.name, dest.String(), "cannot %s %s into itself", op.name, f.path)
	}

	existing, err = f.fs.stat(dest)
	switch {
	case err != nil && missing(err):
		return dest, nil, nil
	case err != nil:
		return dest, nil, errs.Storage(op.name, dest.String(), err)
	case !t.overwrite:
		return dest, nil, conflict(op.name, dest.String(), "%s already exists", dest)
	case f.path.HasPrefix(dest):
		return dest, nil, forbidden(op.name, dest.String(), "cannot replace %s with its own content", dest)
	}

	locked, err := f.fs.locks.LockedUnder(dest)
	if err != nil {
		return dest, nil, errs.Storage(op.name, dest.String(), err)
	}
	if len(locked) > 0 {
		f.fs.metrics.IncLockConflicts()
		return dest, nil, forbidden(op.name, locked[0].String(), "%s is locked", locked[0])
	}
	return dest, existing, nil
}

// checkLocks verifies token against every live lock at f and below
func (f *VirtualFile) checkLocks(op *operation, token string) error {
	locked, err := f.fs.locks.LockedUnder(f.path)
	if err != nil {
		return op.storage(err)
	}
	for _, p := range locked {
		if err := f.fs.locks.Check(p, token); err != nil {
			return op.lockDenied(p, err)
		}
	}
	return nil
}

// replace renames staged to dest. An entry already at dest is moved aside
// first and restored when the rename fails.
func (o *operation) replace(staged, dest string, exists bool) error {
	if !exists {
		return os.Rename(staged, dest)
	}
	trash := o.staged("trash")
	if err := os.Rename(dest, trash); err != nil {
		return err
	}
	if err := os.Rename(staged, dest); err != nil {
		return multierr.Append(err, os.Rename(trash, dest))
	}
	o.warn("Failed to discard replaced entry", os.RemoveAll(trash))
	return nil
}

// copyTree copies the file or directory src to dst, which must not exist
func copyTree(src, dst string, info fs.FileInfo) error {
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}
	if err := os.Mkdir(dst, info.Mode().Perm()|0o700); err != nil {
		return err
	}

	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		}
		return nil
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	return multierr.Append(err, out.Close())
}
