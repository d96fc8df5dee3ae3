package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

const filePerm fs.FileMode = 0o644

// CreateFile creates the file name in the folder with the content of r
func (f *VirtualFile) CreateFile(name string, r io.Reader) (*VirtualFile, error) {
	target, err := f.childPath(errs.OpCreate, name)
	if err != nil {
		return nil, err
	}
	op := f.fs.begin(errs.OpCreate, target)

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	if err := f.requireFolder(errs.OpCreate); err != nil {
		return nil, op.done(err)
	}
	if reserved(target) {
		return nil, op.done(forbidden(errs.OpCreate, target.String(), "%s is reserved", ControlDirName))
	}
	dest := f.fs.osPath(target)
	if _, err := os.Lstat(dest); err == nil {
		return nil, op.done(conflict(errs.OpCreate, target.String(), "%s already exists", target))
	} else if !missing(err) {
		return nil, op.done(op.storage(err))
	}

	if err := f.fs.writeAtomic(dest, r, filePerm); err != nil {
		return nil, op.done(op.storage(err))
	}
	op.dropSidecars(target)

	created := f.fs.file(target)
	op.indexAdd(created)
	return created, op.done(nil)
}

// CreateFileBytes creates the file name holding data
func (f *VirtualFile) CreateFileBytes(name string, data []byte) (*VirtualFile, error) {
	return f.CreateFile(name, bytes.NewReader(data))
}

// CreateFileString creates the file name holding s
func (f *VirtualFile) CreateFileString(name, s string) (*VirtualFile, error) {
	return f.CreateFile(name, strings.NewReader(s))
}

// childPath validates name and joins it to the folder path
func (f *VirtualFile) childPath(op, name string) (paths.Path, error) {
	if strings.Contains(name, paths.Separator) {
		return paths.Path{}, invalidName(op, f.path.String(), name)
	}
	p, err := f.path.Join(name)
	if err != nil {
		return paths.Path{}, errs.Wrap(op, f.path.String(), errs.ErrInvalidPath, err)
	}
	return p, nil
}

// Content opens the file for reading
func (f *VirtualFile) Content() (io.ReadCloser, error) {
	if err := f.requireFile(errs.OpRead); err != nil {
		return nil, err
	}
	file, err := os.Open(f.OSPath())
	if err != nil {
		if missing(err) {
			return nil, notFound(errs.OpRead, f.path.String())
		}
		return nil, f.storage(errs.OpRead, err)
	}
	return file, nil
}

// ContentBytes returns the file content
func (f *VirtualFile) ContentBytes() ([]byte, error) {
	if err := f.requireFile(errs.OpRead); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.OSPath())
	if err != nil {
		if missing(err) {
			return nil, notFound(errs.OpRead, f.path.String())
		}
		return nil, f.storage(errs.OpRead, err)
	}
	return data, nil
}

// ContentString returns the file content as a string
func (f *VirtualFile) ContentString() (string, error) {
	data, err := f.ContentBytes()
	return string(data), err
}

// UpdateContent replaces the file content with r. A locked file requires
// its lock token.
func (f *VirtualFile) UpdateContent(r io.Reader, lockToken string) error {
	op := f.fs.begin(errs.OpUpdate, f.path)

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	info, err := f.info(errs.OpUpdate)
	if err != nil {
		return op.done(err)
	}
	if info.IsDir() {
		return op.done(forbidden(errs.OpUpdate, f.path.String(), "%s is a folder", f.path))
	}
	if err := f.fs.locks.Check(f.path, lockToken); err != nil {
		return op.done(op.lockDenied(f.path, err))
	}

	if err := f.fs.writeAtomic(f.OSPath(), r, info.Mode().Perm()); err != nil {
		return op.done(op.storage(err))
	}
	op.indexUpdate(f)
	return op.done(nil)
}

// UpdateContentBytes replaces the file content with data
func (f *VirtualFile) UpdateContentBytes(data []byte, lockToken string) error {
	return f.UpdateContent(bytes.NewReader(data), lockToken)
}

// UpdateContentString replaces the file content with s
func (f *VirtualFile) UpdateContentString(s, lockToken string) error {
	return f.UpdateContent(strings.NewReader(s), lockToken)
}
