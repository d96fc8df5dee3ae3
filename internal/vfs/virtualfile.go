package vfs

import (
	"io/fs"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// VirtualFile is a file or folder of a LocalFileSystem. It holds no state
// besides its path: every accessor reads the disk.
type VirtualFile struct {
	path paths.Path
	fs   *LocalFileSystem
}

// Visitor is applied to a single entry by Accept
type Visitor interface {
	Visit(f *VirtualFile) error
}

// VisitorFunc adapts a function to Visitor
type VisitorFunc func(f *VirtualFile) error

// Visit calls fn(f)
func (fn VisitorFunc) Visit(f *VirtualFile) error { return fn(f) }

// Name returns the last path segment, empty for the root
func (f *VirtualFile) Name() string { return f.path.Name() }

// Path returns the logical path
func (f *VirtualFile) Path() paths.Path { return f.path }

// String returns the logical path
func (f *VirtualFile) String() string { return f.path.String() }

// FileSystem returns the owning file system
func (f *VirtualFile) FileSystem() *LocalFileSystem { return f.fs }

// IsRoot reports whether f is the root folder
func (f *VirtualFile) IsRoot() bool { return f.path.IsRoot() }

// OSPath returns the location of f on disk
func (f *VirtualFile) OSPath() string { return f.fs.osPath(f.path) }

// Exists reports whether f is present on disk
func (f *VirtualFile) Exists() bool {
	_, err := f.fs.stat(f.path)
	return err == nil
}

// IsFile reports whether f is an existing regular file
func (f *VirtualFile) IsFile() bool {
	info, err := f.fs.stat(f.path)
	return err == nil && !info.IsDir()
}

// IsFolder reports whether f is an existing folder
func (f *VirtualFile) IsFolder() bool {
	info, err := f.fs.stat(f.path)
	return err == nil && info.IsDir()
}

// Parent returns the enclosing folder, nil for the root
func (f *VirtualFile) Parent() *VirtualFile {
	if f.path.IsRoot() {
		return nil
	}
	return f.fs.file(f.path.Parent())
}

// LastModified returns the modification time
func (f *VirtualFile) LastModified() (time.Time, error) {
	info, err := f.info(errs.OpRead)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Length returns the content size, 0 for folders
func (f *VirtualFile) Length() (int64, error) {
	info, err := f.info(errs.OpRead)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}

// MediaType detects the media type of the file content
func (f *VirtualFile) MediaType() (string, error) {
	if err := f.requireFile(errs.OpRead); err != nil {
		return "", err
	}
	mtype, err := mimetype.DetectFile(f.OSPath())
	if err != nil {
		return "", f.storage(errs.OpRead, err)
	}
	return mtype.String(), nil
}

// Accept applies v to f. Visitors recurse into children themselves.
func (f *VirtualFile) Accept(v Visitor) error {
	return v.Visit(f)
}

// Equal reports whether both handles name the same path of the same file
// system
func (f *VirtualFile) Equal(other *VirtualFile) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.fs == other.fs && f.path.Equal(other.path)
}

// Compare orders folders before files, then by name
func (f *VirtualFile) Compare(other *VirtualFile) int {
	return compareEntries(f.IsFolder(), f.path, other.IsFolder(), other.path)
}

func compareEntries(aDir bool, a paths.Path, bDir bool, b paths.Path) int {
	switch {
	case aDir && !bDir:
		return -1
	case !aDir && bDir:
		return 1
	}
	if c := strings.Compare(a.Name(), b.Name()); c != 0 {
		return c
	}
	return a.Compare(b)
}

// info stats f, translating a missing entry to ErrNotFound
func (f *VirtualFile) info(op string) (fs.FileInfo, error) {
	info, err := f.fs.stat(f.path)
	if err == nil {
		return info, nil
	}
	if missing(err) {
		return nil, notFound(op, f.path.String())
	}
	return nil, f.storage(op, err)
}

func (f *VirtualFile) requireFile(op string) error {
	info, err := f.info(op)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return forbidden(op, f.path.String(), "%s is a folder", f.path)
	}
	return nil
}

func (f *VirtualFile) requireFolder(op string) error {
	info, err := f.info(op)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return forbidden(op, f.path.String(), "%s is not a folder", f.path)
	}
	return nil
}

func (f *VirtualFile) storage(op string, err error) error {
	return errs.Storage(op, f.path.String(), err)
}
