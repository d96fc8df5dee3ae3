package sidecar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
)

// DirSuffix marks mirror directories.
const DirSuffix = ".d"

const tempPattern = "*.tmp"

// Layout maps logical paths to side file names inside an afero.Fs.
type Layout struct {
	Suffix string
}

// File returns the side file name of p.
func (l Layout) File(p paths.Path) string {
	if p.IsRoot() {
		return "/" + l.Suffix
	}
	return filepath.Join(l.Dir(p.Parent()), p.Name()+l.Suffix)
}

// Dir returns the mirror directory holding the side files of p's descendants.
func (l Layout) Dir(p paths.Path) string {
	parts := make([]string, 0, p.Len()+1)
	parts = append(parts, "/")
	for _, name := range p.Elements() {
		parts = append(parts, name+DirSuffix)
	}
	return filepath.Join(parts...)
}

// PathOf maps a side file name back to its logical path. It reports false
// for names that are not side files of this layout (mirror directories,
// temporary files).
func (l Layout) PathOf(name string) (paths.Path, bool) {
	name = filepath.ToSlash(filepath.Clean("/" + name))
	dir, base := filepath.Split(name)
	if !strings.HasSuffix(base, l.Suffix) {
		return paths.Root, false
	}
	leaf := strings.TrimSuffix(base, l.Suffix)

	var elements []string
	for _, piece := range strings.Split(strings.Trim(dir, "/"), "/") {
		if piece == "" {
			continue
		}
		if !strings.HasSuffix(piece, DirSuffix) {
			return paths.Root, false
		}
		elements = append(elements, strings.TrimSuffix(piece, DirSuffix))
	}
	if leaf == "" {
		if len(elements) != 0 {
			return paths.Root, false
		}
		return paths.Root, true
	}
	elements = append(elements, leaf)
	p, err := paths.Root.Join(elements...)
	if err != nil {
		return paths.Root, false
	}
	return p, true
}

// WriteAtomic writes data to name through a temporary file in the same
// directory followed by a rename, so readers see the old or the new
// content and never a partial write.
func WriteAtomic(fsys afero.Fs, name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(fsys, dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fsys.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		fsys.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err := fsys.Rename(tmpName, name); err != nil {
		fsys.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of name, or nil and no error when it does
// not exist.
func ReadFile(fsys afero.Fs, name string) ([]byte, error) {
	data, err := afero.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Remove deletes name, ignoring absence.
func Remove(fsys afero.Fs, name string) error {
	if err := fsys.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveTree deletes the side file of p and everything mirrored under it.
func (l Layout) RemoveTree(fsys afero.Fs, p paths.Path) error {
	err := Remove(fsys, l.File(p))
	dir := l.Dir(p)
	if rmErr := fsys.RemoveAll(dir); rmErr != nil {
		err = multierr.Append(err, rmErr)
	}
	if p.IsRoot() {
		err = multierr.Append(err, fsys.MkdirAll(dir, 0o755))
	}
	return err
}

// MoveTree renames the side file and mirror directory of from to those of
// to. Existing side files at the destination are replaced.
func (l Layout) MoveTree(fsys afero.Fs, from, to paths.Path) error {
	if err := l.RemoveTree(fsys, to); err != nil {
		return err
	}
	if err := fsys.MkdirAll(l.Dir(to.Parent()), 0o755); err != nil {
		return err
	}
	if err := renameIfExists(fsys, l.File(from), l.File(to)); err != nil {
		return err
	}
	return renameIfExists(fsys, l.Dir(from), l.Dir(to))
}

// CopyTree duplicates the side file and mirror directory of from at to.
// Existing side files at the destination are replaced.
func (l Layout) CopyTree(fsys afero.Fs, from, to paths.Path) error {
	if err := l.RemoveTree(fsys, to); err != nil {
		return err
	}
	if err := copyIfExists(fsys, l.File(from), l.File(to)); err != nil {
		return err
	}

	srcDir, dstDir := l.Dir(from), l.Dir(to)
	if ok, err := afero.DirExists(fsys, srcDir); err != nil || !ok {
		return err
	}
	return afero.Walk(fsys, srcDir, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, name)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)
		if info.IsDir() {
			return fsys.MkdirAll(target, 0o755)
		}
		if !strings.HasSuffix(name, l.Suffix) {
			return nil
		}
		return copyFile(fsys, name, target)
	})
}

func renameIfExists(fsys afero.Fs, from, to string) error {
	if _, err := fsys.Stat(from); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return fsys.Rename(from, to)
}

func copyIfExists(fsys afero.Fs, from, to string) error {
	if _, err := fsys.Stat(from); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return copyFile(fsys, from, to)
}

func copyFile(fsys afero.Fs, from, to string) error {
	src, err := fsys.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	return WriteAtomic(fsys, to, data)
}
