package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// header describes one archive entry independent of the container format
type header struct {
	name    string
	dir     bool
	mode    fs.FileMode
	modTime time.Time
}

// source iterates the entries of a spooled archive. body is only valid
// during the call and is nil for directories.
type source interface {
	entries(fn func(h header, body io.Reader) error) error
}

// spool copies r to a temporary file so the archive can be read twice
func spool(r io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "vfs-extract-*")
	if err != nil {
		return nil, 0, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, err
	}
	return f, n, nil
}

func discard(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}

// entryPath turns an archive entry name into a path relative to the
// folder. ok is false when the entry is dropped entirely by strip.
func entryPath(name string, strip int) (paths.Path, bool, error) {
	var pieces []string
	for _, piece := range strings.Split(name, "/") {
		switch piece {
		case "", ".":
			continue
		case "..":
			return paths.Root, false, fmt.Errorf("%w: archive entry %q escapes the folder", errs.ErrInvalidPath, name)
		}
		pieces = append(pieces, piece)
	}
	if strip >= len(pieces) {
		return paths.Root, false, nil
	}
	rel, err := paths.Root.Join(pieces[strip:]...)
	if err != nil {
		return paths.Root, false, fmt.Errorf("%w: archive entry %q", errs.ErrInvalidPath, name)
	}
	return rel, true, nil
}

type planned struct {
	rel paths.Path
	h   header
}

// extractor applies a source to a folder
type extractor struct {
	base
	overwrite bool
	strip     int
}

func (x extractor) run(src source) error {
	plan, err := x.plan(src)
	if err != nil {
		return err
	}
	replace, err := x.validate(plan)
	if err != nil {
		return err
	}
	return x.apply(src, replace)
}

// plan collects the accepted entries in archive order
func (x extractor) plan(src source) ([]planned, error) {
	var plan []planned
	err := src.entries(func(h header, _ io.Reader) error {
		rel, ok, err := entryPath(h.name, x.strip)
		if err != nil {
			return err
		}
		if !ok || x.excluded(rel) {
			return nil
		}
		plan = append(plan, planned{rel: rel, h: h})
		return nil
	})
	return plan, err
}

// validate checks every planned entry against the existing tree and
// returns the existing entries extraction will replace
func (x extractor) validate(plan []planned) (map[string]bool, error) {
	replace := make(map[string]bool)
	hook, _ := x.folder.(ReplaceHook)
	folderPath := x.folder.Path()

	conflict := func(rel paths.Path, reason string) error {
		if !x.overwrite {
			return errs.New(errs.OpExtract, folderPath.NewPath(rel.String()).String(), errs.ErrConflict, "%s", reason)
		}
		key := rel.String()
		if replace[key] {
			return nil
		}
		if hook != nil {
			if err := hook.CheckReplace(rel); err != nil {
				return err
			}
		}
		replace[key] = true
		return nil
	}

	// entries of the archive itself must agree on what is a folder
	folders := make(map[string]bool)
	clash := func(rel paths.Path, dir bool) error {
		key := rel.String()
		if was, seen := folders[key]; seen && was != dir {
			return errs.New(errs.OpExtract, folderPath.NewPath(key).String(), errs.ErrConflict,
				"archive holds %s both as a file and as a folder", key)
		}
		folders[key] = dir
		return nil
	}

	checked := make(map[string]bool)
	for _, item := range plan {
		// every ancestor inside the folder must be a directory
		for i := 1; i < item.rel.Len(); i++ {
			ancestor := paths.Root.NewPath(item.rel.Elements()[:i]...)
			if err := clash(ancestor, true); err != nil {
				return nil, err
			}
			if checked[ancestor.String()] {
				continue
			}
			checked[ancestor.String()] = true
			info, found, err := lstat(x.osPath(ancestor))
			if err != nil {
				return nil, errs.Storage(errs.OpExtract, folderPath.String(), err)
			}
			if found && !info.IsDir() {
				if err := conflict(ancestor, "item already exists and is not a folder"); err != nil {
					return nil, err
				}
			}
		}

		if err := clash(item.rel, item.h.dir); err != nil {
			return nil, err
		}
		key := item.rel.String()
		if checked[key] {
			continue
		}
		checked[key] = true
		info, found, err := lstat(x.osPath(item.rel))
		if err != nil {
			return nil, errs.Storage(errs.OpExtract, folderPath.String(), err)
		}
		if !found {
			continue
		}
		switch {
		case item.h.dir && info.IsDir():
		case item.h.dir:
			if err := conflict(item.rel, "item already exists and is not a folder"); err != nil {
				return nil, err
			}
		default:
			if err := conflict(item.rel, "item already exists"); err != nil {
				return nil, err
			}
		}
	}
	return replace, nil
}

// apply writes the entries, removing the validated replacements first
func (x extractor) apply(src source, replace map[string]bool) error {
	hook, _ := x.folder.(ReplaceHook)
	folderPath := x.folder.Path().String()

	removeExisting := func(rel paths.Path) error {
		key := rel.String()
		if !replace[key] {
			return nil
		}
		delete(replace, key)
		target := x.osPath(rel)
		info, found, err := lstat(target)
		if err != nil || !found {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if hook != nil {
			return hook.Replaced(rel, !info.IsDir())
		}
		return nil
	}

	ensureDirs := func(rel paths.Path) error {
		for i := 1; i <= rel.Len(); i++ {
			dir := paths.Root.NewPath(rel.Elements()[:i]...)
			if err := removeExisting(dir); err != nil {
				return err
			}
			if err := os.Mkdir(x.osPath(dir), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
				return err
			}
		}
		return nil
	}

	err := src.entries(func(h header, body io.Reader) error {
		rel, ok, err := entryPath(h.name, x.strip)
		if err != nil {
			return err
		}
		if !ok || x.excluded(rel) {
			return nil
		}
		if h.dir {
			return ensureDirs(rel)
		}
		if err := ensureDirs(rel.Parent()); err != nil {
			return err
		}
		if err := removeExisting(rel); err != nil {
			return err
		}
		return writeFile(x.osPath(rel), h, body)
	})
	if err != nil {
		return errs.Storage(errs.OpExtract, folderPath, err)
	}
	return nil
}

func (x extractor) osPath(rel paths.Path) string {
	return filepath.Join(x.folder.OSPath(), filepath.FromSlash(entryName(rel)))
}

// lstat reports found=false when name or one of its parents is missing or
// not a directory
func lstat(name string) (fs.FileInfo, bool, error) {
	info, err := os.Lstat(name)
	switch {
	case err == nil:
		return info, true, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return nil, false, nil
	}
	return nil, false, err
}

func writeFile(target string, h header, body io.Reader) error {
	mode := h.mode.Perm()
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !h.modTime.IsZero() {
		os.Chtimes(target, h.modTime, h.modTime)
	}
	return nil
}
