package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/utils"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// Filter selects children
type Filter func(f *VirtualFile) bool

// Md5Pair is the hash of one file below a folder
type Md5Pair struct {
	Hash string
	Path string // relative to the folder, without a leading slash
}

// Children lists the entries of a folder, folders first, then by name.
// Only entries accepted by every filter are returned. A file has no
// children.
func (f *VirtualFile) Children(filters ...Filter) ([]*VirtualFile, error) {
	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	info, err := f.info(errs.OpList)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	dirEntries, err := os.ReadDir(f.OSPath())
	if err != nil {
		return nil, f.storage(errs.OpList, err)
	}

	type child struct {
		file *VirtualFile
		dir  bool
	}
	listed := make([]child, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if !entry.IsDir() && !entry.Type().IsRegular() {
			continue
		}
		p, err := f.path.Join(entry.Name())
		if err != nil || reserved(p) {
			continue
		}
		c := child{file: f.fs.file(p), dir: entry.IsDir()}
		if accepted(c.file, filters) {
			listed = append(listed, c)
		}
	}
	sort.Slice(listed, func(i, j int) bool {
		return compareEntries(listed[i].dir, listed[i].file.path, listed[j].dir, listed[j].file.path) < 0
	})

	children := make([]*VirtualFile, len(listed))
	for i, c := range listed {
		children[i] = c.file
	}
	return children, nil
}

func accepted(f *VirtualFile, filters []Filter) bool {
	for _, filter := range filters {
		if filter != nil && !filter(f) {
			return false
		}
	}
	return true
}

// Child resolves rel below the folder. It returns nil when an entry is
// missing or rel enters the control folder.
func (f *VirtualFile) Child(rel paths.Path) (*VirtualFile, error) {
	if err := f.requireFolder(errs.OpList); err != nil {
		return nil, err
	}
	target := f.path.NewPath(rel.Elements()...)
	if reserved(target) {
		return nil, nil
	}
	if _, err := f.fs.stat(target); err != nil {
		if missing(err) {
			return nil, nil
		}
		return nil, errs.Storage(errs.OpList, target.String(), err)
	}
	return f.fs.file(target), nil
}

// CreateFolder creates rel below the folder together with its missing
// ancestors. The last segment must not exist yet.
func (f *VirtualFile) CreateFolder(rel string) (*VirtualFile, error) {
	relPath, err := paths.Parse(rel)
	if err != nil {
		return nil, errs.Wrap(errs.OpMkdir, rel, errs.ErrInvalidPath, err)
	}
	if relPath.IsRoot() {
		return nil, errs.New(errs.OpMkdir, f.path.String(), errs.ErrInvalidPath, "folder path must not be empty")
	}
	target := f.path.NewPath(relPath.Elements()...)
	op := f.fs.begin(errs.OpMkdir, target)

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	if err := f.requireFolder(errs.OpMkdir); err != nil {
		return nil, op.done(err)
	}
	if reserved(target) {
		return nil, op.done(forbidden(errs.OpMkdir, target.String(), "%s is reserved", ControlDirName))
	}

	current := f.path
	last := relPath.Len() - 1
	for i, name := range relPath.Elements() {
		current = current.NewPath(name)
		info, err := f.fs.stat(current)
		switch {
		case err == nil && info.IsDir() && i < last:
			continue
		case err == nil:
			return nil, op.done(conflict(errs.OpMkdir, current.String(), "%s already exists", current))
		case !missing(err):
			return nil, op.done(errs.Storage(errs.OpMkdir, current.String(), err))
		}
		if err := os.Mkdir(f.fs.osPath(current), 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil, op.done(conflict(errs.OpMkdir, current.String(), "%s already exists", current))
			}
			return nil, op.done(errs.Storage(errs.OpMkdir, current.String(), err))
		}
	}

	op.dropSidecars(target)
	return f.fs.file(target), op.done(nil)
}

// Walk calls fn for f and then, depth first in Children order, for every
// entry below it. Returning filepath.SkipDir from fn on a folder skips its
// content.
func (f *VirtualFile) Walk(fn func(f *VirtualFile) error) error {
	err := fn(f)
	if errors.Is(err, filepath.SkipDir) {
		return nil
	}
	if err != nil {
		return err
	}
	children, err := f.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := child.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// CountMd5Sums returns the md5 of every file below the folder, sorted by
// relative path. A file yields no sums.
func (f *VirtualFile) CountMd5Sums() ([]Md5Pair, error) {
	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	info, err := f.info(errs.OpHash)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []Md5Pair{}, nil
	}

	files, err := f.descendantFiles()
	if err != nil {
		return nil, f.storage(errs.OpHash, err)
	}

	hasher := utils.NewHasher(utils.MD5)
	sums := make([]Md5Pair, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			sum, err := hasher.HashFile(file.osPath)
			if err != nil {
				return err
			}
			sums[i] = Md5Pair{Hash: sum, Path: file.rel}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, f.storage(errs.OpHash, err)
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].Path < sums[j].Path })
	return sums, nil
}

type localFile struct {
	rel    string
	osPath string
}

// descendantFiles lists the regular files below the folder
func (f *VirtualFile) descendantFiles() ([]localFile, error) {
	root := f.OSPath()
	var (
		mu    sync.Mutex
		files []localFile
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if f.IsRoot() && d.IsDir() && path == filepath.Join(root, ControlDirName) {
			return filepath.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		mu.Lock()
		files = append(files, localFile{rel: filepath.ToSlash(rel), osPath: path})
		mu.Unlock()
		return nil
	})
	return files, err
}
