package vfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/archive"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/lock"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/metadata"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/search"
)

// ControlDirName is the reserved folder at the root holding sidecars
const ControlDirName = ".vfs"

const (
	propsDir   = "props"
	locksDir   = "locks"
	stagingDir = "tmp"

	// staging leftovers older than this belong to crashed operations
	stagingMaxAge = time.Hour
)

// LocalFileSystem is a virtual file system over one directory on disk
type LocalFileSystem struct {
	root    string
	control string
	staging string

	locks     *lock.Manager
	props     *metadata.Store
	searcher  search.Searcher
	archivers archive.Factory
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	now       func() time.Time

	createRoot    bool
	sweepInterval time.Duration
	cancel        context.CancelFunc
	sweeper       *sync.WaitGroup
	closeOnce     sync.Once

	// tree serializes mutations within the process
	tree sync.RWMutex
}

// New opens the file system rooted at root
func New(root string, opts ...Option) (*LocalFileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.OpOpen, root, errs.ErrServer, err)
	}

	lfs := &LocalFileSystem{
		root:     abs,
		control:  filepath.Join(abs, ControlDirName),
		searcher: search.Nop{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	lfs.staging = filepath.Join(lfs.control, stagingDir)
	for _, opt := range opts {
		opt(lfs)
	}
	if lfs.archivers == nil {
		lfs.archivers = archive.NewFactory(archive.WithControlDir(ControlDirName))
	}

	if lfs.createRoot {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, errs.Storage(errs.OpOpen, abs, err)
		}
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, errs.New(errs.OpOpen, abs, errs.ErrNotFound, "root directory %s does not exist", abs)
	case err != nil:
		return nil, errs.Storage(errs.OpOpen, abs, err)
	case !info.IsDir():
		return nil, errs.New(errs.OpOpen, abs, errs.ErrForbidden, "root %s is not a directory", abs)
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, errs.Storage(errs.OpOpen, root, err)
	}
	lfs.root = abs
	lfs.control = filepath.Join(abs, ControlDirName)
	lfs.staging = filepath.Join(lfs.control, stagingDir)

	for _, dir := range []string{propsDir, locksDir, stagingDir} {
		if err := os.MkdirAll(filepath.Join(lfs.control, dir), 0o755); err != nil {
			return nil, errs.Storage(errs.OpOpen, abs, err)
		}
	}

	osfs := afero.NewOsFs()
	lfs.props = metadata.NewStore(afero.NewBasePathFs(osfs, filepath.Join(lfs.control, propsDir)))
	lfs.locks = lock.NewManager(afero.NewBasePathFs(osfs, filepath.Join(lfs.control, locksDir)), lock.Settings{
		Now:           lfs.now,
		OnStateChange: lfs.lockStateChanged,
	})

	active, err := lfs.locks.Load()
	if err != nil {
		lfs.logger.Warn("Failed to load some locks", zap.String("root", abs), zap.Error(err))
	}
	lfs.metrics.SetLocksActive(active)

	if err := lfs.purgeStaging(stagingMaxAge); err != nil {
		lfs.logger.Warn("Failed to purge staging area", zap.String("root", abs), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	lfs.cancel = cancel
	lfs.sweeper = lfs.locks.StartSweeper(ctx, lfs.sweepInterval, func(err error) {
		lfs.logger.Warn("Lock sweep failed", zap.Error(err))
	})

	lfs.logger.Info("File system opened",
		zap.String("root", abs),
		zap.Int("locks", active),
		zap.Duration("lock_sweep", lfs.sweepInterval))
	return lfs, nil
}

// Root returns the root folder
func (lfs *LocalFileSystem) Root() *VirtualFile {
	return &VirtualFile{fs: lfs}
}

// RootDir returns the directory on disk backing the root
func (lfs *LocalFileSystem) RootDir() string {
	return lfs.root
}

// Get returns the entry at p, nil when it does not exist or lies inside
// the control folder
func (lfs *LocalFileSystem) Get(p paths.Path) (*VirtualFile, error) {
	return lfs.Root().Child(p)
}

// Lookup parses s and returns the entry at that path
func (lfs *LocalFileSystem) Lookup(s string) (*VirtualFile, error) {
	p, err := paths.Parse(s)
	if err != nil {
		return nil, errs.Wrap(errs.OpOpen, s, errs.ErrInvalidPath, err)
	}
	return lfs.Get(p)
}

// Close stops the background lock sweeper
func (lfs *LocalFileSystem) Close() error {
	lfs.closeOnce.Do(func() {
		lfs.cancel()
		lfs.sweeper.Wait()
		lfs.logger.Debug("File system closed", zap.String("root", lfs.root))
	})
	return nil
}

func (lfs *LocalFileSystem) file(p paths.Path) *VirtualFile {
	return &VirtualFile{path: p, fs: lfs}
}

func (lfs *LocalFileSystem) osPath(p paths.Path) string {
	if p.IsRoot() {
		return lfs.root
	}
	return filepath.Join(append([]string{lfs.root}, p.Elements()...)...)
}

// reserved reports whether p is the control folder or lies inside it
func reserved(p paths.Path) bool {
	return p.Len() > 0 && p.Element(0) == ControlDirName
}

// stat returns the entry info of p. Anything other than a regular file or
// a directory is reported as missing, and so is every path passing through
// a symlink, which keeps resolution inside the root.
func (lfs *LocalFileSystem) stat(p paths.Path) (fs.FileInfo, error) {
	if reserved(p) {
		return nil, fs.ErrNotExist
	}
	if p.IsRoot() {
		return os.Lstat(lfs.root)
	}
	name := lfs.root
	last := p.Len() - 1
	for i, elem := range p.Elements() {
		name = filepath.Join(name, elem)
		info, err := os.Lstat(name)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		if i < last || !info.Mode().IsRegular() {
			return nil, fs.ErrNotExist
		}
		return info, nil
	}
	return os.Lstat(name)
}

// missing reports whether err means the entry is absent
func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func (lfs *LocalFileSystem) lockStateChanged(p paths.Path, from, to lock.State) {
	switch to {
	case lock.StateLocked:
		lfs.metrics.IncLocksActive()
	case lock.StateUnlocked:
		lfs.metrics.DecLocksActive()
	}
	lfs.logger.Debug("Lock state changed",
		zap.Stringer("path", p),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// purgeStaging removes staging entries left behind by crashed operations
func (lfs *LocalFileSystem) purgeStaging(maxAge time.Duration) error {
	entries, err := os.ReadDir(lfs.staging)
	if err != nil {
		return err
	}
	cutoff := lfs.now().Add(-maxAge)
	var errAll error
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		errAll = multierr.Append(errAll, os.RemoveAll(filepath.Join(lfs.staging, entry.Name())))
	}
	return errAll
}

// operation tracks one mutation for logging and metrics
type operation struct {
	fs    *LocalFileSystem
	name  string
	path  string
	id    id.OperationID
	timer *monitoring.Timer
}

func (lfs *LocalFileSystem) begin(op string, p paths.Path) *operation {
	return &operation{
		fs:    lfs,
		name:  op,
		path:  p.String(),
		id:    id.NewOperationID(),
		timer: monitoring.NewTimer(lfs.metrics, op),
	}
}

func (o *operation) fields(extra ...zap.Field) []zap.Field {
	return append(logging.Op(o.name, o.path, o.id.String()), extra...)
}

// done records the outcome and returns err unchanged
func (o *operation) done(err error) error {
	o.timer.Stop(err)
	if err != nil {
		o.fs.logger.Debug("Operation failed", o.fields(zap.Error(err))...)
		return err
	}
	o.fs.logger.Debug("Operation completed", o.fields()...)
	return nil
}

// warn logs a failure that happened after the primary change succeeded
func (o *operation) warn(msg string, err error) {
	if err != nil {
		o.fs.logger.Warn(msg, o.fields(zap.Error(err))...)
	}
}

func (o *operation) storage(err error) error {
	return errs.Storage(o.name, o.path, err)
}

// lockDenied counts a rejected lock check and wraps it
func (o *operation) lockDenied(p paths.Path, err error) error {
	o.fs.metrics.IncLockConflicts()
	return errs.Wrap(o.name, p.String(), errs.ErrForbidden, err)
}

// staged returns a fresh path in the staging area
func (o *operation) staged(kind string) string {
	return filepath.Join(o.fs.staging, kind+"-"+o.id.String())
}

func (o *operation) indexAdd(f *VirtualFile) {
	o.warn("Index add failed", o.fs.searcher.Add(f))
}

func (o *operation) indexUpdate(f *VirtualFile) {
	o.warn("Index update failed", o.fs.searcher.Update(f))
}

func (o *operation) indexDelete(p paths.Path, isFile bool) {
	o.warn("Index delete failed", o.fs.searcher.Delete(p.String(), isFile))
}

// dropSidecars removes the properties and locks of p and its descendants
func (o *operation) dropSidecars(p paths.Path) {
	o.warn("Failed to remove properties", o.fs.props.RemoveTree(p))
	o.warn("Failed to remove locks", o.fs.locks.RemoveUnder(p))
}

// writeAtomic writes r to dest through a staged temp file and a rename
func (lfs *LocalFileSystem) writeAtomic(dest string, r io.Reader, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(lfs.staging, "content-*.tmp")
	if errors.Is(err, fs.ErrNotExist) {
		if err = os.MkdirAll(lfs.staging, 0o755); err == nil {
			tmp, err = os.CreateTemp(lfs.staging, "content-*.tmp")
		}
	}
	if err != nil {
		return err
	}
	name := tmp.Name()

	_, err = io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	err = multierr.Append(err, tmp.Close())
	if err == nil {
		err = os.Chmod(name, perm)
	}
	if err == nil {
		err = os.Rename(name, dest)
	}
	if err != nil {
		os.Remove(name)
	}
	return err
}
