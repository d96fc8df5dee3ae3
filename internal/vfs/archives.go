package vfs

import (
	"io"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/archive"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// Zip writes the folder subtree to w as a zip archive
func (f *VirtualFile) Zip(w io.Writer) error {
	return f.Compress(w, archive.FormatZip, nil)
}

// Tar writes the folder subtree to w as a tar archive
func (f *VirtualFile) Tar(w io.Writer) error {
	return f.Compress(w, archive.FormatTar, nil)
}

// Compress writes the folder subtree to w in format. Entries rejected by
// filter are left out, and so is the control folder.
func (f *VirtualFile) Compress(w io.Writer, format archive.Format, filter archive.Filter) error {
	op := f.fs.begin(errs.OpCompress, f.path)

	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	if err := f.requireFolder(errs.OpCompress); err != nil {
		return op.done(err)
	}
	archiver, err := f.fs.archivers.Create(f, format)
	if err != nil {
		return op.done(errs.Wrap(errs.OpCompress, f.path.String(), errs.ErrServer, err))
	}
	if err := archiver.Compress(w, f.archiveFilter(filter)); err != nil {
		return op.done(errs.Wrap(errs.OpCompress, f.path.String(), errs.ErrStorage, err))
	}
	f.fs.metrics.RecordArchive(string(format), monitoring.DirectionCompress)
	return op.done(nil)
}

// Unzip extracts a zip archive into the folder
func (f *VirtualFile) Unzip(r io.Reader, overwrite bool, stripComponents int) error {
	return f.Extract(r, archive.FormatZip, overwrite, stripComponents)
}

// Untar extracts a tar archive, plain or compressed, into the folder
func (f *VirtualFile) Untar(r io.Reader, overwrite bool, stripComponents int) error {
	return f.Extract(r, archive.FormatTar, overwrite, stripComponents)
}

// Extract unpacks r into the folder. Existing entries are replaced only
// with overwrite and only when nothing below them is locked. The folder is
// indexed once afterwards.
func (f *VirtualFile) Extract(r io.Reader, format archive.Format, overwrite bool, stripComponents int) error {
	op := f.fs.begin(errs.OpExtract, f.path)
	if stripComponents < 0 {
		return op.done(errs.New(errs.OpExtract, f.path.String(), errs.ErrServer, "strip components must not be negative"))
	}

	f.fs.tree.Lock()
	defer f.fs.tree.Unlock()

	if err := f.requireFolder(errs.OpExtract); err != nil {
		return op.done(err)
	}
	archiver, err := f.fs.archivers.Create(&extractTarget{VirtualFile: f, op: op}, format)
	if err != nil {
		return op.done(errs.Wrap(errs.OpExtract, f.path.String(), errs.ErrServer, err))
	}
	if err := archiver.Extract(r, overwrite, stripComponents); err != nil {
		return op.done(errs.Wrap(errs.OpExtract, f.path.String(), errs.ErrStorage, err))
	}
	f.fs.metrics.RecordArchive(string(format), monitoring.DirectionExtract)
	op.indexAdd(f)
	return op.done(nil)
}

func (f *VirtualFile) archiveFilter(filter archive.Filter) archive.Filter {
	return func(rel paths.Path, isDir bool) bool {
		if reserved(f.path.NewPath(rel.Elements()...)) {
			return false
		}
		return filter == nil || filter(rel, isDir)
	}
}

// extractTarget is the folder handed to the archiver during extraction.
// It vets replaced entries against locks and clears their sidecars.
type extractTarget struct {
	*VirtualFile
	op *operation
}

func (t *extractTarget) CheckReplace(rel paths.Path) error {
	p := t.path.NewPath(rel.Elements()...)
	if reserved(p) {
		return forbidden(errs.OpExtract, p.String(), "%s is reserved", ControlDirName)
	}
	locked, err := t.fs.locks.LockedUnder(p)
	if err != nil {
		return errs.Storage(errs.OpExtract, p.String(), err)
	}
	if len(locked) > 0 {
		t.fs.metrics.IncLockConflicts()
		return forbidden(errs.OpExtract, locked[0].String(), "%s is locked", locked[0])
	}
	return nil
}

func (t *extractTarget) Replaced(rel paths.Path, wasFile bool) error {
	p := t.path.NewPath(rel.Elements()...)
	t.op.dropSidecars(p)
	t.op.indexDelete(p, wasFile)
	return nil
}
