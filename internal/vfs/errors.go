package vfs

import (
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// Error kinds
var (
	ErrInvalidPath = errs.ErrInvalidPath
	ErrConflict    = errs.ErrConflict
	ErrForbidden   = errs.ErrForbidden
	ErrNotFound    = errs.ErrNotFound
	ErrStorage     = errs.ErrStorage
	ErrServer      = errs.ErrServer
)

// Error is the error type returned by the file system
type Error = errs.Error

// KindOf returns the kind carried by err, nil when there is none
func KindOf(err error) error {
	return errs.KindOf(err)
}

// invalidName reports a name holding a path separator
func invalidName(op, path, name string) error {
	return &errs.Error{
		Op:   op,
		Path: path,
		Kind: errs.ErrServer,
		Err:  errs.ErrInvalidPath,
		Msg:  "Invalid name '" + name + "'",
	}
}

func notFound(op, path string) error {
	return errs.New(op, path, errs.ErrNotFound, "%s does not exist", path)
}

func forbidden(op, path, format string, args ...any) error {
	return errs.New(op, path, errs.ErrForbidden, format, args...)
}

func conflict(op, path, format string, args ...any) error {
	return errs.New(op, path, errs.ErrConflict, format, args...)
}
