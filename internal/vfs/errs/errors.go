// Package errs defines the error kinds shared by the file system and its
// lock, metadata and archive components.
//
// Every error returned by the public surface is an *Error carrying one of
// the kind sentinels, so callers branch with errors.Is:
//
//	if errors.Is(err, errs.ErrConflict) { ... }
package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
)

var (
	// ErrInvalidPath indicates a malformed path or name
	ErrInvalidPath = paths.ErrInvalidPath

	// ErrConflict indicates the destination is occupied
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates a kind mismatch, a lock violation or a
	// disallowed operation
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the entry does not exist
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates an underlying I/O failure
	ErrStorage = errors.New("storage failure")

	// ErrServer indicates an internal or input error that fits no other kind
	ErrServer = errors.New("server error")
)

var kinds = []error{ErrInvalidPath, ErrConflict, ErrForbidden, ErrNotFound, ErrStorage, ErrServer}

// Operations
const (
	OpCreate   = "create"
	OpMkdir    = "mkdir"
	OpRead     = "read"
	OpUpdate   = "update"
	OpList     = "list"
	OpCopy     = "copy"
	OpMove     = "move"
	OpDelete   = "delete"
	OpLock     = "lock"
	OpUnlock   = "unlock"
	OpProps    = "properties"
	OpCompress = "compress"
	OpExtract  = "extract"
	OpHash     = "md5"
	OpOpen     = "open"
)

// Error wraps a failure with the operation, the logical path and its kind.
type Error struct {
	Op   string // Operation that failed (e.g., "move", "lock")
	Path string // Logical path the operation was applied to
	Kind error  // One of the kind sentinels
	Err  error  // Underlying error, may be nil
	Msg  string // Human readable detail, may be empty
}

// Error implements the error interface
func (e *Error) Error() string {
	detail := e.Msg
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = e.Kind.Error()
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, detail)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, detail)
}

// Unwrap exposes both the kind and the cause to errors.Is/As
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New creates an error of the given kind with a formatted message
func New(op, path string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with op and path. When err already carries a kind that
// kind is kept, otherwise the given kind applies. Host file names inside
// err are dropped, the logical path replaces them. A nil err yields nil.
func Wrap(op, path string, kind error, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if k := KindOf(err); k != nil {
		kind = k
	}
	return &Error{Op: op, Path: path, Kind: kind, Err: hostless(err)}
}

// hostError is an OS failure with the host file names removed
type hostError struct {
	op  string
	err error
}

func (e *hostError) Error() string { return e.op + ": " + e.err.Error() }
func (e *hostError) Unwrap() error { return e.err }

// hostless replaces err by the cause of the first path or link error in
// its chain, so messages never show where the tree lives on disk
func hostless(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return &hostError{op: pe.Op, err: pe.Err}
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return &hostError{op: le.Op, err: le.Err}
	}
	return err
}

// Storage wraps an I/O failure
func Storage(op, path string, err error) error {
	return Wrap(op, path, ErrStorage, err)
}

// KindOf returns the kind sentinel carried by err, nil when there is none
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
