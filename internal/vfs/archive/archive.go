// Package archive compresses folders to zip or tar streams and extracts
// such streams into folders.
//
// Extraction runs in two passes over a spooled copy of the input: the
// first pass validates every entry name and checks for conflicts with the
// existing tree, the second pass writes. A rejected archive therefore
// leaves the folder untouched.
package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// Format is the archive container format
type Format string

const (
	FormatZip Format = "zip"
	FormatTar Format = "tar"
)

// ParseFormat parses a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatZip:
		return FormatZip, nil
	case FormatTar:
		return FormatTar, nil
	}
	return "", fmt.Errorf("%w: unsupported archive format %q", errs.ErrServer, s)
}

// Compression is the stream compression applied to tar output
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a compression name; "" means none
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("%w: unsupported compression %q", errs.ErrServer, s)
}

// Folder is the directory an archiver works on
type Folder interface {
	Path() paths.Path
	OSPath() string
	IsRoot() bool
}

// ReplaceHook is implemented by folders that need to vet and observe the
// replacement of existing entries during an overwriting extraction.
type ReplaceHook interface {
	// CheckReplace is called during validation for every existing entry
	// (relative to the folder) that extraction would replace. A non-nil
	// error aborts the extraction before anything is written.
	CheckReplace(rel paths.Path) error
	// Replaced is called after an existing entry has been removed.
	Replaced(rel paths.Path, wasFile bool) error
}

// Filter decides whether an entry (relative to the folder) is archived
type Filter func(rel paths.Path, isDir bool) bool

// All accepts every entry
func All(paths.Path, bool) bool { return true }

// GlobFilter returns a filter excluding entries whose relative path or name
// matches one of the doublestar patterns
func GlobFilter(patterns ...string) (Filter, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: invalid pattern %q", errs.ErrServer, pattern)
		}
	}
	return func(rel paths.Path, _ bool) bool {
		name := entryName(rel)
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, name); ok {
				return false
			}
			if ok, _ := doublestar.Match(pattern, rel.Name()); ok {
				return false
			}
		}
		return true
	}, nil
}

// Archiver compresses and extracts one folder
type Archiver interface {
	// Compress writes the folder subtree to w, skipping entries the filter
	// rejects. Directories are written as entries ending in "/".
	Compress(w io.Writer, filter Filter) error
	// Extract unpacks r into the folder. Existing entries are replaced
	// only with overwrite. stripComponents leading name segments are
	// dropped from every entry; entries left empty are skipped.
	Extract(r io.Reader, overwrite bool, stripComponents int) error
}

// Factory creates archivers
type Factory interface {
	Create(folder Folder, format Format) (Archiver, error)
}

// DefaultFactory creates the zip and tar archivers of this package
type DefaultFactory struct {
	controlDir  string
	compression Compression
}

// FactoryOption configures a DefaultFactory
type FactoryOption func(*DefaultFactory)

// WithControlDir names a top-level directory of the file system root that
// is never archived nor extracted into
func WithControlDir(name string) FactoryOption {
	return func(f *DefaultFactory) { f.controlDir = name }
}

// WithTarCompression sets the compression of tar output
func WithTarCompression(c Compression) FactoryOption {
	return func(f *DefaultFactory) { f.compression = c }
}

// NewFactory creates a factory
func NewFactory(opts ...FactoryOption) *DefaultFactory {
	f := &DefaultFactory{compression: CompressionNone}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the archiver of format for folder
func (f *DefaultFactory) Create(folder Folder, format Format) (Archiver, error) {
	base := base{folder: folder, controlDir: f.controlDir}
	switch format {
	case FormatZip:
		return &zipArchiver{base: base}, nil
	case FormatTar:
		return &tarArchiver{base: base, compression: f.compression}, nil
	}
	return nil, fmt.Errorf("%w: unsupported archive format %q", errs.ErrServer, format)
}

// base holds what both archivers share
type base struct {
	folder     Folder
	controlDir string
}

// excluded reports whether rel names the control directory or lies below it
func (b base) excluded(rel paths.Path) bool {
	return b.controlDir != "" && b.folder.IsRoot() && rel.Len() > 0 && rel.Element(0) == b.controlDir
}

func entryName(rel paths.Path) string {
	return strings.Join(rel.Elements(), "/")
}
