// Package search connects the file system to a full-text index.
//
// The file system reports every content change through Searcher: Add for
// new files, folder copies and extracted archives, Update for rewritten
// content and Delete for removed entries. Index failures never fail the
// file system operation that triggered them.
package search

import (
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
)

// Entry is the read view of a file or folder the index needs
type Entry interface {
	Path() paths.Path
	IsFile() bool
	OSPath() string
}

// Searcher receives file system changes
type Searcher interface {
	// Add indexes a file, or every file below a folder
	Add(e Entry) error
	// Update re-indexes a file whose content changed
	Update(e Entry) error
	// Delete drops a file, or a folder and everything below it
	Delete(path string, isFile bool) error
}

// Nop is a Searcher that does nothing
type Nop struct{}

func (Nop) Add(Entry) error           { return nil }
func (Nop) Update(Entry) error        { return nil }
func (Nop) Delete(string, bool) error { return nil }
