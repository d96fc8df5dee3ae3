package archive

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
)

// entry is one item of a folder subtree
type entry struct {
	rel    paths.Path
	osPath string
	info   fs.FileInfo
}

func (e entry) isDir() bool { return e.info.IsDir() }

// collect walks the folder and returns the accepted entries sorted by path,
// so archives are reproducible
func (b base) collect(filter Filter) ([]entry, error) {
	if filter == nil {
		filter = All
	}
	root := b.folder.OSPath()
	var (
		mu      sync.Mutex
		entries []entry
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.Type()&(fs.ModeSymlink|fs.ModeNamedPipe|fs.ModeSocket|fs.ModeDevice) != 0 {
			return nil
		}

		relOS, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel, err := paths.Parse(filepath.ToSlash(relOS))
		if err != nil {
			return nil
		}
		if b.excluded(rel) || !filter(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		mu.Lock()
		entries = append(entries, entry{rel: rel, osPath: path, info: info})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel.Compare(entries[j].rel) < 0 })
	return entries, nil
}
