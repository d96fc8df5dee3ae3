// Package metadata stores the user properties of files and folders in
// sidecar files under the control folder.
package metadata

import (
	"fmt"
	"maps"

	"github.com/spf13/afero"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/sidecar"
)

// Suffix is appended to the name of every properties sidecar.
const Suffix = ".props"

// Store reads and writes property sidecars. An entry with no properties
// has no sidecar.
type Store struct {
	fs      afero.Fs
	layout  sidecar.Layout
	stripes *sidecar.Stripes
}

// NewStore creates a store over fsys, which is normally an
// afero.BasePathFs rooted at the properties directory.
func NewStore(fsys afero.Fs) *Store {
	return &Store{
		fs:      fsys,
		layout:  sidecar.Layout{Suffix: Suffix},
		stripes: sidecar.NewStripes(sidecar.DefaultStripes),
	}
}

// Read returns the properties of p. A missing sidecar yields an empty map.
func (s *Store) Read(p paths.Path) (map[string]string, error) {
	mu := s.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()
	return s.read(p)
}

func (s *Store) read(p paths.Path) (map[string]string, error) {
	data, err := sidecar.ReadFile(s.fs, s.layout.File(p))
	if err != nil {
		return nil, fmt.Errorf("read properties of %s: %w", p, err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	props, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read properties of %s: %w", p, err)
	}
	return props, nil
}

// Write replaces the properties of p. An empty map deletes the sidecar.
func (s *Store) Write(p paths.Path, props map[string]string) error {
	mu := s.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()
	return s.write(p, props)
}

func (s *Store) write(p paths.Path, props map[string]string) error {
	name := s.layout.File(p)
	if len(props) == 0 {
		if err := sidecar.Remove(s.fs, name); err != nil {
			return fmt.Errorf("remove properties of %s: %w", p, err)
		}
		return nil
	}
	if err := sidecar.WriteAtomic(s.fs, name, Encode(props)); err != nil {
		return fmt.Errorf("write properties of %s: %w", p, err)
	}
	return nil
}

// Set sets one property. A nil value removes it.
func (s *Store) Set(p paths.Path, name string, value *string) error {
	return s.Update(p, map[string]*string{name: value})
}

// Update merges updates into the properties of p in one write. Nil values
// remove their key.
func (s *Store) Update(p paths.Path, updates map[string]*string) error {
	mu := s.stripes.For(p.String())
	mu.Lock()
	defer mu.Unlock()

	props, err := s.read(p)
	if err != nil {
		return err
	}
	merged := maps.Clone(props)
	for k, v := range updates {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}
	if maps.Equal(props, merged) {
		return nil
	}
	return s.write(p, merged)
}

// Raw returns the sidecar bytes of p, nil when there is none.
func (s *Store) Raw(p paths.Path) ([]byte, error) {
	return sidecar.ReadFile(s.fs, s.layout.File(p))
}

// HasSidecar reports whether p has a sidecar.
func (s *Store) HasSidecar(p paths.Path) (bool, error) {
	return afero.Exists(s.fs, s.layout.File(p))
}

// Copy duplicates the sidecar of one entry.
func (s *Store) Copy(from, to paths.Path) error {
	props, err := s.Read(from)
	if err != nil {
		return err
	}
	return s.Write(to, props)
}

// Move transfers the sidecar of one entry, leaving none at from.
func (s *Store) Move(from, to paths.Path) error {
	props, err := s.Read(from)
	if err != nil {
		return err
	}
	if err := s.Write(to, props); err != nil {
		return err
	}
	return s.Remove(from)
}

// Remove deletes the sidecar of one entry.
func (s *Store) Remove(p paths.Path) error {
	return s.Write(p, nil)
}

// CopyTree duplicates the sidecars of from and all its descendants at to.
func (s *Store) CopyTree(from, to paths.Path) error {
	if err := s.layout.CopyTree(s.fs, from, to); err != nil {
		return fmt.Errorf("copy properties %s -> %s: %w", from, to, err)
	}
	return nil
}

// MoveTree moves the sidecars of from and all its descendants to to.
func (s *Store) MoveTree(from, to paths.Path) error {
	if err := s.layout.MoveTree(s.fs, from, to); err != nil {
		return fmt.Errorf("move properties %s -> %s: %w", from, to, err)
	}
	return nil
}

// RemoveTree deletes the sidecars of p and all its descendants.
func (s *Store) RemoveTree(p paths.Path) error {
	if err := s.layout.RemoveTree(s.fs, p); err != nil {
		return fmt.Errorf("remove properties under %s: %w", p, err)
	}
	return nil
}
