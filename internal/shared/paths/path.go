package paths

import (
	"errors"
	"fmt"
	"strings"
)

// Separator is the segment separator of the string form.
const Separator = "/"

// ErrInvalidPath is returned for malformed paths and names.
var ErrInvalidPath = errors.New("invalid path")

// Path is an immutable logical path. The zero value is the root.
type Path struct {
	elements []string
}

// Root is the path of the file system root.
var Root = Path{}

func fromElements(elements []string) Path {
	if len(elements) == 0 {
		return Path{}
	}
	return Path{elements: elements}
}

// Parse parses the string form of a path. Leading and trailing separators
// are tolerated, "" and "/" denote the root.
func Parse(s string) (Path, error) {
	trimmed := strings.Trim(s, Separator)
	if trimmed == "" {
		return Root, nil
	}
	raw := strings.Split(trimmed, Separator)
	for _, name := range raw {
		if err := ValidateName(name); err != nil {
			return Root, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
	}
	return fromElements(raw), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ValidateName checks that name can be used as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidPath)
	case strings.Contains(name, Separator), strings.ContainsRune(name, '\\'):
		return fmt.Errorf("%w: name %q contains a separator", ErrInvalidPath, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: name %q is reserved", ErrInvalidPath, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: name contains NUL", ErrInvalidPath)
	}
	return nil
}

// NewPath returns a descendant of p. Every name may itself contain
// separators; empty pieces are skipped. Pieces that are not valid names
// ("." and "..") are dropped as well, use Join to have them rejected.
func (p Path) NewPath(names ...string) Path {
	elements := make([]string, len(p.elements), len(p.elements)+len(names))
	copy(elements, p.elements)
	for _, name := range names {
		for _, piece := range strings.Split(name, Separator) {
			if ValidateName(piece) != nil {
				continue
			}
			elements = append(elements, piece)
		}
	}
	return fromElements(elements)
}

// Join is the validating variant of NewPath.
func (p Path) Join(names ...string) (Path, error) {
	elements := make([]string, len(p.elements), len(p.elements)+len(names))
	copy(elements, p.elements)
	for _, name := range names {
		for _, piece := range strings.Split(name, Separator) {
			if piece == "" {
				continue
			}
			if err := ValidateName(piece); err != nil {
				return Root, err
			}
			elements = append(elements, piece)
		}
	}
	return fromElements(elements), nil
}

// SubPath returns p relative to ancestor, which must be p itself or one of
// its ancestors.
func (p Path) SubPath(ancestor Path) (Path, error) {
	if !p.HasPrefix(ancestor) {
		return Root, fmt.Errorf("%w: %s is not under %s", ErrInvalidPath, p, ancestor)
	}
	rest := make([]string, len(p.elements)-len(ancestor.elements))
	copy(rest, p.elements[len(ancestor.elements):])
	return fromElements(rest), nil
}

// Parent returns the parent path. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.elements) <= 1 {
		return Root
	}
	return fromElements(p.elements[:len(p.elements)-1 : len(p.elements)-1])
}

// Name returns the last segment, "" for the root.
func (p Path) Name() string {
	if len(p.elements) == 0 {
		return ""
	}
	return p.elements[len(p.elements)-1]
}

// IsRoot reports whether p is the root.
func (p Path) IsRoot() bool {
	return len(p.elements) == 0
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p.elements)
}

// Element returns segment i.
func (p Path) Element(i int) string {
	return p.elements[i]
}

// Elements returns a copy of the segments.
func (p Path) Elements() []string {
	out := make([]string, len(p.elements))
	copy(out, p.elements)
	return out
}

// HasPrefix reports whether ancestor is p or one of its ancestors.
func (p Path) HasPrefix(ancestor Path) bool {
	if len(ancestor.elements) > len(p.elements) {
		return false
	}
	for i, name := range ancestor.elements {
		if p.elements[i] != name {
			return false
		}
	}
	return true
}

// IsChildOf reports whether p is a strict descendant of ancestor.
func (p Path) IsChildOf(ancestor Path) bool {
	return len(p.elements) > len(ancestor.elements) && p.HasPrefix(ancestor)
}

// Equal reports whether both paths have the same segments.
func (p Path) Equal(other Path) bool {
	return len(p.elements) == len(other.elements) && p.HasPrefix(other)
}

// Compare orders paths lexicographically segment by segment; a path sorts
// before its descendants.
func (p Path) Compare(other Path) int {
	n := min(len(p.elements), len(other.elements))
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.elements[i], other.elements[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p.elements) < len(other.elements):
		return -1
	case len(p.elements) > len(other.elements):
		return 1
	}
	return 0
}

// String returns the canonical form, "/" for the root.
func (p Path) String() string {
	return Separator + strings.Join(p.elements, Separator)
}
