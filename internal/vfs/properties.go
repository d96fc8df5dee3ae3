package vfs

import (
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/errs"
)

// Properties returns the property map of f, empty when none is stored
func (f *VirtualFile) Properties() (map[string]string, error) {
	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	if _, err := f.info(errs.OpProps); err != nil {
		return nil, err
	}
	props, err := f.fs.props.Read(f.path)
	if err != nil {
		return nil, f.storage(errs.OpProps, err)
	}
	return props, nil
}

// Property returns one property, empty when it is not set
func (f *VirtualFile) Property(name string) (string, error) {
	props, err := f.Properties()
	if err != nil {
		return "", err
	}
	return props[name], nil
}

// SetProperty sets one property. A nil value removes it.
func (f *VirtualFile) SetProperty(name string, value *string) error {
	return f.UpdateProperties(map[string]*string{name: value})
}

// UpdateProperties merges updates into the property map. Nil values
// remove their key.
func (f *VirtualFile) UpdateProperties(updates map[string]*string) error {
	op := f.fs.begin(errs.OpProps, f.path)

	for name := range updates {
		if name == "" {
			return op.done(errs.New(errs.OpProps, f.path.String(), errs.ErrServer, "property name must not be empty"))
		}
	}

	f.fs.tree.RLock()
	defer f.fs.tree.RUnlock()

	if _, err := f.info(errs.OpProps); err != nil {
		return op.done(err)
	}
	if err := f.fs.props.Update(f.path, updates); err != nil {
		return op.done(op.storage(err))
	}
	return op.done(nil)
}
