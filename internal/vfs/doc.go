// Package vfs exposes a directory on disk as a tree of virtual files.
//
// A LocalFileSystem owns one root directory together with the state kept
// beside it in the reserved ".vfs" control folder: property sidecars,
// lock sidecars and staging space for atomic writes. VirtualFile is a
// light handle (a path plus its file system) whose kind, size, timestamps,
// properties and lock state are read from disk on every call, so changes
// made by other processes are always visible.
//
// Mutations validate locks and conflicts for the whole affected subtree
// before the first change is made, then keep content, sidecars and the
// search index consistent:
//
//	fs, err := vfs.New("/srv/workspace", vfs.WithSearcher(index))
//	root := fs.Root()
//	f, err := root.CreateFileString("notes.txt", "hello")
//	token, err := f.Lock(time.Minute)
//	err = f.UpdateContentString("hello again", token)
//
// Errors carry one of the kinds ErrInvalidPath, ErrConflict, ErrForbidden,
// ErrNotFound, ErrStorage or ErrServer and are tested with errors.Is.
package vfs
