package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessors(t *testing.T) {
	fx := newFixture(t)
	folder := fx.folder(fx.root(), "folder")
	file := fx.file(folder, "file.txt", defaultContent)

	assert.Equal(t, "file.txt", file.Name())
	assert.Equal(t, "/folder/file.txt", file.Path().String())
	assert.Equal(t, "/folder/file.txt", file.String())
	assert.Same(t, fx.fs, file.FileSystem())
	assert.True(t, file.IsFile())
	assert.False(t, file.IsFolder())
	assert.False(t, file.IsRoot())
	assert.True(t, folder.IsFolder())
	assert.False(t, folder.IsFile())
	assert.True(t, file.Parent().Equal(folder))
	assert.Equal(t, filepath.Join(fx.fs.RootDir(), "folder", "file.txt"), file.OSPath())
}

func TestExists(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)
	assert.True(t, file.Exists())

	require.NoError(t, file.Delete(""))
	assert.False(t, file.Exists())
	assert.False(t, file.IsFile())
}

func TestLastModified(t *testing.T) {
	fx := newFixture(t)
	before := time.Now().Add(-time.Second)
	file := fx.file(fx.root(), "file", defaultContent)

	modified, err := file.LastModified()
	require.NoError(t, err)
	assert.True(t, modified.After(before))

	stamp := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(file.OSPath(), stamp, stamp))
	modified, err = file.LastModified()
	require.NoError(t, err)
	assert.True(t, modified.Equal(stamp))
}

func TestLength(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)
	folder := fx.folder(fx.root(), "folder")

	n, err := file.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(len(defaultContent)), n)

	n, err = folder.Length()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = fx.fs.file(file.Path().Parent().NewPath("gone")).Length()
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMediaType(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "notes.txt", "plain words")

	mtype, err := file.MediaType()
	require.NoError(t, err)
	assert.Contains(t, mtype, "text/plain")

	_, err = fx.root().MediaType()
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestProperties(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	props, err := file.Properties()
	require.NoError(t, err)
	assert.Empty(t, props)
	assert.NoFileExists(t, fx.sidecarPath("props", ".props", file.Path()))

	fx.props(file, "property1", "value1", "property2", "value2")
	props, err = file.Properties()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"property1": "value1", "property2": "value2"}, props)
	assert.FileExists(t, fx.sidecarPath("props", ".props", file.Path()))

	value, err := file.Property("property1")
	require.NoError(t, err)
	assert.Equal(t, "value1", value)

	value, err = file.Property("absent")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestUpdateProperties(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)
	fx.props(file, "property1", "value1", "property2", "value2")

	require.NoError(t, file.UpdateProperties(map[string]*string{
		"property1": nil,
		"property2": strPtr("changed"),
		"property3": strPtr("value3"),
	}))

	props, err := file.Properties()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"property2": "changed", "property3": "value3"}, props)
}

func TestSetProperty(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	require.NoError(t, file.SetProperty("property1", strPtr("value1")))
	value, err := file.Property("property1")
	require.NoError(t, err)
	assert.Equal(t, "value1", value)

	require.NoError(t, file.SetProperty("property1", nil))
	props, err := file.Properties()
	require.NoError(t, err)
	assert.Empty(t, props)
	assert.NoFileExists(t, fx.sidecarPath("props", ".props", file.Path()))
}

func TestPropertiesErrors(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", defaultContent)

	err := file.SetProperty("", strPtr("x"))
	assert.True(t, errors.Is(err, ErrServer))

	require.NoError(t, file.Delete(""))
	_, err = file.Properties()
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(file.SetProperty("p", strPtr("v")), ErrNotFound))
}

func TestRootProperties(t *testing.T) {
	fx := newFixture(t)
	fx.props(fx.root(), "owner", "me")

	value, err := fx.root().Property("owner")
	require.NoError(t, err)
	assert.Equal(t, "me", value)
	assert.FileExists(t, filepath.Join(fx.dir, ControlDirName, "props", ".props"))
}

func TestCompare(t *testing.T) {
	fx := newFixture(t)
	fileA := fx.file(fx.root(), "a", "")
	fileB := fx.file(fx.root(), "b", "")
	folderA := fx.folder(fx.root(), "fa")
	folderB := fx.folder(fx.root(), "fb")

	assert.Negative(t, folderB.Compare(fileA), "folders sort before files")
	assert.Positive(t, fileA.Compare(folderB))
	assert.Negative(t, fileA.Compare(fileB))
	assert.Negative(t, folderA.Compare(folderB))
	assert.Zero(t, fileA.Compare(fx.get("/a")))
}

func TestEqual(t *testing.T) {
	fx := newFixture(t)
	file := fx.file(fx.root(), "file", "")
	other := newFixture(t)
	otherFile := other.file(other.root(), "file", "")

	assert.True(t, file.Equal(fx.get("/file")))
	assert.False(t, file.Equal(fx.root()))
	assert.False(t, file.Equal(otherFile))
	assert.False(t, file.Equal(nil))
}

func TestAcceptVisitor(t *testing.T) {
	fx := newFixture(t)
	folder := fx.folder(fx.root(), "a/b")
	fx.file(folder, "f1", "1")
	fx.file(folder, "f2", "2")

	var visited []string
	var visitor Visitor
	visitor = VisitorFunc(func(f *VirtualFile) error {
		visited = append(visited, f.Path().String())
		if !f.IsFolder() {
			return nil
		}
		children, err := f.Children()
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := child.Accept(visitor); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, fx.root().Accept(visitor))
	assert.Equal(t, []string{"/", "/a", "/a/b", "/a/b/f1", "/a/b/f2"}, visited)
}
