package vfs

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/localvfs/internal/shared/paths"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/archive"
	"github.com/GriffinCanCode/AgentOS/localvfs/internal/vfs/search"
)

const defaultContent = "__test_content__"

type mockSearcher struct {
	mock.Mock
}

func newMockSearcher() *mockSearcher {
	s := &mockSearcher{}
	s.On("Add", mock.Anything).Return(nil).Maybe()
	s.On("Update", mock.Anything).Return(nil).Maybe()
	s.On("Delete", mock.Anything, mock.Anything).Return(nil).Maybe()
	return s
}

func (m *mockSearcher) Add(e search.Entry) error {
	return m.Called(e).Error(0)
}

func (m *mockSearcher) Update(e search.Entry) error {
	return m.Called(e).Error(0)
}

func (m *mockSearcher) Delete(path string, isFile bool) error {
	return m.Called(path, isFile).Error(0)
}

func (m *mockSearcher) reset() {
	m.Calls = nil
}

// entryAt matches a search.Entry by its path
func entryAt(p string) any {
	return mock.MatchedBy(func(e search.Entry) bool {
		return e.Path().String() == p
	})
}

type mockFactory struct {
	mock.Mock
}

func (m *mockFactory) Create(folder archive.Folder, format archive.Format) (archive.Archiver, error) {
	args := m.Called(folder, format)
	a, _ := args.Get(0).(archive.Archiver)
	return a, args.Error(1)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Compress(w io.Writer, filter archive.Filter) error {
	return m.Called(w, filter).Error(0)
}

func (m *mockArchiver) Extract(r io.Reader, overwrite bool, stripComponents int) error {
	return m.Called(r, overwrite, stripComponents).Error(0)
}

// folderAt matches an archive.Folder by its path
func folderAt(p string) any {
	return mock.MatchedBy(func(f archive.Folder) bool {
		return f.Path().String() == p
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t        *testing.T
	dir      string
	fs       *LocalFileSystem
	searcher *mockSearcher
	clock    *fakeClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fx := &fixture{
		t:        t,
		dir:      t.TempDir(),
		searcher: newMockSearcher(),
		clock:    newFakeClock(),
	}
	opts = append([]Option{WithSearcher(fx.searcher), WithClock(fx.clock.Now)}, opts...)
	lfs, err := New(fx.dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { lfs.Close() })
	fx.fs = lfs
	return fx
}

func (fx *fixture) root() *VirtualFile {
	return fx.fs.Root()
}

func (fx *fixture) file(parent *VirtualFile, name, content string) *VirtualFile {
	fx.t.Helper()
	f, err := parent.CreateFileString(name, content)
	require.NoError(fx.t, err)
	return f
}

func (fx *fixture) folder(parent *VirtualFile, rel string) *VirtualFile {
	fx.t.Helper()
	f, err := parent.CreateFolder(rel)
	require.NoError(fx.t, err)
	return f
}

func (fx *fixture) lock(f *VirtualFile) string {
	fx.t.Helper()
	token, err := f.Lock(0)
	require.NoError(fx.t, err)
	return token
}

func (fx *fixture) get(p string) *VirtualFile {
	fx.t.Helper()
	f, err := fx.fs.Lookup(p)
	require.NoError(fx.t, err)
	return f
}

func (fx *fixture) props(f *VirtualFile, kv ...string) {
	fx.t.Helper()
	updates := make(map[string]*string)
	for i := 0; i+1 < len(kv); i += 2 {
		value := kv[i+1]
		updates[kv[i]] = &value
	}
	require.NoError(fx.t, f.UpdateProperties(updates))
}

// sidecarPath returns where the sidecar of p lives on disk
func (fx *fixture) sidecarPath(kind, suffix string, p paths.Path) string {
	if p.IsRoot() {
		return filepath.Join(fx.dir, ControlDirName, kind, suffix)
	}
	elements := p.Elements()
	parts := []string{fx.dir, ControlDirName, kind}
	for _, dir := range elements[:len(elements)-1] {
		parts = append(parts, dir+".d")
	}
	parts = append(parts, elements[len(elements)-1]+suffix)
	return filepath.Join(parts...)
}

func (fx *fixture) assertNoSidecars(p paths.Path) {
	fx.t.Helper()
	assert.NoFileExists(fx.t, fx.sidecarPath("props", ".props", p))
	assert.NoFileExists(fx.t, fx.sidecarPath("locks", ".lock", p))
}

func (fx *fixture) assertContent(f *VirtualFile, want string) {
	fx.t.Helper()
	data, err := os.ReadFile(filepath.Join(fx.dir, filepath.FromSlash(f.Path().String())))
	require.NoError(fx.t, err)
	assert.Equal(fx.t, want, string(data))
}

func strPtr(s string) *string { return &s }
