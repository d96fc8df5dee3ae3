package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t    *testing.T
	root string
}

func newCLI(t *testing.T) *cli {
	t.Setenv("VFS_LOCK_SWEEP", "0s")
	return &cli{t: t, root: t.TempDir()}
}

// exec runs one command with stdin and returns stdout
func (c *cli) exec(stdin string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	full := append([]string{"-root", c.root, "-log-level", "error"}, args...)
	err := run(full, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func (c *cli) must(stdin string, args ...string) string {
	c.t.Helper()
	out, err := c.exec(stdin, args...)
	require.NoError(c.t, err, "vfsctl %s", strings.Join(args, " "))
	return out
}

func TestPutAndCat(t *testing.T) {
	c := newCLI(t)

	c.must("hello", "put", "/greeting.txt")
	assert.Equal(t, "hello", c.must("", "cat", "/greeting.txt"))

	c.must("bye", "put", "/greeting.txt")
	assert.Equal(t, "bye", c.must("", "cat", "/greeting.txt"))

	data, err := os.ReadFile(filepath.Join(c.root, "greeting.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
}

func TestPutFromLocalFile(t *testing.T) {
	c := newCLI(t)
	local := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(local, []byte("from disk"), 0o644))

	c.must("", "put", "/copy.txt", local)
	assert.Equal(t, "from disk", c.must("", "cat", "/copy.txt"))
}

func TestListAndTree(t *testing.T) {
	c := newCLI(t)
	c.must("", "mkdir", "docs/drafts")
	c.must("abc", "put", "/docs/readme.md")

	out := c.must("", "ls", "/docs")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "drafts/"))
	assert.True(t, strings.HasSuffix(lines[1], "3 readme.md"))

	assert.Equal(t, "/\n  docs/\n    drafts/\n    readme.md\n", c.must("", "tree"))
}

func TestControlFolderHidden(t *testing.T) {
	c := newCLI(t)
	c.must("x", "put", "/a.txt")
	c.must("", "setprop", "/a.txt", "k", "v")

	assert.NotContains(t, c.must("", "ls"), ".vfs")
	_, err := c.exec("", "cat", "/.vfs/props/a.txt.props")
	assert.Equal(t, 3, exitCode(err))
}

func TestLockBlocksWriters(t *testing.T) {
	c := newCLI(t)
	c.must("v1", "put", "/f.txt")

	token := strings.TrimSpace(c.must("", "lock", "/f.txt"))
	require.NotEmpty(t, token)
	assert.Contains(t, c.must("", "stat", "/f.txt"), "locked:   yes")

	_, err := c.exec("v2", "put", "/f.txt")
	assert.Equal(t, 5, exitCode(err))

	c.must("v2", "put", "-token", token, "/f.txt")
	assert.Equal(t, "v2", c.must("", "cat", "/f.txt"))

	_, err = c.exec("", "unlock", "/f.txt", "wrong")
	assert.Equal(t, 5, exitCode(err))
	c.must("", "unlock", "/f.txt", token)
	assert.Contains(t, c.must("", "stat", "/f.txt"), "locked:   no")
}

func TestCopyMoveRenameRemove(t *testing.T) {
	c := newCLI(t)
	c.must("", "mkdir", "src")
	c.must("", "mkdir", "dst")
	c.must("data", "put", "/src/f.txt")

	assert.Equal(t, "/dst/g.txt\n", c.must("", "cp", "-name", "g.txt", "/src/f.txt", "/dst"))
	_, err := c.exec("", "cp", "-name", "g.txt", "/src/f.txt", "/dst")
	assert.Equal(t, 4, exitCode(err))
	c.must("", "cp", "-overwrite", "-name", "g.txt", "/src/f.txt", "/dst")

	assert.Equal(t, "/dst/src\n", c.must("", "mv", "/src", "/dst"))
	assert.Equal(t, "/dst/moved\n", c.must("", "rename", "/dst/src", "moved"))
	assert.Equal(t, "data", c.must("", "cat", "/dst/moved/f.txt"))

	c.must("", "rm", "/dst/moved")
	_, err = c.exec("", "cat", "/dst/moved/f.txt")
	assert.Equal(t, 3, exitCode(err))
}

func TestProperties(t *testing.T) {
	c := newCLI(t)
	c.must("x", "put", "/a.txt")
	c.must("", "setprop", "/a.txt", "b", "2")
	c.must("", "setprop", "/a.txt", "a", "1")
	assert.Equal(t, "a=1\nb=2\n", c.must("", "props", "/a.txt"))

	c.must("", "setprop", "/a.txt", "a")
	assert.Equal(t, "b=2\n", c.must("", "props", "/a.txt"))
}

func TestZipRoundTrip(t *testing.T) {
	c := newCLI(t)
	c.must("", "mkdir", "src/sub")
	c.must("one", "put", "/src/one.txt")
	c.must("two", "put", "/src/sub/two.txt")
	c.must("skip", "put", "/src/skip.log")

	archive := filepath.Join(t.TempDir(), "src.zip")
	c.must("", "zip", "-exclude", "*.log", "/src", archive)

	c.must("", "mkdir", "out")
	c.must("", "unzip", "/out", archive)
	assert.Equal(t, "two", c.must("", "cat", "/out/sub/two.txt"))
	_, err := c.exec("", "cat", "/out/skip.log")
	assert.Equal(t, 3, exitCode(err))

	_, err = c.exec("", "unzip", "/out", archive)
	assert.Equal(t, 4, exitCode(err))
	c.must("", "unzip", "-overwrite", "/out", archive)
}

func TestTarThroughStdio(t *testing.T) {
	c := newCLI(t)
	c.must("", "mkdir", "src")
	c.must("payload", "put", "/src/p.txt")

	stream := c.must("", "tar", "/src")
	c.must("", "mkdir", "out")
	c.must(stream, "untar", "/out")
	assert.Equal(t, "payload", c.must("", "cat", "/out/p.txt"))
}

func TestMd5(t *testing.T) {
	c := newCLI(t)
	c.must("", "mkdir", "d")
	c.must("hello", "put", "/d/h.txt")
	c.must("", "put", "/d/empty.txt")

	sum := "5d41402abc4b2a76b9719d911017c592  h.txt\n"
	assert.Equal(t, sum, c.must("", "md5", "/d/h.txt"))
	assert.Contains(t, c.must("", "md5", "/d"), sum)
	assert.Contains(t, c.must("", "md5", "/d"), "d41d8cd98f00b204e9800998ecf8427e  empty.txt\n")
}

func TestSearch(t *testing.T) {
	c := newCLI(t)
	c.must("", "mkdir", "notes")
	c.must("the quick brown fox", "put", "/notes/fox.txt")
	c.must("lazy dog", "put", "/notes/dog.txt")

	out := c.must("", "search", "quick", "fox")
	assert.True(t, strings.HasPrefix(out, "/notes/fox.txt\ttext/plain"))
	assert.NotContains(t, out, "dog")
	assert.Empty(t, c.must("", "search", "-under", "/other", "fox"))
	assert.Contains(t, c.must("", "search", "-name", "dog.*"), "/notes/dog.txt")

	t.Setenv("VFS_INDEX_ENABLED", "false")
	_, err := c.exec("", "search", "fox")
	assert.Equal(t, 2, exitCode(err))
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec("")
	assert.True(t, errors.Is(err, errUsage))

	_, err = c.exec("", "frobnicate")
	assert.Equal(t, 2, exitCode(err))

	_, err = c.exec("", "cat")
	assert.Equal(t, 2, exitCode(err))

	_, err = c.exec("", "ls", "-bogus")
	assert.Error(t, err)

	_, err = c.exec("", "-h")
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Equal(t, 0, exitCode(err))
}

func TestMissingRoot(t *testing.T) {
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "absent")

	err := run([]string{"-root", missing, "ls"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 3, exitCode(err))

	t.Setenv("VFS_CREATE_ROOT", "true")
	require.NoError(t, run([]string{"-root", missing, "ls"}, strings.NewReader(""), &stdout, &stderr))
	assert.DirExists(t, missing)
}

func TestConfigFileAndMetrics(t *testing.T) {
	c := newCLI(t)
	cfgPath := filepath.Join(t.TempDir(), "vfs.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("vfs:\n  root: "+c.root+"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	err := run([]string{"-config", cfgPath, "-metrics", "-log-level", "error", "put", "/m.txt"},
		strings.NewReader("m"), &stdout, &stderr)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(c.root, "m.txt"))
	assert.Contains(t, stderr.String(), "vfs_operations_total")
}

func TestTomlConfigFile(t *testing.T) {
	c := newCLI(t)
	cfgPath := filepath.Join(t.TempDir(), "vfs.toml")
	content := "[vfs]\nroot = \"" + filepath.ToSlash(c.root) + "\"\n\n[index]\nenabled = false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	var stdout, stderr bytes.Buffer
	err := run([]string{"-config", cfgPath, "-log-level", "error", "put", "/t.txt"},
		strings.NewReader("t"), &stdout, &stderr)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(c.root, "t.txt"))

	_, err = c.exec("", "-config", cfgPath, "search", "t")
	assert.Equal(t, 2, exitCode(err))
}
