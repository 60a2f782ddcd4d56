package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyTreeCopiesNestedFilesAndDirs(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "commands"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "space.toml"), []byte("id=\"demo\""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "commands", "hello.md"), []byte("# hello"), 0o644))

	files, err := CopyTree(src, dst, false)
	require.NoError(t, err)
	assert.Contains(t, files, "space.toml")
	assert.Contains(t, files, filepath.Join("commands", "hello.md"))

	data, err := os.ReadFile(filepath.Join(dst, "commands", "hello.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hello", string(data))
}

func TestCopyTreeWithHardlinksProducesSameInode(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))

	_, err := CopyTree(src, dst, true)
	require.NoError(t, err)

	srcInfo, err := os.Stat(filepath.Join(src, "a.txt"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestCopyTreePreservesSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(src, "real.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(src, "link.txt")))

	files, err := CopyTree(src, dst, false)
	require.NoError(t, err)
	assert.Contains(t, files, "link.txt")

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}

func TestCopyTreeErrorsOnMissingSource(t *testing.T) {
	_, err := CopyTree(filepath.Join(t.TempDir(), "missing"), t.TempDir(), false)
	assert.Error(t, err)
}
