package gitaccess

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/aspdiag"
)

type testRepo struct {
	t   *testing.T
	dir string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	tr := &testRepo{t: t, dir: dir}
	tr.run("init")
	return tr
}

func (tr *testRepo) run(args ...string) string {
	tr.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = tr.dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test", "GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test")
	out, err := cmd.CombinedOutput()
	require.NoError(tr.t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func TestShowReturnsBlobContentAndNilForMissingPath(t *testing.T) {
	tr := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "a.txt"), []byte("hello"), 0o644))
	tr.run("add", ".")
	tr.run("commit", "-m", "c1")

	repo := Open(tr.dir)
	data, err := repo.Show(context.Background(), "HEAD", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = repo.Show(context.Background(), "HEAD", "missing.txt")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestResolveRefAndCommitExists(t *testing.T) {
	tr := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "a.txt"), []byte("hello"), 0o644))
	tr.run("add", ".")
	tr.run("commit", "-m", "c1")
	sha := tr.run("rev-parse", "HEAD")

	repo := Open(tr.dir)
	resolved, err := repo.ResolveRef(context.Background(), "HEAD")
	require.NoError(t, err)
	assert.Equal(t, sha, resolved)
	assert.True(t, repo.CommitExists(context.Background(), sha))
	assert.False(t, repo.CommitExists(context.Background(), "0000000000000000000000000000000000000000"))
}

func TestResolveRefNotFoundIsNotFoundCode(t *testing.T) {
	tr := newTestRepo(t)
	repo := Open(tr.dir)
	_, err := repo.ResolveRef(context.Background(), "refs/tags/does-not-exist")
	require.Error(t, err)
	code, ok := aspdiag.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, aspdiag.CodeNotFound, code)
}

func TestListTreeRecursesAndSorts(t *testing.T) {
	tr := newTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(tr.dir, "spaces", "demo", "commands"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "spaces", "demo", "space.toml"), []byte("id=\"demo\""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "spaces", "demo", "commands", "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "spaces", "demo", "commands", "a.md"), []byte("a"), 0o644))
	tr.run("add", ".")
	tr.run("commit", "-m", "c1")

	repo := Open(tr.dir)
	entries, err := repo.ListTree("HEAD", "spaces/demo")
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	// lexicographic order
	for i := 1; i < len(paths); i++ {
		assert.LessOrEqual(t, paths[i-1], paths[i])
	}
	assert.Contains(t, paths, "space.toml")
	assert.Contains(t, paths, "commands/a.md")
	assert.Contains(t, paths, "commands/b.md")
}

func TestTagsEnumeratesSpacePrefixedTags(t *testing.T) {
	tr := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "a.txt"), []byte("x"), 0o644))
	tr.run("add", ".")
	tr.run("commit", "-m", "c1")
	tr.run("tag", "space/demo/v1.0.0")
	tr.run("tag", "space/demo/v1.1.0")
	tr.run("tag", "space/other/v1.0.0")

	repo := Open(tr.dir)
	tags, err := repo.Tags("demo")
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	assert.Contains(t, tags, "1.0.0")
	assert.Contains(t, tags, "1.1.0")
}

func TestArchiveProducesExtractableTar(t *testing.T) {
	tr := newTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(tr.dir, "spaces", "demo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tr.dir, "spaces", "demo", "space.toml"), []byte("id=\"demo\""), 0o644))
	tr.run("add", ".")
	tr.run("commit", "-m", "c1")

	repo := Open(tr.dir)
	data, err := repo.Archive(context.Background(), "HEAD", "spaces/demo")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestFetchFailsWithRegistryUnavailableWhenNoOrigin(t *testing.T) {
	tr := newTestRepo(t)
	repo := Open(tr.dir)
	err := repo.Fetch(context.Background())
	require.Error(t, err)
	code, ok := aspdiag.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, aspdiag.CodeRegistryUnavailable, code)
}
