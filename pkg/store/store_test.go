package store

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/gitaccess"
)

func buildTestRepo(t *testing.T) (repoDir, commit string) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test", "GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
		return string(out)
	}

	run("init")
	spaceDir := filepath.Join(dir, "spaces", "demo")
	require.NoError(t, os.MkdirAll(filepath.Join(spaceDir, "commands"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(spaceDir, "space.toml"), []byte("id = \"demo\"\nversion = \"1.0.0\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(spaceDir, "commands", "hello.md"), []byte("# hello"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	out := run("rev-parse", "HEAD")
	return dir, trimNewline(out)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func TestCreateSnapshotIsIdempotentAndReadable(t *testing.T) {
	repoDir, commit := buildTestRepo(t)
	aspHome := t.TempDir()
	s := New(aspHome, gitaccess.Open(repoDir))

	integrity1, err := s.CreateSnapshot(context.Background(), "demo", commit)
	require.NoError(t, err)
	assert.True(t, s.Exists(integrity1))

	helloPath := filepath.Join(s.Path(integrity1), "commands", "hello.md")
	data, err := os.ReadFile(helloPath)
	require.NoError(t, err)
	assert.Equal(t, "# hello", string(data))

	// calling again is a no-op that returns the same integrity hash.
	integrity2, err := s.CreateSnapshot(context.Background(), "demo", commit)
	require.NoError(t, err)
	assert.Equal(t, integrity1, integrity2)
}

func TestVerifyDetectsMismatch(t *testing.T) {
	repoDir, commit := buildTestRepo(t)
	aspHome := t.TempDir()
	s := New(aspHome, gitaccess.Open(repoDir))

	integrityHash, err := s.CreateSnapshot(context.Background(), "demo", commit)
	require.NoError(t, err)
	require.NoError(t, s.Verify(context.Background(), "demo", commit, integrityHash))

	err = s.Verify(context.Background(), "demo", commit, "sha256:"+"0000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
	code, ok := aspdiag.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, aspdiag.CodeIntegrityMismatch, code)
}

func TestPruneRemovesUnkeptSnapshots(t *testing.T) {
	repoDir, commit := buildTestRepo(t)
	aspHome := t.TempDir()
	s := New(aspHome, gitaccess.Open(repoDir))

	integrityHash, err := s.CreateSnapshot(context.Background(), "demo", commit)
	require.NoError(t, err)

	removed, err := s.Prune(map[string]bool{})
	require.NoError(t, err)
	assert.Contains(t, removed, integrityHash)
	assert.False(t, s.Exists(integrityHash))
}

func TestPruneKeepsListedSnapshots(t *testing.T) {
	repoDir, commit := buildTestRepo(t)
	aspHome := t.TempDir()
	s := New(aspHome, gitaccess.Open(repoDir))

	integrityHash, err := s.CreateSnapshot(context.Background(), "demo", commit)
	require.NoError(t, err)

	removed, err := s.Prune(map[string]bool{integrityHash: true})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.True(t, s.Exists(integrityHash))
}
