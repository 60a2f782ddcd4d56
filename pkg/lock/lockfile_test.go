package lock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asp-lock.json")

	lf := New("https://example.com/registry.git")
	lf.Spaces["base@abc123"] = SpaceEntry{
		ID: "base", Commit: "abc123456789", Integrity: "sha256:deadbeef",
		Deps: DepsEntry{Spaces: []string{}},
	}
	lf.Targets["default"] = TargetEntry{
		Compose: []string{"space:base@stable"}, Roots: []string{"base@abc123"},
		LoadOrder: []string{"base@abc123"}, EnvHash: "sha256:cafebabe",
	}

	require.NoError(t, WriteAtomic(path, lf))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, lf.Spaces, loaded.Spaces)
	assert.Equal(t, lf.Targets, loaded.Targets)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMergeNewerWins(t *testing.T) {
	a := New("url")
	a.Spaces["x@1"] = SpaceEntry{ID: "x", Commit: "1"}
	b := New("url")
	b.Spaces["x@1"] = SpaceEntry{ID: "x", Commit: "1", Integrity: "sha256:new"}
	b.Spaces["y@1"] = SpaceEntry{ID: "y", Commit: "1"}

	merged := a.Merge(b)
	assert.Equal(t, "sha256:new", merged.Spaces["x@1"].Integrity)
	assert.Contains(t, merged.Spaces, "y@1")
}

func TestMergeUnchangedPreservesGeneratedAt(t *testing.T) {
	a := New("url")
	a.Spaces["x@1"] = SpaceEntry{ID: "x", Commit: "1"}
	a.GeneratedAt = "2020-01-01T00:00:00Z"

	unchanged := New("url")
	unchanged.Spaces["x@1"] = SpaceEntry{ID: "x", Commit: "1"}

	merged := a.Merge(unchanged)
	assert.Equal(t, a.GeneratedAt, merged.GeneratedAt)
}

func TestMergeChangedRefreshesGeneratedAt(t *testing.T) {
	a := New("url")
	a.Spaces["x@1"] = SpaceEntry{ID: "x", Commit: "1"}
	a.GeneratedAt = "2020-01-01T00:00:00Z"

	changed := New("url")
	changed.Spaces["x@1"] = SpaceEntry{ID: "x", Commit: "1"}
	changed.Spaces["y@1"] = SpaceEntry{ID: "y", Commit: "1"}

	merged := a.Merge(changed)
	assert.NotEqual(t, a.GeneratedAt, merged.GeneratedAt)
}

func TestProjectLockExcludesConcurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".asp-lock.lock")

	l1 := NewProjectLock(path)
	require.NoError(t, l1.Acquire(context.Background()))

	_, err := os.Stat(path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	l2 := NewProjectLock(path)
	err = l2.Acquire(ctx)
	assert.Error(t, err, "second acquire should time out while first holds the lock")

	require.NoError(t, l1.Release())
}

func TestDiffLockFiles(t *testing.T) {
	before := New("url")
	before.Spaces["a@1"] = SpaceEntry{ID: "a", Commit: "1"}
	after := New("url")
	after.Spaces["a@1"] = SpaceEntry{ID: "a", Commit: "2"}
	after.Spaces["b@1"] = SpaceEntry{ID: "b", Commit: "1"}

	d := DiffLockFiles(before, after)
	assert.Equal(t, []string{"a@1"}, d.ChangedSpaces)
	assert.Equal(t, []string{"b@1"}, d.AddedSpaces)
}
