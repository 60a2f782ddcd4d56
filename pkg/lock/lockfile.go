// Package lock defines the LockFile data model, its canonical,
// atomically-written on-disk form, merge semantics for incremental
// installs, and the advisory per-project lock guarding writes to it.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"agentspaces/pkg/aspdiag"
)

// SpaceEntry is one entry in LockFile.Spaces.
type SpaceEntry struct {
	ID           string       `json:"id"`
	Commit       string       `json:"commit"`
	Path         string       `json:"path,omitempty"`
	Integrity    string       `json:"integrity"`
	Plugin       PluginEntry  `json:"plugin"`
	Deps         DepsEntry    `json:"deps"`
	ResolvedFrom ResolvedFrom `json:"resolvedFrom"`
	ProjectSpace bool         `json:"projectSpace,omitempty"`
}

// PluginEntry names the plugin a space resolves to, if any.
type PluginEntry struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// DepsEntry lists a space's dependency keys.
type DepsEntry struct {
	Spaces []string `json:"spaces"`
}

// ResolvedFrom records how a space's commit was chosen.
type ResolvedFrom struct {
	Kind    string `json:"kind"`
	Tag     string `json:"tag,omitempty"`
	Version string `json:"version,omitempty"`
}

// TargetEntry is one entry in LockFile.Targets.
type TargetEntry struct {
	Compose   []string `json:"compose"`
	Roots     []string `json:"roots"`
	LoadOrder []string `json:"loadOrder"`
	EnvHash   string   `json:"envHash"`
	Warnings  []string `json:"warnings,omitempty"`
}

// RegistryRef names the registry a lock file was generated against.
type RegistryRef struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// LockFile is the versioned lock document, canonically serialized
// with sorted object keys at every level (WriteAtomic re-encodes it
// through a generic map, so struct fields are sorted as well as map
// keys) and stable array ordering preserved by the caller.
type LockFile struct {
	LockfileVersion int                    `json:"lockfileVersion"`
	ResolverVersion int                    `json:"resolverVersion"`
	GeneratedAt     string                 `json:"generatedAt"`
	Registry        RegistryRef            `json:"registry"`
	Spaces          map[string]SpaceEntry  `json:"spaces"`
	Targets         map[string]TargetEntry `json:"targets"`
}

// New creates an empty LockFile bound to a registry.
func New(registryURL string) *LockFile {
	return &LockFile{
		LockfileVersion: 1,
		ResolverVersion: 1,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Registry:        RegistryRef{Type: "git", URL: registryURL},
		Spaces:          make(map[string]SpaceEntry),
		Targets:         make(map[string]TargetEntry),
	}
}

// Merge unions l's spaces/targets with other's, with other's entries
// winning on key collision. Since keys are content-addressed, values
// at a given key are expected to be equivalent; the newer write still
// wins per spec §4.8.
//
// GeneratedAt is carried over from l unchanged when the merge produces
// the same spaces/targets l already had: installing twice against an
// unchanged manifest must yield byte-identical lock files, and
// GeneratedAt is the one field wall-clock time would otherwise
// disturb on every no-op run.
func (l *LockFile) Merge(other *LockFile) *LockFile {
	merged := New(l.Registry.URL)

	for k, v := range l.Spaces {
		merged.Spaces[k] = v
	}
	for k, v := range other.Spaces {
		merged.Spaces[k] = v
	}
	for k, v := range l.Targets {
		merged.Targets[k] = v
	}
	for k, v := range other.Targets {
		merged.Targets[k] = v
	}

	if reflect.DeepEqual(merged.Spaces, l.Spaces) && reflect.DeepEqual(merged.Targets, l.Targets) {
		merged.GeneratedAt = l.GeneratedAt
	}

	return merged
}

// Load reads and parses a LockFile from path.
func Load(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("read %s", path), err)
	}
	var lf LockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeLockInvalid, fmt.Sprintf("parse %s", path), err)
	}
	return &lf, nil
}

// WriteAtomic serializes l to canonical JSON and writes it to path
// via a temp file + fsync + rename, so readers never observe a
// partially written lock file.
func WriteAtomic(path string, l *LockFile) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeLockInvalid, "marshal lock file", err)
	}
	// Struct fields marshal in declaration order; a round trip through
	// a generic value makes every object's keys come out sorted.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return aspdiag.Wrap(aspdiag.CodeLockInvalid, "canonicalize lock file", err)
	}
	data, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeLockInvalid, "marshal lock file", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("mkdir %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "create temp lock file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "write temp lock file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "fsync temp lock file", err)
	}
	if err := tmp.Close(); err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "close temp lock file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("rename into %s", path), err)
	}
	return nil
}

// Diff is a structural comparison between two lock files, used by
// callers (the CLI façade) to report what an update changed.
type Diff struct {
	AddedSpaces   []string
	RemovedSpaces []string
	ChangedSpaces []string
	AddedTargets  []string
	RemovedTargets []string
}

// DiffLockFiles compares before and after, both of which may be nil
// (treated as empty).
func DiffLockFiles(before, after *LockFile) Diff {
	var d Diff
	beforeSpaces := map[string]SpaceEntry{}
	afterSpaces := map[string]SpaceEntry{}
	if before != nil {
		beforeSpaces = before.Spaces
	}
	if after != nil {
		afterSpaces = after.Spaces
	}

	for k, av := range afterSpaces {
		bv, ok := beforeSpaces[k]
		if !ok {
			d.AddedSpaces = append(d.AddedSpaces, k)
		} else if bv.Commit != av.Commit || bv.Integrity != av.Integrity {
			d.ChangedSpaces = append(d.ChangedSpaces, k)
		}
	}
	for k := range beforeSpaces {
		if _, ok := afterSpaces[k]; !ok {
			d.RemovedSpaces = append(d.RemovedSpaces, k)
		}
	}

	beforeTargets := map[string]TargetEntry{}
	afterTargets := map[string]TargetEntry{}
	if before != nil {
		beforeTargets = before.Targets
	}
	if after != nil {
		afterTargets = after.Targets
	}
	for k := range afterTargets {
		if _, ok := beforeTargets[k]; !ok {
			d.AddedTargets = append(d.AddedTargets, k)
		}
	}
	for k := range beforeTargets {
		if _, ok := afterTargets[k]; !ok {
			d.RemovedTargets = append(d.RemovedTargets, k)
		}
	}

	return d
}
