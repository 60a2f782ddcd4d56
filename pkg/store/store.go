// Package store implements the content-addressed snapshot store:
// materializing a registry commit's space subtree into
// store/<integrity>/ idempotently, extracting a `git archive` tar
// stream the way pkg/bundle/packager archives one in the other
// direction for distribution.
package store

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"agentspaces/internal/logging"
	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/gitaccess"
	"agentspaces/pkg/integrity"
	"agentspaces/pkg/paths"
)

// Store populates and queries the content-addressed snapshot root
// under a given ASP_HOME.
type Store struct {
	aspHome string
	repo    *gitaccess.Repo
}

// New returns a Store rooted at aspHome, reading archives from repo.
func New(aspHome string, repo *gitaccess.Repo) *Store {
	return &Store{aspHome: aspHome, repo: repo}
}

// Exists reports whether a snapshot for the given integrity is
// already present. Sufficient for non-dev reads per spec §4.9;
// callers that want to re-verify content should call Verify instead.
func (s *Store) Exists(integrityHash string) bool {
	info, err := os.Stat(paths.Snapshot(s.aspHome, integrityHash))
	return err == nil && info.IsDir()
}

// Path returns the on-disk directory for a given integrity hash.
func (s *Store) Path(integrityHash string) string {
	return paths.Snapshot(s.aspHome, integrityHash)
}

// CreateSnapshot computes the integrity hash of <commit>:spaces/<id>
// and, if not already present, extracts it into store/<integrity>/.
// Concurrent creators race safely: each builds into its own temp
// sibling and atomically renames; losers' renames fail harmlessly
// onto an already-complete directory which is removed.
func (s *Store) CreateSnapshot(ctx context.Context, id, commit string) (string, error) {
	subtreePath := filepath.Join("spaces", id)

	entries, err := s.repo.ListTree(commit, subtreePath)
	if err != nil {
		return "", err
	}
	integrityHash := integrity.SpaceIntegrity(entries)

	dest := paths.Snapshot(s.aspHome, integrityHash)
	if s.Exists(integrityHash) {
		logging.Debug("snapshot already present", "integrity", integrityHash)
		return integrityHash, nil
	}

	archiveData, err := s.repo.Archive(ctx, commit, subtreePath)
	if err != nil {
		return "", err
	}

	tmpRoot := paths.Tmp(s.aspHome)
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return "", aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir tmp root", err)
	}
	tmpDir, err := os.MkdirTemp(tmpRoot, "snapshot-*")
	if err != nil {
		return "", aspdiag.Wrap(aspdiag.CodeFilesystemError, "create temp snapshot dir", err)
	}
	defer os.RemoveAll(tmpDir) // no-op once renamed away

	if err := extractTar(archiveData, subtreePath, tmpDir); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir store root", err)
	}
	if err := os.Rename(tmpDir, dest); err != nil {
		// A concurrent creator may have won the race; that's fine as
		// long as the destination now exists.
		if s.Exists(integrityHash) {
			return integrityHash, nil
		}
		return "", aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("rename snapshot into %s", dest), err)
	}

	return integrityHash, nil
}

// Verify re-derives a snapshot's integrity from its commit and subtree
// path and compares it against what's on disk having the expected
// directory name. It re-reads the tree from the registry clone rather
// than rehashing the extracted files directly: git blob/tree object
// IDs aren't cheaply reproducible from plain file bytes without
// reimplementing git's object format, and the registry clone is the
// authoritative source the integrity hash is defined over. Not called
// on every read by default (see DESIGN.md open question (b)).
func (s *Store) Verify(ctx context.Context, id, commit, expectedIntegrity string) error {
	if !s.Exists(expectedIntegrity) {
		return aspdiag.New(aspdiag.CodeIntegrityMismatch, fmt.Sprintf("snapshot %s missing on disk", expectedIntegrity))
	}
	entries, err := s.repo.ListTree(commit, filepath.Join("spaces", id))
	if err != nil {
		return err
	}
	actual := integrity.SpaceIntegrity(entries)
	if actual != expectedIntegrity {
		return aspdiag.New(aspdiag.CodeIntegrityMismatch, fmt.Sprintf("snapshot %s does not match commit %s (recomputed %s)", expectedIntegrity, commit, actual))
	}
	return nil
}

// Prune removes store entries not present in keep. Opt-in only; never
// invoked implicitly during install (see SPEC_FULL.md §12).
func (s *Store) Prune(keep map[string]bool) ([]string, error) {
	root := paths.Store(s.aspHome)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aspdiag.Wrap(aspdiag.CodeFilesystemError, "read store root", err)
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		integrityHash := "sha256:" + e.Name()
		if keep[integrityHash] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return removed, aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("remove %s", e.Name()), err)
		}
		removed = append(removed, integrityHash)
	}
	return removed, nil
}

func extractTar(data []byte, stripPrefix, destDir string) error {
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return aspdiag.Wrap(aspdiag.CodeFilesystemError, "read tar archive", err)
		}

		relPath := strings.TrimPrefix(hdr.Name, stripPrefix+"/")
		if relPath == "" || relPath == stripPrefix {
			continue // the root directory entry itself
		}
		target := filepath.Join(destDir, relPath)
		if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
			return aspdiag.New(aspdiag.CodeFilesystemError, fmt.Sprintf("archive entry %q escapes the snapshot directory", hdr.Name))
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir from archive", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir parent from archive", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return aspdiag.Wrap(aspdiag.CodeFilesystemError, "create file from archive", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return aspdiag.Wrap(aspdiag.CodeFilesystemError, "write file from archive", err)
			}
			f.Close()
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return aspdiag.Wrap(aspdiag.CodeFilesystemError, "create symlink from archive", err)
			}
		}
	}
	return nil
}

