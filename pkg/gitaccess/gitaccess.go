// Package gitaccess implements the git plumbing layer the rest of the
// system relies on: reading a blob at a ref, listing a subtree,
// enumerating tags, resolving refs to commits, and fetching.
//
// Plumbing that's naturally a single command (show, rev-parse, fetch)
// goes through os/exec, following the teacher's git-manager idiom.
// Tree walks and ref enumeration go through go-git, which expresses
// them more directly than scraping `ls-tree`/`for-each-ref` stdout.
package gitaccess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"agentspaces/internal/logging"
	"agentspaces/pkg/aspdiag"
)

// Repo wraps a local clone of the registry at repoPath.
type Repo struct {
	repoPath string
}

// Open returns a Repo bound to an existing local clone.
func Open(repoPath string) *Repo {
	return &Repo{repoPath: repoPath}
}

// Path returns the local clone's filesystem path, recorded as the
// lock file's registry URL since the registry is always a local clone
// in this system (see pkg/orchestrator.Install).
func (r *Repo) Path() string {
	return r.repoPath
}

// EntryKind is the type of a tree entry.
type EntryKind string

const (
	EntryBlob    EntryKind = "blob"
	EntryTree    EntryKind = "tree"
	EntrySymlink EntryKind = "symlink"
)

// TreeEntry is one row of a recursive tree listing.
type TreeEntry struct {
	Path string
	Kind EntryKind
	OID  string
	Mode string // octal, e.g. "100644"
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		if stderrText == "" {
			return "", aspdiag.New(aspdiag.CodeGitError, fmt.Sprintf("%s: unknown failure", strings.Join(args, " ")))
		}
		return "", aspdiag.Wrap(aspdiag.CodeGitError, stderrText, err)
	}
	return stdout.String(), nil
}

// Show returns the content of a file at a ref, or nil if it doesn't exist.
func (r *Repo) Show(ctx context.Context, commit, path string) ([]byte, error) {
	out, err := r.run(ctx, "show", fmt.Sprintf("%s:%s", commit, path))
	if err != nil {
		if code, ok := aspdiag.CodeOf(err); ok && code == aspdiag.CodeGitError {
			var ae *aspdiag.Error
			if asAspErr(err, &ae) && looksLikeMissingPath(ae.Message) {
				return nil, nil
			}
		}
		return nil, err
	}
	return []byte(out), nil
}

func looksLikeMissingPath(msg string) bool {
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "exists on disk, but not in")
}

// ResolveRef resolves any ref expression to a commit SHA.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := r.run(ctx, "rev-parse", ref)
	if err != nil {
		return "", aspdiag.Wrap(aspdiag.CodeNotFound, fmt.Sprintf("ref %q not found", ref), err)
	}
	return strings.TrimSpace(out), nil
}

// Fetch runs `git fetch origin --all`. Failures are tolerated by
// callers (install-time fetch is best-effort); this returns the raw
// error so callers decide.
func (r *Repo) Fetch(ctx context.Context) error {
	_, err := r.run(ctx, "fetch", "origin", "--all")
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeRegistryUnavailable, "fetch origin --all failed", err)
	}
	return nil
}

// ListTree recursively lists the subtree rooted at path within commit.
func (r *Repo) ListTree(commit, path string) ([]TreeEntry, error) {
	repo, err := git.PlainOpen(r.repoPath)
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, "open repo", err)
	}
	commitObj, err := resolveCommit(repo, commit)
	if err != nil {
		return nil, err
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, "read commit tree", err)
	}

	if path != "" && path != "." {
		sub, err := tree.Tree(path)
		if err != nil {
			if err == object.ErrDirectoryNotFound || err == object.ErrEntryNotFound {
				return nil, aspdiag.New(aspdiag.CodeNotFound, fmt.Sprintf("path %q not found at %s", path, commit))
			}
			return nil, aspdiag.Wrap(aspdiag.CodeGitError, "descend into subtree", err)
		}
		tree = sub
	}

	var entries []TreeEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		kind := EntryBlob
		mode := "100644"
		switch {
		case entry.Mode == 0o40000 || entry.Mode.IsMalformed():
			kind = EntryTree
			mode = "040000"
		case entry.Mode&0o120000 == 0o120000:
			kind = EntrySymlink
			mode = "120000"
		}
		entries = append(entries, TreeEntry{
			Path: name,
			Kind: kind,
			OID:  entry.Hash.String(),
			Mode: mode,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Tags enumerates git tags matching "space/<id>/v*" for the given id,
// returning the trailing version string for each.
func (r *Repo) Tags(id string) (map[string]string, error) {
	repo, err := git.PlainOpen(r.repoPath)
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, "open repo", err)
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, "list tags", err)
	}
	defer iter.Close()

	prefix := fmt.Sprintf("refs/tags/space/%s/v", id)
	result := make(map[string]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if strings.HasPrefix(name, prefix) {
			version := strings.TrimPrefix(name, prefix)
			result[version] = ref.Hash().String()
		}
		return nil
	})
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, "iterate tags", err)
	}
	return result, nil
}

// ResolveTagCommit resolves an annotated or lightweight tag to its
// commit SHA (dereferencing annotated tag objects).
func (r *Repo) ResolveTagCommit(ctx context.Context, tagName string) (string, error) {
	sha, err := r.ResolveRef(ctx, tagName+"^{commit}")
	if err != nil {
		return "", err
	}
	return sha, nil
}

func resolveCommit(repo *git.Repository, ref string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeNotFound, fmt.Sprintf("resolve %q", ref), err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, "load commit object", err)
	}
	return commit, nil
}

func asAspErr(err error, target **aspdiag.Error) bool {
	ae, ok := err.(*aspdiag.Error)
	if ok {
		*target = ae
	}
	return ok
}

// Archive returns the tar-format content of <commit>:<path>, suitable
// for extraction by the snapshot store. Paths inside the tar are
// rooted at path (e.g. "spaces/<id>/space.toml", not bare
// "space.toml").
func (r *Repo) Archive(ctx context.Context, commit, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "archive", "--format=tar", commit, "--", path)
	cmd.Dir = r.repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		if stderrText == "" {
			return nil, aspdiag.New(aspdiag.CodeGitError, "git archive: unknown failure")
		}
		return nil, aspdiag.Wrap(aspdiag.CodeGitError, stderrText, err)
	}
	return stdout.Bytes(), nil
}

// CommitExists reports whether the given SHA resolves to a commit.
func (r *Repo) CommitExists(ctx context.Context, sha string) bool {
	_, err := r.run(ctx, "cat-file", "-e", sha+"^{commit}")
	if err != nil {
		logging.Debug("commit existence check failed", "sha", sha, "err", err)
		return false
	}
	return true
}
