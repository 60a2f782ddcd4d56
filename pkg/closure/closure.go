// Package closure computes the dependency closure of a list of root
// Space references: a DFS postorder walk with cycle detection that
// yields a deterministic, topologically ordered load order.
package closure

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/gitaccess"
	"agentspaces/pkg/manifest"
	"agentspaces/pkg/ref"
	"agentspaces/pkg/registry"
)

// ResolvedSpace is one node of a computed Closure.
type ResolvedSpace struct {
	Key          string
	ID           string
	Commit       string
	Path         string
	Manifest     *manifest.SpaceManifest
	ResolvedFrom registry.ResolvedSelector
	Deps         []string // SpaceKeys, in declared order
	ProjectSpace bool
}

// Closure is the output of a closure computation over a set of roots.
type Closure struct {
	Spaces    map[string]*ResolvedSpace
	LoadOrder []string
	Roots     []string
}

// Options parameterizes a closure computation.
type Options struct {
	// PinnedSpaces forces specific commits for given space ids,
	// bypassing selector resolution (used for selective upgrades).
	PinnedSpaces map[string]string
	// ProjectRoot is the filesystem root under which dev/project
	// spaces are resolved (<ProjectRoot>/spaces/<id> or an explicit
	// ref.Path).
	ProjectRoot string
}

type engine struct {
	ctx      context.Context
	repo     *gitaccess.Repo
	resolver *registry.Resolver
	fs       afero.Fs
	opts     Options

	spaces    map[string]*ResolvedSpace
	loadOrder []string
	visiting  map[string]bool
	visited   map[string]bool
	stack     []string
}

// Compute walks the closure of roots in order, returning a Closure
// whose LoadOrder is a stable topological order of the induced
// dependency subgraph.
func Compute(ctx context.Context, repo *gitaccess.Repo, resolver *registry.Resolver, fs afero.Fs, roots []ref.SpaceRef, opts Options) (*Closure, error) {
	e := &engine{
		ctx:      ctx,
		repo:     repo,
		resolver: resolver,
		fs:       fs,
		opts:     opts,
		spaces:   make(map[string]*ResolvedSpace),
		visiting: make(map[string]bool),
		visited:  make(map[string]bool),
	}

	var rootKeys []string
	for _, r := range roots {
		key, err := e.visit(r, "")
		if err != nil {
			return nil, err
		}
		rootKeys = append(rootKeys, key)
	}

	return &Closure{
		Spaces:    e.spaces,
		LoadOrder: e.loadOrder,
		Roots:     rootKeys,
	}, nil
}

func (e *engine) visit(r ref.SpaceRef, parent string) (string, error) {
	commit, selKind, resolvedFrom, err := e.determineCommit(r)
	if err != nil {
		if parent != "" {
			return "", aspdiag.Wrap(aspdiag.CodeMissingDependency, fmt.Sprintf("dependency %q of %q", r.String(), parent), err)
		}
		return "", err
	}

	key := spaceKey(r.ID, commit, selKind)

	if e.visited[key] {
		return key, nil
	}
	if e.visiting[key] {
		cycle := append(append([]string{}, e.stack...), key)
		return "", aspdiag.New(aspdiag.CodeCyclicDependency, fmt.Sprintf("cycle: %v", cycle)).
			WithDetails(map[string]any{"path": cycle})
	}

	e.visiting[key] = true
	e.stack = append(e.stack, key)
	defer func() {
		e.visiting[key] = false
		e.stack = e.stack[:len(e.stack)-1]
	}()

	rr, err := e.readManifest(r, commit)
	if err != nil {
		if parent != "" {
			return "", aspdiag.Wrap(aspdiag.CodeMissingDependency, fmt.Sprintf("dependency %q of %q", r.String(), parent), err)
		}
		return "", err
	}

	var depKeys []string
	for _, depStr := range rr.Manifest.DepRefs() {
		depRef, err := ref.Parse(depStr)
		if err != nil {
			return "", aspdiag.Wrap(aspdiag.CodeMissingDependency, fmt.Sprintf("dependency %q of %q", depStr, r.ID), err)
		}
		depKey, err := e.visit(depRef, r.ID)
		if err != nil {
			return "", err
		}
		depKeys = append(depKeys, depKey)
	}

	e.spaces[key] = &ResolvedSpace{
		Key:          key,
		ID:           r.ID,
		Commit:       commit,
		Path:         r.Path,
		Manifest:     rr.Manifest,
		ResolvedFrom: resolvedFrom,
		Deps:         depKeys,
		ProjectSpace: r.ProjectSpace,
	}
	e.loadOrder = append(e.loadOrder, key)
	e.visited[key] = true

	return key, nil
}

func (e *engine) determineCommit(r ref.SpaceRef) (commit string, kind ref.SelectorKind, resolved registry.ResolvedSelector, err error) {
	if r.ProjectSpace || r.Selector.Kind == ref.KindProject {
		return registry.ProjectMarker, ref.KindProject, registry.ResolvedSelector{Kind: ref.KindProject, Commit: registry.ProjectMarker}, nil
	}
	if r.Selector.Kind == ref.KindDev {
		return registry.DevMarker, ref.KindDev, registry.ResolvedSelector{Kind: ref.KindDev, Commit: registry.DevMarker}, nil
	}
	if pinned, ok := e.opts.PinnedSpaces[r.ID]; ok {
		return pinned, ref.KindGitPin, registry.ResolvedSelector{Kind: ref.KindGitPin, Commit: pinned}, nil
	}

	resolvedSel, resolveErr := e.resolver.Resolve(e.ctx, r.ID, r.Selector)
	if resolveErr != nil {
		return "", "", registry.ResolvedSelector{}, resolveErr
	}
	return resolvedSel.Commit, r.Selector.Kind, resolvedSel, nil
}

func (e *engine) readManifest(r ref.SpaceRef, commit string) (*manifest.ReadResult, error) {
	switch {
	case r.ProjectSpace || r.Selector.Kind == ref.KindProject:
		return manifest.ReadFromFS(e.fs, e.opts.ProjectRoot, r.ID, r.Path)
	case r.Selector.Kind == ref.KindDev:
		return manifest.ReadFromFS(e.fs, e.opts.ProjectRoot, r.ID, r.Path)
	default:
		return manifest.ReadFromGit(e.ctx, e.repo, commit, r.ID)
	}
}

func spaceKey(id, commit string, kind ref.SelectorKind) string {
	switch kind {
	case ref.KindDev:
		return id + "@dev"
	case ref.KindProject:
		return id + "@project"
	default:
		prefix := commit
		if len(prefix) > 12 {
			prefix = prefix[:12]
		}
		return id + "@" + prefix
	}
}
