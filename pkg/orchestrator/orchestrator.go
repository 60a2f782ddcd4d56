// Package orchestrator wires closure computation, lock file
// generation, the snapshot store, lint, and per-harness materialize/
// compose into the two install-time operations (Install, Build) plus
// the supplemental doctor-style diagnosis, generalized from the
// teacher's pkg/deploy orchestration of plan -> apply -> verify into
// this system's resolve -> lock -> snapshot -> lint -> materialize
// -> compose pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"agentspaces/internal/logging"
	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/closure"
	"agentspaces/pkg/gitaccess"
	"agentspaces/pkg/harness"
	harnessregistry "agentspaces/pkg/harness/registry"
	"agentspaces/pkg/harness/skills"
	"agentspaces/pkg/integrity"
	"agentspaces/pkg/lint"
	"agentspaces/pkg/lock"
	"agentspaces/pkg/obstrace"
	"agentspaces/pkg/paths"
	"agentspaces/pkg/ref"
	"agentspaces/pkg/registry"
	"agentspaces/pkg/store"
)

// Orchestrator drives install/build over one ASP_HOME and one
// project's worth of targets, against one registry clone.
type Orchestrator struct {
	ASPHome     string
	ProjectPath string
	Repo        *gitaccess.Repo
	Resolver    *registry.Resolver
	Store       *store.Store
	Registry    *harnessregistry.Registry
	FS          afero.Fs
	Tracer      *obstrace.Tracer
}

// New returns an Orchestrator rooted at aspHome/projectPath, reading
// from repo and dispatching to the adapters in reg.
func New(aspHome, projectPath string, repo *gitaccess.Repo, reg *harnessregistry.Registry) *Orchestrator {
	return &Orchestrator{
		ASPHome:     aspHome,
		ProjectPath: projectPath,
		Repo:        repo,
		Resolver:    registry.New(repo),
		Store:       store.New(aspHome, repo),
		Registry:    reg,
		FS:          afero.NewOsFs(),
		Tracer:      obstrace.New(),
	}
}

// InstallOptions parameterizes Install.
type InstallOptions struct {
	Roots        []string // space ref strings, e.g. "space:foo@^1.0.0"
	PinnedSpaces map[string]string
	UseHardlinks bool
	Force        bool
}

// InstallResult is the outcome of Install.
type InstallResult struct {
	Closure *closure.Closure
	Lock    *lock.LockFile
	Diff    lock.Diff
}

// Install computes the dependency closure of options.Roots, snapshots
// every non-dev/project space into the content-addressed store, and
// writes the merged project lock file. It does not materialize or
// compose any harness bundle; that's Build's job, run lazily against
// an installed closure per spec §4.9/§4.11.
func (o *Orchestrator) Install(ctx context.Context, opts InstallOptions) (result *InstallResult, err error) {
	ctx, span := o.Tracer.StartInstall(ctx, opts.Roots)
	defer func() { span.End(err) }()

	roots, err := parseRoots(opts.Roots)
	if err != nil {
		return nil, err
	}

	c, err := closure.Compute(ctx, o.Repo, o.Resolver, o.FS, roots, closure.Options{
		PinnedSpaces: opts.PinnedSpaces,
		ProjectRoot:  o.ProjectPath,
	})
	if err != nil {
		return nil, err
	}
	span.SetResolved(len(c.Spaces))

	lf := lock.New(o.registryURL())
	for _, key := range c.LoadOrder {
		sp := c.Spaces[key]
		entry, snapErr := o.snapshotSpace(ctx, sp, opts.UseHardlinks, opts.Force)
		if snapErr != nil {
			return nil, snapErr
		}
		lf.Spaces[key] = entry
	}

	// Per spec §4.13 step 7, the read-merge-write of the lock file
	// itself is the critical section: two concurrent installs in the
	// same project must never interleave their writes, so the losing
	// writer observes the winning one's lock file rather than
	// clobbering it.
	var before *lock.LockFile
	var diff lock.Diff
	projectLock := lock.NewProjectLock(paths.ProjectLock(o.ProjectPath))
	err = projectLock.AcquireScoped(ctx, func() error {
		var loadErr error
		before, loadErr = lock.Load(paths.LockFilePath(o.ProjectPath))
		if loadErr != nil {
			return loadErr
		}

		if before != nil {
			lf = before.Merge(lf)
		}
		if writeErr := lock.WriteAtomic(paths.LockFilePath(o.ProjectPath), lf); writeErr != nil {
			return writeErr
		}
		diff = lock.DiffLockFiles(before, lf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info("install complete", "spaces", len(c.Spaces), "added", len(diff.AddedSpaces), "changed", len(diff.ChangedSpaces))

	return &InstallResult{Closure: c, Lock: lf, Diff: diff}, nil
}

// snapshotSpace creates (or confirms) the store snapshot for a
// resolved space, returning its lock entry. Dev and project spaces
// are never snapshotted: their Integrity is the reserved dev marker
// and their Path is recorded instead, per spec §4.9's filesystem
// passthrough for local iteration.
func (o *Orchestrator) snapshotSpace(ctx context.Context, sp *closure.ResolvedSpace, useHardlinks, force bool) (lock.SpaceEntry, error) {
	entry := lock.SpaceEntry{
		ID:           sp.ID,
		Commit:       sp.Commit,
		Path:         sp.Path,
		ProjectSpace: sp.ProjectSpace,
		Deps:         lock.DepsEntry{Spaces: sp.Deps},
		ResolvedFrom: lock.ResolvedFrom{
			Kind:    string(sp.ResolvedFrom.Kind),
			Tag:     sp.ResolvedFrom.Tag,
			Version: sp.ResolvedFrom.Version,
		},
	}
	if sp.Manifest != nil && sp.Manifest.Plugin != nil {
		entry.Plugin = lock.PluginEntry{Name: sp.Manifest.Plugin.Name, Version: sp.Manifest.Plugin.Version}
	}

	if sp.ProjectSpace || sp.Commit == registry.DevMarker || sp.Commit == registry.ProjectMarker {
		entry.Integrity = integrity.DevIntegrity
		return entry, nil
	}

	ctx, span := o.Tracer.StartSnapshot(ctx, sp.ID, sp.Commit)
	integrityHash, err := o.Store.CreateSnapshot(ctx, sp.ID, sp.Commit)
	if err != nil {
		span.End(err)
		return lock.SpaceEntry{}, err
	}
	span.SetIntegrity(integrityHash)
	if force {
		if err := o.Store.Verify(ctx, sp.ID, sp.Commit, integrityHash); err != nil {
			span.End(err)
			return lock.SpaceEntry{}, err
		}
	}
	span.End(nil)
	entry.Integrity = integrityHash
	return entry, nil
}

// InstallNeeded reports whether the project's lock file is missing or
// stale relative to re-resolving options.Roots, without writing
// anything. Used by the doctor-style diagnosis below.
func (o *Orchestrator) InstallNeeded(ctx context.Context, opts InstallOptions) (bool, error) {
	existing, err := lock.Load(paths.LockFilePath(o.ProjectPath))
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, nil
	}

	roots, err := parseRoots(opts.Roots)
	if err != nil {
		return false, err
	}
	c, err := closure.Compute(ctx, o.Repo, o.Resolver, o.FS, roots, closure.Options{
		PinnedSpaces: opts.PinnedSpaces,
		ProjectRoot:  o.ProjectPath,
	})
	if err != nil {
		return false, err
	}

	for key, sp := range c.Spaces {
		e, ok := existing.Spaces[key]
		if !ok {
			return true, nil
		}
		if e.Commit != sp.Commit {
			return true, nil
		}
	}
	return false, nil
}

// BuildOptions parameterizes Build.
type BuildOptions struct {
	Spaces       []string // the root refs whose closure is composed
	Target       string   // names the bundle's output directory only; asp-targets.toml is not read
	HarnessID    harness.ID
	UseHardlinks bool
	Clean        bool
	Force        bool
}

// BuildResult is the outcome of Build.
type BuildResult struct {
	Bundle     *harness.ComposedTargetBundle
	LintReport lint.Report
}

// Build materializes every space in the closure's load order into the
// per-space plugin cache, gathers per-space lint artifacts, runs the
// lint gate, and then composes the harness-native target bundle. It
// returns the lint report even on success so callers can surface
// warnings; an error-severity finding aborts composition per spec
// §4.10.
func (o *Orchestrator) Build(ctx context.Context, opts BuildOptions) (result *BuildResult, err error) {
	ctx, span := o.Tracer.StartBuild(ctx, opts.Target, string(opts.HarnessID))
	defer func() { span.End(err) }()

	adapter, ok := o.Registry.Get(opts.HarnessID)
	if !ok {
		return nil, aspdiag.New(aspdiag.CodeUnsupportedFrontend, fmt.Sprintf("no adapter registered for harness %q", opts.HarnessID))
	}

	roots, err := parseRoots(opts.Spaces)
	if err != nil {
		return nil, err
	}
	c, err := closure.Compute(ctx, o.Repo, o.Resolver, o.FS, roots, closure.Options{ProjectRoot: o.ProjectPath})
	if err != nil {
		return nil, err
	}

	composeInput := harness.ComposeInput{TargetName: opts.Target}
	artifacts := make(map[string]lint.SpaceArtifact, len(c.LoadOrder))

	for _, key := range c.LoadOrder {
		sp := c.Spaces[key]
		snapshotPath, err := o.resolveArtifactSource(ctx, sp)
		if err != nil {
			return nil, err
		}

		cacheDir := paths.CacheEntry(o.ASPHome, cacheKey(string(opts.HarnessID), key))
		mres, err := adapter.MaterializeSpace(ctx, harness.MaterializeInput{Space: sp, SnapshotPath: snapshotPath}, cacheDir, harness.MaterializeOptions{Force: opts.Force, UseHardlinks: opts.UseHardlinks})
		if err != nil {
			return nil, err
		}

		composeInput.Artifacts = append(composeInput.Artifacts, harness.MaterializedArtifact{Space: sp, ArtifactPath: mres.ArtifactPath})
		artifacts[key] = gatherArtifact(sp, mres.ArtifactPath)
	}

	report := lint.Lint(c, artifacts, string(opts.HarnessID))
	span.SetLintWarnings(len(report.Warnings), report.HasErrors())
	if report.HasErrors() {
		return &BuildResult{LintReport: report}, aspdiag.New(aspdiag.CodeLintError, "lint reported blocking errors")
	}

	outputDir := adapter.GetTargetOutputPath(filepath.Join(o.ProjectPath, "asp_modules"), opts.Target)
	composeResult, err := adapter.ComposeTarget(ctx, composeInput, outputDir, harness.ComposeOptions{Clean: opts.Clean})
	if err != nil {
		return nil, err
	}
	for _, w := range composeResult.Warnings {
		logging.Info("compose warning", "target", opts.Target, "warning", w)
	}

	return &BuildResult{Bundle: composeResult.Bundle, LintReport: report}, nil
}

// resolveArtifactSource returns the snapshot path (for content-
// addressed spaces) to feed MaterializeSpace; dev/project spaces
// return an empty snapshot path so the adapter falls back to
// Space.Path.
func (o *Orchestrator) resolveArtifactSource(ctx context.Context, sp *closure.ResolvedSpace) (string, error) {
	if sp.ProjectSpace || sp.Commit == registry.DevMarker || sp.Commit == registry.ProjectMarker {
		return "", nil
	}
	integrityHash, err := o.Store.CreateSnapshot(ctx, sp.ID, sp.Commit)
	if err != nil {
		return "", err
	}
	return o.Store.Path(integrityHash), nil
}

// gatherArtifact inspects a materialized space's artifact directory
// for the structural facts Lint needs: declared command names, hook
// specs, skill frontmatter presence, and declared MCP tool names.
// Generalized from the teacher's own plan-time resource scan
// (pkg/agent-bundle/validator collects similar facts before
// validating) to this closed per-space shape.
func gatherArtifact(sp *closure.ResolvedSpace, artifactPath string) lint.SpaceArtifact {
	a := lint.SpaceArtifact{SpaceKey: sp.Key}
	if sp.Manifest != nil && sp.Manifest.Plugin != nil && sp.Manifest.Plugin.Name != "" {
		a.PluginName = sp.Manifest.Plugin.Name
	} else {
		a.PluginName = sp.ID
	}

	if names, err := os.ReadDir(filepath.Join(artifactPath, "commands")); err == nil {
		for _, e := range names {
			a.Commands = append(a.Commands, e.Name())
		}
	}
	if names, err := os.ReadDir(filepath.Join(artifactPath, "hooks")); err == nil {
		for _, e := range names {
			a.HookPaths = append(a.HookPaths, filepath.Join("hooks", e.Name()))
		}
	}
	if skillDirs, err := os.ReadDir(filepath.Join(artifactPath, "skills")); err == nil {
		for _, d := range skillDirs {
			if !d.IsDir() {
				continue
			}
			skillPath := filepath.Join(artifactPath, "skills", d.Name())
			hasFrontmatter := false
			if content, err := os.ReadFile(filepath.Join(skillPath, "SKILL.md")); err == nil {
				if _, err := skills.ParseSkillMetadata(content, skillPath, d.Name()); err == nil {
					hasFrontmatter = true
				}
			}
			a.SkillDirs = append(a.SkillDirs, lint.SkillDir{Path: skillPath, HasFrontmatter: hasFrontmatter})
		}
	}
	if sp.Manifest != nil {
		for _, srv := range sp.Manifest.MCP {
			for _, tool := range srv.Tools {
				a.MCPTools = append(a.MCPTools, tool.Name)
			}
		}
	}
	return a
}

// MaterializeTarget implements pkg/session.Materializer, letting the
// non-interactive turn driver trigger a build on demand for a given
// set of spaces. target only names the output directory; with no
// spaces the composed bundle is empty.
func (o *Orchestrator) MaterializeTarget(ctx context.Context, aspHome, projectPath string, spacesArg []string, target string, harnessID harness.ID) (*harness.ComposedTargetBundle, error) {
	result, err := o.Build(ctx, BuildOptions{Spaces: spacesArg, Target: target, HarnessID: harnessID, UseHardlinks: true})
	if err != nil {
		return nil, err
	}
	return result.Bundle, nil
}

// DiagnoseReport is the outcome of Diagnose: a snapshot of harness
// availability and lock-file staleness, the supplemental "asp doctor"
// operation SPEC_FULL.md adds over the distilled spec's install/build
// pair.
type DiagnoseReport struct {
	Harnesses   []harnessregistry.Availability
	LockPresent bool
	LockStale   bool
}

// Diagnose reports harness runtime availability and whether the
// project's lock file is missing or stale against opts.Roots.
func (o *Orchestrator) Diagnose(ctx context.Context, opts InstallOptions) (DiagnoseReport, error) {
	report := DiagnoseReport{Harnesses: o.Registry.DetectAvailable(ctx)}
	sort.Slice(report.Harnesses, func(i, j int) bool { return report.Harnesses[i].ID < report.Harnesses[j].ID })

	existing, err := lock.Load(paths.LockFilePath(o.ProjectPath))
	if err != nil {
		return report, err
	}
	report.LockPresent = existing != nil

	stale, err := o.InstallNeeded(ctx, opts)
	if err != nil {
		return report, err
	}
	report.LockStale = stale
	return report, nil
}

func (o *Orchestrator) registryURL() string {
	return o.Repo.Path()
}

func parseRoots(rootStrs []string) ([]ref.SpaceRef, error) {
	roots := make([]ref.SpaceRef, 0, len(rootStrs))
	for _, s := range rootStrs {
		r, err := ref.Parse(s)
		if err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return roots, nil
}

func cacheKey(harnessID, spaceKey string) string {
	return harnessID + "__" + spaceKey
}
