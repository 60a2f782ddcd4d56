// Package registry resolves a Selector against the registry's git
// clone to a concrete commit: dist-tags via registry/dist-tags.json,
// semver ranges/exact versions via "space/<id>/v<version>" tags, and
// the reserved dev/project markers with no git lookup at all.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/gitaccess"
	"agentspaces/pkg/ref"
)

// DevMarker and ProjectMarker are the reserved CommitSha values used
// for filesystem-backed (non-content-addressed) spaces.
const (
	DevMarker     = "dev"
	ProjectMarker = "project"
)

// ResolvedSelector is the outcome of resolving one SpaceRef's
// Selector: a concrete commit (or reserved marker) plus enough detail
// to reconstruct how it was chosen.
type ResolvedSelector struct {
	Kind    ref.SelectorKind
	Commit  string
	Tag     string
	Version string
}

// Resolver resolves selectors against a single registry clone.
type Resolver struct {
	repo *gitaccess.Repo
}

// New returns a Resolver bound to repo.
func New(repo *gitaccess.Repo) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve resolves sel for space id to a ResolvedSelector.
func (r *Resolver) Resolve(ctx context.Context, id string, sel ref.Selector) (ResolvedSelector, error) {
	switch sel.Kind {
	case ref.KindDev:
		return ResolvedSelector{Kind: ref.KindDev, Commit: DevMarker}, nil
	case ref.KindProject:
		return ResolvedSelector{Kind: ref.KindProject, Commit: ProjectMarker}, nil
	case ref.KindGitPin:
		if !r.repo.CommitExists(ctx, sel.SHA) {
			return ResolvedSelector{}, aspdiag.New(aspdiag.CodeNotFound, fmt.Sprintf("commit %q does not exist", sel.SHA))
		}
		return ResolvedSelector{Kind: ref.KindGitPin, Commit: sel.SHA}, nil
	case ref.KindSemverExact:
		return r.resolveExact(ctx, id, sel.Version)
	case ref.KindSemverRange:
		return r.resolveRange(ctx, id, sel.Range)
	case ref.KindDistTag:
		return r.resolveDistTag(ctx, id, sel.Name)
	default:
		return ResolvedSelector{}, aspdiag.New(aspdiag.CodeRefInvalid, fmt.Sprintf("unknown selector kind %q", sel.Kind))
	}
}

func (r *Resolver) resolveDistTag(ctx context.Context, id, tagName string) (ResolvedSelector, error) {
	data, err := r.repo.Show(ctx, "HEAD", "registry/dist-tags.json")
	if err != nil {
		return ResolvedSelector{}, err
	}
	if data == nil {
		return ResolvedSelector{}, aspdiag.New(aspdiag.CodeDistTagNotFound, "registry/dist-tags.json not found")
	}

	var distTags map[string]map[string]string
	if err := json.Unmarshal(data, &distTags); err != nil {
		return ResolvedSelector{}, aspdiag.Wrap(aspdiag.CodeLockInvalid, "parse dist-tags.json", err)
	}

	spaceTags, ok := distTags[id]
	if !ok {
		return ResolvedSelector{}, aspdiag.New(aspdiag.CodeDistTagNotFound, fmt.Sprintf("no dist-tags for %q", id))
	}
	version, ok := spaceTags[tagName]
	if !ok {
		return ResolvedSelector{}, aspdiag.New(aspdiag.CodeDistTagNotFound, fmt.Sprintf("dist-tag %q.%q not found", id, tagName))
	}
	version = normalizeVPrefix(version)

	resolved, err := r.resolveTag(ctx, id, version)
	if err != nil {
		return ResolvedSelector{}, err
	}
	resolved.Kind = ref.KindDistTag
	return resolved, nil
}

func (r *Resolver) resolveExact(ctx context.Context, id, version string) (ResolvedSelector, error) {
	resolved, err := r.resolveTag(ctx, id, version)
	if err != nil {
		if code, ok := aspdiag.CodeOf(err); ok && code == aspdiag.CodeNotFound {
			return ResolvedSelector{}, aspdiag.New(aspdiag.CodeVersionNotFound, fmt.Sprintf("version %q not found for %q", version, id))
		}
		return ResolvedSelector{}, err
	}
	return resolved, nil
}

func (r *Resolver) resolveTag(ctx context.Context, id, version string) (ResolvedSelector, error) {
	version = normalizeVPrefix(version)
	tagName := fmt.Sprintf("space/%s/%s", id, version)
	commit, err := r.repo.ResolveTagCommit(ctx, "refs/tags/"+tagName)
	if err != nil {
		return ResolvedSelector{}, aspdiag.New(aspdiag.CodeNotFound, fmt.Sprintf("tag %q not found", tagName))
	}
	return ResolvedSelector{
		Kind:    ref.KindSemverExact,
		Commit:  commit,
		Tag:     tagName,
		Version: trimVPrefix(version),
	}, nil
}

func (r *Resolver) resolveRange(ctx context.Context, id, rangeStr string) (ResolvedSelector, error) {
	constraint, err := semver.NewConstraint(rangeStr)
	if err != nil {
		return ResolvedSelector{}, aspdiag.Wrap(aspdiag.CodeRefInvalid, fmt.Sprintf("bad semver range %q", rangeStr), err)
	}

	tags, err := r.repo.Tags(id)
	if err != nil {
		return ResolvedSelector{}, err
	}

	var best *semver.Version
	var bestRaw string
	for versionStr := range tags {
		v, err := semver.NewVersion(versionStr)
		if err != nil {
			continue // skip tags that aren't valid semver
		}
		if !constraint.Check(v) {
			continue
		}
		if best == nil || tagNewer(v, best) {
			best = v
			bestRaw = versionStr
		}
	}

	if best == nil {
		return ResolvedSelector{}, aspdiag.New(aspdiag.CodeNoVersionMatches, fmt.Sprintf("no tag for %q satisfies %q", id, rangeStr))
	}

	resolved, err := r.resolveTag(ctx, id, bestRaw)
	if err != nil {
		return ResolvedSelector{}, err
	}
	resolved.Kind = ref.KindSemverRange
	return resolved, nil
}

// tagNewer reports whether candidate should be preferred over
// current: numeric precedence first, stable-over-prerelease tie-break
// at equal numeric precedence.
func tagNewer(candidate, current *semver.Version) bool {
	if candidate.GreaterThan(current) {
		return true
	}
	if candidate.LessThan(current) {
		return false
	}
	// equal numeric precedence: prefer the one with no prerelease tag
	candidatePre := candidate.Prerelease() != ""
	currentPre := current.Prerelease() != ""
	if candidatePre == currentPre {
		return false
	}
	return currentPre && !candidatePre
}

func normalizeVPrefix(version string) string {
	if len(version) > 0 && version[0] != 'v' {
		return "v" + version
	}
	return version
}

func trimVPrefix(version string) string {
	if len(version) > 0 && version[0] == 'v' {
		return version[1:]
	}
	return version
}
