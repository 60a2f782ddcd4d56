// Package ref parses and serializes Space reference strings:
// "space:<id>@<selector>" and "space:project:<id>".
package ref

import (
	"fmt"
	"regexp"
	"strings"
)

var spaceIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const maxIDLen = 64

// SelectorKind is the closed set of selector variants a reference's
// trailing segment decodes to.
type SelectorKind string

const (
	KindDistTag     SelectorKind = "dist-tag"
	KindSemverExact SelectorKind = "semver-exact"
	KindSemverRange SelectorKind = "semver-range"
	KindGitPin      SelectorKind = "git-pin"
	KindDev         SelectorKind = "dev"
	KindProject     SelectorKind = "project"
)

// Selector is a tagged union over the selector kinds above. Only the
// field(s) relevant to Kind are meaningful.
type Selector struct {
	Kind    SelectorKind
	Name    string // dist-tag name
	Version string // semver-exact version
	Range   string // semver-range constraint string
	SHA     string // git-pin commit sha (or prefix)
}

func (s Selector) String() string {
	switch s.Kind {
	case KindDistTag:
		return s.Name
	case KindSemverExact:
		return s.Version
	case KindSemverRange:
		return s.Range
	case KindGitPin:
		return s.SHA
	case KindDev:
		return "dev"
	case KindProject:
		return "project"
	default:
		return ""
	}
}

// SpaceRef is a fully parsed reference: an id, a selector, and whether
// it names a project-local space.
type SpaceRef struct {
	ID           string
	Selector     Selector
	ProjectSpace bool
	Path         string // optional, set by callers resolving dev/project paths
}

// String reconstructs the canonical "space:..." form.
func (r SpaceRef) String() string {
	if r.ProjectSpace && r.Selector.Kind == KindProject {
		return fmt.Sprintf("space:project:%s", r.ID)
	}
	return fmt.Sprintf("space:%s@%s", r.ID, r.Selector.String())
}

var (
	hexSHARe    = regexp.MustCompile(`^[0-9a-f]{7,64}$`)
	pureSemver  = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)
	rangeChars  = regexp.MustCompile(`[\^~<>]|\*|,|(?:^|\.)[xX](?:\.|$)`)
	validIDOnce = spaceIDPattern
)

// ValidSpaceID reports whether id matches the kebab-case SpaceId
// grammar and length limit.
func ValidSpaceID(id string) bool {
	return id != "" && len(id) <= maxIDLen && validIDOnce.MatchString(id)
}

// Parse decodes a "space:<id>@<selector>" or "space:project:<id>"
// string into a SpaceRef.
func Parse(s string) (SpaceRef, error) {
	const prefix = "space:"
	if !strings.HasPrefix(s, prefix) {
		return SpaceRef{}, fmt.Errorf("ref_invalid: missing %q prefix: %q", prefix, s)
	}
	rest := s[len(prefix):]

	if strings.HasPrefix(rest, "project:") {
		id := strings.TrimPrefix(rest, "project:")
		if !ValidSpaceID(id) {
			return SpaceRef{}, fmt.Errorf("ref_invalid: bad space id %q", id)
		}
		return SpaceRef{
			ID:           id,
			Selector:     Selector{Kind: KindProject},
			ProjectSpace: true,
		}, nil
	}

	idx := strings.IndexByte(rest, '@')
	if idx < 0 {
		return SpaceRef{}, fmt.Errorf("ref_invalid: missing selector in %q", s)
	}
	id := rest[:idx]
	selectorStr := rest[idx+1:]

	if !ValidSpaceID(id) {
		return SpaceRef{}, fmt.Errorf("ref_invalid: bad space id %q", id)
	}
	if strings.TrimSpace(selectorStr) == "" {
		return SpaceRef{}, fmt.Errorf("ref_invalid: empty selector in %q", s)
	}
	if selectorStr != strings.TrimSpace(selectorStr) {
		return SpaceRef{}, fmt.Errorf("ref_invalid: selector has surrounding whitespace in %q", s)
	}

	sel, err := parseSelector(selectorStr)
	if err != nil {
		return SpaceRef{}, err
	}

	return SpaceRef{ID: id, Selector: sel}, nil
}

func parseSelector(tok string) (Selector, error) {
	switch {
	case tok == "dev":
		return Selector{Kind: KindDev}, nil
	case strings.HasPrefix(tok, "git:"):
		sha := strings.TrimPrefix(tok, "git:")
		if !hexSHARe.MatchString(sha) {
			return Selector{}, fmt.Errorf("ref_invalid: bad git pin %q", tok)
		}
		return Selector{Kind: KindGitPin, SHA: sha}, nil
	case hexSHARe.MatchString(tok):
		return Selector{Kind: KindGitPin, SHA: tok}, nil
	case pureSemver.MatchString(tok):
		return Selector{Kind: KindSemverExact, Version: tok}, nil
	case rangeChars.MatchString(tok):
		return Selector{Kind: KindSemverRange, Range: tok}, nil
	default:
		return Selector{Kind: KindDistTag, Name: tok}, nil
	}
}

// IsSpaceRefString is a total, side-effect-free predicate over
// candidate reference strings.
func IsSpaceRefString(s string) bool {
	_, err := Parse(s)
	return err == nil
}
