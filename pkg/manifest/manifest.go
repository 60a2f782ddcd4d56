// Package manifest reads and validates space.toml, either from a
// registry commit's tree or from a filesystem directory for dev and
// project-local spaces.
package manifest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/gitaccess"
)

// PluginMeta is the optional [plugin] block.
type PluginMeta struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Description string   `toml:"description"`
	Author      string   `toml:"author"`
	Keywords    []string `toml:"keywords"`
	License     string   `toml:"license"`
}

// Deps is the optional [deps] block.
type Deps struct {
	Spaces []string `toml:"spaces"`
}

// PiBuildConfig is the optional [pi.build] block.
type PiBuildConfig struct {
	Entry string `toml:"entry"`
}

// PiConfig is the optional [pi] block.
type PiConfig struct {
	Build PiBuildConfig `toml:"build"`
}

// HarnessSupports is the optional [harness.supports] block: a flat
// set of harness IDs this space declares compatibility with.
type HarnessSupports struct {
	Supports []string `toml:"supports"`
}

// HarnessConfig is the optional [harness] block.
type HarnessConfig struct {
	Supports []string `toml:"supports"`
}

// MCPServerConfig is one declared entry of the optional [[mcp_servers]]
// array: a launch descriptor plus the tools it's expected to expose.
// Tools are typed as mcp.Tool (the real MCP wire descriptor) so the
// linter can flag duplicate tool names the same way it already flags
// duplicate pi tool extension files, rather than inventing a
// parallel ad hoc shape.
type MCPServerConfig struct {
	Name    string     `toml:"name"`
	Command string     `toml:"command"`
	Args    []string   `toml:"args"`
	Env     []string   `toml:"env"`
	Tools   []mcp.Tool `toml:"tools"`
}

// ScheduleConfig is the optional [schedule] block: a cron expression
// under which an orchestrator-driven run of this space's target may
// be triggered unattended.
type ScheduleConfig struct {
	Cron string `toml:"cron"`
}

// SpaceManifest is the parsed form of space.toml, per the data model.
type SpaceManifest struct {
	ID          string                 `toml:"id"`
	Version     string                 `toml:"version"`
	Plugin      *PluginMeta            `toml:"plugin"`
	Deps        *Deps                  `toml:"deps"`
	Codex       map[string]interface{} `toml:"codex"`
	Pi          *PiConfig              `toml:"pi"`
	Harness     *HarnessConfig         `toml:"harness"`
	MCP         []MCPServerConfig      `toml:"mcp_servers"`
	Schedule    *ScheduleConfig        `toml:"schedule"`
	Settings    map[string]interface{} `toml:"settings"`
	Permissions map[string]interface{} `toml:"permissions"`
}

// DepRefs returns the declared dependency ref strings in order, or
// nil if none are declared.
func (m *SpaceManifest) DepRefs() []string {
	if m.Deps == nil {
		return nil
	}
	return m.Deps.Spaces
}

var knownTopLevelKeys = map[string]bool{
	"id": true, "version": true, "plugin": true, "deps": true,
	"codex": true, "pi": true, "harness": true, "settings": true,
	"permissions": true, "mcp_servers": true, "schedule": true,
}

// ReadResult carries the parsed manifest plus any forward-compat
// warnings about unknown top-level keys.
type ReadResult struct {
	Manifest *SpaceManifest
	Warnings []string
}

// ReadFromGit reads <commit>:spaces/<id>/space.toml via repo.
func ReadFromGit(ctx context.Context, repo *gitaccess.Repo, commit, id string) (*ReadResult, error) {
	path := filepath.Join("spaces", id, "space.toml")
	data, err := repo.Show(ctx, commit, path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, aspdiag.New(aspdiag.CodeManifestInvalid, fmt.Sprintf("missing space.toml for %q at %s", id, commit))
	}
	return parse(data, id)
}

// ReadFromFS reads space.toml from a filesystem directory: either
// <root>/spaces/<id>/space.toml (when path is empty) or
// <path>/space.toml (when an explicit project/dev path is given).
func ReadFromFS(fs afero.Fs, root, id, path string) (*ReadResult, error) {
	manifestPath := filepath.Join(root, "spaces", id, "space.toml")
	if path != "" {
		manifestPath = filepath.Join(path, "space.toml")
	}

	data, err := afero.ReadFile(fs, manifestPath)
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeManifestInvalid, fmt.Sprintf("read %s", manifestPath), err)
	}
	return parse(data, id)
}

func parse(data []byte, expectID string) (*ReadResult, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeManifestInvalid, "parse space.toml", err)
	}

	var warnings []string
	for key := range raw {
		if !knownTopLevelKeys[key] {
			warnings = append(warnings, fmt.Sprintf("unknown top-level key %q in space.toml", key))
		}
	}

	var m SpaceManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeManifestInvalid, "decode space.toml", err)
	}

	if m.ID == "" {
		return nil, aspdiag.New(aspdiag.CodeManifestInvalid, "space.toml missing required field \"id\"")
	}
	if m.ID != expectID {
		return nil, aspdiag.New(aspdiag.CodeManifestInvalid, fmt.Sprintf("space.toml id %q does not match ref id %q", m.ID, expectID))
	}
	if m.Schedule != nil && m.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(m.Schedule.Cron); err != nil {
			return nil, aspdiag.Wrap(aspdiag.CodeManifestInvalid, fmt.Sprintf("space.toml schedule.cron %q is invalid", m.Schedule.Cron), err)
		}
	}

	return &ReadResult{Manifest: &m, Warnings: warnings}, nil
}
