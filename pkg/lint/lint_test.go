package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/closure"
)

func codes(r Report) []Code {
	var out []Code
	for _, w := range r.Warnings {
		out = append(out, w.Code)
	}
	return out
}

func TestLintCommandAndPluginCollisions(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1", "b@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {SpaceKey: "a@1", PluginName: "shared", Commands: []string{"deploy"}},
		"b@1": {SpaceKey: "b@1", PluginName: "shared", Commands: []string{"deploy"}},
	}

	report := Lint(c, artifacts, "claude-cli")
	require.Contains(t, codes(report), CodeCommandNameCollision)
	require.Contains(t, codes(report), CodePluginNameCollision)
	assert.False(t, report.HasErrors())
}

func TestLintHookPathMissingPluginRoot(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {SpaceKey: "a@1", HookPaths: []string{"/abs/hook.sh"}},
	}

	report := Lint(c, artifacts, "claude-cli")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, CodeHookPathNoPluginRoot, report.Warnings[0].Code)
}

func TestLintPiHarnessFlagsBlockingHookAndPermissions(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {
			SpaceKey:     "a@1",
			HookBlocking: []HookSpec{{Name: "h1", Event: "post-tool-use"}},
			Permissions:  []string{"fs:write"},
		},
	}

	report := Lint(c, artifacts, "pi-cli")
	require.Contains(t, codes(report), CodePiHookCannotBlock)
	require.Contains(t, codes(report), CodePiPermissionLintOnly)
}

func TestLintPiHarnessAllowsBlockableEvent(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {SpaceKey: "a@1", HookBlocking: []HookSpec{{Name: "h1", Event: "pre-tool-use"}}},
	}

	report := Lint(c, artifacts, "pi-cli")
	assert.NotContains(t, codes(report), CodePiHookCannotBlock)
}

func TestLintSkillMissingFrontmatterIsError(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {SpaceKey: "a@1", SkillDirs: []SkillDir{{Path: "skills/x/SKILL.md", HasFrontmatter: false}}},
	}

	report := Lint(c, artifacts, "claude-cli")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, CodeSkillMDMissingFrontmatter, report.Warnings[0].Code)
	assert.Equal(t, SeverityError, report.Warnings[0].Severity)
	assert.True(t, report.HasErrors())
}

func TestLintMCPToolCollision(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1", "b@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {SpaceKey: "a@1", MCPTools: []string{"web_search"}},
		"b@1": {SpaceKey: "b@1", MCPTools: []string{"web_search"}},
	}

	report := Lint(c, artifacts, "claude-cli")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, CodeMCPToolCollision, report.Warnings[0].Code)
	assert.Equal(t, SeverityWarning, report.Warnings[0].Severity)
}

func TestLintCleanClosureProducesNoWarnings(t *testing.T) {
	c := &closure.Closure{LoadOrder: []string{"a@1"}}
	artifacts := map[string]SpaceArtifact{
		"a@1": {SpaceKey: "a@1", PluginName: "a", Commands: []string{"deploy"}},
	}

	report := Lint(c, artifacts, "claude-cli")
	assert.Empty(t, report.Warnings)
}
