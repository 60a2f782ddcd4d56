// Package lint implements the install-time warning taxonomy: coded
// structural checks over a closure's spaces (collisions, hook path
// conventions, skill frontmatter) with severities, generalized from
// the teacher's ValidationResult/ValidationError/ValidationWarning
// shape (pkg/agent-bundle/validator) into the closed, coded Warning
// list spec §4.10 requires.
package lint

import (
	"fmt"
	"strings"

	"agentspaces/pkg/closure"
)

// Severity is warning or error; error severity halts the install gate.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Code is the closed set of lint codes this package emits.
type Code string

const (
	CodeCommandNameCollision     Code = "W201_command-name-collision"
	CodeHookPathNoPluginRoot     Code = "W203_hook-path-no-plugin-root"
	CodePluginNameCollision      Code = "W205_plugin-name-collision"
	CodePiHookCannotBlock        Code = "W301_pi-hook-cannot-block"
	CodePiToolCollision          Code = "W303_pi-tool-collision"
	CodePiPermissionLintOnly     Code = "W304_pi-permission-lint-only"
	CodeSkillMDMissingFrontmatter Code = "SKILL_MD_MISSING_FRONTMATTER"
	CodeMCPToolCollision         Code = "W306_mcp-tool-collision"
)

// Warning is one emitted lint finding.
type Warning struct {
	Code     Code
	Severity Severity
	Message  string
	Details  map[string]any
}

// Report is the full output of a lint pass.
type Report struct {
	Warnings []Warning
}

// HasErrors reports whether the report contains any error-severity
// warning; the install pipeline MUST treat this as fatal.
func (r Report) HasErrors() bool {
	for _, w := range r.Warnings {
		if w.Severity == SeverityError {
			return true
		}
	}
	return false
}

// SpaceArtifact is the minimal per-space structural information the
// linter needs: command names it exposes, the plugin name it
// resolves to, hook definitions, and skill frontmatter presence,
// gathered by pkg/orchestrator's gatherArtifact from each materialized
// artifact before composition.
type SpaceArtifact struct {
	SpaceKey      string
	PluginName    string
	Commands      []string
	HookPaths     []string   // paths as declared, to check plugin-root substitution
	HookBlocking  []HookSpec // hooks marked blocking, for pi-cannot-block checks
	ExtensionFiles []string  // post-namespacing filenames, for pi tool collisions
	Permissions   []string   // declared permission facets
	SkillDirs     []SkillDir
	MCPTools      []string   // declared MCP tool names, for cross-space collision checks
}

// HookSpec names a hook and the event it targets.
type HookSpec struct {
	Name  string
	Event string
}

// SkillDir is one SKILL.md found under a space, with whether
// frontmatter was successfully parsed.
type SkillDir struct {
	Path             string
	HasFrontmatter   bool
}

// pluginRootVar is the substitution token hook paths must reference.
const pluginRootVar = "${CLAUDE_PLUGIN_ROOT}"

// Lint runs all structural checks over a set of resolved spaces and
// their gathered artifacts, for a target composed under a given
// harness.
func Lint(c *closure.Closure, artifacts map[string]SpaceArtifact, harnessID string) Report {
	var report Report

	commandOwners := map[string][]string{}
	pluginOwners := map[string][]string{}
	extensionOwners := map[string][]string{}
	mcpToolOwners := map[string][]string{}

	for _, key := range c.LoadOrder {
		a, ok := artifacts[key]
		if !ok {
			continue
		}

		for _, cmd := range a.Commands {
			commandOwners[cmd] = append(commandOwners[cmd], key)
		}
		if a.PluginName != "" {
			pluginOwners[a.PluginName] = append(pluginOwners[a.PluginName], key)
		}
		for _, ext := range a.ExtensionFiles {
			extensionOwners[ext] = append(extensionOwners[ext], key)
		}
		for _, tool := range a.MCPTools {
			mcpToolOwners[tool] = append(mcpToolOwners[tool], key)
		}

		for _, hookPath := range a.HookPaths {
			if !strings.Contains(hookPath, pluginRootVar) {
				report.Warnings = append(report.Warnings, Warning{
					Code:     CodeHookPathNoPluginRoot,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("hook path %q in %s does not use %s", hookPath, key, pluginRootVar),
					Details:  map[string]any{"space": key, "path": hookPath},
				})
			}
		}

		if harnessID == "pi-cli" || harnessID == "pi-sdk" {
			for _, h := range a.HookBlocking {
				if !piHarnessCanBlock(h.Event) {
					report.Warnings = append(report.Warnings, Warning{
						Code:     CodePiHookCannotBlock,
						Severity: SeverityWarning,
						Message:  fmt.Sprintf("hook %q in %s is blocking but targets event %q which pi cannot block", h.Name, key, h.Event),
						Details:  map[string]any{"space": key, "hook": h.Name, "event": h.Event},
					})
				}
			}
			if len(a.Permissions) > 0 {
				report.Warnings = append(report.Warnings, Warning{
					Code:     CodePiPermissionLintOnly,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("%s declares permissions the pi harness cannot enforce (lint-only)", key),
					Details:  map[string]any{"space": key},
				})
			}
		}

		for _, skill := range a.SkillDirs {
			if !skill.HasFrontmatter {
				report.Warnings = append(report.Warnings, Warning{
					Code:     CodeSkillMDMissingFrontmatter,
					Severity: SeverityError,
					Message:  fmt.Sprintf("SKILL.md at %s (space %s) is missing YAML frontmatter", skill.Path, key),
					Details:  map[string]any{"space": key, "path": skill.Path},
				})
			}
		}
	}

	for cmd, owners := range commandOwners {
		if len(owners) > 1 {
			report.Warnings = append(report.Warnings, Warning{
				Code:     CodeCommandNameCollision,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("command %q is exposed by multiple spaces: %v", cmd, owners),
				Details:  map[string]any{"command": cmd, "spaces": owners},
			})
		}
	}
	for name, owners := range pluginOwners {
		if len(owners) > 1 {
			report.Warnings = append(report.Warnings, Warning{
				Code:     CodePluginNameCollision,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("plugin name %q is produced by multiple spaces: %v", name, owners),
				Details:  map[string]any{"plugin": name, "spaces": owners},
			})
		}
	}
	for ext, owners := range extensionOwners {
		if len(owners) > 1 {
			report.Warnings = append(report.Warnings, Warning{
				Code:     CodePiToolCollision,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("extension filename %q collides across spaces: %v", ext, owners),
				Details:  map[string]any{"file": ext, "spaces": owners},
			})
		}
	}
	for tool, owners := range mcpToolOwners {
		if len(owners) > 1 {
			report.Warnings = append(report.Warnings, Warning{
				Code:     CodeMCPToolCollision,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("MCP tool %q is declared by multiple spaces: %v", tool, owners),
				Details:  map[string]any{"tool": tool, "spaces": owners},
			})
		}
	}

	return report
}

// piHarnessCanBlock reports whether the pi-style harness's event
// model permits a hook targeting this event to be blocking.
func piHarnessCanBlock(event string) bool {
	switch event {
	case "pre-tool-use", "pre-prompt":
		return true
	default:
		return false
	}
}
