// Package claude implements the harness.Adapter contract for the
// Claude CLI's plugin model: one plugin.json per space, linked
// commands/agents/skills/hooks/mcp directories, a generated hooks.json
// referencing the plugin-root substitution variable, and merged
// mcp.json/settings.json across the composed load order.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/harness"
)

const pluginRootVar = "${CLAUDE_PLUGIN_ROOT}"

var contentDirs = []string{"commands", "agents", "skills", "hooks", "mcp"}

// Adapter implements harness.Adapter for the Claude CLI.
type Adapter struct {
	detected *harness.DetectResult
}

// New returns a Claude CLI adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() harness.ID { return harness.IDClaudeCLI }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	if a.detected != nil {
		return *a.detected
	}

	path := os.Getenv("ASP_CLAUDE_PATH")
	if path == "" {
		if found, err := exec.LookPath("claude"); err == nil {
			path = found
		}
	}
	if path == "" {
		result := harness.DetectResult{Available: false, Error: "claude binary not found on PATH"}
		a.detected = &result
		return result
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	result := harness.DetectResult{Available: true, Path: path}
	if err == nil {
		result.Version = strings.TrimSpace(string(out))
	}
	a.detected = &result
	return result
}

func (a *Adapter) ValidateSpace(ctx context.Context, input harness.MaterializeInput) harness.ValidateResult {
	result := harness.ValidateResult{Valid: true}
	if input.Space.Manifest == nil {
		result.Valid = false
		result.Errors = append(result.Errors, "space has no manifest")
	}
	return result
}

func (a *Adapter) MaterializeSpace(ctx context.Context, input harness.MaterializeInput, cacheDir string, opts harness.MaterializeOptions) (harness.MaterializeResult, error) {
	src := input.SnapshotPath
	if src == "" {
		src = input.Space.Path
	}
	if src == "" {
		return harness.MaterializeResult{}, aspdiag.New(aspdiag.CodeFilesystemError, fmt.Sprintf("space %q has no materializable source", input.Space.ID))
	}

	if opts.Force {
		os.RemoveAll(cacheDir)
	}
	if _, err := os.Stat(cacheDir); err == nil && !opts.Force {
		return harness.MaterializeResult{ArtifactPath: cacheDir}, nil
	}

	useHardlinks := opts.UseHardlinks && !input.Space.ProjectSpace && input.Space.Commit != "dev"
	files, err := harness.CopyTree(src, cacheDir, useHardlinks)
	if err != nil {
		os.RemoveAll(cacheDir)
		return harness.MaterializeResult{}, err
	}

	pluginName := input.Space.ID
	pluginVersion := ""
	if m := input.Space.Manifest; m != nil && m.Plugin != nil {
		if m.Plugin.Name != "" {
			pluginName = m.Plugin.Name
		}
		pluginVersion = m.Plugin.Version
	}

	pluginJSON := map[string]any{
		"name":    pluginName,
		"version": pluginVersion,
	}
	data, _ := json.MarshalIndent(pluginJSON, "", "  ")
	if err := os.WriteFile(filepath.Join(cacheDir, "plugin.json"), data, 0o644); err != nil {
		os.RemoveAll(cacheDir)
		return harness.MaterializeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "write plugin.json", err)
	}
	files = append(files, "plugin.json")

	return harness.MaterializeResult{ArtifactPath: cacheDir, Files: files}, nil
}

func (a *Adapter) ComposeTarget(ctx context.Context, input harness.ComposeInput, outputDir string, opts harness.ComposeOptions) (harness.ComposeResult, error) {
	if opts.Clean {
		os.RemoveAll(outputDir)
	}
	pluginsDir := filepath.Join(outputDir, "plugins")
	if err := os.MkdirAll(pluginsDir, 0o755); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir plugins", err)
	}

	var warnings []string
	commandOwners := map[string][]string{}
	mergedMCP := map[string]any{}
	var hookEntries []map[string]any

	for _, art := range input.Artifacts {
		spacePluginDir := filepath.Join(pluginsDir, art.Space.Key)
		if _, err := harness.CopyTree(art.ArtifactPath, spacePluginDir, true); err != nil {
			return harness.ComposeResult{}, err
		}

		for _, dir := range contentDirs {
			full := filepath.Join(spacePluginDir, dir)
			entries, err := os.ReadDir(full)
			if err != nil {
				continue
			}
			if dir == "commands" {
				for _, e := range entries {
					commandOwners[e.Name()] = append(commandOwners[e.Name()], art.Space.Key)
				}
			}
			if dir == "hooks" {
				for _, e := range entries {
					if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
						continue
					}
					raw, err := os.ReadFile(filepath.Join(full, e.Name()))
					if err != nil {
						continue
					}
					var hook map[string]any
					if json.Unmarshal(raw, &hook) == nil {
						hook["_pluginRoot"] = pluginRootVar
						hook["_space"] = art.Space.Key
						hookEntries = append(hookEntries, hook)
					}
				}
			}
			if dir == "mcp" {
				raw, err := os.ReadFile(filepath.Join(full, "mcp.json"))
				if err == nil {
					var spaceMCP map[string]any
					if json.Unmarshal(raw, &spaceMCP) == nil {
						for k, v := range spaceMCP {
							mergedMCP[k] = v // later load-order entries override
						}
					}
				}
			}
		}
	}

	for cmd, owners := range commandOwners {
		if len(owners) > 1 {
			warnings = append(warnings, fmt.Sprintf("command %q exposed by multiple spaces: %v", cmd, owners))
		}
	}

	hooksJSON := map[string]any{"hooks": hookEntries}
	if err := writeJSON(filepath.Join(outputDir, "hooks.json"), hooksJSON); err != nil {
		return harness.ComposeResult{}, err
	}
	if err := writeJSON(filepath.Join(outputDir, "mcp.json"), mergedMCP); err != nil {
		return harness.ComposeResult{}, err
	}
	settings := composeSettings(input, opts)
	if err := writeJSON(filepath.Join(outputDir, "settings.json"), settings); err != nil {
		return harness.ComposeResult{}, err
	}

	var pluginDirs []string
	for _, art := range input.Artifacts {
		pluginDirs = append(pluginDirs, filepath.Join("plugins", art.Space.Key))
	}
	sort.Strings(pluginDirs)

	bundle := &harness.ComposedTargetBundle{
		HarnessID:     harness.IDClaudeCLI,
		TargetName:    input.TargetName,
		RootDir:       outputDir,
		PluginDirs:    pluginDirs,
		MCPConfigPath: filepath.Join(outputDir, "mcp.json"),
		SettingsPath:  filepath.Join(outputDir, "settings.json"),
		Extra:         map[string]string{"hooksPath": filepath.Join(outputDir, "hooks.json")},
	}
	return harness.ComposeResult{Bundle: bundle, Warnings: warnings}, nil
}

func composeSettings(input harness.ComposeInput, opts harness.ComposeOptions) map[string]any {
	settings := map[string]any{}
	if opts.InheritProject {
		settings["inheritProject"] = true
	}
	if opts.InheritUser {
		settings["inheritUser"] = true
	}
	merged := map[string]any{}
	for _, art := range input.Artifacts {
		if art.Space.Manifest == nil {
			continue
		}
		for k, v := range art.Space.Manifest.Settings {
			merged[k] = v
		}
	}
	settings["merged"] = merged
	return settings
}

func (a *Adapter) LoadTargetBundle(outputDir, targetName string) (*harness.ComposedTargetBundle, error) {
	entries, err := os.ReadDir(filepath.Join(outputDir, "plugins"))
	if err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeNotFound, "load composed claude bundle", err)
	}
	var pluginDirs []string
	for _, e := range entries {
		if e.IsDir() {
			pluginDirs = append(pluginDirs, filepath.Join("plugins", e.Name()))
		}
	}
	sort.Strings(pluginDirs)
	return &harness.ComposedTargetBundle{
		HarnessID:     harness.IDClaudeCLI,
		TargetName:    targetName,
		RootDir:       outputDir,
		PluginDirs:    pluginDirs,
		MCPConfigPath: filepath.Join(outputDir, "mcp.json"),
		SettingsPath:  filepath.Join(outputDir, "settings.json"),
		Extra:         map[string]string{"hooksPath": filepath.Join(outputDir, "hooks.json")},
	}, nil
}

func (a *Adapter) BuildRunArgs(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) []string {
	args := []string{"--plugin-root", bundle.RootDir}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

func (a *Adapter) GetRunEnv(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) map[string]string {
	return map[string]string{
		"CLAUDE_PLUGIN_ROOT": bundle.RootDir,
	}
}

func (a *Adapter) GetDefaultRunOptions(project harness.ProjectManifest, targetName string) harness.RunOptions {
	opts := harness.RunOptions{Model: "claude"}
	if project.Yolo {
		opts.ApprovalPolicy = "never"
	}
	return opts
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, string(harness.IDClaudeCLI))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "marshal json", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("write %s", path), err)
	}
	return nil
}
