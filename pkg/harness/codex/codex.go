// Package codex implements the harness.Adapter contract for the Codex
// CLI: a codex.home/ template per composed target holding a merged
// config.toml, a concatenated AGENTS.md (one BEGIN/END-marked section
// per space, in load order), linked skills/ and prompts/ directories,
// and a merged MCP server config. Structurally this mirrors
// pkg/harness/claude's plugin-root composition, adapted from Claude's
// directory-of-plugins shape to Codex's single merged home directory.
package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/harness"
)

const agentsMDName = "AGENTS.md"

// Adapter implements harness.Adapter for the Codex CLI.
type Adapter struct {
	detected *harness.DetectResult
}

// New returns a Codex CLI adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) ID() harness.ID { return harness.IDCodexCLI }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	if a.detected != nil {
		return *a.detected
	}

	path := os.Getenv("ASP_CODEX_PATH")
	if path == "" {
		if found, err := exec.LookPath("codex"); err == nil {
			path = found
		}
	}
	if path == "" {
		result := harness.DetectResult{Available: false, Error: "codex binary not found on PATH"}
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

	return harness.MaterializeResult{ArtifactPath: cacheDir, Files: files}, nil
}

func (a *Adapter) ComposeTarget(ctx context.Context, input harness.ComposeInput, outputDir string, opts harness.ComposeOptions) (harness.ComposeResult, error) {
	if opts.Clean {
		os.RemoveAll(outputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir codex home", err)
	}

	var warnings []string
	var agentsSections []string
	mergedConfig := map[string]any{}
	mergedMCP := map[string]any{}
	toolOwners := map[string][]string{}

	for _, art := range input.Artifacts {
		if md, err := os.ReadFile(filepath.Join(art.ArtifactPath, agentsMDName)); err == nil {
			agentsSections = append(agentsSections, fmt.Sprintf("<!-- BEGIN %s -->\n%s\n<!-- END %s -->", art.Space.Key, strings.TrimSpace(string(md)), art.Space.Key))
		}

		if m := art.Space.Manifest; m != nil {
			for k, v := range m.Codex {
				mergedConfig[k] = v // later load-order entries override
			}
			for _, srv := range m.MCP {
				mergedMCP[srv.Name] = map[string]any{
					"command": srv.Command,
					"args":    srv.Args,
					"env":     srv.Env,
				}
				for _, tool := range srv.Tools {
					toolOwners[tool.Name] = append(toolOwners[tool.Name], art.Space.Key)
				}
			}
		}

		for _, dir := range []string{"skills", "prompts"} {
			src := filepath.Join(art.ArtifactPath, dir)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			dst := filepath.Join(outputDir, dir, art.Space.Key)
			if _, err := harness.CopyTree(src, dst, true); err != nil {
				return harness.ComposeResult{}, err
			}
		}
	}

	for tool, owners := range toolOwners {
		if len(owners) > 1 {
			warnings = append(warnings, fmt.Sprintf("MCP tool %q declared by multiple spaces: %v", tool, owners))
		}
	}

	configData, err := toml.Marshal(mergedConfig)
	if err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "marshal config.toml", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "config.toml"), configData, 0o644); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "write config.toml", err)
	}

	if err := os.WriteFile(filepath.Join(outputDir, agentsMDName), []byte(strings.Join(agentsSections, "\n\n")), 0o644); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "write AGENTS.md", err)
	}

	mcpData, err := json.MarshalIndent(mergedMCP, "", "  ")
	if err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "marshal mcp config", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "mcp.json"), mcpData, 0o644); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "write mcp.json", err)
	}

	bundle := &harness.ComposedTargetBundle{
		HarnessID:     harness.IDCodexCLI,
		TargetName:    input.TargetName,
		RootDir:       outputDir,
		MCPConfigPath: filepath.Join(outputDir, "mcp.json"),
		Extra: map[string]string{
			"configPath":   filepath.Join(outputDir, "config.toml"),
			"agentsMDPath": filepath.Join(outputDir, agentsMDName),
		},
	}
	return harness.ComposeResult{Bundle: bundle, Warnings: warnings}, nil
}

func (a *Adapter) LoadTargetBundle(outputDir, targetName string) (*harness.ComposedTargetBundle, error) {
	configPath := filepath.Join(outputDir, "config.toml")
	if _, err := os.Stat(configPath); err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeNotFound, "load composed codex bundle", err)
	}
	return &harness.ComposedTargetBundle{
		HarnessID:     harness.IDCodexCLI,
		TargetName:    targetName,
		RootDir:       outputDir,
		MCPConfigPath: filepath.Join(outputDir, "mcp.json"),
		Extra: map[string]string{
			"configPath":   configPath,
			"agentsMDPath": filepath.Join(outputDir, agentsMDName),
		},
	}, nil
}

func (a *Adapter) BuildRunArgs(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) []string {
	args := []string{"--codex-home", bundle.RootDir}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.ApprovalPolicy != "" {
		args = append(args, "--approval-policy", opts.ApprovalPolicy)
	}
	if opts.SandboxMode != "" {
		args = append(args, "--sandbox", opts.SandboxMode)
	}
	if opts.Profile != "" {
		args = append(args, "--profile", opts.Profile)
	}
	return args
}

func (a *Adapter) GetRunEnv(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) map[string]string {
	return map[string]string{
		"CODEX_HOME": bundle.RootDir,
	}
}

func (a *Adapter) GetDefaultRunOptions(project harness.ProjectManifest, targetName string) harness.RunOptions {
	opts := harness.RunOptions{Model: "gpt-5-codex", SandboxMode: "workspace-write"}
	if project.Yolo {
		opts.ApprovalPolicy = "never"
	} else {
		opts.ApprovalPolicy = "on-request"
	}
	return opts
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, string(harness.IDCodexCLI))
}
