// Package picli implements the harness.Adapter contract for the Pi
// CLI: extensions bundled to a flat, namespaced directory, skills
// copied as-is, a space's hooks/ directory renamed to hooks-scripts/
// to avoid colliding with the harness's own hooks format, and a
// generated hook-bridge extension translating canonical hook events
// into pi's event names.
package picli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/harness"
)

// Adapter implements harness.Adapter for the Pi CLI.
type Adapter struct {
	detected *harness.DetectResult
}

// New returns a Pi CLI adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() harness.ID { return harness.IDPiCLI }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	if a.detected != nil {
		return *a.detected
	}
	path := os.Getenv("PI_PATH")
	if path == "" {
		if found, err := exec.LookPath("pi"); err == nil {
			path = found
		}
	}
	if path == "" {
		result := harness.DetectResult{Available: false, Error: "pi binary not found on PATH"}
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
		return result
	}
	if len(input.Space.Manifest.Permissions) > 0 {
		result.Warnings = append(result.Warnings, "pi harness cannot enforce declared permissions; lint-only")
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

	// Rename hooks/ to hooks-scripts/ to avoid colliding with pi's own
	// hooks directory convention.
	hooksDir := filepath.Join(cacheDir, "hooks")
	if _, err := os.Stat(hooksDir); err == nil {
		renamed := filepath.Join(cacheDir, "hooks-scripts")
		if err := os.Rename(hooksDir, renamed); err != nil {
			os.RemoveAll(cacheDir)
			return harness.MaterializeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "rename hooks to hooks-scripts", err)
		}
		for i, f := range files {
			if strings.HasPrefix(f, "hooks"+string(filepath.Separator)) {
				files[i] = "hooks-scripts" + strings.TrimPrefix(f, "hooks")
			}
		}
	}

	return harness.MaterializeResult{ArtifactPath: cacheDir, Files: files, Warnings: nil}, nil
}

func (a *Adapter) ComposeTarget(ctx context.Context, input harness.ComposeInput, outputDir string, opts harness.ComposeOptions) (harness.ComposeResult, error) {
	if opts.Clean {
		os.RemoveAll(outputDir)
	}
	extensionsDir := filepath.Join(outputDir, "extensions")
	skillsDir := filepath.Join(outputDir, "skills")
	if err := os.MkdirAll(extensionsDir, 0o755); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir extensions", err)
	}
	if err := os.MkdirAll(skillsDir, 0o755); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir skills", err)
	}

	var warnings []string
	extensionOwners := map[string][]string{}
	var hookBridgeEvents []map[string]string

	for _, art := range input.Artifacts {
		src := filepath.Join(art.ArtifactPath, "extensions")
		entries, _ := os.ReadDir(src)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			bundledName := fmt.Sprintf("%s__%s.js", art.Space.ID, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
			extensionOwners[bundledName] = append(extensionOwners[bundledName], art.Space.Key)
			bundled, err := bundleExtension(filepath.Join(src, e.Name()))
			if err != nil {
				return harness.ComposeResult{}, err
			}
			if err := os.WriteFile(filepath.Join(extensionsDir, bundledName), bundled, 0o644); err != nil {
				return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "write bundled extension", err)
			}
		}

		if _, err := harness.CopyTree(filepath.Join(art.ArtifactPath, "skills"), filepath.Join(skillsDir, art.Space.Key), true); err == nil {
			// skills copied; absence of a skills/ dir in the artifact
			// is not an error.
		}

		hooksScripts := filepath.Join(art.ArtifactPath, "hooks-scripts")
		if entries, err := os.ReadDir(hooksScripts); err == nil {
			for _, e := range entries {
				hookBridgeEvents = append(hookBridgeEvents, map[string]string{
					"space": art.Space.Key,
					"file":  e.Name(),
				})
			}
		}
	}

	for ext, owners := range extensionOwners {
		if len(owners) > 1 {
			warnings = append(warnings, fmt.Sprintf("extension filename %q collides across spaces: %v", ext, owners))
		}
	}

	if err := writeHookBridge(extensionsDir, hookBridgeEvents); err != nil {
		return harness.ComposeResult{}, err
	}

	settings := map[string]any{
		"disabledSkillDirectories": []string{"builtin"},
	}
	if err := writeJSON(filepath.Join(outputDir, "settings.json"), settings); err != nil {
		return harness.ComposeResult{}, err
	}

	bundle := &harness.ComposedTargetBundle{
		HarnessID:    harness.IDPiCLI,
		TargetName:   input.TargetName,
		RootDir:      outputDir,
		SettingsPath: filepath.Join(outputDir, "settings.json"),
		Extra: map[string]string{
			"extensionsDir": extensionsDir,
			"skillsDir":     skillsDir,
		},
	}
	return harness.ComposeResult{Bundle: bundle, Warnings: warnings}, nil
}

// bundleExtension compiles a single extensions/*.ts source file to a
// self-contained CommonJS module the pi CLI can load directly, per
// spec §4.11. esbuild resolves and inlines any relative imports the
// extension pulls in; an unresolved bare import surfaces as a build
// error rather than being silently dropped.
func bundleExtension(srcPath string) ([]byte, error) {
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{srcPath},
		Bundle:      true,
		Write:       false,
		Format:      api.FormatCommonJS,
		Platform:    api.PlatformNeutral,
		Target:      api.ES2020,
		LogLevel:    api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Text
		}
		return nil, aspdiag.New(aspdiag.CodeLintError, fmt.Sprintf("bundle %s: %s", srcPath, strings.Join(msgs, "; ")))
	}
	if len(result.OutputFiles) == 0 {
		return nil, aspdiag.New(aspdiag.CodeLintError, fmt.Sprintf("bundle %s: no output produced", srcPath))
	}
	return result.OutputFiles[0].Contents, nil
}

func writeHookBridge(extensionsDir string, events []map[string]string) error {
	sort.Slice(events, func(i, j int) bool {
		if events[i]["space"] != events[j]["space"] {
			return events[i]["space"] < events[j]["space"]
		}
		return events[i]["file"] < events[j]["file"]
	})
	data, err := json.MarshalIndent(map[string]any{"events": events}, "", "  ")
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "marshal hook bridge descriptor", err)
	}
	return os.WriteFile(filepath.Join(extensionsDir, "__hook-bridge.json"), data, 0o644)
}

func (a *Adapter) LoadTargetBundle(outputDir, targetName string) (*harness.ComposedTargetBundle, error) {
	if _, err := os.Stat(filepath.Join(outputDir, "extensions")); err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeNotFound, "load composed pi bundle", err)
	}
	return &harness.ComposedTargetBundle{
		HarnessID:    harness.IDPiCLI,
		TargetName:   targetName,
		RootDir:      outputDir,
		SettingsPath: filepath.Join(outputDir, "settings.json"),
		Extra: map[string]string{
			"extensionsDir": filepath.Join(outputDir, "extensions"),
			"skillsDir":     filepath.Join(outputDir, "skills"),
		},
	}, nil
}

func (a *Adapter) BuildRunArgs(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) []string {
	args := []string{"--extensions-dir", bundle.Extra["extensionsDir"]}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args
}

func (a *Adapter) GetRunEnv(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) map[string]string {
	return map[string]string{"PI_SKILLS_DIR": bundle.Extra["skillsDir"]}
}

func (a *Adapter) GetDefaultRunOptions(project harness.ProjectManifest, targetName string) harness.RunOptions {
	return harness.RunOptions{Model: "pi-default"}
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, string(harness.IDPiCLI))
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
