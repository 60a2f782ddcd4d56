// Package sdkvariant implements the harness.Adapter contract for the
// two SDK-driven frontends (claude-agent-sdk, pi-sdk): these don't
// shell out to a CLI binary, they're linked into a host program, so
// Detect only confirms the expected runtime environment variable is
// present, and the composed "bundle" is a single JSON manifest
// (extensions listed per space in load order; context files, skills
// and hooks sorted by path) that a host program loads and feeds to
// its own SDK client. Per the
// Non-goals this package never drives a model/tool loop itself;
// pkg/session's HarnessSession implementation for these IDs is a thin
// wrapper around a caller-supplied invoker function (see
// pkg/session/sdk_session.go), grounded the same way
// pkg/harness/claude and pkg/harness/codex ground their own
// MaterializeSpace/ComposeTarget pair, generalized from a directory
// layout to a manifest document.
package sdkvariant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/harness"
)

// envVar maps each SDK-variant harness ID to the environment variable
// whose presence Detect treats as "the host program is SDK-capable".
var envVar = map[harness.ID]string{
	harness.IDClaudeSDK: "ASP_CLAUDE_AGENT_SDK",
	harness.IDPiSDK:     "ASP_PI_SDK",
}

// Adapter implements harness.Adapter for one SDK-variant harness.
type Adapter struct {
	id harness.ID
}

// NewClaudeSDK returns the claude-agent-sdk adapter.
func NewClaudeSDK() *Adapter { return &Adapter{id: harness.IDClaudeSDK} }

// NewPiSDK returns the pi-sdk adapter.
func NewPiSDK() *Adapter { return &Adapter{id: harness.IDPiSDK} }

func (a *Adapter) ID() harness.ID { return a.id }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	v := envVar[a.id]
	if os.Getenv(v) == "" {
		return harness.DetectResult{Available: false, Error: fmt.Sprintf("%s not set; host program must export it to confirm SDK linkage", v)}
	}
	return harness.DetectResult{Available: true}
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

// bundleManifest is the single JSON document an SDK-driven host
// program loads in place of a harness-native directory layout.
type bundleManifest struct {
	TargetName    string          `json:"targetName"`
	Extensions    []spaceEntry    `json:"extensions"`
	ContextFiles  []fileEntry     `json:"contextFiles"`
	Skills        []fileEntry     `json:"skills"`
	Hooks         []fileEntry     `json:"hooks"`
}

type spaceEntry struct {
	Space string `json:"space"`
}

type fileEntry struct {
	Space string `json:"space"`
	Path  string `json:"path"`
}

func (a *Adapter) ComposeTarget(ctx context.Context, input harness.ComposeInput, outputDir string, opts harness.ComposeOptions) (harness.ComposeResult, error) {
	if opts.Clean {
		os.RemoveAll(outputDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "mkdir sdk bundle dir", err)
	}

	manifest := bundleManifest{TargetName: input.TargetName}
	for _, art := range input.Artifacts {
		manifest.Extensions = append(manifest.Extensions, spaceEntry{Space: art.Space.Key})
		manifest.ContextFiles = append(manifest.ContextFiles, collectByExt(art, ".md")...)
		manifest.Skills = append(manifest.Skills, collectDir(art, "skills")...)
		manifest.Hooks = append(manifest.Hooks, collectDir(art, "hooks")...)
	}
	sort.Slice(manifest.ContextFiles, func(i, j int) bool { return manifest.ContextFiles[i].Path < manifest.ContextFiles[j].Path })
	sort.Slice(manifest.Skills, func(i, j int) bool { return manifest.Skills[i].Path < manifest.Skills[j].Path })
	sort.Slice(manifest.Hooks, func(i, j int) bool { return manifest.Hooks[i].Path < manifest.Hooks[j].Path })

	path := filepath.Join(outputDir, "bundle.json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "marshal sdk bundle manifest", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return harness.ComposeResult{}, aspdiag.Wrap(aspdiag.CodeFilesystemError, "write sdk bundle manifest", err)
	}

	bundle := &harness.ComposedTargetBundle{
		HarnessID:  a.id,
		TargetName: input.TargetName,
		RootDir:    outputDir,
		Extra:      map[string]string{"manifestPath": path},
	}
	return harness.ComposeResult{Bundle: bundle}, nil
}

func collectByExt(art harness.MaterializedArtifact, ext string) []fileEntry {
	var out []fileEntry
	entries, err := os.ReadDir(art.ArtifactPath)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			out = append(out, fileEntry{Space: art.Space.Key, Path: filepath.Join(art.ArtifactPath, e.Name())})
		}
	}
	return out
}

func collectDir(art harness.MaterializedArtifact, dir string) []fileEntry {
	var out []fileEntry
	full := filepath.Join(art.ArtifactPath, dir)
	entries, err := os.ReadDir(full)
	if err != nil {
		return out
	}
	for _, e := range entries {
		out = append(out, fileEntry{Space: art.Space.Key, Path: filepath.Join(full, e.Name())})
	}
	return out
}

func (a *Adapter) LoadTargetBundle(outputDir, targetName string) (*harness.ComposedTargetBundle, error) {
	path := filepath.Join(outputDir, "bundle.json")
	if _, err := os.Stat(path); err != nil {
		return nil, aspdiag.Wrap(aspdiag.CodeNotFound, "load sdk bundle manifest", err)
	}
	return &harness.ComposedTargetBundle{
		HarnessID:  a.id,
		TargetName: targetName,
		RootDir:    outputDir,
		Extra:      map[string]string{"manifestPath": path},
	}, nil
}

// BuildRunArgs is empty: SDK-variant frontends never spawn a process.
func (a *Adapter) BuildRunArgs(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) []string {
	return nil
}

// GetRunEnv surfaces the bundle manifest path for the host program's
// own SDK bootstrap to read.
func (a *Adapter) GetRunEnv(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) map[string]string {
	return map[string]string{"ASP_SDK_BUNDLE_MANIFEST": bundle.Extra["manifestPath"]}
}

func (a *Adapter) GetDefaultRunOptions(project harness.ProjectManifest, targetName string) harness.RunOptions {
	opts := harness.RunOptions{}
	if a.id == harness.IDClaudeSDK {
		opts.Model = "claude"
	} else {
		opts.Model = "pi-default"
	}
	return opts
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, string(a.id))
}
