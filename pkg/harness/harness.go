// Package harness defines the common contract every harness adapter
// (Claude, Pi CLI, Codex, SDK variants) implements: detect the
// runtime, validate a space before materialization, materialize a
// space's artifact, compose a target's ordered artifacts into the
// harness-native layout, and drive a non-interactive run.
//
// Concrete adapters live in sibling packages (harness/claude,
// harness/picli, harness/codex, harness/sdkvariant); harness/registry
// holds the process-wide registry over them.
package harness

import (
	"context"

	"agentspaces/pkg/closure"
)

// ID is the closed set of supported harness runtimes.
type ID string

const (
	IDClaudeCLI  ID = "claude-cli"
	IDPiCLI      ID = "pi-cli"
	IDCodexCLI   ID = "codex-cli"
	IDClaudeSDK  ID = "claude-agent-sdk"
	IDPiSDK      ID = "pi-sdk"
)

// DetectResult is the outcome of probing for a harness runtime.
type DetectResult struct {
	Available    bool
	Version      string
	Path         string
	Capabilities []string
	Error        string
}

// ValidateResult is the outcome of structural validation of a space
// ahead of materialization.
type ValidateResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// MaterializeInput names the one resolved space being materialized
// and where its snapshot content lives on disk.
type MaterializeInput struct {
	Space        *closure.ResolvedSpace
	SnapshotPath string // empty for dev/project spaces; Space.Path is used instead
}

// MaterializeOptions controls materialization behavior.
type MaterializeOptions struct {
	Force        bool
	UseHardlinks bool
}

// MaterializeResult is the outcome of materializing one space's
// harness-native artifact into the plugin cache.
type MaterializeResult struct {
	ArtifactPath string
	Files        []string
	Warnings     []string
}

// ComposeInput is the ordered set of materialized artifacts (in
// load order) being merged into one target bundle.
type ComposeInput struct {
	TargetName string
	Artifacts  []MaterializedArtifact
}

// MaterializedArtifact pairs a resolved space with its already
// materialized artifact directory.
type MaterializedArtifact struct {
	Space        *closure.ResolvedSpace
	ArtifactPath string
}

// ComposeOptions controls composition behavior.
type ComposeOptions struct {
	Clean          bool
	InheritProject bool
	InheritUser    bool
}

// ComposeResult is the outcome of composing a target bundle.
type ComposeResult struct {
	Bundle   *ComposedTargetBundle
	Warnings []string
}

// ComposedTargetBundle is a harness-native descriptor of a previously
// composed output directory.
type ComposedTargetBundle struct {
	HarnessID     ID
	TargetName    string
	RootDir       string
	PluginDirs    []string
	MCPConfigPath string
	SettingsPath  string
	Extra         map[string]string // harness-specific sub-paths
}

// RunOptions carries the caller-supplied and default-merged options
// for a single run invocation.
type RunOptions struct {
	Model          string
	ApprovalPolicy string
	SandboxMode    string
	Profile        string
	Extra          map[string]string
}

// ProjectManifest is the subset of the project's asp-targets.toml a
// harness needs to compute its defaults.
type ProjectManifest struct {
	Yolo  bool
	Extra map[string]string
}

// Adapter is the contract every harness implementation satisfies.
type Adapter interface {
	ID() ID

	// Detect discovers the runtime. The CLI adapters cache the result
	// for the lifetime of the process; the SDK-variant adapters do not
	// cache and re-check their environment variable on every call.
	Detect(ctx context.Context) DetectResult

	// ValidateSpace runs structural checks against a space ahead of
	// materialization.
	ValidateSpace(ctx context.Context, input MaterializeInput) ValidateResult

	// MaterializeSpace deterministically produces the per-space
	// artifact under cacheDir. Cleans cacheDir on failure.
	MaterializeSpace(ctx context.Context, input MaterializeInput, cacheDir string, opts MaterializeOptions) (MaterializeResult, error)

	// ComposeTarget merges ordered artifacts into the harness-native
	// layout under outputDir.
	ComposeTarget(ctx context.Context, input ComposeInput, outputDir string, opts ComposeOptions) (ComposeResult, error)

	// LoadTargetBundle rehydrates a bundle descriptor from a
	// previously composed directory without re-materializing.
	LoadTargetBundle(outputDir, targetName string) (*ComposedTargetBundle, error)

	// BuildRunArgs returns command-line arguments, excluding the
	// command path itself.
	BuildRunArgs(bundle *ComposedTargetBundle, opts RunOptions) []string

	// GetRunEnv returns a process environment overlay.
	GetRunEnv(bundle *ComposedTargetBundle, opts RunOptions) map[string]string

	// GetDefaultRunOptions returns harness-specific defaults, merged
	// under explicit CLI overrides by the caller.
	GetDefaultRunOptions(project ProjectManifest, targetName string) RunOptions

	// GetTargetOutputPath returns the deterministic on-disk location
	// for a target's composed bundle under aspModulesDir.
	GetTargetOutputPath(aspModulesDir, targetName string) string
}
