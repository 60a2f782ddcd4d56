package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agentspaces/pkg/harness"
	harnessregistry "agentspaces/pkg/harness/registry"
	"agentspaces/pkg/session"
)

var (
	runSpaces       []string
	runTarget       string
	runFrontend     string
	runModel        string
	runPrompt       string
	runCWD          string
	runCPSessionID  string
	runID           string
	runContinuation string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one non-interactive turn against a composed target",
	Long:  `run builds the requested spaces' bundle for the frontend's harness (the same path as build, reusing cached per-space artifacts), starts a harness session, and streams one JSONL event per line to stdout per spec §6 until the turn completes.`,
	Args:  cobra.NoArgs,
	RunE:  runRunTurn,
}

func init() {
	runCmd.Flags().StringArrayVar(&runSpaces, "spaces", nil, "space refs to compose ad hoc, instead of --target")
	runCmd.Flags().StringVar(&runTarget, "target", "", "target name for the composed bundle directory (asp-targets.toml is not read; the spaces come from --spaces)")
	runCmd.Flags().StringVar(&runFrontend, "frontend", string(session.FrontendClaudeCode), "frontend to run under (claude-code, claude-agent-sdk, pi-cli, pi-sdk, codex-cli)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model id, validated against the frontend's allowed set")
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "the user prompt for this turn (required)")
	runCmd.Flags().StringVar(&runCWD, "cwd", "", "working directory the harness process runs in (default: --project)")
	runCmd.Flags().StringVar(&runCPSessionID, "cp-session", "", "control-plane session id correlating this run's events")
	runCmd.Flags().StringVar(&runID, "run-id", "", "id for this specific run/turn")
	runCmd.Flags().StringVar(&runContinuation, "continuation", "", "resume an existing continuation key instead of starting fresh")
}

func runRunTurn(cmd *cobra.Command, args []string) error {
	if runPrompt == "" {
		return fmt.Errorf("--prompt is required")
	}

	home := resolvedASPHome()
	project, err := resolvedProjectPath()
	if err != nil {
		return err
	}
	cwd := runCWD
	if cwd == "" {
		cwd = project
	}

	cpSessionID := runCPSessionID
	if cpSessionID == "" {
		cpSessionID = uuid.NewString()
	}
	thisRunID := runID
	if thisRunID == "" {
		thisRunID = uuid.NewString()
	}

	o := buildOrchestrator(home, project)
	reg := buildHarnessRegistry()

	spec := session.Spec{
		CPSessionID: cpSessionID,
		RunID:       thisRunID,
		ASPHome:     home,
		ProjectPath: project,
		Spaces:      runSpaces,
		Target:      runTarget,
		Frontend:    session.Frontend(runFrontend),
		Model:       runModel,
		CWD:         cwd,
		Prompt:      runPrompt,
	}
	if runContinuation != "" {
		spec.Continuation = &session.Continuation{Key: runContinuation}
	}

	driver := session.NewDriver(reg, o, cliSessionFactories(reg))
	pub := session.NewJSONLPublisher(os.Stdout)

	result, err := driver.RunTurnNonInteractive(cmd.Context(), spec, pub)
	if err != nil {
		return err
	}
	if !result.Success {
		if result.Error != nil {
			return fmt.Errorf("run failed: %s: %s", result.Error.Code, result.Error.Message)
		}
		return fmt.Errorf("run failed")
	}
	return nil
}

// cliSessionFactories wires one SessionFactory per CLI-driven harness
// registered in reg, each spawning the harness's own binary as a
// subprocess via pkg/session.SubprocessSession. SDK-driven harnesses
// (claude-agent-sdk, pi-sdk) have no factory here: they're invoked
// in-process by an embedding Go program through session.NewSDKSession,
// not by this CLI façade.
func cliSessionFactories(reg *harnessregistry.Registry) map[harness.ID]session.SessionFactory {
	factories := make(map[harness.ID]session.SessionFactory)
	for _, id := range []harness.ID{harness.IDClaudeCLI, harness.IDPiCLI, harness.IDCodexCLI} {
		if _, ok := reg.Get(id); !ok {
			continue
		}
		bin := harnessBinaryName(id)
		factories[id] = func(_ context.Context, params session.SessionParams) (session.HarnessSession, error) {
			path, err := exec.LookPath(bin)
			if err != nil {
				return nil, fmt.Errorf("%s not found on PATH: %w", bin, err)
			}
			env := append(os.Environ(), mapToEnvSlice(params.Env)...)
			return session.NewSubprocessSession(path, params.RunArgs, env, params.WorkingDir, genericLineMapper), nil
		}
	}
	return factories
}

// harnessBinaryName maps a harness id to the CLI binary the teacher's
// own adapters assume is on PATH, matching pkg/harness/claude,
// pkg/harness/picli, and pkg/harness/codex's BuildRunArgs conventions.
func harnessBinaryName(id harness.ID) string {
	switch id {
	case harness.IDClaudeCLI:
		return "claude"
	case harness.IDPiCLI:
		return "pi"
	case harness.IDCodexCLI:
		return "codex"
	default:
		return string(id)
	}
}

// genericLineMapper treats every non-empty stdout line from a headless
// harness CLI invocation as a complete assistant message: the thin CLI
// façade doesn't reimplement any harness's own streaming wire format,
// per spec §1's external-collaborator boundary.
func genericLineMapper(line []byte) []session.Event {
	text := string(bytes.TrimSpace(line))
	if text == "" {
		return nil
	}
	return []session.Event{{
		Kind: session.KindMessageEnd,
		Data: session.MessageUpdateData{TextDelta: text},
	}}
}

func mapToEnvSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
