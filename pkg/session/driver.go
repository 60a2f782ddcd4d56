// Package session's Driver implements spec §4.14 end to end: static
// validation, continuation preparation, scoped bundle materialization,
// session start, unified event mapping, turn-end detection, and
// result finalization. It is grounded on the teacher's session
// lifecycle idiom (acquire state, start, execute, persist, end) seen
// in the deleted pkg/harness/session/manager.go, adapted from a
// REPL/genkit tool loop into a thin non-interactive turn driver that
// never drives a harness's own model loop itself.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/harness"
	"agentspaces/pkg/harness/registry"
	"agentspaces/pkg/obstrace"
	"agentspaces/pkg/paths"
)

// RunResult is the terminal payload carried by the final `complete`
// event, per spec §3 and §6.
type RunResult struct {
	Success      bool              `json:"success"`
	FinalOutput  string            `json:"finalOutput,omitempty"`
	Error        *RunError         `json:"error,omitempty"`
	Continuation *Continuation     `json:"continuation,omitempty"`
}

// RunError is the coded error carried by a failed RunResult, per the
// closed set in spec §6 (Exit codes) and §7 (Runtime/session errors).
type RunError struct {
	Code    aspdiag.Code `json:"code"`
	Message string       `json:"message"`
}

// Spec is the non-interactive turn request, per spec §4.14's entry
// point signature.
type Spec struct {
	CPSessionID  string
	RunID        string
	ASPHome      string
	ProjectPath  string
	Spaces       []string // mutually exclusive with Target; compose list
	Target       string   // mutually exclusive with Spaces; named target
	Frontend     Frontend
	Provider     Provider // optional; if set, must match Frontend's provider
	Model        string
	CWD          string
	Prompt       string
	Attachments  []string
	Continuation *Continuation
	Env          map[string]string
}

// Materializer builds the harness-native bundle for one target,
// scoped to a single frontend's harness (pkg/orchestrator's Build:
// resolve → closure → populate store → materialize → lint gate →
// compose; no lock file is written). pkg/orchestrator implements this; the driver only
// depends on the interface to avoid a session → orchestrator →
// harness import cycle concern and to keep the driver testable with a
// fake.
type Materializer interface {
	MaterializeTarget(ctx context.Context, aspHome, projectPath string, spaces []string, target string, harnessID harness.ID) (*harness.ComposedTargetBundle, error)
}

// Driver is the run/session driver of spec §4.14.
type Driver struct {
	Registry     *registry.Registry
	Materializer Materializer
	Sessions     map[harness.ID]SessionFactory
	Tracer       *obstrace.Tracer
}

// NewDriver constructs a Driver over a harness registry, a bundle
// materializer, and a set of harness-specific session factories.
func NewDriver(reg *registry.Registry, m Materializer, sessions map[harness.ID]SessionFactory) *Driver {
	return &Driver{Registry: reg, Materializer: m, Sessions: sessions, Tracer: obstrace.New()}
}

// RunTurnNonInteractive drives exactly one turn against spec,
// publishing unified events to pub (never nil; callers that don't
// want a stream pass NoOpPublisher{}) and returning the terminal
// RunResult.
func (d *Driver) RunTurnNonInteractive(ctx context.Context, spec Spec, pub Publisher) (result RunResult, err error) {
	ctx, span := d.Tracer.StartRunTurn(ctx, spec.CPSessionID, spec.RunID, string(spec.Frontend))
	defer func() {
		errCode := ""
		if result.Error != nil {
			errCode = string(result.Error.Code)
		}
		span.End(result.Success, errCode)
	}()

	seq := &sequencer{}
	emit := func(kind Kind, state State, data any, cont *Continuation, result *RunResult) {
		c := ""
		if cont != nil {
			c = cont.Key
		}
		_ = pub.Publish(ctx, &Event{
			Timestamp:    time.Now().UTC(),
			Sequence:     seq.next(),
			CPSessionID:  spec.CPSessionID,
			RunID:        spec.RunID,
			Continuation: c,
			Kind:         kind,
			State:        state,
			Data:         data,
			Result:       result,
		})
	}

	fail := func(code aspdiag.Code, msg string, cont *Continuation) RunResult {
		result := RunResult{Success: false, Error: &RunError{Code: code, Message: msg}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result
	}

	// Step 1: static validation, ahead of any session. A failure here
	// emits exactly two events: state=error, complete. No session is
	// started.
	if err := validateSpecShape(spec); err != nil {
		return fail(aspdiag.CodeRefInvalid, err.Error(), nil), nil
	}
	if !filepath.IsAbs(spec.CWD) {
		return fail(aspdiag.CodeRefInvalid, "cwd must be absolute", nil), nil
	}
	provider, harnessID, _, ok := Capability(spec.Frontend)
	if !ok {
		return fail(aspdiag.CodeUnsupportedFrontend, fmt.Sprintf("unsupported frontend %q", spec.Frontend), nil), nil
	}
	if spec.Provider != "" && spec.Provider != provider {
		return fail(aspdiag.CodeProviderMismatch, fmt.Sprintf("frontend %q belongs to provider %q, not requested provider %q", spec.Frontend, provider, spec.Provider), nil), nil
	}
	if spec.Continuation != nil && spec.Continuation.Provider != "" && spec.Continuation.Provider != provider {
		return fail(aspdiag.CodeProviderMismatch, fmt.Sprintf("continuation was created under provider %q, cannot resume under frontend %q's provider %q", spec.Continuation.Provider, spec.Frontend, provider), spec.Continuation), nil
	}

	// Step 2: prepare the continuation key before starting a session,
	// per spec §4.14 step 2. A missing resume directory is a fatal
	// continuation_not_found, but only surfaces after the
	// state=running/message pair per scenario 6's echo requirement —
	// still before any harness session exists.
	aspHome := spec.ASPHome
	if aspHome == "" {
		aspHome = paths.Home()
	}
	cont, contErr := prepareContinuation(aspHome, string(harnessID), spec.Frontend, provider, spec.CPSessionID, spec.Continuation)

	// Step 3: running state, then the verbatim user message.
	emit(KindState, StateRunning, nil, cont, nil)
	emit(KindMessage, "", MessageData{Role: RoleUser, Text: spec.Prompt}, cont, nil)

	if contErr != nil {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeContinuationNotFound, Message: contErr.Error()}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}

	// Model validation happens after the running/message pair so a
	// rejection surfaces as state=running, message, state=error,
	// complete — matching scenario 5.
	if !ModelAllowed(spec.Frontend, spec.Model) {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeModelNotSupported, Message: fmt.Sprintf("model %q not supported by frontend %q", spec.Model, spec.Frontend)}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}

	// Step 4: materialize the bundle for this frontend's harness,
	// scoped to the one requested target/compose list.
	bundle, err := d.Materializer.MaterializeTarget(ctx, aspHome, spec.ProjectPath, spec.Spaces, spec.Target, harnessID)
	if err != nil {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeResolveFailed, Message: err.Error()}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}

	adapter, ok := d.Registry.Get(harnessID)
	if !ok {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeUnsupportedFrontend, Message: fmt.Sprintf("no adapter registered for harness %q", harnessID)}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}
	runOpts := adapter.GetDefaultRunOptions(harness.ProjectManifest{}, spec.Target)
	if spec.Model != "" {
		runOpts.Model = spec.Model
	}
	args := adapter.BuildRunArgs(bundle, runOpts)
	env := adapter.GetRunEnv(bundle, runOpts)
	for k, v := range spec.Env {
		env[k] = v
	}

	factory, ok := d.Sessions[harnessID]
	if !ok {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeUnsupportedFrontend, Message: fmt.Sprintf("no session factory registered for harness %q", harnessID)}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}

	hs, err := factory(ctx, SessionParams{BundleRootDir: bundle.RootDir, RunArgs: args, Env: env, WorkingDir: spec.CWD})
	if err != nil {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeResolveFailed, Message: err.Error()}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}
	hs.SetPermissionHandler(AutoAllowPermissionHandler)

	// Step 5/6/7: start the session, stream mapped events, detect
	// turn end. in-flight events from the harness session's own
	// callback are re-emitted through this run's sequencer so the
	// caller observes one strictly-ordered stream regardless of how
	// many producers the harness runs concurrently underneath.
	var finalText string
	hs.OnEvent(func(e Event) {
		e.CPSessionID = spec.CPSessionID
		e.RunID = spec.RunID
		if cont != nil {
			e.Continuation = cont.Key
		}
		e.Sequence = seq.next()
		e.Timestamp = time.Now().UTC()
		_ = pub.Publish(ctx, &e)
		if e.Kind == KindMessageEnd {
			if md, ok := e.Data.(MessageUpdateData); ok && md.TextDelta != "" {
				finalText += md.TextDelta
			}
		}
	})

	if err := hs.Start(ctx); err != nil {
		result := RunResult{Success: false, Error: &RunError{Code: aspdiag.CodeResolveFailed, Message: err.Error()}, Continuation: cont}
		emit(KindState, StateError, nil, cont, nil)
		emit(KindComplete, "", nil, cont, &result)
		return result, nil
	}

	sendErr := hs.SendPrompt(ctx, spec.Prompt, SendOptions{Attachments: spec.Attachments, RunID: spec.RunID})

	cancelled := ctx.Err() != nil
	result = RunResult{Success: sendErr == nil && !cancelled, FinalOutput: finalText, Continuation: cont}
	if cancelled {
		result.Error = &RunError{Code: aspdiag.CodeCancelled, Message: "run cancelled"}
	} else if sendErr != nil {
		result.Error = &RunError{Code: aspdiag.CodeResolveFailed, Message: sendErr.Error()}
	}

	// Step 8: finalize.
	emit(KindState, StateComplete, nil, cont, nil)
	emit(KindComplete, "", nil, cont, &result)
	return result, nil
}

// validateSpecShape checks the request shape ahead of any session:
// exactly one of spaces/target, and a non-empty prompt. Cancelling an
// in-flight turn is the caller's responsibility via ctx, or by calling
// Stop on the HarnessSession returned from the session factory it
// supplied; RunTurnNonInteractive itself is synchronous per call.
func validateSpecShape(spec Spec) error {
	hasSpaces := len(spec.Spaces) > 0
	hasTarget := spec.Target != ""
	if hasSpaces == hasTarget {
		return fmt.Errorf("exactly one of spaces or target must be set")
	}
	if spec.Prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	return nil
}
