package session

import "context"

// PermissionRequest is one tool-invocation permission check a running
// harness session may raise mid-turn.
type PermissionRequest struct {
	ToolName string
	Input    any
}

// PermissionDecision is the outcome of a PermissionHandler call.
type PermissionDecision struct {
	Allow  bool
	Reason string
}

// PermissionHandler decides whether a tool invocation may proceed.
type PermissionHandler func(ctx context.Context, req PermissionRequest) PermissionDecision

// AutoAllowPermissionHandler is the default handler installed by the
// driver per spec §4.14 step 5: auto-allows all tool invocations.
func AutoAllowPermissionHandler(context.Context, PermissionRequest) PermissionDecision {
	return PermissionDecision{Allow: true}
}

// SendOptions accompanies a prompt sent to a running harness session.
type SendOptions struct {
	Attachments []string
	RunID       string
}

// HarnessSession is the common surface a harness-specific session
// implementation exposes to the driver, per spec §4.14 step 5. This
// package provides two implementations, SubprocessSession for the CLI
// harnesses and SDKSession for the SDK-driven ones; the driver never
// depends on a specific one beyond this interface.
type HarnessSession interface {
	// Start brings the harness-native session online (spawns the
	// subprocess or opens the SDK connection) without sending a turn.
	Start(ctx context.Context) error

	// SendPrompt submits one turn's prompt text to the running
	// session.
	SendPrompt(ctx context.Context, text string, opts SendOptions) error

	// OnEvent registers a callback invoked for every harness-native
	// event the session implementation observes, already mapped onto
	// the unified Kind taxonomy by the implementation.
	OnEvent(cb func(Event))

	// Stop aborts an in-flight session. Events already emitted remain
	// valid; the driver synthesizes a final complete event when
	// cancellation preempts the harness's own end-of-turn.
	Stop(reason string) error

	// SetPermissionHandler installs the handler used for mid-turn
	// tool-invocation permission checks.
	SetPermissionHandler(h PermissionHandler)
}

// SessionFactory constructs a HarnessSession bound to a composed
// bundle, for a given frontend/model. Callers supply one factory per
// harness.ID in the sessions map passed to NewDriver.
type SessionFactory func(ctx context.Context, params SessionParams) (HarnessSession, error)

// SessionParams is everything a SessionFactory needs to start a
// harness-native session.
type SessionParams struct {
	BundleRootDir string
	RunArgs       []string
	Env           map[string]string
	WorkingDir    string
}
