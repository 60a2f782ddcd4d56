package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/aspdiag"
	"agentspaces/pkg/harness"
	"agentspaces/pkg/harness/registry"
)

type fakeMaterializer struct {
	bundle *harness.ComposedTargetBundle
	err    error
}

func (f *fakeMaterializer) MaterializeTarget(ctx context.Context, aspHome, projectPath string, spaces []string, target string, harnessID harness.ID) (*harness.ComposedTargetBundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

type fakeAdapter struct{ id harness.ID }

func (f *fakeAdapter) ID() harness.ID { return f.id }
func (f *fakeAdapter) Detect(ctx context.Context) harness.DetectResult {
	return harness.DetectResult{Available: true}
}
func (f *fakeAdapter) ValidateSpace(ctx context.Context, input harness.MaterializeInput) harness.ValidateResult {
	return harness.ValidateResult{Valid: true}
}
func (f *fakeAdapter) MaterializeSpace(ctx context.Context, input harness.MaterializeInput, cacheDir string, opts harness.MaterializeOptions) (harness.MaterializeResult, error) {
	return harness.MaterializeResult{}, nil
}
func (f *fakeAdapter) ComposeTarget(ctx context.Context, input harness.ComposeInput, outputDir string, opts harness.ComposeOptions) (harness.ComposeResult, error) {
	return harness.ComposeResult{}, nil
}
func (f *fakeAdapter) LoadTargetBundle(outputDir, targetName string) (*harness.ComposedTargetBundle, error) {
	return nil, nil
}
func (f *fakeAdapter) BuildRunArgs(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) []string {
	return []string{"--model", opts.Model}
}
func (f *fakeAdapter) GetRunEnv(bundle *harness.ComposedTargetBundle, opts harness.RunOptions) map[string]string {
	return map[string]string{}
}
func (f *fakeAdapter) GetDefaultRunOptions(project harness.ProjectManifest, targetName string) harness.RunOptions {
	return harness.RunOptions{Model: "sonnet"}
}
func (f *fakeAdapter) GetTargetOutputPath(aspModulesDir, targetName string) string { return "" }

type fakeHarnessSession struct {
	cb        func(Event)
	startErr  error
	sendErr   error
	emitEvents []Event
}

func (f *fakeHarnessSession) Start(ctx context.Context) error { return f.startErr }
func (f *fakeHarnessSession) SendPrompt(ctx context.Context, text string, opts SendOptions) error {
	for _, e := range f.emitEvents {
		if f.cb != nil {
			f.cb(e)
		}
	}
	return f.sendErr
}
func (f *fakeHarnessSession) OnEvent(cb func(Event))             { f.cb = cb }
func (f *fakeHarnessSession) Stop(reason string) error           { return nil }
func (f *fakeHarnessSession) SetPermissionHandler(h PermissionHandler) {}

func newTestDriver(t *testing.T, hs *fakeHarnessSession, matErr error) (*Driver, *ChannelPublisher) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(&fakeAdapter{id: harness.IDClaudeCLI}))

	mat := &fakeMaterializer{
		bundle: &harness.ComposedTargetBundle{HarnessID: harness.IDClaudeCLI, RootDir: t.TempDir()},
		err:    matErr,
	}
	sessions := map[harness.ID]SessionFactory{
		harness.IDClaudeCLI: func(ctx context.Context, params SessionParams) (HarnessSession, error) {
			return hs, nil
		},
	}
	pub := NewChannelPublisher(32)
	return NewDriver(reg, mat, sessions), pub
}

func drainEvents(pub *ChannelPublisher) []*Event {
	pub.Close()
	var out []*Event
	for e := range pub.Events() {
		out = append(out, e)
	}
	return out
}

func TestRunTurnNonInteractiveHappyPath(t *testing.T) {
	hs := &fakeHarnessSession{emitEvents: []Event{
		{Kind: KindMessageEnd, Data: MessageUpdateData{TextDelta: "hello"}},
	}}
	d, pub := newTestDriver(t, hs, nil)

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(), Target: "default",
		Frontend: FrontendClaudeCode, CWD: "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.FinalOutput)

	events := drainEvents(pub)
	require.NotEmpty(t, events)
	assert.Equal(t, KindState, events[0].Kind)
	assert.Equal(t, StateRunning, events[0].State)
	assert.Equal(t, KindMessage, events[1].Kind)
	last := events[len(events)-1]
	assert.Equal(t, KindComplete, last.Kind)
	assert.True(t, last.Result.Success)

	// sequence numbers are strictly increasing and gap-free.
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestRunTurnNonInteractiveInvalidSpecShapeTwoEvents(t *testing.T) {
	hs := &fakeHarnessSession{}
	d, pub := newTestDriver(t, hs, nil)

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(),
		// neither Spaces nor Target set: invalid shape.
		Frontend: FrontendClaudeCode, CWD: "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.False(t, result.Success)

	events := drainEvents(pub)
	require.Len(t, events, 2)
	assert.Equal(t, KindState, events[0].Kind)
	assert.Equal(t, StateError, events[0].State)
	assert.Equal(t, KindComplete, events[1].Kind)
}

func TestRunTurnNonInteractiveRejectsUnsupportedModelAfterRunningMessage(t *testing.T) {
	hs := &fakeHarnessSession{}
	d, pub := newTestDriver(t, hs, nil)

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(), Target: "default",
		Frontend: FrontendClaudeCode, Model: "gpt-4o",
		CWD: "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.False(t, result.Success)

	events := drainEvents(pub)
	// state=running, message, state=error, complete.
	require.Len(t, events, 4)
	assert.Equal(t, KindState, events[0].Kind)
	assert.Equal(t, StateRunning, events[0].State)
	assert.Equal(t, KindMessage, events[1].Kind)
	assert.Equal(t, KindState, events[2].Kind)
	assert.Equal(t, StateError, events[2].State)
	assert.Equal(t, KindComplete, events[3].Kind)
}

func TestRunTurnNonInteractiveContinuationNotFound(t *testing.T) {
	hs := &fakeHarnessSession{}
	d, pub := newTestDriver(t, hs, nil)

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(), Target: "default",
		Frontend:     FrontendClaudeAgentSDK,
		Continuation: &Continuation{Key: "missing"},
		CWD:          "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Continuation)
	assert.Equal(t, "missing", result.Continuation.Key)

	events := drainEvents(pub)
	require.Len(t, events, 4)
	assert.Equal(t, KindComplete, events[3].Kind)
}

func TestRunTurnNonInteractiveMaterializeFailure(t *testing.T) {
	hs := &fakeHarnessSession{}
	d, pub := newTestDriver(t, hs, assertErr{})

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(), Target: "default",
		Frontend: FrontendClaudeCode, CWD: "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
}

func TestRunTurnNonInteractiveRejectsProviderMismatchTwoEvents(t *testing.T) {
	hs := &fakeHarnessSession{}
	d, pub := newTestDriver(t, hs, nil)

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(), Target: "default",
		Frontend: FrontendClaudeCode, Provider: ProviderOpenAI,
		CWD: "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, aspdiag.CodeProviderMismatch, result.Error.Code)

	events := drainEvents(pub)
	require.Len(t, events, 2)
	assert.Equal(t, KindState, events[0].Kind)
	assert.Equal(t, StateError, events[0].State)
	assert.Equal(t, KindComplete, events[1].Kind)
}

func TestRunTurnNonInteractiveRejectsContinuationProviderMismatch(t *testing.T) {
	hs := &fakeHarnessSession{}
	d, pub := newTestDriver(t, hs, nil)

	result, err := d.RunTurnNonInteractive(context.Background(), Spec{
		CPSessionID: "cp-1", RunID: "run-1",
		ASPHome: t.TempDir(), Target: "default",
		Frontend:     FrontendClaudeCode,
		Continuation: &Continuation{Key: "k1", Provider: ProviderOpenAI},
		CWD:          "/tmp", Prompt: "hi",
	}, pub)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, aspdiag.CodeProviderMismatch, result.Error.Code)

	events := drainEvents(pub)
	require.Len(t, events, 2)
}

type assertErr struct{}

func (assertErr) Error() string { return "materialize failed" }
