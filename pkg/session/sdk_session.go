package session

import "context"

// SDKInvoker is the host program's own SDK call: given the bundle
// manifest path, the prompt, and an emit callback for streaming
// unified events, it drives exactly one turn and returns the final
// assistant text. SDKSession never implements this itself — per the
// Non-goals, no harness's model/tool loop is reimplemented here; the
// host program supplies its own real SDK client as this function.
type SDKInvoker func(ctx context.Context, manifestPath, prompt string, emit func(Event)) (string, error)

// SDKSession adapts an SDKInvoker to the HarnessSession interface, for
// the claude-agent-sdk and pi-sdk frontends where there is no CLI
// subprocess to drive (see pkg/harness/sdkvariant).
type SDKSession struct {
	manifestPath string
	invoke       SDKInvoker
	cb           func(Event)
	permHdl      PermissionHandler
}

// NewSDKSession returns a session bound to a bundle manifest and an
// invoker function.
func NewSDKSession(manifestPath string, invoke SDKInvoker) *SDKSession {
	return &SDKSession{manifestPath: manifestPath, invoke: invoke, permHdl: AutoAllowPermissionHandler}
}

func (s *SDKSession) Start(ctx context.Context) error { return nil }

func (s *SDKSession) SendPrompt(ctx context.Context, text string, opts SendOptions) error {
	if s.invoke == nil {
		return nil
	}
	_, err := s.invoke(ctx, s.manifestPath, text, func(e Event) {
		if s.cb != nil {
			s.cb(e)
		}
	})
	return err
}

func (s *SDKSession) OnEvent(cb func(Event)) { s.cb = cb }

func (s *SDKSession) SetPermissionHandler(h PermissionHandler) {
	if h != nil {
		s.permHdl = h
	}
}

func (s *SDKSession) Stop(reason string) error { return nil }

// NewSDKSessionFactory returns a SessionFactory that builds an
// SDKSession reading the bundle's manifestPath from
// SessionParams.BundleRootDir/bundle.json, invoking invoke for each
// turn.
func NewSDKSessionFactory(invoke SDKInvoker) SessionFactory {
	return func(ctx context.Context, params SessionParams) (HarnessSession, error) {
		manifestPath := params.BundleRootDir + "/bundle.json"
		return NewSDKSession(manifestPath, invoke), nil
	}
}
