package session

import "agentspaces/pkg/harness"

// Provider is the closed set of model providers a frontend is typed
// against for validation purposes (frontend ↔ provider match, spec
// §4.14 step 1).
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Frontend is a user-facing variant of a Harness: a CLI invocation or
// an SDK entry point, per the GLOSSARY.
type Frontend string

const (
	FrontendClaudeCode    Frontend = "claude-code"
	FrontendClaudeAgentSDK Frontend = "claude-agent-sdk"
	FrontendPiCLI         Frontend = "pi-cli"
	FrontendPiSDK         Frontend = "pi-sdk"
	FrontendCodexCLI      Frontend = "codex-cli"
)

// requiresSessionDir lists frontends whose sessions are backed by a
// filesystem session directory and thus need the deterministic
// continuation key of spec §4.14 step 2 (SDK-driven frontends persist
// their own conversation state keyed by that directory).
var requiresSessionDir = map[Frontend]bool{
	FrontendClaudeAgentSDK: true,
	FrontendPiSDK:          true,
}

// RequiresSessionDir reports whether f needs a filesystem-backed
// continuation key.
func RequiresSessionDir(f Frontend) bool {
	return requiresSessionDir[f]
}

// capability pairs a frontend with its provider and the harness that
// materializes/composes its bundles, plus its allowed model ids.
type capability struct {
	Provider     Provider
	HarnessID    harness.ID
	AllowedModels map[string]bool
}

var capabilityTable = map[Frontend]capability{
	FrontendClaudeCode: {
		Provider:  ProviderAnthropic,
		HarnessID: harness.IDClaudeCLI,
		AllowedModels: map[string]bool{
			"claude": true, "sonnet": true, "opus": true, "haiku": true,
		},
	},
	FrontendClaudeAgentSDK: {
		Provider:  ProviderAnthropic,
		HarnessID: harness.IDClaudeSDK,
		AllowedModels: map[string]bool{
			"claude": true, "sonnet": true, "opus": true, "haiku": true,
		},
	},
	FrontendPiCLI: {
		Provider:  ProviderOpenAI,
		HarnessID: harness.IDPiCLI,
		AllowedModels: map[string]bool{
			"pi-default": true, "gpt-4o": true, "gpt-4o-mini": true,
		},
	},
	FrontendPiSDK: {
		Provider:  ProviderOpenAI,
		HarnessID: harness.IDPiSDK,
		AllowedModels: map[string]bool{
			"pi-default": true, "gpt-4o": true, "gpt-4o-mini": true,
		},
	},
	FrontendCodexCLI: {
		Provider:  ProviderOpenAI,
		HarnessID: harness.IDCodexCLI,
		AllowedModels: map[string]bool{
			"gpt-5-codex": true, "gpt-4o": true, "o4-mini": true,
		},
	},
}

// Capability looks up a frontend's provider, harness, and allowed
// model set. ok is false for an unregistered frontend, which the
// caller maps onto unsupported_frontend.
func Capability(f Frontend) (provider Provider, harnessID harness.ID, allowedModels map[string]bool, ok bool) {
	c, ok := capabilityTable[f]
	if !ok {
		return "", "", nil, false
	}
	return c.Provider, c.HarnessID, c.AllowedModels, true
}

// ModelAllowed reports whether model is in the frontend's allowed set.
// An empty model is always allowed (the harness adapter's own default
// applies, per GetDefaultRunOptions).
func ModelAllowed(f Frontend, model string) bool {
	if model == "" {
		return true
	}
	_, _, allowed, ok := Capability(f)
	if !ok {
		return false
	}
	return allowed[model]
}
