package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agentspaces/pkg/harness"
)

func TestCapabilityKnownFrontend(t *testing.T) {
	provider, harnessID, allowed, ok := Capability(FrontendClaudeCode)
	assert.True(t, ok)
	assert.Equal(t, ProviderAnthropic, provider)
	assert.Equal(t, harness.IDClaudeCLI, harnessID)
	assert.True(t, allowed["sonnet"])
}

func TestCapabilityUnknownFrontend(t *testing.T) {
	_, _, _, ok := Capability(Frontend("not-a-real-frontend"))
	assert.False(t, ok)
}

func TestModelAllowedEmptyModelAlwaysOK(t *testing.T) {
	assert.True(t, ModelAllowed(FrontendClaudeCode, ""))
}

func TestModelAllowedRejectsUnknownModel(t *testing.T) {
	assert.False(t, ModelAllowed(FrontendClaudeCode, "gpt-4o"))
	assert.True(t, ModelAllowed(FrontendPiCLI, "gpt-4o"))
}

func TestModelAllowedUnknownFrontendRejected(t *testing.T) {
	assert.False(t, ModelAllowed(Frontend("nope"), "sonnet"))
}

func TestRequiresSessionDir(t *testing.T) {
	assert.True(t, RequiresSessionDir(FrontendClaudeAgentSDK))
	assert.True(t, RequiresSessionDir(FrontendPiSDK))
	assert.False(t, RequiresSessionDir(FrontendClaudeCode))
	assert.False(t, RequiresSessionDir(FrontendCodexCLI))
}
