package main

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/harness"
	"agentspaces/pkg/session"
)

func TestParsePinsParsesKeyEqualsValue(t *testing.T) {
	pins, err := parsePins([]string{"foo=abc123", "bar=def456"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", pins["foo"])
	assert.Equal(t, "def456", pins["bar"])
}

func TestParsePinsEmptyIsNil(t *testing.T) {
	pins, err := parsePins(nil)
	require.NoError(t, err)
	assert.Nil(t, pins)
}

func TestParsePinsRejectsMissingEquals(t *testing.T) {
	_, err := parsePins([]string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --pin")
}

func TestParsePinsRejectsEmptyID(t *testing.T) {
	_, err := parsePins([]string{"=commit"})
	require.Error(t, err)
}

func TestHarnessBinaryNameKnownHarnesses(t *testing.T) {
	assert.Equal(t, "claude", harnessBinaryName(harness.IDClaudeCLI))
	assert.Equal(t, "pi", harnessBinaryName(harness.IDPiCLI))
	assert.Equal(t, "codex", harnessBinaryName(harness.IDCodexCLI))
}

func TestHarnessBinaryNameFallsBackToID(t *testing.T) {
	assert.Equal(t, "claude-agent-sdk", harnessBinaryName(harness.IDClaudeSDK))
}

func TestGenericLineMapperSkipsBlankLines(t *testing.T) {
	assert.Nil(t, genericLineMapper([]byte("   \n")))
	assert.Nil(t, genericLineMapper([]byte{}))
}

func TestGenericLineMapperMapsLineToMessageEnd(t *testing.T) {
	events := genericLineMapper([]byte("  hello world  "))
	require.Len(t, events, 1)
	assert.Equal(t, session.KindMessageEnd, events[0].Kind)
	data, ok := events[0].Data.(session.MessageUpdateData)
	require.True(t, ok)
	assert.Equal(t, "hello world", data.TextDelta)
}

func TestMapToEnvSliceRoundTrips(t *testing.T) {
	out := mapToEnvSlice(map[string]string{"A": "1", "B": "2"})
	sort.Strings(out)
	assert.Equal(t, []string{"A=1", "B=2"}, out)
}

func TestBuildHarnessRegistryRegistersAllCompiledInAdapters(t *testing.T) {
	reg := buildHarnessRegistry()
	ids := reg.IDs()
	assert.Contains(t, ids, harness.IDClaudeCLI)
	assert.Contains(t, ids, harness.IDPiCLI)
	assert.Contains(t, ids, harness.IDCodexCLI)
	assert.Contains(t, ids, harness.IDClaudeSDK)
	assert.Contains(t, ids, harness.IDPiSDK)
}

func TestCLISessionFactoriesOnlyCoversCLIHarnesses(t *testing.T) {
	reg := buildHarnessRegistry()
	factories := cliSessionFactories(reg)
	_, hasClaudeCLI := factories[harness.IDClaudeCLI]
	_, hasClaudeSDK := factories[harness.IDClaudeSDK]
	assert.True(t, hasClaudeCLI)
	assert.False(t, hasClaudeSDK)
}
