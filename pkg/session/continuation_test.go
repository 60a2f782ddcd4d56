package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/aspdiag"
)

func TestPrepareContinuationSkipsFilesystemForNonSessionDirFrontend(t *testing.T) {
	cont, err := prepareContinuation(t.TempDir(), "claude-cli", FrontendClaudeCode, ProviderAnthropic, "cp-1", nil)
	require.NoError(t, err)
	assert.Nil(t, cont)
}

func TestPrepareContinuationFirstRunCreatesDeterministicDir(t *testing.T) {
	home := t.TempDir()
	cont, err := prepareContinuation(home, "claude-agent-sdk", FrontendClaudeAgentSDK, ProviderAnthropic, "cp-1", nil)
	require.NoError(t, err)
	require.NotNil(t, cont)

	want := deriveContinuationKey("cp-1")
	assert.Equal(t, want, cont.Key)
	assert.Equal(t, ProviderAnthropic, cont.Provider)

	info, statErr := os.Stat(filepath.Join(home, "sessions", "claude-agent-sdk", want))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestPrepareContinuationIsDeterministic(t *testing.T) {
	sum := sha256.Sum256([]byte("cp-1"))
	assert.Equal(t, hex.EncodeToString(sum[:]), deriveContinuationKey("cp-1"))
}

func TestPrepareContinuationResumeMissingDirFails(t *testing.T) {
	home := t.TempDir()
	in := &Continuation{Key: "doesnotexist"}
	got, err := prepareContinuation(home, "claude-agent-sdk", FrontendClaudeAgentSDK, ProviderAnthropic, "cp-1", in)

	require.Error(t, err)
	assert.Equal(t, aspdiag.CodeContinuationNotFound, err.(*aspdiag.Error).Code)
	// the supplied key is echoed back even on failure, never invented.
	require.NotNil(t, got)
	assert.Equal(t, "doesnotexist", got.Key)
}

func TestPrepareContinuationResumeExistingDirSucceeds(t *testing.T) {
	home := t.TempDir()
	first, err := prepareContinuation(home, "claude-agent-sdk", FrontendClaudeAgentSDK, ProviderAnthropic, "cp-1", nil)
	require.NoError(t, err)

	second, err := prepareContinuation(home, "claude-agent-sdk", FrontendClaudeAgentSDK, ProviderAnthropic, "cp-1", first)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
}
