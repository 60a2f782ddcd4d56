package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoLineMapper turns every stdout line into a single assistant
// message event, for exercising SubprocessSession without depending
// on any real harness CLI's wire format.
func echoLineMapper(line []byte) []Event {
	return []Event{{Kind: KindMessage, Data: MessageData{Role: RoleAssistant, Text: string(bytes.TrimSpace(line))}}}
}

func writeTestScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-harness.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestSubprocessSessionMapsStdoutLinesToEvents(t *testing.T) {
	script := writeTestScript(t, "echo \"line one\"\necho \"line two\"\n")
	s := NewSubprocessSession(script, nil, os.Environ(), t.TempDir(), echoLineMapper)

	var got []Event
	s.OnEvent(func(e Event) { got = append(got, e) })

	require.NoError(t, s.Start(context.Background()))
	err := s.SendPrompt(context.Background(), "hello", SendOptions{})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "line one", got[0].Data.(MessageData).Text)
	assert.Equal(t, "line two", got[1].Data.(MessageData).Text)
}

func TestSubprocessSessionStopKillsRunningProcess(t *testing.T) {
	script := writeTestScript(t, "sleep 30\n")
	s := NewSubprocessSession(script, nil, os.Environ(), t.TempDir(), echoLineMapper)

	done := make(chan error, 1)
	go func() {
		done <- s.SendPrompt(context.Background(), "hello", SendOptions{})
	}()

	// Give the process a moment to start before killing it.
	for i := 0; i < 200; i++ {
		s.mu.Lock()
		started := s.cmd != nil
		s.mu.Unlock()
		if started {
			break
		}
	}
	require.NoError(t, s.Stop("cancelled"))
	<-done // the killed process's Wait() returns, one way or another
}

func TestSubprocessSessionSendPromptPropagatesNonZeroExit(t *testing.T) {
	script := writeTestScript(t, "exit 1\n")
	s := NewSubprocessSession(script, nil, os.Environ(), t.TempDir(), echoLineMapper)
	require.NoError(t, s.Start(context.Background()))
	err := s.SendPrompt(context.Background(), "hello", SendOptions{})
	assert.Error(t, err)
}
