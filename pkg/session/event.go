// Package session implements the non-interactive turn driver (C14):
// static validation, session lifecycle, the unified event stream, and
// continuation (resume) semantics across heterogeneous harnesses.
//
// The Event/Publisher shape here is adapted from the teacher's
// pkg/harness/stream.StreamContext: an atomic per-run sequence
// counter feeding a pluggable Publisher, generalized from Station's
// token/tool/run-lifecycle event set to the unified taxonomy spec §3
// requires, plus the driver-level state/complete markers of §4.14.
package session

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
)

// Kind is the closed set of event kinds the driver emits. It covers
// both the unified, harness-mapped taxonomy of spec §3
// (agent_start .. sdk_session_id) and the driver's own lifecycle
// markers (state, message, complete) described in spec §4.14 and the
// scenarios of §8.
type Kind string

const (
	KindState               Kind = "state"
	KindMessage             Kind = "message"
	KindAgentStart          Kind = "agent_start"
	KindAgentEnd             Kind = "agent_end"
	KindTurnStart           Kind = "turn_start"
	KindTurnEnd             Kind = "turn_end"
	KindMessageStart        Kind = "message_start"
	KindMessageUpdate       Kind = "message_update"
	KindMessageEnd          Kind = "message_end"
	KindToolExecutionStart  Kind = "tool_execution_start"
	KindToolExecutionEnd    Kind = "tool_execution_end"
	KindSDKSessionID        Kind = "sdk_session_id"
	KindComplete            Kind = "complete"
)

// State is the value carried by a KindState event.
type State string

const (
	StateRunning State = "running"
	StateError   State = "error"
	StateComplete State = "complete"
)

// MessageRole distinguishes the verbatim user prompt from assistant
// output echoed as a single (non-streaming) message event.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageData is the payload of a KindMessage event.
type MessageData struct {
	Role MessageRole `json:"role"`
	Text string      `json:"text"`
}

// MessageUpdateData is the payload of a KindMessageUpdate event: a
// text delta, or a full content-block replacement, never both.
type MessageUpdateData struct {
	TextDelta     string `json:"textDelta,omitempty"`
	ContentBlocks any    `json:"contentBlocks,omitempty"`
}

// ToolExecutionData is the payload of tool_execution_start/end events.
type ToolExecutionData struct {
	ToolName string `json:"toolName"`
	ToolID   string `json:"toolId"`
	Input    any    `json:"input,omitempty"`
	Output   any    `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Event is one entry of the unified session event stream. Every
// emitted event carries an ISO timestamp, a monotonic 1-based
// sequence, the caller's logical session id, the run id, and the
// current continuation reference when known, per spec §4.14 step 6.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Sequence     int64     `json:"sequence"`
	CPSessionID  string    `json:"cpSessionId"`
	RunID        string    `json:"runId"`
	Continuation string    `json:"continuation,omitempty"`
	Kind         Kind      `json:"kind"`
	State        State     `json:"state,omitempty"`
	Data         any       `json:"data,omitempty"`
	Result       *RunResult `json:"result,omitempty"`
}

// JSON marshals the event.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers emitted events somewhere: a channel for an
// in-process caller, a JSONL writer for the on-disk event log (§6),
// or a pluggable transport such as the NATS publisher in
// pkg/harness/stream.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// sequencer hands out strictly increasing, gap-free sequence numbers
// for one run, starting at 1.
type sequencer struct {
	n int64
}

func (s *sequencer) next() int64 {
	return atomic.AddInt64(&s.n, 1)
}

// NoOpPublisher discards every event. Useful when a caller doesn't
// supply an onEvent callback.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, *Event) error { return nil }
func (NoOpPublisher) Close() error                           { return nil }

// ChannelPublisher delivers events over a buffered channel, for
// in-process callers that want to range over the stream.
type ChannelPublisher struct {
	ch chan *Event
}

// NewChannelPublisher returns a ChannelPublisher with the given
// buffer size.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan *Event, bufferSize)}
}

func (c *ChannelPublisher) Publish(ctx context.Context, event *Event) error {
	select {
	case c.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Events returns the channel of published events.
func (c *ChannelPublisher) Events() <-chan *Event { return c.ch }

func (c *ChannelPublisher) Close() error {
	close(c.ch)
	return nil
}

// CallbackPublisher adapts a plain func(Event) callback (the shape
// §4.14 calls "callbacks.onEvent") into a Publisher.
type CallbackPublisher struct {
	fn func(Event)
}

// NewCallbackPublisher wraps fn as a Publisher.
func NewCallbackPublisher(fn func(Event)) *CallbackPublisher {
	return &CallbackPublisher{fn: fn}
}

func (c *CallbackPublisher) Publish(_ context.Context, event *Event) error {
	if c.fn != nil {
		c.fn(*event)
	}
	return nil
}

func (c *CallbackPublisher) Close() error { return nil }

// MultiPublisher fans a single event out to several publishers, in
// order; the first error is returned.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher combines publishers into one.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (m *MultiPublisher) Publish(ctx context.Context, event *Event) error {
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiPublisher) Close() error {
	for _, p := range m.publishers {
		p.Close()
	}
	return nil
}
