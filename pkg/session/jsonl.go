package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// externalEvent is the on-disk JSONL schema of spec §6: one JSON
// object per line, stable keys "event" and "timestamp", variants
// job_started / session_started / message / tool_call / tool_result /
// heartbeat / job_completed. It is a projection of the richer
// internal Event stream, not a 1:1 mirror: callers that want the full
// unified taxonomy should use a ChannelPublisher or CallbackPublisher
// instead of parsing this log.
type externalEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// JSONLPublisher writes one externalEvent per line to an underlying
// io.Writer, translating the internal Event stream per spec §6.
// Concurrent-safe: writes are serialized under a mutex so lines from
// a single run never interleave.
type JSONLPublisher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLPublisher wraps w (typically an opened log file or stdout)
// as a JSONL event log.
func NewJSONLPublisher(w io.Writer) *JSONLPublisher {
	return &JSONLPublisher{w: w}
}

func (p *JSONLPublisher) Publish(_ context.Context, e *Event) error {
	ext := toExternal(e)
	if ext == nil {
		return nil
	}
	data, err := json.Marshal(ext)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write jsonl event: %w", err)
	}
	return nil
}

func (p *JSONLPublisher) Close() error { return nil }

// toExternal projects an internal Event onto the external §6 schema.
// Internal kinds with a close external variant are mapped onto it
// (tool_execution_start to "tool_call", tool_execution_end to
// "tool_result", a state=running marker to "session_started"); events
// with no external counterpart (message_start/update/end, the agent
// and turn markers, sdk_session_id, state=complete) are dropped.
func toExternal(e *Event) *externalEvent {
	switch e.Kind {
	case KindState:
		switch e.State {
		case StateRunning:
			return &externalEvent{Event: "session_started", Timestamp: e.Timestamp, RunID: e.RunID}
		case StateError:
			return &externalEvent{Event: "job_completed", Timestamp: e.Timestamp, RunID: e.RunID, Data: map[string]any{"success": false}}
		}
		return nil
	case KindMessage:
		return &externalEvent{Event: "message", Timestamp: e.Timestamp, RunID: e.RunID, Data: e.Data}
	case KindToolExecutionStart:
		return &externalEvent{Event: "tool_call", Timestamp: e.Timestamp, RunID: e.RunID, Data: e.Data}
	case KindToolExecutionEnd:
		return &externalEvent{Event: "tool_result", Timestamp: e.Timestamp, RunID: e.RunID, Data: e.Data}
	case kindJobStarted:
		return &externalEvent{Event: "job_started", Timestamp: e.Timestamp, RunID: e.RunID}
	case kindHeartbeat:
		return &externalEvent{Event: "heartbeat", Timestamp: e.Timestamp, RunID: e.RunID}
	case KindComplete:
		return &externalEvent{Event: "job_completed", Timestamp: e.Timestamp, RunID: e.RunID, Data: e.Result}
	default:
		return nil
	}
}

// kindJobStarted and kindHeartbeat exist only at the external-log
// layer: §6's JSONL schema names job_started/heartbeat variants that
// have no corresponding entry in the unified §3 Event taxonomy, since
// they describe queue/liveness state rather than session activity.
const (
	kindJobStarted Kind = "job_started"
	kindHeartbeat  Kind = "heartbeat"
)

// EmitJobStarted writes a job_started externalEvent, which has no
// internal Event counterpart: the job-queued marker preceding session_started,
// for callers driving a queue ahead of the session driver itself.
func EmitJobStarted(ctx context.Context, p Publisher, runID string) error {
	jp, ok := p.(*JSONLPublisher)
	if !ok {
		return nil
	}
	return jp.Publish(ctx, &Event{Kind: kindJobStarted, RunID: runID, Timestamp: time.Now().UTC()})
}

// EmitHeartbeat writes a heartbeat externalEvent for long-running
// turns, so a JSONL tail consumer can distinguish "still working"
// from a stalled process.
func EmitHeartbeat(ctx context.Context, p Publisher, runID string) error {
	jp, ok := p.(*JSONLPublisher)
	if !ok {
		return nil
	}
	return jp.Publish(ctx, &Event{Kind: kindHeartbeat, RunID: runID, Timestamp: time.Now().UTC()})
}
