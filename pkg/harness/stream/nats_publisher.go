// Package stream implements an optional NATS-backed transport for
// pkg/session.Publisher, adapted from the teacher's own
// pkg/harness/stream/nats_publisher.go (station-scoped run subjects,
// JetStream opt-in) generalized from one station ID to this system's
// CPSessionID/RunID addressing.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"agentspaces/pkg/session"
)

// NATSPublisher publishes unified session events to NATS subjects
// scoped per CP session and run, so an external subscriber can
// watch one session's run stream without parsing every published
// event.
type NATSPublisher struct {
	nc    *nats.Conn
	js    nats.JetStreamContext
	useJS bool
}

// NATSPublisherConfig controls JetStream usage.
type NATSPublisherConfig struct {
	UseJetStream bool
}

// NewNATSPublisher wraps an already-connected *nats.Conn.
func NewNATSPublisher(nc *nats.Conn, cfg NATSPublisherConfig) (*NATSPublisher, error) {
	p := &NATSPublisher{nc: nc, useJS: cfg.UseJetStream}
	if cfg.UseJetStream {
		js, err := nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}
		p.js = js
	}
	return p, nil
}

// subject scopes a session's stream as
// "asp.session.<cpSessionID>.run.<runID>".
func subject(cpSessionID, runID string) string {
	return fmt.Sprintf("asp.session.%s.run.%s", cpSessionID, runID)
}

func (p *NATSPublisher) Publish(ctx context.Context, e *session.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subj := subject(e.CPSessionID, e.RunID)

	if p.useJS && p.js != nil {
		_, err = p.js.Publish(subj, data)
	} else {
		err = p.nc.Publish(subj, data)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subj, err)
	}
	return nil
}

// Close flushes any pending publishes. It does not close the
// underlying connection, which the caller owns.
func (p *NATSPublisher) Close() error {
	return p.nc.Flush()
}

// NATSSubscriber subscribes to previously published session streams.
type NATSSubscriber struct {
	nc *nats.Conn
}

// NewNATSSubscriber wraps an already-connected *nats.Conn.
func NewNATSSubscriber(nc *nats.Conn) *NATSSubscriber {
	return &NATSSubscriber{nc: nc}
}

// SubscribeSession watches every run published under one CP session,
// across all harnesses and runs, until ctx is cancelled.
func (s *NATSSubscriber) SubscribeSession(ctx context.Context, cpSessionID string, handler func(*session.Event)) (*nats.Subscription, error) {
	subj := fmt.Sprintf("asp.session.%s.run.*", cpSessionID)
	sub, err := s.nc.Subscribe(subj, func(msg *nats.Msg) {
		var e session.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		handler(&e)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subj, err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return sub, nil
}
