package stream

import (
	"context"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentspaces/pkg/session"
)

func setupTestServer(t *testing.T) (*nats.Conn, func()) {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	srv := natstest.RunServer(&opts)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	cleanup := func() {
		nc.Close()
		srv.Shutdown()
	}
	return nc, cleanup
}

func TestNATSPublisherRoundTripsEvent(t *testing.T) {
	nc, cleanup := setupTestServer(t)
	defer cleanup()

	pub, err := NewNATSPublisher(nc, NATSPublisherConfig{})
	require.NoError(t, err)
	defer pub.Close()

	sub := NewNATSSubscriber(nc)
	received := make(chan *session.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = sub.SubscribeSession(ctx, "cp-1", func(e *session.Event) {
		received <- e
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond) // let the subscription register

	event := &session.Event{CPSessionID: "cp-1", RunID: "run-1", Kind: session.KindComplete}
	require.NoError(t, pub.Publish(context.Background(), event))

	select {
	case got := <-received:
		assert.Equal(t, "cp-1", got.CPSessionID)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, session.KindComplete, got.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestNATSPublisherScopesSubjectPerSession(t *testing.T) {
	nc, cleanup := setupTestServer(t)
	defer cleanup()

	pub, err := NewNATSPublisher(nc, NATSPublisherConfig{})
	require.NoError(t, err)
	defer pub.Close()

	sub := NewNATSSubscriber(nc)
	received := make(chan *session.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = sub.SubscribeSession(ctx, "cp-a", func(e *session.Event) { received <- e })
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, pub.Publish(context.Background(), &session.Event{CPSessionID: "cp-a", RunID: "r1"}))
	require.NoError(t, pub.Publish(context.Background(), &session.Event{CPSessionID: "cp-b", RunID: "r1"}))

	select {
	case got := <-received:
		assert.Equal(t, "cp-a", got.CPSessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scoped event")
	}

	select {
	case <-received:
		t.Fatal("received an event from a different session's subject")
	case <-time.After(200 * time.Millisecond):
		// expected: cp-b's event never matches the cp-a subscription
	}
}
