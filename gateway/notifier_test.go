package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInProcessNotifierDeliversToSubscriber(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := NewInProcessNotifier()

	ch, unsubscribe, err := n.Subscribe(ctx, "gateway_status")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, n.Publish(ctx, "gateway_status", []byte(`{"status":"connected"}`)))

	select {
	case payload := <-ch:
		require.JSONEq(t, `{"status":"connected"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestInProcessNotifierIgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := NewInProcessNotifier()

	ch, unsubscribe, err := n.Subscribe(ctx, "gateway_status")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, n.Publish(ctx, "other_event", []byte(`{}`)))

	select {
	case payload := <-ch:
		t.Fatalf("unexpected delivery: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInProcessNotifierUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := NewInProcessNotifier()

	ch, unsubscribe, err := n.Subscribe(ctx, "gateway_status")
	require.NoError(t, err)
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}
