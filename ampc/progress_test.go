package ampc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProgressHubFansOutToSubscribers(t *testing.T) {
	hub := NewProgressHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(RoundEvent{Round: 1, Mapper: "setup-bloom"})

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	ev, err := sub.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, RoundEvent{Round: 1, Mapper: "setup-bloom"}, ev)
}

func TestProgressHubFansOutToMultipleSubscribers(t *testing.T) {
	hub := NewProgressHub()
	subA, cancelA := hub.Subscribe()
	defer cancelA()
	subB, cancelB := hub.Subscribe()
	defer cancelB()

	hub.Publish(RoundEvent{Round: 1, Finished: true})

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	evA, err := subA.Receive(ctx)
	require.NoError(t, err)
	evB, err := subB.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, evA, evB)
}

func TestProgressHubCancelStopsFurtherDelivery(t *testing.T) {
	hub := NewProgressHub()
	sub, cancel := hub.Subscribe()
	cancel()

	hub.Publish(RoundEvent{Round: 1})

	ctx, done := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer done()

	_, err := sub.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProgressHubReceiveRespectsContextCancellation(t *testing.T) {
	hub := NewProgressHub()
	sub, cancel := hub.Subscribe()
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer done()

	_, err := sub.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
