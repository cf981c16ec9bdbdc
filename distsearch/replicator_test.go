package distsearch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIndexWebpagesSucceedsAboveThreshold(t *testing.T) {
	var acked int32
	r := NewReplicator(func(ctx context.Context, peer string, pages []interface{}) error {
		atomic.AddInt32(&acked, 1)
		return nil
	})
	r.AttemptTimeout = time.Second

	var localCalled bool
	err := r.IndexWebpages(context.Background(), []interface{}{"p1"}, []string{"a", "b", "c"}, 0.5,
		func(p []interface{}) error { localCalled = true; return nil })

	require.NoError(t, err)
	require.True(t, localCalled)
}

func TestIndexWebpagesReturnsInsufficientReplication(t *testing.T) {
	r := NewReplicator(func(ctx context.Context, peer string, pages []interface{}) error {
		return context.DeadlineExceeded // every peer fails to ack
	})
	r.AttemptTimeout = 100 * time.Millisecond
	r.MaxAttempts = 1

	err := r.IndexWebpages(context.Background(), []interface{}{"p1"}, []string{"a", "b"}, 1.0,
		func(p []interface{}) error { return nil })

	require.ErrorIs(t, err, ErrInsufficientReplication)
}

func TestIndexWebpagesRetainsLocalWriteOnFailure(t *testing.T) {
	r := NewReplicator(func(ctx context.Context, peer string, pages []interface{}) error {
		return context.DeadlineExceeded
	})
	r.AttemptTimeout = 50 * time.Millisecond
	r.MaxAttempts = 1

	var localWritten bool
	_ = r.IndexWebpages(context.Background(), []interface{}{"p1"}, []string{"a"}, 1.0,
		func(p []interface{}) error { localWritten = true; return nil })

	require.True(t, localWritten)
}
