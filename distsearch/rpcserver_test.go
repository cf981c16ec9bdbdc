package distsearch

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/ranking"
	"github.com/BaSui01/wayfarer/sonic"
)

func TestServeShardAndRemoteShardRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := []ranking.Ranked{{DocID: 3, ShardID: 9, Score: ranking.Score{Total: 1.5}}}
	search := func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error) {
		require.Equal(t, "rust", query)
		return want, nil
	}

	go func() { _ = ServeShard(ctx, ln, search, zap.NewNop()) }()

	pool := sonic.NewPool(2)
	defer pool.Close()

	shard := RemoteShard(9, false, ln.Addr().String(), pool)
	got, err := shard.Search(context.Background(), "rust", 0, 5)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestServeShardPropagatesSearchError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	search := func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error) {
		return nil, errors.New("index not ready")
	}
	go func() { _ = ServeShard(ctx, ln, search, zap.NewNop()) }()

	pool := sonic.NewPool(2)
	defer pool.Close()

	shard := RemoteShard(1, false, ln.Addr().String(), pool)
	_, err = shard.Search(context.Background(), "q", 0, 5)
	require.ErrorContains(t, err, "index not ready")
}

func TestServeShardStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeShard(ctx, ln, func(context.Context, string, int, int) ([]ranking.Ranked, error) {
			return nil, nil
		}, zap.NewNop())
	}()

	cancel()
	require.NoError(t, <-done)
}
