package distsearch

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/breaker"
	"github.com/BaSui01/wayfarer/ranking"
	"github.com/BaSui01/wayfarer/sonic"
)

// serveOneSearch accepts a single connection on ln, decodes one
// SearchRequest, and writes back resp, then closes.
func serveOneSearch(t *testing.T, ln net.Listener, resp SearchResponse) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var req SearchRequest
		if err := sonic.ReadFrame(conn, &req); err != nil {
			return
		}
		_ = sonic.WriteFrame(conn, resp)
	}()
}

func TestRemoteShardSearchRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	want := []ranking.Ranked{{DocID: 7, ShardID: 2, Score: ranking.Score{Total: 4.5}}}
	serveOneSearch(t, ln, SearchResponse{Results: want})

	pool := sonic.NewPool(4)
	defer pool.Close()

	shard := RemoteShard(2, false, ln.Addr().String(), pool, zap.NewNop())
	require.Equal(t, uint64(2), shard.ID)

	got, err := shard.Search(context.Background(), "golang", 0, 10)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRemoteShardSearchSurfacesServerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serveOneSearch(t, ln, SearchResponse{Err: "shard overloaded"})

	pool := sonic.NewPool(4)
	defer pool.Close()

	shard := RemoteShard(1, false, ln.Addr().String(), pool, zap.NewNop())
	_, err = shard.Search(context.Background(), "golang", 0, 10)
	require.ErrorContains(t, err, "shard overloaded")
}

func TestRemoteShardTripsBreakerAfterRepeatedDialFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listens on addr from here on: every dial fails

	pool := sonic.NewPool(4)
	defer pool.Close()

	shard := RemoteShard(3, false, addr, pool, zap.NewNop())

	var lastErr error
	for i := 0; i < breaker.DefaultConfig().Threshold; i++ {
		_, lastErr = shard.Search(context.Background(), "golang", 0, 10)
		require.Error(t, lastErr)
		require.NotErrorIs(t, lastErr, breaker.ErrCircuitOpen)
	}

	_, err = shard.Search(context.Background(), "golang", 0, 10)
	require.ErrorIs(t, err, breaker.ErrCircuitOpen)
}
