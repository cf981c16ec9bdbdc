package distsearch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/breaker"
	"github.com/BaSui01/wayfarer/ranking"
	"github.com/BaSui01/wayfarer/sonic"
)

// SearchRequest is the sonic-framed request a remote shard's search
// server decodes before running its own local recall stage.
type SearchRequest struct {
	Query  string
	Offset int
	Count  int
}

// SearchResponse is the sonic-framed reply to a SearchRequest. Err is
// carried as a string, not an error, so it survives gob/json framing.
type SearchResponse struct {
	Results []ranking.Ranked
	Err     string
}

// RemoteShard builds a Shard whose Search dials addr through pool and
// runs a sonic.Call round trip, so Fanout can treat a remote
// search-server process exactly like a Shard backed by a local index.
// Each Shard gets its own circuit breaker so one wedged peer trips
// open and stops eating the fanout's deadline instead of every query
// to it blocking for a full dial-and-timeout round trip.
func RemoteShard(id uint64, isLive bool, addr string, pool *sonic.Pool, logger *zap.Logger) Shard {
	cb := breaker.NewCircuitBreaker(nil, logger.With(zap.Uint64("shard_id", id), zap.String("addr", addr)))
	return Shard{
		ID:     id,
		IsLive: isLive,
		Search: func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error) {
			return breaker.CallWithResultTyped(cb, ctx, func() ([]ranking.Ranked, error) {
				conn, err := pool.Get(addr)
				if err != nil {
					return nil, err
				}

				var resp SearchResponse
				if err := sonic.Call(conn, SearchRequest{Query: query, Offset: offset, Count: count}, &resp); err != nil {
					pool.Drop(conn)
					return nil, err
				}
				pool.Put(addr, conn)

				if resp.Err != "" {
					return nil, errors.New(resp.Err)
				}
				return resp.Results, nil
			})
		},
	}
}
