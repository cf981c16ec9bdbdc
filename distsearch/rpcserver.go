package distsearch

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/ranking"
	"github.com/BaSui01/wayfarer/sonic"
)

// LocalSearchFunc matches searcher.Local.Search's signature, which is
// what ServeShard dispatches each decoded SearchRequest to.
type LocalSearchFunc func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error)

// ServeShard accepts connections on ln and answers each with one
// sonic-framed SearchRequest/SearchResponse exchange, forwarding the
// query to search. It is RemoteShard's server-side counterpart:
// together they let one search-server process be fanned out to from
// another over the wire instead of only in-process.
//
// ServeShard blocks until ln is closed or ctx is cancelled; callers
// typically run it in its own goroutine per listener.
func ServeShard(ctx context.Context, ln net.Listener, search LocalSearchFunc, logger *zap.Logger) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go handleShardConn(ctx, conn, search, logger)
	}
}

func handleShardConn(ctx context.Context, conn net.Conn, search LocalSearchFunc, logger *zap.Logger) {
	defer conn.Close()

	var req SearchRequest
	if err := sonic.ReadFrame(conn, &req); err != nil {
		logger.Debug("distsearch: shard read request failed", zap.Error(err))
		return
	}

	results, err := search(ctx, req.Query, req.Offset, req.Count)
	resp := SearchResponse{Results: results}
	if err != nil {
		resp.Err = err.Error()
	}

	if err := sonic.WriteFrame(conn, resp); err != nil {
		logger.Debug("distsearch: shard write response failed", zap.Error(err))
	}
}
