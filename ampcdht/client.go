package ampcdht

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/wayfarer/netretry"
)

// Transport is the wire-level RPC a RemoteClient uses to reach a peer;
// production wiring is the sonic framed-RPC client (§6), kept as an
// interface here so the retry/leader-caching logic is testable without
// a live socket.
type Transport interface {
	Do(ctx context.Context, addr string, req Request) (*Response, error)
}

// RemoteClient caches a "likely leader" address and retries admin RPCs
// 5x with backoff capped at 60s, following ForwardToLeader hints
// (§4.8 Client, §7 "ForwardToLeader drives client-side leader discovery").
type RemoteClient struct {
	mu           sync.Mutex
	likelyLeader string
	seeds        []string
	transport    Transport
	retryer      netretry.Retryer
	logger       *zap.Logger
}

// NewRemoteClient builds a client seeded with known peer addresses.
func NewRemoteClient(seeds []string, transport Transport, logger *zap.Logger) *RemoteClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := &netretry.RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	return &RemoteClient{
		seeds:     seeds,
		transport: transport,
		retryer:   netretry.NewBackoffRetryer(policy, logger),
		logger:    logger,
	}
}

func (c *RemoteClient) candidateAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.likelyLeader != "" {
		return c.likelyLeader
	}
	if len(c.seeds) > 0 {
		return c.seeds[0]
	}
	return ""
}

func (c *RemoteClient) setLikelyLeader(addr string) {
	c.mu.Lock()
	c.likelyLeader = addr
	c.mu.Unlock()
}

// Do sends req, retrying up to 5x with exponential backoff and
// following ForwardToLeader redirects. ErrUnreachable surfaces when a
// peer times out, which Raft's own client-side logic treats as "down".
func (c *RemoteClient) Do(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := c.retryer.Do(ctx, func() error {
		addr := c.candidateAddr()
		if addr == "" {
			return fmt.Errorf("ampcdht: no known peer address")
		}

		r, err := c.transport.Do(ctx, addr, req)
		if err == nil {
			resp = r
			return nil
		}

		var fwd *ForwardToLeader
		if errors.As(err, &fwd) {
			c.setLikelyLeader(fwd.LeaderAddr)
			return err
		}
		if errors.Is(err, ErrNotLeader) {
			c.mu.Lock()
			c.likelyLeader = ""
			c.mu.Unlock()
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *RemoteClient) Set(ctx context.Context, table string, key, value []byte) error {
	_, err := c.Do(ctx, Request{Kind: KindSet, Table: table, Key: key, Value: value})
	return err
}

func (c *RemoteClient) Upsert(ctx context.Context, table string, key, value []byte, r Reducer) (UpsertOutcome, error) {
	resp, err := c.Do(ctx, Request{Kind: KindUpsert, Table: table, Key: key, Value: value, Reducer: r})
	if err != nil {
		return OutcomeNoChange, err
	}
	return resp.Outcome, nil
}

func (c *RemoteClient) CreateTable(ctx context.Context, name string) error {
	_, err := c.Do(ctx, Request{Kind: KindCreateTable, Table: name})
	return err
}

func (c *RemoteClient) DropTable(ctx context.Context, name string) error {
	_, err := c.Do(ctx, Request{Kind: KindDropTable, Table: name})
	return err
}
