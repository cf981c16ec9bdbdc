// Package distsearch implements the distributed search fabric of
// §4.11: broadcasting a query to every shard, merging shard results
// through the §4.4 collector, fetching document bodies for the
// survivors, and the IndexWebpages replication/consistency protocol.
package distsearch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/wayfarer/collector"
	"github.com/BaSui01/wayfarer/ranking"
)

// ErrInsufficientReplication is returned when an IndexWebpages call
// could not reach ⌈ready_replicas · consistency_fraction⌉ acks within
// its attempt budget (§4.11 "Consistency knob").
var ErrInsufficientReplication = errors.New("distsearch: insufficient replication")

// Shard is one queryable search-server or live-index replica.
type Shard struct {
	ID     uint64
	IsLive bool
	// Search runs §4.5's local recall stage on this shard, scoped to
	// its own recall-stage limits.
	Search func(ctx context.Context, query string, offset, count int) ([]ranking.Ranked, error)
}

// Fanout broadcasts queryStr to every shard (§4.11 "Initial phase"),
// merges through a fresh collector sized collectorTopN, and returns
// the final page plus whether more results exist beyond what was
// emitted.
type Fanout struct {
	Shards        []Shard
	CollectorTopN int
	PerShardDeadline time.Duration
}

// Result is one merged, ranked candidate surviving shard fan-out.
type Result struct {
	ranking.Ranked
}

// Run executes the initial broadcast + merge stages (§4.11). A shard
// exceeding PerShardDeadline aborts the whole request, per §5
// "A search request is aborted if any shard exceeds the configured
// per-phase deadline; partial results are NOT returned to the user."
func (f *Fanout) Run(ctx context.Context, queryStr string, offset, numResults int) ([]Result, bool, error) {
	if f.PerShardDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.PerShardDeadline)
		defer cancel()
	}

	want := offset + numResults
	if f.CollectorTopN > 0 && want > f.CollectorTopN {
		want = f.CollectorTopN
	}

	perShard := make([][]ranking.Ranked, len(f.Shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range f.Shards {
		i, shard := i, shard
		g.Go(func() error {
			res, err := shard.Search(gctx, queryStr, 0, want)
			if err != nil {
				return fmt.Errorf("distsearch: shard %d search: %w", shard.ID, err)
			}
			perShard[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	cfg := collector.Config{TopN: f.CollectorTopN}
	if cfg.TopN <= 0 {
		cfg.TopN = want
		if cfg.TopN <= 0 {
			cfg.TopN = 1
		}
	}
	c, err := collector.New(cfg)
	if err != nil {
		return nil, false, fmt.Errorf("distsearch: new collector: %w", err)
	}

	totalSeen := 0
	for _, shardResults := range perShard {
		totalSeen += len(shardResults)
		for _, r := range shardResults {
			c.Insert(collector.Doc{
				BucketKey: r.ShardID,
				ID:        r.DocID,
				Score:     r.Score.Total,
			})
		}
	}

	harvested := c.Harvest()
	start := offset
	if start > len(harvested) {
		start = len(harvested)
	}
	end := offset + numResults
	if end > len(harvested) {
		end = len(harvested)
	}

	out := make([]Result, 0, end-start)
	for _, h := range harvested[start:end] {
		out = append(out, Result{ranking.Ranked{DocID: h.Doc.ID, ShardID: h.Doc.BucketKey}})
	}

	hasMore := totalSeen-offset > len(out)
	return out, hasMore, nil
}

// BodyFetcher retrieves the stored document body for one result
// pointer via parallel RPC (§4.11 "Retrieval").
type BodyFetcher func(ctx context.Context, shardID, docID uint64) (interface{}, error)

// FetchBodies retrieves every result's document body concurrently,
// preserving result order.
func FetchBodies(ctx context.Context, results []Result, fetch BodyFetcher) ([]interface{}, error) {
	out := make([]interface{}, len(results))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range results {
		i, r := i, r
		g.Go(func() error {
			body, err := fetch(gctx, r.ShardID, r.DocID)
			if err != nil {
				return fmt.Errorf("distsearch: fetch body shard=%d doc=%d: %w", r.ShardID, r.DocID, err)
			}
			out[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ackTracker counts replication acks for a single IndexWebpages call
// and signals done once the needed threshold is reached.
type ackTracker struct {
	mu      sync.Mutex
	acked   int
	needed  int
	done    chan struct{}
	closed  bool
}

func newAckTracker(needed int) *ackTracker {
	return &ackTracker{needed: needed, done: make(chan struct{})}
}

func (t *ackTracker) ack() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.acked++
	if t.acked >= t.needed {
		t.closed = true
		close(t.done)
	}
}

// Replicator drives the IndexWebpages consistency protocol of §4.11.
type Replicator struct {
	// ReplicateOne sends pages to one peer and reports whether it
	// acknowledged within the per-attempt timeout.
	ReplicateOne func(ctx context.Context, peerAddr string, pages []interface{}) error
	AttemptTimeout time.Duration
	MaxAttempts    int
}

// NewReplicator applies the §4.11/§5 defaults: timeout <= 60s, <= 3 attempts.
func NewReplicator(replicateOne func(ctx context.Context, peerAddr string, pages []interface{}) error) *Replicator {
	return &Replicator{ReplicateOne: replicateOne, AttemptTimeout: 60 * time.Second, MaxAttempts: 3}
}

// IndexWebpages writes pages to the local live index (via localWrite)
// then replicates to peers, succeeding once
// ⌈len(peers) · consistencyFraction⌉ acks land within the attempt
// budget; otherwise returns ErrInsufficientReplication while the local
// write is retained (§5 "the local write is retained").
func (r *Replicator) IndexWebpages(ctx context.Context, pages []interface{}, peers []string, consistencyFraction float64, localWrite func([]interface{}) error) error {
	if err := localWrite(pages); err != nil {
		return fmt.Errorf("distsearch: local write: %w", err)
	}
	if len(peers) == 0 {
		return nil
	}

	needed := int(math.Ceil(float64(len(peers)) * consistencyFraction))
	if needed <= 0 {
		return nil
	}

	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	timeout := r.AttemptTimeout
	if timeout <= 0 || timeout > 60*time.Second {
		timeout = 60 * time.Second
	}

	tracker := newAckTracker(needed)
	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		var wg sync.WaitGroup
		for _, peer := range peers {
			peer := peer
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := r.ReplicateOne(attemptCtx, peer, pages); err == nil {
					tracker.ack()
				}
			}()
		}

		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()

		select {
		case <-tracker.done:
			cancel()
			<-done
			return nil
		case <-done:
		case <-attemptCtx.Done():
		}
		cancel()

		tracker.mu.Lock()
		reached := tracker.closed
		tracker.mu.Unlock()
		if reached {
			return nil
		}
	}

	return ErrInsufficientReplication
}
