// Package ampc implements the Adaptive Massively Parallel Computation
// framework of §4.7: the Setup/Worker/Mapper/Finisher contracts and the
// round protocol tying them to a replicated key-value store.
package ampc

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/wayfarer/internal/pool"
)

// DhtConn is the pair of "prev"/"next" table sets a job reads from and
// writes to during a round (§4.7, §3 "DHT entry lifecycle").
type DhtConn interface {
	// Prev returns the snapshot a round reads committed state from.
	Prev() Tables
	// Next returns the snapshot a round writes this round's state to.
	Next() Tables
	// Swap exchanges prev and next after the last mapper of a round
	// completes (§4.7 round protocol step 3).
	Swap()
}

// Tables is the set of named DHT tables a job operates over; it is
// satisfied by ampcdht.Client.
type Tables interface {
	Table(name string) KV
}

// KV is the per-table key/value surface a Mapper needs: get, upsert with
// a named reducer, and iteration for Finisher/Setup scans.
type KV interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, key, value []byte) error
	Upsert(ctx context.Context, key, value []byte, reducer string) (UpsertOutcome, error)
	Each(ctx context.Context, fn func(key, value []byte) error) error
}

// UpsertOutcome mirrors the DHT entry's three-way upsert result (§3).
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota
	OutcomeMerged
	OutcomeNoChange
)

// Worker holds a data partition (e.g. a webgraph shard) and is the
// target every Mapper runs against once per round.
type Worker interface {
	// ID identifies this worker's partition within the job.
	ID() string
}

// Job identifies the unit of work a coordinator drives; it mirrors the
// original source's `Job` trait used by `Mapper::is_schedulable`.
type Job interface {
	// IsSchedulable reports whether worker should receive this round's
	// dispatch (§4.7 round protocol step 2).
	IsSchedulable(worker Worker) bool
}

// Mapper is the pure per-round function dispatched to every schedulable
// worker. Implementations must not block on anything but DHT RPCs —
// CPU-bound work inside Map should be delegated to a thread pool
// (§5 "Suspension points").
type Mapper interface {
	Name() string
	Map(ctx context.Context, job Job, worker Worker, dht DhtConn) error
}

// Setup constructs the initial DhtConn and reseeds per-round metadata
// before the first mapper of each round runs (§4.7 round protocol step 1).
type Setup interface {
	SetupRound(ctx context.Context, dht DhtConn) error
}

// Finisher inspects the "next" snapshot after a round's mappers have all
// completed and decides whether the job should continue (§4.7 round
// protocol step 3).
type Finisher interface {
	IsFinished(ctx context.Context, prev Tables) (bool, error)
}

// Coordinator drives the round protocol: Setup, dispatch every Mapper
// to every schedulable Worker, swap prev/next, ask the Finisher.
type Coordinator struct {
	Workers  []Worker
	Mappers  []Mapper
	Setup    Setup
	Finisher Finisher
	Dht      DhtConn
	Job      Job
	Logger   *zap.Logger

	// MaxRounds bounds runaway jobs; 0 means unbounded.
	MaxRounds int

	// Pool bounds concurrent mapper dispatch across workers (§5 "scoped
	// thread pool"). Nil falls back to one goroutine per schedulable
	// worker per round, which is fine for small, fixed worker counts.
	Pool *pool.GoroutinePool

	// Progress, if set, receives a RoundEvent after every mapper and
	// after every round, for a debug/watch stream (§6) to observe.
	Progress *ProgressHub
}

// Run executes rounds until the Finisher reports completion, a round
// hits MaxRounds, or ctx is cancelled. It returns the number of rounds
// executed.
func (c *Coordinator) Run(ctx context.Context) (int, error) {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}

	round := 0
	for {
		if c.MaxRounds > 0 && round >= c.MaxRounds {
			return round, fmt.Errorf("ampc: exceeded MaxRounds=%d without finishing", c.MaxRounds)
		}
		select {
		case <-ctx.Done():
			return round, ctx.Err()
		default:
		}

		if c.Setup != nil {
			if err := c.Setup.SetupRound(ctx, c.Dht); err != nil {
				return round, fmt.Errorf("ampc: setup round %d: %w", round, err)
			}
		}

		for _, mapper := range c.Mappers {
			if err := c.dispatchMapper(ctx, mapper); err != nil {
				return round, fmt.Errorf("ampc: round %d mapper %s: %w", round, mapper.Name(), err)
			}
			if c.Progress != nil {
				c.Progress.Publish(RoundEvent{Round: round, Mapper: mapper.Name()})
			}
		}

		c.Dht.Swap()
		round++

		finished, err := c.Finisher.IsFinished(ctx, c.Dht.Prev())
		if err != nil {
			return round, fmt.Errorf("ampc: finisher after round %d: %w", round, err)
		}
		log.Info("ampc round complete", zap.Int("round", round), zap.Bool("finished", finished))
		if c.Progress != nil {
			c.Progress.Publish(RoundEvent{Round: round, Finished: finished})
		}
		if finished {
			return round, nil
		}
	}
}

// dispatchMapper fans mapper out to every schedulable worker
// concurrently (§4.7 "mappers are embarrassingly parallel across
// workers"); within a worker, mapper invocations are sequential because
// each worker only ever receives one call per mapper per round.
//
// When c.Pool is set, dispatch runs through it so a job with more
// workers than the pool's MaxWorkers doesn't spawn one goroutine per
// worker per round; each submission blocks the errgroup goroutine that
// issued it until the pool actually runs it, so g.Wait() still reflects
// the real completion of every worker's Map call.
func (c *Coordinator) dispatchMapper(ctx context.Context, mapper Mapper) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range c.Workers {
		w := w
		if !c.Job.IsSchedulable(w) {
			continue
		}
		if c.Pool != nil {
			g.Go(func() error {
				return c.Pool.SubmitWait(gctx, func(ctx context.Context) error {
					return mapper.Map(ctx, c.Job, w, c.Dht)
				})
			})
			continue
		}
		g.Go(func() error {
			return mapper.Map(gctx, c.Job, w, c.Dht)
		})
	}
	return g.Wait()
}
