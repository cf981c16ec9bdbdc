package centrality

import (
	"context"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/BaSui01/wayfarer/ampc"
	"github.com/BaSui01/wayfarer/ampcdht"
	"github.com/BaSui01/wayfarer/webgraph"
)

// Job is the single schedulable unit for the harmonic-centrality
// computation: every worker participates every round (§4.9 has no
// worker-selection predicate beyond "all").
type Job struct{}

func (Job) IsSchedulable(ampc.Worker) bool { return true }

func asWorker(w ampc.Worker) (*Worker, error) {
	cw, ok := w.(*Worker)
	if !ok {
		return nil, fmt.Errorf("centrality: unexpected worker type %T", w)
	}
	return cw, nil
}

// SetupBloom sizes the local changed-node bloom from the meta upper
// bound, round 0 only (§4.9 step 1).
type SetupBloom struct{}

func (SetupBloom) Name() string { return "SetupBloom" }

func (SetupBloom) Map(ctx context.Context, _ ampc.Job, worker ampc.Worker, dht ampc.DhtConn) error {
	w, err := asWorker(worker)
	if err != nil {
		return err
	}
	if w.Round != 0 {
		return nil
	}

	raw, found, err := dht.Prev().Table(TableMeta).Get(ctx, metaKeyUpperBound)
	if err != nil {
		return fmt.Errorf("centrality: SetupBloom get upper bound: %w", err)
	}
	upper := uint64(1 << 20)
	if found {
		upper = decodeUint64(raw)
	}
	// Round 0 treats every node as "changed" so the first Cardinalities
	// pass propagates every host's singleton sketch across its outgoing
	// edges; later rounds narrow the check-bloom to genuinely-changed
	// nodes via UpdateBloom.
	w.LocalBloom = bitset.New(uint(upper)).FlipRange(0, uint(upper))
	w.ChangedThisRound = bitset.New(uint(upper))
	return nil
}

// SetupCounters seeds prev.counters[node] = HLL.add(node) for every
// host node, mirrored into next, round 0 only (§4.9 step 2).
type SetupCounters struct{}

func (SetupCounters) Name() string { return "SetupCounters" }

func (SetupCounters) Map(ctx context.Context, _ ampc.Job, worker ampc.Worker, dht ampc.DhtConn) error {
	w, err := asWorker(worker)
	if err != nil {
		return err
	}
	if w.Round != 0 {
		return nil
	}

	batches := chunk(w.Partition.Hosts, batchSize(w.NumShards))
	for _, hosts := range batches {
		for _, host := range hosts {
			sketchBytes, err := seedHLL(host)
			if err != nil {
				return fmt.Errorf("centrality: seed hll for %d: %w", host, err)
			}
			if err := dht.Prev().Table(TableCounters).Set(ctx, nodeKey(host), sketchBytes); err != nil {
				return fmt.Errorf("centrality: SetupCounters set prev: %w", err)
			}
			if err := dht.Next().Table(TableCounters).Set(ctx, nodeKey(host), sketchBytes); err != nil {
				return fmt.Errorf("centrality: SetupCounters set next: %w", err)
			}
		}
	}
	return nil
}

// Cardinalities walks every local edge (u,v) excluding SKIPPED_REL and
// whose u is in the local changed bloom, merging prev.counters[u] into
// next.counters[v] (§4.9 step 3).
type Cardinalities struct{}

func (Cardinalities) Name() string { return "Cardinalities" }

func (Cardinalities) Map(ctx context.Context, _ ampc.Job, worker ampc.Worker, dht ampc.DhtConn) error {
	w, err := asWorker(worker)
	if err != nil {
		return err
	}

	counters := dht.Prev().Table(TableCounters)
	nextCounters := dht.Next().Table(TableCounters)

	any := false
	batches := chunk(w.Partition.Edges, batchSize(w.NumShards))
	for _, edges := range batches {
		for _, e := range edges {
			if e.HasSkippedRel() {
				continue
			}
			if w.LocalBloom == nil || !w.LocalBloom.Test(uint(e.From)) {
				continue
			}

			uSketch, found, err := counters.Get(ctx, nodeKey(e.From))
			if err != nil {
				return fmt.Errorf("centrality: get counters[%d]: %w", e.From, err)
			}
			if !found {
				continue
			}

			outcome, err := nextCounters.Upsert(ctx, nodeKey(e.To), uSketch, string(ampcdht.ReducerHyperLogLog64Upsert))
			if err != nil {
				return fmt.Errorf("centrality: upsert counters[%d]: %w", e.To, err)
			}
			if outcome != ampc.OutcomeNoChange {
				w.ChangedThisRound.Set(uint(e.To))
				any = true
			}
		}
	}

	if any {
		if _, err := dht.Next().Table(TableMeta).Upsert(ctx, metaKeyRoundHadChanges, encodeBool(true), string(ampcdht.ReducerBoolOr)); err != nil {
			return fmt.Errorf("centrality: upsert round_had_changes: %w", err)
		}
	}
	return nil
}

// SaveBloom pushes the per-shard bloom into next.changed_nodes[shard]
// (§4.9 step 4).
type SaveBloom struct{}

func (SaveBloom) Name() string { return "SaveBloom" }

func (SaveBloom) Map(ctx context.Context, _ ampc.Job, worker ampc.Worker, dht ampc.DhtConn) error {
	w, err := asWorker(worker)
	if err != nil {
		return err
	}
	if w.ChangedThisRound == nil {
		return nil
	}
	b, err := w.ChangedThisRound.MarshalBinary()
	if err != nil {
		return fmt.Errorf("centrality: marshal changed-this-round bloom: %w", err)
	}
	return dht.Next().Table(TableChangedNodes).Set(ctx, shardKey(w.ShardID), b)
}

// UpdateBloom replaces the local bloom with the union of every shard's
// saved bloom (§4.9 step 5).
type UpdateBloom struct{}

func (UpdateBloom) Name() string { return "UpdateBloom" }

func (UpdateBloom) Map(ctx context.Context, _ ampc.Job, worker ampc.Worker, dht ampc.DhtConn) error {
	w, err := asWorker(worker)
	if err != nil {
		return err
	}

	union := bitset.New(0)
	err = dht.Next().Table(TableChangedNodes).Each(ctx, func(_ []byte, value []byte) error {
		b := bitset.New(0)
		if err := b.UnmarshalBinary(value); err != nil {
			return fmt.Errorf("centrality: unmarshal shard bloom: %w", err)
		}
		union = union.Union(b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("centrality: UpdateBloom scan: %w", err)
	}
	w.LocalBloom = union
	w.ChangedThisRound = bitset.New(union.Len())
	return nil
}

// Centralities adds (new_size - old_size)/(round+1) to
// next.centrality[node] for every local node, preserving the prior
// round's total read from prev.centrality (§4.9 step 6).
type Centralities struct{}

func (Centralities) Name() string { return "Centralities" }

func (Centralities) Map(ctx context.Context, _ ampc.Job, worker ampc.Worker, dht ampc.DhtConn) error {
	w, err := asWorker(worker)
	if err != nil {
		return err
	}

	prevCounters := dht.Prev().Table(TableCounters)
	nextCounters := dht.Next().Table(TableCounters)
	prevCentrality := dht.Prev().Table(TableCentrality)
	nextCentrality := dht.Next().Table(TableCentrality)

	batches := chunk(w.LocalNodes, batchSize(w.NumShards))
	for _, nodes := range batches {
		for _, node := range nodes {
			oldSize, err := sketchSize(ctx, prevCounters, node)
			if err != nil {
				return err
			}
			newSize, err := sketchSize(ctx, nextCounters, node)
			if err != nil {
				return err
			}
			delta := (newSize - oldSize) / float64(w.Round+1)

			prevTotalBytes, found, err := prevCentrality.Get(ctx, nodeKey(node))
			if err != nil {
				return fmt.Errorf("centrality: get prev centrality[%d]: %w", node, err)
			}
			base := 0.0
			if found {
				base = decodeF64(prevTotalBytes)
			}
			if err := nextCentrality.Set(ctx, nodeKey(node), encodeF64(base+delta)); err != nil {
				return fmt.Errorf("centrality: set next centrality[%d]: %w", node, err)
			}
		}
	}

	w.Round++
	return nil
}

