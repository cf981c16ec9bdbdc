package centrality

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/BaSui01/wayfarer/webgraph"
)

// Partition is the webgraph slice one shard owns: every edge whose
// source belongs to this shard, plus the set of "host" nodes (one per
// site) that seed round 0's counters (§4.9 step 2).
type Partition struct {
	Edges []webgraph.Edge
	Hosts []webgraph.NodeID
}

// Worker is one shard's AMPC worker for the harmonic-centrality job
// (§4.7 Worker, §4.9). Between rounds it owns an in-memory
// changed-node bloom filter that is never itself stored in the DHT;
// only its serialized snapshot travels through TableChangedNodes.
type Worker struct {
	ShardID   uint64
	NumShards int
	Partition Partition
	// LocalBloom is the "was this node marked changed" bloom Cardinalities
	// reads from this round — seeded all-true at round 0, thereafter the
	// previous round's UpdateBloom result.
	LocalBloom *bitset.BitSet
	// ChangedThisRound accumulates the nodes Cardinalities actually wrote
	// to this round; SaveBloom publishes it, UpdateBloom folds it (unioned
	// across shards) into next round's LocalBloom and resets it to empty.
	ChangedThisRound *bitset.BitSet
	LocalNodes       []webgraph.NodeID // every node this shard could possibly touch
	Round            int
}

// ID implements ampc.Worker.
func (w *Worker) ID() string {
	return shardIDString(w.ShardID)
}

func shardIDString(id uint64) string {
	return "shard-" + itoa(id)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
