// Package centrality implements the harmonic-centrality AMPC job of
// §4.9: HyperLogLog reachability sketches grown round by round over a
// changed-node bloom filter, reduced to per-node harmonic scores.
package centrality

import (
	"encoding/binary"
	"math"

	"github.com/BaSui01/wayfarer/webgraph"
)

// Tables is the closed set of logical DHT table names the job reads
// and writes through an ampc.DhtConn (§4.9 "Data").
const (
	TableCounters     = "counters"
	TableMeta         = "meta"
	TableCentrality   = "centrality"
	TableChangedNodes = "changed_nodes"
)

// The meta table (§4.9 Data) is kept as two independently-upsertable
// keys rather than one struct blob: round_had_changes needs a
// linearizable OR across every worker's concurrent writes in the same
// round (§9's redesign note — "should use an atomic boolean or CAS the
// meta once"), which a single-key reducer upsert gives for free.
var (
	metaKeyUpperBound      = []byte("upper_bound_num_nodes")
	metaKeyRoundHadChanges = []byte("round_had_changes")
)

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func encodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func decodeBool(b []byte) bool {
	return len(b) == 1 && b[0] != 0
}

func nodeKey(n webgraph.NodeID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeNodeKey(b []byte) webgraph.NodeID {
	return webgraph.NodeID(binary.BigEndian.Uint64(b))
}

func shardKey(shard uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, shard)
	return b
}

func encodeF64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func decodeF64(b []byte) float64 {
	if len(b) != 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// batchSize is the per-RPC batching bound of §4.9 "Batching": every
// mapper chunks DHT ops into groups of numShards*4096.
func batchSize(numShards int) int {
	if numShards <= 0 {
		numShards = 1
	}
	return numShards * 4096
}

// chunk splits items into groups of at most size, preserving order.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || size > len(items) {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
