package ampcdht

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/axiomhq/hyperloglog"
	"github.com/bits-and-blooms/bitset"
)

// reduceHLL merges two marshaled HyperLogLog sketches register-wise
// (§4.9's HLL64 counter, §8 "HLL merge idempotence"). The outcome is
// NoChange when the merge left the sketch's cardinality estimate
// unchanged, which is what the centrality job's "changed" detection
// relies on.
func reduceHLL(oldBytes, newBytes []byte) ([]byte, bool, error) {
	oldSketch := hyperloglog.New()
	if err := oldSketch.UnmarshalBinary(oldBytes); err != nil {
		return nil, false, fmt.Errorf("ampcdht: unmarshal old hll: %w", err)
	}
	newSketch := hyperloglog.New()
	if err := newSketch.UnmarshalBinary(newBytes); err != nil {
		return nil, false, fmt.Errorf("ampcdht: unmarshal incoming hll: %w", err)
	}

	before := oldSketch.Estimate()
	if err := oldSketch.Merge(newSketch); err != nil {
		return nil, false, fmt.Errorf("ampcdht: merge hll: %w", err)
	}
	after := oldSketch.Estimate()

	merged, err := oldSketch.MarshalBinary()
	if err != nil {
		return nil, false, fmt.Errorf("ampcdht: marshal merged hll: %w", err)
	}
	return merged, after != before, nil
}

// reduceF64Add sums two little-endian float64 values, used by signals
// that accumulate centrality deltas across rounds (§4.9 step 6).
func reduceF64Add(oldBytes, deltaBytes []byte) ([]byte, bool, error) {
	if len(oldBytes) != 8 || len(deltaBytes) != 8 {
		return nil, false, fmt.Errorf("ampcdht: f64_add expects 8-byte operands")
	}
	old := math.Float64frombits(binary.LittleEndian.Uint64(oldBytes))
	delta := math.Float64frombits(binary.LittleEndian.Uint64(deltaBytes))
	sum := old + delta

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(sum))
	return out, delta != 0, nil
}

// reduceBoolOr ORs two single-byte boolean operands.
func reduceBoolOr(oldBytes, newBytes []byte) ([]byte, bool, error) {
	if len(oldBytes) != 1 || len(newBytes) != 1 {
		return nil, false, fmt.Errorf("ampcdht: bool_or expects 1-byte operands")
	}
	old := oldBytes[0] != 0
	val := newBytes[0] != 0
	result := old || val
	out := byte(0)
	if result {
		out = 1
	}
	return []byte{out}, result != old, nil
}

// reduceBloomUnion unions two marshaled bitsets, used to merge per-shard
// changed-node blooms (§4.9 step 5 "SaveBloom").
func reduceBloomUnion(oldBytes, newBytes []byte) ([]byte, bool, error) {
	oldSet := bitset.New(0)
	if err := oldSet.UnmarshalBinary(oldBytes); err != nil {
		return nil, false, fmt.Errorf("ampcdht: unmarshal old bloom: %w", err)
	}
	newSet := bitset.New(0)
	if err := newSet.UnmarshalBinary(newBytes); err != nil {
		return nil, false, fmt.Errorf("ampcdht: unmarshal incoming bloom: %w", err)
	}

	before := oldSet.Count()
	union := oldSet.Union(newSet)
	after := union.Count()

	out, err := union.MarshalBinary()
	if err != nil {
		return nil, false, fmt.Errorf("ampcdht: marshal union bloom: %w", err)
	}
	return out, after != before, nil
}
