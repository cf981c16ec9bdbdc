package webgraph

import "sort"

// Merge unions the per-node edge sets of all segments, producing a new
// in-memory live segment ready for Commit (§4.6 merge). When edges for
// the same (from,to) pair collide across segments, the label from the
// first segment in iteration order that has one is retained — an
// arbitrary but deterministic tie-break obtained by always walking
// segments in the order they are passed in.
//
// Associativity and commutativity (§3 invariant iv, §8) follow because
// the result only depends on the set union of (from,to,rel,label)
// triples, deduplicated by (from,to) with a stable winner; set union is
// associative and commutative, and the winner-picking rule is symmetric
// once the inputs are flattened into one ordered walk over segment
// index then edge index.
func Merge(segments []*StoredSegment) *LiveSegment {
	out := NewLiveSegment()

	type key struct {
		from, to NodeID
	}
	seen := make(map[key]int) // key -> index into out.forward[from] slice

	for _, seg := range segments {
		nodes := sortedKeys(seg.fullForward)
		for _, from := range nodes {
			for _, e := range seg.fullForward[from] {
				k := key{from: e.From, to: e.To}
				if idx, ok := seen[k]; ok {
					existing := out.forward[from][idx]
					if existing.Label.State != LoadedSome && e.Label.State == LoadedSome {
						existing.Label = e.Label
						out.forward[from][idx] = existing
						updateReverse(out, e.To, from, e.Label)
					}
					continue
				}
				seen[k] = len(out.forward[from])
				out.forward[from] = append(out.forward[from], e)
				out.reverse[e.To] = append(out.reverse[e.To], e)
			}
		}
	}

	for node := range out.forward {
		sortEdges(out.forward[node])
	}
	for node := range out.reverse {
		sortReverseEdges(out.reverse[node])
	}

	return out
}

func updateReverse(out *LiveSegment, to, from NodeID, label Label) {
	for i, e := range out.reverse[to] {
		if e.From == from {
			e.Label = label
			out.reverse[to][i] = e
			return
		}
	}
}

func sortedKeys(m map[NodeID][]Edge) []NodeID {
	keys := make([]NodeID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
