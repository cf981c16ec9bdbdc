package centrality

import (
	"context"
	"fmt"

	"github.com/axiomhq/hyperloglog"

	"github.com/BaSui01/wayfarer/ampc"
	"github.com/BaSui01/wayfarer/webgraph"
)

// seedHLL builds the single-element HyperLogLog sketch a host node
// starts round 0 with (§4.9 step 2: "HLL.add(node)").
func seedHLL(host webgraph.NodeID) ([]byte, error) {
	sketch := hyperloglog.New()
	sketch.Insert(nodeKey(host))
	return sketch.MarshalBinary()
}

// sketchSize returns the cardinality estimate stored at node, or 0 if
// absent (a node with no reachability sketch yet contributes no delta).
func sketchSize(ctx context.Context, kv ampc.KV, node webgraph.NodeID) (float64, error) {
	raw, found, err := kv.Get(ctx, nodeKey(node))
	if err != nil {
		return 0, fmt.Errorf("centrality: get sketch[%d]: %w", node, err)
	}
	if !found {
		return 0, nil
	}
	sketch := hyperloglog.New()
	if err := sketch.UnmarshalBinary(raw); err != nil {
		return 0, fmt.Errorf("centrality: unmarshal sketch[%d]: %w", node, err)
	}
	return sketch.Estimate(), nil
}
