package centrality

import (
	"context"
	"fmt"

	"github.com/BaSui01/wayfarer/ampc"
)

// Finisher ends the job once a round completes with no counter
// changes anywhere (§4.9 Termination, §4.7 Finisher).
type Finisher struct{}

func (Finisher) IsFinished(ctx context.Context, prev ampc.Tables) (bool, error) {
	raw, found, err := prev.Table(TableMeta).Get(ctx, metaKeyRoundHadChanges)
	if err != nil {
		return false, fmt.Errorf("centrality: read round_had_changes: %w", err)
	}
	if !found {
		return false, nil
	}
	return !decodeBool(raw), nil
}

// Results reads the final per-node harmonic centrality scores out of
// the centrality table once the job has finished.
func Results(ctx context.Context, prev ampc.Tables) (map[uint64]float64, error) {
	out := make(map[uint64]float64)
	err := prev.Table(TableCentrality).Each(ctx, func(key, value []byte) error {
		out[uint64(decodeNodeKey(key))] = decodeF64(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("centrality: read results: %w", err)
	}
	return out, nil
}
