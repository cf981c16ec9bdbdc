package centrality

import (
	"context"
	"fmt"

	"github.com/BaSui01/wayfarer/ampc"
)

// Setup seeds the DHT's upper-bound node count once and resets
// round_had_changes to false in `next` at the start of every round
// (§4.7 Setup, §4.9 step 1's sizing input).
type Setup struct {
	UpperBoundNumNodes uint64

	seeded bool
}

func (s *Setup) SetupRound(ctx context.Context, dht ampc.DhtConn) error {
	if !s.seeded {
		if err := dht.Prev().Table(TableMeta).Set(ctx, metaKeyUpperBound, encodeUint64(s.UpperBoundNumNodes)); err != nil {
			return fmt.Errorf("centrality: seed upper bound: %w", err)
		}
		s.seeded = true
	}
	return dht.Next().Table(TableMeta).Set(ctx, metaKeyRoundHadChanges, encodeBool(false))
}
