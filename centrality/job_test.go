package centrality

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/wayfarer/ampc"
	"github.com/BaSui01/wayfarer/ampcdht"
	"github.com/BaSui01/wayfarer/webgraph"
)

// fakeKV is an in-memory ampc.KV used to exercise the mapper round
// protocol without standing up a real Raft group.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (k *fakeKV) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[string(key)]
	return v, ok, nil
}

func (k *fakeKV) Set(_ context.Context, key, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[string(key)] = value
	return nil
}

func (k *fakeKV) Upsert(ctx context.Context, key, value []byte, reducer string) (ampc.UpsertOutcome, error) {
	k.mu.Lock()
	old, existed := k.data[string(key)]
	k.mu.Unlock()

	merged, changed, err := fakeReduce(reducer, old, value)
	if err != nil {
		return ampc.OutcomeNoChange, err
	}

	k.mu.Lock()
	k.data[string(key)] = merged
	k.mu.Unlock()

	if !existed {
		return ampc.OutcomeInserted, nil
	}
	if changed {
		return ampc.OutcomeMerged, nil
	}
	return ampc.OutcomeNoChange, nil
}

func (k *fakeKV) Each(_ context.Context, fn func(key, value []byte) error) error {
	k.mu.Lock()
	items := make(map[string][]byte, len(k.data))
	for kk, v := range k.data {
		items[kk] = v
	}
	k.mu.Unlock()
	for kk, v := range items {
		if err := fn([]byte(kk), v); err != nil {
			return err
		}
	}
	return nil
}

type fakeTables struct{ tables map[string]*fakeKV }

func (t fakeTables) Table(name string) ampc.KV {
	if _, ok := t.tables[name]; !ok {
		t.tables[name] = newFakeKV()
	}
	return t.tables[name]
}

type fakeConn struct {
	prev, next fakeTables
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		prev: fakeTables{tables: make(map[string]*fakeKV)},
		next: fakeTables{tables: make(map[string]*fakeKV)},
	}
}

func (c *fakeConn) Prev() ampc.Tables { return c.prev }
func (c *fakeConn) Next() ampc.Tables { return c.next }
func (c *fakeConn) Swap()             { c.prev, c.next = c.next, c.prev }

// TestHarmonicCentralityTerminates runs the six-stage round protocol
// over a three-node line graph (1→2→3) and checks the job terminates
// with positive centrality for the upstream nodes.
func TestHarmonicCentralityTerminates(t *testing.T) {
	n1, n2, n3 := webgraph.NodeID(1), webgraph.NodeID(2), webgraph.NodeID(3)

	worker := &Worker{
		ShardID:   0,
		NumShards: 1,
		Partition: Partition{
			Edges: []webgraph.Edge{
				{From: n1, To: n2},
				{From: n2, To: n3},
			},
			Hosts: []webgraph.NodeID{n1, n2, n3},
		},
		LocalNodes: []webgraph.NodeID{n1, n2, n3},
	}

	coord := ampc.Coordinator{
		Workers:   []ampc.Worker{worker},
		Mappers:   []ampc.Mapper{SetupBloom{}, SetupCounters{}, Cardinalities{}, SaveBloom{}, UpdateBloom{}, Centralities{}},
		Setup:     &Setup{UpperBoundNumNodes: 8},
		Finisher:  Finisher{},
		Dht:       newFakeConn(),
		Job:       Job{},
		MaxRounds: 10,
	}

	rounds, err := coord.Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, rounds, 0)

	results, err := Results(context.Background(), coord.Dht.Prev())
	require.NoError(t, err)
	// n3 is reachable from both n1 and n2, so its reachability sketch
	// grows over rounds and it accrues nonzero harmonic centrality;
	// n1 has no inbound edges so its sketch (and centrality) never grows.
	require.Greater(t, results[uint64(n3)], 0.0)
	require.Equal(t, 0.0, results[uint64(n1)])
}

func fakeReduce(reducer string, old, value []byte) ([]byte, bool, error) {
	return ampcdht.Reduce(ampcdht.Reducer(reducer), old, value)
}
