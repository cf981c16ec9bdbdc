package webgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Triangle A→B, B→C, C→A, A→C (§8 scenario 4).
func TestTriangleOutgoingIngoing(t *testing.T) {
	live := NewLiveSegment()
	A, B, C := NodeID(1), NodeID(2), NodeID(3)
	live.Insert(A, B, Label{}, RelNone)
	live.Insert(B, C, Label{}, RelNone)
	live.Insert(C, A, Label{}, RelNone)
	live.Insert(A, C, Label{}, RelNone)

	seg, err := Commit(live, t.TempDir())
	require.NoError(t, err)

	out := seg.OutgoingEdges(A, false)
	require.Len(t, out, 2)
	assert.Equal(t, B, out[0].To)
	assert.Equal(t, C, out[1].To)

	in := seg.IngoingEdges(C, false)
	require.Len(t, in, 2)
	assert.Equal(t, A, in[0].To)
	assert.Equal(t, B, in[1].To)
}

func TestMergeAssociativeCommutative(t *testing.T) {
	a := NewLiveSegment()
	a.Insert(1, 2, Label{}, RelNone)
	b := NewLiveSegment()
	b.Insert(2, 3, Label{}, RelNone)
	c := NewLiveSegment()
	c.Insert(3, 1, Label{}, RelNone)

	segA, err := Commit(a, t.TempDir())
	require.NoError(t, err)
	segB, err := Commit(b, t.TempDir())
	require.NoError(t, err)
	segC, err := Commit(c, t.TempDir())
	require.NoError(t, err)

	leftFirst := Merge([]*StoredSegment{mustCommit(t, Merge([]*StoredSegment{segA, segB})), segC})
	rightFirst := Merge([]*StoredSegment{segA, mustCommit(t, Merge([]*StoredSegment{segB, segC}))})

	assert.Equal(t, canonical(leftFirst), canonical(rightFirst))
}

func mustCommit(t *testing.T, live *LiveSegment) *StoredSegment {
	t.Helper()
	seg, err := Commit(live, t.TempDir())
	require.NoError(t, err)
	return seg
}

// canonical flattens a live segment's forward adjacency into a
// comparable, order-independent representation for the associativity
// check (§8).
func canonical(live *LiveSegment) map[NodeID][]NodeID {
	out := make(map[NodeID][]NodeID, len(live.forward))
	for node, edges := range live.forward {
		tos := make([]NodeID, len(edges))
		for i, e := range edges {
			tos[i] = e.To
		}
		out[node] = tos
	}
	return out
}
