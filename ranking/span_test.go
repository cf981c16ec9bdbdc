package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSpans_SingleSpan(t *testing.T) {
	hits := []Hit{{Position: 0, TermID: 1}, {Position: 3, TermID: 2}}
	spans := ComputeSpans(hits)
	require.Len(t, spans, 1)
	assert.Equal(t, 2, spans[0].DistinctTerm)
	assert.Equal(t, 3, spans[0].Width)
}

func TestComputeSpans_ClosesOnWideGap(t *testing.T) {
	hits := []Hit{{Position: 0, TermID: 1}, {Position: 100, TermID: 2}}
	spans := ComputeSpans(hits)
	require.Len(t, spans, 2)
}

func TestComputeSpans_ClosesOnRepeat(t *testing.T) {
	hits := []Hit{{Position: 0, TermID: 1}, {Position: 1, TermID: 1}}
	spans := ComputeSpans(hits)
	require.Len(t, spans, 2)
}

// TestSpanScoring_Monotonicity: a narrower span of the same distinct
// term count never scores lower than a wider one (§8).
func TestSpanScoring_Monotonicity(t *testing.T) {
	narrow := ComputeSpans([]Hit{{Position: 0, TermID: 1}, {Position: 2, TermID: 2}})
	wide := ComputeSpans([]Hit{{Position: 0, TermID: 1}, {Position: 10, TermID: 2}})

	require.Len(t, narrow, 1)
	require.Len(t, wide, 1)
	assert.GreaterOrEqual(t, narrow[0].Contribution, wide[0].Contribution)
}

func TestTermContribution(t *testing.T) {
	spans := ComputeSpans([]Hit{{Position: 0, TermID: 1}, {Position: 2, TermID: 2}})
	assert.Greater(t, TermContribution(spans, 1), 0.0)
	assert.Equal(t, 0.0, TermContribution(spans, 999))
}
