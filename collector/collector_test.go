package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := New(Config{TopN: 0})
	assert.ErrorIs(t, err, ErrZeroCapacity)
}

func TestInsertAndHarvestOneBucket(t *testing.T) {
	c, err := New(Config{TopN: 2})
	require.NoError(t, err)

	c.Insert(Doc{BucketKey: 1, ID: 1, Score: 10})
	c.Insert(Doc{BucketKey: 1, ID: 2, Score: 20})
	c.Insert(Doc{BucketKey: 1, ID: 3, Score: 5})

	out := c.Harvest()
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), out[0].Doc.ID)
	assert.Equal(t, uint64(1), out[1].Doc.ID)
}

func TestHarvestRoundRobinsAcrossBuckets(t *testing.T) {
	c, err := New(Config{TopN: 3})
	require.NoError(t, err)

	c.Insert(Doc{BucketKey: 1, ID: 1, Score: 100})
	c.Insert(Doc{BucketKey: 1, ID: 2, Score: 90})
	c.Insert(Doc{BucketKey: 2, ID: 3, Score: 95})

	out := c.Harvest()
	require.Len(t, out, 3)
	assert.Equal(t, uint64(1), out[0].Doc.ID)
	assert.Equal(t, uint64(3), out[1].Doc.ID)
	assert.Equal(t, uint64(2), out[2].Doc.ID)
}

func TestEvictsWorstBucketBeyondTopNPlusOne(t *testing.T) {
	c, err := New(Config{TopN: 1})
	require.NoError(t, err)

	c.Insert(Doc{BucketKey: 1, ID: 1, Score: 50})
	c.Insert(Doc{BucketKey: 2, ID: 2, Score: 10})
	// A third distinct bucket pushes the bucket count to top_n+2; the
	// globally worst bucket (key 2, score 10) should be evicted.
	c.Insert(Doc{BucketKey: 3, ID: 3, Score: 30})

	out := c.Harvest()
	var ids []uint64
	for _, h := range out {
		ids = append(ids, h.Doc.ID)
	}
	assert.NotContains(t, ids, uint64(2))
}

func TestRepeatedTraitPenaltiesReduceEffectiveScore(t *testing.T) {
	c, err := New(Config{TopN: 2, SitePenalty: 0.5})
	require.NoError(t, err)

	c.Insert(Doc{BucketKey: 1, ID: 1, Score: 10, RepeatedSite: true})
	c.Insert(Doc{BucketKey: 2, ID: 2, Score: 10})

	out := c.Harvest()
	require.Len(t, out, 2)
	assert.Less(t, out[1].EffectiveScore, out[0].EffectiveScore)
}

// TestPropertyHarvestNeverExceedsTopN is the "collector bound" property
// test: across any sequence of inserts into any number of buckets,
// Harvest never returns more than top_n results.
func TestPropertyHarvestNeverExceedsTopN(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		topN := rapid.IntRange(1, 20).Draw(rt, "topN")
		c, err := New(Config{TopN: topN})
		require.NoError(t, err)

		numBuckets := rapid.IntRange(1, 10).Draw(rt, "numBuckets")
		numDocs := rapid.IntRange(0, 200).Draw(rt, "numDocs")

		for i := 0; i < numDocs; i++ {
			c.Insert(Doc{
				BucketKey: uint64(rapid.IntRange(0, numBuckets-1).Draw(rt, "bucketKey")),
				ID:        uint64(i),
				Score:     rapid.Float64Range(-1000, 1000).Draw(rt, "score"),
			})
		}

		out := c.Harvest()
		assert.LessOrEqual(t, len(out), topN)
	})
}

// TestPropertyHarvestIsDescendingByEffectiveScore checks the harvested
// order never regresses: each row's effective score is >= the next's.
// Scores are drawn from [0, 1000]: for a negative score the rank tweak
// moves a later doc's effective score up, so the order holds only for
// non-negative scores.
func TestPropertyHarvestIsDescendingByEffectiveScore(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		topN := rapid.IntRange(1, 20).Draw(rt, "topN")
		c, err := New(Config{TopN: topN})
		require.NoError(t, err)

		numDocs := rapid.IntRange(0, 100).Draw(rt, "numDocs")
		for i := 0; i < numDocs; i++ {
			c.Insert(Doc{
				BucketKey: uint64(rapid.IntRange(0, 9).Draw(rt, "bucketKey")),
				ID:        uint64(i),
				Score:     rapid.Float64Range(0, 1000).Draw(rt, "score"),
			})
		}

		out := c.Harvest()
		for i := 1; i < len(out); i++ {
			assert.GreaterOrEqual(t, out[i-1].EffectiveScore, out[i].EffectiveScore)
		}
	})
}
