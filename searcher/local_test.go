package searcher

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/wayfarer/collector"
	"github.com/BaSui01/wayfarer/query"
	"github.com/BaSui01/wayfarer/ranking"
)

// fakePostings is a minimal in-memory ranking.PostingIterator.
type fakePostings struct {
	docs  *roaring.Bitmap
	freq  map[uint32]uint32
	pos   map[uint32][]int
}

func (f fakePostings) DocIDs() *roaring.Bitmap     { return f.docs }
func (f fakePostings) TermFreq(docID uint32) uint32 { return f.freq[docID] }
func (f fakePostings) Positions(docID uint32) []int { return f.pos[docID] }

func TestLocalSearchScoresAndRanks(t *testing.T) {
	docs := roaring.New()
	docs.AddMany([]uint32{1, 2, 3})

	postings := fakePostings{
		docs: docs,
		freq: map[uint32]uint32{1: 5, 2: 1, 3: 3},
		pos:  map[uint32][]int{1: {0}, 2: {10}, 3: {2}},
	}

	idx := Index{
		Resolve: func(t query.Term) (ranking.TermQuery, bool) {
			return ranking.TermQuery{
				Fields:  map[string]ranking.PostingIterator{"body": postings},
				Weights: map[string]float64{"body": 1.0},
			}, true
		},
		AvgFieldLen: map[string]float64{"body": 100},
		FieldLens: func(docID uint32) map[string]int {
			return map[string]int{"body": 100}
		},
		BucketKey: func(docID uint32) uint64 { return uint64(docID) },
	}

	l := &Local{
		ShardID: 1,
		Index:   idx,
		Collector: collector.Config{TopN: 10},
		Aggregator: ranking.Aggregator{
			Coefficients: map[ranking.Signal]float64{ranking.SignalBM25: 1.0},
		},
	}

	results, err := l.Search(context.Background(), "hello", 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Doc 1 has the highest term frequency, so it should score highest.
	require.Equal(t, uint64(1), results[0].DocID)
}
