// Package searcher implements the local (single-shard) search path of
// §4.5: parse a query, resolve its terms against this shard's posting
// lists, score and collect candidates, then hand the surviving
// pointers to the signal aggregator and ranking pipeline.
package searcher

import (
	"context"
	"fmt"

	"github.com/BaSui01/wayfarer/collector"
	"github.com/BaSui01/wayfarer/query"
	"github.com/BaSui01/wayfarer/ranking"
)

// Index is the posting-list store boundary this package consumes
// (§2): building and persisting an inverted index is out of scope
// here, but resolving a parsed term into per-field postings is not.
type Index struct {
	// Resolve returns the per-field posting iterators for term, or
	// (nil, false) if the term does not occur in this shard's index.
	Resolve func(term query.Term) (ranking.TermQuery, bool)
	// AvgFieldLen is the corpus-wide average token count per field,
	// used by BM25's length-normalization term.
	AvgFieldLen map[string]float64
	// FieldLens looks up a document's per-field token counts.
	FieldLens func(docID uint32) map[string]int
	// Signals supplies a document's per-signal raw value for the
	// aggregator (§4.5 value functions).
	Signals func(docID uint32) ranking.DocContext
	// BucketKey supplies the collector's dedup key for a document
	// (typically its site/host hash, §4.4).
	BucketKey func(docID uint32) uint64
}

// Local is the single-shard query path: parse, intersect/score, and
// collect into a bounded top-K, ready to feed ranking.Pipeline.Recall.
type Local struct {
	ShardID    uint64
	Index      Index
	Collector  collector.Config
	Aggregator ranking.Aggregator
}

// AsRecallFn adapts Search into a ranking.RecallFn closed over queryStr,
// for wiring directly into a ranking.Pipeline.
func (l *Local) AsRecallFn(queryStr string) ranking.RecallFn {
	return func(ctx context.Context, offset, count int) ([]ranking.Ranked, error) {
		return l.Search(ctx, queryStr, offset, count)
	}
}

// Search runs the full local recall stage for queryStr: parses it,
// resolves each simple/phrase/title/body term against the shard
// index, scores the intersection, and harvests the bucketed top-K
// (§4.5 stage 1).
func (l *Local) Search(ctx context.Context, queryStr string, offset, count int) ([]ranking.Ranked, error) {
	terms := query.Parse(queryStr)

	var termQueries []ranking.TermQuery
	for i, t := range terms {
		if t.Kind == query.KindSite || t.Kind == query.KindPossibleBang {
			continue // host filters and bang prefixes never reach the posting intersection
		}
		tq, ok := l.Index.Resolve(t)
		if !ok {
			// A required term absent from the index means no document
			// can satisfy the full intersection.
			return nil, nil
		}
		tq.TermID = i
		termQueries = append(termQueries, tq)
	}

	if len(termQueries) == 0 {
		return nil, nil
	}

	scorer := ranking.NewIntersectionScorer(termQueries, l.Index.AvgFieldLen)
	candidates := scorer.Candidates()

	c, err := collector.New(l.Collector)
	if err != nil {
		return nil, fmt.Errorf("searcher: new collector: %w", err)
	}

	it := candidates.Iterator()
	scores := make(map[uint64]ranking.Score)
	for it.HasNext() {
		docID := it.Next()
		fieldLens := l.Index.FieldLens(docID)
		bm25 := scorer.Score(docID, fieldLens)

		ctxDoc := ranking.DocContext{}
		if l.Index.Signals != nil {
			ctxDoc = l.Index.Signals(docID)
		}
		score := l.Aggregator.Aggregate(bm25, ctxDoc)
		scores[uint64(docID)] = score

		bucketKey := uint64(docID)
		if l.Index.BucketKey != nil {
			bucketKey = l.Index.BucketKey(docID)
		}

		c.Insert(collector.Doc{
			BucketKey: bucketKey,
			ID:        uint64(docID),
			Score:     score.Total,
		})
	}

	harvested := c.Harvest()
	start := offset
	if start > len(harvested) {
		start = len(harvested)
	}
	end := offset + count
	if end > len(harvested) {
		end = len(harvested)
	}

	page := harvested[start:end]
	out := make([]ranking.Ranked, 0, len(page))
	for _, h := range page {
		out = append(out, ranking.Ranked{DocID: h.Doc.ID, ShardID: l.ShardID, Score: scores[h.Doc.ID]})
	}
	return out, nil
}
