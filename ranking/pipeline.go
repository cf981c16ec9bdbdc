package ranking

import "context"

// Ranked is a single scored, shard-identified result pointer carried
// between pipeline stages.
type Ranked struct {
	DocID   uint64
	ShardID uint64
	Score   Score
}

// Reranker is the single truly open extension point in the pipeline
// (§9's design note reserves dyn dispatch for a user-supplied
// reranker); everything else in this package is a closed tagged enum.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Ranked) ([]Ranked, error)
}

// RecallFn requests the cheap linear-scored top candidates from a
// single shard, capped by the collector's top-N.
type RecallFn func(ctx context.Context, offset, count int) ([]Ranked, error)

// Pipeline runs the two ordered stages of §4.5: recall, then an
// optional rerank over the retrieved bodies.
type Pipeline struct {
	Recall        RecallFn
	Reranker      Reranker
	RerankEnabled bool
	CollectorTopN int
}

// Page is the pipeline's output for one request: the results to
// display plus whether more results exist beyond what was emitted.
type Page struct {
	Results       []Ranked
	HasMore       bool
	TotalSeen     int
}

// Run executes stage N, fetching offset+numResults candidates upstream
// and deriving has_more_results from the total seen minus offset
// exceeding what the pipeline emits.
func (p Pipeline) Run(ctx context.Context, query string, offset, numResults int) (Page, error) {
	want := offset + numResults
	if want > p.CollectorTopN {
		want = p.CollectorTopN
	}

	candidates, err := p.Recall(ctx, 0, want)
	if err != nil {
		return Page{}, err
	}

	if p.RerankEnabled && p.Reranker != nil {
		candidates, err = p.Reranker.Rerank(ctx, query, candidates)
		if err != nil {
			return Page{}, err
		}
	}

	totalSeen := len(candidates)
	if offset > totalSeen {
		offset = totalSeen
	}

	end := offset + numResults
	if end > totalSeen {
		end = totalSeen
	}

	page := candidates[offset:end]
	out := make([]Ranked, len(page))
	copy(out, page)

	return Page{
		Results:   out,
		HasMore:   totalSeen-offset > len(out),
		TotalSeen: totalSeen,
	}, nil
}
