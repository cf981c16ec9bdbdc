// Package ranking implements the per-document scoring pipeline: span
// proximity scoring over merged term-hit streams (§4.2), pattern-match
// term intersection (§4.3), the signal aggregator (§4.5), and the
// recall→rerank pipeline.
package ranking

import "math"

const (
	// maxSpanWidth bounds how far apart two hits may be and still join
	// the same proximity span.
	maxSpanWidth = 45

	spanLambda = 0.55
	spanGamma  = 0.25
)

// Hit is one occurrence of a query term at a token position, merged
// across all position-bearing fields for a single document.
type Hit struct {
	Position int
	TermID   int
}

// Span is a contiguous window of hits contributing a proximity bonus.
type Span struct {
	Hits         []Hit
	Width        int
	DistinctTerm int
	Contribution float64
}

// ComputeSpans groups a position-sorted hit stream into spans per §4.2:
// a span closes when consecutive hits exceed maxSpanWidth apart or
// repeat the same term; when a term recurs inside an open span, the
// occurrence closer to the span's last hit is retained and the other
// is deferred to seed the following span (deferring closes the current
// span at that point — a bounded simplification of the original's
// retroactive re-threading, documented because the spec's own ordering
// at a collision is underspecified for a forward-only hit stream).
func ComputeSpans(hits []Hit) []Span {
	queue := make([]Hit, len(hits))
	copy(queue, hits)

	var spans []Span
	for len(queue) > 0 {
		span := []Hit{queue[0]}
		seen := map[int]int{queue[0].TermID: queue[0].Position}
		queue = queue[1:]

		for len(queue) > 0 {
			h := queue[0]
			last := span[len(span)-1]
			dist := h.Position - last.Position

			if dist > maxSpanWidth || h.TermID == last.TermID {
				break
			}

			if prevPos, ok := seen[h.TermID]; ok {
				distOld := abs(last.Position - prevPos)
				distNew := abs(last.Position - h.Position)
				queue = queue[1:]
				if distNew < distOld {
					span = replaceTermPosition(span, h.TermID, h.Position)
					seen[h.TermID] = h.Position
					queue = append([]Hit{{TermID: h.TermID, Position: prevPos}}, queue...)
				} else {
					queue = append([]Hit{h}, queue...)
				}
				break
			}

			span = append(span, h)
			seen[h.TermID] = h.Position
			queue = queue[1:]
		}

		spans = append(spans, finalizeSpan(span))
	}

	return spans
}

func replaceTermPosition(span []Hit, termID, newPos int) []Hit {
	out := make([]Hit, len(span))
	copy(out, span)
	for i, h := range out {
		if h.TermID == termID {
			out[i].Position = newPos
			break
		}
	}
	return out
}

func finalizeSpan(hits []Hit) Span {
	distinct := map[int]struct{}{}
	minPos, maxPos := hits[0].Position, hits[0].Position
	for _, h := range hits {
		distinct[h.TermID] = struct{}{}
		if h.Position < minPos {
			minPos = h.Position
		}
		if h.Position > maxPos {
			maxPos = h.Position
		}
	}

	width := maxPos - minPos
	if width < 1 {
		width = 1
	}
	if width > maxSpanWidth {
		width = maxSpanWidth
	}

	n := float64(len(distinct))
	contribution := math.Pow(n, spanLambda) / math.Pow(float64(width), spanGamma)

	return Span{
		Hits:         hits,
		Width:        width,
		DistinctTerm: len(distinct),
		Contribution: contribution,
	}
}

// TermContribution sums the contribution of every span in which termID
// participates, the per-term proximity score §4.2 multiplies by the
// term's field-weighted BM25 similarity weight.
func TermContribution(spans []Span, termID int) float64 {
	var total float64
	for _, span := range spans {
		for _, h := range span.Hits {
			if h.TermID == termID {
				total += span.Contribution
				break
			}
		}
	}
	return total
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
