package ranking

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// PostingIterator is the minimal per-term, per-field view the core
// consumes from the external posting-list store (§2): a candidate
// doc-id set, term frequency, and (for position-bearing fields) the
// sorted token positions of the term within a given document.
type PostingIterator interface {
	DocIDs() *roaring.Bitmap
	TermFreq(docID uint32) uint32
	Positions(docID uint32) []int
}

// TermQuery pairs a query term id with its per-field posting iterators
// and the term's field-weighted BM25 similarity weight.
type TermQuery struct {
	TermID  int
	Fields  map[string]PostingIterator
	Weights map[string]float64
}

// IntersectionScorer intersects the per-term candidate bitmaps (each the
// union of that term's field postings) and combines BM25 with the §4.2
// proximity bonus for every agreeing document.
type IntersectionScorer struct {
	terms       []TermQuery
	k1, b       float64
	avgFieldLen map[string]float64
}

// NewIntersectionScorer builds a scorer over terms using the standard
// BM25 k1/b constants; avgFieldLen supplies the corpus-wide average
// token count per field used by the BM25 length-normalization term.
func NewIntersectionScorer(terms []TermQuery, avgFieldLen map[string]float64) *IntersectionScorer {
	if avgFieldLen == nil {
		avgFieldLen = map[string]float64{}
	}
	return &IntersectionScorer{terms: terms, k1: 1.2, b: 0.75, avgFieldLen: avgFieldLen}
}

// Candidates returns the doc-id set where every term agrees: the union
// of each term's per-field postings, intersected across terms.
func (s *IntersectionScorer) Candidates() *roaring.Bitmap {
	if len(s.terms) == 0 {
		return roaring.New()
	}
	result := unionFields(s.terms[0])
	for _, t := range s.terms[1:] {
		result = roaring.And(result, unionFields(t))
	}
	return result
}

func unionFields(t TermQuery) *roaring.Bitmap {
	u := roaring.New()
	for _, it := range t.Fields {
		u.Or(it.DocIDs())
	}
	return u
}

// Score computes the combined BM25 + proximity score for docID. A
// single-term query with no phrase/pattern structure bypasses span
// computation entirely and returns the raw posting term_freq (§4.2's
// documented edge case).
func (s *IntersectionScorer) Score(docID uint32, fieldLen map[string]int) float64 {
	if len(s.terms) == 1 {
		return s.rawTermFreq(docID)
	}

	var hits []Hit
	var bm25 float64

	for _, t := range s.terms {
		for field, it := range t.Fields {
			if !it.DocIDs().Contains(docID) {
				continue
			}
			tf := it.TermFreq(docID)
			weight := t.Weights[field]
			bm25 += weight * s.bm25(tf, fieldLen[field], field)

			for _, pos := range it.Positions(docID) {
				hits = append(hits, Hit{Position: pos, TermID: t.TermID})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Position < hits[j].Position })
	spans := ComputeSpans(hits)

	var proximity float64
	for _, t := range s.terms {
		c := TermContribution(spans, t.TermID)
		for field, it := range t.Fields {
			if it.DocIDs().Contains(docID) {
				proximity += c * t.Weights[field]
			}
		}
	}

	return bm25 + proximity
}

func (s *IntersectionScorer) rawTermFreq(docID uint32) float64 {
	if len(s.terms) == 0 {
		return 0
	}
	var total float64
	for _, it := range s.terms[0].Fields {
		if it.DocIDs().Contains(docID) {
			total += float64(it.TermFreq(docID))
		}
	}
	return total
}

func (s *IntersectionScorer) bm25(tf uint32, fieldLen int, field string) float64 {
	if tf == 0 {
		return 0
	}
	avg := s.avgFieldLen[field]
	if avg <= 0 {
		avg = 1
	}
	freq := float64(tf)
	norm := 1 - s.b + s.b*(float64(fieldLen)/avg)
	return (freq * (s.k1 + 1)) / (freq + s.k1*norm)
}

// EmptyFieldScorer matches documents with zero tokens in the target
// field, per §4.3.
type EmptyFieldScorer struct {
	Field string
}

// Matches reports whether fieldLen for s.Field is zero.
func (s EmptyFieldScorer) Matches(fieldLen map[string]int) bool {
	return fieldLen[s.Field] == 0
}

// FastSiteDomainScorer is the specialized scorer for site:/domain:
// queries that hit a single untokenized column-field term, skipping
// general posting-list intersection entirely.
type FastSiteDomainScorer struct {
	Field string
	Value string
}

// Matches reports whether the document's column-field value for
// s.Field equals s.Value.
func (s FastSiteDomainScorer) Matches(columnFields map[string]string) bool {
	return columnFields[s.Field] == s.Value
}
