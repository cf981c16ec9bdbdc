// Package collector implements the bucketed deduplicating top-K
// collector of §4.4: bounded-memory top-N with per-bucket (typically
// per-host) deduplication, tunable insertion-time penalties, and a
// two-level bucket-heap / bucket-head-heap structure.
package collector

import (
	"container/heap"
	"errors"
	"sort"
)

// ErrZeroCapacity is returned by New when top_n is not positive; the
// collector is otherwise infallible (§4.4's failure semantics).
var ErrZeroCapacity = errors.New("collector: capacity must be greater than zero")

// Scale is the SCALE constant from §4.4's effective-score formula.
const Scale = 14.0

// Doc is one candidate inserted into the collector.
type Doc struct {
	BucketKey uint64
	ID        uint64
	Segment   uint32
	Score     float64

	// Penalty traits: true when this doc repeats a trait already seen
	// for its bucket, composed multiplicatively into the insertion-time
	// penalty.
	RepeatedSite          bool
	RepeatedTitle         bool
	RepeatedURL           bool
	RepeatedURLWithoutTLD bool
}

// Config tunes the per-bucket cap and insertion-time penalties.
type Config struct {
	TopN                 int
	SitePenalty           float64
	TitlePenalty          float64
	URLPenalty            float64
	URLWithoutTLDPenalty float64
}

// bucket holds every doc ever inserted for a key, sorted descending by
// raw score, plus a cursor marking how many have already been
// harvested. The cursor — not physical removal — is what lets a
// previously-harvested bucket's next doc pick up the rank (k) it would
// have held in the bucket's full, final sorted order, matching §4.4's
// "k-th best doc in a bucket" rather than renumbering survivors.
type bucket struct {
	key    uint64
	docs   []Doc
	cursor int
}

func (b *bucket) insert(d Doc, cap int) {
	idx := sort.Search(len(b.docs), func(i int) bool { return b.docs[i].Score < d.Score })
	b.docs = append(b.docs, Doc{})
	copy(b.docs[idx+1:], b.docs[idx:])
	b.docs[idx] = d

	if len(b.docs) > cap {
		b.docs = b.docs[:cap]
	}
}

func (b *bucket) exhausted() bool { return b.cursor >= len(b.docs) }

// headDoc returns the bucket's next-to-harvest doc and its rank.
func (b *bucket) headDoc() (Doc, int) {
	return b.docs[b.cursor], b.cursor
}

// Collector is the bucketed top-K collector. It must not be copied
// after first use.
type Collector struct {
	cfg     Config
	buckets map[uint64]*bucket
}

// New constructs a Collector; capacity 0 is rejected at construction.
func New(cfg Config) (*Collector, error) {
	if cfg.TopN <= 0 {
		return nil, ErrZeroCapacity
	}
	if cfg.SitePenalty == 0 {
		cfg.SitePenalty = 1.0
	}
	if cfg.TitlePenalty == 0 {
		cfg.TitlePenalty = 1.0
	}
	if cfg.URLPenalty == 0 {
		cfg.URLPenalty = 1.0
	}
	if cfg.URLWithoutTLDPenalty == 0 {
		cfg.URLWithoutTLDPenalty = 1.0
	}
	return &Collector{cfg: cfg, buckets: make(map[uint64]*bucket)}, nil
}

// Insert places doc into its bucket, evicting the bucket's worst entry
// if it is already at the per-bucket cap, and evicting the globally
// worst bucket if inserting doc created a new bucket and the bucket
// count now exceeds top_n+1.
func (c *Collector) Insert(doc Doc) {
	b, exists := c.buckets[doc.BucketKey]
	if !exists {
		b = &bucket{key: doc.BucketKey}
		c.buckets[doc.BucketKey] = b
	}
	b.insert(doc, c.cfg.TopN)

	if !exists && len(c.buckets) > c.cfg.TopN+1 {
		c.evictWorstBucket()
	}
}

func (c *Collector) evictWorstBucket() {
	var worstKey uint64
	worstScore := 0.0
	first := true

	for key, b := range c.buckets {
		if b.exhausted() {
			continue
		}
		head, _ := b.headDoc()
		if first || head.Score < worstScore {
			worstScore = head.Score
			worstKey = key
			first = false
		}
	}

	if !first {
		delete(c.buckets, worstKey)
	}
}

// effectiveScore applies the §4.4 rank tweak and the configured
// multiplicative penalties for doc at rank k within its bucket.
func (c *Collector) effectiveScore(doc Doc, k int) float64 {
	score := doc.Score * Scale / (float64(k) + Scale)

	if doc.RepeatedSite {
		score *= c.cfg.SitePenalty
	}
	if doc.RepeatedTitle {
		score *= c.cfg.TitlePenalty
	}
	if doc.RepeatedURL {
		score *= c.cfg.URLPenalty
	}
	if doc.RepeatedURLWithoutTLD {
		score *= c.cfg.URLWithoutTLDPenalty
	}

	return score
}

// Harvested is one output row: the original doc plus its computed
// effective score.
type Harvested struct {
	Doc            Doc
	EffectiveScore float64
}

// headEntry is one bucket's current best unharvested doc, ordered in
// the bucket-head heap by effective score with a deterministic
// tie-break on (score, bucket_id, segment, doc_id).
type headEntry struct {
	bucketKey uint64
	doc       Doc
	rank      int
	effScore  float64
}

type headHeap []headEntry

func (h headHeap) Len() int { return len(h) }
func (h headHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.effScore != b.effScore {
		return a.effScore > b.effScore
	}
	if a.bucketKey != b.bucketKey {
		return a.bucketKey < b.bucketKey
	}
	if a.doc.Segment != b.doc.Segment {
		return a.doc.Segment < b.doc.Segment
	}
	return a.doc.ID < b.doc.ID
}
func (h headHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *headHeap) Push(x any)        { *h = append(*h, x.(headEntry)) }
func (h *headHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Harvest pops bucket heads by effective score, stopping at top_n.
func (c *Collector) Harvest() []Harvested {
	h := make(headHeap, 0, len(c.buckets))
	for key, b := range c.buckets {
		if b.exhausted() {
			continue
		}
		doc, rank := b.headDoc()
		h = append(h, headEntry{bucketKey: key, doc: doc, rank: rank, effScore: c.effectiveScore(doc, rank)})
	}
	heap.Init(&h)

	out := make([]Harvested, 0, c.cfg.TopN)
	for len(out) < c.cfg.TopN && h.Len() > 0 {
		top := heap.Pop(&h).(headEntry)
		out = append(out, Harvested{Doc: top.doc, EffectiveScore: top.effScore})

		b := c.buckets[top.bucketKey]
		b.cursor++
		if !b.exhausted() {
			doc, rank := b.headDoc()
			heap.Push(&h, headEntry{bucketKey: top.bucketKey, doc: doc, rank: rank, effScore: c.effectiveScore(doc, rank)})
		}
	}

	return out
}
