package ranking

import "math"

// Signal is the closed taxonomy of §3: each variant either maps 1:1 to
// a column field (computable pre-search) or needs search-time context.
type Signal int

const (
	SignalBM25 Signal = iota
	SignalHostCentrality
	SignalPageCentrality
	SignalIsHomepage
	SignalFetchTimeMs
	SignalUpdateTimestamp
	SignalTrackerScore
	SignalRegion
	SignalPersonalCentrality
	SignalCrawlStability
	SignalTopicCentrality
	SignalQueryCentrality
	SignalInboundSimilarity
)

func (s Signal) String() string {
	names := [...]string{
		"Bm25", "HostCentrality", "PageCentrality", "IsHomepage",
		"FetchTimeMs", "UpdateTimestamp", "TrackerScore", "Region",
		"PersonalCentrality", "CrawlStability", "TopicCentrality",
		"QueryCentrality", "InboundSimilarity",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "Unknown"
	}
	return names[s]
}

// FloatScaling is the factor numeric text signals are multiplied by
// before storage as u64 column fields, and divided by again when read.
const FloatScaling = 1000.0

// fetchTimeLookup precomputes 1/(ms+1) for ms in [0, 1000).
var fetchTimeLookup = buildFetchTimeLookup()

func buildFetchTimeLookup() [1000]float64 {
	var t [1000]float64
	for ms := 0; ms < 1000; ms++ {
		t[ms] = 1.0 / float64(ms+1)
	}
	return t
}

// updateTimestampLookup precomputes 1/log2(hours+2), which keeps hour 0
// finite, for three years of
// hours (26280 ≈ 3·365·24).
var updateTimestampLookup = buildUpdateTimestampLookup()

const threeYearsHours = 3 * 365 * 24

func buildUpdateTimestampLookup() []float64 {
	t := make([]float64, threeYearsHours)
	for h := 0; h < threeYearsHours; h++ {
		t[h] = 1.0 / math.Log2(float64(h+1)+1)
	}
	return t
}

// RegionScorer supplies the per-region popularity component of the
// Region signal value function; its lifecycle is constructed once at
// startup and handed to every searcher instance (§9's "global state").
type RegionScorer interface {
	Score(regionID uint64) float64
}

// DocContext carries the per-document column-field inputs a signal's
// value function needs. Centrality fields arrive pre-scaled by
// FloatScaling and are divided back out here.
type DocContext struct {
	HostCentrality      uint64
	PageCentrality      uint64
	PersonalCentrality  uint64
	TopicCentrality     uint64
	QueryCentrality     uint64
	InboundSimilarity   uint64
	CrawlStability      uint64
	IsHomepage          bool
	FetchTimeMs         uint64
	HoursSinceUpdate    uint64
	TrackerCount        uint64
	WebpageRegion       uint64
	SelectedRegion      uint64
}

// Value computes the value function for signal given doc and an
// optional region scorer; missing context (nil scorer when Region is
// requested) contributes 0 rather than erroring, per §4.5.
func Value(signal Signal, doc DocContext, regions RegionScorer) float64 {
	switch signal {
	case SignalFetchTimeMs:
		if doc.FetchTimeMs < uint64(len(fetchTimeLookup)) {
			return fetchTimeLookup[doc.FetchTimeMs]
		}
		return 0
	case SignalUpdateTimestamp:
		if doc.HoursSinceUpdate < uint64(len(updateTimestampLookup)) {
			return updateTimestampLookup[doc.HoursSinceUpdate]
		}
		return 0
	case SignalTrackerScore:
		return 1.0 / float64(doc.TrackerCount+1)
	case SignalRegion:
		var base float64
		if doc.WebpageRegion == doc.SelectedRegion {
			base = 50
		}
		if regions == nil {
			return base
		}
		return base + regions.Score(doc.WebpageRegion)
	case SignalHostCentrality:
		return float64(doc.HostCentrality) / FloatScaling
	case SignalPageCentrality:
		return float64(doc.PageCentrality) / FloatScaling
	case SignalPersonalCentrality:
		return float64(doc.PersonalCentrality) / FloatScaling
	case SignalTopicCentrality:
		return float64(doc.TopicCentrality) / FloatScaling
	case SignalQueryCentrality:
		return float64(doc.QueryCentrality) / FloatScaling
	case SignalInboundSimilarity:
		return float64(doc.InboundSimilarity) / FloatScaling
	case SignalCrawlStability:
		return float64(doc.CrawlStability) / FloatScaling
	case SignalIsHomepage:
		if doc.IsHomepage {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Score is the aggregated per-document result: the raw BM25+proximity
// value plus the weighted sum of every other signal.
type Score struct {
	BM25  float64
	Total float64
}

// Aggregator sums coefficient(signal) × value(signal, doc) across every
// configured signal, per §4.5's contract.
type Aggregator struct {
	Coefficients map[Signal]float64
	Regions      RegionScorer
}

// Aggregate combines bm25 with every weighted non-BM25 signal.
func (a Aggregator) Aggregate(bm25 float64, doc DocContext) Score {
	total := a.Coefficients[SignalBM25] * bm25
	if a.Coefficients[SignalBM25] == 0 {
		total = bm25
	}

	for signal, coeff := range a.Coefficients {
		if signal == SignalBM25 || coeff == 0 {
			continue
		}
		total += coeff * Value(signal, doc, a.Regions)
	}

	return Score{BM25: bm25, Total: total}
}
