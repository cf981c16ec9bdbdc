// Package lm implements the stupid-backoff n-gram language model of
// §4.10: two FST-backed frequency tables (forward and rotated n-grams)
// plus per-order totals, scored with a recursive backoff strategy.
package lm

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/vellum"
)

const joinSep = " "

// Strategy picks which word(s) to drop when backing off from an
// n-gram that has no observed continuation (§4.10).
type Strategy int

const (
	LeftToRight Strategy = iota
	RightToLeft
	IntoMiddle
)

// NextWords returns the (n-1)-gram stract backs off to under strat.
// IntoMiddle alternates which end it trims, starting from the right,
// so repeated backoff calls on the same words slice converge toward
// the center rather than always stripping one end.
func (s Strategy) NextWords(words []string, step int) []string {
	if len(words) <= 1 {
		return nil
	}
	switch s {
	case LeftToRight:
		return words[1:]
	case RightToLeft:
		return words[:len(words)-1]
	case IntoMiddle:
		if step%2 == 0 {
			return words[:len(words)-1]
		}
		return words[1:]
	default:
		return words[1:]
	}
}

// Model is a stupid-backoff n-gram model over two FSTs: ngrams (the
// space-joined n-gram string, in natural word order) and
// rotated_ngrams (first word rotated to the end, enabling middle-
// context lookups for IntoMiddle backoff) (§4.10).
type Model struct {
	ngrams        *vellum.FST
	rotated       *vellum.FST
	nCounts       map[int]uint64 // per-order total occurrence counts
	pendingNgram  map[string]uint64
	pendingRotate map[string]uint64
	maxOrder      int
	dir           string
}

// NewModel creates an empty, unpersisted model ready to accumulate
// n-grams via Add before a Commit.
func NewModel(dir string, maxOrder int) *Model {
	return &Model{
		nCounts:       make(map[int]uint64),
		pendingNgram:  make(map[string]uint64),
		pendingRotate: make(map[string]uint64),
		maxOrder:      maxOrder,
		dir:           dir,
	}
}

func rotate(words []string) []string {
	if len(words) < 2 {
		return words
	}
	out := make([]string, 0, len(words))
	out = append(out, words[1:]...)
	out = append(out, words[0])
	return out
}

// Add records one occurrence of an n-gram (a tokenized word sequence
// of length <= maxOrder).
func (m *Model) Add(words []string, count uint64) {
	if len(words) == 0 || len(words) > m.maxOrder {
		return
	}
	key := strings.Join(words, joinSep)
	m.pendingNgram[key] += count
	rkey := strings.Join(rotate(words), joinSep)
	m.pendingRotate[rkey] += count
	m.nCounts[len(words)] += count
}

// Commit flushes the pending n-gram counts into the two on-disk FSTs,
// merging with whatever was previously loaded (§4.10 commit).
func (m *Model) Commit() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("lm: mkdir %s: %w", m.dir, err)
	}

	merged, err := mergeCounts(m.ngrams, m.pendingNgram)
	if err != nil {
		return err
	}
	if m.ngrams, err = buildFST(filepath.Join(m.dir, "ngrams.fst"), merged); err != nil {
		return err
	}

	rmerged, err := mergeCounts(m.rotated, m.pendingRotate)
	if err != nil {
		return err
	}
	if m.rotated, err = buildFST(filepath.Join(m.dir, "rotated_ngrams.fst"), rmerged); err != nil {
		return err
	}

	if err := writeCounts(filepath.Join(m.dir, "n_counts.txt"), m.nCounts); err != nil {
		return err
	}

	m.pendingNgram = make(map[string]uint64)
	m.pendingRotate = make(map[string]uint64)
	return nil
}

func mergeCounts(fst *vellum.FST, pending map[string]uint64) (map[string]uint64, error) {
	out := make(map[string]uint64, len(pending))
	if fst != nil {
		it, err := fst.Iterator(nil, nil)
		for err == nil {
			k, v := it.Current()
			out[string(k)] += v
			err = it.Next()
		}
		if err != nil && err != vellum.ErrIteratorDone {
			return nil, fmt.Errorf("lm: iterate existing fst: %w", err)
		}
	}
	for k, v := range pending {
		out[k] += v
	}
	return out, nil
}

func buildFST(path string, counts map[string]uint64) (*vellum.FST, error) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, fmt.Errorf("lm: new fst builder: %w", err)
	}
	for _, k := range keys {
		if err := builder.Insert([]byte(k), counts[k]); err != nil {
			return nil, fmt.Errorf("lm: insert %q: %w", k, err)
		}
	}
	if err := builder.Close(); err != nil {
		return nil, fmt.Errorf("lm: close fst builder: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("lm: write fst: %w", err)
	}
	return vellum.Open(path)
}

func writeCounts(path string, counts map[int]uint64) error {
	var b strings.Builder
	orders := make([]int, 0, len(counts))
	for k := range counts {
		orders = append(orders, k)
	}
	sort.Ints(orders)
	for _, k := range orders {
		fmt.Fprintf(&b, "%d %d\n", k, counts[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// Load opens a previously committed model directory.
func Load(dir string, maxOrder int) (*Model, error) {
	m := NewModel(dir, maxOrder)

	if f, err := vellum.Open(filepath.Join(dir, "ngrams.fst")); err == nil {
		m.ngrams = f
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("lm: open ngrams fst: %w", err)
	}
	if f, err := vellum.Open(filepath.Join(dir, "rotated_ngrams.fst")); err == nil {
		m.rotated = f
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("lm: open rotated fst: %w", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "n_counts.txt"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("lm: read n_counts: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		k, err1 := strconv.Atoi(parts[0])
		v, err2 := strconv.ParseUint(parts[1], 10, 64)
		if err1 == nil && err2 == nil {
			m.nCounts[k] = v
		}
	}
	return m, nil
}

func (m *Model) freq(words []string) (uint64, bool) {
	if m.ngrams == nil || len(words) == 0 {
		return 0, false
	}
	v, ok, err := m.ngrams.Get([]byte(strings.Join(words, joinSep)))
	if err != nil || !ok {
		return 0, false
	}
	return v, true
}

func (m *Model) freqRotated(words []string) (uint64, bool) {
	if m.rotated == nil || len(words) == 0 {
		return 0, false
	}
	v, ok, err := m.rotated.Get([]byte(strings.Join(rotate(words), joinSep)))
	if err != nil || !ok {
		return 0, false
	}
	return v, true
}

// LogProb scores words under the stupid-backoff strategy strat
// (§4.10 log_prob). math.Inf(-1) reports a fully unseen sequence with
// no backoff floor left (empty words).
func (m *Model) LogProb(words []string, strat Strategy) float64 {
	return m.logProb(words, strat, 0)
}

func (m *Model) logProb(words []string, strat Strategy, step int) float64 {
	if len(words) == 0 {
		return math.Inf(-1)
	}

	freq, found := m.freq(words)
	if found {
		next := strat.NextWords(words, step)
		if nextFreq, ok := m.freq(next); ok && len(next) > 0 {
			return math.Log(float64(freq)) - math.Log(float64(nextFreq))
		}
		if total, ok := m.nCounts[len(words)-1]; ok && total > 0 {
			return math.Log(float64(freq)) - math.Log(float64(total))
		}
		return math.Log(float64(freq))
	}

	// Also probe the rotated table so middle-context lookups (e.g.
	// IntoMiddle backing a 3-gram down to its edges) see the same
	// occurrences as a forward lookup would for the rotated form.
	if rfreq, ok := m.freqRotated(words); ok {
		return math.Log(float64(rfreq)) + math.Log(0.4)
	}

	next := strat.NextWords(words, step)
	if len(next) == 0 {
		return math.Log(0.4) + math.Inf(-1)
	}
	return math.Log(0.4) + m.logProb(next, strat, step+1)
}

// Merge unions two models' FSTs and sums n_counts elementwise (§4.10
// merge). Both FSTs are read into one in-memory count map and a new FST
// is built from it; the merge is not streamed.
func Merge(dir string, a, b *Model) (*Model, error) {
	out := NewModel(dir, maxInt(a.maxOrder, b.maxOrder))

	ngramCounts, err := mergeFSTs(a.ngrams, b.ngrams)
	if err != nil {
		return nil, err
	}
	if out.ngrams, err = buildFST(filepath.Join(dir, "ngrams.fst"), ngramCounts); err != nil {
		return nil, err
	}

	rotatedCounts, err := mergeFSTs(a.rotated, b.rotated)
	if err != nil {
		return nil, err
	}
	if out.rotated, err = buildFST(filepath.Join(dir, "rotated_ngrams.fst"), rotatedCounts); err != nil {
		return nil, err
	}

	for k, v := range a.nCounts {
		out.nCounts[k] += v
	}
	for k, v := range b.nCounts {
		out.nCounts[k] += v
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lm: mkdir %s: %w", dir, err)
	}
	if err := writeCounts(filepath.Join(dir, "n_counts.txt"), out.nCounts); err != nil {
		return nil, err
	}
	return out, nil
}

func mergeFSTs(a, b *vellum.FST) (map[string]uint64, error) {
	out := make(map[string]uint64)
	for _, f := range []*vellum.FST{a, b} {
		if f == nil {
			continue
		}
		it, err := f.Iterator(nil, nil)
		for err == nil {
			k, v := it.Current()
			out[string(k)] += v
			err = it.Next()
		}
		if err != nil && err != vellum.ErrIteratorDone {
			return nil, fmt.Errorf("lm: merge iterate: %w", err)
		}
	}
	return out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Close releases both FSTs' mmaps.
func (m *Model) Close() error {
	var firstErr error
	if m.ngrams != nil {
		if err := m.ngrams.Close(); err != nil {
			firstErr = err
		}
	}
	if m.rotated != nil {
		if err := m.rotated.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
