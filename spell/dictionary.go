// Package spell implements the FST-backed term dictionary of §4.10: a
// write-ahead collection of vellum FSTs with exact and Levenshtein
// lookup, backed by the meta.json + <uuid>.dict layout of §6. It has no
// prefix lookup and no merge of dictionary files.
package spell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"
	"github.com/google/uuid"
)

// meta.json holds the set of active dictionary file UUIDs (§6).
type meta struct {
	Active []string `json:"active"`
}

// Dict is the write-ahead FST term dictionary. New terms buffer in an
// in-memory sorted map; Commit serializes them into a fresh FST file.
type Dict struct {
	mu       sync.RWMutex
	dir      string
	pending  map[string]uint64
	fsts     map[uuid.UUID]*vellum.FST
	order    []uuid.UUID
}

// Open loads every active FST listed in dir/meta.json.
func Open(dir string) (*Dict, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spell: mkdir %s: %w", dir, err)
	}
	d := &Dict{dir: dir, pending: make(map[string]uint64), fsts: make(map[uuid.UUID]*vellum.FST)}

	m, err := readMeta(dir)
	if err != nil {
		return nil, err
	}
	for _, s := range m.Active {
		id, err := uuid.Parse(s)
		if err != nil {
			continue // quarantined: malformed meta entry, skip rather than abort (§7 data corruption policy)
		}
		f, err := vellum.Open(filepath.Join(dir, id.String()+".dict"))
		if err != nil {
			continue // quarantined: the on-disk file is left for operator inspection
		}
		d.fsts[id] = f
		d.order = append(d.order, id)
	}
	return d, nil
}

func readMeta(dir string) (meta, error) {
	path := filepath.Join(dir, "meta.json")
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return meta{}, nil
	}
	if err != nil {
		return meta{}, fmt.Errorf("spell: read meta: %w", err)
	}
	var m meta
	if err := json.Unmarshal(b, &m); err != nil {
		return meta{}, fmt.Errorf("spell: parse meta: %w", err)
	}
	return m, nil
}

func writeMeta(dir string, ids []uuid.UUID) error {
	m := meta{Active: make([]string, len(ids))}
	for i, id := range ids {
		m.Active[i] = id.String()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("spell: marshal meta: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
}

// Acceptable reports whether term is accepted for insertion (§4.10):
// length in [2,100], no spaces, punctuation fraction <= 0.5, and
// non-alphabetic fraction <= 0.25.
func Acceptable(term string) bool {
	n := len([]rune(term))
	if n < 2 || n > 100 {
		return false
	}
	if strings.ContainsAny(term, " \t\n\r") {
		return false
	}

	var punct, nonAlpha int
	for _, r := range term {
		if unicode.IsPunct(r) {
			punct++
		}
		if !unicode.IsLetter(r) {
			nonAlpha++
		}
	}
	if float64(punct)/float64(n) > 0.5 {
		return false
	}
	if float64(nonAlpha)/float64(n) > 0.25 {
		return false
	}
	return true
}

// Insert buffers term (adding to any existing frequency) if Acceptable,
// silently dropping unacceptable terms.
func (d *Dict) Insert(term string, freq uint64) {
	if !Acceptable(term) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[term] += freq
}

// Commit serializes the pending sorted map into a new FST file with a
// fresh UUID and registers it as active (§4.10 commit).
func (d *Dict) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return nil
	}

	terms := make([]string, 0, len(d.pending))
	for t := range d.pending {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	id := uuid.New()
	path := filepath.Join(d.dir, id.String()+".dict")
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return fmt.Errorf("spell: new fst builder: %w", err)
	}
	for _, t := range terms {
		if err := builder.Insert([]byte(t), d.pending[t]); err != nil {
			return fmt.Errorf("spell: insert %q: %w", t, err)
		}
	}
	if err := builder.Close(); err != nil {
		return fmt.Errorf("spell: close fst builder: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("spell: write fst file: %w", err)
	}

	f, err := vellum.Open(path)
	if err != nil {
		return fmt.Errorf("spell: reopen committed fst: %w", err)
	}

	d.fsts[id] = f
	d.order = append(d.order, id)
	d.pending = make(map[string]uint64)

	return writeMeta(d.dir, d.order)
}

// Freq sums term's frequency across every active FST (§4.10 queries).
func (d *Dict) Freq(term string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var total uint64
	key := []byte(term)
	for _, id := range d.order {
		if v, ok, err := d.fsts[id].Get(key); err == nil && ok {
			total += v
		}
	}
	if v, ok := d.pending[term]; ok {
		total += v
	}
	return total
}

// Match is one fuzzy-search hit.
type Match struct {
	Term string
	Freq uint64
}

// Search issues a Levenshtein automaton of edit distance maxEdit
// against every active FST and returns the union of matches
// (§4.10 "search(term, max_edit)").
func (d *Dict) Search(term string, maxEdit uint8) ([]Match, error) {
	lev, err := levenshtein.New(term, maxEdit)
	if err != nil {
		return nil, fmt.Errorf("spell: build levenshtein automaton: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	totals := make(map[string]uint64)
	for _, id := range d.order {
		it, err := d.fsts[id].Search(lev, nil, nil)
		for err == nil {
			k, v := it.Current()
			totals[string(k)] += v
			err = it.Next()
		}
		if err != nil && err != vellum.ErrIteratorDone {
			return nil, fmt.Errorf("spell: search fst: %w", err)
		}
	}

	out := make([]Match, 0, len(totals))
	for t, f := range totals {
		out = append(out, Match{Term: t, Freq: f})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Freq != out[j].Freq {
			return out[i].Freq > out[j].Freq
		}
		return out[i].Term < out[j].Term
	})
	return out, nil
}

// Close releases every open FST's mmap.
func (d *Dict) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, f := range d.fsts {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
