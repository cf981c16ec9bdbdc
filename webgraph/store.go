package webgraph

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Store is the arena-style segment registry described in the design
// notes: segments own their adjacency maps by value, and every other
// component addresses them by SegmentID rather than holding a direct
// reference, avoiding cyclic cross-references between graph handles.
type Store struct {
	mu       sync.RWMutex
	folder   string
	segments map[uuid.UUID]*StoredSegment
	order    []uuid.UUID
}

// NewStore opens an empty segment registry rooted at folder.
func NewStore(folder string) *Store {
	return &Store{folder: folder, segments: make(map[uuid.UUID]*StoredSegment)}
}

// Add registers a freshly committed segment.
func (s *Store) Add(seg *StoredSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.id] = seg
	s.order = append(s.order, seg.id)
}

// Remove drops a segment from the registry; callers delete its on-disk
// files only after a successful merge replaces it (§4.6 invariants).
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.segments, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Segments returns every registered segment in registration order.
func (s *Store) Segments() []*StoredSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*StoredSegment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.segments[id])
	}
	return out
}

// OutgoingEdges collects node's outgoing edges across every registered
// segment.
func (s *Store) OutgoingEdges(node NodeID, loadLabel bool) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, id := range s.order {
		out = append(out, s.segments[id].OutgoingEdges(node, loadLabel)...)
	}
	return out
}

// IngoingEdges collects node's incoming edges across every registered
// segment.
func (s *Store) IngoingEdges(node NodeID, loadLabel bool) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, id := range s.order {
		out = append(out, s.segments[id].IngoingEdges(node, loadLabel)...)
	}
	return out
}

// MergeAll merges every registered segment into one, commits it, swaps
// it in for the inputs, and reports the new segment's id. The merged
// segment's directory lives alongside the originals until the caller
// (who holds the only other references) confirms it is safe to delete
// the stale directories.
func (s *Store) MergeAll() (uuid.UUID, error) {
	segs := s.Segments()
	if len(segs) == 0 {
		return uuid.UUID{}, fmt.Errorf("webgraph: MergeAll on empty store")
	}

	live := Merge(segs)
	merged, err := Commit(live, s.folder)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("webgraph: merge commit: %w", err)
	}

	s.mu.Lock()
	for _, seg := range segs {
		delete(s.segments, seg.id)
	}
	s.order = s.order[:0]
	s.segments[merged.id] = merged
	s.order = append(s.order, merged.id)
	s.mu.Unlock()

	return merged.id, nil
}
