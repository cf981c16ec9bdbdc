package webgraph

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
)

// smallEdge is the full-adjacency projection that loses only the label
// (§3 invariant ii).
type smallEdge struct {
	To       NodeID
	RelFlags RelFlags
}

// LiveSegment is the mutable, single-writer segment new edges are
// inserted into before commit (§4.6, §5 "mutation-owned by a single
// writer"). Internally it mirrors the teacher's BTreeMap-backed state
// with a Go map of sorted slices, since Go has no ordered map.
type LiveSegment struct {
	forward map[NodeID][]Edge
	reverse map[NodeID][]Edge
}

// NewLiveSegment constructs an empty live segment.
func NewLiveSegment() *LiveSegment {
	return &LiveSegment{
		forward: make(map[NodeID][]Edge),
		reverse: make(map[NodeID][]Edge),
	}
}

// Insert appends an edge to the live segment's forward and reverse
// adjacencies (§4.6 insert).
func (s *LiveSegment) Insert(from, to NodeID, label Label, rel RelFlags) {
	e := Edge{From: from, To: to, Label: label, RelFlags: rel}
	s.forward[from] = append(s.forward[from], e)
	s.reverse[to] = append(s.reverse[to], e)
}

// StoredSegment is an immutable, committed segment: four maps (full and
// small projections, forward and reverse), keyed by a fresh UUID
// (§3 invariant iii).
type StoredSegment struct {
	id uuid.UUID

	fullForward map[NodeID][]Edge
	fullReverse map[NodeID][]Edge
	smallForward map[NodeID][]smallEdge
	smallReverse map[NodeID][]smallEdge

	dir string
}

// UUID returns the segment's fresh UUID.
func (s *StoredSegment) UUID() uuid.UUID { return s.id }

// sortEdges orders a forward-adjacency bucket by its neighbor (to).
func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
}

// sortReverseEdges orders a reverse-adjacency bucket by its neighbor
// (from); every edge in a reverse bucket shares the same To, so To
// itself carries no ordering information.
func sortReverseEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].From < edges[j].From })
}

// neighbor returns the "other side" of e relative to the adjacency
// direction: To for a forward bucket, From for a reverse bucket.
func neighbor(e Edge, forward bool) NodeID {
	if forward {
		return e.To
	}
	return e.From
}

func projectSmall(full map[NodeID][]Edge, forward bool) map[NodeID][]smallEdge {
	small := make(map[NodeID][]smallEdge, len(full))
	for node, edges := range full {
		proj := make([]smallEdge, len(edges))
		for i, e := range edges {
			proj[i] = smallEdge{To: neighbor(e, forward), RelFlags: e.RelFlags}
		}
		small[node] = proj
	}
	return small
}

// Commit materializes the live segment's adjacencies into the four
// on-disk bolt-backed stores under folder and returns the immutable
// StoredSegment (§4.6 commit). boltdb is already pulled in transitively
// by raft-boltdb (§4.8); reusing it here avoids adding a second
// embedded-KV dependency for the identical "sorted key/value file"
// problem.
func Commit(live *LiveSegment, folder string) (*StoredSegment, error) {
	id := uuid.New()
	dir := filepath.Join(folder, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("webgraph: commit mkdir: %w", err)
	}

	for node := range live.forward {
		sortEdges(live.forward[node])
	}
	for node := range live.reverse {
		sortReverseEdges(live.reverse[node])
	}

	seg := &StoredSegment{
		id:           id,
		fullForward:  live.forward,
		fullReverse:  live.reverse,
		smallForward: projectSmall(live.forward, true),
		smallReverse: projectSmall(live.reverse, false),
		dir:          dir,
	}

	stores := map[string]map[NodeID][]Edge{
		"full_adjacency":          seg.fullForward,
		"full_reversed_adjacency": seg.fullReverse,
	}
	for name, m := range stores {
		if err := writeFullBucket(filepath.Join(dir, name+".bolt"), m); err != nil {
			return nil, err
		}
	}
	smallStores := map[string]map[NodeID][]smallEdge{
		"small_adjacency":          seg.smallForward,
		"small_reversed_adjacency": seg.smallReverse,
	}
	for name, m := range smallStores {
		if err := writeSmallBucket(filepath.Join(dir, name+".bolt"), m); err != nil {
			return nil, err
		}
	}

	return seg, nil
}

var bucketName = []byte("adjacency")

func nodeKey(n NodeID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func writeFullBucket(path string, m map[NodeID][]Edge) error {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return fmt.Errorf("webgraph: open %s: %w", path, err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		for node, edges := range m {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(edges); err != nil {
				return fmt.Errorf("webgraph: encode edges: %w", err)
			}
			if err := b.Put(nodeKey(node), buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeSmallBucket(path string, m map[NodeID][]smallEdge) error {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return fmt.Errorf("webgraph: open %s: %w", path, err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		for node, edges := range m {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(edges); err != nil {
				return fmt.Errorf("webgraph: encode small edges: %w", err)
			}
			if err := b.Put(nodeKey(node), buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

// OutgoingEdges returns node's outgoing edges from the small or full
// forward adjacency depending on loadLabel (§4.6).
func (s *StoredSegment) OutgoingEdges(node NodeID, loadLabel bool) []Edge {
	return edgesFor(s.fullForward, s.smallForward, node, loadLabel)
}

// IngoingEdges returns node's incoming edges from the small or full
// reverse adjacency depending on loadLabel.
func (s *StoredSegment) IngoingEdges(node NodeID, loadLabel bool) []Edge {
	return edgesFor(s.fullReverse, s.smallReverse, node, loadLabel)
}

func edgesFor(full map[NodeID][]Edge, small map[NodeID][]smallEdge, node NodeID, loadLabel bool) []Edge {
	if loadLabel {
		return full[node]
	}
	projected := small[node]
	out := make([]Edge, len(projected))
	for i, e := range projected {
		out[i] = Edge{To: e.To, RelFlags: e.RelFlags, Label: Label{State: LoadedNotYet}}
	}
	return out
}

// EstimateNumNodes uses the small-forward index length as a proxy for
// the segment's node count (§4.6).
func (s *StoredSegment) EstimateNumNodes() int {
	return len(s.smallForward)
}
