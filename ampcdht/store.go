package ampcdht

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/raft"
)

// Db is the in-memory state machine data: table name → key → value
// (§4.8 "mutates the in-memory Db"). Only the Raft apply goroutine
// holds the write lock (§5 "DHT tables hold an internal read/write
// lock; only the Raft apply thread holds the write side").
type Db struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

func newDb() *Db {
	return &Db{tables: make(map[string]map[string][]byte)}
}

func (d *Db) createTable(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[name]; ok {
		return ErrTableExists
	}
	d.tables[name] = make(map[string][]byte)
	return nil
}

func (d *Db) dropTable(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tables, name)
}

func (d *Db) cloneTable(from, to string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.tables[from]
	if !ok {
		return ErrTableNotFound
	}
	dst := make(map[string][]byte, len(src))
	for k, v := range src {
		cp := make([]byte, len(v))
		copy(cp, v)
		dst[k] = cp
	}
	d.tables[to] = dst
	return nil
}

func (d *Db) allTables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.tables))
	for name := range d.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (d *Db) get(table string, key []byte) ([]byte, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[table]
	if !ok {
		return nil, false, ErrTableNotFound
	}
	v, ok := t[string(key)]
	return v, ok, nil
}

func (d *Db) set(table string, key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	t[string(key)] = value
	return nil
}

func (d *Db) upsert(table string, key, value []byte, r Reducer) (UpsertOutcome, []byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[table]
	if !ok {
		return OutcomeNoChange, nil, ErrTableNotFound
	}
	old, existed := t[string(key)]
	merged, changed, err := reduce(r, old, value)
	if err != nil {
		return OutcomeNoChange, nil, err
	}
	t[string(key)] = merged
	switch {
	case !existed:
		return OutcomeInserted, merged, nil
	case changed:
		return OutcomeMerged, merged, nil
	default:
		return OutcomeNoChange, merged, nil
	}
}

// snapshotData is the gob-serializable form of Db used by Raft
// snapshots (§4.8 "Snapshots serialize the entire StateMachineData").
type snapshotData struct {
	Tables map[string]map[string][]byte
}

func (d *Db) snapshot() snapshotData {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]map[string][]byte, len(d.tables))
	for name, t := range d.tables {
		cp := make(map[string][]byte, len(t))
		for k, v := range t {
			cp[k] = v
		}
		out[name] = cp
	}
	return snapshotData{Tables: out}
}

func (d *Db) restore(data snapshotData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = data.Tables
	if d.tables == nil {
		d.tables = make(map[string]map[string][]byte)
	}
}

// FSM is the hashicorp/raft finite state machine wrapping Db. Applying
// a log entry mutates Db and records lastAppliedLog (§4.8).
type FSM struct {
	db            *Db
	lastAppliedMu sync.Mutex
	lastApplied   uint64
}

// NewFSM constructs an empty FSM.
func NewFSM() *FSM {
	return &FSM{db: newDb()}
}

// Apply decodes a Request from the log entry and applies it to Db.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var req Request
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&req); err != nil {
		return &Response{Err: fmt.Sprintf("ampcdht: decode log entry: %v", err)}
	}

	resp := f.applyRequest(req)

	f.lastAppliedMu.Lock()
	f.lastApplied = log.Index
	f.lastAppliedMu.Unlock()

	return resp
}

func (f *FSM) applyRequest(req Request) *Response {
	switch req.Kind {
	case KindCreateTable:
		if err := f.db.createTable(req.Table); err != nil {
			return &Response{Err: err.Error()}
		}
		return &Response{}
	case KindDropTable:
		f.db.dropTable(req.Table)
		return &Response{}
	case KindCloneTable:
		if err := f.db.cloneTable(req.CloneFrom, req.CloneTo); err != nil {
			return &Response{Err: err.Error()}
		}
		return &Response{}
	case KindSet:
		if err := f.db.set(req.Table, req.Key, req.Value); err != nil {
			return &Response{Err: err.Error()}
		}
		return &Response{}
	case KindBatchSet:
		for _, kv := range req.Batch {
			if err := f.db.set(req.Table, kv.Key, kv.Value); err != nil {
				return &Response{Err: err.Error()}
			}
		}
		return &Response{}
	case KindUpsert:
		outcome, value, err := f.db.upsert(req.Table, req.Key, req.Value, req.Reducer)
		if err != nil {
			return &Response{Err: err.Error()}
		}
		return &Response{Outcome: outcome, Value: value}
	case KindBatchUpsert:
		var last UpsertOutcome
		for _, kv := range req.Batch {
			outcome, _, err := f.db.upsert(req.Table, kv.Key, kv.Value, req.Reducer)
			if err != nil {
				return &Response{Err: err.Error()}
			}
			last = outcome
		}
		return &Response{Outcome: last}
	default:
		return &Response{Err: "ampcdht: unknown request kind"}
	}
}

// LastApplied returns the index of the most recently applied log entry.
func (f *FSM) LastApplied() uint64 {
	f.lastAppliedMu.Lock()
	defer f.lastAppliedMu.Unlock()
	return f.lastApplied
}

// AllTables lists every table currently present.
func (f *FSM) AllTables() []string { return f.db.allTables() }

// Get reads key from table without going through Raft (a possibly-stale
// local read; linearizable reads must go through the leader's Apply path).
func (f *FSM) Get(table string, key []byte) ([]byte, bool, error) {
	return f.db.get(table, key)
}

type fsmSnapshot struct {
	data snapshotData
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{data: f.db.snapshot()}, nil
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		enc := gob.NewEncoder(sink)
		return enc.Encode(s.data)
	}()
	if err != nil {
		sink.Cancel()
		return fmt.Errorf("ampcdht: persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var data snapshotData
	if err := gob.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("ampcdht: decode snapshot: %w", err)
	}
	f.db.restore(data)
	return nil
}
