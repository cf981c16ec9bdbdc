// Package ampcdht implements the Raft-backed distributed key-value
// store of §4.8: a multi-table store with linearizable single-key
// writes, upsert-with-named-reducer, snapshots, and learner/voter
// membership, built on hashicorp/raft.
package ampcdht

import (
	"errors"
	"fmt"
)

var (
	ErrTableNotFound  = errors.New("ampcdht: table not found")
	ErrTableExists    = errors.New("ampcdht: table already exists")
	ErrNotLeader      = errors.New("ampcdht: not the leader")
	ErrUnreachable    = errors.New("ampcdht: peer unreachable")
	ErrUnknownReducer = errors.New("ampcdht: unknown reducer")
)

// ForwardToLeader is returned by a follower when it knows the current
// leader's address, letting RemoteClient redirect without a blind retry.
type ForwardToLeader struct {
	LeaderAddr string
}

func (e *ForwardToLeader) Error() string {
	return fmt.Sprintf("ampcdht: not leader, forward to %s", e.LeaderAddr)
}

// Reducer is the closed set of named upsert-merge functions (§4.8);
// named rather than dyn-dispatched so it survives a Raft log entry.
type Reducer string

const (
	ReducerHyperLogLog64Upsert Reducer = "hll64_upsert"
	ReducerF64Add              Reducer = "f64_add"
	ReducerBloomUnion          Reducer = "bloom_union"
	ReducerLastWriteWins       Reducer = "last_write_wins"
	// ReducerBoolOr ORs single-byte (0/1) operands, giving a linearizable
	// "set true at most once, checked via CAS" primitive for flags like
	// the centrality job's round_had_changes (§9 redesign note).
	ReducerBoolOr Reducer = "bool_or"
)

// Reduce applies a named reducer to (old, new); missing old is an
// insert. It is exported so non-Raft callers (in-memory test doubles
// for ampc.KV, e.g.) can reuse the identical reducer semantics.
func Reduce(r Reducer, old []byte, value []byte) ([]byte, bool, error) {
	return reduce(r, old, value)
}

func reduce(r Reducer, old []byte, value []byte) ([]byte, bool, error) {
	if old == nil {
		return value, true, nil
	}
	switch r {
	case ReducerHyperLogLog64Upsert:
		return reduceHLL(old, value)
	case ReducerF64Add:
		return reduceF64Add(old, value)
	case ReducerBloomUnion:
		return reduceBloomUnion(old, value)
	case ReducerBoolOr:
		return reduceBoolOr(old, value)
	case ReducerLastWriteWins:
		if bytesEqual(old, value) {
			return old, false, nil
		}
		return value, true, nil
	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownReducer, r)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RequestKind enumerates the Raft log entry payload types (§4.8 surface).
type RequestKind int

const (
	KindSet RequestKind = iota
	KindBatchSet
	KindUpsert
	KindBatchUpsert
	KindCreateTable
	KindDropTable
	KindCloneTable
)

// KV is a single key/value pair, used by BatchSet/BatchUpsert.
type KV struct {
	Key   []byte
	Value []byte
}

// Request is the tagged union applied to the state machine through the
// Raft log. Exactly one of the payload fields is meaningful, selected
// by Kind; this shape (rather than a Go interface) keeps Requests
// trivially gob-encodable for the log.
type Request struct {
	Kind RequestKind

	Table      string
	Key        []byte
	Value      []byte
	Reducer    Reducer
	Batch      []KV
	CloneFrom  string
	CloneTo    string
}

// Response mirrors a Request's result.
type Response struct {
	Err     string
	Outcome UpsertOutcome
	Value   []byte
	Found   bool
	Tables  []string
}

// UpsertOutcome is the three-way result of an upsert (§3).
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota
	OutcomeMerged
	OutcomeNoChange
)
