package ampcdht

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	boltdb "github.com/hashicorp/raft-boltdb"
	"go.uber.org/zap"
)

// Config configures one Raft-backed DHT node (§4.8, mirrors the
// config.RaftConfig schema).
type Config struct {
	NodeID            string
	BindAddr          string
	DataDir           string
	Bootstrap         bool
	SnapshotInterval  time.Duration
	SnapshotThreshold uint64
	HeartbeatTimeout  time.Duration
	ElectionTimeout   time.Duration
}

// Node wraps a hashicorp/raft group over FSM, giving callers the
// Set/BatchSet/Upsert/BatchUpsert/CreateTable/DropTable/CloneTable/
// AllTables surface of §4.8.
type Node struct {
	cfg    Config
	raft   *raft.Raft
	fsm    *FSM
	trans  *raft.NetworkTransport
	logger *zap.Logger
}

// NewNode starts (or rejoins) a Raft group rooted at cfg.DataDir.
func NewNode(cfg Config, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ampcdht: mkdir data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.HeartbeatTimeout > 0 {
		raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	}
	if cfg.ElectionTimeout > 0 {
		raftCfg.ElectionTimeout = cfg.ElectionTimeout
	}
	if cfg.SnapshotInterval > 0 {
		raftCfg.SnapshotInterval = cfg.SnapshotInterval
	}
	if cfg.SnapshotThreshold > 0 {
		raftCfg.SnapshotThreshold = cfg.SnapshotThreshold
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("ampcdht: resolve bind addr: %w", err)
	}
	trans, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("ampcdht: tcp transport: %w", err)
	}

	snaps, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("ampcdht: snapshot store: %w", err)
	}

	logStore, err := boltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.bolt"))
	if err != nil {
		return nil, fmt.Errorf("ampcdht: log store: %w", err)
	}
	stableStore, err := boltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.bolt"))
	if err != nil {
		return nil, fmt.Errorf("ampcdht: stable store: %w", err)
	}

	fsm := NewFSM()
	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snaps, trans)
	if err != nil {
		return nil, fmt.Errorf("ampcdht: new raft: %w", err)
	}

	if cfg.Bootstrap {
		cfgFuture := raft.Configuration{
			Servers: []raft.Server{{
				ID:      raftCfg.LocalID,
				Address: trans.LocalAddr(),
			}},
		}
		r.BootstrapCluster(cfgFuture)
	}

	return &Node{cfg: cfg, raft: r, fsm: fsm, trans: trans, logger: logger}, nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// LeaderAddr returns the last known leader address, empty if unknown.
func (n *Node) LeaderAddr() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

func (n *Node) apply(req Request, timeout time.Duration) (*Response, error) {
	if !n.IsLeader() {
		if addr := n.LeaderAddr(); addr != "" {
			return nil, &ForwardToLeader{LeaderAddr: addr}
		}
		return nil, ErrNotLeader
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		return nil, fmt.Errorf("ampcdht: encode request: %w", err)
	}

	future := n.raft.Apply(buf.Bytes(), timeout)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("ampcdht: raft apply: %w", err)
	}

	resp, ok := future.Response().(*Response)
	if !ok {
		return nil, fmt.Errorf("ampcdht: unexpected apply response type")
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("ampcdht: %s", resp.Err)
	}
	return resp, nil
}

const defaultApplyTimeout = 5 * time.Second

func (n *Node) CreateTable(name string) error {
	_, err := n.apply(Request{Kind: KindCreateTable, Table: name}, defaultApplyTimeout)
	return err
}

func (n *Node) DropTable(name string) error {
	_, err := n.apply(Request{Kind: KindDropTable, Table: name}, defaultApplyTimeout)
	return err
}

func (n *Node) CloneTable(from, to string) error {
	_, err := n.apply(Request{Kind: KindCloneTable, CloneFrom: from, CloneTo: to}, defaultApplyTimeout)
	return err
}

func (n *Node) AllTables() []string { return n.fsm.AllTables() }

func (n *Node) Set(table string, key, value []byte) error {
	_, err := n.apply(Request{Kind: KindSet, Table: table, Key: key, Value: value}, defaultApplyTimeout)
	return err
}

func (n *Node) BatchSet(table string, batch []KV) error {
	_, err := n.apply(Request{Kind: KindBatchSet, Table: table, Batch: batch}, defaultApplyTimeout)
	return err
}

func (n *Node) Upsert(table string, key, value []byte, r Reducer) (UpsertOutcome, error) {
	resp, err := n.apply(Request{Kind: KindUpsert, Table: table, Key: key, Value: value, Reducer: r}, defaultApplyTimeout)
	if err != nil {
		return OutcomeNoChange, err
	}
	return resp.Outcome, nil
}

func (n *Node) BatchUpsert(table string, batch []KV, r Reducer) (UpsertOutcome, error) {
	resp, err := n.apply(Request{Kind: KindBatchUpsert, Table: table, Batch: batch, Reducer: r}, defaultApplyTimeout)
	if err != nil {
		return OutcomeNoChange, err
	}
	return resp.Outcome, nil
}

// Get performs a local (possibly stale-by-one-round on a follower) read
// directly against the FSM, bypassing Raft (§5 "reads from followers
// are at best stale-by-one-round").
func (n *Node) Get(table string, key []byte) ([]byte, bool, error) {
	return n.fsm.Get(table, key)
}

// AddLearner adds id/addr as a non-voting learner, following §4.8's
// "remove as voter and node (best-effort) to handle re-joins" rule
// before the add.
func (n *Node) AddLearner(id, addr string) error {
	if !n.IsLeader() {
		return ErrNotLeader
	}
	n.raft.RemoveServer(raft.ServerID(id), 0, 0)
	future := n.raft.AddNonvoter(raft.ServerID(id), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// AddNodes promotes each named member (normally the current learners)
// to a voting member at the address Raft already holds for it
// (§4.8 "AddNodes promoting all current members").
func (n *Node) AddNodes(members []string) error {
	if !n.IsLeader() {
		return ErrNotLeader
	}
	cfgFuture := n.raft.GetConfiguration()
	if err := cfgFuture.Error(); err != nil {
		return fmt.Errorf("ampcdht: read configuration: %w", err)
	}
	addrs := make(map[raft.ServerID]raft.ServerAddress)
	for _, srv := range cfgFuture.Configuration().Servers {
		addrs[srv.ID] = srv.Address
	}
	for _, id := range members {
		addr, ok := addrs[raft.ServerID(id)]
		if !ok {
			return fmt.Errorf("ampcdht: promote %s: not in raft configuration", id)
		}
		future := n.raft.AddVoter(raft.ServerID(id), addr, 0, 10*time.Second)
		if err := future.Error(); err != nil {
			return fmt.Errorf("ampcdht: promote %s: %w", id, err)
		}
	}
	return nil
}

// Shutdown stops the Raft group and closes the transport.
func (n *Node) Shutdown() error {
	if err := n.raft.Shutdown().Error(); err != nil {
		return err
	}
	return n.trans.Close()
}
