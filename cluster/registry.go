// Package cluster implements the gossip-backed shard membership view
// of §4.11: every search-server and live-index process advertises its
// shard id and lifecycle state (InSetup/Ready; a member that leaves is
// dropped from the view) over
// hashicorp/memberlist, and local readers query a live in-memory
// snapshot rather than hitting the durable registry on every request.
package cluster

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// NodeState is a shard-bearing process's place in its startup
// lifecycle (§4.11 "Live-index warmup").
type NodeState string

const (
	StateInSetup NodeState = "in_setup"
	StateReady   NodeState = "ready"
)

// NodeMeta is the gossiped payload attached to each memberlist.Node's
// Meta field, describing what shard this process serves.
type NodeMeta struct {
	ShardID uint64    `json:"shard_id"`
	IsLive  bool      `json:"is_live"`
	State   NodeState `json:"state"`
	Addr    string    `json:"addr"`
}

// Registry is the live cluster-membership view: a memberlist instance
// plus the most recently gossiped NodeMeta per member.
type Registry struct {
	ml     *memberlist.Memberlist
	logger *zap.Logger

	mu    sync.RWMutex
	meta  map[string]NodeMeta // memberlist node name -> last known meta
	state NodeMeta            // this node's own advertised state
}

// Config configures the gossip layer (mirrors config.GossipConfig).
type Config struct {
	NodeID        string
	BindAddr      string
	BindPort      int
	JoinAddrs     []string
	ProbeInterval time.Duration
	GossipInterval time.Duration
	Self          NodeMeta
}

// delegate implements memberlist.Delegate to exchange NodeMeta via
// the gossip node metadata channel, avoiding a separate RPC round
// trip just to learn a peer's shard id and lifecycle state.
type delegate struct {
	r *Registry
}

func (d *delegate) NodeMeta(limit int) []byte {
	d.r.mu.RLock()
	defer d.r.mu.RUnlock()
	b, err := json.Marshal(d.r.state)
	if err != nil || len(b) > limit {
		return nil
	}
	return b
}

func (d *delegate) NotifyMsg([]byte)                           {}
func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *delegate) LocalState(join bool) []byte                { return nil }
func (d *delegate) MergeRemoteState(buf []byte, join bool)     {}

// eventDelegate mirrors memberlist membership changes into Registry's
// meta map so readers see join/update/leave without polling.
type eventDelegate struct {
	r *Registry
}

func (e *eventDelegate) NotifyJoin(n *memberlist.Node)   { e.r.updateMeta(n) }
func (e *eventDelegate) NotifyUpdate(n *memberlist.Node) { e.r.updateMeta(n) }
func (e *eventDelegate) NotifyLeave(n *memberlist.Node) {
	e.r.mu.Lock()
	delete(e.r.meta, n.Name)
	e.r.mu.Unlock()
}

func (r *Registry) updateMeta(n *memberlist.Node) {
	var m NodeMeta
	if len(n.Meta) == 0 {
		return
	}
	if err := json.Unmarshal(n.Meta, &m); err != nil {
		r.logger.Warn("cluster: malformed node meta", zap.String("node", n.Name), zap.Error(err))
		return
	}
	r.mu.Lock()
	r.meta[n.Name] = m
	r.mu.Unlock()
}

// Join starts the memberlist agent, advertising cfg.Self, and joins
// cfg.JoinAddrs if given.
func Join(cfg Config, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		logger: logger.With(zap.String("component", "cluster")),
		meta:   make(map[string]NodeMeta),
		state:  cfg.Self,
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	mlConfig.Delegate = &delegate{r: r}
	mlConfig.Events = &eventDelegate{r: r}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("cluster: create memberlist: %w", err)
	}
	r.ml = ml

	if len(cfg.JoinAddrs) > 0 {
		if _, err := ml.Join(cfg.JoinAddrs); err != nil {
			return nil, fmt.Errorf("cluster: join %v: %w", cfg.JoinAddrs, err)
		}
	}

	r.mu.Lock()
	r.meta[cfg.NodeID] = cfg.Self
	r.mu.Unlock()

	return r, nil
}

// SetState updates this node's own advertised lifecycle state and
// triggers a gossip push so peers learn of InSetup -> Ready promptly
// rather than waiting for the next periodic full sync.
func (r *Registry) SetState(state NodeState) {
	r.mu.Lock()
	r.state.State = state
	self := r.state
	r.mu.Unlock()

	r.mu.Lock()
	r.meta[r.ml.LocalNode().Name] = self
	r.mu.Unlock()

	r.ml.UpdateNode(10 * time.Second)
}

// ShardMembers returns every known node serving shardID, optionally
// restricted to the live index (isLive) and/or Ready nodes only.
func (r *Registry) ShardMembers(shardID uint64, isLive bool, readyOnly bool) []NodeMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []NodeMeta
	for _, m := range r.meta {
		if m.ShardID != shardID || m.IsLive != isLive {
			continue
		}
		if readyOnly && m.State != StateReady {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Members returns every known node's metadata, including this node's own.
func (r *Registry) Members() []NodeMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeMeta, 0, len(r.meta))
	for _, m := range r.meta {
		out = append(out, m)
	}
	return out
}

// Leave gracefully departs the gossip cluster.
func (r *Registry) Leave(timeout time.Duration) error {
	if err := r.ml.Leave(timeout); err != nil {
		return fmt.Errorf("cluster: leave: %w", err)
	}
	return r.ml.Shutdown()
}
