// Package registry is the GORM-backed catalog of committed webgraph/
// index/spelling/LM segments and cluster-node membership metadata
// (§4.6 segment lifecycle, §4.11 shard topology), wired to
// internal/database's pooled *gorm.DB.
package registry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SegmentKind distinguishes the on-disk artifact a Segment row tracks.
type SegmentKind string

const (
	SegmentWebgraph SegmentKind = "webgraph"
	SegmentIndex    SegmentKind = "index"
	SegmentSpelling SegmentKind = "spelling"
	SegmentLM       SegmentKind = "lm"
)

// Segment is one immutable committed artifact (§4.6 StoredSegment,
// §4.10 dictionary/model files): a UUID-named file or directory under
// a shard's data_dir, tracked here so GC and cluster catch-up know
// what exists without a filesystem walk.
type Segment struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement"`
	UUID      string      `gorm:"uniqueIndex;size:36;not null"`
	ShardID   uint64      `gorm:"index;not null"`
	Kind      SegmentKind `gorm:"size:16;not null"`
	Path      string      `gorm:"size:512;not null"`
	SizeBytes int64       `gorm:"not null"`
	CreatedAt time.Time
}

// TableName pins the GORM table name independent of the struct name.
func (Segment) TableName() string { return "registry_segments" }

// ClusterNodeState mirrors the live-index InSetup/Ready lifecycle of
// §4.11, generalized to every shard type.
type ClusterNodeState string

const (
	NodeInSetup ClusterNodeState = "in_setup"
	NodeReady   ClusterNodeState = "ready"
	NodeDown    ClusterNodeState = "down"
)

// ClusterNode is one shard-bearing process's last known membership
// state, kept here as the durable complement to the in-memory
// memberlist view `cluster.Registry` exposes (§4.11).
type ClusterNode struct {
	ID        uint64           `gorm:"primaryKey;autoIncrement"`
	NodeID    string           `gorm:"uniqueIndex;size:128;not null"`
	ShardID   uint64           `gorm:"index;not null"`
	IsLive    bool             `gorm:"not null"`
	Addr      string           `gorm:"size:256;not null"`
	State     ClusterNodeState `gorm:"size:16;not null"`
	UpdatedAt time.Time
}

func (ClusterNode) TableName() string { return "registry_cluster_nodes" }

// Registry is the persistence boundary for both tables.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wires Registry to an already-connected *gorm.DB (from
// internal/database's PoolManager) and ensures its tables exist.
func New(db *gorm.DB, logger *zap.Logger) (*Registry, error) {
	if err := db.AutoMigrate(&Segment{}, &ClusterNode{}); err != nil {
		return nil, fmt.Errorf("registry: automigrate: %w", err)
	}
	return &Registry{db: db, logger: logger.With(zap.String("component", "registry"))}, nil
}

// RecordSegment inserts a catalog row for a newly committed segment.
func (r *Registry) RecordSegment(ctx context.Context, seg Segment) error {
	if err := r.db.WithContext(ctx).Create(&seg).Error; err != nil {
		return fmt.Errorf("registry: record segment: %w", err)
	}
	return nil
}

// SegmentsForShard lists every catalogued segment of kind on shardID,
// newest first — used both for GC (cross-reference against active
// UUIDs) and for a joining replica's catch-up copy (§4.11 warmup).
func (r *Registry) SegmentsForShard(ctx context.Context, shardID uint64, kind SegmentKind) ([]Segment, error) {
	var out []Segment
	err := r.db.WithContext(ctx).
		Where("shard_id = ? AND kind = ?", shardID, kind).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("registry: list segments: %w", err)
	}
	return out, nil
}

// DeleteSegment removes a segment's catalog row once its file has
// been garbage-collected.
func (r *Registry) DeleteSegment(ctx context.Context, uuid string) error {
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&Segment{}).Error; err != nil {
		return fmt.Errorf("registry: delete segment: %w", err)
	}
	return nil
}

// UpsertClusterNode records or updates a node's membership snapshot,
// keyed by NodeID (§4.11 InSetup -> Ready).
func (r *Registry) UpsertClusterNode(ctx context.Context, node ClusterNode) error {
	err := r.db.WithContext(ctx).
		Where("node_id = ?", node.NodeID).
		Assign(node).
		FirstOrCreate(&ClusterNode{NodeID: node.NodeID}).Error
	if err != nil {
		return fmt.Errorf("registry: upsert cluster node: %w", err)
	}
	return nil
}

// NodesForShard returns the Ready nodes serving shardID whose IsLive
// matches live.
func (r *Registry) NodesForShard(ctx context.Context, shardID uint64, live bool) ([]ClusterNode, error) {
	var out []ClusterNode
	err := r.db.WithContext(ctx).
		Where("shard_id = ? AND is_live = ? AND state = ?", shardID, live, NodeReady).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("registry: list cluster nodes: %w", err)
	}
	return out, nil
}
