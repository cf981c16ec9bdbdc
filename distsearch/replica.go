package distsearch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RemoteCopier copies an existing peer's index directory into this
// replica's data_dir via a chunked remote-copy RPC (§4.11 warmup).
type RemoteCopier func(ctx context.Context, peerAddr, destDir string) error

// Replica drives one live-index shard's InSetup -> Ready boot sequence
// (§4.11 "Live-index warmup"): buffer incoming writes into a WAL,
// copy an existing peer's index if one exists, replay the WAL, clear
// it, then flip to Ready.
type Replica struct {
	wal    *WAL
	copy   RemoteCopier
	logger *zap.Logger

	mu    sync.RWMutex
	state LifecycleState
}

// NewReplica opens walPath and starts the replica in InSetup.
func NewReplica(walPath string, copier RemoteCopier, logger *zap.Logger) (*Replica, error) {
	wal, err := OpenWAL(walPath)
	if err != nil {
		return nil, err
	}
	return &Replica{
		wal:    wal,
		copy:   copier,
		logger: logger.With(zap.String("component", "distsearch.replica")),
		state:  StateInSetup,
	}, nil
}

// State reports this replica's current lifecycle state.
func (r *Replica) State() LifecycleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// HandleWrite buffers an incoming IndexWebpages write. While InSetup
// it is appended to the WAL instead of applied directly; once Ready it
// is applied immediately by the caller (Boot has already drained and
// cleared the WAL by then).
func (r *Replica) HandleWrite(pages []interface{}, applyDirect func([]interface{}) error) error {
	if r.State() == StateInSetup {
		return r.wal.Append(pages)
	}
	return applyDirect(pages)
}

// Boot runs the full warmup sequence: optionally copies an existing
// peer's index (peerAddr == "" means this is the first replica and
// there is nothing to copy), replays the WAL in 512-page chunks,
// clears it, and flips to Ready.
func (r *Replica) Boot(ctx context.Context, peerAddr, destDir string, apply func(pages []interface{}) error) error {
	if peerAddr != "" && r.copy != nil {
		if err := r.copy(ctx, peerAddr, destDir); err != nil {
			return fmt.Errorf("distsearch: replica copy from %s: %w", peerAddr, err)
		}
	}

	if err := r.wal.Replay(apply); err != nil {
		return fmt.Errorf("distsearch: replica wal replay: %w", err)
	}
	if err := r.wal.Clear(); err != nil {
		return fmt.Errorf("distsearch: replica wal clear: %w", err)
	}

	r.mu.Lock()
	r.state = StateReady
	r.mu.Unlock()

	r.logger.Info("live-index replica ready")
	return nil
}

// Close releases the underlying WAL handle.
func (r *Replica) Close() error {
	return r.wal.Close()
}
