package sonic

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// pooledConn tracks a connection's last-used time so the reaper can
// close it once it has sat idle past DefaultIdleTTL (§5 "Connection
// pools cap concurrent outbound sockets per peer; idle connections
// with TTL > 60 s are closed").
type pooledConn struct {
	conn     net.Conn
	lastUsed time.Time
}

// Pool keeps idle outbound connections per peer address and reaps idle
// ones (§5 shared-resource policy). Connections handed out by Get are
// not counted, so maxPerPeer does not limit how many are open at once.
type Pool struct {
	mu       sync.Mutex
	perPeer  map[string][]*pooledConn
	maxPerPeer int
	idleTTL  time.Duration
	stopCh   chan struct{}
}

// NewPool starts a Pool with the given per-peer connection cap. The
// reaper goroutine runs until Close is called.
func NewPool(maxPerPeer int) *Pool {
	p := &Pool{
		perPeer:    make(map[string][]*pooledConn),
		maxPerPeer: maxPerPeer,
		idleTTL:    DefaultIdleTTL,
		stopCh:     make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Get returns a pooled connection to addr if one is idle, otherwise
// dials a fresh one. The maxPerPeer check counts only idle pooled
// connections, which are none whenever Get dials, so it never refuses.
func (p *Pool) Get(addr string) (net.Conn, error) {
	p.mu.Lock()
	conns := p.perPeer[addr]
	if len(conns) > 0 {
		pc := conns[len(conns)-1]
		p.perPeer[addr] = conns[:len(conns)-1]
		p.mu.Unlock()
		return pc.conn, nil
	}
	inFlight := len(p.perPeer[addr])
	p.mu.Unlock()

	if p.maxPerPeer > 0 && inFlight >= p.maxPerPeer {
		return nil, fmt.Errorf("sonic: peer %s at connection cap (%d)", addr, p.maxPerPeer)
	}
	return Dial(addr)
}

// Put returns conn to the pool for addr, making it eligible for reuse
// or idle-reaping.
func (p *Pool) Put(addr string, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perPeer[addr] = append(p.perPeer[addr], &pooledConn{conn: conn, lastUsed: time.Now()})
}

// Drop closes and discards conn without returning it to the pool,
// used when a caller observes conn is broken.
func (p *Pool) Drop(conn net.Conn) {
	_ = conn.Close()
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(p.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

func (p *Pool) reapOnce() {
	cutoff := time.Now().Add(-p.idleTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, conns := range p.perPeer {
		kept := conns[:0]
		for _, pc := range conns {
			if pc.lastUsed.Before(cutoff) {
				_ = pc.conn.Close()
				continue
			}
			kept = append(kept, pc)
		}
		p.perPeer[addr] = kept
	}
}

// Close stops the reaper and closes every pooled connection.
func (p *Pool) Close() error {
	close(p.stopCh)
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, conns := range p.perPeer {
		for _, pc := range conns {
			if err := pc.conn.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	p.perPeer = make(map[string][]*pooledConn)
	return firstErr
}
