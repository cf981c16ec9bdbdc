package ampcdht

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/BaSui01/wayfarer/ampc"
)

// tableKV adapts one logical table (resolved through a Conn's
// prev/next indirection) to ampc.KV.
type tableKV struct {
	node     *Node
	physical string
}

func (t tableKV) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	return t.node.Get(t.physical, key)
}

func (t tableKV) Set(_ context.Context, key, value []byte) error {
	return t.node.Set(t.physical, key, value)
}

func (t tableKV) Upsert(_ context.Context, key, value []byte, reducer string) (ampc.UpsertOutcome, error) {
	outcome, err := t.node.Upsert(t.physical, key, value, Reducer(reducer))
	if err != nil {
		return ampc.OutcomeNoChange, err
	}
	return ampc.UpsertOutcome(outcome), nil
}

func (t tableKV) Each(_ context.Context, fn func(key, value []byte) error) error {
	return t.node.fsm.db.eachLocked(t.physical, fn)
}

func (d *Db) eachLocked(table string, fn func(key, value []byte) error) error {
	d.mu.RLock()
	m, ok := d.tables[table]
	if !ok {
		d.mu.RUnlock()
		return ErrTableNotFound
	}
	// Copy under the lock so fn may itself touch the Db without deadlock.
	items := make(map[string][]byte, len(m))
	for k, v := range m {
		items[k] = v
	}
	d.mu.RUnlock()

	for k, v := range items {
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// tablesView implements ampc.Tables over a Conn's current prev or next
// physical table set.
type tablesView struct {
	conn   *Conn
	isNext bool
}

func (v tablesView) Table(name string) ampc.KV {
	return tableKV{node: v.conn.node, physical: v.conn.physicalName(name, v.isNext)}
}

// Conn is the §4.7 DhtConn: a pair of physical table sets addressed
// through a logical name, with an O(1) Swap implemented as flipping
// which physical suffix counts as "next" rather than copying data.
type Conn struct {
	node    *Node
	tables  []string
	flipped atomic.Bool
}

// NewConn creates the physical "_a"/"_b" tables backing each logical
// name and returns a Conn ready for round 0, whose Prev() and Next()
// both start out empty (round 0's Setup seeds them, per §4.9 step 2).
func NewConn(node *Node, logicalTables []string) (*Conn, error) {
	for _, name := range logicalTables {
		for _, suffix := range []string{"_a", "_b"} {
			if err := node.CreateTable(name + suffix); err != nil {
				return nil, fmt.Errorf("ampcdht: create %s%s: %w", name, suffix, err)
			}
		}
	}
	return &Conn{node: node, tables: logicalTables}, nil
}

func (c *Conn) physicalName(logical string, isNext bool) string {
	useB := c.flipped.Load()
	if isNext {
		useB = !useB
	}
	if useB {
		return logical + "_b"
	}
	return logical + "_a"
}

func (c *Conn) Prev() ampc.Tables { return tablesView{conn: c, isNext: false} }
func (c *Conn) Next() ampc.Tables { return tablesView{conn: c, isNext: true} }

// Swap exchanges prev and next (§4.7 round protocol step 3). It is a
// single atomic flag flip: no data moves.
func (c *Conn) Swap() { c.flipped.Store(!c.flipped.Load()) }
