// Package anv maintains the Aggregate Network Value running sum and
// computes the Community Growth Score on demand per tip.
package anv

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/referral"
)

// Engine maintains ANV(A) = balance(A) + Σ ANV(child) as a running sum in a
// dedicated `N/<addr20>` keyspace, updated incrementally rather
// than recomputed from scratch.
type Engine struct {
	db    *leveldb.DB
	graph *referral.Graph
}

// Open opens or creates the ANV database at path, backed by graph for
// parent walks.
func Open(path string, graph *referral.Graph) (*Engine, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Engine{db: db, graph: graph}, nil
}

// Close releases the underlying database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

func anvKey(a address.Address) []byte {
	k := make([]byte, 1+address.Size)
	k[0] = 'N'
	copy(k[1:], a[:])
	return k
}

// Get returns the current ANV of addr, or 0 if never set.
func (e *Engine) Get(addr address.Address) (int64, error) {
	b, err := e.db.Get(anvKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (e *Engine) set(addr address.Address, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return e.db.Put(anvKey(addr), b[:], nil)
}

// ApplyDelta adds delta to addr's ANV and every ancestor's, up to and
// including the root, keeping the aggregate incremental rather than
// recomputed. It returns the addresses it touched, starting at addr and
// walking up to the root, so callers can build an undo record by
// replaying them with the negated delta.
func (e *Engine) ApplyDelta(addr address.Address, delta int64) ([]address.Address, error) {
	var touched []address.Address
	current := addr
	for {
		v, err := e.Get(current)
		if err != nil {
			return touched, err
		}
		if err := e.set(current, v+delta); err != nil {
			return touched, err
		}
		touched = append(touched, current)

		ref, err := e.graph.Lookup(current)
		if err == referral.ErrNotFound {
			break
		} else if err != nil {
			return touched, err
		}
		if ref.ParentAddress == current {
			break // genesis: self-parented root
		}
		current = ref.ParentAddress
	}
	return touched, nil
}

// Delete removes addr's N/ entry. Only valid when a reorg removes the
// referral itself; the caller must already have reversed every balance
// delta so the entry being dropped is zero.
func (e *Engine) Delete(addr address.Address) error {
	return e.db.Delete(anvKey(addr), nil)
}

// OnReferralInserted adds a new child's (currently zero) ANV contribution
// to every ancestor. Since the child's own ANV is zero at insertion, this
// is equivalent to applying a zero delta anchored at the child; it exists
// to document the call site and to seed the N/ entry so later lookups
// don't need to special-case a missing key.
func (e *Engine) OnReferralInserted(child address.Address) ([]address.Address, error) {
	return e.ApplyDelta(child, 0)
}
