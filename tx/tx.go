// Package tx defines the minimal transaction shape the core needs: enough to
// track UTXOs, invite tokens, and addresses without implementing a script
// execution engine. Script bytes are carried opaquely; only the extracted
// destination address and the coin/invite distinction matter here.
package tx

import (
	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
)

// OutPoint identifies a single transaction output.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxIn spends a previous output.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// TxOut pays value to an address. Script is kept opaque; only the extracted
// destination address and its type matter to the core (CGS, lotteries,
// confirmation).
type TxOut struct {
	Value       int64
	AddressType address.Type
	Address     address.Address
	PkScript    []byte
}

// Tx is a minimal reference-UTXO-model transaction. IsInvite marks it as
// belonging to the parallel invite-token UTXO set;
// invites and coins are never mixed in the same output set.
type Tx struct {
	Version  int32
	TxIn     []TxIn
	TxOut    []TxOut
	LockTime uint32
	IsInvite bool
}

// IsCoinBase reports whether tx has the single, null-previous-output input
// that marks a coinbase (or, when IsInvite, an invite-coinbase).
func (t *Tx) IsCoinBase() bool {
	return len(t.TxIn) == 1 && t.TxIn[0].PreviousOutPoint.Hash == (chainhash.Hash{}) &&
		t.TxIn[0].PreviousOutPoint.Index == 0xffffffff
}

// Hash returns the transaction's hash over version, inputs, outputs, and
// locktime. A real node would hash the exact wire serialisation; this
// reference shape hashes a deterministic binary encoding, which is
// sufficient for every invariant the core enforces (identity, mempool
// indexing, short-ID derivation).
func (t *Tx) Hash() chainhash.Hash {
	return chainhash.HashH(t.serializeForHash())
}

func (t *Tx) serializeForHash() []byte {
	buf := make([]byte, 0, 64+32*len(t.TxIn)+32*len(t.TxOut))
	putU32 := func(v uint32) {
		buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	putI64 := func(v int64) {
		u := uint64(v)
		buf = append(buf, byte(u), byte(u>>8), byte(u>>16), byte(u>>24),
			byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
	}
	putU32(uint32(t.Version))
	for _, in := range t.TxIn {
		buf = append(buf, in.PreviousOutPoint.Hash[:]...)
		putU32(in.PreviousOutPoint.Index)
		buf = append(buf, in.SignatureScript...)
		putU32(in.Sequence)
	}
	for _, out := range t.TxOut {
		putI64(out.Value)
		buf = append(buf, byte(out.AddressType))
		buf = append(buf, out.Address[:]...)
	}
	putU32(t.LockTime)
	if t.IsInvite {
		buf = append(buf, 1)
	}
	return buf
}
