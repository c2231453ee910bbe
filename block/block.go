// Package block defines the full block shape: a header plus the three
// object streams compact blocks disassemble and reassemble (referrals,
// invite transactions, and coin transactions). It sits above wire,
// referral, and tx so none of those three need import each other.
package block

import (
	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/referral"
	"github.com/meritfoundation/merit/tx"
	"github.com/meritfoundation/merit/wire"
)

// Block is a full, connected block: header plus every referral and
// transaction it carries. Invite transactions are tx.Tx values with
// IsInvite set; they live in Invites, not Transactions, mirroring the
// separate mempools and UTXO sets the two token streams require.
type Block struct {
	Header       wire.BlockHeader
	Referrals    []*referral.Referral
	Invites      []*tx.Tx
	Transactions []*tx.Tx
}

// Hash returns the block's identity hash (its header hash).
func (b *Block) Hash() chainhash.Hash {
	return b.Header.BlockHash()
}

// TxHashes returns the hashes of every non-invite transaction, in order,
// for merkle-root computation and short-ID derivation.
func (b *Block) TxHashes() []chainhash.Hash {
	out := make([]chainhash.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		out[i] = t.Hash()
	}
	return out
}

// ReferralHashes returns the hashes of every referral in order.
func (b *Block) ReferralHashes() []chainhash.Hash {
	out := make([]chainhash.Hash, len(b.Referrals))
	for i, r := range b.Referrals {
		out[i] = r.Hash()
	}
	return out
}

// InviteHashes returns the hashes of every invite transaction in order.
func (b *Block) InviteHashes() []chainhash.Hash {
	out := make([]chainhash.Hash, len(b.Invites))
	for i, t := range b.Invites {
		out[i] = t.Hash()
	}
	return out
}
