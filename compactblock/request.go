package compactblock

import (
	"bytes"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/referral"
	"github.com/meritfoundation/merit/tx"
	"github.com/meritfoundation/merit/wire"
)

const maxReferralBytes = 1 << 16

// BlockTransactionsRequest asks a peer to fill in the positions a compact
// block left as short IDs.
type BlockTransactionsRequest struct {
	BlockHash       chainhash.Hash
	TxIndices       []uint16
	ReferralIndices []uint16
	InviteIndices   []uint16
	ExpectInvites   bool
}

// Serialize writes the request's wire form: each index list delta-compressed
func (req *BlockTransactionsRequest) Serialize(w io.Writer) error {
	if _, err := w.Write(req.BlockHash[:]); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(req.TxIndices))); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(req.ReferralIndices))); err != nil {
		return err
	}
	if err := writeCompressedIndices(w, req.TxIndices); err != nil {
		return err
	}
	if err := writeCompressedIndices(w, req.ReferralIndices); err != nil {
		return err
	}
	if req.ExpectInvites {
		if err := wire.WriteVarInt(w, uint64(len(req.InviteIndices))); err != nil {
			return err
		}
		if err := writeCompressedIndices(w, req.InviteIndices); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeBlockTransactionsRequest reads a request written by Serialize.
// expectInvites must match what the peer signalled.
func DeserializeBlockTransactionsRequest(r io.Reader, expectInvites bool) (*BlockTransactionsRequest, error) {
	req := &BlockTransactionsRequest{ExpectInvites: expectInvites}
	if _, err := io.ReadFull(r, req.BlockHash[:]); err != nil {
		return nil, err
	}
	txCount, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	refCount, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if req.TxIndices, err = readCompressedIndices(r, txCount); err != nil {
		return nil, err
	}
	if req.ReferralIndices, err = readCompressedIndices(r, refCount); err != nil {
		return nil, err
	}
	if expectInvites {
		inviteCount, err := wire.ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if req.InviteIndices, err = readCompressedIndices(r, inviteCount); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// BlockTransactions is the response to a BlockTransactionsRequest: the
// requested transactions, invites, and referrals in index order.
type BlockTransactions struct {
	BlockHash chainhash.Hash
	Txn       []*tx.Tx
	Invites   []*tx.Tx
	Refs      []*referral.Referral
}

// Serialize writes txn and invites concatenated as one count (matching the
// original wire layout, which partitions them back out by IsInvite on
// read), followed by the referrals.
func (bt *BlockTransactions) Serialize(w io.Writer) error {
	if _, err := w.Write(bt.BlockHash[:]); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(bt.Txn)+len(bt.Invites))); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(bt.Refs))); err != nil {
		return err
	}
	for _, t := range bt.Txn {
		if err := t.Serialize(w); err != nil {
			return err
		}
	}
	for _, t := range bt.Invites {
		if err := t.Serialize(w); err != nil {
			return err
		}
	}
	for _, ref := range bt.Refs {
		var buf bytes.Buffer
		if err := ref.Serialize(&buf); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeBlockTransactions reads a response written by Serialize,
// splitting the combined transaction stream back into coins and invites by
// each item's IsInvite flag (mirroring the original's stable-partition
// step).
func DeserializeBlockTransactions(r io.Reader) (*BlockTransactions, error) {
	bt := &BlockTransactions{}
	if _, err := io.ReadFull(r, bt.BlockHash[:]); err != nil {
		return nil, err
	}
	txnSize, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	refSize, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	all := make([]*tx.Tx, txnSize)
	for i := range all {
		t, err := tx.Deserialize(r)
		if err != nil {
			return nil, err
		}
		all[i] = t
	}
	for _, t := range all {
		if t.IsInvite {
			bt.Invites = append(bt.Invites, t)
		} else {
			bt.Txn = append(bt.Txn, t)
		}
	}

	bt.Refs = make([]*referral.Referral, refSize)
	for i := range bt.Refs {
		raw, err := wire.ReadVarBytes(r, maxReferralBytes, "referral")
		if err != nil {
			return nil, err
		}
		ref, err := referral.Deserialize(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		bt.Refs[i] = ref
	}
	return bt, nil
}
