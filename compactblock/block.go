package compactblock

import (
	"bytes"
	"fmt"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/referral"
	"github.com/meritfoundation/merit/tx"
	"github.com/meritfoundation/merit/wire"
)

const maxPrefilledBytes = 1 << 20

// PrefilledTx is a transaction the sender includes in full (typically the
// coinbase), tagged with its absolute index in the block.
type PrefilledTx struct {
	Index uint16
	Tx    *tx.Tx
}

// PrefilledReferral is a referral the sender includes in full, tagged with
// its absolute index in the block's referral stream.
type PrefilledReferral struct {
	Index    uint16
	Referral *referral.Referral
}

// BlockHeaderAndShortIDs is the compact-block announcement: a header plus
// short IDs for each of the three streams and prefilled entries for the
// transaction and invite streams (referrals are never prefilled). Invite
// short IDs/prefills are populated only once Daedalus activates; IsDaedalus
// is recorded explicitly since this package has no access to chain height.
type BlockHeaderAndShortIDs struct {
	Header     wire.BlockHeader
	Nonce      uint64
	IsDaedalus bool

	ShortTxIDs     []ShortID
	ShortRefIDs    []ShortID
	ShortInviteIDs []ShortID

	PrefilledTxn     []PrefilledTx
	PrefilledInvites []PrefilledTx

	k0, k1 uint64
}

// NewBlockHeaderAndShortIDs builds the compact announcement for a block.
// Each short ID is derived from the hash passed in for that item. There is
// no witness/non-witness selection: this implementation's tx and referral
// hashes have no separate witness form.
func NewBlockHeaderAndShortIDs(header wire.BlockHeader, nonce uint64, txHashes, refHashes, inviteHashes []chainhash.Hash, isDaedalus bool) *BlockHeaderAndShortIDs {
	headerBytes := headerSerialization(header)
	k0, k1 := shortIDKeys(headerBytes, nonce)

	b := &BlockHeaderAndShortIDs{
		Header:     header,
		Nonce:      nonce,
		IsDaedalus: isDaedalus,
		k0:         k0,
		k1:         k1,
	}
	for _, h := range txHashes {
		b.ShortTxIDs = append(b.ShortTxIDs, getShortID(k0, k1, h))
	}
	for _, h := range refHashes {
		b.ShortRefIDs = append(b.ShortRefIDs, getShortID(k0, k1, h))
	}
	if isDaedalus {
		for _, h := range inviteHashes {
			b.ShortInviteIDs = append(b.ShortInviteIDs, getShortID(k0, k1, h))
		}
	}
	return b
}

// GetShortID computes the short ID for hash under this announcement's keys.
func (b *BlockHeaderAndShortIDs) GetShortID(hash chainhash.Hash) ShortID {
	return getShortID(b.k0, b.k1, hash)
}

func headerSerialization(h wire.BlockHeader) []byte {
	var buf bytes.Buffer
	// Serialize never fails against an in-memory buffer.
	_ = h.Serialize(&buf)
	return buf.Bytes()
}

// Serialize writes the compact-block wire framing.
func (b *BlockHeaderAndShortIDs) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	if err := writeU64(w, b.Nonce); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(b.ShortTxIDs))); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(b.ShortRefIDs))); err != nil {
		return err
	}
	if b.IsDaedalus {
		if err := wire.WriteVarInt(w, uint64(len(b.ShortInviteIDs))); err != nil {
			return err
		}
	}

	if err := writeShortIDs(w, b.ShortTxIDs); err != nil {
		return err
	}
	if err := writeShortIDs(w, b.ShortRefIDs); err != nil {
		return err
	}
	if b.IsDaedalus {
		if err := writeShortIDs(w, b.ShortInviteIDs); err != nil {
			return err
		}
	}

	if err := writePrefilled(w, b.PrefilledTxn); err != nil {
		return err
	}
	if b.IsDaedalus {
		if err := writePrefilled(w, b.PrefilledInvites); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeBlockHeaderAndShortIDs reads a compact block announcement,
// deriving its short-ID keys from the header and nonce just read.
func DeserializeBlockHeaderAndShortIDs(r io.Reader, isDaedalus bool) (*BlockHeaderAndShortIDs, error) {
	var header wire.BlockHeader
	if err := header.Deserialize(r); err != nil {
		return nil, err
	}
	nonce, err := readU64(r)
	if err != nil {
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
	var inviteCount uint64
	if isDaedalus {
		if inviteCount, err = wire.ReadVarInt(r); err != nil {
			return nil, err
		}
	}

	shortTxIDs, err := readShortIDs(r, txCount)
	if err != nil {
		return nil, err
	}
	shortRefIDs, err := readShortIDs(r, refCount)
	if err != nil {
		return nil, err
	}
	var shortInviteIDs []ShortID
	if isDaedalus {
		if shortInviteIDs, err = readShortIDs(r, inviteCount); err != nil {
			return nil, err
		}
	}

	prefilledTxn, err := readPrefilled(r)
	if err != nil {
		return nil, err
	}
	var prefilledInvites []PrefilledTx
	if isDaedalus {
		if prefilledInvites, err = readPrefilled(r); err != nil {
			return nil, err
		}
	}

	k0, k1 := shortIDKeys(headerSerialization(header), nonce)
	return &BlockHeaderAndShortIDs{
		Header:           header,
		Nonce:            nonce,
		IsDaedalus:       isDaedalus,
		ShortTxIDs:       shortTxIDs,
		ShortRefIDs:      shortRefIDs,
		ShortInviteIDs:   shortInviteIDs,
		PrefilledTxn:     prefilledTxn,
		PrefilledInvites: prefilledInvites,
		k0:               k0,
		k1:               k1,
	}, nil
}

func writePrefilled(w io.Writer, entries []PrefilledTx) error {
	if err := wire.WriteVarInt(w, uint64(len(entries))); err != nil {
		return err
	}
	last := -1
	for _, e := range entries {
		offset := int(e.Index) - last - 1
		if offset < 0 {
			return fmt.Errorf("compactblock: prefilled indices out of order")
		}
		if err := wire.WriteVarInt(w, uint64(offset)); err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := e.Tx.Serialize(&buf); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, buf.Bytes()); err != nil {
			return err
		}
		last = int(e.Index)
	}
	return nil
}

func readPrefilled(r io.Reader) ([]PrefilledTx, error) {
	count, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	out := make([]PrefilledTx, count)
	last := -1
	for i := range out {
		offset, err := wire.ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		idx := last + 1 + int(offset)
		if idx > 0xffff {
			return nil, fmt.Errorf("compactblock: prefilled transaction index overflowed 16 bits")
		}
		raw, err := wire.ReadVarBytes(r, maxPrefilledBytes, "prefilled tx")
		if err != nil {
			return nil, err
		}
		t, err := tx.Deserialize(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		out[i] = PrefilledTx{Index: uint16(idx), Tx: t}
		last = idx
	}
	return out, nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	_, err := w.Write(buf[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, nil
}
