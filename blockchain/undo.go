package blockchain

import (
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/tx"
	"github.com/meritfoundation/merit/wire"
)

// InviteUndoMarkerType is the replaced_address_type value of the sentinel
// LotteryUndo entry that signals invite-transaction undos follow in the
// stream. Older records end at the lottery list; the sentinel is the
// backwards-compatibility marker, and both writing and reading it are
// mandatory for records carrying invite undos.
const InviteUndoMarkerType = 100

// SpentOutput is one output consumed by a connected block, captured with
// enough detail to recreate it verbatim on disconnect.
type SpentOutput struct {
	OutPoint    tx.OutPoint
	AddressType address.Type
	Address     address.Address
	Value       int64
	Height      uint32
	TxIndex     uint32
	IsCoinBase  bool
	IsInvite    bool
	PkScript    []byte
}

// TxUndo holds the spent outputs of a single non-coinbase transaction, in
// input order.
type TxUndo []SpentOutput

// LotteryUndo is one winner-replacement pair emitted by the lottery during
// block connection, in the lottery's own iteration order. That order is
// normative: replaying the entries in reverse restores the pre-block
// winner set.
type LotteryUndo struct {
	ReplacedAddressType uint8
	Replaced            address.Address
	Replacement         address.Address
}

// BlockUndo is the per-block undo record: the spent outputs of every
// non-coinbase coin transaction, the lottery replacement pairs, and the
// spent outputs of every non-coinbase invite transaction.
type BlockUndo struct {
	TxUndos      []TxUndo
	LotteryUndos []LotteryUndo
	InviteUndos  []TxUndo
}

const undoFlagCoinBase = 1 << 0
const undoFlagInvite = 1 << 1

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func writeSpentOutput(w io.Writer, o *SpentOutput) error {
	buf := make([]byte, chainhash.HashSize+4+1+address.Size+8+4+4+1)
	copy(buf, o.OutPoint.Hash[:])
	off := chainhash.HashSize
	putU32LE(buf[off:], o.OutPoint.Index)
	off += 4
	buf[off] = byte(o.AddressType)
	off++
	copy(buf[off:], o.Address[:])
	off += address.Size
	v := uint64(o.Value)
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(v >> (8 * i))
	}
	off += 8
	putU32LE(buf[off:], o.Height)
	off += 4
	putU32LE(buf[off:], o.TxIndex)
	off += 4
	var flags byte
	if o.IsCoinBase {
		flags |= undoFlagCoinBase
	}
	if o.IsInvite {
		flags |= undoFlagInvite
	}
	buf[off] = flags
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, o.PkScript)
}

func readSpentOutput(r io.Reader, o *SpentOutput) error {
	buf := make([]byte, chainhash.HashSize+4+1+address.Size+8+4+4+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	copy(o.OutPoint.Hash[:], buf[:chainhash.HashSize])
	off := chainhash.HashSize
	o.OutPoint.Index = getU32LE(buf[off:])
	off += 4
	o.AddressType = address.Type(buf[off])
	off++
	copy(o.Address[:], buf[off:off+address.Size])
	off += address.Size
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[off+i]) << (8 * i)
	}
	o.Value = int64(v)
	off += 8
	o.Height = getU32LE(buf[off:])
	off += 4
	o.TxIndex = getU32LE(buf[off:])
	off += 4
	o.IsCoinBase = buf[off]&undoFlagCoinBase != 0
	o.IsInvite = buf[off]&undoFlagInvite != 0
	script, err := wire.ReadVarBytes(r, 1<<16, "undo pkscript")
	if err != nil {
		return err
	}
	o.PkScript = script
	return nil
}

func writeTxUndoList(w io.Writer, undos []TxUndo) error {
	if err := wire.WriteVarInt(w, uint64(len(undos))); err != nil {
		return err
	}
	for _, u := range undos {
		if err := wire.WriteVarInt(w, uint64(len(u))); err != nil {
			return err
		}
		for i := range u {
			if err := writeSpentOutput(w, &u[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func readTxUndoList(r io.Reader) ([]TxUndo, error) {
	n, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	undos := make([]TxUndo, n)
	for i := range undos {
		m, err := wire.ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		u := make(TxUndo, m)
		for j := range u {
			if err := readSpentOutput(r, &u[j]); err != nil {
				return nil, err
			}
		}
		undos[i] = u
	}
	return undos, nil
}

func writeLotteryUndo(w io.Writer, u *LotteryUndo) error {
	buf := make([]byte, 1+2*address.Size)
	buf[0] = u.ReplacedAddressType
	copy(buf[1:], u.Replaced[:])
	copy(buf[1+address.Size:], u.Replacement[:])
	_, err := w.Write(buf)
	return err
}

func readLotteryUndo(r io.Reader, u *LotteryUndo) error {
	buf := make([]byte, 1+2*address.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	u.ReplacedAddressType = buf[0]
	copy(u.Replaced[:], buf[1:1+address.Size])
	copy(u.Replacement[:], buf[1+address.Size:])
	return nil
}

// Serialize writes the undo record to w. The lottery list always ends with
// the sentinel entry announcing the invite-undo list, so a reader written
// against the pre-invite format stops cleanly at the sentinel while a
// current reader continues into the invite undos.
func (bu *BlockUndo) Serialize(w io.Writer) error {
	if err := writeTxUndoList(w, bu.TxUndos); err != nil {
		return err
	}
	if err := wire.WriteVarInt(w, uint64(len(bu.LotteryUndos)+1)); err != nil {
		return err
	}
	for i := range bu.LotteryUndos {
		if err := writeLotteryUndo(w, &bu.LotteryUndos[i]); err != nil {
			return err
		}
	}
	sentinel := LotteryUndo{ReplacedAddressType: InviteUndoMarkerType}
	if err := writeLotteryUndo(w, &sentinel); err != nil {
		return err
	}
	return writeTxUndoList(w, bu.InviteUndos)
}

// DeserializeBlockUndo reads an undo record previously written by
// Serialize. A lottery list with no sentinel is accepted as a pre-invite
// record with no invite undos; a sentinel anywhere but the final lottery
// position is rejected.
func DeserializeBlockUndo(r io.Reader) (*BlockUndo, error) {
	bu := &BlockUndo{}
	var err error
	bu.TxUndos, err = readTxUndoList(r)
	if err != nil {
		return nil, err
	}

	n, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	sawSentinel := false
	for i := uint64(0); i < n; i++ {
		var u LotteryUndo
		if err := readLotteryUndo(r, &u); err != nil {
			return nil, err
		}
		if u.ReplacedAddressType == InviteUndoMarkerType {
			if i != n-1 {
				return nil, ruleError(ErrBadUndoData,
					"invite-undo sentinel before end of lottery undo list")
			}
			sawSentinel = true
			break
		}
		bu.LotteryUndos = append(bu.LotteryUndos, u)
	}
	if !sawSentinel {
		return bu, nil
	}

	bu.InviteUndos, err = readTxUndoList(r)
	if err != nil {
		return nil, err
	}
	return bu, nil
}
