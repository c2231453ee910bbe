package blockchain

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/tx"
	"github.com/meritfoundation/merit/wire"
)

func testSpentOutput(seed byte) SpentOutput {
	var addr address.Address
	addr[0] = seed
	var h chainhash.Hash
	h[0] = seed + 1
	return SpentOutput{
		OutPoint:    tx.OutPoint{Hash: h, Index: uint32(seed)},
		AddressType: address.PubKeyHash,
		Address:     addr,
		Value:       int64(seed) * 1000,
		Height:      uint32(seed) + 7,
		TxIndex:     uint32(seed) + 2,
		IsCoinBase:  seed%2 == 0,
		IsInvite:    seed%3 == 0,
		PkScript:    []byte{0x76, 0xa9, seed},
	}
}

func TestBlockUndoRoundTrip(t *testing.T) {
	var oldW, newW address.Address
	oldW[0], newW[0] = 0xaa, 0xbb
	undo := &BlockUndo{
		TxUndos: []TxUndo{
			{testSpentOutput(1), testSpentOutput(2)},
			{testSpentOutput(3)},
		},
		LotteryUndos: []LotteryUndo{
			{ReplacedAddressType: 1, Replaced: oldW, Replacement: newW},
		},
		InviteUndos: []TxUndo{
			{testSpentOutput(6)},
		},
	}

	var buf bytes.Buffer
	if err := undo.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := DeserializeBlockUndo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DeserializeBlockUndo: %v", err)
	}

	if !reflect.DeepEqual(got, undo) {
		t.Fatalf("undo record did not round-trip:\ngot  %+v\nwant %+v", got, undo)
	}
}

func TestBlockUndoAlwaysEmitsSentinel(t *testing.T) {
	undo := &BlockUndo{}
	var buf bytes.Buffer
	if err := undo.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	r := bytes.NewReader(buf.Bytes())
	if n, err := wire.ReadVarInt(r); err != nil || n != 0 {
		t.Fatalf("tx undo count = %d, %v, want 0", n, err)
	}
	n, err := wire.ReadVarInt(r)
	if err != nil {
		t.Fatalf("lottery count: %v", err)
	}
	if n != 1 {
		t.Fatalf("lottery list length %d, want 1 (sentinel only)", n)
	}
	var sentinel LotteryUndo
	if err := readLotteryUndo(r, &sentinel); err != nil {
		t.Fatalf("read sentinel: %v", err)
	}
	if sentinel.ReplacedAddressType != InviteUndoMarkerType {
		t.Fatalf("sentinel type = %d, want %d",
			sentinel.ReplacedAddressType, InviteUndoMarkerType)
	}
}

func TestBlockUndoParsesLegacyRecordWithoutSentinel(t *testing.T) {
	// A record written before invite undos existed: tx undos and a
	// lottery list with no sentinel, nothing after.
	var buf bytes.Buffer
	if err := writeTxUndoList(&buf, []TxUndo{{testSpentOutput(4)}}); err != nil {
		t.Fatalf("writeTxUndoList: %v", err)
	}
	if err := wire.WriteVarInt(&buf, 1); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	var oldW address.Address
	oldW[0] = 0x11
	lu := LotteryUndo{ReplacedAddressType: 1, Replaced: oldW}
	if err := writeLotteryUndo(&buf, &lu); err != nil {
		t.Fatalf("writeLotteryUndo: %v", err)
	}

	got, err := DeserializeBlockUndo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DeserializeBlockUndo: %v", err)
	}
	if len(got.TxUndos) != 1 || len(got.LotteryUndos) != 1 || got.InviteUndos != nil {
		t.Fatalf("legacy parse mismatch: %+v", got)
	}
}

func TestBlockUndoRejectsMisplacedSentinel(t *testing.T) {
	var buf bytes.Buffer
	if err := writeTxUndoList(&buf, nil); err != nil {
		t.Fatalf("writeTxUndoList: %v", err)
	}
	if err := wire.WriteVarInt(&buf, 2); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	sentinel := LotteryUndo{ReplacedAddressType: InviteUndoMarkerType}
	real := LotteryUndo{ReplacedAddressType: 1}
	if err := writeLotteryUndo(&buf, &sentinel); err != nil {
		t.Fatalf("writeLotteryUndo: %v", err)
	}
	if err := writeLotteryUndo(&buf, &real); err != nil {
		t.Fatalf("writeLotteryUndo: %v", err)
	}
	if err := writeTxUndoList(&buf, nil); err != nil {
		t.Fatalf("writeTxUndoList: %v", err)
	}

	_, err := DeserializeBlockUndo(bytes.NewReader(buf.Bytes()))
	var rerr RuleError
	if !errors.As(err, &rerr) || !errors.Is(err, ErrBadUndoData) {
		t.Fatalf("err = %v, want %v", err, ErrBadUndoData)
	}
}
