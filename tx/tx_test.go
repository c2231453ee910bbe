package tx

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
)

func sampleTx() *Tx {
	var addr address.Address
	addr[0] = 1
	return &Tx{
		Version: 1,
		TxIn: []TxIn{
			{
				PreviousOutPoint: OutPoint{Hash: chainhash.HashH([]byte("prev")), Index: 3},
				SignatureScript:  []byte{0x01, 0x02},
				Sequence:         0xffffffff,
			},
		},
		TxOut: []TxOut{
			{Value: 5000, AddressType: address.PubKeyHash, Address: addr, PkScript: []byte{0x76, 0xa9}},
		},
		LockTime: 42,
		IsInvite: false,
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	original := sampleTx()

	var buf bytes.Buffer
	if err := original.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if got.Hash() != original.Hash() {
		t.Fatalf("round-tripped tx hash differs: got %s, want %s", got.Hash(), original.Hash())
	}
	if got.IsInvite != original.IsInvite || got.LockTime != original.LockTime {
		t.Fatalf("round-tripped fields differ: %+v vs %+v", got, original)
	}
}

func TestSerializeDeserializeRoundTripInvite(t *testing.T) {
	original := sampleTx()
	original.IsInvite = true

	var buf bytes.Buffer
	if err := original.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !got.IsInvite {
		t.Fatal("IsInvite flag lost across round trip")
	}
}

func TestIsCoinBase(t *testing.T) {
	coinbase := &Tx{
		TxIn: []TxIn{{PreviousOutPoint: OutPoint{Hash: chainhash.Hash{}, Index: 0xffffffff}}},
	}
	if !coinbase.IsCoinBase() {
		t.Fatal("expected coinbase detection to succeed")
	}

	notCoinbase := sampleTx()
	if notCoinbase.IsCoinBase() {
		t.Fatal("ordinary tx misidentified as coinbase")
	}
}
