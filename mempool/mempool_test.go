package mempool

import (
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/referral"
	"github.com/meritfoundation/merit/tx"
)

type fakeAliasSource struct {
	taken map[string]address.Address
}

func (f *fakeAliasSource) LookupByAlias(alias string) (address.Address, error) {
	if a, ok := f.taken[alias]; ok {
		return a, nil
	}
	return address.Address{}, referral.ErrNotFound
}

func sampleReferral(seed byte, alias string) *referral.Referral {
	var parent, keyHash address.Address
	parent[0] = 0xff
	keyHash[0] = seed
	return &referral.Referral{
		Version:       referral.CurrentVersion,
		ParentAddress: parent,
		AddressType:   address.PubKeyHash,
		KeyHash:       keyHash,
		Alias:         alias,
	}
}

func sampleMempoolTx(seed byte) *tx.Tx {
	var addr address.Address
	addr[0] = seed
	return &tx.Tx{
		Version: 1,
		TxIn:    []tx.TxIn{{PreviousOutPoint: tx.OutPoint{Hash: chainhash.HashH([]byte{seed})}}},
		TxOut:   []tx.TxOut{{Value: 1, AddressType: address.PubKeyHash, Address: addr}},
	}
}

func TestAddTxAndLookup(t *testing.T) {
	p := New(&fakeAliasSource{taken: map[string]address.Address{}})
	tr := sampleMempoolTx(1)
	p.AddTx(tr)

	got, ok := p.TxByHash(tr.Hash())
	if !ok || got.Hash() != tr.Hash() {
		t.Fatalf("expected transaction to be staged")
	}
	if len(p.AllTxHashes()) != 1 {
		t.Fatalf("expected one staged tx hash")
	}

	p.RemoveTx(tr.Hash())
	if _, ok := p.TxByHash(tr.Hash()); ok {
		t.Fatal("expected transaction to be removed")
	}
}

func TestAddReferralRejectsAliasAlreadyConfirmed(t *testing.T) {
	p := New(&fakeAliasSource{taken: map[string]address.Address{"bob": {1}}})
	ref := sampleReferral(9, "bob")

	if err := p.AddReferral(ref, "bob"); err != ErrAliasTaken {
		t.Fatalf("expected ErrAliasTaken, got %v", err)
	}
}

func TestAddReferralRejectsAliasAlreadyStaged(t *testing.T) {
	p := New(&fakeAliasSource{taken: map[string]address.Address{}})
	first := sampleReferral(1, "bob")
	second := sampleReferral(2, "bob")

	if err := p.AddReferral(first, "bob"); err != nil {
		t.Fatalf("unexpected error staging first referral: %v", err)
	}
	if err := p.AddReferral(second, "bob"); err != ErrAliasTaken {
		t.Fatalf("expected ErrAliasTaken for second referral, got %v", err)
	}
}

func TestReferralsByParent(t *testing.T) {
	p := New(&fakeAliasSource{taken: map[string]address.Address{}})
	child1 := sampleReferral(1, "")
	child2 := sampleReferral(2, "")
	p.AddReferral(child1, "")
	p.AddReferral(child2, "")

	var parent address.Address
	parent[0] = 0xff
	children := p.ReferralsByParent(parent)
	if len(children) != 2 {
		t.Fatalf("expected 2 children staged under parent, got %d", len(children))
	}
}

func TestNotifyConfirmedRemovesAndFansOut(t *testing.T) {
	p := New(&fakeAliasSource{taken: map[string]address.Address{}})
	tr := sampleMempoolTx(3)
	ref := sampleReferral(4, "")
	p.AddTx(tr)
	p.AddReferral(ref, "")

	sub := p.Subscribe()
	p.NotifyConfirmed(ConfirmationEvent{TxHash: tr.Hash(), ReferralHash: ref.Hash(), Height: 10})

	if _, ok := p.TxByHash(tr.Hash()); ok {
		t.Fatal("expected confirmed tx to be removed from pool")
	}
	if _, ok := p.ReferralByHash(ref.Hash()); ok {
		t.Fatal("expected confirmed referral to be removed from pool")
	}

	select {
	case evt := <-sub:
		if evt.TxHash != tr.Hash() {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("expected a confirmation event on the subscriber channel")
	}
}
