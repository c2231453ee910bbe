package referral

import (
	"path/filepath"
	"testing"

	"github.com/meritfoundation/merit/address"
)

func openTestGraph(t *testing.T, genesis address.Address) *Graph {
	t.Helper()
	g, err := Open(filepath.Join(t.TempDir(), "referrals.ldb"), genesis, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGraphInsertAndLookup(t *testing.T) {
	var genesis, child address.Address
	genesis[0] = 0xff
	child[0] = 0x01
	g := openTestGraph(t, genesis)

	ref, _ := newSignedReferral(t, genesis, child, "root-child")
	if err := g.Insert(ref, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := g.Lookup(child)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Address() != child {
		t.Fatalf("looked up wrong address")
	}

	resolved, err := g.LookupByAlias("root-child")
	if err != nil {
		t.Fatalf("LookupByAlias: %v", err)
	}
	if resolved != child {
		t.Fatalf("LookupByAlias resolved to %s, want %s", resolved, child)
	}

	height, err := g.Height(child)
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	if height != 1 {
		t.Fatalf("Height = %d, want 1", height)
	}

	if confirmed, _ := g.IsConfirmed(child); confirmed {
		t.Fatal("should not be confirmed yet")
	}
	if err := g.MarkConfirmed(child, 2); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	if confirmed, _ := g.IsConfirmed(child); !confirmed {
		t.Fatal("should be confirmed")
	}
	if h, err := g.ConfirmedHeight(child); err != nil || h != 2 {
		t.Fatalf("ConfirmedHeight = %d, %v, want 2", h, err)
	}
	if err := g.MarkConfirmed(child, 9); err != nil {
		t.Fatalf("MarkConfirmed again: %v", err)
	}
	if h, _ := g.ConfirmedHeight(child); h != 2 {
		t.Fatalf("ConfirmedHeight after re-mark = %d, want 2 (first invite wins)", h)
	}
	if err := g.Unconfirm(child); err != nil {
		t.Fatalf("Unconfirm: %v", err)
	}
	if confirmed, _ := g.IsConfirmed(child); confirmed {
		t.Fatal("should be unconfirmed after Unconfirm")
	}
}

func TestGraphRejectsDuplicateAddress(t *testing.T) {
	var genesis, child address.Address
	genesis[0] = 0xff
	child[0] = 0x01
	g := openTestGraph(t, genesis)

	ref, _ := newSignedReferral(t, genesis, child, "")
	if err := g.Insert(ref, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := g.Insert(ref, 2); err != ErrDuplicateAddress {
		t.Fatalf("Insert duplicate = %v, want ErrDuplicateAddress", err)
	}
}

func TestGraphRejectsUnknownParent(t *testing.T) {
	var genesis, orphanParent, child address.Address
	genesis[0] = 0xff
	orphanParent[0] = 0x02
	child[0] = 0x03
	g := openTestGraph(t, genesis)

	ref, _ := newSignedReferral(t, orphanParent, child, "")
	if err := g.Insert(ref, 1); err != ErrUnknownParent {
		t.Fatalf("Insert with unknown parent = %v, want ErrUnknownParent", err)
	}
}

func TestGraphRejectsUnknownAddressType(t *testing.T) {
	var genesis, child address.Address
	genesis[0] = 0xff
	child[0] = 0x01
	g := openTestGraph(t, genesis)

	for _, addrType := range []address.Type{address.Unknown, address.Type(4), address.Type(0xff)} {
		ref, priv := newSignedReferral(t, genesis, child, "")
		ref.AddressType = addrType
		ref.Sign(priv)
		if err := g.Insert(ref, 1); err != ErrBadAddressType {
			t.Fatalf("Insert with address type %d: err = %v, want %v", addrType, err, ErrBadAddressType)
		}
	}
}

func TestGraphRejectsBadSignature(t *testing.T) {
	var genesis, child address.Address
	genesis[0] = 0xff
	child[0] = 0x01
	g := openTestGraph(t, genesis)

	ref, _ := newSignedReferral(t, genesis, child, "")
	ref.Alias = "tampered"
	if err := g.Insert(ref, 1); err != ErrBadSignature {
		t.Fatalf("Insert with tampered referral = %v, want ErrBadSignature", err)
	}
}

func TestGraphRejectsAliasCollision(t *testing.T) {
	var genesis, childA, childB address.Address
	genesis[0] = 0xff
	childA[0] = 0x01
	childB[0] = 0x02
	g := openTestGraph(t, genesis)

	refA, _ := newSignedReferral(t, genesis, childA, "shared")
	if err := g.Insert(refA, 1); err != nil {
		t.Fatalf("Insert refA: %v", err)
	}
	refB, _ := newSignedReferral(t, genesis, childB, "shared")
	if err := g.Insert(refB, 2); err != ErrAliasTaken {
		t.Fatalf("Insert refB = %v, want ErrAliasTaken", err)
	}
}

func TestGraphChildren(t *testing.T) {
	var genesis, childA, childB address.Address
	genesis[0] = 0xff
	childA[0] = 0x01
	childB[0] = 0x02
	g := openTestGraph(t, genesis)

	refA, _ := newSignedReferral(t, genesis, childA, "")
	refB, _ := newSignedReferral(t, genesis, childB, "")
	if err := g.Insert(refA, 1); err != nil {
		t.Fatalf("Insert refA: %v", err)
	}
	if err := g.Insert(refB, 2); err != nil {
		t.Fatalf("Insert refB: %v", err)
	}

	it := g.Children(genesis)
	defer it.Release()
	seen := map[address.Address]bool{}
	for it.Next() {
		seen[it.Address()] = true
	}
	if !seen[childA] || !seen[childB] {
		t.Fatalf("Children missed entries: %v", seen)
	}
}

func TestGraphRemoveUndoesInsert(t *testing.T) {
	var genesis, child address.Address
	genesis[0] = 0xff
	child[0] = 0x01
	g := openTestGraph(t, genesis)

	ref, _ := newSignedReferral(t, genesis, child, "removable")
	if err := g.Insert(ref, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := g.Remove(child); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := g.Lookup(child); err != ErrNotFound {
		t.Fatalf("Lookup after Remove = %v, want ErrNotFound", err)
	}
	if _, err := g.LookupByAlias("removable"); err != ErrNotFound {
		t.Fatalf("LookupByAlias after Remove = %v, want ErrNotFound", err)
	}
}
