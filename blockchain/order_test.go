package blockchain

import (
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/referral"
)

func signedReferral(t *testing.T, parent, child address.Address, alias string) *referral.Referral {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	ref := &referral.Referral{
		Version:       referral.CurrentVersion,
		ParentAddress: parent,
		AddressType:   address.PubKeyHash,
		KeyHash:       child,
		Alias:         alias,
	}
	copy(ref.PubKey[:], priv.PubKey().SerializeCompressed())
	ref.Sign(priv)
	return ref
}

func addr(seed byte) address.Address {
	var a address.Address
	a[0] = seed
	return a
}

func TestOrderReferralsParentBeforeChild(t *testing.T) {
	genesis := addr(0xff)
	a, b, c := addr(1), addr(2), addr(3)

	// Deliberately out of order: grandchild, child, parent.
	refs := []*referral.Referral{
		signedReferral(t, b, c, ""),
		signedReferral(t, a, b, ""),
		signedReferral(t, genesis, a, ""),
	}
	known := func(x address.Address) bool { return x == genesis }

	ordered, err := OrderReferrals(refs, known)
	if err != nil {
		t.Fatalf("OrderReferrals: %v", err)
	}
	if len(ordered) != 3 {
		t.Fatalf("got %d referrals, want 3", len(ordered))
	}
	pos := make(map[address.Address]int)
	for i, r := range ordered {
		pos[r.Address()] = i
	}
	if !(pos[a] < pos[b] && pos[b] < pos[c]) {
		t.Fatalf("order violates parent-before-child: %v", pos)
	}
}

func TestOrderReferralsTieBreakIsBlockOrder(t *testing.T) {
	genesis := addr(0xff)
	refs := []*referral.Referral{
		signedReferral(t, genesis, addr(5), ""),
		signedReferral(t, genesis, addr(4), ""),
		signedReferral(t, genesis, addr(6), ""),
	}
	known := func(x address.Address) bool { return x == genesis }

	ordered, err := OrderReferrals(refs, known)
	if err != nil {
		t.Fatalf("OrderReferrals: %v", err)
	}
	for i := range refs {
		if ordered[i] != refs[i] {
			t.Fatalf("siblings reordered: position %d", i)
		}
	}
}

func TestOrderReferralsRejectsCycle(t *testing.T) {
	a, b := addr(1), addr(2)
	refs := []*referral.Referral{
		signedReferral(t, b, a, ""),
		signedReferral(t, a, b, ""),
	}
	_, err := OrderReferrals(refs, func(address.Address) bool { return false })
	if !errors.Is(err, ErrBadReferralOrder) {
		t.Fatalf("err = %v, want %v", err, ErrBadReferralOrder)
	}
}

func TestOrderReferralsRejectsUnreachableParent(t *testing.T) {
	refs := []*referral.Referral{
		signedReferral(t, addr(9), addr(1), ""),
	}
	_, err := OrderReferrals(refs, func(address.Address) bool { return false })
	if !errors.Is(err, ErrBadReferralOrder) {
		t.Fatalf("err = %v, want %v", err, ErrBadReferralOrder)
	}
}

func TestOrderReferralsEmpty(t *testing.T) {
	ordered, err := OrderReferrals(nil, func(address.Address) bool { return true })
	if err != nil || ordered != nil {
		t.Fatalf("OrderReferrals(nil) = %v, %v", ordered, err)
	}
}
