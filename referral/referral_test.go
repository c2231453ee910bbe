package referral

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/meritfoundation/merit/address"
)

func mustKey(t *testing.T) *secp256k1.PrivateKey {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	return priv
}

func newSignedReferral(t *testing.T, parent, child address.Address, alias string) (*Referral, *secp256k1.PrivateKey) {
	t.Helper()
	priv := mustKey(t)
	ref := &Referral{
		Version:       CurrentVersion,
		ParentAddress: parent,
		AddressType:   address.PubKeyHash,
		KeyHash:       child,
		Alias:         alias,
	}
	copy(ref.PubKey[:], priv.PubKey().SerializeCompressed())
	ref.Sign(priv)
	return ref, priv
}

func TestReferralSignRoundTrip(t *testing.T) {
	var parent, child address.Address
	parent[0] = 1
	child[0] = 2
	ref, _ := newSignedReferral(t, parent, child, "alice")

	if !ref.VerifySignature() {
		t.Fatal("expected valid signature to verify")
	}

	ref.Alias = "mallory"
	if ref.VerifySignature() {
		t.Fatal("expected tampered alias to invalidate signature")
	}
}

func TestReferralSerializeDeserialize(t *testing.T) {
	var parent, child address.Address
	parent[0] = 0xaa
	child[0] = 0xbb
	ref, _ := newSignedReferral(t, parent, child, "bob")

	var buf bytes.Buffer
	if err := ref.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Deserialize(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Address() != ref.Address() {
		t.Fatalf("address mismatch: got %s want %s", got.Address(), ref.Address())
	}
	if got.Alias != ref.Alias {
		t.Fatalf("alias mismatch: got %q want %q", got.Alias, ref.Alias)
	}
	if !got.VerifySignature() {
		t.Fatal("round-tripped referral should still verify")
	}
}

func TestReferralHashExcludesNothingButIsStable(t *testing.T) {
	var parent, child address.Address
	parent[0] = 1
	child[0] = 2
	ref, _ := newSignedReferral(t, parent, child, "carol")

	h1 := ref.Hash()
	h2 := ref.Hash()
	if h1 != h2 {
		t.Fatal("Hash should be deterministic")
	}

	ref.Signature = append(ref.Signature, 0x00)
	if ref.Hash() == h1 {
		t.Fatal("Hash should cover the signature bytes")
	}
}
