// Package referral implements the referral graph: the forest of beaconed
// addresses that gates who may send or receive value, plus its binary wire
// format and signature rule.
package referral

import (
	"bytes"
	"errors"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/wire"
)

// PubKeySize is the length of a compressed secp256k1 public key.
const PubKeySize = 33

// MaxAliasLen is the alias length cap, enforced at every height.
const MaxAliasLen = 20

// CurrentVersion is the referral binary format version this package emits.
const CurrentVersion = 1

// Referral is "this address is invited into the graph and I (pubkey) vouch"
type Referral struct {
	Version       uint8
	ParentAddress address.Address
	AddressType   address.Type
	KeyHash       address.Address // the address being beaconed
	PubKey        [PubKeySize]byte
	Alias         string
	Signature     []byte
}

// Address returns the address this referral beacons.
func (r *Referral) Address() address.Address {
	return r.KeyHash
}

// Hash returns the referral's identity hash, computed over its full
// serialised form (signature included). Distinct from SignedData, which the
// signature itself covers.
func (r *Referral) Hash() chainhash.Hash {
	var buf bytes.Buffer
	_ = r.Serialize(&buf)
	return chainhash.HashH(buf.Bytes())
}

// SignedData returns the canonical serialisation the signature covers:
// every field except the signature itself.
func (r *Referral) SignedData() []byte {
	var buf bytes.Buffer
	buf.WriteByte(r.Version)
	buf.Write(r.ParentAddress[:])
	buf.WriteByte(byte(r.AddressType))
	buf.Write(r.KeyHash[:])
	buf.Write(r.PubKey[:])
	_ = wire.WriteVarBytes(&buf, []byte(r.Alias))
	return buf.Bytes()
}

// Sign populates r.Signature by signing SignedData with priv.
func (r *Referral) Sign(priv *secp256k1.PrivateKey) {
	digest := chainhash.HashB(r.SignedData())
	sig := ecdsa.Sign(priv, digest)
	r.Signature = sig.Serialize()
}

// VerifySignature checks r.Signature against r.PubKey over SignedData.
func (r *Referral) VerifySignature() bool {
	pub, err := secp256k1.ParsePubKey(r.PubKey[:])
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(r.Signature)
	if err != nil {
		return false
	}
	digest := chainhash.HashB(r.SignedData())
	return sig.Verify(digest, pub)
}

// Serialize writes the full binary wire format.
func (r *Referral) Serialize(w io.Writer) error {
	if _, err := w.Write([]byte{r.Version}); err != nil {
		return err
	}
	if _, err := w.Write(r.ParentAddress[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(r.AddressType)}); err != nil {
		return err
	}
	if _, err := w.Write(r.KeyHash[:]); err != nil {
		return err
	}
	if _, err := w.Write(r.PubKey[:]); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, []byte(r.Alias)); err != nil {
		return err
	}
	_, err := w.Write(r.Signature)
	return err
}

// ErrTruncated is returned when a referral buffer ends before the fixed
// fields are fully read.
var ErrTruncated = errors.New("referral: truncated")

// Deserialize reads a referral written by Serialize. Because the signature
// has no length prefix on the wire, it consumes the remainder of r.
func Deserialize(r io.Reader) (*Referral, error) {
	ref := &Referral{}
	fixed := make([]byte, 1+address.Size+1+address.Size+PubKeySize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, ErrTruncated
	}
	off := 0
	ref.Version = fixed[off]
	off++
	copy(ref.ParentAddress[:], fixed[off:off+address.Size])
	off += address.Size
	ref.AddressType = address.Type(fixed[off])
	off++
	copy(ref.KeyHash[:], fixed[off:off+address.Size])
	off += address.Size
	copy(ref.PubKey[:], fixed[off:off+PubKeySize])

	alias, err := wire.ReadVarBytes(r, MaxAliasLen*4, "referral alias")
	if err != nil {
		return nil, err
	}
	ref.Alias = string(alias)

	sig, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	ref.Signature = sig
	return ref, nil
}
