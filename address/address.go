// Package address implements Merit's 160-bit address identifiers.
//
// Addresses are tagged with a type byte distinguishing pubkey-hash,
// script-hash, and parameterised-script-hash destinations, mirroring the
// reference UTXO model's P2PKH/P2SH/parameterised-P2SH script classes without
// implementing the scripting language itself.
package address

import (
	"encoding/hex"
	"errors"

	"github.com/decred/base58"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

// Type enumerates the address kinds a referral may beacon.
type Type byte

const (
	// Unknown is never valid on a referral; it exists only as the zero value.
	Unknown Type = 0
	// PubKeyHash addresses pay a single public key (P2PKH-equivalent).
	PubKeyHash Type = 1
	// ScriptHash addresses pay a redeem script (P2SH-equivalent).
	ScriptHash Type = 2
	// ParamScriptHash addresses pay a parameterised redeem script.
	ParamScriptHash Type = 3
)

// Valid reports whether t is one of the three known address types.
func (t Type) Valid() bool {
	return t == PubKeyHash || t == ScriptHash || t == ParamScriptHash
}

func (t Type) String() string {
	switch t {
	case PubKeyHash:
		return "pubkeyhash"
	case ScriptHash:
		return "scripthash"
	case ParamScriptHash:
		return "paramscripthash"
	default:
		return "unknown"
	}
}

// Size is the length in bytes of an Address.
const Size = 20

// Address is a 160-bit address identifier: ripemd160(sha256(payload)).
type Address [Size]byte

// ErrBadSize is returned when decoding a byte slice of the wrong length.
var ErrBadSize = errors.New("address: expected 20 bytes")

// New constructs an Address from a raw 20-byte slice.
func New(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, ErrBadSize
	}
	copy(a[:], b)
	return a, nil
}

// Hash160 computes ripemd160(sha256(buf)), the standard bitcoin/Decred-style
// address digest, and returns it as an Address.
func Hash160(buf []byte) Address {
	sum := chainhash.HashB(buf)
	h := ripemd160.New()
	h.Write(sum)
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// IsZero reports whether a is the all-zero address (used as the "no parent"
// sentinel for the genesis referral).
func (a Address) IsZero() bool {
	return a == Address{}
}

// String renders the address as plain base58 text (no checksum) for logs
// and debugging.
// This is a peripheral, non-consensus rendering; the wire format never
// uses it.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Hex renders the address as lowercase hex, used by on-disk key debugging.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Less provides a total order over addresses, used for deterministic
// tie-breaking in lottery and graph code.
func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
