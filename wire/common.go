// Package wire implements Merit's block header and the little-endian,
// length-prefixed primitives its binary encodings are built from.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ProofSize is the number of edges in a Cuckoo Cycle proof.
const ProofSize = 42

// writeElement writes the little-endian wire encoding of element to w.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		return binary.Write(w, binary.LittleEndian, e)
	case uint16:
		return binary.Write(w, binary.LittleEndian, e)
	case uint32:
		return binary.Write(w, binary.LittleEndian, e)
	case uint64:
		return binary.Write(w, binary.LittleEndian, e)
	case int64:
		return binary.Write(w, binary.LittleEndian, e)
	case *chainhash.Hash:
		_, err := w.Write(e[:])
		return err
	default:
		return fmt.Errorf("wire: unsupported type %T", element)
	}
}

// readElement reads the little-endian wire encoding of element from r.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		return binary.Read(r, binary.LittleEndian, e)
	case *uint16:
		return binary.Read(r, binary.LittleEndian, e)
	case *uint32:
		return binary.Read(r, binary.LittleEndian, e)
	case *uint64:
		return binary.Read(r, binary.LittleEndian, e)
	case *int64:
		return binary.Read(r, binary.LittleEndian, e)
	case *chainhash.Hash:
		_, err := io.ReadFull(r, e[:])
		return err
	default:
		return fmt.Errorf("wire: unsupported type %T", element)
	}
}

// WriteVarInt serialises n as a bitcoin-style CompactSize integer: the
// encoding compact blocks and the referral alias length both
// use for variable-length prefixes.
func WriteVarInt(w io.Writer, n uint64) error {
	switch {
	case n < 0xfd:
		return writeElement(w, uint8(n))
	case n <= 0xffff:
		if err := writeElement(w, uint8(0xfd)); err != nil {
			return err
		}
		return writeElement(w, uint16(n))
	case n <= 0xffffffff:
		if err := writeElement(w, uint8(0xfe)); err != nil {
			return err
		}
		return writeElement(w, uint32(n))
	default:
		if err := writeElement(w, uint8(0xff)); err != nil {
			return err
		}
		return writeElement(w, uint64(n))
	}
}

// ReadVarInt deserialises a CompactSize integer written by WriteVarInt.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix uint8
	if err := readElement(r, &prefix); err != nil {
		return 0, err
	}
	switch prefix {
	case 0xfd:
		var v uint16
		if err := readElement(r, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xfe:
		var v uint32
		if err := readElement(r, &v); err != nil {
			return 0, err
		}
		return uint64(v), nil
	case 0xff:
		var v uint64
		if err := readElement(r, &v); err != nil {
			return 0, err
		}
		return v, nil
	default:
		return uint64(prefix), nil
	}
}

// WriteVarBytes writes a CompactSize length prefix followed by b.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadVarBytes reads a CompactSize-prefixed byte string, rejecting anything
// longer than maxLen (the caller's protocol-specific bound).
func ReadVarBytes(r io.Reader, maxLen uint64, what string) ([]byte, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, fmt.Errorf("wire: %s length %d exceeds max %d", what, n, maxLen)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
