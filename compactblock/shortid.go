// Package compactblock reconstructs a full block from a short-ID summary and
// the receiver's mempool, the way a peer announces a newly mined block
// without re-sending transactions it almost certainly already has.
package compactblock

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/dchest/siphash"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ShortID is a 48-bit truncated siphash of an item's hash, keyed per-block
// so short IDs cannot be precomputed across blocks.
type ShortID uint64

const shortIDMask = 0xffffffffffff

// shortIDKeys derives (k0, k1) from the low 128 bits of SHA-256(header ||
// nonce).
func shortIDKeys(headerBytes []byte, nonce uint64) (k0, k1 uint64) {
	h := sha256.New()
	h.Write(headerBytes)
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	h.Write(nonceBuf[:])
	sum := h.Sum(nil)

	k0 = binary.LittleEndian.Uint64(sum[0:8])
	k1 = binary.LittleEndian.Uint64(sum[8:16])
	return k0, k1
}

// getShortID computes the short ID for hash under the given keys.
func getShortID(k0, k1 uint64, hash chainhash.Hash) ShortID {
	full := siphash.Hash(k0, k1, hash[:])
	return ShortID(full & shortIDMask)
}

// writeShortID serialises a ShortID as 4 low bytes (LE) then 2 high bytes
// (LE).
func writeShortID(buf []byte, id ShortID) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(id&0xffffffff))
	binary.LittleEndian.PutUint16(buf[4:6], uint16((id>>32)&0xffff))
}

func readShortID(buf []byte) ShortID {
	lsb := binary.LittleEndian.Uint32(buf[0:4])
	msb := binary.LittleEndian.Uint16(buf[4:6])
	return ShortID(uint64(msb)<<32 | uint64(lsb))
}
