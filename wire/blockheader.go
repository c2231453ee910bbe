package wire

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// MaxBlockHeaderPayload is the number of bytes in a serialised BlockHeader:
// 4 (version) + 32 (prev) + 32 (merkle) + 4 (time) + 4 (bits) + 8 (nonce) +
// 1 (edge bits) + 42*4 (cycle).
const MaxBlockHeaderPayload = 4 + 32 + 32 + 4 + 4 + 8 + 1 + ProofSize*4

// BlockHeader is the fixed-size portion of a block, carrying the Cuckoo
// Cycle proof-of-work.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint64
	EdgeBits   uint8
	Cycle      [ProofSize]uint32
}

// BlockHash returns the chainhash of the serialised header. The PoW hash
// used for the difficulty check is this same value.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	var buf bytes.Buffer
	// Serialize errors are impossible against a bytes.Buffer.
	_ = h.Serialize(&buf)
	return chainhash.HashH(buf.Bytes())
}

// Serialize writes the little-endian wire encoding of the header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := writeElement(w, uint32(h.Version)); err != nil {
		return err
	}
	if err := writeElement(w, &h.PrevBlock); err != nil {
		return err
	}
	if err := writeElement(w, &h.MerkleRoot); err != nil {
		return err
	}
	if err := writeElement(w, uint32(h.Timestamp.Unix())); err != nil {
		return err
	}
	if err := writeElement(w, h.Bits); err != nil {
		return err
	}
	if err := writeElement(w, h.Nonce); err != nil {
		return err
	}
	if err := writeElement(w, h.EdgeBits); err != nil {
		return err
	}
	for _, e := range h.Cycle {
		if err := writeElement(w, e); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a header previously written by Serialize.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var version uint32
	if err := readElement(r, &version); err != nil {
		return err
	}
	h.Version = int32(version)
	if err := readElement(r, &h.PrevBlock); err != nil {
		return err
	}
	if err := readElement(r, &h.MerkleRoot); err != nil {
		return err
	}
	var ts uint32
	if err := readElement(r, &ts); err != nil {
		return err
	}
	h.Timestamp = time.Unix(int64(ts), 0)
	if err := readElement(r, &h.Bits); err != nil {
		return err
	}
	if err := readElement(r, &h.Nonce); err != nil {
		return err
	}
	if err := readElement(r, &h.EdgeBits); err != nil {
		return err
	}
	for i := range h.Cycle {
		if err := readElement(r, &h.Cycle[i]); err != nil {
			return err
		}
	}
	return nil
}

// PoWBytes returns the header bytes the Cuckoo Cycle siphash keys derive
// from: every field except the cycle itself, which cannot participate in
// the keying of the graph it proves membership in.
func (h *BlockHeader) PoWBytes() []byte {
	var buf bytes.Buffer
	_ = h.Serialize(&buf)
	return buf.Bytes()[:buf.Len()-ProofSize*4]
}

// CycleSorted reports whether the header's cycle is strictly ascending, a
// precondition cuckoo.Verify checks independently.
func (h *BlockHeader) CycleSorted() bool {
	for i := 1; i < len(h.Cycle); i++ {
		if h.Cycle[i] <= h.Cycle[i-1] {
			return false
		}
	}
	return true
}

func (h *BlockHeader) String() string {
	return fmt.Sprintf("BlockHeader{version:%d edgebits:%d bits:%08x}", h.Version, h.EdgeBits, h.Bits)
}
