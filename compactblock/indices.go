package compactblock

import (
	"fmt"
	"io"

	"github.com/meritfoundation/merit/wire"
)

// writeCompressedIndices delta-encodes an ascending list of indices as
// CompactSize varints: the first element as-is, every subsequent element as
// its distance past the previous element's successor.
func writeCompressedIndices(w io.Writer, indices []uint16) error {
	if len(indices) == 0 {
		return nil
	}
	if err := wire.WriteVarInt(w, uint64(indices[0])); err != nil {
		return err
	}
	expected := uint32(indices[0]) + 1
	for _, idx := range indices[1:] {
		if err := wire.WriteVarInt(w, uint64(uint32(idx)-expected)); err != nil {
			return err
		}
		expected = uint32(idx) + 1
	}
	return nil
}

// readCompressedIndices reverses writeCompressedIndices for a known count,
// rejecting any index that overflows 16 bits once de-delta'd.
func readCompressedIndices(r io.Reader, count uint64) ([]uint16, error) {
	out := make([]uint16, count)
	var offset uint32
	for i := range out {
		raw, err := wire.ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if raw > 0xffff {
			return nil, fmt.Errorf("compactblock: index delta %d overflowed 16 bits", raw)
		}
		idx := uint32(raw) + offset
		if idx > 0xffff {
			return nil, fmt.Errorf("compactblock: index %d overflowed 16 bits", idx)
		}
		out[i] = uint16(idx)
		offset = idx + 1
	}
	return out, nil
}

func writeShortIDs(w io.Writer, ids []ShortID) error {
	var buf [6]byte
	for _, id := range ids {
		writeShortID(buf[:], id)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func readShortIDs(r io.Reader, count uint64) ([]ShortID, error) {
	out := make([]ShortID, count)
	var buf [6]byte
	for i := range out {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		out[i] = readShortID(buf[:])
	}
	return out, nil
}
