package tx

import (
	"encoding/binary"
	"io"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/wire"
)

const maxScriptSize = 16384

// Serialize writes the wire encoding of t: version, inputs, outputs,
// locktime, and the invite flag, in that order, little-endian throughout.
func (t *Tx) Serialize(w io.Writer) error {
	if err := writeU32(w, uint32(t.Version)); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, uint64(len(t.TxIn))); err != nil {
		return err
	}
	for _, in := range t.TxIn {
		if _, err := w.Write(in.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		if err := writeU32(w, in.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, in.SignatureScript); err != nil {
			return err
		}
		if err := writeU32(w, in.Sequence); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, uint64(len(t.TxOut))); err != nil {
		return err
	}
	for _, out := range t.TxOut {
		if err := writeI64(w, out.Value); err != nil {
			return err
		}
		if _, err := w.Write([]byte{byte(out.AddressType)}); err != nil {
			return err
		}
		if _, err := w.Write(out.Address[:]); err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, out.PkScript); err != nil {
			return err
		}
	}

	if err := writeU32(w, t.LockTime); err != nil {
		return err
	}

	flag := byte(0)
	if t.IsInvite {
		flag = 1
	}
	_, err := w.Write([]byte{flag})
	return err
}

// Deserialize reads a transaction written by Serialize.
func Deserialize(r io.Reader) (*Tx, error) {
	t := &Tx{}

	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	t.Version = int32(version)

	inCount, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	t.TxIn = make([]TxIn, inCount)
	for i := range t.TxIn {
		if _, err := io.ReadFull(r, t.TxIn[i].PreviousOutPoint.Hash[:]); err != nil {
			return nil, err
		}
		if t.TxIn[i].PreviousOutPoint.Index, err = readU32(r); err != nil {
			return nil, err
		}
		if t.TxIn[i].SignatureScript, err = wire.ReadVarBytes(r, maxScriptSize, "signature script"); err != nil {
			return nil, err
		}
		if t.TxIn[i].Sequence, err = readU32(r); err != nil {
			return nil, err
		}
	}

	outCount, err := wire.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	t.TxOut = make([]TxOut, outCount)
	for i := range t.TxOut {
		if t.TxOut[i].Value, err = readI64(r); err != nil {
			return nil, err
		}
		var typeByte [1]byte
		if _, err := io.ReadFull(r, typeByte[:]); err != nil {
			return nil, err
		}
		t.TxOut[i].AddressType = address.Type(typeByte[0])
		if _, err := io.ReadFull(r, t.TxOut[i].Address[:]); err != nil {
			return nil, err
		}
		if t.TxOut[i].PkScript, err = wire.ReadVarBytes(r, maxScriptSize, "pk script"); err != nil {
			return nil, err
		}
	}

	if t.LockTime, err = readU32(r); err != nil {
		return nil, err
	}

	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	t.IsInvite = flag[0] != 0

	return t, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeI64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func readI64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}
