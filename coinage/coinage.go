// Package coinage implements the CoinAgeIndex: a secondary index over the
// UTXO set mapping (address, is_invite) to unspent outputs, maintained
// synchronously with the UTXO set and consumed by the CGS engine.
package coinage

import (
	"encoding/binary"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/anv"
)

// invited offset: an invite output's AddressUnspent key uses type+10, a
// bit of bolted-on backwards compatibility the on-disk format carries.
const inviteTypeOffset = 10

// Index is the on-disk CoinAgeIndex, backed by an ordered key-value store
// with the AddressUnspent and AddressIndex keyspaces.
type Index struct {
	db *leveldb.DB
}

// Open opens or creates the coinage database at path.
func Open(path string) (*Index, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// unspentKeyType folds is_invite into the address type byte.
func unspentKeyType(addrType address.Type, isInvite bool) byte {
	t := byte(addrType)
	if isInvite {
		t += inviteTypeOffset
	}
	return t
}

// AddressUnspent: type:u8 | addr:20B | txid:32B | vout:u32LE. The coinbase
// flag is stored in the value (UnspentValue), not in the key.
func unspentKey(addrType address.Type, isInvite bool, addr address.Address, txid chainhash.Hash, vout uint32) []byte {
	k := make([]byte, 1+address.Size+chainhash.HashSize+4)
	off := 0
	k[off] = unspentKeyType(addrType, isInvite)
	off++
	copy(k[off:], addr[:])
	off += address.Size
	copy(k[off:], txid[:])
	off += chainhash.HashSize
	binary.LittleEndian.PutUint32(k[off:], vout)
	return k
}

func unspentPrefix(addrType address.Type, isInvite bool, addr address.Address) []byte {
	k := make([]byte, 1+address.Size)
	k[0] = unspentKeyType(addrType, isInvite)
	copy(k[1:], addr[:])
	return k
}

// UnspentValue is the payload stored at an AddressUnspent key.
type UnspentValue struct {
	Value      int64
	Height     int32
	IsCoinBase bool
}

func encodeUnspentValue(v UnspentValue) []byte {
	b := make([]byte, 8+4+1)
	binary.LittleEndian.PutUint64(b[0:8], uint64(v.Value))
	binary.LittleEndian.PutUint32(b[8:12], uint32(v.Height))
	if v.IsCoinBase {
		b[12] = 1
	}
	return b
}

func decodeUnspentValue(b []byte) UnspentValue {
	return UnspentValue{
		Value:      int64(binary.LittleEndian.Uint64(b[0:8])),
		Height:     int32(binary.LittleEndian.Uint32(b[8:12])),
		IsCoinBase: b[12] == 1,
	}
}

// indexKey: type:u8 | addr:20B | height:u32BE | txindex:u32BE | txid:32B |
// vout:u32LE. The spent flag is the one-byte value (0 unspent, 1 spent), not
// part of the key. Big-endian height is consensus-critical: it
// makes keys sort chronologically within an address.
func indexKey(addrType address.Type, isInvite bool, addr address.Address, height uint32, txIndex uint32, txid chainhash.Hash, vout uint32) []byte {
	k := make([]byte, 1+address.Size+4+4+chainhash.HashSize+4)
	off := 0
	k[off] = unspentKeyType(addrType, isInvite)
	off++
	copy(k[off:], addr[:])
	off += address.Size
	binary.BigEndian.PutUint32(k[off:], height)
	off += 4
	binary.BigEndian.PutUint32(k[off:], txIndex)
	off += 4
	copy(k[off:], txid[:])
	off += chainhash.HashSize
	binary.LittleEndian.PutUint32(k[off:], vout)
	return k
}

// AddUnspent records a new unspent output in both keyspaces.
func (idx *Index) AddUnspent(addrType address.Type, isInvite bool, addr address.Address, txid chainhash.Hash, vout uint32, value int64, height int32, txIndex uint32, isCoinbase bool) error {
	batch := new(leveldb.Batch)
	batch.Put(unspentKey(addrType, isInvite, addr, txid, vout), encodeUnspentValue(UnspentValue{Value: value, Height: height, IsCoinBase: isCoinbase}))
	batch.Put(indexKey(addrType, isInvite, addr, uint32(height), txIndex, txid, vout), []byte{0})
	return idx.db.Write(batch, nil)
}

// SpendUnspent removes an output from the unspent keyspace and marks its
// historical index entry spent, rather
// than deleting it, so historical queries can still see it existed.
func (idx *Index) SpendUnspent(addrType address.Type, isInvite bool, addr address.Address, txid chainhash.Hash, vout uint32, height int32, txIndex uint32) error {
	batch := new(leveldb.Batch)
	batch.Delete(unspentKey(addrType, isInvite, addr, txid, vout))
	batch.Put(indexKey(addrType, isInvite, addr, uint32(height), txIndex, txid, vout), []byte{1})
	return idx.db.Write(batch, nil)
}

// RemoveUnspent deletes an output from both keyspaces entirely. Only valid
// when a reorg disconnects the block that created the output; the forward
// spend path is SpendUnspent, which keeps the historical index entry.
func (idx *Index) RemoveUnspent(addrType address.Type, isInvite bool, addr address.Address, txid chainhash.Hash, vout uint32, height int32, txIndex uint32) error {
	batch := new(leveldb.Batch)
	batch.Delete(unspentKey(addrType, isInvite, addr, txid, vout))
	batch.Delete(indexKey(addrType, isInvite, addr, uint32(height), txIndex, txid, vout))
	return idx.db.Write(batch, nil)
}

// Unspent is one output returned by UnspentForAddress.
type Unspent struct {
	Txid       chainhash.Hash
	Vout       uint32
	Value      int64
	Height     int32
	IsCoinBase bool
}

// UnspentForAddress returns every currently unspent output for addr of the
// given type (coin or invite, per isInvite).
func (idx *Index) UnspentForAddress(addrType address.Type, isInvite bool, addr address.Address) ([]Unspent, error) {
	prefix := unspentPrefix(addrType, isInvite, addr)
	it := idx.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var out []Unspent
	for it.Next() {
		key := it.Key()
		if len(key) != 1+address.Size+chainhash.HashSize+4 {
			continue // an AddressIndex key sharing the type|addr prefix
		}
		var txid chainhash.Hash
		copy(txid[:], key[1+address.Size:1+address.Size+chainhash.HashSize])
		vout := binary.LittleEndian.Uint32(key[1+address.Size+chainhash.HashSize:])
		v := decodeUnspentValue(it.Value())
		out = append(out, Unspent{Txid: txid, Vout: vout, Value: v.Value, Height: v.Height, IsCoinBase: v.IsCoinBase})
	}
	return out, it.Error()
}

// CoinsForAddress implements anv.CoinSource: it returns every non-invite
// unspent coin for addr with height <= tipHeight, capped to the coin's
// height at most tipHeight.
func (idx *Index) CoinsForAddress(addr address.Address, tipHeight int32) ([]anv.Coin, error) {
	var out []anv.Coin
	for _, addrType := range []address.Type{address.PubKeyHash, address.ScriptHash, address.ParamScriptHash} {
		unspent, err := idx.UnspentForAddress(addrType, false, addr)
		if err != nil {
			return nil, err
		}
		for _, u := range unspent {
			if u.Height > tipHeight {
				continue
			}
			height := u.Height
			if height > tipHeight {
				height = tipHeight
			}
			out = append(out, anv.Coin{Height: height, Amount: u.Value})
		}
	}
	return out, nil
}
