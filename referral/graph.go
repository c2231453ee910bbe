package referral

import (
	"bytes"
	"errors"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/sigcache"
)

// defaultSigCacheEntries bounds the number of verified referral signatures
// a Graph remembers at once.
const defaultSigCacheEntries = 100000

// Keyspace prefixes.
const (
	prefixReferral  = 'R' // R/<addr20> -> referral bytes
	prefixAlias     = 'A' // A/<alias>  -> address
	prefixChild     = 'C' // C/<parent20>/<addr20> -> empty
	prefixHeight    = 'H' // H/<addr20> -> block height at first appearance
	prefixConfirmed = 'F' // F/<addr20> -> first confirmation height (u32 BE)
)

var (
	// ErrDuplicateAddress is returned inserting a referral whose address is
	// already beaconed.
	ErrDuplicateAddress = errors.New("referral: duplicate address")
	// ErrUnknownParent is returned when the parent address has no referral
	// of its own (except the configured genesis address).
	ErrUnknownParent = errors.New("referral: unknown parent")
	// ErrBadSignature is returned when VerifySignature fails.
	ErrBadSignature = errors.New("referral: bad signature")
	// ErrBadAddressType is returned when the referral's address type is not
	// one of the known kinds; unknown types are rejected at referral time.
	ErrBadAddressType = errors.New("referral: bad address type")
	// ErrAliasTaken is returned inserting a referral whose normalised alias
	// collides with an existing one.
	ErrAliasTaken = errors.New("referral: alias taken")
	// ErrNotFound is returned by lookups that miss.
	ErrNotFound = errors.New("referral: not found")
)

// Graph is the persistent forest of beaconed addresses, backed by an
// ordered key-value store.
type Graph struct {
	db           *leveldb.DB
	genesisAddr  address.Address
	hasGenesis   bool
	saferAliasHt uint32
	sigCache     *sigcache.Cache
}

// Open opens or creates the referral graph database at path. genesis is the
// address permitted as a parent with no referral of its own (the network's
// root). saferAliasHeight gates the stricter alias-normalisation rules.
func Open(path string, genesis address.Address, saferAliasHeight uint32) (*Graph, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Graph{
		db:           db,
		genesisAddr:  genesis,
		hasGenesis:   true,
		saferAliasHt: saferAliasHeight,
		sigCache:     sigcache.New(defaultSigCacheEntries),
	}, nil
}

// Close releases the underlying database handle.
func (g *Graph) Close() error {
	return g.db.Close()
}

// EvictVerifiedSignatures drops hashes from the signature cache once their
// referrals are sigcache.ProactiveEvictionDepth blocks deep. Callers connect
// this to block-confirmation bookkeeping; a referral not evicted simply
// costs one cache slot longer, so this is a size optimisation, not a
// correctness requirement.
func (g *Graph) EvictVerifiedSignatures(hashes []chainhash.Hash) {
	g.sigCache.EvictConfirmed(hashes)
}

func referralKey(a address.Address) []byte {
	k := make([]byte, 1+address.Size)
	k[0] = prefixReferral
	copy(k[1:], a[:])
	return k
}

func aliasKey(alias string) []byte {
	k := make([]byte, 1+len(alias))
	k[0] = prefixAlias
	copy(k[1:], alias)
	return k
}

func childKey(parent, child address.Address) []byte {
	k := make([]byte, 1+address.Size+address.Size)
	k[0] = prefixChild
	copy(k[1:], parent[:])
	copy(k[1+address.Size:], child[:])
	return k
}

func childPrefix(parent address.Address) []byte {
	k := make([]byte, 1+address.Size)
	k[0] = prefixChild
	copy(k[1:], parent[:])
	return k
}

func heightKey(a address.Address) []byte {
	k := make([]byte, 1+address.Size)
	k[0] = prefixHeight
	copy(k[1:], a[:])
	return k
}

func confirmedKey(a address.Address) []byte {
	k := make([]byte, 1+address.Size)
	k[0] = prefixConfirmed
	copy(k[1:], a[:])
	return k
}

func u32be(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func beU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Insert records ref in the graph at the given block height, after checking
// the address type is a known kind, the parent exists (or is the genesis
// address), the address isn't already beaconed, the alias (if any) isn't
// taken, and the signature verifies.
// Insertion is not atomic against concurrent batch inserts within a block;
// callers sort the block's referrals parent-before-child first.
func (g *Graph) Insert(ref *Referral, height uint32) error {
	if !ref.AddressType.Valid() {
		return ErrBadAddressType
	}
	hash := ref.Hash()
	if !g.sigCache.Exists(hash) {
		if !ref.VerifySignature() {
			return ErrBadSignature
		}
		g.sigCache.Add(hash)
	}
	addr := ref.Address()

	if _, err := g.db.Get(referralKey(addr), nil); err == nil {
		return ErrDuplicateAddress
	} else if err != leveldb.ErrNotFound {
		return err
	}

	if addr != ref.ParentAddress {
		isGenesis := g.hasGenesis && ref.ParentAddress == g.genesisAddr
		if !isGenesis {
			if _, err := g.db.Get(referralKey(ref.ParentAddress), nil); err == leveldb.ErrNotFound {
				return ErrUnknownParent
			} else if err != nil {
				return err
			}
		}
	}

	norm, err := NormalizeAlias(ref.Alias, height, g.saferAliasHt)
	if err != nil {
		return err
	}
	if norm != "" {
		if _, err := g.db.Get(aliasKey(norm), nil); err == nil {
			return ErrAliasTaken
		} else if err != leveldb.ErrNotFound {
			return err
		}
	}

	batch := new(leveldb.Batch)
	var buf bytes.Buffer
	if err := ref.Serialize(&buf); err != nil {
		return err
	}
	batch.Put(referralKey(addr), buf.Bytes())
	batch.Put(childKey(ref.ParentAddress, addr), nil)
	batch.Put(heightKey(addr), u32be(height))
	if norm != "" {
		batch.Put(aliasKey(norm), addr[:])
	}
	return g.db.Write(batch, nil)
}

// Lookup returns the referral beaconing addr.
func (g *Graph) Lookup(addr address.Address) (*Referral, error) {
	b, err := g.db.Get(referralKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return Deserialize(bytes.NewReader(b))
}

// LookupByAlias resolves a normalised alias to its address.
func (g *Graph) LookupByAlias(alias string) (address.Address, error) {
	b, err := g.db.Get(aliasKey(alias), nil)
	if err == leveldb.ErrNotFound {
		return address.Address{}, ErrNotFound
	} else if err != nil {
		return address.Address{}, err
	}
	return address.New(b)
}

// ChildIterator walks the addresses directly referred by a parent.
type ChildIterator struct {
	it     iterator.Iterator
	prefix []byte
	first  bool
}

// Children returns an iterator over addr's direct children.
func (g *Graph) Children(addr address.Address) *ChildIterator {
	prefix := childPrefix(addr)
	it := g.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &ChildIterator{it: it, prefix: prefix, first: true}
}

// Next advances the iterator, returning false when exhausted.
func (ci *ChildIterator) Next() bool {
	if ci.first {
		ci.first = false
		return ci.it.First()
	}
	return ci.it.Next()
}

// Address returns the child address at the iterator's current position.
func (ci *ChildIterator) Address() address.Address {
	key := ci.it.Key()
	var a address.Address
	copy(a[:], key[len(ci.prefix):])
	return a
}

// Release must be called once the caller is done iterating.
func (ci *ChildIterator) Release() {
	ci.it.Release()
}

// Height returns the block height at which addr first appeared.
func (g *Graph) Height(addr address.Address) (uint32, error) {
	b, err := g.db.Get(heightKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}
	return beU32(b), nil
}

// IsConfirmed reports whether addr has been marked confirmed.
func (g *Graph) IsConfirmed(addr address.Address) (bool, error) {
	b, err := g.db.Get(confirmedKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return len(b) > 0, nil
}

// MarkConfirmed records that addr received its first invite at height.
// Idempotent: a later invite never overwrites the first confirmation
// height, which the reorg path compares against to decide whether
// disconnecting a block un-confirms the address.
func (g *Graph) MarkConfirmed(addr address.Address, height uint32) error {
	if _, err := g.db.Get(confirmedKey(addr), nil); err == nil {
		return nil
	} else if err != leveldb.ErrNotFound {
		return err
	}
	return g.db.Put(confirmedKey(addr), u32be(height), nil)
}

// ConfirmedHeight returns the height addr was first confirmed at, or
// ErrNotFound if addr is unconfirmed.
func (g *Graph) ConfirmedHeight(addr address.Address) (uint32, error) {
	b, err := g.db.Get(confirmedKey(addr), nil)
	if err == leveldb.ErrNotFound {
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}
	return beU32(b), nil
}

// Unconfirm clears addr's confirmed bit. Only valid when undoing a block
// during a reorg: confirmation status is derived solely from the current
// tip, so disconnecting the block that carried an address's only invite
// un-confirms it.
func (g *Graph) Unconfirm(addr address.Address) error {
	return g.db.Delete(confirmedKey(addr), nil)
}

// Remove deletes addr's referral and all derived index entries. Only valid
// when undoing a block during a reorg.
func (g *Graph) Remove(addr address.Address) error {
	ref, err := g.Lookup(addr)
	if err != nil {
		return err
	}
	height, err := g.Height(addr)
	if err != nil {
		return err
	}
	norm, _ := NormalizeAlias(ref.Alias, height, g.saferAliasHt)

	batch := new(leveldb.Batch)
	batch.Delete(referralKey(addr))
	batch.Delete(childKey(ref.ParentAddress, addr))
	batch.Delete(heightKey(addr))
	batch.Delete(confirmedKey(addr))
	if norm != "" {
		batch.Delete(aliasKey(norm))
	}
	return g.db.Write(batch, nil)
}
