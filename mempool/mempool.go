// Package mempool holds not-yet-confirmed transactions, invites, and
// referrals: it exposes the by-hash/by-parent lookups compact-block
// reconstruction and block assembly need, and the confirmation events
// other subsystems subscribe to.
//
// The whole pool is guarded by a single reader/writer lock (cs_mempool by
// convention), never held at the same time as a chain-state lock except in
// the fixed order chain state first, then mempool.
package mempool

import (
	"errors"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
	logpkg "github.com/meritfoundation/merit/log"
	"github.com/meritfoundation/merit/referral"
	"github.com/meritfoundation/merit/tx"
)

// ErrAliasTaken mirrors referral.ErrAliasTaken for the mempool-local half of
// the global alias-uniqueness constraint: the union of on-chain and
// mempool aliases must stay injective.
var ErrAliasTaken = errors.New("mempool: alias taken")

// AliasSource is the narrow slice of referral.Graph the mempool needs to
// enforce alias uniqueness against confirmed state, without importing the
// whole graph type into this package's public surface.
type AliasSource interface {
	LookupByAlias(alias string) (address.Address, error)
}

// ConfirmationEvent reports that a pool entry left the mempool because its
// containing block was connected.
type ConfirmationEvent struct {
	TxHash       chainhash.Hash
	ReferralHash chainhash.Hash
	Height       uint32
}

// Pool is the shared transaction, invite, and referral staging area.
type Pool struct {
	mu sync.RWMutex

	graph AliasSource

	txs     map[chainhash.Hash]*tx.Tx
	refs    map[chainhash.Hash]*referral.Referral
	aliases map[string]chainhash.Hash // normalised alias -> referral hash holding it

	subsMu sync.Mutex
	subs   []chan ConfirmationEvent
}

// New builds an empty pool. graph resolves aliases already confirmed
// on-chain, so a mempool referral can't claim one a block already settled.
func New(graph AliasSource) *Pool {
	return &Pool{
		graph:   graph,
		txs:     make(map[chainhash.Hash]*tx.Tx),
		refs:    make(map[chainhash.Hash]*referral.Referral),
		aliases: make(map[string]chainhash.Hash),
	}
}

// AddTx stages a transaction or invite. Admission errors here are
// per-transaction and never halt the node.
func (p *Pool) AddTx(t *tx.Tx) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs[t.Hash()] = t
}

// RemoveTx drops a transaction from the pool, e.g. once its containing
// block connects.
func (p *Pool) RemoveTx(h chainhash.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, h)
}

// TxByHash satisfies compactblock.MempoolSource.
func (p *Pool) TxByHash(h chainhash.Hash) (*tx.Tx, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.txs[h]
	return t, ok
}

// AllTxHashes satisfies compactblock.MempoolSource. The snapshot may race
// with concurrent insertion; compact-block reconstruction already tolerates
// that.
func (p *Pool) AllTxHashes() []chainhash.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chainhash.Hash, 0, len(p.txs))
	for h := range p.txs {
		out = append(out, h)
	}
	return out
}

// AddReferral stages a referral, enforcing the global alias-uniqueness
// constraint against both the confirmed graph and every other
// alias already staged in the pool.
func (p *Pool) AddReferral(ref *referral.Referral, normalizedAlias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if normalizedAlias != "" {
		if _, err := p.graph.LookupByAlias(normalizedAlias); err == nil {
			return ErrAliasTaken
		}
		if holder, ok := p.aliases[normalizedAlias]; ok && holder != ref.Hash() {
			return ErrAliasTaken
		}
	}

	h := ref.Hash()
	p.refs[h] = ref
	if normalizedAlias != "" {
		p.aliases[normalizedAlias] = h
	}
	return nil
}

// RemoveReferral drops a referral (and its alias claim, if any) from the
// pool.
func (p *Pool) RemoveReferral(h chainhash.Hash, normalizedAlias string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.refs, h)
	if normalizedAlias != "" {
		if holder, ok := p.aliases[normalizedAlias]; ok && holder == h {
			delete(p.aliases, normalizedAlias)
		}
	}
}

// ReferralByHash satisfies compactblock.MempoolSource.
func (p *Pool) ReferralByHash(h chainhash.Hash) (*referral.Referral, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.refs[h]
	return r, ok
}

// AllReferralHashes satisfies compactblock.MempoolSource.
func (p *Pool) AllReferralHashes() []chainhash.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chainhash.Hash, 0, len(p.refs))
	for h := range p.refs {
		out = append(out, h)
	}
	return out
}

// ReferralsByParent returns every pool-staged referral whose ParentAddress
// is parent — the mempool side of a referral-tree walk that otherwise only
// sees confirmed children via referral.Graph.Children.
func (p *Pool) ReferralsByParent(parent address.Address) []*referral.Referral {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*referral.Referral
	for _, r := range p.refs {
		if r.ParentAddress == parent {
			out = append(out, r)
		}
	}
	return out
}

// Subscribe returns a channel that receives a ConfirmationEvent for every
// tx/referral NotifyConfirmed reports. The channel is buffered; a slow
// subscriber drops events rather than blocking block connection.
func (p *Pool) Subscribe() <-chan ConfirmationEvent {
	ch := make(chan ConfirmationEvent, 64)
	p.subsMu.Lock()
	p.subs = append(p.subs, ch)
	p.subsMu.Unlock()
	return ch
}

// NotifyConfirmed removes a confirmed tx/referral from the pool and fans
// the event out to every subscriber, called by the validation thread after
// ConnectBlock stages its mutations.
func (p *Pool) NotifyConfirmed(evt ConfirmationEvent) {
	if evt.TxHash != (chainhash.Hash{}) {
		p.RemoveTx(evt.TxHash)
	}
	if evt.ReferralHash != (chainhash.Hash{}) {
		p.mu.Lock()
		delete(p.refs, evt.ReferralHash)
		p.mu.Unlock()
	}

	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- evt:
		default:
			logpkg.Node.Warnf("mempool: dropped confirmation event for subscriber, channel full")
		}
	}
}
