// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sigcache caches verified referral signatures so that a beacon
// already validated once, in the mempool or a prior block, is never
// ECDSA-verified twice. It mitigates the same worst-case-validation DoS this
// pattern defends against for transaction scripts in the dcrd/btcsuite
// family, applied here to the referral graph's single signature per beacon
// instead of per-input transaction scripts.
package sigcache

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ProactiveEvictionDepth is the confirmation depth at which a referral's
// cached signature is nearly guaranteed to no longer be useful: reorgs
// beyond this depth are not re-verified from the cache.
const ProactiveEvictionDepth = 2

// entry records that the referral identified by its hash carried a
// signature that verified against its own signed data and public key.
// Because a referral's Hash already covers PubKey and Signature (see
// referral.Referral.Hash), a hash match is sufficient: there is no need to
// additionally compare signature and key bytes the way a transaction-input
// sigcache must, since here the keyed object already is the (pubkey,
// signature) pair.
type entry struct{}

// Cache is a concurrency-safe, size-bounded set of referral hashes whose
// signatures have already been verified. Entries beyond maxEntries are
// evicted at random, matching the eviction policy txscript.SigCache uses
// for transaction signatures.
type Cache struct {
	mu         sync.RWMutex
	verified   map[chainhash.Hash]entry
	maxEntries uint
}

// New creates a Cache holding at most maxEntries verified referral hashes.
func New(maxEntries uint) *Cache {
	return &Cache{
		verified:   make(map[chainhash.Hash]entry, maxEntries),
		maxEntries: maxEntries,
	}
}

// Exists reports whether hash's signature has already been verified.
func (c *Cache) Exists(hash chainhash.Hash) bool {
	c.mu.RLock()
	_, ok := c.verified[hash]
	c.mu.RUnlock()
	return ok
}

// Add records that hash's signature has verified. If the cache is full, a
// random existing entry is evicted to make room, relying on Go's
// unspecified map iteration order the same way txscript.SigCache does.
func (c *Cache) Add(hash chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries == 0 {
		return
	}
	if uint(len(c.verified)+1) > c.maxEntries {
		for k := range c.verified {
			delete(c.verified, k)
			break
		}
	}
	c.verified[hash] = entry{}
}

// EvictConfirmed removes hashes once their referrals are ProactiveEvictionDepth
// blocks deep: past that point a reorg reaching back to them is treated as
// unlikely enough that re-verifying from scratch on the rare case is
// cheaper than holding the entry indefinitely.
func (c *Cache) EvictConfirmed(hashes []chainhash.Hash) {
	if len(hashes) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range hashes {
		delete(c.verified, h)
	}
}

// Len returns the number of cached entries. Intended for metrics and tests.
func (c *Cache) Len() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint(len(c.verified))
}
