// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sigcache

import (
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

func hashAt(seed byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = seed
	return h
}

func TestAddAndExists(t *testing.T) {
	c := New(10)
	h := hashAt(1)
	if c.Exists(h) {
		t.Fatal("expected miss before Add")
	}
	c.Add(h)
	if !c.Exists(h) {
		t.Fatal("expected hit after Add")
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestZeroCapacityNeverCaches(t *testing.T) {
	c := New(0)
	h := hashAt(1)
	c.Add(h)
	if c.Exists(h) {
		t.Fatal("expected a zero-capacity cache to never retain entries")
	}
}

func TestAddEvictsAtCapacity(t *testing.T) {
	c := New(2)
	c.Add(hashAt(1))
	c.Add(hashAt(2))
	c.Add(hashAt(3))
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after eviction", c.Len())
	}
}

func TestEvictConfirmedRemovesOnlyGivenHashes(t *testing.T) {
	c := New(10)
	h1, h2 := hashAt(1), hashAt(2)
	c.Add(h1)
	c.Add(h2)

	c.EvictConfirmed([]chainhash.Hash{h1})

	if c.Exists(h1) {
		t.Fatal("expected h1 to be evicted")
	}
	if !c.Exists(h2) {
		t.Fatal("expected h2 to remain cached")
	}
}

func TestEvictConfirmedEmptyIsNoop(t *testing.T) {
	c := New(10)
	h := hashAt(1)
	c.Add(h)
	c.EvictConfirmed(nil)
	if !c.Exists(h) {
		t.Fatal("expected EvictConfirmed(nil) to change nothing")
	}
}
