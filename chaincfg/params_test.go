// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import "testing"

func allNets() map[string]*Params {
	return map[string]*Params{
		"mainnet": MainNetParams(),
		"testnet": TestNetParams(),
		"regtest": RegNetParams(),
		"simnet":  SimNetParams(),
	}
}

func TestEdgeBitsWithinAllowedSet(t *testing.T) {
	for name, p := range allNets() {
		found := false
		for _, eb := range p.Difficulty.EdgeBitsAllowed {
			if eb == p.Cuckoo.EdgeBits {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s: genesis edge_bits %d not in EdgeBitsAllowed %v", name, p.Cuckoo.EdgeBits, p.Difficulty.EdgeBitsAllowed)
		}
		if p.GenesisBlock.Header.EdgeBits != p.Cuckoo.EdgeBits {
			t.Errorf("%s: genesis header edge_bits %d disagrees with Cuckoo.EdgeBits %d", name, p.GenesisBlock.Header.EdgeBits, p.Cuckoo.EdgeBits)
		}
	}
}

func TestRegNetNeverRetargets(t *testing.T) {
	p := RegNetParams()
	if !p.Difficulty.NoRetarget {
		t.Fatal("regtest must set NoRetarget")
	}
}

func TestActivationHeightsAreOrdered(t *testing.T) {
	for name, p := range allNets() {
		if p.DaedalusActivationHeight > p.IMPActivationHeight {
			t.Errorf("%s: Daedalus activation (%d) must not exceed IMP activation (%d)", name, p.DaedalusActivationHeight, p.IMPActivationHeight)
		}
	}
}

func TestGenesisAddressIsNonZeroAndNetworksDiffer(t *testing.T) {
	seen := map[string]bool{}
	for name, p := range allNets() {
		if p.GenesisAddress.IsZero() {
			t.Errorf("%s: genesis address must not be zero", name)
		}
		hex := p.GenesisAddress.Hex()
		if seen[hex] {
			t.Errorf("%s: genesis address collides with another network", name)
		}
		seen[hex] = true
	}
}

func TestNetDefaultPortsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for name, p := range allNets() {
		if seen[p.DefaultPort] {
			t.Errorf("%s: default port %s reused across networks", name, p.DefaultPort)
		}
		seen[p.DefaultPort] = true
	}
}
