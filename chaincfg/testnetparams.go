// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/anv"
	"github.com/meritfoundation/merit/block"
	"github.com/meritfoundation/merit/cuckoo"
	"github.com/meritfoundation/merit/difficulty"
	"github.com/meritfoundation/merit/lottery"
	"github.com/meritfoundation/merit/reward"
	"github.com/meritfoundation/merit/wire"
)

// TestNetParams returns the consensus parameters for Merit testnet. Lower
// edge_bits and a reduce-min-difficulty escape let test hardware keep up
// with block production.
func TestNetParams() *Params {
	powLimit := compactFromExponent(230)
	powLimitBits := standalone.BigToCompact(powLimit)

	genesis := &block.Block{
		Header: wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1548633600, 0),
			Bits:      powLimitBits,
			EdgeBits:  24,
		},
	}

	return &Params{
		Name:        "testnet",
		Net:         wire.TestNet,
		DefaultPort: "19119",

		GenesisBlock: genesis,

		Difficulty: difficulty.Params{
			PowLimitBits:                 powLimitBits,
			PowLimit:                     powLimit,
			DifficultyAdjustmentInterval: 144,
			TargetTimespan:               144 * 2 * time.Minute,
			EdgeBitsAllowed:              []uint8{16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26},
			EdgeBitsTargetThreshold:      1.5,
			ReduceMinDifficulty:          true,
			MinDiffReductionTime:         4 * time.Minute,
		},
		Cuckoo: cuckoo.Params{EdgeBits: 24, EdgesRatio: 50, ProofSize: 42},
		CGS: anv.Params{
			CoinMaturity:    144,
			NewCoinMaturity: 16,
			B:               anv.NewDecimal(1.0),
			S:               anv.NewDecimal(0.5),
		},
		Subsidy: reward.SubsidyParams{
			BlockOneSubsidy:         50000 * 1e8,
			BaseSubsidy:             50 * 1e8,
			ReductionMultiplier:     100,
			ReductionDivisor:        101,
			ReductionIntervalBlocks: 2048,
		},
		AmbassadorCutPermille:           200,
		AmbassadorLotteryWinners:        22,
		InitialAmbassadorStake:          100 * 1e8,
		MaxOutstandingInvitesPerAddress: 50,

		InviteControlLoop: lottery.ControlLoopParams{
			MinerRewardEveryXBlocks:  5,
			MinOneInviteEveryXBlocks: 50,
			InvitesCreatedInWindow:   0,
		},
		InviteLotteryWindowBlocks: 144,

		DaedalusActivationHeight:   500,
		IMPActivationHeight:        1000,
		SaferAliasActivationHeight: 1000,

		CoinbaseMaturity: 16,
		GenesisAddress:   address.Hash160([]byte("merit-genesis-testnet")),
	}
}
