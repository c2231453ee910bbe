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

// SimNetParams returns the consensus parameters for Merit's simulation
// network, used for multi-node local testing with a short retarget window.
func SimNetParams() *Params {
	powLimit := compactFromExponent(255)
	powLimitBits := standalone.BigToCompact(powLimit)

	genesis := &block.Block{
		Header: wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1401292357, 0),
			Bits:      powLimitBits,
			EdgeBits:  16,
		},
	}

	return &Params{
		Name:        "simnet",
		Net:         wire.SimNet,
		DefaultPort: "19555",

		GenesisBlock: genesis,

		Difficulty: difficulty.Params{
			PowLimitBits:                 powLimitBits,
			PowLimit:                     powLimit,
			DifficultyAdjustmentInterval: 144,
			TargetTimespan:               144 * 2 * time.Minute,
			EdgeBitsAllowed:              []uint8{16, 17, 18, 19, 20},
			EdgeBitsTargetThreshold:      1.5,
			ReduceMinDifficulty:          true,
			MinDiffReductionTime:         4 * time.Minute,
		},
		Cuckoo: cuckoo.Params{EdgeBits: 16, EdgesRatio: 50, ProofSize: 42},
		PoWDisabled: true,
		CGS: anv.Params{
			CoinMaturity:    16,
			NewCoinMaturity: 4,
			B:               anv.NewDecimal(1.0),
			S:               anv.NewDecimal(0.5),
		},
		Subsidy: reward.SubsidyParams{
			BlockOneSubsidy:         50000 * 1e8,
			BaseSubsidy:             50 * 1e8,
			ReductionMultiplier:     100,
			ReductionDivisor:        101,
			ReductionIntervalBlocks: 300,
		},
		AmbassadorCutPermille:           200,
		AmbassadorLotteryWinners:        10,
		InitialAmbassadorStake:          1 * 1e8,
		MaxOutstandingInvitesPerAddress: 50,

		InviteControlLoop: lottery.ControlLoopParams{
			MinerRewardEveryXBlocks:  5,
			MinOneInviteEveryXBlocks: 20,
			InvitesCreatedInWindow:   0,
		},
		InviteLotteryWindowBlocks: 50,

		DaedalusActivationHeight:   50,
		IMPActivationHeight:        100,
		SaferAliasActivationHeight: 100,

		CoinbaseMaturity: 4,
		GenesisAddress:   address.Hash160([]byte("merit-genesis-simnet")),
	}
}
