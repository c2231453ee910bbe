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

// MainNetParams returns the consensus parameters for Merit mainnet.
func MainNetParams() *Params {
	powLimit := compactFromExponent(224)
	powLimitBits := standalone.BigToCompact(powLimit)

	genesis := &block.Block{
		Header: wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1531731600, 0),
			Bits:      powLimitBits,
			EdgeBits:  29,
		},
	}

	return &Params{
		Name:        "mainnet",
		Net:         wire.MainNet,
		DefaultPort: "9119",

		GenesisBlock: genesis,

		Difficulty: difficulty.Params{
			PowLimitBits:                 powLimitBits,
			PowLimit:                     powLimit,
			DifficultyAdjustmentInterval: 1440,
			TargetTimespan:               1440 * time.Minute,
			EdgeBitsAllowed:              []uint8{26, 27, 28, 29, 30, 31},
			EdgeBitsTargetThreshold:      1.5,
		},
		Cuckoo: cuckoo.Params{EdgeBits: 29, EdgesRatio: 50, ProofSize: 42},
		CGS: anv.Params{
			CoinMaturity:    2880,
			NewCoinMaturity: 288,
			B:               anv.NewDecimal(1.0),
			S:               anv.NewDecimal(0.5),
		},
		Subsidy: reward.SubsidyParams{
			BlockOneSubsidy:         50000 * 1e8,
			BaseSubsidy:             50 * 1e8,
			ReductionMultiplier:     100,
			ReductionDivisor:        101,
			ReductionIntervalBlocks: 6144,
		},
		AmbassadorCutPermille:           500,
		AmbassadorLotteryWinners:        15,
		InitialAmbassadorStake:          10000 * 1e8,
		MaxOutstandingInvitesPerAddress: 50,

		InviteControlLoop: lottery.ControlLoopParams{
			MinerRewardEveryXBlocks:  5,
			MinOneInviteEveryXBlocks: 50,
			InvitesCreatedInWindow:   0,
		},
		InviteLotteryWindowBlocks: 1008,

		DaedalusActivationHeight:   84435,
		IMPActivationHeight:        128010,
		SaferAliasActivationHeight: 128010,

		CoinbaseMaturity: 100,
		GenesisAddress:   address.Hash160([]byte("merit-genesis-mainnet")),
	}
}
