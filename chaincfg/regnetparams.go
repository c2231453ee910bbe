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

// RegNetParams returns the consensus parameters for Merit's regression test
// network. Difficulty never retargets so test harnesses can mine
// blocks on demand at a fixed, minimal target.
func RegNetParams() *Params {
	powLimit := compactFromExponent(255)
	powLimitBits := standalone.BigToCompact(powLimit)

	genesis := &block.Block{
		Header: wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(1296688602, 0),
			Bits:      powLimitBits,
			EdgeBits:  16,
		},
	}

	return &Params{
		Name:        "regtest",
		Net:         wire.RegNet,
		DefaultPort: "19444",

		GenesisBlock: genesis,

		Difficulty: difficulty.Params{
			PowLimitBits:                 powLimitBits,
			PowLimit:                     powLimit,
			DifficultyAdjustmentInterval: 144,
			TargetTimespan:               144 * 2 * time.Minute,
			EdgeBitsAllowed:              []uint8{16, 17, 18},
			EdgeBitsTargetThreshold:      1.5,
			NoRetarget:                   true,
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
			ReductionIntervalBlocks: 150,
		},
		AmbassadorCutPermille:           200,
		AmbassadorLotteryWinners:        5,
		InitialAmbassadorStake:          1 * 1e8,
		MaxOutstandingInvitesPerAddress: 50,

		InviteControlLoop: lottery.ControlLoopParams{
			MinerRewardEveryXBlocks:  5,
			MinOneInviteEveryXBlocks: 10,
			InvitesCreatedInWindow:   0,
		},
		InviteLotteryWindowBlocks: 20,

		DaedalusActivationHeight:   10,
		IMPActivationHeight:        20,
		SaferAliasActivationHeight: 20,

		CoinbaseMaturity: 2,
		GenesisAddress:   address.Hash160([]byte("merit-genesis-regtest")),
	}
}
