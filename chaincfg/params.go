// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the consensus parameters for each Merit network:
// mainnet, testnet, regtest, and simnet. It plays the same role as
// exccd/chaincfg, but the parameter set itself is Merit's: no stake
// validation or ticket fields, and the Cuckoo Cycle, ambassador/invite
// lottery, and CGS constants Merit introduces in their place.
package chaincfg

import (
	"math/big"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/anv"
	"github.com/meritfoundation/merit/block"
	"github.com/meritfoundation/merit/cuckoo"
	"github.com/meritfoundation/merit/difficulty"
	"github.com/meritfoundation/merit/lottery"
	"github.com/meritfoundation/merit/reward"
	"github.com/meritfoundation/merit/wire"
)

// Params defines a Merit network's complete set of consensus parameters.
type Params struct {
	Name        string
	Net         wire.MeritNet
	DefaultPort string

	GenesisBlock *block.Block

	Difficulty difficulty.Params
	Cuckoo     cuckoo.Params
	// PoWDisabled skips cuckoo-cycle and hash-target verification when
	// connecting blocks, so functional-test harnesses can produce blocks
	// on demand without solving. Never set on a public network.
	PoWDisabled bool
	CGS        anv.Params
	Subsidy    reward.SubsidyParams

	// AmbassadorCutPermille is the ambassador pool's share of each block
	// subsidy, in thousandths.
	AmbassadorCutPermille int64
	// AmbassadorLotteryWinners is the fixed number of ambassadors drawn
	// per block by the weighted reservoir sample.
	AmbassadorLotteryWinners int
	// InitialAmbassadorStake is the minimum CGS an address needs to enter
	// the ambassador lottery.
	InitialAmbassadorStake int64
	// MaxOutstandingInvitesPerAddress disqualifies addresses hoarding
	// unspent invites from both lotteries.
	MaxOutstandingInvitesPerAddress int64

	InviteControlLoop lottery.ControlLoopParams
	// InviteLotteryWindowBlocks is the sliding-window length the post-IMP
	// control loop measures current/previous usage over.
	InviteLotteryWindowBlocks int32

	// DaedalusActivationHeight gates the invite-token stream and the
	// Daedalus invite-lottery generation.
	DaedalusActivationHeight int32
	// IMPActivationHeight gates the post-IMP invite control loop.
	IMPActivationHeight int32
	// SaferAliasActivationHeight gates the stricter alias-normalisation
	// rules.
	SaferAliasActivationHeight uint32

	// CoinbaseMaturity gates coinbase output spendability. The coin-age
	// maturities (CoinMaturity, NewCoinMaturity) live in CGS.
	CoinbaseMaturity int32

	// GenesisAddress is the root of the referral forest: the
	// only address with no parent, implicitly confirmed at height 0.
	GenesisAddress address.Address
}

// MaxMoney is the maximum coin supply in atomic units.
const MaxMoney = 100000000 * 1e8

var bigOne = big.NewInt(1)

// compactFromExponent returns the PoW limit target 2^bits - 1 as a big.Int,
// expressing genesis-era difficulty as a shift; callers convert it to
// compact form with standalone.BigToCompact.
func compactFromExponent(bits uint) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(bigOne, bits), bigOne)
}
