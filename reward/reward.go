// Package reward computes a block's total PoW subsidy and splits it between
// the miner and the ambassador lottery pool.
package reward

import (
	"math"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/lottery"
)

// SubsidyParams is the halving-schedule portion of standalone.SubsidyParams:
// block one's special payout, the starting subsidy, and the exponential
// reduction schedule. Merit has no stake voting, so the vote-weighted
// methods standalone.SubsidyParams also requires are satisfied with neutral
// values by subsidyParamsAdapter below rather than exposed here.
type SubsidyParams struct {
	BlockOneSubsidy         int64
	BaseSubsidy             int64
	ReductionMultiplier     int64
	ReductionDivisor        int64
	ReductionIntervalBlocks int64
}

// subsidyParamsAdapter satisfies standalone.SubsidyParams by pinning the
// entire subsidy to the work proportion: Merit has no stake-vote component,
// so StakeSubsidyProportion is zero and StakeValidationBeginHeight is
// unreachable.
type subsidyParamsAdapter struct {
	p SubsidyParams
}

func (a subsidyParamsAdapter) BlockOneSubsidy() int64               { return a.p.BlockOneSubsidy }
func (a subsidyParamsAdapter) BaseSubsidyValue() int64               { return a.p.BaseSubsidy }
func (a subsidyParamsAdapter) SubsidyReductionMultiplier() int64     { return a.p.ReductionMultiplier }
func (a subsidyParamsAdapter) SubsidyReductionDivisor() int64        { return a.p.ReductionDivisor }
func (a subsidyParamsAdapter) SubsidyReductionIntervalBlocks() int64 { return a.p.ReductionIntervalBlocks }
func (a subsidyParamsAdapter) WorkSubsidyProportion() uint16         { return 1 }
func (a subsidyParamsAdapter) StakeSubsidyProportion() uint16        { return 0 }
func (a subsidyParamsAdapter) TreasurySubsidyProportion() uint16     { return 0 }
func (a subsidyParamsAdapter) StakeValidationBeginHeight() int64     { return math.MaxInt64 }
func (a subsidyParamsAdapter) VotesPerBlock() uint16                 { return 0 }

// Cache wraps standalone.SubsidyCache, the memoized halving-schedule
// calculator, so callers never reimplement the halving arithmetic.
type Cache struct {
	sc *standalone.SubsidyCache
}

// NewCache builds a subsidy cache over params.
func NewCache(params SubsidyParams) *Cache {
	return &Cache{sc: standalone.NewSubsidyCache(subsidyParamsAdapter{p: params})}
}

// BlockSubsidy returns the total proof-of-work subsidy for a block at height,
// before the ambassador-pool/miner split.
func (c *Cache) BlockSubsidy(height int64) int64 {
	return c.sc.CalcBlockSubsidy(height)
}

// SplitParams bundles the consensus constants the ambassador-pool/miner split
// needs.
type SplitParams struct {
	// AmbassadorCutPermille is the ambassador pool's share of the block
	// subsidy, in thousandths (500 = 50%).
	AmbassadorCutPermille int64
	// TotalWinners is the number of ambassadors the lottery selects this
	// block.
	TotalWinners int
}

// Split is the result of dividing one block's subsidy between the miner and
// the ambassador lottery's winners.
type Split struct {
	MinerReward       int64
	AmbassadorRewards []int64
	AmbassadorWinners []lottery.Candidate
}

// ComputeSplit carves ambassadorPool = subsidy * AmbassadorCutPermille / 1000
// out of subsidy, runs the ambassador lottery over candidates for that pool,
// and folds every remainder (from both the cut and AllocateRewards' integer
// flooring) into the miner's share, so the sum of MinerReward and
// AmbassadorRewards always equals subsidy exactly.
func ComputeSplit(subsidy int64, seed [32]byte, candidates []lottery.Candidate, p SplitParams) Split {
	ambassadorPool := subsidy * p.AmbassadorCutPermille / 1000
	minerShare := subsidy - ambassadorPool

	winners := lottery.SelectAmbassadors(chainhash.Hash(seed), candidates, p.TotalWinners)
	rewards, remainder := lottery.AllocateRewards(ambassadorPool, winners)

	return Split{
		MinerReward:       minerShare + remainder,
		AmbassadorRewards: rewards,
		AmbassadorWinners: winners,
	}
}
