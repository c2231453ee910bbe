package reward

import (
	"testing"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/lottery"
)

func mainnetLikeParams() SubsidyParams {
	return SubsidyParams{
		BlockOneSubsidy:         0,
		BaseSubsidy:             5_000_000_000,
		ReductionMultiplier:     100,
		ReductionDivisor:        101,
		ReductionIntervalBlocks: 262_800, // roughly half a year at 60s spacing
	}
}

func TestCacheBlockSubsidyHalvesOverReductionIntervals(t *testing.T) {
	c := NewCache(mainnetLikeParams())
	first := c.BlockSubsidy(2)
	farOut := c.BlockSubsidy(262_800 * 50)
	if farOut >= first {
		t.Fatalf("subsidy should shrink over many reduction intervals: height 2 = %d, height 50 intervals out = %d", first, farOut)
	}
}

func candidatesWithCGS(n int, cgs int64) []lottery.Candidate {
	out := make([]lottery.Candidate, n)
	for i := range out {
		var a address.Address
		a[0] = byte(i + 1)
		out[i] = lottery.Candidate{Address: a, CGS: cgs}
	}
	return out
}

func TestComputeSplitSumsToSubsidy(t *testing.T) {
	subsidy := int64(1_000_000)
	var seed [32]byte
	seed[0] = 7
	split := ComputeSplit(subsidy, seed, candidatesWithCGS(20, 1_000), SplitParams{
		AmbassadorCutPermille: 500,
		TotalWinners:          15,
	})

	var sum int64 = split.MinerReward
	for _, r := range split.AmbassadorRewards {
		sum += r
	}
	if sum != subsidy {
		t.Fatalf("miner (%d) + ambassador rewards (sum %d) != subsidy (%d)", split.MinerReward, sum-split.MinerReward, subsidy)
	}
}

func TestComputeSplitEmptyCandidatesGivesEntirePoolToMiner(t *testing.T) {
	subsidy := int64(1_000_000)
	var seed [32]byte
	split := ComputeSplit(subsidy, seed, nil, SplitParams{
		AmbassadorCutPermille: 500,
		TotalWinners:          15,
	})
	if split.MinerReward != subsidy {
		t.Fatalf("MinerReward = %d, want entire subsidy %d with no candidates", split.MinerReward, subsidy)
	}
	if len(split.AmbassadorRewards) != 0 {
		t.Fatalf("expected no ambassador rewards, got %v", split.AmbassadorRewards)
	}
}

func TestComputeSplitIsDeterministic(t *testing.T) {
	subsidy := int64(1_000_000)
	var seed [32]byte
	seed[3] = 99
	candidates := candidatesWithCGS(30, 500)

	a := ComputeSplit(subsidy, seed, candidates, SplitParams{AmbassadorCutPermille: 500, TotalWinners: 15})
	b := ComputeSplit(subsidy, seed, candidates, SplitParams{AmbassadorCutPermille: 500, TotalWinners: 15})

	if a.MinerReward != b.MinerReward {
		t.Fatalf("MinerReward differs across identical runs: %d vs %d", a.MinerReward, b.MinerReward)
	}
	for i := range a.AmbassadorWinners {
		if a.AmbassadorWinners[i].Address != b.AmbassadorWinners[i].Address {
			t.Fatalf("winner %d differs across identical runs", i)
		}
	}
}
