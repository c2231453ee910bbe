package lottery

import (
	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
)

// Generation selects which of the three historical invite-lottery
// algorithms is active at a given tip. The height gates are
// consensus-critical: pre-Daedalus, Daedalus, and post-IMP chains pick
// their winners differently.
type Generation int

const (
	// PreDaedalus is the original algorithm.
	PreDaedalus Generation = iota
	// Daedalus adds the invite token stream alongside coins.
	Daedalus
	// PostIMP is the invite-minting-policy control loop.
	PostIMP
)

// GenerationAt selects the algorithm generation active at height, per the
// declared activation heights. Implementations MUST select strictly by tip
// height.
func GenerationAt(height, daedalusHeight, impHeight int32) Generation {
	switch {
	case height >= impHeight:
		return PostIMP
	case height >= daedalusHeight:
		return Daedalus
	default:
		return PreDaedalus
	}
}

// WindowUsage is the invite-spend count observed over one sliding window
type WindowUsage struct {
	InvitesUsed int64
	BlockWindow int32
}

// MeanUsedFixed returns invites-used / window-length as a float, matching
// the control loop's `mean_used_fixed` term.
func (w WindowUsage) MeanUsedFixed() float64 {
	if w.BlockWindow == 0 {
		return 0
	}
	return float64(w.InvitesUsed) / float64(w.BlockWindow)
}

// ControlLoopParams bundles the consensus constants the post-IMP control
// loop needs.
type ControlLoopParams struct {
	MinerRewardEveryXBlocks  int32
	MinOneInviteEveryXBlocks int32
	InvitesCreatedInWindow   int64
}

// TotalWinners implements the post-IMP invite-count control loop: it
// floors at a demand-driven minimum, then grows exponentially (ceiling) or
// shrinks (floor) toward the trailing mean.
func TotalWinners(blocks int32, current, previous WindowUsage, params ControlLoopParams) int64 {
	minMinerInvites := int64(blocks) / int64(maxInt32(params.MinerRewardEveryXBlocks, 1))
	minLotteryInvites := int64(blocks) / int64(maxInt32(params.MinOneInviteEveryXBlocks, 1))
	minInvites := minMinerInvites + minLotteryInvites

	floor := int64(0)
	if params.InvitesCreatedInWindow < minInvites {
		floor = current.InvitesUsed + minLotteryInvites
	}

	mean := current.MeanUsedFixed()
	meanPrev := previous.MeanUsedFixed()

	// Ceiling for growth, floor for shrink: a growing window rounds the
	// adjustment up, a shrinking one rounds it down (more negative).
	diff := mean - meanPrev
	var change int64
	if diff >= 0 {
		change = int64(ceil(diff))
	} else {
		change = int64(floorF(diff))
	}
	controlled := int64(mean) + change

	total := floor
	if controlled > total {
		total = controlled
	}
	return total
}

func floorF(v float64) float64 {
	i := int64(v)
	if float64(i) > v {
		i--
	}
	return float64(i)
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func ceil(v float64) float64 {
	i := int64(v)
	if float64(i) < v {
		i++
	}
	return float64(i)
}

// Pool is one of the two address pools the post-IMP invite lottery draws
// from.
type Pool struct {
	Confirmed   []Candidate
	Unconfirmed []Candidate
}

// SelectInviteWinners draws totalWinners addresses from the union of both
// pools, excluding any candidate already at maxOutstandingInvites, using the
// same weighted sampler as the ambassador lottery.
func SelectInviteWinners(seed chainhash.Hash, pool Pool, totalWinners int64, outstandingInvites map[address.Address]int64, maxOutstandingInvites int64) []Candidate {
	union := make([]Candidate, 0, len(pool.Confirmed)+len(pool.Unconfirmed))
	for _, c := range pool.Confirmed {
		if outstandingInvites[c.Address] < maxOutstandingInvites {
			union = append(union, c)
		}
	}
	for _, c := range pool.Unconfirmed {
		if outstandingInvites[c.Address] < maxOutstandingInvites {
			union = append(union, c)
		}
	}
	if totalWinners > int64(len(union)) {
		totalWinners = int64(len(union))
	}
	return SelectAmbassadors(seed, union, int(totalWinners))
}
