// Package difficulty retargets the two proof-of-work dials Merit's header
// carries: the Cuckoo Cycle edge_bits (memory hardness) and the compact hash
// target (bits), every DifficultyAdjustmentInterval blocks.
package difficulty

import (
	"math/big"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
)

// Params bundles the consensus constants a retarget needs. It deliberately
// does not depend on a chain-wide parameters type so this package stays
// testable in isolation.
type Params struct {
	// PowLimitBits is the compact-form minimum difficulty (maximum target).
	PowLimitBits uint32
	// PowLimit is the same value as a big.Int, so callers don't have to
	// decompress PowLimitBits on every call.
	PowLimit *big.Int

	// DifficultyAdjustmentInterval is the retarget period, in blocks.
	DifficultyAdjustmentInterval int64
	// TargetTimespan is the nominal wall-clock duration of one retarget
	// window (DifficultyAdjustmentInterval * target block spacing).
	TargetTimespan time.Duration

	// EdgeBitsAllowed is the ordered, ascending set of edge_bits values the
	// retarget may select; an out-of-set result is ignored.
	EdgeBitsAllowed []uint8
	// EdgeBitsTargetThreshold is the speed-up/slow-down ratio that triggers
	// an edge_bits step: faster than nominal/threshold increments,
	// slower than nominal*threshold decrements.
	EdgeBitsTargetThreshold float64

	// ReduceMinDifficulty enables the testnet minimum-difficulty escape: a
	// block timestamped more than MinDiffReductionTime after its predecessor
	// gets PowLimitBits. Later blocks carry the previous block's bits forward
	// as usual, so the minimum difficulty stays until the next retarget
	// boundary; the last non-minimum bits value is not restored.
	ReduceMinDifficulty  bool
	MinDiffReductionTime time.Duration
	// NoRetarget disables both dials entirely (regtest/simnet:
	// "regtest never retargets").
	NoRetarget bool
}

// PrevBlock is the minimal view of chain history a retarget calculation
// needs: its own stamp, and enough history to measure the window.
type PrevBlock struct {
	Height    int64
	Timestamp time.Time
	Bits      uint32
	EdgeBits  uint8
}

// WindowStart is the block at the beginning of the retarget window ending at
// the previous block, i.e. DifficultyAdjustmentInterval blocks back.
type WindowStart struct {
	Timestamp time.Time
}

// NextBits computes the compact hash target for the block following prev.
// Outside a retarget boundary it simply carries the previous value forward,
// except for the testnet minimum-difficulty escape.
func NextBits(p Params, prev PrevBlock, windowStart WindowStart, newBlockTime time.Time) uint32 {
	if p.NoRetarget {
		return p.PowLimitBits
	}

	if p.ReduceMinDifficulty {
		allowTime := prev.Timestamp.Add(p.MinDiffReductionTime)
		if newBlockTime.After(allowTime) {
			return p.PowLimitBits
		}
	}

	nextHeight := prev.Height + 1
	if p.DifficultyAdjustmentInterval <= 0 || nextHeight%p.DifficultyAdjustmentInterval != 0 {
		return prev.Bits
	}

	actualTimespan := prev.Timestamp.Sub(windowStart.Timestamp)
	return retargetBits(p, prev.Bits, actualTimespan)
}

// retargetBits implements the hash-difficulty half of the retarget: clamp
// the measured timespan to [nominal/4, nominal*4], then linearly rescale
// the compact target by that ratio, capped at powLimit.
func retargetBits(p Params, oldBits uint32, actualTimespan time.Duration) uint32 {
	nominal := p.TargetTimespan
	minTimespan := nominal / 4
	maxTimespan := nominal * 4

	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	} else if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	oldTarget := standalone.CompactToBig(oldBits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(int64(actualTimespan)))
	newTarget.Div(newTarget, big.NewInt(int64(nominal)))

	if newTarget.Cmp(p.PowLimit) > 0 {
		newTarget = p.PowLimit
	}
	return standalone.BigToCompact(newTarget)
}

// NextEdgeBits computes the edge_bits (the Cuckoo Cycle memory-hardness
// dial) for the block following prev. It mirrors NextBits' retarget
// cadence: only evaluated at a window boundary, carried forward otherwise.
func NextEdgeBits(p Params, prev PrevBlock, windowStart WindowStart) uint8 {
	if p.NoRetarget {
		return prev.EdgeBits
	}

	nextHeight := prev.Height + 1
	if p.DifficultyAdjustmentInterval <= 0 || nextHeight%p.DifficultyAdjustmentInterval != 0 {
		return prev.EdgeBits
	}

	actualTimespan := prev.Timestamp.Sub(windowStart.Timestamp)
	nominal := p.TargetTimespan

	var step int
	switch {
	case float64(actualTimespan) < float64(nominal)/p.EdgeBitsTargetThreshold:
		step = 1
	case float64(actualTimespan) > float64(nominal)*p.EdgeBitsTargetThreshold:
		step = -1
	default:
		return prev.EdgeBits
	}

	return stepEdgeBits(prev.EdgeBits, step, p.EdgeBitsAllowed)
}

// stepEdgeBits adjusts the raw edge_bits value by one in either direction.
// The adjusted value must itself be in the allowed set; an out-of-set
// retarget is ignored and the current value stays.
func stepEdgeBits(current uint8, step int, allowed []uint8) uint8 {
	candidate := uint8(int(current) + step)
	if !edgeBitsAllowed(candidate, allowed) {
		return current
	}
	return candidate
}

func edgeBitsAllowed(v uint8, allowed []uint8) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
