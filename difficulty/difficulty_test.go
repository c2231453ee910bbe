package difficulty

import (
	"math/big"
	"testing"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
)

func testParams() Params {
	powLimit := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))
	return Params{
		PowLimitBits:                  standalone.BigToCompact(powLimit),
		PowLimit:                      powLimit,
		DifficultyAdjustmentInterval:  144,
		TargetTimespan:                144 * 5 * time.Minute,
		EdgeBitsAllowed:               []uint8{24, 25, 26, 27, 28, 29, 30},
		EdgeBitsTargetThreshold:       4,
		ReduceMinDifficulty:           false,
		MinDiffReductionTime:          10 * time.Minute,
	}
}

func TestNextBitsCarriesForwardOffWindow(t *testing.T) {
	p := testParams()
	prev := PrevBlock{Height: 10, Timestamp: time.Unix(1_600_000_000, 0), Bits: p.PowLimitBits - 1}
	got := NextBits(p, prev, WindowStart{}, prev.Timestamp.Add(5*time.Minute))
	if got != prev.Bits {
		t.Fatalf("NextBits off a retarget boundary = %d, want unchanged %d", got, prev.Bits)
	}
}

func TestNextBitsRetargetsHarderWhenFast(t *testing.T) {
	p := testParams()
	windowStart := time.Unix(1_600_000_000, 0)
	prev := PrevBlock{
		Height:    p.DifficultyAdjustmentInterval - 1,
		Timestamp: windowStart.Add(p.TargetTimespan / 2), // blocks came twice as fast as nominal
		Bits:      standalone.BigToCompact(new(big.Int).Rsh(p.PowLimit, 8)),
	}
	got := NextBits(p, prev, WindowStart{Timestamp: windowStart}, prev.Timestamp)
	gotTarget := standalone.CompactToBig(got)
	prevTarget := standalone.CompactToBig(prev.Bits)
	if gotTarget.Cmp(prevTarget) >= 0 {
		t.Fatalf("faster-than-nominal window should lower the target (raise difficulty): got %s, prev %s", gotTarget, prevTarget)
	}
}

func TestNextBitsNeverExceedsPowLimit(t *testing.T) {
	p := testParams()
	windowStart := time.Unix(1_600_000_000, 0)
	prev := PrevBlock{
		Height:    p.DifficultyAdjustmentInterval - 1,
		Timestamp: windowStart.Add(p.TargetTimespan * 100), // wildly slow window, clamped to x4
		Bits:      p.PowLimitBits,
	}
	got := NextBits(p, prev, WindowStart{Timestamp: windowStart}, prev.Timestamp)
	gotTarget := standalone.CompactToBig(got)
	if gotTarget.Cmp(p.PowLimit) > 0 {
		t.Fatalf("retarget target %s exceeds PowLimit %s", gotTarget, p.PowLimit)
	}
}

func TestNextBitsRegtestNeverRetargets(t *testing.T) {
	p := testParams()
	p.NoRetarget = true
	prev := PrevBlock{Height: p.DifficultyAdjustmentInterval - 1, Bits: 12345, Timestamp: time.Unix(0, 0)}
	got := NextBits(p, prev, WindowStart{}, prev.Timestamp)
	if got != p.PowLimitBits {
		if got != p.PowLimitBits {
			t.Fatalf("NextBits with NoRetarget = %d, want PowLimitBits %d", got, p.PowLimitBits)
		}
	}
}

func TestNextBitsTestnetMinDifficultyEscape(t *testing.T) {
	p := testParams()
	p.ReduceMinDifficulty = true
	prev := PrevBlock{Height: 5, Timestamp: time.Unix(1_600_000_000, 0), Bits: p.PowLimitBits - 1}
	late := prev.Timestamp.Add(p.MinDiffReductionTime + time.Second)
	got := NextBits(p, prev, WindowStart{}, late)
	if got != p.PowLimitBits {
		t.Fatalf("min-difficulty escape should return PowLimitBits, got %d", got)
	}
}

func TestNextEdgeBitsStepsUpWhenFast(t *testing.T) {
	p := testParams()
	windowStart := time.Unix(1_600_000_000, 0)
	prev := PrevBlock{
		Height:    p.DifficultyAdjustmentInterval - 1,
		Timestamp: windowStart.Add(p.TargetTimespan / 10), // much faster than threshold
		EdgeBits:  26,
	}
	got := NextEdgeBits(p, prev, WindowStart{Timestamp: windowStart})
	if got != 27 {
		t.Fatalf("NextEdgeBits = %d, want 27 (one step up from 26)", got)
	}
}

func TestNextEdgeBitsStepsDownWhenSlow(t *testing.T) {
	p := testParams()
	windowStart := time.Unix(1_600_000_000, 0)
	prev := PrevBlock{
		Height:    p.DifficultyAdjustmentInterval - 1,
		Timestamp: windowStart.Add(p.TargetTimespan * 10), // much slower than threshold
		EdgeBits:  26,
	}
	got := NextEdgeBits(p, prev, WindowStart{Timestamp: windowStart})
	if got != 25 {
		t.Fatalf("NextEdgeBits = %d, want 25 (one step down from 26)", got)
	}
}

func TestNextEdgeBitsClampsAtTopOfAllowedSet(t *testing.T) {
	p := testParams()
	windowStart := time.Unix(1_600_000_000, 0)
	prev := PrevBlock{
		Height:    p.DifficultyAdjustmentInterval - 1,
		Timestamp: windowStart.Add(p.TargetTimespan / 10),
		EdgeBits:  30, // already at the top of EdgeBitsAllowed
	}
	got := NextEdgeBits(p, prev, WindowStart{Timestamp: windowStart})
	if got != 30 {
		t.Fatalf("NextEdgeBits at top of allowed set = %d, want unchanged 30", got)
	}
}

func TestNextEdgeBitsUnchangedWithinThreshold(t *testing.T) {
	p := testParams()
	windowStart := time.Unix(1_600_000_000, 0)
	prev := PrevBlock{
		Height:    p.DifficultyAdjustmentInterval - 1,
		Timestamp: windowStart.Add(p.TargetTimespan), // exactly nominal
		EdgeBits:  26,
	}
	got := NextEdgeBits(p, prev, WindowStart{Timestamp: windowStart})
	if got != 26 {
		t.Fatalf("NextEdgeBits at nominal pace = %d, want unchanged 26", got)
	}
}
