// Package lottery implements the ambassador and invite lotteries: weighted
// random sampling over the referral graph, keyed by a block-derived seed so
// every implementation picks identical winners from identical state.
package lottery

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
)

// Candidate is one rewardable address entering the ambassador lottery: its
// CGS is the sampling weight.
type Candidate struct {
	Address address.Address
	CGS     int64
}

// drawUniform derives a uniform value in (0, 1) from H(seed || i), matching
// so every implementation draws the same sequence.
func drawUniform(seed chainhash.Hash, i uint64) float64 {
	var buf [chainhash.HashSize + 8]byte
	copy(buf[:chainhash.HashSize], seed[:])
	binary.LittleEndian.PutUint64(buf[chainhash.HashSize:], i)
	digest := chainhash.HashB(buf[:])
	raw := binary.LittleEndian.Uint64(digest[:8])

	// Map [0, 2^64) to (0, 1), excluding 0 so ln() never sees -Inf for a
	// legitimate draw.
	const maxUint64Plus1 = 1.8446744073709552e19
	v := (float64(raw) + 1) / maxUint64Plus1
	if v >= 1 {
		v = math.Nextafter(1, 0)
	}
	return v
}

type keyedCandidate struct {
	candidate Candidate
	key       float64
}

// SelectAmbassadors runs the Efraimidis-Spirakis weighted sample-without-
// replacement: for each candidate with weight w = CGS, key = ln(rand_i)/w;
// the n candidates with the largest key win.
// Candidates with non-positive weight never win (ln(rand) is negative, and
// dividing by a non-positive weight cannot be ordered consistently with
// positive-weight keys, so they are excluded up front — the CGS floor
// required as a prerequisite for entry should already guarantee
// this in practice).
func SelectAmbassadors(seed chainhash.Hash, candidates []Candidate, n int) []Candidate {
	keyed := make([]keyedCandidate, 0, len(candidates))
	for i, c := range candidates {
		if c.CGS <= 0 {
			continue
		}
		rand := drawUniform(seed, uint64(i))
		key := math.Log(rand) / float64(c.CGS)
		keyed = append(keyed, keyedCandidate{candidate: c, key: key})
	}

	sort.Slice(keyed, func(i, j int) bool { return keyed[i].key > keyed[j].key })

	if n > len(keyed) {
		n = len(keyed)
	}
	winners := make([]Candidate, n)
	for i := 0; i < n; i++ {
		winners[i] = keyed[i].candidate
	}
	return winners
}

// AllocateRewards splits pool among winners proportionally to
// ln(1+CGS), integer-floored, with the remainder handed to the miner.
// Returns (per-winner rewards in winner order, remainder for the miner).
func AllocateRewards(pool int64, winners []Candidate) ([]int64, int64) {
	if len(winners) == 0 {
		return nil, pool
	}

	weights := make([]float64, len(winners))
	var total float64
	for i, w := range winners {
		weights[i] = math.Log1p(float64(w.CGS))
		total += weights[i]
	}

	rewards := make([]int64, len(winners))
	var distributed int64
	if total > 0 {
		for i, w := range weights {
			share := int64(float64(pool) * w / total)
			rewards[i] = share
			distributed += share
		}
	}
	return rewards, pool - distributed
}
