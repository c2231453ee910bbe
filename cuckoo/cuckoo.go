// Package cuckoo implements Cuckoo Cycle, the memory-hard graph-theoretic
// proof-of-work Merit mines with. It is a direct Go port
// of John Tromp's reference algorithm as carried in Merit's original
// implementation: a bipartite graph on 2^(edge_bits+1) nodes, edges given by
// siphash(header), cycles found by following and compressing union-find-like
// paths through a "last edge seen at this node" table.
package cuckoo

import (
	"github.com/dchest/siphash"
	"github.com/minio/blake2b-simd"
)

// MaxProofSize bounds the cycle length this package will solve or verify
// for; mainnet uses exactly 42.
const MaxProofSize = 42

// DefaultEdgesRatio is the percentage of NNODES tried as edge nonces absent
// an explicit override; at 50% this tries exactly NEDGES = NNODES/2 nonces,
// one per edge of a standard Cuckoo Cycle graph.
const DefaultEdgesRatio = 50

// maxPathLen bounds the path-following search; exceeding it indicates a
// corrupt or adversarial graph, not a valid solve attempt.
const maxPathLen = 8192

// Keys holds the pair of 64-bit siphash keys derived from a header, used to
// generate every edge endpoint in the graph.
type Keys struct {
	K0, K1 uint64
}

// DeriveKeys computes the siphash keys from BLAKE2b-256(header), matching
// Merit's setKeys: the low 128 bits of the digest, read as two little-endian
// uint64s.
func DeriveKeys(header []byte) Keys {
	digest := blake2b.Sum256(header)
	return Keys{
		K0: leU64(digest[0:8]),
		K1: leU64(digest[8:16]),
	}
}

func leU64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// Params describes one graph instance: edge_bits sets the graph size,
// edgesRatio% of NNODES is the nonce range searched, proofSize is the
// required cycle length.
type Params struct {
	EdgeBits   uint8
	EdgesRatio uint8
	ProofSize  uint8
}

// edgeMask returns the mask applied to a raw siphash output to fold it onto
// the node space.
func (p Params) edgeMask() uint32 {
	return uint32(1)<<p.EdgeBits - 1
}

// nNodes returns 2^(edge_bits+1), the bipartite graph's node count.
func (p Params) nNodes() uint64 {
	return uint64(1) << (p.EdgeBits + 1)
}

// difficulty returns the number of nonces (edges) to search: edgesRatio% of
// nNodes.
func (p Params) difficulty() uint64 {
	return uint64(p.EdgesRatio) * p.nNodes() / 100
}

// sipNode generates one endpoint of edge `nonce`, on side `uorv` (0 or 1).
// The low bit of the result tags which side of the bipartite graph the node
// belongs to, keeping the two halves disjoint.
func sipNode(k Keys, mask uint32, nonce uint32, uorv uint32) uint32 {
	h := siphash.Hash(k.K0, k.K1, u64le(2*uint64(nonce)+uint64(uorv)))
	node := uint32(h) & mask
	return node<<1 | uorv
}

func u64le(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
