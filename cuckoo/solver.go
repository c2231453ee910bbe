package cuckoo

import "sort"

// edge is one graph edge, identified by its nonce's two endpoints.
type edge struct {
	u, v uint32
}

// Solve searches for a ProofSize-length cycle in the graph derived from
// header, following Merit's original single-threaded algorithm: a
// "last edge into this node" table doubles as a union-find over partial
// paths, and a cycle is detected when two new edges' paths to the root
// coincide at the same length.
//
// cancel, if non-nil, is polled every 1024 nonces (starting at nonce 0);
// when it reports true Solve
// returns (nil, false) immediately: no cycle found is a normal outcome,
// never an error.
func Solve(header []byte, p Params, cancel func() bool) ([]uint32, bool) {
	keys := DeriveKeys(header)
	mask := p.edgeMask()
	difficulty := p.difficulty()

	cuckoo := make([]uint32, p.nNodes()+1)
	us := make([]uint32, maxPathLen)
	vs := make([]uint32, maxPathLen)

	for nonce := uint64(0); nonce < difficulty; nonce++ {
		if cancel != nil && nonce%1024 == 0 && cancel() {
			return nil, false
		}
		u0 := sipNode(keys, mask, uint32(nonce), 0)
		if u0 == 0 {
			continue // 0 is reserved nil; v0 is guaranteed non-zero
		}
		v0 := sipNode(keys, mask, uint32(nonce), 1)
		u := cuckoo[u0]
		v := cuckoo[v0]
		us[0] = u0
		vs[0] = v0

		nu := followPath(cuckoo, u, us)
		nv := followPath(cuckoo, v, vs)
		if nu < 0 || nv < 0 {
			continue // path exceeded maxPathLen; treat as a dead graph state
		}

		if us[nu] == vs[nv] {
			min := nu
			if nv < min {
				min = nv
			}
			nu -= min
			nv -= min
			for us[nu] != vs[nv] {
				nu++
				nv++
			}
			length := nu + nv + 1
			if length == int(p.ProofSize) {
				cycle := extractCycle(keys, mask, difficulty, us, nu, vs, nv)
				sort.Slice(cycle, func(i, j int) bool { return cycle[i] < cycle[j] })
				return cycle, true
			}
			continue
		}

		if nu < nv {
			for nu > 0 {
				cuckoo[us[nu]] = us[nu-1]
				nu--
			}
			cuckoo[u0] = v0
		} else {
			for nv > 0 {
				cuckoo[vs[nv]] = vs[nv-1]
				nv--
			}
			cuckoo[v0] = u0
		}
	}
	return nil, false
}

// followPath walks the "last edge" chain from u, recording it into us, and
// returns the path's length, or -1 if it exceeds maxPathLen (a sign of a
// pathological or adversarial graph rather than a real solve step).
func followPath(cuckoo []uint32, u uint32, us []uint32) int {
	nu := 0
	for u != 0 {
		nu++
		if nu >= maxPathLen {
			return -1
		}
		us[nu] = u
		u = cuckoo[u]
	}
	return nu
}

// extractCycle recovers the cycle's nonces given the two paths that met.
// It rebuilds the cycle's edge set, then rescans every nonce in range,
// keeping those matching a cycle edge.
func extractCycle(keys Keys, mask uint32, difficulty uint64, us []uint32, nu int, vs []uint32, nv int) []uint32 {
	cycle := map[edge]bool{{us[0], vs[0]}: true}
	// u's occupy even path positions, v's occupy odd ones.
	for nu > 0 {
		nu--
		cycle[edge{us[(nu+1) &^ 1], us[nu|1]}] = true
	}
	for nv > 0 {
		nv--
		cycle[edge{vs[nv|1], vs[(nv+1) &^ 1]}] = true
	}

	nonces := make([]uint32, 0, len(cycle))
	for nonce := uint64(0); nonce < difficulty && len(nonces) < len(cycle); nonce++ {
		e := edge{sipNode(keys, mask, uint32(nonce), 0), sipNode(keys, mask, uint32(nonce), 1)}
		if cycle[e] {
			nonces = append(nonces, uint32(nonce))
		}
	}
	return nonces
}
