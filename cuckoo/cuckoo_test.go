package cuckoo

import "testing"

// smallParams uses a tiny graph so Solve terminates quickly in a unit test;
// production mainnet parameters live in chaincfg.
var smallParams = Params{EdgeBits: 12, EdgesRatio: 50, ProofSize: 6}

// solveOrSkip tries a handful of header variants until one yields a cycle,
// and returns the exact header that solved along with the cycle.
func solveOrSkip(t *testing.T, seed []byte, p Params) ([]byte, []uint32) {
	t.Helper()
	for nonce := 0; nonce < 64; nonce++ {
		h := append(append([]byte{}, seed...), byte(nonce))
		if cycle, ok := Solve(h, p, nil); ok {
			return h, append([]uint32{}, cycle...)
		}
	}
	t.Skip("no cycle found in small search space; graph/header combination got unlucky")
	return nil, nil
}

func TestSolveVerifyRoundTrip(t *testing.T) {
	header, cycle := solveOrSkip(t, []byte("cuckoo round trip test header"), smallParams)
	if got := Verify(header, smallParams, cycle); got != OK {
		t.Fatalf("Verify(Solve(header)) = %v, want OK", got)
	}

	var xorU, xorV uint32
	keys := DeriveKeys(header)
	mask := smallParams.edgeMask()
	for _, c := range cycle {
		xorU ^= sipNode(keys, mask, c, 0)
		xorV ^= sipNode(keys, mask, c, 1)
	}
	if xorU != 0 || xorV != 0 {
		t.Fatalf("cycle endpoints do not XOR to zero: u=%x v=%x", xorU, xorV)
	}
}

func TestVerifyRejectsUnsortedCycle(t *testing.T) {
	header, cycle := solveOrSkip(t, []byte("unsorted cycle header"), smallParams)
	if len(cycle) < 2 {
		t.Skip("cycle too short to perturb")
	}
	swapped := append([]uint32{}, cycle...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	if got := Verify(header, smallParams, swapped); got != TooSmall {
		t.Fatalf("Verify(unsorted) = %v, want TooSmall", got)
	}
}

func TestVerifyRejectsTooBigEdge(t *testing.T) {
	p := smallParams
	header, cycle := solveOrSkip(t, []byte("too big edge header"), p)
	tampered := append([]uint32{}, cycle...)
	tampered[len(tampered)-1] = p.edgeMask() + 1
	if got := Verify(header, p, tampered); got != TooBig {
		t.Fatalf("Verify(out-of-range edge) = %v, want TooBig", got)
	}
}

func TestVerifyRejectsShortCycle(t *testing.T) {
	p := smallParams
	header, cycle := solveOrSkip(t, []byte("short cycle header"), p)
	// A single edge, taken alone, cannot close a cycle of the required
	// length and will not even satisfy the XOR check in general, so this
	// exercises the early rejection paths rather than asserting a specific
	// code.
	single := cycle[:1]
	if got := Verify(header, p, single); got == OK {
		t.Fatalf("Verify(single edge) = OK, want a rejection code")
	}
}

func TestSolveIsCancellable(t *testing.T) {
	header := []byte("cancel me")
	calls := 0
	cancel := func() bool {
		calls++
		return true
	}
	if _, ok := Solve(header, Params{EdgeBits: 20, EdgesRatio: 50, ProofSize: 42}, cancel); ok {
		t.Fatal("expected cancellation to short-circuit Solve")
	}
}
