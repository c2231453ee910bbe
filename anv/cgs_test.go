package anv

import (
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/referral"
)

func TestConvexFMonotonicity(t *testing.T) {
	b := NewDecimal(0.5)
	s := NewDecimal(0.5)
	delta := NewDecimal(0.1)

	lo := NewDecimal(0.2)
	hi := NewDecimal(0.6)

	diffLo := ConvexF(lo.Add(delta), b, s).Sub(ConvexF(lo, b, s))
	diffHi := ConvexF(hi.Add(delta), b, s).Sub(ConvexF(hi, b, s))

	if diffHi.Cmp(diffLo) <= 0 {
		t.Fatalf("expected super-linear growth: ConvexF(hi+d)-ConvexF(hi) = %v should exceed ConvexF(lo+d)-ConvexF(lo) = %v",
			diffHi.Float64(), diffLo.Float64())
	}
}

func TestAgeScaleMonotonicity(t *testing.T) {
	tip := int32(10000)
	maturity := int32(4000)

	older := AgeScale(0, tip, maturity)   // larger (tip-height)
	newer := AgeScale(9000, tip, maturity) // smaller (tip-height)

	if older.Cmp(newer) < 0 {
		t.Fatalf("expected AgeScale to be non-decreasing with age: older=%v newer=%v", older.Float64(), newer.Float64())
	}
}

func TestAgeScaleBounds(t *testing.T) {
	s := AgeScale(0, 100000, 4000)
	if s.Cmp(Zero()) < 0 || s.Cmp(One()) > 0 {
		t.Fatalf("AgeScale out of [0,1]: %v", s.Float64())
	}
}

type fakeCoins map[address.Address][]Coin

func (f fakeCoins) CoinsForAddress(addr address.Address, tipHeight int32) ([]Coin, error) {
	return f[addr], nil
}

func buildSmallTree(t *testing.T) (genesis, childA, childB address.Address, g *referral.Graph) {
	t.Helper()
	genesis[0] = 0xff
	childA[0] = 0x01
	childB[0] = 0x02

	var err error
	g, err = referral.Open(filepath.Join(t.TempDir(), "ref.ldb"), genesis, 0)
	if err != nil {
		t.Fatalf("referral.Open: %v", err)
	}
	t.Cleanup(func() { g.Close() })

	for _, c := range []address.Address{childA, childB} {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("GeneratePrivateKey: %v", err)
		}
		ref := &referral.Referral{
			Version:       referral.CurrentVersion,
			ParentAddress: genesis,
			AddressType:   address.PubKeyHash,
			KeyHash:       c,
		}
		copy(ref.PubKey[:], priv.PubKey().SerializeCompressed())
		ref.Sign(priv)
		if err := g.Insert(ref, 1); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return genesis, childA, childB, g
}

func TestComputeCGSBoundedByTotalBalance(t *testing.T) {
	genesis, childA, childB, g := buildSmallTree(t)

	coins := fakeCoins{
		childA: {{Height: 1, Amount: 1000}},
		childB: {{Height: 1, Amount: 2000}},
	}

	ctx, err := NewContext(g, coins, genesis, 5000, Params{
		CoinMaturity:    4000,
		NewCoinMaturity: 4000,
		B:               NewDecimal(0.5),
		S:               NewDecimal(0.5),
	})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}

	totalBalance := int64(3000)
	for _, addr := range []address.Address{genesis, childA, childB} {
		res := ctx.ComputeCGS(addr)
		if res.CGS < 0 {
			t.Fatalf("CGS(%s) = %d, want >= 0", addr, res.CGS)
		}
		if res.CGS > totalBalance {
			t.Fatalf("CGS(%s) = %d, want <= total subtree balance %d", addr, res.CGS, totalBalance)
		}
	}
}
