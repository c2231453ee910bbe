package anv

import (
	"math/big"
)

// Prec is the mantissa precision, in bits, every Decimal carries — comfortably
// above the 100-bit precision floor the CGS engine's numeric policy sets for its
// intermediate products.
const Prec = 128

// Decimal is the extended-precision type backing CGS's
// intermediate products, so that two conforming implementations never
// diverge in the final floored unit from differing native float rounding.
// Addition, subtraction, multiplication and division are exact at Prec bits
// via math/big.Float; the two transcendental operations (Pow, Ln1p) are
// computed by argument-reduced series on big.Float at Prec plus guard
// bits, never through a native float. No ecosystem arbitrary-precision
// decimal library (ericlagergren/decimal, shopspring/decimal,
// cockroachdb/apd) appears anywhere in the retrieval pack's go.mod files,
// so this type is built on the standard library's big.Float rather than
// adopting an unrelated dependency with no grounding here.
type Decimal struct {
	f big.Float
}

// NewDecimal constructs a Decimal from a float64 at Prec precision.
func NewDecimal(v float64) Decimal {
	var d Decimal
	d.f.SetPrec(Prec).SetFloat64(v)
	return d
}

// NewDecimalInt64 constructs a Decimal from an integer amount (atomic units).
func NewDecimalInt64(v int64) Decimal {
	var d Decimal
	d.f.SetPrec(Prec).SetInt64(v)
	return d
}

func (d Decimal) Add(o Decimal) Decimal {
	var r Decimal
	r.f.SetPrec(Prec).Add(&d.f, &o.f)
	return r
}

func (d Decimal) Sub(o Decimal) Decimal {
	var r Decimal
	r.f.SetPrec(Prec).Sub(&d.f, &o.f)
	return r
}

func (d Decimal) Mul(o Decimal) Decimal {
	var r Decimal
	r.f.SetPrec(Prec).Mul(&d.f, &o.f)
	return r
}

func (d Decimal) Div(o Decimal) Decimal {
	var r Decimal
	r.f.SetPrec(Prec).Quo(&d.f, &o.f)
	return r
}

// Cmp compares d and o the way big.Float.Cmp does.
func (d Decimal) Cmp(o Decimal) int {
	return d.f.Cmp(&o.f)
}

func (d Decimal) Float64() float64 {
	v, _ := d.f.Float64()
	return v
}

// workPrec is the precision the transcendental helpers compute at: Prec
// plus guard bits, so the rounding back to Prec at the end is exact in
// every bit two conforming implementations can observe.
const workPrec = Prec + 64

// epsAt returns 2^-(prec+2), the series cutoff at a given precision.
func epsAt(prec uint) *big.Float {
	return new(big.Float).SetMantExp(big.NewFloat(1), -int(prec)-2)
}

// atanhSeries sums z + z^3/3 + z^5/5 + ... at prec bits. Callers reduce
// their argument so |z| <= 0.34, where the series converges in well under
// a hundred terms for workPrec bits.
func atanhSeries(z *big.Float, prec uint) *big.Float {
	sum := new(big.Float).SetPrec(prec).Set(z)
	z2 := new(big.Float).SetPrec(prec).Mul(z, z)
	power := new(big.Float).SetPrec(prec).Set(z)
	term := new(big.Float).SetPrec(prec)
	abs := new(big.Float).SetPrec(prec)
	eps := epsAt(prec)
	for n := int64(3); ; n += 2 {
		power.Mul(power, z2)
		term.Quo(power, new(big.Float).SetPrec(prec).SetInt64(n))
		sum.Add(sum, term)
		if abs.Abs(term).Cmp(eps) < 0 {
			return sum
		}
	}
}

// ln2 at workPrec bits: 2*atanh(1/3).
var bigLn2 = func() *big.Float {
	third := new(big.Float).SetPrec(workPrec).Quo(
		new(big.Float).SetPrec(workPrec).SetInt64(1),
		new(big.Float).SetPrec(workPrec).SetInt64(3))
	r := atanhSeries(third, workPrec)
	return r.Add(r, r)
}()

// lnBig computes the natural log of x > 0 at prec bits: split x into
// m*2^k with m in [2/3, 4/3), take ln(m) = 2*atanh((m-1)/(m+1)), and add
// k*ln2.
func lnBig(x *big.Float, prec uint) *big.Float {
	m := new(big.Float).SetPrec(prec)
	k := x.MantExp(m) // m in [0.5, 1)
	twoThirds := new(big.Float).SetPrec(prec).Quo(
		new(big.Float).SetPrec(prec).SetInt64(2),
		new(big.Float).SetPrec(prec).SetInt64(3))
	if m.Cmp(twoThirds) < 0 {
		m.Add(m, m)
		k--
	}

	num := new(big.Float).SetPrec(prec).Sub(m, one128(prec))
	den := new(big.Float).SetPrec(prec).Add(m, one128(prec))
	z := num.Quo(num, den)
	lnm := atanhSeries(z, prec)
	lnm.Add(lnm, lnm)

	kLn2 := new(big.Float).SetPrec(prec).Mul(
		new(big.Float).SetPrec(prec).SetInt64(int64(k)), bigLn2)
	return lnm.Add(lnm, kLn2)
}

// expBig computes e^x at prec bits: reduce x = k*ln2 + r with |r| < ln2,
// sum the Taylor series for e^r, then shift by 2^k.
func expBig(x *big.Float, prec uint) *big.Float {
	q := new(big.Float).SetPrec(prec).Quo(x, bigLn2)
	k, _ := q.Int64()
	r := new(big.Float).SetPrec(prec).Mul(
		new(big.Float).SetPrec(prec).SetInt64(k), bigLn2)
	r.Sub(x, r)

	sum := one128(prec)
	term := one128(prec)
	abs := new(big.Float).SetPrec(prec)
	eps := epsAt(prec)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, new(big.Float).SetPrec(prec).SetInt64(n))
		sum.Add(sum, term)
		if abs.Abs(term).Cmp(eps) < 0 {
			break
		}
	}
	return sum.SetMantExp(sum, int(k))
}

func one128(prec uint) *big.Float {
	return new(big.Float).SetPrec(prec).SetInt64(1)
}

// Pow raises d to exponent e, as exp(e*ln(d)) computed entirely on
// big.Float at workPrec bits and rounded once back to Prec. Going through
// a native float here would silently cap every ConvexF weight at ~53
// mantissa bits, exactly the divergence the CGS numeric policy forbids.
// d must be non-negative, which every CGS call site (ratios of subtree
// contributions) guarantees.
func (d Decimal) Pow(e Decimal) Decimal {
	if e.f.Sign() == 0 {
		return One()
	}
	if d.f.Sign() == 0 {
		return Zero()
	}
	x := new(big.Float).SetPrec(workPrec).Set(&d.f)
	y := new(big.Float).SetPrec(workPrec).Set(&e.f)
	l := lnBig(x, workPrec)
	r := expBig(l.Mul(l, y), workPrec)
	var out Decimal
	out.f.SetPrec(Prec).Set(r)
	return out
}

// Ln1p computes ln(1+d) at the same extended precision as Pow. d must be
// non-negative; node contribution values always are.
func (d Decimal) Ln1p() Decimal {
	if d.f.Sign() == 0 {
		return Zero()
	}
	x := new(big.Float).SetPrec(workPrec).Add(one128(workPrec), &d.f)
	r := lnBig(x, workPrec)
	var out Decimal
	out.f.SetPrec(Prec).Set(r)
	return out
}

// FloorInt64 truncates toward zero, which is equivalent to floor for the
// non-negative values every CGS quantity is bounded to (`CGS(A) >= 0`).
func (d Decimal) FloorInt64() int64 {
	i, _ := d.f.Int(nil)
	return i.Int64()
}

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool {
	return d.f.Sign() == 0
}

var zero = NewDecimal(0)
var one = NewDecimal(1)

// Zero returns the Decimal zero value.
func Zero() Decimal { return zero }

// One returns the Decimal one value.
func One() Decimal { return one }
