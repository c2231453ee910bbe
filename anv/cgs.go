package anv

import (
	"sync"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/referral"
)

// BatchSize is the number of entrants each CGS worker processes per job,
// matching the original implementation's ctpl thread-pool batching.
const BatchSize = 100

// Coin is one unspent, non-invite output contributing to an address's aged
// balance.
type Coin struct {
	Height int32
	Amount int64
}

// CoinSource supplies the coins CGS ages for a given address. The coinage
// package implements this over the on-disk CoinAgeIndex; kept as
// an interface here so anv need not import coinage.
type CoinSource interface {
	CoinsForAddress(addr address.Address, tipHeight int32) ([]Coin, error)
}

// Params bundles the consensus parameters CGS needs.
type Params struct {
	CoinMaturity    int32
	NewCoinMaturity int32
	B               Decimal
	S               Decimal
}

// Age returns (tip_height - height) / (maturity/4) at Decimal precision.
func Age(height, tipHeight, maturity int32) Decimal {
	maturityScale := NewDecimal(float64(maturity) / 4.0)
	diff := NewDecimal(float64(tipHeight - height))
	return diff.Div(maturityScale)
}

// AgeScale returns 1 - 1/(age^2+1), monotonically non-decreasing in age,
// bounded to [0,1).
func AgeScale(height, tipHeight, maturity int32) Decimal {
	age := Age(height, tipHeight, maturity)
	denom := age.Mul(age).Add(one)
	return one.Sub(one.Div(denom))
}

// BalanceDecay applies AgeScale to a single coin, returning (aged, full).
func BalanceDecay(tipHeight int32, c Coin, maturity int32) (aged, full int64) {
	scale := AgeScale(c.Height, tipHeight, maturity)
	agedDec := scale.Mul(NewDecimalInt64(c.Amount))
	return agedDec.FloorInt64(), c.Amount
}

// AgedBalance sums BalanceDecay over every coin.
func AgedBalance(tipHeight int32, coins []Coin, maturity int32) (agedSum, balanceSum int64) {
	for _, c := range coins {
		aged, full := BalanceDecay(tipHeight, c, maturity)
		agedSum += aged
		balanceSum += full
	}
	return agedSum, balanceSum
}

// ConvexF is the sybil-resistant convex combination B*x + (1-B)*x^(1+S).
// It must remain monotone and strictly super-linear for 0<=B<=1, 0<=S<=1.
func ConvexF(x, b, s Decimal) Decimal {
	linear := b.Mul(x)
	exponent := one.Add(s)
	sublinear := one.Sub(b).Mul(x.Pow(exponent))
	return linear.Add(sublinear)
}

type contribution struct {
	value Decimal
	sub   Decimal
}

type subtreeContribution struct {
	value    Decimal
	sub      Decimal
	treeSize int
}

type entrant struct {
	addressType address.Type
	addr        address.Address
	parent      address.Address
	height      int32
	children    []address.Address
	coins       []Coin
	agedBalance int64
	balance     int64
	contrib     contribution
}

// Context is the ephemeral per-tip CGS computation unit: every rewardable
// address's cached aged balance, subtree contribution, and the tree-wide
// totals CGS is scaled against.
type Context struct {
	TipHeight int32
	params    Params

	entrants map[address.Address]*entrant
	order    []address.Address // BFS discovery order, for deterministic batching
	subtree  map[address.Address]subtreeContribution

	rootContribution contribution
}

// NewContext builds a CGSContext rooted at root, pulling the referral
// subtree from graph and coin balances from coins. Ages are
// computed in parallel batches of BatchSize entrants.
func NewContext(graph *referral.Graph, coins CoinSource, root address.Address, tipHeight int32, params Params) (*Context, error) {
	ctx := &Context{
		TipHeight: tipHeight,
		params:    params,
		entrants:  make(map[address.Address]*entrant),
		subtree:   make(map[address.Address]subtreeContribution),
	}
	if err := ctx.prefill(graph, coins, root); err != nil {
		return nil, err
	}
	ctx.computeAgesParallel()
	ctx.computeContributions()
	return ctx, nil
}

// prefill walks the referral forest breadth-first from root, loading each
// address's children and coins.
func (ctx *Context) prefill(graph *referral.Graph, coins CoinSource, root address.Address) error {
	queue := []address.Address{root}
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		if _, ok := ctx.entrants[addr]; ok {
			continue
		}

		var addrType address.Type
		var parent address.Address
		var height int32
		if ref, err := graph.Lookup(addr); err == nil {
			addrType = ref.AddressType
			parent = ref.ParentAddress
			if h, err := graph.Height(addr); err == nil {
				height = int32(h)
			}
		} else if err != referral.ErrNotFound {
			return err
		}

		var children []address.Address
		it := graph.Children(addr)
		for it.Next() {
			children = append(children, it.Address())
		}
		it.Release()

		cs, err := coins.CoinsForAddress(addr, ctx.TipHeight)
		if err != nil {
			return err
		}

		ctx.entrants[addr] = &entrant{
			addressType: addrType,
			addr:        addr,
			parent:      parent,
			height:      height,
			children:    children,
			coins:       cs,
		}
		ctx.order = append(ctx.order, addr)
		queue = append(queue, children...)
	}
	return nil
}

// computeAgesParallel runs AgedBalance over every entrant in fixed-size
// batches, one goroutine per batch, each owning its input slice exclusively
func (ctx *Context) computeAgesParallel() {
	var wg sync.WaitGroup
	for start := 0; start < len(ctx.order); start += BatchSize {
		end := start + BatchSize
		if end > len(ctx.order) {
			end = len(ctx.order)
		}
		wg.Add(1)
		go func(batch []address.Address) {
			defer wg.Done()
			for _, addr := range batch {
				e := ctx.entrants[addr]
				e.agedBalance, e.balance = AgedBalance(ctx.TipHeight, e.coins, ctx.params.CoinMaturity)
			}
		}(ctx.order[start:end])
	}
	wg.Wait()
}

// computeContributions fills in each entrant's node contribution and the
// subtree contributions, then caches the root's total for use as the
// ExpectedValue denominator.
func (ctx *Context) computeContributions() {
	for _, addr := range ctx.order {
		e := ctx.entrants[addr]
		beaconHeight := e.height
		if beaconHeight > ctx.TipHeight {
			beaconHeight = ctx.TipHeight
		}
		beta := one.Sub(AgeScale(beaconHeight, ctx.TipHeight, ctx.params.NewCoinMaturity))
		value := beta.Mul(NewDecimalInt64(e.balance)).Add(NewDecimalInt64(e.agedBalance))
		e.contrib = contribution{value: value, sub: value.Ln1p()}
	}

	root := ctx.subtreeContribution(ctx.rootAddr())
	ctx.rootContribution = contribution{value: root.value, sub: root.sub}
}

// rootAddr returns the address prefill started from (first in discovery
// order).
func (ctx *Context) rootAddr() address.Address {
	if len(ctx.order) == 0 {
		return address.Address{}
	}
	return ctx.order[0]
}

type stackNode struct {
	addr     address.Address
	children []address.Address
	acc      subtreeContribution
}

// subtreeContribution computes C(addr) = c(addr) + Σ C(child), post-order,
// with an explicit stack so pathological trees can't blow the goroutine
// stack.
func (ctx *Context) subtreeContribution(addr address.Address) subtreeContribution {
	if c, ok := ctx.subtree[addr]; ok {
		return c
	}

	rootEntrant := ctx.entrants[addr]
	stack := []*stackNode{{addr: addr, children: append([]address.Address{}, rootEntrant.children...)}}
	var result subtreeContribution

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		top.acc.value = top.acc.value.Add(result.value)
		top.acc.sub = top.acc.sub.Add(result.sub)
		top.acc.treeSize += result.treeSize

		if len(top.children) == 0 {
			e := ctx.entrants[top.addr]
			top.acc.value = top.acc.value.Add(e.contrib.value)
			top.acc.sub = top.acc.sub.Add(e.contrib.sub)
			top.acc.treeSize++

			ctx.subtree[top.addr] = top.acc
			result = top.acc
			stack = stack[:len(stack)-1]
		} else {
			child := top.children[len(top.children)-1]
			top.children = top.children[:len(top.children)-1]

			result = subtreeContribution{}
			childEntrant := ctx.entrants[child]
			stack = append(stack, &stackNode{addr: child, children: append([]address.Address{}, childEntrant.children...)})
		}
	}

	return ctx.subtree[addr]
}

// weightedScores holds both the linear (value) and sub-linear (sub) variants
// of a node's weighted score.
type weightedScores struct {
	value, sub Decimal
	treeSize   int
}

func (ctx *Context) weightedScore(addr address.Address) weightedScores {
	sc := ctx.subtreeContribution(addr)
	var value, sub Decimal
	if !ctx.rootContribution.value.IsZero() {
		value = ConvexF(sc.value.Div(ctx.rootContribution.value), ctx.params.B, ctx.params.S)
	}
	if !ctx.rootContribution.sub.IsZero() {
		sub = ConvexF(sc.sub.Div(ctx.rootContribution.sub), ctx.params.B, ctx.params.S)
	}
	return weightedScores{value: value, sub: sub, treeSize: sc.treeSize}
}

// ExpectedValue is ConvexF(C(A)/C(root)) - Σ ConvexF(C(child)/C(root)): a
// node's score net of what its children already claim.
func (ctx *Context) ExpectedValue(addr address.Address) (value, sub Decimal, treeSize int) {
	if ctx.rootContribution.value.IsZero() {
		return Zero(), Zero(), 0
	}
	self := ctx.weightedScore(addr)
	value, sub = self.value, self.sub
	for _, child := range ctx.entrants[addr].children {
		childScore := ctx.weightedScore(child)
		value = value.Sub(childScore.value)
		sub = sub.Sub(childScore.sub)
	}
	return value, sub, self.treeSize
}

// Result is one address's fully computed CGS entry.
type Result struct {
	AddressType address.Type
	Address     address.Address
	Balance     int64
	AgedBalance int64
	CGS         int64
	SubCGS      int64
	Height      int32
	NumChildren int
	TreeSize    int
}

// ComputeCGS returns the CGS and sub-CGS of addr: C(root).value *
// ExpectedValue(addr).value, floored to atomic units.
func (ctx *Context) ComputeCGS(addr address.Address) Result {
	e := ctx.entrants[addr]
	value, sub, treeSize := ctx.ExpectedValue(addr)
	cgs := ctx.rootContribution.value.Mul(value).FloorInt64()
	subCGS := ctx.rootContribution.sub.Mul(sub).FloorInt64()
	return Result{
		AddressType: e.addressType,
		Address:     addr,
		Balance:     e.balance,
		AgedBalance: e.agedBalance,
		CGS:         cgs,
		SubCGS:      subCGS,
		Height:      e.height,
		NumChildren: len(e.children),
		TreeSize:    treeSize,
	}
}

// Addresses returns every address discovered during prefill, in BFS order.
func (ctx *Context) Addresses() []address.Address {
	return ctx.order
}
