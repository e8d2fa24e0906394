package bondcurve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/matryer/is"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

func TestBuyCostZeroAmount(t *testing.T) {
	is := is.New(t)
	cost, err := BuyCost(units(100), new(uint256.Int), units(1000), units(100))
	is.NoErr(err)
	is.True(cost.IsZero())
}

func TestBuyCostDeterministic(t *testing.T) {
	is := is.New(t)
	a, err := BuyCost(units(500), units(123), units(1000), units(800))
	is.NoErr(err)
	b, err := BuyCost(units(500), units(123), units(1000), units(800))
	is.NoErr(err)
	is.True(a.Eq(b))
}

func TestBuyCostBelowAmount(t *testing.T) {
	is := is.New(t)
	// every step prices below 1.0, so the cost of q tokens stays below q
	for _, n := range []uint64{1, 10, 999, 1000, 1001, 50_000} {
		cost, err := BuyCost(new(uint256.Int), units(n), units(1000), new(uint256.Int))
		is.NoErr(err)
		is.True(cost.Lt(units(n)))
	}
}

func TestBuyCostMonotonicInAmount(t *testing.T) {
	is := is.New(t)
	k := units(1000)
	prev := new(uint256.Int)
	for _, n := range []uint64{10, 50, 100, 500, 1000, 2000, 10_000} {
		cost, err := BuyCost(units(200), units(n), k, units(600))
		is.NoErr(err)
		is.True(cost.Gt(prev))
		prev = cost
	}
}

func TestBuyCostStepResolutionBoundary(t *testing.T) {
	is := is.New(t)
	// either side of the 1000-token threshold both paths stay sane: finer
	// steps change the approximation slightly, never the ordering
	coarse, err := BuyCost(new(uint256.Int), units(1000), units(1000), new(uint256.Int))
	is.NoErr(err)
	fine, err := BuyCost(new(uint256.Int), new(uint256.Int).AddUint64(units(1000), 1), units(1000), new(uint256.Int))
	is.NoErr(err)
	is.True(!fine.Lt(new(uint256.Int).Sub(coarse, units(1))))
}

func TestSellReturnZeroAmount(t *testing.T) {
	is := is.New(t)
	proceeds, err := SellReturn(units(100), new(uint256.Int), units(1000), units(100))
	is.NoErr(err)
	is.True(proceeds.IsZero())
}

func TestSellReturnExceedingSupply(t *testing.T) {
	is := is.New(t)
	// selling more than the option's supply is a no-op at this layer
	proceeds, err := SellReturn(units(100), units(101), units(1000), units(100))
	is.NoErr(err)
	is.True(proceeds.IsZero())
}

func TestSellReturnEntireSupply(t *testing.T) {
	is := is.New(t)
	proceeds, err := SellReturn(units(100), units(100), units(1000), units(100))
	is.NoErr(err)
	is.True(!proceeds.IsZero())
	is.True(proceeds.Lt(units(100)))
}

func TestRoundTripExact(t *testing.T) {
	is := is.New(t)
	// buying then immediately selling the same quantity walks the same
	// midpoints in reverse when the step sizes divide evenly
	k := units(1000)
	amount := units(100)

	cost, err := BuyCost(new(uint256.Int), amount, k, new(uint256.Int))
	is.NoErr(err)
	back, err := SellReturn(amount, amount, k, amount)
	is.NoErr(err)
	is.True(back.Eq(cost))
}

func TestRoundTripNoFreeProfit(t *testing.T) {
	is := is.New(t)
	// with odd step sizes the reverse midpoints shift by one raw unit; the
	// tolerance covers that discretization error
	k := units(1000)
	tolerance := uint256.NewInt(1000)

	for _, raw := range []uint64{7, 77, 777, 7_777_777} {
		amount := new(uint256.Int).AddUint64(units(7), raw)
		start := units(350)
		total := units(900)

		cost, err := BuyCost(start, amount, k, total)
		is.NoErr(err)

		newSupply := new(uint256.Int).Add(start, amount)
		newTotal := new(uint256.Int).Add(total, amount)
		back, err := SellReturn(newSupply, amount, k, newTotal)
		is.NoErr(err)

		limit := new(uint256.Int).Add(cost, tolerance)
		is.True(!back.Gt(limit))
	}
}

func TestBuyThenPriceRises(t *testing.T) {
	is := is.New(t)
	k := units(1000)
	before := Price(new(uint256.Int), new(uint256.Int), k)

	amount := units(1000)
	after := Price(amount, amount, k)
	is.True(after.Gt(before))
	// buying up to supply 1000 with k=1000 prices the option at exactly 50%
	is.True(after.Eq(uint256.NewInt(500_000_000_000_000_000)))
	is.True(after.Lt(fixedpoint.Scale()))
}
