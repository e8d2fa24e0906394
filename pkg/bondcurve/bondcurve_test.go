package bondcurve

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/matryer/is"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

func units(n uint64) *uint256.Int {
	return fixedpoint.FromUnits(n)
}

func TestPriceHalf(t *testing.T) {
	is := is.New(t)
	// supply 1000, aggregate 1000, k 1000: price is exactly 50%
	p := Price(units(1000), units(1000), units(1000))
	is.True(p.Eq(uint256.NewInt(500_000_000_000_000_000)))
}

func TestPriceUntouchedOption(t *testing.T) {
	is := is.New(t)
	p := Price(new(uint256.Int), units(1000), units(1000))
	is.True(p.IsZero())
}

func TestPriceZeroDenominator(t *testing.T) {
	is := is.New(t)
	p := Price(new(uint256.Int), new(uint256.Int), new(uint256.Int))
	is.True(p.IsZero())
}

func TestPriceTwoOptionExample(t *testing.T) {
	is := is.New(t)
	// supplies (2000, 500), k=1000: prices 2000/3500 and 500/3500
	supplies := []*uint256.Int{units(2000), units(500)}
	total := units(2500)
	k := units(1000)

	prices := AllPrices(supplies, total, k)
	is.True(prices[0].Eq(uint256.NewInt(571_428_571_428_571_428)))
	is.True(prices[1].Eq(uint256.NewInt(142_857_142_857_142_857)))

	sum := new(uint256.Int).Add(prices[0], prices[1])
	is.True(sum.Lt(fixedpoint.Scale()))
}

func TestPriceStrictlyBelowOne(t *testing.T) {
	is := is.New(t)
	k := units(1)
	total := new(uint256.Int)
	for _, n := range []uint64{0, 1, 10, 1000, 100_000, 10_000_000} {
		supply := units(n)
		total.Set(supply)
		is.True(Price(supply, total, k).Lt(fixedpoint.Scale()))
	}
}

func TestPriceMonotonicInSupply(t *testing.T) {
	is := is.New(t)
	k := units(1000)
	prev := new(uint256.Int)
	for n := uint64(0); n <= 5000; n += 250 {
		// the option holds the whole aggregate supply
		p := Price(units(n), units(n), k)
		is.True(!p.Lt(prev))
		prev = p
	}
}

func TestPriceSumBounded(t *testing.T) {
	is := is.New(t)
	k := units(1000)
	supplies := []*uint256.Int{units(2000), units(500), units(900), units(1)}
	total := units(3401)

	sum := new(uint256.Int)
	for _, p := range AllPrices(supplies, total, k) {
		sum.Add(sum, p)
	}
	is.True(!sum.Gt(fixedpoint.Scale()))
}

func TestNormalizedPricesUniformWhenUntraded(t *testing.T) {
	is := is.New(t)
	supplies := []*uint256.Int{new(uint256.Int), new(uint256.Int), new(uint256.Int), new(uint256.Int)}
	probs := NormalizedPrices(supplies, new(uint256.Int))
	quarter := new(uint256.Int).Div(fixedpoint.Scale(), uint256.NewInt(4))
	for _, p := range probs {
		is.True(p.Eq(quarter))
	}
}

func TestNormalizedPricesExample(t *testing.T) {
	is := is.New(t)
	supplies := []*uint256.Int{units(2000), units(500)}
	probs := NormalizedPrices(supplies, units(2500))
	is.True(probs[0].Eq(uint256.NewInt(800_000_000_000_000_000)))
	is.True(probs[1].Eq(uint256.NewInt(200_000_000_000_000_000)))
}
