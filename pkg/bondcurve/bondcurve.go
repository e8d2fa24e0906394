// package bondcurve implements a constrained bonding curve for multi-option
// markets: the price of option i is supply_i / (totalSupply + k), so every
// price stays strictly below 1 and the prices sum to at most 1.

package bondcurve

import (
	"github.com/holiman/uint256"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

// Price calculates the instantaneous price of one option given its
// outstanding supply, the aggregate supply across all options, and the curve
// steepness k. A degenerate zero denominator (totalSupply+k == 0) prices at
// zero rather than failing.
func Price(supply, total, k *uint256.Int) *uint256.Int {
	denom := new(uint256.Int).Add(total, k)
	if denom.IsZero() {
		return new(uint256.Int)
	}
	p, err := fixedpoint.DivScaled(supply, denom)
	if err != nil {
		// denom was checked above; overflowing 256 bits here would need a
		// supply no reachable market state can hold
		return new(uint256.Int)
	}
	return p
}

// AllPrices calculates the price of every option, in option order.
func AllPrices(supplies []*uint256.Int, total, k *uint256.Int) []*uint256.Int {
	prices := make([]*uint256.Int, len(supplies))
	for i, s := range supplies {
		prices[i] = Price(s, total, k)
	}
	return prices
}

// NormalizedPrices rescales supplies into per-option probabilities that sum
// to 1.0. An untraded market (zero aggregate supply) is the uniform
// distribution. Each entry truncates toward zero, so the sum can fall short
// of 1.0 by at most one raw unit per option.
func NormalizedPrices(supplies []*uint256.Int, total *uint256.Int) []*uint256.Int {
	n := len(supplies)
	probs := make([]*uint256.Int, n)
	if total.IsZero() {
		if n == 0 {
			return probs
		}
		uniform := new(uint256.Int).Div(fixedpoint.Scale(), uint256.NewInt(uint64(n)))
		for i := range probs {
			probs[i] = new(uint256.Int).Set(uniform)
		}
		return probs
	}
	for i, s := range supplies {
		p, err := fixedpoint.DivScaled(s, total)
		if err != nil {
			p = new(uint256.Int)
		}
		probs[i] = p
	}
	return probs
}
