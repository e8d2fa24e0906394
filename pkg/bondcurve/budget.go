package bondcurve

import (
	"github.com/holiman/uint256"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

// budgetSearchIterations bounds the binary search on the large-budget path.
const budgetSearchIterations = 50

// smallBudget is the threshold (100 whole currency units) below which the
// cheap direct approximation is used instead of the binary search.
var smallBudget = fixedpoint.FromUnits(100)

// TokensForBudget determines the maximal token quantity purchasable for at
// most maxBudget, along with the actual collateral cost of that quantity.
//
// Budgets at or under 100 units are solved with a first-order estimate off
// the spot price, biased low by one raw price unit and scaled down if the
// integrated cost still overshoots. Repeated very small buys can therefore
// drift slightly against the search path; budgets just either side of the
// threshold can disagree by a similar margin.
//
// Larger budgets run a bounded binary search over candidate quantities in
// [0, maxBudget], keeping the largest candidate whose integrated cost stays
// within budget. The budget doubles as the quantity upper bound; the two are
// different dimensions that happen to share a scale, and the bound must be
// re-derived before reusing this with a differently-scaled asset.
func TokensForBudget(current, maxBudget, k, total *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	tokens := new(uint256.Int)
	cost := new(uint256.Int)
	if maxBudget.IsZero() {
		return tokens, cost, nil
	}

	if !maxBudget.Gt(smallBudget) {
		spot := Price(current, total, k)
		// one raw unit of premium keeps the estimate under the true solve
		premium := new(uint256.Int).AddUint64(spot, 1)
		est, err := fixedpoint.DivScaled(maxBudget, premium)
		if err != nil {
			return nil, nil, err
		}
		actual, err := BuyCost(current, est, k, total)
		if err != nil {
			return nil, nil, err
		}
		if actual.Gt(maxBudget) {
			scaled, overflow := new(uint256.Int).MulDivOverflow(est, maxBudget, actual)
			if overflow {
				return nil, nil, fixedpoint.ErrOverflow
			}
			est = scaled
			actual = new(uint256.Int).Set(maxBudget)
		}
		return est, actual, nil
	}

	low := new(uint256.Int)
	high := new(uint256.Int).Set(maxBudget)
	for i := 0; i < budgetSearchIterations; i++ {
		if low.Gt(high) {
			break
		}
		mid, err := fixedpoint.Add(low, high)
		if err != nil {
			return nil, nil, err
		}
		mid.Rsh(mid, 1)

		midCost, err := BuyCost(current, mid, k, total)
		if err != nil {
			return nil, nil, err
		}
		if !midCost.Gt(maxBudget) {
			tokens.Set(mid)
			cost.Set(midCost)
			low.AddUint64(mid, 1)
		} else {
			if mid.IsZero() {
				// nothing affordable below zero; stop rather than wrap
				break
			}
			high.SubUint64(mid, 1)
		}
	}
	return tokens, cost, nil
}
