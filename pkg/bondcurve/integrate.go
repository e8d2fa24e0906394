package bondcurve

import (
	"github.com/holiman/uint256"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

// Integration step counts. Large trades get a finer resolution to bound the
// approximation error; small trades get a coarser one to bound the work.
const (
	coarseSteps = 10
	fineSteps   = 100
)

// largeTrade is the token quantity (1000 whole tokens) above which the fine
// step count kicks in.
var largeTrade = fixedpoint.FromUnits(1000)

// BuyCost computes the collateral required to move an option's supply from
// current to current+amount (with the aggregate supply moving in step) by
// integrating the price curve with the midpoint rule. The result is a pure
// function of its four inputs.
func BuyCost(current, amount, k, total *uint256.Int) (*uint256.Int, error) {
	cost := new(uint256.Int)
	if amount.IsZero() {
		return cost, nil
	}

	steps := uint64(coarseSteps)
	if amount.Gt(largeTrade) {
		steps = fineSteps
	}
	stepSize := new(uint256.Int).Div(amount, uint256.NewInt(steps))

	supply := new(uint256.Int).Set(current)
	running := new(uint256.Int).Set(total)
	consumed := new(uint256.Int)

	for i := uint64(0); i < steps; i++ {
		size := new(uint256.Int).Set(stepSize)
		if i == steps-1 {
			// the final step absorbs the integer-division remainder so the
			// step sizes sum exactly to amount
			size.Sub(amount, consumed)
		}
		if size.IsZero() {
			continue
		}

		half := new(uint256.Int).Rsh(size, 1)
		avgSupply := new(uint256.Int).Add(supply, half)
		denom := new(uint256.Int).Add(running, half)
		denom.Add(denom, k)

		if !denom.IsZero() {
			stepPrice, err := fixedpoint.DivScaled(avgSupply, denom)
			if err != nil {
				return nil, err
			}
			stepCost, err := fixedpoint.MulScaled(size, stepPrice)
			if err != nil {
				return nil, err
			}
			var overflow bool
			if cost, overflow = cost.AddOverflow(cost, stepCost); overflow {
				return nil, fixedpoint.ErrOverflow
			}
		}

		supply.Add(supply, size)
		running.Add(running, size)
		consumed.Add(consumed, size)
	}
	return cost, nil
}

// SellReturn computes the collateral released by moving an option's supply
// from current down to current-amount, mirroring BuyCost with decreasing
// midpoints. Selling zero, or more than the current supply, is a no-op worth
// zero; the caller layer turns the latter into a hard error.
func SellReturn(current, amount, k, total *uint256.Int) (*uint256.Int, error) {
	proceeds := new(uint256.Int)
	if amount.IsZero() || amount.Gt(current) {
		return proceeds, nil
	}

	steps := uint64(coarseSteps)
	if amount.Gt(largeTrade) {
		steps = fineSteps
	}
	stepSize := new(uint256.Int).Div(amount, uint256.NewInt(steps))

	supply := new(uint256.Int).Set(current)
	running := new(uint256.Int).Set(total)
	consumed := new(uint256.Int)

	for i := uint64(0); i < steps; i++ {
		size := new(uint256.Int).Set(stepSize)
		if i == steps-1 {
			size.Sub(amount, consumed)
		}
		if size.IsZero() {
			continue
		}

		// midpoints clamp at zero instead of wrapping when the remaining
		// supply is smaller than half a step
		half := new(uint256.Int).Rsh(size, 1)
		avgSupply := fixedpoint.SubClamped(supply, half)
		denom := fixedpoint.SubClamped(running, half)
		denom.Add(denom, k)

		if !denom.IsZero() {
			stepPrice, err := fixedpoint.DivScaled(avgSupply, denom)
			if err != nil {
				return nil, err
			}
			stepProceeds, err := fixedpoint.MulScaled(size, stepPrice)
			if err != nil {
				return nil, err
			}
			var overflow bool
			if proceeds, overflow = proceeds.AddOverflow(proceeds, stepProceeds); overflow {
				return nil, fixedpoint.ErrOverflow
			}
		}

		supply.Set(fixedpoint.SubClamped(supply, size))
		running.Set(fixedpoint.SubClamped(running, size))
		consumed.Add(consumed, size)
	}
	return proceeds, nil
}
