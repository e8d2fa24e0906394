// package fixedpoint holds the scaled-integer arithmetic shared by the
// pricing engine. Every quantity in the system (supplies, prices, collateral)
// is an unsigned 256-bit integer scaled by 10^18.

package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by every scaled value.
const Decimals = 18

var (
	ErrDivideByZero = errors.New("fixedpoint: divide by zero")
	ErrOverflow     = errors.New("fixedpoint: overflow")
)

// scale = 10^18, the integer representation of 1.0.
var scale = uint256.NewInt(1_000_000_000_000_000_000)

// Scale returns a copy of the scale constant (10^18).
func Scale() *uint256.Int {
	return new(uint256.Int).Set(scale)
}

// FromUnits converts a whole-unit count into its scaled representation,
// i.e. FromUnits(3) is 3.0.
func FromUnits(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), scale)
}

// MulScaled computes a*b/SCALE with a full-width intermediate product.
func MulScaled(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, scale)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// DivScaled computes a*SCALE/b. Callers must ensure b is nonzero; a zero
// denominator is a precondition violation, not a value.
func DivScaled(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivideByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, scale, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Add is a checked addition: it fails instead of wrapping.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SubClamped returns a-b, or zero when b exceeds a. The integrators use it
// to keep sell-side midpoints non-negative instead of wrapping around.
func SubClamped(a, b *uint256.Int) *uint256.Int {
	if b.Gt(a) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}
