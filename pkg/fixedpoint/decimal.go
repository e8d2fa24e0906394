package fixedpoint

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// FromDecimal parses a non-negative decimal string ("1250.5") into a scaled
// integer without going through float64. Fractional digits beyond the scale
// are truncated.
func FromDecimal(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("fixedpoint: invalid decimal %q", s)
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		// ".5" case
		intPart = "0"
	}

	whole, err := uint256.FromDecimal(intPart)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: invalid decimal %q: %w", s, err)
	}
	z, overflow := new(uint256.Int).MulOverflow(whole, scale)
	if overflow {
		return nil, ErrOverflow
	}

	if len(fracPart) > Decimals {
		fracPart = fracPart[:Decimals]
	}
	if fracPart != "" {
		frac, err := uint256.FromDecimal(fracPart)
		if err != nil {
			return nil, fmt.Errorf("fixedpoint: invalid decimal %q: %w", s, err)
		}
		// scale the fractional digits up to 18 places
		for i := len(fracPart); i < Decimals; i++ {
			frac.Mul(frac, uint256.NewInt(10))
		}
		z, overflow = z.AddOverflow(z, frac)
		if overflow {
			return nil, ErrOverflow
		}
	}
	return z, nil
}

// Format renders a scaled integer as a decimal string, trimming trailing
// fractional zeros. Format(FromUnits(3)) == "3".
func Format(x *uint256.Int) string {
	q := new(uint256.Int).Div(x, scale)
	r := new(uint256.Int).Mod(x, scale)
	if r.IsZero() {
		return q.Dec()
	}
	frac := fmt.Sprintf("%018s", r.Dec())
	frac = strings.TrimRight(frac, "0")
	return q.Dec() + "." + frac
}
