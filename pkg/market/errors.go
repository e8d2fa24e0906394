package market

import "errors"

// Sentinel errors for the engine. Every failure wraps one of these with the
// offending inputs so callers can both match with errors.Is and read back
// which bound was violated and by how much.
var (
	ErrValidation          = errors.New("market: validation failed")
	ErrPhase               = errors.New("market: wrong phase")
	ErrSlippage            = errors.New("market: slippage bound violated")
	ErrInsufficientBalance = errors.New("market: insufficient balance")
	ErrInvariant           = errors.New("market: price invariant violated")
	ErrNotFound            = errors.New("market: not found")
	ErrUnauthorized        = errors.New("market: unauthorized")
)
