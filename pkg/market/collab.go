package market

import "github.com/holiman/uint256"

// Ledger is the external multi-token balance book. The engine never mutates
// balances directly; it only tells the ledger what to mint and burn. Token
// ids are derived as marketID*1000 + optionIndex (see Market.TokenID).
type Ledger interface {
	Mint(account string, tokenID uint64, amount *uint256.Int) error
	Burn(account string, tokenID uint64, amount *uint256.Int) error
	BalanceOf(account string, tokenID uint64) (*uint256.Int, error)
	TotalSupply(tokenID uint64) (*uint256.Int, error)
}

// CollateralAsset moves currency between trader accounts and the engine's
// reserve. Its smallest unit is assumed to share the engine's 10^18 scale;
// assets with coarser decimals need a conversion layer in front of it.
type CollateralAsset interface {
	// TransferFrom pulls amount from payer into the reserve.
	TransferFrom(payer string, amount *uint256.Int) error
	// Transfer pays amount out of the reserve to recipient.
	Transfer(recipient string, amount *uint256.Int) error
}

// AccessControl is the single-holder capability gating market creation,
// resolution, and emergency withdrawal.
type AccessControl interface {
	// Authorize returns ErrUnauthorized (or a wrap of it) unless account
	// holds the capability.
	Authorize(account string) error
}

// SingleHolder is the reference AccessControl: exactly one account holds the
// capability.
type SingleHolder struct {
	Account string
}

func (s SingleHolder) Authorize(account string) error {
	if account != s.Account {
		return ErrUnauthorized
	}
	return nil
}
