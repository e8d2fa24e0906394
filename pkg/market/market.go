package market

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

const (
	MinOptions = 2
	MaxOptions = 10

	// HouseFeeBps is the fixed house fee charged on total collateral at
	// resolution, in basis points. Global, not per-market.
	HouseFeeBps = 300

	bpsDenominator = 10_000

	// tokenIDSpan separates per-market token id ranges. Option indexes must
	// stay below it; the enforced 2-10 option range keeps this safe.
	tokenIDSpan = 1000
)

// Market is the engine-owned state of one question. Supplies and collateral
// belong exclusively to the engine; external token balances live in the
// Ledger collaborator.
type Market struct {
	ID          uint64
	Question    string
	Options     []string
	K           *uint256.Int
	Supplies    []*uint256.Int
	TotalSupply *uint256.Int
	Collateral  *uint256.Int
	Deadline    time.Time
	CreatedAt   time.Time

	Resolved bool
	Winner   int // -1 until resolved

	// Snapshots taken at resolution time so every redemption splits the
	// same pool regardless of claim order.
	PayoutPool    *uint256.Int
	WinningSupply *uint256.Int
}

// TokenID derives the ledger token id for one option of this market.
func (m *Market) TokenID(option int) uint64 {
	return m.ID*tokenIDSpan + uint64(option)
}

// TradingOpen reports whether buys and sells are still accepted.
func (m *Market) TradingOpen(now time.Time) bool {
	return !m.Resolved && now.Before(m.Deadline)
}

// Clone deep-copies the market so read paths can hand state out without
// exposing the engine's mutable numbers.
func (m *Market) Clone() *Market {
	c := *m
	c.Options = append([]string(nil), m.Options...)
	c.Supplies = make([]*uint256.Int, len(m.Supplies))
	for i, s := range m.Supplies {
		c.Supplies[i] = new(uint256.Int).Set(s)
	}
	c.K = new(uint256.Int).Set(m.K)
	c.TotalSupply = new(uint256.Int).Set(m.TotalSupply)
	c.Collateral = new(uint256.Int).Set(m.Collateral)
	if m.PayoutPool != nil {
		c.PayoutPool = new(uint256.Int).Set(m.PayoutPool)
	}
	if m.WinningSupply != nil {
		c.WinningSupply = new(uint256.Int).Set(m.WinningSupply)
	}
	return &c
}

// Consistent verifies the supply bookkeeping invariant: the aggregate supply
// equals the sum of the per-option supplies.
func (m *Market) Consistent() error {
	sum := new(uint256.Int)
	for _, s := range m.Supplies {
		sum.Add(sum, s)
	}
	if !sum.Eq(m.TotalSupply) {
		return fmt.Errorf("%w: total supply %s != supply sum %s",
			ErrInvariant, m.TotalSupply.Dec(), sum.Dec())
	}
	return nil
}
