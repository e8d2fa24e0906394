package marketstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/matryer/is"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
	"github.com/curvemarkets/curvemarkets/pkg/market"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markets.db")
	EnsureMigrations(path)
	s, err := NewSqliteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMarket(id uint64) *market.Market {
	// RFC3339 storage keeps second precision only
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &market.Market{
		ID:          id,
		Question:    "Who wins the finals?",
		Options:     []string{"sharks", "jets"},
		K:           fixedpoint.FromUnits(1000),
		Supplies:    []*uint256.Int{fixedpoint.FromUnits(40), fixedpoint.FromUnits(60)},
		TotalSupply: fixedpoint.FromUnits(100),
		Collateral:  fixedpoint.FromUnits(23),
		Deadline:    created.Add(48 * time.Hour),
		CreatedAt:   created,
		Winner:      -1,
	}
}

func TestSaveLoadMarketRoundTrip(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	m0 := testMarket(0)
	m1 := testMarket(1)
	m1.Question = "Rain tomorrow?"
	is.NoErr(s.SaveMarket(ctx, m0))
	is.NoErr(s.SaveMarket(ctx, m1))

	loaded, err := s.LoadMarkets(ctx)
	is.NoErr(err)
	is.Equal(len(loaded), 2)

	got := loaded[0]
	is.Equal(got.ID, m0.ID)
	is.Equal(got.Question, m0.Question)
	is.Equal(got.Options, m0.Options)
	is.True(got.K.Eq(m0.K))
	is.True(got.TotalSupply.Eq(m0.TotalSupply))
	is.True(got.Collateral.Eq(m0.Collateral))
	is.True(got.Supplies[0].Eq(m0.Supplies[0]))
	is.True(got.Supplies[1].Eq(m0.Supplies[1]))
	is.True(got.Deadline.Equal(m0.Deadline))
	is.True(got.CreatedAt.Equal(m0.CreatedAt))
	is.Equal(got.Resolved, false)
	is.Equal(got.Winner, -1)
	is.Equal(got.PayoutPool, (*uint256.Int)(nil))
	is.Equal(got.WinningSupply, (*uint256.Int)(nil))
	is.NoErr(got.Consistent())

	is.Equal(loaded[1].Question, "Rain tomorrow?")
}

func TestSaveMarketUpsert(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	m := testMarket(0)
	is.NoErr(s.SaveMarket(ctx, m))

	// trade happened, then the market resolved
	m.Supplies[0] = fixedpoint.FromUnits(140)
	m.TotalSupply = fixedpoint.FromUnits(200)
	m.Collateral = fixedpoint.FromUnits(50)
	m.Resolved = true
	m.Winner = 0
	m.PayoutPool = fixedpoint.FromUnits(48)
	m.WinningSupply = fixedpoint.FromUnits(140)
	is.NoErr(s.SaveMarket(ctx, m))

	loaded, err := s.LoadMarkets(ctx)
	is.NoErr(err)
	is.Equal(len(loaded), 1)

	got := loaded[0]
	is.True(got.Supplies[0].Eq(m.Supplies[0]))
	is.True(got.TotalSupply.Eq(m.TotalSupply))
	is.True(got.Collateral.Eq(m.Collateral))
	is.Equal(got.Resolved, true)
	is.Equal(got.Winner, 0)
	is.True(got.PayoutPool.Eq(m.PayoutPool))
	is.True(got.WinningSupply.Eq(m.WinningSupply))
}

func TestPositionsLedger(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	const tokenID = 2001

	bal, err := s.BalanceOf("alice", tokenID)
	is.NoErr(err)
	is.True(bal.IsZero())

	is.NoErr(s.Mint("alice", tokenID, fixedpoint.FromUnits(70)))
	is.NoErr(s.Mint("bob", tokenID, fixedpoint.FromUnits(30)))

	bal, err = s.BalanceOf("alice", tokenID)
	is.NoErr(err)
	is.True(bal.Eq(fixedpoint.FromUnits(70)))
	total, err := s.TotalSupply(tokenID)
	is.NoErr(err)
	is.True(total.Eq(fixedpoint.FromUnits(100)))

	is.NoErr(s.Burn("alice", tokenID, fixedpoint.FromUnits(20)))
	bal, err = s.BalanceOf("alice", tokenID)
	is.NoErr(err)
	is.True(bal.Eq(fixedpoint.FromUnits(50)))
	total, err = s.TotalSupply(tokenID)
	is.NoErr(err)
	is.True(total.Eq(fixedpoint.FromUnits(80)))

	// burning past the balance fails and changes nothing
	err = s.Burn("bob", tokenID, fixedpoint.FromUnits(31))
	is.True(err != nil)
	bal, err = s.BalanceOf("bob", tokenID)
	is.NoErr(err)
	is.True(bal.Eq(fixedpoint.FromUnits(30)))
}

func TestCollateralBook(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	is.NoErr(s.Deposit(ctx, "alice", fixedpoint.FromUnits(500)))

	// alice pays into the reserve, the reserve pays bob
	is.NoErr(s.TransferFrom("alice", fixedpoint.FromUnits(120)))
	is.NoErr(s.Transfer("bob", fixedpoint.FromUnits(20)))

	aliceBal, err := s.CollateralBalance(ctx, "alice")
	is.NoErr(err)
	is.True(aliceBal.Eq(fixedpoint.FromUnits(380)))
	bobBal, err := s.CollateralBalance(ctx, "bob")
	is.NoErr(err)
	is.True(bobBal.Eq(fixedpoint.FromUnits(20)))

	// overdrafts fail on both sides
	is.True(s.TransferFrom("alice", fixedpoint.FromUnits(381)) != nil)
	is.True(s.Transfer("bob", fixedpoint.FromUnits(101)) != nil)

	// remaining reserve drains cleanly
	is.NoErr(s.Transfer("bob", fixedpoint.FromUnits(100)))
	is.True(s.Transfer("bob", uint256.NewInt(1)) != nil)
}

func TestTradeJournal(t *testing.T) {
	is := is.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	trades := []market.Trade{
		{MarketID: 0, Option: 0, Account: "alice", Side: "buy",
			Tokens: fixedpoint.FromUnits(10), Cost: fixedpoint.FromUnits(3), At: base},
		{MarketID: 0, Option: 1, Account: "bob", Side: "buy",
			Tokens: fixedpoint.FromUnits(5), Cost: fixedpoint.FromUnits(2), At: base.Add(time.Minute)},
		{MarketID: 1, Option: 0, Account: "alice", Side: "sell",
			Tokens: fixedpoint.FromUnits(4), Cost: fixedpoint.FromUnits(1), At: base.Add(2 * time.Minute)},
	}
	for _, tr := range trades {
		is.NoErr(s.RecordTrade(ctx, tr))
	}

	all, err := s.ListTrades(ctx, -1, "", time.Time{}, 0)
	is.NoErr(err)
	is.Equal(len(all), 3)
	// newest first
	is.Equal(all[0].Side, "sell")
	is.Equal(all[0].Tokens, fixedpoint.FromUnits(4).Dec())

	byMarket, err := s.ListTrades(ctx, 0, "", time.Time{}, 0)
	is.NoErr(err)
	is.Equal(len(byMarket), 2)

	byAccount, err := s.ListTrades(ctx, -1, "alice", time.Time{}, 0)
	is.NoErr(err)
	is.Equal(len(byAccount), 2)

	since, err := s.ListTrades(ctx, -1, "", base.Add(time.Minute), 0)
	is.NoErr(err)
	is.Equal(len(since), 2)

	limited, err := s.ListTrades(ctx, -1, "", time.Time{}, 1)
	is.NoErr(err)
	is.Equal(len(limited), 1)
	is.Equal(limited[0].MarketID, uint64(1))
}
