// package market orchestrates trading on constrained-bonding-curve prediction
// markets: it owns per-market supply and collateral totals, prices trades via
// the bondcurve integrators, and drives the external ledger and collateral
// collaborators.

package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/curvemarkets/curvemarkets/pkg/bondcurve"
	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
)

// DefaultK is the curve steepness used when market creation passes zero.
func DefaultK() *uint256.Int {
	return fixedpoint.FromUnits(1000)
}

// Trade is one executed buy or sell, handed to the Persister as a journal
// entry.
type Trade struct {
	MarketID uint64
	Option   int
	Account  string
	Side     string // "buy" or "sell"
	Tokens   *uint256.Int
	Cost     *uint256.Int
	At       time.Time
}

// Persister is the optional write-behind persistence hook. The in-memory
// arena stays authoritative; persistence failures are logged, not raised.
type Persister interface {
	SaveMarket(ctx context.Context, m *Market) error
	RecordTrade(ctx context.Context, t Trade) error
}

// Params configures a new Engine. Ledger, Collateral and Access are
// required; everything else has a usable default.
type Params struct {
	Ledger     Ledger
	Collateral CollateralAsset
	Access     AccessControl
	Events     EventSink
	Persister  Persister
	Logger     zerolog.Logger

	// Operator receives the house fee at resolution.
	Operator string
	// DefaultK overrides the package default curve steepness.
	DefaultK *uint256.Int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine owns an index-addressed arena of markets. A single mutex serializes
// every state-mutating entry point, so no nested or concurrent call can
// observe a half-updated market while a transfer side effect is pending.
type Engine struct {
	mu      sync.Mutex
	markets []*Market

	ledger     Ledger
	collateral CollateralAsset
	access     AccessControl
	events     EventSink
	persist    Persister
	log        zerolog.Logger

	operator string
	defaultK *uint256.Int
	now      func() time.Time
}

func NewEngine(p Params) *Engine {
	e := &Engine{
		ledger:     p.Ledger,
		collateral: p.Collateral,
		access:     p.Access,
		events:     p.Events,
		persist:    p.Persister,
		log:        p.Logger,
		operator:   p.Operator,
		defaultK:   p.DefaultK,
		now:        p.Now,
	}
	if e.events == nil {
		e.events = NopSink{}
	}
	if e.defaultK == nil || e.defaultK.IsZero() {
		e.defaultK = DefaultK()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Restore rehydrates the arena from persisted markets. Markets must arrive
// ordered by id with no gaps, which is how the store hands them back.
func (e *Engine) Restore(ms []*Market) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.markets) != 0 {
		return fmt.Errorf("%w: restore into a non-empty engine", ErrValidation)
	}
	for i, m := range ms {
		if m.ID != uint64(i) {
			return fmt.Errorf("%w: market id %d at arena index %d", ErrValidation, m.ID, i)
		}
		if err := m.Consistent(); err != nil {
			return err
		}
		e.markets = append(e.markets, m)
	}
	return nil
}

// CreateMarket opens a new market. Only the capability holder may create
// markets. A zero or nil steepness falls back to the engine default.
func (e *Engine) CreateMarket(ctx context.Context, caller, question string, options []string, duration time.Duration, k *uint256.Int) (uint64, error) {
	if err := e.access.Authorize(caller); err != nil {
		return 0, err
	}
	if question == "" {
		return 0, fmt.Errorf("%w: empty question", ErrValidation)
	}
	if len(options) < MinOptions || len(options) > MaxOptions {
		return 0, fmt.Errorf("%w: %d options, want %d-%d", ErrValidation, len(options), MinOptions, MaxOptions)
	}
	for i, label := range options {
		if label == "" {
			return 0, fmt.Errorf("%w: empty label for option %d", ErrValidation, i)
		}
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%w: non-positive duration %s", ErrValidation, duration)
	}
	if k == nil || k.IsZero() {
		k = new(uint256.Int).Set(e.defaultK)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	m := &Market{
		ID:          uint64(len(e.markets)),
		Question:    question,
		Options:     append([]string(nil), options...),
		K:           new(uint256.Int).Set(k),
		Supplies:    make([]*uint256.Int, len(options)),
		TotalSupply: new(uint256.Int),
		Collateral:  new(uint256.Int),
		Deadline:    now.Add(duration),
		CreatedAt:   now,
		Winner:      -1,
	}
	for i := range m.Supplies {
		m.Supplies[i] = new(uint256.Int)
	}
	e.markets = append(e.markets, m)

	e.saveMarket(ctx, m)
	e.events.Publish(Event{
		Type: EventMarketCreated, MarketID: m.ID, Question: question,
		Option: -1, At: now,
	})
	e.log.Info().Uint64("marketID", m.ID).Str("question", question).
		Int("options", len(options)).Msg("market-created")
	return m.ID, nil
}

// Buy spends up to maxSpend collateral on one option, returning the token
// quantity bought and the collateral actually charged. The trade aborts
// atomically if fewer than minTokensOut tokens would come out.
func (e *Engine) Buy(ctx context.Context, caller string, marketID uint64, option int, maxSpend, minTokensOut *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	if !m.TradingOpen(now) {
		return nil, nil, fmt.Errorf("%w: trading closed for market %d (deadline %s, resolved %t)",
			ErrPhase, marketID, m.Deadline.Format(time.RFC3339), m.Resolved)
	}
	if option < 0 || option >= len(m.Options) {
		return nil, nil, fmt.Errorf("%w: option %d out of range [0,%d)", ErrValidation, option, len(m.Options))
	}
	if maxSpend == nil || maxSpend.IsZero() {
		return nil, nil, fmt.Errorf("%w: spend amount must be positive", ErrValidation)
	}
	if minTokensOut == nil {
		minTokensOut = new(uint256.Int)
	}

	tokens, cost, err := bondcurve.TokensForBudget(m.Supplies[option], maxSpend, m.K, m.TotalSupply)
	if err != nil {
		return nil, nil, err
	}
	if tokens.Lt(minTokensOut) {
		return nil, nil, fmt.Errorf("%w: %s tokens out, floor %s",
			ErrSlippage, tokens.Dec(), minTokensOut.Dec())
	}
	if tokens.IsZero() {
		// nothing purchasable inside the budget and no floor demanded
		return new(uint256.Int), new(uint256.Int), nil
	}

	newSupply := new(uint256.Int).Add(m.Supplies[option], tokens)
	newTotal := new(uint256.Int).Add(m.TotalSupply, tokens)
	// defensive: unreachable with correct math, fatal if ever hit
	if !bondcurve.Price(newSupply, newTotal, m.K).Lt(fixedpoint.Scale()) {
		return nil, nil, fmt.Errorf("%w: post-trade price for option %d would reach 1.0", ErrInvariant, option)
	}

	prev := snapshot(m)
	m.Supplies[option] = newSupply
	m.TotalSupply = newTotal
	m.Collateral = new(uint256.Int).Add(m.Collateral, cost)

	// state is settled before the external side effects run; any transfer
	// failure restores it wholesale
	if err := e.collateral.TransferFrom(caller, cost); err != nil {
		prev.restore(m)
		return nil, nil, fmt.Errorf("%w: collateral transfer of %s from %s: %v",
			ErrInsufficientBalance, cost.Dec(), caller, err)
	}
	if err := e.ledger.Mint(caller, m.TokenID(option), tokens); err != nil {
		prev.restore(m)
		if rerr := e.collateral.Transfer(caller, cost); rerr != nil {
			e.log.Error().Err(rerr).Str("account", caller).Msg("refund-failed")
		}
		return nil, nil, fmt.Errorf("market: mint failed: %w", err)
	}

	e.saveMarket(ctx, m)
	e.recordTrade(ctx, Trade{
		MarketID: marketID, Option: option, Account: caller,
		Side: "buy", Tokens: tokens, Cost: cost, At: now,
	})
	e.events.Publish(Event{
		Type: EventTrade, MarketID: marketID, Account: caller, Option: option,
		Side: "buy", Tokens: tokens.Dec(), Amount: cost.Dec(), At: now,
	})
	return tokens, cost, nil
}

// Sell disposes of amount tokens of one option for collateral. The trade
// aborts atomically if the proceeds would fall below minProceeds.
func (e *Engine) Sell(ctx context.Context, caller string, marketID uint64, option int, amount, minProceeds *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !m.TradingOpen(now) {
		return nil, fmt.Errorf("%w: trading closed for market %d (deadline %s, resolved %t)",
			ErrPhase, marketID, m.Deadline.Format(time.RFC3339), m.Resolved)
	}
	if option < 0 || option >= len(m.Options) {
		return nil, fmt.Errorf("%w: option %d out of range [0,%d)", ErrValidation, option, len(m.Options))
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: sell amount must be positive", ErrValidation)
	}
	if minProceeds == nil {
		minProceeds = new(uint256.Int)
	}

	tokenID := m.TokenID(option)
	held, err := e.ledger.BalanceOf(caller, tokenID)
	if err != nil {
		return nil, fmt.Errorf("market: ledger balance: %w", err)
	}
	if held.Lt(amount) {
		return nil, fmt.Errorf("%w: selling %s of token %d, hold %s",
			ErrInsufficientBalance, amount.Dec(), tokenID, held.Dec())
	}
	if amount.Gt(m.Supplies[option]) {
		return nil, fmt.Errorf("%w: selling %s exceeds option supply %s",
			ErrInsufficientBalance, amount.Dec(), m.Supplies[option].Dec())
	}

	proceeds, err := bondcurve.SellReturn(m.Supplies[option], amount, m.K, m.TotalSupply)
	if err != nil {
		return nil, err
	}
	if proceeds.Lt(minProceeds) {
		return nil, fmt.Errorf("%w: %s proceeds, floor %s",
			ErrSlippage, proceeds.Dec(), minProceeds.Dec())
	}
	if proceeds.Gt(m.Collateral) {
		return nil, fmt.Errorf("%w: proceeds %s exceed market collateral %s",
			ErrInvariant, proceeds.Dec(), m.Collateral.Dec())
	}

	prev := snapshot(m)
	m.Supplies[option] = new(uint256.Int).Sub(m.Supplies[option], amount)
	m.TotalSupply = new(uint256.Int).Sub(m.TotalSupply, amount)
	m.Collateral = new(uint256.Int).Sub(m.Collateral, proceeds)

	if err := e.ledger.Burn(caller, tokenID, amount); err != nil {
		prev.restore(m)
		return nil, fmt.Errorf("market: burn failed: %w", err)
	}
	if err := e.collateral.Transfer(caller, proceeds); err != nil {
		prev.restore(m)
		if rerr := e.ledger.Mint(caller, tokenID, amount); rerr != nil {
			e.log.Error().Err(rerr).Str("account", caller).Msg("remint-failed")
		}
		return nil, fmt.Errorf("market: proceeds transfer failed: %w", err)
	}

	e.saveMarket(ctx, m)
	e.recordTrade(ctx, Trade{
		MarketID: marketID, Option: option, Account: caller,
		Side: "sell", Tokens: amount, Cost: proceeds, At: now,
	})
	e.events.Publish(Event{
		Type: EventTrade, MarketID: marketID, Account: caller, Option: option,
		Side: "sell", Tokens: amount.Dec(), Amount: proceeds.Dec(), At: now,
	})
	return proceeds, nil
}

// Resolve declares the winning option, exactly once, at or after the
// deadline. The house fee comes off the collateral here and the payout pool
// is frozen so redemption order cannot change anyone's share.
func (e *Engine) Resolve(ctx context.Context, caller string, marketID uint64, winner int) error {
	if err := e.access.Authorize(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return err
	}
	if m.Resolved {
		return fmt.Errorf("%w: market %d already resolved (winner %d)", ErrPhase, marketID, m.Winner)
	}
	now := e.now()
	if now.Before(m.Deadline) {
		return fmt.Errorf("%w: market %d deadline %s not reached",
			ErrPhase, marketID, m.Deadline.Format(time.RFC3339))
	}
	if winner < 0 || winner >= len(m.Options) {
		return fmt.Errorf("%w: winner %d out of range [0,%d)", ErrValidation, winner, len(m.Options))
	}

	fee, overflow := new(uint256.Int).MulDivOverflow(m.Collateral, uint256.NewInt(HouseFeeBps), uint256.NewInt(bpsDenominator))
	if overflow {
		return fixedpoint.ErrOverflow
	}

	prev := snapshot(m)
	m.Resolved = true
	m.Winner = winner
	m.PayoutPool = new(uint256.Int).Sub(m.Collateral, fee)
	m.WinningSupply = new(uint256.Int).Set(m.Supplies[winner])
	m.Collateral = new(uint256.Int).Sub(m.Collateral, fee)

	if !fee.IsZero() {
		if err := e.collateral.Transfer(e.operator, fee); err != nil {
			prev.restore(m)
			return fmt.Errorf("market: house fee transfer failed: %w", err)
		}
	}

	e.saveMarket(ctx, m)
	e.events.Publish(Event{
		Type: EventMarketResolved, MarketID: marketID, Option: winner,
		Amount: fee.Dec(), At: now,
	})
	e.log.Info().Uint64("marketID", marketID).Int("winner", winner).
		Str("fee", fee.Dec()).Msg("market-resolved")
	return nil
}

// Redeem settles the caller's position in a resolved market: winning tokens
// claim a pro-rata share of the frozen payout pool, and every option token
// the caller still holds is burned. Losing holdings are voided for nothing.
func (e *Engine) Redeem(ctx context.Context, caller string, marketID uint64) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return nil, err
	}
	if !m.Resolved {
		return nil, fmt.Errorf("%w: market %d not resolved", ErrPhase, marketID)
	}

	held := make([]*uint256.Int, len(m.Options))
	any := false
	for i := range m.Options {
		bal, err := e.ledger.BalanceOf(caller, m.TokenID(i))
		if err != nil {
			return nil, fmt.Errorf("market: ledger balance: %w", err)
		}
		held[i] = bal
		if !bal.IsZero() {
			any = true
		}
	}
	if !any {
		return nil, fmt.Errorf("%w: %s holds no tokens in market %d", ErrInsufficientBalance, caller, marketID)
	}

	payout := new(uint256.Int)
	if !m.WinningSupply.IsZero() && !held[m.Winner].IsZero() {
		var overflow bool
		payout, overflow = payout.MulDivOverflow(held[m.Winner], m.PayoutPool, m.WinningSupply)
		if overflow {
			return nil, fixedpoint.ErrOverflow
		}
	}
	if payout.Gt(m.Collateral) {
		return nil, fmt.Errorf("%w: payout %s exceeds market collateral %s",
			ErrInvariant, payout.Dec(), m.Collateral.Dec())
	}

	prev := snapshot(m)
	m.Collateral = new(uint256.Int).Sub(m.Collateral, payout)

	burned := make([]int, 0, len(held))
	undo := func() {
		prev.restore(m)
		for _, i := range burned {
			if rerr := e.ledger.Mint(caller, m.TokenID(i), held[i]); rerr != nil {
				e.log.Error().Err(rerr).Str("account", caller).Msg("remint-failed")
			}
		}
	}
	for i, bal := range held {
		if bal.IsZero() {
			continue
		}
		if err := e.ledger.Burn(caller, m.TokenID(i), bal); err != nil {
			undo()
			return nil, fmt.Errorf("market: burn failed: %w", err)
		}
		burned = append(burned, i)
	}
	if !payout.IsZero() {
		if err := e.collateral.Transfer(caller, payout); err != nil {
			undo()
			return nil, fmt.Errorf("market: payout transfer failed: %w", err)
		}
	}

	e.saveMarket(ctx, m)
	e.events.Publish(Event{
		Type: EventPayout, MarketID: marketID, Account: caller,
		Option: m.Winner, Amount: payout.Dec(), At: e.now(),
	})
	return payout, nil
}

// EmergencyWithdraw drains whatever collateral remains in a market to the
// capability holder. Meant for sweeping unclaimed funds after resolution.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller string, marketID uint64) (*uint256.Int, error) {
	if err := e.access.Authorize(caller); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.market(marketID)
	if err != nil {
		return nil, err
	}
	amount := new(uint256.Int).Set(m.Collateral)
	if amount.IsZero() {
		return amount, nil
	}

	prev := snapshot(m)
	m.Collateral = new(uint256.Int)
	if err := e.collateral.Transfer(caller, amount); err != nil {
		prev.restore(m)
		return nil, fmt.Errorf("market: withdrawal transfer failed: %w", err)
	}

	e.saveMarket(ctx, m)
	e.events.Publish(Event{
		Type: EventWithdrawal, MarketID: marketID, Account: caller,
		Option: -1, Amount: amount.Dec(), At: e.now(),
	})
	return amount, nil
}

// GetMarket returns a copy of one market.
func (e *Engine) GetMarket(marketID uint64) (*Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(marketID)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Markets returns copies of every market, in id order.
func (e *Engine) Markets() []*Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Market, len(e.markets))
	for i, m := range e.markets {
		out[i] = m.Clone()
	}
	return out
}

// Prices returns the raw curve price of every option.
func (e *Engine) Prices(marketID uint64) ([]*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(marketID)
	if err != nil {
		return nil, err
	}
	return bondcurve.AllPrices(m.Supplies, m.TotalSupply, m.K), nil
}

// NormalizedPrices returns the per-option probabilities.
func (e *Engine) NormalizedPrices(marketID uint64) ([]*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.market(marketID)
	if err != nil {
		return nil, err
	}
	return bondcurve.NormalizedPrices(m.Supplies, m.TotalSupply), nil
}

func (e *Engine) market(id uint64) (*Market, error) {
	if id >= uint64(len(e.markets)) {
		return nil, fmt.Errorf("%w: market %d", ErrNotFound, id)
	}
	return e.markets[id], nil
}

func (e *Engine) saveMarket(ctx context.Context, m *Market) {
	if e.persist == nil {
		return
	}
	if err := e.persist.SaveMarket(ctx, m); err != nil {
		e.log.Error().Err(err).Uint64("marketID", m.ID).Msg("save-market-failed")
	}
}

func (e *Engine) recordTrade(ctx context.Context, t Trade) {
	if e.persist == nil {
		return
	}
	if err := e.persist.RecordTrade(ctx, t); err != nil {
		e.log.Error().Err(err).Uint64("marketID", t.MarketID).Msg("record-trade-failed")
	}
}

// stateSnapshot captures the mutable numbers of one market so a failed
// external transfer can roll the whole operation back.
type stateSnapshot struct {
	supplies      []*uint256.Int
	totalSupply   *uint256.Int
	collateral    *uint256.Int
	resolved      bool
	winner        int
	payoutPool    *uint256.Int
	winningSupply *uint256.Int
}

func snapshot(m *Market) stateSnapshot {
	s := stateSnapshot{
		supplies:      make([]*uint256.Int, len(m.Supplies)),
		totalSupply:   new(uint256.Int).Set(m.TotalSupply),
		collateral:    new(uint256.Int).Set(m.Collateral),
		resolved:      m.Resolved,
		winner:        m.Winner,
		payoutPool:    m.PayoutPool,
		winningSupply: m.WinningSupply,
	}
	for i, sup := range m.Supplies {
		s.supplies[i] = new(uint256.Int).Set(sup)
	}
	return s
}

func (s stateSnapshot) restore(m *Market) {
	copy(m.Supplies, s.supplies)
	m.TotalSupply = s.totalSupply
	m.Collateral = s.collateral
	m.Resolved = s.resolved
	m.Winner = s.winner
	m.PayoutPool = s.payoutPool
	m.WinningSupply = s.winningSupply
}
