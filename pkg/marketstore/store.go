// package marketstore persists engine state in sqlite: market snapshots, a
// trade journal, and the account book backing the Ledger and CollateralAsset
// collaborators.

package marketstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/lithammer/shortuuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/curvemarkets/curvemarkets/pkg/market"
)

type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(dbName string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", dbName)
	if err != nil {
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func parseAmount(v string) (*uint256.Int, error) {
	if v == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(v)
}

// SaveMarket upserts one market snapshot and its per-option supplies.
func (s *SqliteStore) SaveMarket(ctx context.Context, m *market.Market) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var payoutPool, winningSupply sql.NullString
	if m.PayoutPool != nil {
		payoutPool = sql.NullString{String: m.PayoutPool.Dec(), Valid: true}
	}
	if m.WinningSupply != nil {
		winningSupply = sql.NullString{String: m.WinningSupply.Dec(), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO markets (id, question, k, total_supply, collateral,
			deadline, created_at, resolved, winner, payout_pool, winning_supply)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_supply = excluded.total_supply,
			collateral = excluded.collateral,
			resolved = excluded.resolved,
			winner = excluded.winner,
			payout_pool = excluded.payout_pool,
			winning_supply = excluded.winning_supply`,
		m.ID, m.Question, m.K.Dec(), m.TotalSupply.Dec(), m.Collateral.Dec(),
		m.Deadline.Format(time.RFC3339), m.CreatedAt.Format(time.RFC3339),
		m.Resolved, m.Winner, payoutPool, winningSupply)
	if err != nil {
		return err
	}

	for i, supply := range m.Supplies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO market_options (market_id, idx, label, supply)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (market_id, idx) DO UPDATE SET supply = excluded.supply`,
			m.ID, i, m.Options[i], supply.Dec())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadMarkets reads back every market, ordered by id, ready for
// Engine.Restore.
func (s *SqliteStore) LoadMarkets(ctx context.Context) ([]*market.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, k, total_supply, collateral, deadline,
			created_at, resolved, winner, payout_pool, winning_supply
		FROM markets
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := []*market.Market{}
	for rows.Next() {
		var (
			m                         market.Market
			k, totalSupply, coll      string
			deadline, created         string
			payoutPool, winningSupply sql.NullString
		)
		err = rows.Scan(&m.ID, &m.Question, &k, &totalSupply, &coll,
			&deadline, &created, &m.Resolved, &m.Winner, &payoutPool, &winningSupply)
		if err != nil {
			return nil, err
		}
		if m.K, err = parseAmount(k); err != nil {
			return nil, err
		}
		if m.TotalSupply, err = parseAmount(totalSupply); err != nil {
			return nil, err
		}
		if m.Collateral, err = parseAmount(coll); err != nil {
			return nil, err
		}
		if m.Deadline, err = time.Parse(time.RFC3339, deadline); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		if payoutPool.Valid {
			if m.PayoutPool, err = parseAmount(payoutPool.String); err != nil {
				return nil, err
			}
		}
		if winningSupply.Valid {
			if m.WinningSupply, err = parseAmount(winningSupply.String); err != nil {
				return nil, err
			}
		}
		markets = append(markets, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range markets {
		if err := s.loadOptions(ctx, m); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

func (s *SqliteStore) loadOptions(ctx context.Context, m *market.Market) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, supply FROM market_options
		WHERE market_id = ?
		ORDER BY idx`, m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var label, supply string
		if err := rows.Scan(&label, &supply); err != nil {
			return err
		}
		amt, err := parseAmount(supply)
		if err != nil {
			return err
		}
		m.Options = append(m.Options, label)
		m.Supplies = append(m.Supplies, amt)
	}
	return rows.Err()
}

// RecordTrade appends one executed trade to the journal.
func (s *SqliteStore) RecordTrade(ctx context.Context, t market.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (uuid, market_id, option_idx, account, side, tokens, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		shortuuid.New(), t.MarketID, t.Option, t.Account, t.Side,
		t.Tokens.Dec(), t.Cost.Dec(), t.At.Format(time.RFC3339))
	return err
}

// TradeRecord is one journal row as handed to API consumers.
type TradeRecord struct {
	ID       string `json:"id"`
	MarketID uint64 `json:"market_id"`
	Option   int    `json:"option"`
	Account  string `json:"account"`
	Side     string `json:"side"`
	Tokens   string `json:"tokens"`
	Cost     string `json:"cost"`
	Date     string `json:"date"`
}

// ListTrades returns journal rows filtered by market (pass a negative id to
// skip), account, and a lower bound on the trade date.
func (s *SqliteStore) ListTrades(ctx context.Context, marketID int64, account string,
	sinceDate time.Time, limit int) ([]TradeRecord, error) {

	wheres := []string{`created_at >= ?`}
	wheresVars := []any{sinceDate.Format(time.RFC3339)}

	if marketID >= 0 {
		wheres = append(wheres, `market_id = ?`)
		wheresVars = append(wheresVars, marketID)
	}
	if account != "" {
		wheres = append(wheres, `account = ?`)
		wheresVars = append(wheresVars, account)
	}

	whereRendered := strings.Join(wheres, " AND ")
	limitRendered := ""
	if limit > 0 {
		limitRendered = fmt.Sprintf("LIMIT %d", limit)
	}
	fullQuery := fmt.Sprintf(`
		SELECT uuid, market_id, option_idx, account, side, tokens, cost, created_at
		FROM trades
		WHERE %s
		ORDER BY created_at DESC
		%s
	`, whereRendered, limitRendered)
	log.Debug().Str("fullQuery", fullQuery).Str("storeMethod", "ListTrades").Msg("executing-query")

	rows, err := s.db.QueryContext(ctx, fullQuery, wheresVars...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []TradeRecord{}
	for rows.Next() {
		var t TradeRecord
		err = rows.Scan(&t.ID, &t.MarketID, &t.Option, &t.Account, &t.Side,
			&t.Tokens, &t.Cost, &t.Date)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
