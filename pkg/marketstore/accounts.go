package marketstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/curvemarkets/curvemarkets/pkg/market"
)

// The store doubles as the engine's Ledger and CollateralAsset: option-token
// holdings live in positions/token_supplies, currency in accounts plus a
// single engine reserve row. The engine serializes its calls, so each method
// only needs its own transaction for crash consistency.

var (
	_ market.Ledger          = (*SqliteStore)(nil)
	_ market.CollateralAsset = (*SqliteStore)(nil)
)

func (s *SqliteStore) Mint(account string, tokenID uint64, amount *uint256.Int) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bal, err := positionBalance(ctx, tx, account, tokenID)
	if err != nil {
		return err
	}
	supply, err := tokenSupply(ctx, tx, tokenID)
	if err != nil {
		return err
	}
	if err := setPosition(ctx, tx, account, tokenID, bal.Add(bal, amount)); err != nil {
		return err
	}
	if err := setTokenSupply(ctx, tx, tokenID, supply.Add(supply, amount)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Burn(account string, tokenID uint64, amount *uint256.Int) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bal, err := positionBalance(ctx, tx, account, tokenID)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("marketstore: burn %s of token %d from %s exceeds balance %s",
			amount.Dec(), tokenID, account, bal.Dec())
	}
	supply, err := tokenSupply(ctx, tx, tokenID)
	if err != nil {
		return err
	}
	if err := setPosition(ctx, tx, account, tokenID, bal.Sub(bal, amount)); err != nil {
		return err
	}
	if err := setTokenSupply(ctx, tx, tokenID, supply.Sub(supply, amount)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) BalanceOf(account string, tokenID uint64) (*uint256.Int, error) {
	var v string
	err := s.db.QueryRowContext(context.Background(), `
		SELECT amount FROM positions WHERE account = ? AND token_id = ?`,
		account, tokenID).Scan(&v)
	if err == sql.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func (s *SqliteStore) TotalSupply(tokenID uint64) (*uint256.Int, error) {
	var v string
	err := s.db.QueryRowContext(context.Background(), `
		SELECT supply FROM token_supplies WHERE token_id = ?`, tokenID).Scan(&v)
	if err == sql.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func (s *SqliteStore) TransferFrom(payer string, amount *uint256.Int) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bal, err := accountCollateral(ctx, tx, payer)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("marketstore: %s cannot pay %s, holds %s", payer, amount.Dec(), bal.Dec())
	}
	reserve, err := reserveAmount(ctx, tx)
	if err != nil {
		return err
	}
	if err := setAccountCollateral(ctx, tx, payer, bal.Sub(bal, amount)); err != nil {
		return err
	}
	if err := setReserve(ctx, tx, reserve.Add(reserve, amount)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Transfer(recipient string, amount *uint256.Int) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	reserve, err := reserveAmount(ctx, tx)
	if err != nil {
		return err
	}
	if reserve.Lt(amount) {
		return fmt.Errorf("marketstore: reserve cannot pay %s, holds %s", amount.Dec(), reserve.Dec())
	}
	bal, err := accountCollateral(ctx, tx, recipient)
	if err != nil {
		return err
	}
	if err := setReserve(ctx, tx, reserve.Sub(reserve, amount)); err != nil {
		return err
	}
	if err := setAccountCollateral(ctx, tx, recipient, bal.Add(bal, amount)); err != nil {
		return err
	}
	return tx.Commit()
}

// Deposit credits collateral to an account. This is the operator's on-ramp;
// nothing inside the engine calls it.
func (s *SqliteStore) Deposit(ctx context.Context, account string, amount *uint256.Int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bal, err := accountCollateral(ctx, tx, account)
	if err != nil {
		return err
	}
	if err := setAccountCollateral(ctx, tx, account, bal.Add(bal, amount)); err != nil {
		return err
	}
	return tx.Commit()
}

// CollateralBalance reads an account's currency balance.
func (s *SqliteStore) CollateralBalance(ctx context.Context, account string) (*uint256.Int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT collateral FROM accounts WHERE account = ?`, account).Scan(&v)
	if err == sql.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func positionBalance(ctx context.Context, tx *sql.Tx, account string, tokenID uint64) (*uint256.Int, error) {
	var v string
	err := tx.QueryRowContext(ctx, `
		SELECT amount FROM positions WHERE account = ? AND token_id = ?`,
		account, tokenID).Scan(&v)
	if err == sql.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func setPosition(ctx context.Context, tx *sql.Tx, account string, tokenID uint64, amount *uint256.Int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions (account, token_id, amount)
		VALUES (?, ?, ?)
		ON CONFLICT (account, token_id) DO UPDATE SET amount = excluded.amount`,
		account, tokenID, amount.Dec())
	return err
}

func tokenSupply(ctx context.Context, tx *sql.Tx, tokenID uint64) (*uint256.Int, error) {
	var v string
	err := tx.QueryRowContext(ctx, `
		SELECT supply FROM token_supplies WHERE token_id = ?`, tokenID).Scan(&v)
	if err == sql.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func setTokenSupply(ctx context.Context, tx *sql.Tx, tokenID uint64, supply *uint256.Int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO token_supplies (token_id, supply)
		VALUES (?, ?)
		ON CONFLICT (token_id) DO UPDATE SET supply = excluded.supply`,
		tokenID, supply.Dec())
	return err
}

func accountCollateral(ctx context.Context, tx *sql.Tx, account string) (*uint256.Int, error) {
	var v string
	err := tx.QueryRowContext(ctx, `
		SELECT collateral FROM accounts WHERE account = ?`, account).Scan(&v)
	if err == sql.ErrNoRows {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func setAccountCollateral(ctx context.Context, tx *sql.Tx, account string, amount *uint256.Int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (account, collateral)
		VALUES (?, ?)
		ON CONFLICT (account) DO UPDATE SET collateral = excluded.collateral`,
		account, amount.Dec())
	return err
}

func reserveAmount(ctx context.Context, tx *sql.Tx) (*uint256.Int, error) {
	var v string
	if err := tx.QueryRowContext(ctx, `SELECT amount FROM reserve WHERE id = 1`).Scan(&v); err != nil {
		return nil, err
	}
	return parseAmount(v)
}

func setReserve(ctx context.Context, tx *sql.Tx, amount *uint256.Int) error {
	_, err := tx.ExecContext(ctx, `UPDATE reserve SET amount = ? WHERE id = 1`, amount.Dec())
	return err
}
