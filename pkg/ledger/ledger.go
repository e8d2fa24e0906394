// package ledger provides in-memory reference implementations of the
// engine's Ledger and CollateralAsset collaborators, used by tests and by
// deployments that do not need balances to survive a restart.

package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// MemLedger is a mutex-guarded multi-token balance book.
type MemLedger struct {
	mu       sync.RWMutex
	balances map[string]map[uint64]*uint256.Int
	supply   map[uint64]*uint256.Int
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		balances: make(map[string]map[uint64]*uint256.Int),
		supply:   make(map[uint64]*uint256.Int),
	}
}

func (l *MemLedger) Mint(account string, tokenID uint64, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.balances[account]
	if acct == nil {
		acct = make(map[uint64]*uint256.Int)
		l.balances[account] = acct
	}
	bal := acct[tokenID]
	if bal == nil {
		bal = new(uint256.Int)
		acct[tokenID] = bal
	}
	bal.Add(bal, amount)

	total := l.supply[tokenID]
	if total == nil {
		total = new(uint256.Int)
		l.supply[tokenID] = total
	}
	total.Add(total, amount)
	return nil
}

func (l *MemLedger) Burn(account string, tokenID uint64, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balances[account][tokenID]
	if bal == nil || bal.Lt(amount) {
		return fmt.Errorf("ledger: burn %s of token %d from %s exceeds balance", amount.Dec(), tokenID, account)
	}
	bal.Sub(bal, amount)
	l.supply[tokenID].Sub(l.supply[tokenID], amount)
	return nil
}

func (l *MemLedger) BalanceOf(account string, tokenID uint64) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bal := l.balances[account][tokenID]
	if bal == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(bal), nil
}

func (l *MemLedger) TotalSupply(tokenID uint64) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := l.supply[tokenID]
	if total == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(total), nil
}

// MemCollateral is an in-memory collateral asset: trader balances plus the
// engine's reserve.
type MemCollateral struct {
	mu       sync.Mutex
	accounts map[string]*uint256.Int
	reserve  *uint256.Int
}

func NewMemCollateral() *MemCollateral {
	return &MemCollateral{
		accounts: make(map[string]*uint256.Int),
		reserve:  new(uint256.Int),
	}
}

// Deposit credits an account out of thin air. Faucet for tests and demos.
func (c *MemCollateral) Deposit(account string, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(account, amount)
}

func (c *MemCollateral) TransferFrom(payer string, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal := c.accounts[payer]
	if bal == nil || bal.Lt(amount) {
		return fmt.Errorf("collateral: %s cannot pay %s", payer, amount.Dec())
	}
	bal.Sub(bal, amount)
	c.reserve.Add(c.reserve, amount)
	return nil
}

func (c *MemCollateral) Transfer(recipient string, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserve.Lt(amount) {
		return fmt.Errorf("collateral: reserve cannot pay %s", amount.Dec())
	}
	c.reserve.Sub(c.reserve, amount)
	c.credit(recipient, amount)
	return nil
}

func (c *MemCollateral) BalanceOf(account string) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal := c.accounts[account]
	if bal == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(bal)
}

// Reserve returns the engine-held total.
func (c *MemCollateral) Reserve() *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(uint256.Int).Set(c.reserve)
}

func (c *MemCollateral) credit(account string, amount *uint256.Int) {
	bal := c.accounts[account]
	if bal == nil {
		bal = new(uint256.Int)
		c.accounts[account] = bal
	}
	bal.Add(bal, amount)
}
