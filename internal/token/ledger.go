// Package token provides an in-memory token balance ledger. Pools and test
// actors settle against it; it stands in for the external asset layer.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance reports a transfer exceeding the sender's
	// balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrOverflow reports a balance that would exceed 2^256-1.
	ErrOverflow = errors.New("token: balance overflow")
)

// Ledger maps token -> holder -> balance. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*uint256.Int)}
}

// BalanceOf returns a copy of holder's balance of token, zero if unknown.
func (l *Ledger) BalanceOf(token, holder common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holders, ok := l.balances[token]; ok {
		if balance, ok := holders[holder]; ok {
			return new(uint256.Int).Set(balance)
		}
	}
	return new(uint256.Int)
}

// Mint credits amount of token to holder out of thin air.
func (l *Ledger) Mint(token, holder common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balance(token, holder)
	next, carry := new(uint256.Int).AddOverflow(balance, amount)
	if carry {
		return ErrOverflow
	}
	balance.Set(next)
	return nil
}

// Transfer moves amount of token from one holder to another.
func (l *Ledger) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance := l.balance(token, from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), token.Hex(), amount.Dec())
	}
	toBalance := l.balance(token, to)
	next, carry := new(uint256.Int).AddOverflow(toBalance, amount)
	if carry {
		return ErrOverflow
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Set(next)
	return nil
}

// balance returns the live balance entry, creating it if needed. Caller
// holds the lock.
func (l *Ledger) balance(token, holder common.Address) *uint256.Int {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		l.balances[token] = holders
	}
	entry, ok := holders[holder]
	if !ok {
		entry = new(uint256.Int)
		holders[holder] = entry
	}
	return entry
}
