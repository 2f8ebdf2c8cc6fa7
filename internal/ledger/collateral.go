package ledger

import (
	"errors"
	"fmt"
)

// ErrTransferInvariant is returned when a transfer's observed balance delta
// does not match the requested amount — a fee-on-transfer or rebasing asset,
// which this engine refuses to account for.
var ErrTransferInvariant = errors.New("transfer amount does not match balance delta")

// ErrInsufficientBalance is returned by the memory implementation when a
// transfer exceeds the source balance.
var ErrInsufficientBalance = errors.New("insufficient collateral balance")

// Collateral is the fungible-asset collaborator: balances and transfers in
// the payment asset. The engine trusts transfers to move exactly the
// requested amount and verifies that via CheckedTransferFrom on
// locally-sourced purchases.
type Collateral interface {
	Transfer(asset, from, to string, amount int64) error
	TransferFrom(asset, owner, to string, amount int64) error
	BalanceOf(asset, account string) int64
}

// CheckedTransferFrom moves amount from owner to recipient and verifies the
// recipient's balance grew by exactly that amount.
func CheckedTransferFrom(c Collateral, asset, owner, to string, amount int64) error {
	before := c.BalanceOf(asset, to)
	if err := c.TransferFrom(asset, owner, to, amount); err != nil {
		return err
	}
	if delta := c.BalanceOf(asset, to) - before; delta != amount {
		return fmt.Errorf("%w: requested %d, observed %d", ErrTransferInvariant, amount, delta)
	}
	return nil
}

// BalanceKey indexes per-asset account balances.
type BalanceKey struct {
	Asset   string
	Account string
}

// Depositor is the deposit boundary of a collateral implementation: new
// balance entering the system from outside. Satisfied by MemoryCollateral.
type Depositor interface {
	Credit(asset, account string, amount int64)
}

// MemoryCollateral is the in-process Collateral implementation. Not safe for
// concurrent use — the engine serializes all access.
type MemoryCollateral struct {
	balances map[BalanceKey]int64
}

func NewMemoryCollateral() *MemoryCollateral {
	return &MemoryCollateral{
		balances: make(map[BalanceKey]int64),
	}
}

// Credit mints balance out of thin air; deposit boundary for tests and
// in-process deployments.
func (m *MemoryCollateral) Credit(asset, account string, amount int64) {
	m.balances[BalanceKey{asset, account}] += amount
}

func (m *MemoryCollateral) Transfer(asset, from, to string, amount int64) error {
	return m.move(asset, from, to, amount)
}

func (m *MemoryCollateral) TransferFrom(asset, owner, to string, amount int64) error {
	return m.move(asset, owner, to, amount)
}

func (m *MemoryCollateral) move(asset, from, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative transfer amount %d", amount)
	}
	fromKey := BalanceKey{asset, from}
	if m.balances[fromKey] < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d",
			ErrInsufficientBalance, from, m.balances[fromKey], asset, amount)
	}
	m.balances[fromKey] -= amount
	m.balances[BalanceKey{asset, to}] += amount
	return nil
}

func (m *MemoryCollateral) BalanceOf(asset, account string) int64 {
	return m.balances[BalanceKey{asset, account}]
}

// Snapshot returns a copy of all balances.
func (m *MemoryCollateral) Snapshot() map[BalanceKey]int64 {
	cp := make(map[BalanceKey]int64, len(m.balances))
	for k, v := range m.balances {
		cp[k] = v
	}
	return cp
}

// Restore replaces all balances.
func (m *MemoryCollateral) Restore(balances map[BalanceKey]int64) {
	m.balances = make(map[BalanceKey]int64, len(balances))
	for k, v := range balances {
		m.balances[k] = v
	}
}
