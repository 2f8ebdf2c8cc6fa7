package ledger

import (
	"fmt"
)

// FeePot accumulates collected protocol fees per collateral asset. Credited
// once per lottery at resolution, drained by the admin withdraw operation.
type FeePot struct {
	collected map[string]int64
}

func NewFeePot() *FeePot {
	return &FeePot{
		collected: make(map[string]int64),
	}
}

func (f *FeePot) Credit(asset string, amount int64) {
	if amount <= 0 {
		return
	}
	f.collected[asset] += amount
}

func (f *FeePot) Collected(asset string) int64 {
	return f.collected[asset]
}

// Withdraw removes amount from the pot; fails rather than going negative.
func (f *FeePot) Withdraw(asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %d", amount)
	}
	if f.collected[asset] < amount {
		return fmt.Errorf("fee withdrawal %d exceeds collected %d for %s",
			amount, f.collected[asset], asset)
	}
	f.collected[asset] -= amount
	return nil
}

// Snapshot returns a copy of all collected totals.
func (f *FeePot) Snapshot() map[string]int64 {
	cp := make(map[string]int64, len(f.collected))
	for k, v := range f.collected {
		cp[k] = v
	}
	return cp
}

// Restore replaces the pot contents from a snapshot.
func (f *FeePot) Restore(collected map[string]int64) {
	f.collected = make(map[string]int64, len(collected))
	for k, v := range collected {
		f.collected[k] = v
	}
}
