package ledger_test

import (
	"errors"
	"testing"

	"LottoLedger/internal/ledger"
)

// ============================================================================
// Test: MemoryTicketLedger
// ============================================================================

func TestTickets_MintBurnBalance(t *testing.T) {
	tl := ledger.NewMemoryTicketLedger()

	if err := tl.Mint("alice", 1, 500, 3); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tl.Mint("alice", 1, 500, 2); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := tl.Balance("alice", 1, 500); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}

	// Positions are keyed by (account, lottery, bucket).
	if got := tl.Balance("alice", 2, 500); got != 0 {
		t.Errorf("other lottery balance = %d, want 0", got)
	}
	if got := tl.Balance("alice", 1, 1000); got != 0 {
		t.Errorf("other bucket balance = %d, want 0", got)
	}

	if err := tl.Burn("alice", 1, 500, 2); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := tl.Balance("alice", 1, 500); got != 3 {
		t.Errorf("balance after burn = %d, want 3", got)
	}
	if err := tl.Burn("alice", 1, 500, 3); err != nil {
		t.Fatalf("burn to zero: %v", err)
	}
	if got := tl.Balance("alice", 1, 500); got != 0 {
		t.Errorf("balance after full burn = %d, want 0", got)
	}
}

func TestTickets_BurnExceedsPosition(t *testing.T) {
	tl := ledger.NewMemoryTicketLedger()
	if err := tl.Mint("alice", 1, 0, 2); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tl.Burn("alice", 1, 0, 3); err == nil {
		t.Fatal("expected over-burn to fail")
	}
	if got := tl.Balance("alice", 1, 0); got != 2 {
		t.Errorf("balance after failed burn = %d, want 2", got)
	}
}

func TestTickets_NonPositiveCounts(t *testing.T) {
	tl := ledger.NewMemoryTicketLedger()
	if err := tl.Mint("alice", 1, 0, 0); err == nil {
		t.Error("zero mint accepted")
	}
	if err := tl.Mint("alice", 1, 0, -1); err == nil {
		t.Error("negative mint accepted")
	}
	if err := tl.Burn("alice", 1, 0, 0); err == nil {
		t.Error("zero burn accepted")
	}
}

func TestTickets_SnapshotRestore(t *testing.T) {
	tl := ledger.NewMemoryTicketLedger()
	tl.Mint("alice", 1, 500, 3)
	tl.Mint("bob", 2, 1000, 7)

	snap := tl.Snapshot()

	fresh := ledger.NewMemoryTicketLedger()
	fresh.Restore(snap)
	if got := fresh.Balance("alice", 1, 500); got != 3 {
		t.Errorf("restored alice = %d, want 3", got)
	}
	if got := fresh.Balance("bob", 2, 1000); got != 7 {
		t.Errorf("restored bob = %d, want 7", got)
	}

	// The snapshot is a copy, not a view.
	tl.Burn("alice", 1, 500, 3)
	if got := fresh.Balance("alice", 1, 500); got != 3 {
		t.Errorf("restored ledger tracked source mutation: %d", got)
	}
}

// ============================================================================
// Test: MemoryCollateral
// ============================================================================

func TestCollateral_CreditAndTransfer(t *testing.T) {
	c := ledger.NewMemoryCollateral()
	c.Credit("USDC", "alice", 1_000)

	if err := c.Transfer("USDC", "alice", "pool", 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := c.BalanceOf("USDC", "alice"); got != 600 {
		t.Errorf("alice = %d, want 600", got)
	}
	if got := c.BalanceOf("USDC", "pool"); got != 400 {
		t.Errorf("pool = %d, want 400", got)
	}

	// Balances are per asset.
	if got := c.BalanceOf("DAI", "alice"); got != 0 {
		t.Errorf("DAI balance = %d, want 0", got)
	}
}

func TestCollateral_InsufficientBalance(t *testing.T) {
	c := ledger.NewMemoryCollateral()
	c.Credit("USDC", "alice", 100)

	err := c.Transfer("USDC", "alice", "pool", 101)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := c.BalanceOf("USDC", "alice"); got != 100 {
		t.Errorf("alice = %d after failed transfer, want 100", got)
	}
}

func TestCollateral_NegativeAmount(t *testing.T) {
	c := ledger.NewMemoryCollateral()
	if err := c.Transfer("USDC", "alice", "pool", -5); err == nil {
		t.Fatal("negative transfer accepted")
	}
}

func TestCollateral_SnapshotRestore(t *testing.T) {
	c := ledger.NewMemoryCollateral()
	c.Credit("USDC", "alice", 250)
	c.Credit("DAI", "bob", 80)

	fresh := ledger.NewMemoryCollateral()
	fresh.Restore(c.Snapshot())
	if got := fresh.BalanceOf("USDC", "alice"); got != 250 {
		t.Errorf("restored alice = %d, want 250", got)
	}
	if got := fresh.BalanceOf("DAI", "bob"); got != 80 {
		t.Errorf("restored bob = %d, want 80", got)
	}
}

// ============================================================================
// Test: CheckedTransferFrom
// ============================================================================

// skimmingCollateral delivers one unit less than requested, like a
// fee-on-transfer token.
type skimmingCollateral struct {
	*ledger.MemoryCollateral
}

func (s *skimmingCollateral) TransferFrom(asset, owner, to string, amount int64) error {
	if err := s.MemoryCollateral.TransferFrom(asset, owner, to, amount); err != nil {
		return err
	}
	return s.MemoryCollateral.Transfer(asset, to, "skim", 1)
}

func TestCheckedTransferFrom(t *testing.T) {
	c := ledger.NewMemoryCollateral()
	c.Credit("USDC", "alice", 500)
	if err := ledger.CheckedTransferFrom(c, "USDC", "alice", "pool", 200); err != nil {
		t.Fatalf("checked transfer: %v", err)
	}
	if got := c.BalanceOf("USDC", "pool"); got != 200 {
		t.Errorf("pool = %d, want 200", got)
	}
}

func TestCheckedTransferFrom_DeltaMismatch(t *testing.T) {
	inner := ledger.NewMemoryCollateral()
	inner.Credit("USDC", "alice", 500)
	c := &skimmingCollateral{MemoryCollateral: inner}

	err := ledger.CheckedTransferFrom(c, "USDC", "alice", "pool", 200)
	if !errors.Is(err, ledger.ErrTransferInvariant) {
		t.Errorf("got %v, want ErrTransferInvariant", err)
	}
}

// ============================================================================
// Test: FeePot
// ============================================================================

func TestFeePot(t *testing.T) {
	f := ledger.NewFeePot()
	f.Credit("USDC", 100)
	f.Credit("USDC", 50)
	f.Credit("USDC", 0)  // ignored
	f.Credit("USDC", -7) // ignored

	if got := f.Collected("USDC"); got != 150 {
		t.Errorf("collected = %d, want 150", got)
	}

	if err := f.Withdraw("USDC", 120); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.Collected("USDC"); got != 30 {
		t.Errorf("collected after withdraw = %d, want 30", got)
	}

	if err := f.Withdraw("USDC", 31); err == nil {
		t.Error("overdraw accepted")
	}
	if err := f.Withdraw("USDC", 0); err == nil {
		t.Error("zero withdraw accepted")
	}
	if err := f.Withdraw("DAI", 1); err == nil {
		t.Error("withdraw from empty asset accepted")
	}
}

func TestFeePot_SnapshotRestore(t *testing.T) {
	f := ledger.NewFeePot()
	f.Credit("USDC", 42)

	fresh := ledger.NewFeePot()
	fresh.Restore(f.Snapshot())
	if got := fresh.Collected("USDC"); got != 42 {
		t.Errorf("restored = %d, want 42", got)
	}
}
