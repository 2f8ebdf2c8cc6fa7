package lottery_test

import (
	"errors"
	"testing"
	"time"

	"LottoLedger/internal/ledger"
	"LottoLedger/internal/lottery"
)

// payoutRecorder captures sink calls; fail makes the sink reject payouts.
type payoutRecorder struct {
	paid map[string]int64
	fail error
}

func newPayoutRecorder() *payoutRecorder {
	return &payoutRecorder{paid: make(map[string]int64)}
}

func (p *payoutRecorder) sink(asset, account string, amount int64) error {
	if p.fail != nil {
		return p.fail
	}
	p.paid[account] += amount
	return nil
}

// claimFixture: one matured lottery resolved at winning bucket 100_000 with
// the given per-buyer ticket counts minted and sales recorded, zero fee rate.
func claimFixture(t *testing.T, proceeds int64, holdings map[string]int64) (*lottery.ClaimProcessor, *ledger.MemoryTicketLedger, uint64, time.Time) {
	t.Helper()
	s := lottery.NewStore()
	tickets := ledger.NewMemoryTicketLedger()
	r := lottery.NewResolver(s, &staticFeed{price: 123_456}, newFeeRecorder(), 0)
	cp := lottery.NewClaimProcessor(s, r, tickets)

	p := validParams()
	p.BucketSize = 50_000
	id, err := s.Create(p, testEpoch)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const winning = int64(100_000)
	var sold int64
	for buyer, q := range holdings {
		if err := tickets.Mint(buyer, id, winning, q); err != nil {
			t.Fatalf("mint: %v", err)
		}
		sold += q
	}
	if sold > 0 {
		if err := s.RecordSale(id, winning, sold, proceeds); err != nil {
			t.Fatalf("record sale: %v", err)
		}
	} else if proceeds > 0 {
		if err := s.AddProceeds(id, proceeds); err != nil {
			t.Fatalf("add proceeds: %v", err)
		}
	}
	return cp, tickets, id, testEpoch.Add(72 * time.Hour)
}

// ============================================================================
// Test: ClaimFor
// ============================================================================

func TestClaimFor_ProRata(t *testing.T) {
	cp, tickets, id, now := claimFixture(t, 1_000, map[string]int64{"alice": 3, "bob": 1})
	rec := newPayoutRecorder()

	paid, held, err := cp.ClaimFor(id, "alice", now, rec.sink)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if held != 3 {
		t.Errorf("held = %d, want 3", held)
	}
	// 3 * 1000 / 4 = 750
	if paid != 750 {
		t.Errorf("paid = %d, want 750", paid)
	}
	if rec.paid["alice"] != 750 {
		t.Errorf("sink received %d, want 750", rec.paid["alice"])
	}
	if got := tickets.Balance("alice", id, 100_000); got != 0 {
		t.Errorf("position after claim = %d, want 0", got)
	}
}

func TestClaimFor_TruncationNeverOverpays(t *testing.T) {
	// 1000 over 3 tickets: 333 each, 1 unit of dust stays in the pool.
	cp, _, id, now := claimFixture(t, 1_000, map[string]int64{"a": 1, "b": 1, "c": 1})
	rec := newPayoutRecorder()

	var total int64
	for _, buyer := range []string{"a", "b", "c"} {
		paid, _, err := cp.ClaimFor(id, buyer, now, rec.sink)
		if err != nil {
			t.Fatalf("claim %s: %v", buyer, err)
		}
		total += paid
	}
	if total > 1_000 {
		t.Errorf("aggregate payouts %d exceed pool 1000", total)
	}
	if total != 999 {
		t.Errorf("aggregate payouts = %d, want 999", total)
	}
}

func TestClaimFor_SecondClaimPaysNothing(t *testing.T) {
	cp, _, id, now := claimFixture(t, 1_000, map[string]int64{"alice": 2})
	rec := newPayoutRecorder()

	if _, _, err := cp.ClaimFor(id, "alice", now, rec.sink); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	paid, held, err := cp.ClaimFor(id, "alice", now, rec.sink)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if paid != 0 || held != 0 {
		t.Errorf("second claim paid=%d held=%d, want 0,0", paid, held)
	}
	if rec.paid["alice"] != 1_000 {
		t.Errorf("total paid = %d, want 1000", rec.paid["alice"])
	}
}

func TestClaimFor_NoPosition(t *testing.T) {
	cp, _, id, now := claimFixture(t, 1_000, map[string]int64{"alice": 2})
	rec := newPayoutRecorder()

	paid, held, err := cp.ClaimFor(id, "mallory", now, rec.sink)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid != 0 || held != 0 {
		t.Errorf("paid=%d held=%d, want 0,0", paid, held)
	}
}

func TestClaimFor_BeforeMaturity(t *testing.T) {
	cp, _, id, _ := claimFixture(t, 1_000, map[string]int64{"alice": 1})
	rec := newPayoutRecorder()
	_, _, err := cp.ClaimFor(id, "alice", testEpoch.Add(time.Hour), rec.sink)
	if !errors.Is(err, lottery.ErrNotMatured) {
		t.Errorf("got %v, want ErrNotMatured", err)
	}
}

func TestClaimFor_SinkFailureKeepsPosition(t *testing.T) {
	cp, tickets, id, now := claimFixture(t, 1_000, map[string]int64{"alice": 2})
	rec := newPayoutRecorder()
	rec.fail = errors.New("transfer rejected")

	paid, held, err := cp.ClaimFor(id, "alice", now, rec.sink)
	if err == nil {
		t.Fatal("expected sink error to propagate")
	}
	if paid != 0 {
		t.Errorf("paid = %d, want 0", paid)
	}
	if held != 2 {
		t.Errorf("held = %d, want 2", held)
	}
	// Position survives for a retry.
	if got := tickets.Balance("alice", id, 100_000); got != 2 {
		t.Errorf("position = %d, want 2", got)
	}
}

func TestClaimFor_PositionExceedsSold(t *testing.T) {
	// Mint directly without a matching sale record: a corrupted ledger.
	s := lottery.NewStore()
	tickets := ledger.NewMemoryTicketLedger()
	r := lottery.NewResolver(s, &staticFeed{price: 123_456}, newFeeRecorder(), 0)
	cp := lottery.NewClaimProcessor(s, r, tickets)

	p := validParams()
	p.BucketSize = 50_000
	id, _ := s.Create(p, testEpoch)
	if err := tickets.Mint("alice", id, 100_000, 5); err != nil {
		t.Fatalf("mint: %v", err)
	}

	rec := newPayoutRecorder()
	_, held, err := cp.ClaimFor(id, "alice", testEpoch.Add(72*time.Hour), rec.sink)
	if err == nil {
		t.Fatal("expected corrupted-ledger error")
	}
	if held != 5 {
		t.Errorf("held = %d, want 5", held)
	}
	if len(rec.paid) != 0 {
		t.Errorf("sink paid %v, want nothing", rec.paid)
	}
}

func TestClaimFor_UnknownLottery(t *testing.T) {
	cp, _, _, now := claimFixture(t, 0, nil)
	rec := newPayoutRecorder()
	_, _, err := cp.ClaimFor(99, "alice", now, rec.sink)
	if !errors.Is(err, lottery.ErrUnknownLottery) {
		t.Errorf("got %v, want ErrUnknownLottery", err)
	}
}
