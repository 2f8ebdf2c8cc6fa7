package lottery

import (
	"fmt"
	"time"

	lmath "LottoLedger/internal/math"
)

// TicketStore is the claim processor's view of the ticket ownership ledger.
// Satisfied by ledger.TicketLedger implementations.
type TicketStore interface {
	Balance(account string, lotteryID uint64, bucket int64) int64
	Burn(account string, lotteryID uint64, bucket int64, count int64) error
}

// PayoutSink delivers a claimant's winnings: a local collateral transfer for
// same-domain claims, or an outbound remote transfer for cross-domain ones.
type PayoutSink func(asset, account string, amount int64) error

// ClaimProcessor computes pro-rata payouts and drains winning positions.
type ClaimProcessor struct {
	store    *Store
	resolver *Resolver
	tickets  TicketStore
}

func NewClaimProcessor(store *Store, resolver *Resolver, tickets TicketStore) *ClaimProcessor {
	return &ClaimProcessor{store: store, resolver: resolver, tickets: tickets}
}

// ClaimFor pays out the claimant's share of one lottery. Resolves the lottery
// first if maturity has passed (ErrNotMatured propagates if it hasn't).
//
// Returns (paid, heldQty). heldQty is the claimant's winning-bucket position
// before the claim: callers wanting silent batch semantics ignore a zero,
// callers wanting the strict single-claim behavior turn it into
// ErrNoWinningTickets.
//
// payout = q * proceeds / totalSold, truncating: rounding dust stays in the
// pool and is never distributed. The burn runs only after the sink accepts
// the payout, and the burn itself is the sole idempotency guard — a second
// claim finds a zero position and pays nothing.
func (cp *ClaimProcessor) ClaimFor(id uint64, claimant string, now time.Time, sink PayoutSink) (int64, int64, error) {
	l, err := cp.store.Get(id)
	if err != nil {
		return 0, 0, err
	}
	if err := cp.resolver.ResolveIfNeeded(l, now); err != nil {
		return 0, 0, err
	}

	q := cp.tickets.Balance(claimant, id, l.WinningBucket)
	if q == 0 {
		return 0, 0, nil
	}

	sold := l.SoldAt(l.WinningBucket)
	if sold < q {
		// Positions can never exceed recorded sales; this is a corrupted
		// ledger, not a user error.
		return 0, q, fmt.Errorf("lottery %d: position %d exceeds sold count %d at bucket %d",
			id, q, sold, l.WinningBucket)
	}

	payout := lmath.MulDivFloor(q, l.Proceeds, sold)
	if payout > 0 {
		if err := sink(l.Params.CollateralAsset, claimant, payout); err != nil {
			return 0, q, fmt.Errorf("payout for lottery %d: %w", id, err)
		}
	}

	if err := cp.tickets.Burn(claimant, id, l.WinningBucket, q); err != nil {
		return payout, q, fmt.Errorf("burn after payout for lottery %d: %w", id, err)
	}
	return payout, q, nil
}
