package lottery

import (
	"fmt"
	"time"

	lmath "LottoLedger/internal/math"
)

// FeePrecision is the denominator for fee rates: a feeRate of 20_000 is 2%.
const FeePrecision = 1_000_000

// PriceSource yields the oracle price of an asset at a historical timestamp.
// Satisfied by *oracle.Client.
type PriceSource interface {
	HistoricalPrice(assetID string, ts time.Time) (int64, error)
}

// FeeSink accumulates collected protocol fees per collateral asset.
// Satisfied by *ledger.FeePot.
type FeeSink interface {
	Credit(asset string, amount int64)
}

// Resolver fixes a lottery's winning bucket from the oracle price at maturity
// and deducts the protocol fee from the pool, exactly once.
type Resolver struct {
	store   *Store
	feed    PriceSource
	fees    FeeSink
	feeRate int64 // parts per FeePrecision
}

func NewResolver(store *Store, feed PriceSource, fees FeeSink, feeRate int64) *Resolver {
	if feeRate < 0 || feeRate >= FeePrecision {
		panic(fmt.Sprintf("fee rate out of range: %d", feeRate))
	}
	return &Resolver{store: store, feed: feed, fees: fees, feeRate: feeRate}
}

// Resolve is the explicit external resolution path. A second call fails with
// ErrAlreadyResolved; resolution before maturity fails with ErrNotMatured.
func (r *Resolver) Resolve(id uint64, now time.Time) error {
	l, err := r.store.Get(id)
	if err != nil {
		return err
	}
	if l.Resolved {
		return ErrAlreadyResolved
	}
	return r.resolve(l, now)
}

// ResolveIfNeeded is the implicit path used by claims and proceeds transfers.
// Resolving an already-resolved lottery is a no-op here — the fee must never
// be charged twice just because a claim raced the explicit resolve.
func (r *Resolver) ResolveIfNeeded(l *Lottery, now time.Time) error {
	if l.Resolved {
		return nil
	}
	return r.resolve(l, now)
}

func (r *Resolver) resolve(l *Lottery, now time.Time) error {
	if now.Before(l.Params.MaturityTime) {
		return fmt.Errorf("%w: matures at %s", ErrNotMatured, l.Params.MaturityTime.UTC().Format(time.RFC3339))
	}

	price, err := r.feed.HistoricalPrice(l.Params.AssetID, l.Params.MaturityTime)
	if err != nil {
		return fmt.Errorf("oracle price for %s: %w", l.Params.AssetID, err)
	}

	// Buckets are half-open [lower, lower+size); the winning bucket is the
	// floor of the maturity price.
	winning := lmath.FloorBucket(price, l.Params.BucketSize)

	// Integer truncation: fee rounding favors the pool, not the protocol.
	fee := lmath.MulDivFloor(l.Proceeds, r.feeRate, FeePrecision)
	l.Proceeds -= fee
	if fee > 0 {
		r.fees.Credit(l.Params.CollateralAsset, fee)
	}

	l.WinningBucket = winning
	l.Resolved = true
	return nil
}

// TransferProceeds forwards a matured lottery's pool into a currently open
// one, used when the source resolved with zero winning-bucket sales.
//
// If the source's winning bucket has any sales this silently does nothing:
// the pool belongs to those winners and must stay put. A repeat call after a
// successful transfer completes as a zero-amount transfer rather than
// failing — the post-condition already holds.
func (r *Resolver) TransferProceeds(prevID, fwdID uint64, now time.Time) (int64, error) {
	prev, err := r.store.Get(prevID)
	if err != nil {
		return 0, err
	}
	fwd, err := r.store.Get(fwdID)
	if err != nil {
		return 0, err
	}
	if prev.Params.CollateralAsset != fwd.Params.CollateralAsset {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCollateralMismatch,
			prev.Params.CollateralAsset, fwd.Params.CollateralAsset)
	}
	if now.Before(prev.Params.MaturityTime) {
		return 0, fmt.Errorf("%w: source matures at %s", ErrNotMatured,
			prev.Params.MaturityTime.UTC().Format(time.RFC3339))
	}

	if err := r.ResolveIfNeeded(prev, now); err != nil {
		return 0, err
	}
	if prev.SoldAt(prev.WinningBucket) > 0 {
		return 0, nil
	}
	if !fwd.OpenAt(now) {
		return 0, fmt.Errorf("%w: forward lottery %d", ErrLotteryNotOpen, fwdID)
	}

	amount := prev.Proceeds
	prev.Proceeds = 0
	fwd.Proceeds += amount
	return amount, nil
}
