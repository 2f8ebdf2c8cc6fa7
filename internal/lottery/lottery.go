package lottery

import (
	"fmt"
	"time"
)

// Params are immutable once a lottery is created.
type Params struct {
	// Asset identifier resolved by the price oracle (e.g. "BTC")
	AssetID string `json:"asset_id"`

	// Width of a price bucket; every bucket lower bound is a multiple of this
	BucketSize int64 `json:"bucket_size"`

	// Sales window [OpenTime, CloseTime); resolution at/after MaturityTime
	OpenTime     time.Time `json:"open_time"`
	CloseTime    time.Time `json:"close_time"`
	MaturityTime time.Time `json:"maturity_time"`

	// Fungible asset used for payment and payout
	CollateralAsset string `json:"collateral_asset"`
}

// Validate checks the creation-time invariants: open in the future, windows
// strictly increasing, positive bucket size, non-empty identifiers.
func (p Params) Validate(now time.Time) error {
	if p.AssetID == "" || p.CollateralAsset == "" {
		return fmt.Errorf("%w: missing asset identifiers", ErrInvalidParams)
	}
	if p.BucketSize <= 0 {
		return fmt.Errorf("%w: bucket size %d", ErrInvalidParams, p.BucketSize)
	}
	if !p.OpenTime.After(now) {
		return fmt.Errorf("%w: open time not in the future", ErrInvalidParams)
	}
	if !p.CloseTime.After(p.OpenTime) {
		return fmt.Errorf("%w: close not after open", ErrInvalidParams)
	}
	if !p.MaturityTime.After(p.CloseTime) {
		return fmt.Errorf("%w: maturity not after close", ErrInvalidParams)
	}
	return nil
}

// Lottery is the mutable record for one draw. Owned by the Store; all access
// goes through the engine's single-writer discipline.
type Lottery struct {
	ID     uint64
	Params Params

	// Price table: BucketPrices[i] prices the bucket at
	// FirstBucket + i*BucketSize. Empty until SetPrices.
	FirstBucket  int64
	BucketPrices []int64

	// min(first, last) of BucketPrices; fallback price for buckets outside
	// the table so unpriced buckets are never free
	MinTicketPrice int64

	// bucketLowerBound -> tickets sold; unbounded key domain
	TicketsSold map[int64]int64

	Resolved      bool
	WinningBucket int64 // valid only when Resolved

	// Collateral pool accumulated from sales and top-ups; reduced by the
	// protocol fee at resolution
	Proceeds int64
}

// Priced reports whether a price table has been set.
func (l *Lottery) Priced() bool {
	return len(l.BucketPrices) > 0
}

// OpenAt reports whether sales are allowed at ts: ts in [open, close).
func (l *Lottery) OpenAt(ts time.Time) bool {
	return !ts.Before(l.Params.OpenTime) && ts.Before(l.Params.CloseTime)
}

// SoldAt returns tickets sold at a bucket lower bound.
func (l *Lottery) SoldAt(bucket int64) int64 {
	return l.TicketsSold[bucket]
}

// clone returns a deep copy safe to hand to concurrent readers.
func (l *Lottery) clone() *Lottery {
	cp := *l
	cp.BucketPrices = append([]int64(nil), l.BucketPrices...)
	cp.TicketsSold = make(map[int64]int64, len(l.TicketsSold))
	for k, v := range l.TicketsSold {
		cp.TicketsSold[k] = v
	}
	return &cp
}
