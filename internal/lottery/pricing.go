package lottery

import (
	"fmt"

	lmath "LottoLedger/internal/math"
)

// Quote computes the cost of count tickets at a bucket lower bound.
//
// Buckets inside the priced table use their table entry. Buckets outside it
// are priced at the table's floor (MinTicketPrice) — an unpriced bucket must
// never be free or arbitrarily cheap.
func Quote(l *Lottery, bucket, count int64) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("%w: count %d", ErrZeroCount, count)
	}
	if !l.Priced() {
		return 0, ErrClosedForPricing
	}
	if !lmath.Aligned(bucket, l.Params.BucketSize) {
		return 0, fmt.Errorf("%w: bucket %d, size %d", ErrMisalignedBucket, bucket, l.Params.BucketSize)
	}

	unit := l.MinTicketPrice
	if idx, ok := tableIndex(l, bucket); ok {
		unit = l.BucketPrices[idx]
	}

	cost, ok := lmath.MulChecked(count, unit)
	if !ok {
		return 0, fmt.Errorf("%w: %d tickets at %d", ErrAmountOverflow, count, unit)
	}
	return cost, nil
}

// tableIndex maps a bucket lower bound to its price-table index, if the
// bucket falls within [FirstBucket, FirstBucket + size*len(prices)).
func tableIndex(l *Lottery, bucket int64) (int, bool) {
	if bucket < l.FirstBucket {
		return 0, false
	}
	idx := (bucket - l.FirstBucket) / l.Params.BucketSize
	if idx >= int64(len(l.BucketPrices)) {
		return 0, false
	}
	return int(idx), true
}
