package lottery

import (
	"fmt"
	"time"
)

// Store owns the authoritative lottery records. Ids are assigned 1,2,3,... in
// creation order and index into the backing slice, so id validity is a range
// check. Not safe for concurrent use on its own — the engine serializes
// access.
type Store struct {
	lotteries []*Lottery
}

func NewStore() *Store {
	return &Store{}
}

// Create validates params and assigns the next sequential id.
func (s *Store) Create(params Params, now time.Time) (uint64, error) {
	if err := params.Validate(now); err != nil {
		return 0, err
	}

	id := uint64(len(s.lotteries)) + 1
	s.lotteries = append(s.lotteries, &Lottery{
		ID:          id,
		Params:      params,
		TicketsSold: make(map[int64]int64),
	})
	return id, nil
}

// Get returns the live record. Callers must hold the engine's writer
// discipline; use Snapshot for concurrent readers.
func (s *Store) Get(id uint64) (*Lottery, error) {
	if id == 0 || id > uint64(len(s.lotteries)) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownLottery, id)
	}
	return s.lotteries[id-1], nil
}

// Snapshot returns a deep copy of one lottery for read paths.
func (s *Store) Snapshot(id uint64) (*Lottery, error) {
	l, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return l.clone(), nil
}

// LastID returns the highest assigned lottery id (0 when none exist).
func (s *Store) LastID() uint64 {
	return uint64(len(s.lotteries))
}

// SetPrices overwrites the price table and recomputes the minimum ticket
// price. Allowed any number of times before the close timestamp; each call is
// a full replacement, never an incremental update. The first bucket lower
// bound anchors the table and must be aligned to the bucket size.
func (s *Store) SetPrices(id uint64, firstBucket int64, prices []int64, now time.Time) error {
	l, err := s.Get(id)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		return ErrEmptyPriceList
	}
	if !now.Before(l.Params.CloseTime) {
		return fmt.Errorf("%w: pricing after close", ErrLotteryClosed)
	}
	if firstBucket%l.Params.BucketSize != 0 {
		return fmt.Errorf("%w: first bucket %d", ErrMisalignedBucket, firstBucket)
	}
	for i, p := range prices {
		if p <= 0 {
			return fmt.Errorf("%w: non-positive price at index %d", ErrInvalidParams, i)
		}
	}

	l.FirstBucket = firstBucket
	l.BucketPrices = append(l.BucketPrices[:0:0], prices...)

	l.MinTicketPrice = prices[0]
	if last := prices[len(prices)-1]; last < l.MinTicketPrice {
		l.MinTicketPrice = last
	}
	return nil
}

// RecordSale accrues a sale: sold count up, proceeds up by the paid cost.
// The caller has already moved (or accounted for) the collateral.
func (s *Store) RecordSale(id uint64, bucket, count, cost int64) error {
	l, err := s.Get(id)
	if err != nil {
		return err
	}
	l.TicketsSold[bucket] += count
	l.Proceeds += cost
	return nil
}

// AddProceeds tops up a lottery's pool without selling tickets. Rejected once
// the lottery is resolved — the payout denominator is fixed at resolution.
func (s *Store) AddProceeds(id uint64, amount int64) error {
	l, err := s.Get(id)
	if err != nil {
		return err
	}
	if l.Resolved {
		return ErrAlreadyResolved
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %d", ErrInvalidParams, amount)
	}
	l.Proceeds += amount
	return nil
}

// Restore replaces the store contents from a snapshot.
func (s *Store) Restore(lotteries []*Lottery) {
	s.lotteries = lotteries
}

// All returns the live records for snapshotting.
func (s *Store) All() []*Lottery {
	return s.lotteries
}
