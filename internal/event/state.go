package event

import "time"

// Post-operation state rows carried alongside envelopes so the projection
// worker can upsert read models without re-deriving engine state.

// LotteryState is the read-model row for one lottery after an operation.
type LotteryState struct {
	ID              uint64    `json:"id"`
	AssetID         string    `json:"asset_id"`
	CollateralAsset string    `json:"collateral_asset"`
	BucketSize      int64     `json:"bucket_size"`
	OpenTime        time.Time `json:"open_time"`
	CloseTime       time.Time `json:"close_time"`
	MaturityTime    time.Time `json:"maturity_time"`
	MinTicketPrice  int64     `json:"min_ticket_price"`
	Resolved        bool      `json:"resolved"`
	WinningBucket   int64     `json:"winning_bucket"`
	Proceeds        int64     `json:"proceeds"`
}

// SoldCount is the tickets-sold read-model row for one bucket.
type SoldCount struct {
	LotteryID uint64 `json:"lottery_id"`
	Bucket    int64  `json:"bucket"`
	Count     int64  `json:"count"`
}

// RefundBalance is a refund-credit read-model row (absolute, not a delta).
type RefundBalance struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// FeeBalance is the collected-fee read-model row for one asset.
type FeeBalance struct {
	Asset     string `json:"asset"`
	Collected int64  `json:"collected"`
}
