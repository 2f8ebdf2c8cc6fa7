package query

import "time"

// LotteryResponse represents a lottery for API queries.
type LotteryResponse struct {
	ID              uint64    `json:"id"`
	AssetID         string    `json:"asset_id"`
	CollateralAsset string    `json:"collateral_asset"`
	BucketSize      int64     `json:"bucket_size"`
	OpenTime        time.Time `json:"open_time"`
	CloseTime       time.Time `json:"close_time"`
	MaturityTime    time.Time `json:"maturity_time"`
	MinTicketPrice  int64     `json:"min_ticket_price"`
	Resolved        bool      `json:"resolved"`
	WinningBucket   *int64    `json:"winning_bucket,omitempty"` // nil until resolved
	Proceeds        int64     `json:"proceeds"`
	AsOfSequence    int64     `json:"as_of_sequence"`
}

// SoldResponse represents tickets sold at one bucket.
type SoldResponse struct {
	LotteryID    uint64 `json:"lottery_id"`
	Bucket       int64  `json:"bucket"`
	Count        int64  `json:"count"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// RefundCreditResponse represents one refund-credit balance.
type RefundCreditResponse struct {
	Asset        string `json:"asset"`
	Account      string `json:"account"`
	Amount       int64  `json:"amount"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// FeeResponse represents collected protocol fees for one asset.
type FeeResponse struct {
	Asset        string `json:"asset"`
	Collected    int64  `json:"collected"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// EventResponse represents one event-log envelope.
type EventResponse struct {
	Sequence       int64     `json:"sequence"`
	Kind           string    `json:"kind"`
	IdempotencyKey string    `json:"idempotency_key"`
	LotteryID      uint64    `json:"lottery_id,omitempty"`
	Payload        []byte    `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
