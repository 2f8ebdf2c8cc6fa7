package engine

import (
	"LottoLedger/internal/event"
	"LottoLedger/internal/remote"
)

// Envelope payloads. Every payload carries enough to re-execute the
// operation against restored state, so the event log replays after a warm
// restart. CreateLottery stores lottery.Params directly.

type setPricesPayload struct {
	FirstBucket int64   `json:"first_bucket"`
	Prices      []int64 `json:"prices"`
}

type purchasePayload struct {
	Buyer  string `json:"buyer"`
	Bucket int64  `json:"bucket"`
	Count  int64  `json:"count"`
	Cost   int64  `json:"cost"`
}

type multiPurchasePayload struct {
	Buyer  string        `json:"buyer"`
	Orders []BucketOrder `json:"orders"`
	Total  int64         `json:"total"`
}

type resolvePayload struct {
	WinningBucket int64 `json:"winning_bucket"`
	Proceeds      int64 `json:"proceeds"`
}

type claimPayload struct {
	Claimant  string   `json:"claimant"`
	Lotteries []uint64 `json:"lotteries"`
	Paid      int64    `json:"paid"`
}

type claimOnePayload struct {
	Claimant string `json:"claimant"`
	Tickets  int64  `json:"tickets"`
	Paid     int64  `json:"paid"`
}

type transferProceedsPayload struct {
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
	Moved int64  `json:"moved"`
}

type addProceedsPayload struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
	// Set when the top-up bounced after the collateral moved and the amount
	// became a refund credit instead.
	Refunded int64 `json:"refunded,omitempty"`
}

type withdrawFeesPayload struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type fundFeeBudgetPayload struct {
	Amount int64 `json:"amount"`
	Budget int64 `json:"budget"`
}

type depositPayload struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type recordPricePayload struct {
	Asset string `json:"asset"`
	Unix  int64  `json:"unix"`
	Price int64  `json:"price"`
}

type remotePurchasePayload struct {
	Request *event.RemotePurchase  `json:"request"`
	Outcome remote.PurchaseOutcome `json:"outcome"`
}

type remoteDispatchPayload struct {
	Claim   *event.RemoteClaim       `json:"claim,omitempty"`
	Drain   *event.RemoteRefundDrain `json:"drain,omitempty"`
	Outcome remote.DispatchOutcome   `json:"outcome"`
}
