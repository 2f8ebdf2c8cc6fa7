package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"LottoLedger/internal/event"
	"LottoLedger/internal/lottery"
)

// BeginReplay switches the engine into replay mode for the boot-time walk
// over the event log. Must be paired with EndReplay before serving traffic.
func (e *Engine) BeginReplay() {
	e.mu.Lock()
	e.replaying = true
	e.mu.Unlock()
}

func (e *Engine) EndReplay() {
	e.mu.Lock()
	e.replaying = false
	e.mu.Unlock()
}

// WarmDedup preloads composite dedup keys, typically the most recent event
// log rows, so redelivered requests short-circuit in memory.
func (e *Engine) WarmDedup(keys []string) {
	e.begin()
	defer e.end()
	e.deduper.Warm(keys)
}

// ReplayEvent re-executes one logged operation against restored state. The
// envelope timestamp is used as the operation clock so every time-window
// check reproduces its original decision. Outbound remote transfers are
// re-published; the receiving domain dedups by request id.
func (e *Engine) ReplayEvent(kind event.Kind, lotteryID uint64, payload []byte, ts time.Time) error {
	switch kind {
	case event.KindCreateLottery:
		var params lottery.Params
		if err := json.Unmarshal(payload, &params); err != nil {
			return fmt.Errorf("decode CreateLottery: %w", err)
		}
		_, err := e.CreateLottery(params, ts)
		return err

	case event.KindSetPrices:
		var p setPricesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode SetPrices: %w", err)
		}
		return e.SetTicketPrices(lotteryID, p.FirstBucket, p.Prices, ts)

	case event.KindPurchase:
		var p multiPurchasePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode Purchase: %w", err)
		}
		if len(p.Orders) > 0 {
			_, err := e.BuyMultipleTickets(p.Buyer, lotteryID, p.Orders, ts)
			return err
		}
		var single purchasePayload
		if err := json.Unmarshal(payload, &single); err != nil {
			return fmt.Errorf("decode Purchase: %w", err)
		}
		_, err := e.BuyTickets(single.Buyer, lotteryID, single.Bucket, single.Count, ts)
		return err

	case event.KindResolve:
		return e.ResolveLottery(lotteryID, ts)

	case event.KindClaim:
		if lotteryID == 0 {
			var p claimPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("decode Claim: %w", err)
			}
			_, err := e.Claim(p.Claimant, p.Lotteries, ts)
			return err
		}
		var p claimOnePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode Claim: %w", err)
		}
		_, err := e.ClaimOne(p.Claimant, lotteryID, ts)
		return err

	case event.KindTransferProceeds:
		var p transferProceedsPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode TransferProceeds: %w", err)
		}
		_, err := e.TransferProceeds(p.From, p.To, ts)
		return err

	case event.KindAddProceeds:
		var p addProceedsPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode AddProceeds: %w", err)
		}
		return e.AddProceeds(p.From, lotteryID, p.Amount, ts)

	case event.KindWithdrawFees:
		var p withdrawFeesPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode WithdrawFees: %w", err)
		}
		return e.WithdrawFees(p.Asset, p.To, p.Amount, ts)

	case event.KindFundFeeBudget:
		var p fundFeeBudgetPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode FundFeeBudget: %w", err)
		}
		return e.FundRemoteFeeBudget(p.Amount, ts)

	case event.KindDeposit:
		var p depositPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode Deposit: %w", err)
		}
		return e.Deposit(p.Asset, p.Account, p.Amount, ts)

	case event.KindRecordPrice:
		var p recordPricePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode RecordPrice: %w", err)
		}
		return e.RecordPrice(p.Asset, time.Unix(p.Unix, 0), p.Price, ts)

	case event.KindRemotePurchase:
		var p remotePurchasePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode RemotePurchase: %w", err)
		}
		if p.Request == nil {
			return fmt.Errorf("RemotePurchase payload missing request")
		}
		return e.HandleRemotePurchase(p.Request, ts)

	case event.KindRemoteClaim, event.KindRemoteRefundDrain:
		var p remoteDispatchPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode remote dispatch: %w", err)
		}
		switch {
		case p.Claim != nil:
			return e.HandleRemoteDispatch(p.Claim, ts)
		case p.Drain != nil:
			return e.HandleRemoteDispatch(p.Drain, ts)
		default:
			return fmt.Errorf("remote dispatch payload missing request")
		}

	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
}
