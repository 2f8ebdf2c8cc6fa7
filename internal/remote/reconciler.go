package remote

import (
	"errors"
	"fmt"
	"time"

	"LottoLedger/internal/event"
	"LottoLedger/internal/ledger"
	"LottoLedger/internal/lottery"
	lmath "LottoLedger/internal/math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconciler applies remote-domain purchase and claim requests against the
// lottery store and ticket ledger.
//
// The inbound paths never fail for business reasons. A remote purchase
// arrives with its collateral already escrowed by the transport; rejecting
// the call cannot undo that escrow, it can only strand the funds and wedge
// the transport's redelivery loop on a permanently-invalid request. Every
// business violation — unknown lottery, wrong asset, closed window, missing
// price table, misaligned bucket, insufficient escrow — is therefore
// absorbed into a RefundCredit the origin account drains later. Only
// programming-invariant violations return errors.
type Reconciler struct {
	store     *lottery.Store
	tickets   ledger.TicketLedger
	claims    *lottery.ClaimProcessor
	refunds   *RefundLedger
	pools     *PoolCache
	transport Transport

	// Pre-accrued budget for outbound message fees. When a send's quoted
	// fee exceeds it, the transfer amount falls back to a refund credit
	// rather than a stuck transfer.
	feeBudget int64

	log zerolog.Logger
}

func NewReconciler(
	store *lottery.Store,
	tickets ledger.TicketLedger,
	claims *lottery.ClaimProcessor,
	refunds *RefundLedger,
	pools *PoolCache,
	transport Transport,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:     store,
		tickets:   tickets,
		claims:    claims,
		refunds:   refunds,
		pools:     pools,
		transport: transport,
		log:       log,
	}
}

// PurchaseOutcome reports how a remote purchase was absorbed.
type PurchaseOutcome struct {
	Applied  bool
	Reason   string // refund reason when not applied
	Cost     int64  // proceeds credited on success
	Refunded int64  // full escrow on rejection, surplus on success
}

// DispatchOutcome reports how a remote claim or refund drain was absorbed.
type DispatchOutcome struct {
	Paid     int64  // claim payout initiated
	Drained  int64  // refund credit drained
	Sent     int64  // amount handed to the transport (post truncation)
	Asset    string // settlement asset of the resolved pool
	Absorbed string // reason a business failure was absorbed silently
}

// ReconcilePurchase validates and applies one remote ticket purchase.
// Validation failures are all-or-nothing: the entire escrowed amount becomes
// a refund credit for the receiver and the call succeeds. On success, any
// overpayment above the quoted cost is refunded the same way — never kept.
func (r *Reconciler) ReconcilePurchase(req *event.RemotePurchase, now time.Time) (PurchaseOutcome, error) {
	refundAll := func(reason string) PurchaseOutcome {
		r.refunds.Credit(req.EscrowAsset, req.Receiver, req.EscrowAmount)
		r.log.Info().
			Str("request_id", req.RequestID.String()).
			Uint64("lottery_id", req.LotteryID).
			Str("reason", reason).
			Int64("refunded", req.EscrowAmount).
			Msg("remote purchase absorbed as refund credit")
		return PurchaseOutcome{Reason: reason, Refunded: req.EscrowAmount}
	}

	lot, err := r.store.Get(req.LotteryID)
	if err != nil {
		return refundAll("unknown lottery"), nil
	}
	if req.EscrowAsset != lot.Params.CollateralAsset {
		return refundAll("collateral mismatch"), nil
	}
	if !lot.OpenAt(now) {
		return refundAll("lottery not open"), nil
	}

	cost, err := lottery.Quote(lot, req.Bucket, req.Count)
	switch {
	case err == nil:
	case errors.Is(err, lottery.ErrClosedForPricing):
		return refundAll("price table not set"), nil
	case errors.Is(err, lottery.ErrMisalignedBucket):
		return refundAll("misaligned bucket"), nil
	case errors.Is(err, lottery.ErrZeroCount):
		return refundAll("zero count"), nil
	default:
		return refundAll("unquotable"), nil
	}

	if req.EscrowAmount < cost {
		// Insufficient escrow forfeits the purchase entirely, not partially.
		return refundAll("insufficient escrow"), nil
	}

	// Funds already moved via escrow, so proceeds are credited directly
	// without the balance-delta check used on local purchases.
	if err := r.store.RecordSale(req.LotteryID, req.Bucket, req.Count, cost); err != nil {
		return PurchaseOutcome{}, fmt.Errorf("record remote sale: %w", err)
	}
	if err := r.tickets.Mint(req.Receiver, req.LotteryID, req.Bucket, req.Count); err != nil {
		return PurchaseOutcome{}, fmt.Errorf("mint remote tickets: %w", err)
	}

	surplus := req.EscrowAmount - cost
	if surplus > 0 {
		r.refunds.Credit(req.EscrowAsset, req.Receiver, surplus)
	}
	return PurchaseOutcome{Applied: true, Cost: cost, Refunded: surplus}, nil
}

// ReconcileClaim runs a claim whose payout leaves through the outbound
// transport instead of a local transfer. Business failures (unknown lottery,
// not yet matured, unresolvable pool hints) are absorbed: the claimant's
// tickets stay intact and a later redelivery or retry can succeed.
func (r *Reconciler) ReconcileClaim(req *event.RemoteClaim, now time.Time) (DispatchOutcome, error) {
	pool, err := r.pools.Pool(req.PoolID)
	if err != nil {
		r.log.Warn().Str("pool_id", req.PoolID).Err(err).Msg("remote claim with unresolvable pool")
		return DispatchOutcome{Absorbed: "unresolvable pool"}, nil
	}

	var sent int64
	sink := func(asset, account string, amount int64) error {
		if asset != pool.Asset {
			// Claim payout asset must match the destination pool's
			// settlement asset; otherwise hold it as refund credit the
			// claimant can drain through the right pool.
			r.refunds.Credit(asset, account, amount)
			return nil
		}
		sent = r.sendToChain(req.RequestID, req.Origin, req.PoolID, pool, account, amount)
		return nil
	}

	paid, _, err := r.claims.ClaimFor(req.LotteryID, req.Sender, now, sink)
	switch {
	case err == nil:
	case errors.Is(err, lottery.ErrUnknownLottery):
		return DispatchOutcome{Absorbed: "unknown lottery"}, nil
	case errors.Is(err, lottery.ErrNotMatured):
		return DispatchOutcome{Absorbed: "not matured"}, nil
	default:
		return DispatchOutcome{}, fmt.Errorf("remote claim lottery %d: %w", req.LotteryID, err)
	}

	return DispatchOutcome{Paid: paid, Sent: sent, Asset: pool.Asset}, nil
}

// ReconcileRefundDrain reads and zeroes the sender's refund credit in the
// asset resolved via the pool hint and sends it back toward the origin
// domain.
func (r *Reconciler) ReconcileRefundDrain(req *event.RemoteRefundDrain) (DispatchOutcome, error) {
	pool, err := r.pools.Pool(req.PoolID)
	if err != nil {
		// Credit stays intact; the sender retries with valid hints.
		r.log.Warn().Str("pool_id", req.PoolID).Err(err).Msg("refund drain with unresolvable pool")
		return DispatchOutcome{Absorbed: "unresolvable pool"}, nil
	}

	amount := r.refunds.Drain(pool.Asset, req.Sender)
	if amount == 0 {
		return DispatchOutcome{Absorbed: "no credit"}, nil
	}

	sent := r.sendToChain(req.RequestID, req.Origin, req.PoolID, pool, req.Sender, amount)
	return DispatchOutcome{Drained: amount, Sent: sent, Asset: pool.Asset}, nil
}

// sendToChain forwards amount toward a destination pool on behalf of one
// inbound request. The amount is
// truncated to a multiple of the pool's conversion rate; dust below one
// destination unit is excluded from the transfer and stays in the local
// collateral pot, a leakage bounded by ConversionRate-1.
//
// Fail-safe: if the send fee cannot be covered by the fee budget, or the
// transport rejects the send, the full pre-truncation amount becomes a
// refund credit — a recoverable credit beats a stuck transfer.
func (r *Reconciler) sendToChain(requestID uuid.UUID, destination, poolID string, pool PoolInfo, receiver string, amount int64) int64 {
	if amount <= 0 {
		return 0
	}

	fee, err := r.transport.QuoteFee(destination)
	if err != nil || fee > r.feeBudget {
		r.refunds.Credit(pool.Asset, receiver, amount)
		r.log.Warn().
			Str("destination", destination).
			Int64("amount", amount).
			Int64("fee_budget", r.feeBudget).
			Msg("outbound transfer fee not covered; converted to refund credit")
		return 0
	}

	send := lmath.TruncateToMultiple(amount, pool.ConversionRate)
	if send == 0 {
		r.log.Debug().
			Str("destination", destination).
			Int64("amount", amount).
			Int64("conversion_rate", pool.ConversionRate).
			Msg("outbound amount below one destination unit; nothing sent")
		return 0
	}

	transfer := Transfer{
		TransferID:  uuid.New(),
		RequestID:   requestID,
		Destination: destination,
		PoolID:      poolID,
		PoolAddress: pool.PoolAddress,
		Asset:       pool.Asset,
		Amount:      send,
		Receiver:    receiver,
	}
	if err := r.transport.Send(transfer); err != nil {
		r.refunds.Credit(pool.Asset, receiver, amount)
		r.log.Error().Err(err).
			Str("destination", destination).
			Int64("amount", amount).
			Msg("outbound send failed; converted to refund credit")
		return 0
	}

	r.feeBudget -= fee
	return send
}

// AddFeeBudget tops up the interchain-fee budget.
func (r *Reconciler) AddFeeBudget(amount int64) {
	if amount > 0 {
		r.feeBudget += amount
	}
}

// FeeBudget returns the remaining interchain-fee budget.
func (r *Reconciler) FeeBudget() int64 {
	return r.feeBudget
}

// RestoreFeeBudget replaces the budget from a snapshot.
func (r *Reconciler) RestoreFeeBudget(amount int64) {
	r.feeBudget = amount
}
