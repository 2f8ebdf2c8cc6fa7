package remote_test

import (
	"errors"
	"testing"
	"time"

	"LottoLedger/internal/event"
	"LottoLedger/internal/ledger"
	"LottoLedger/internal/lottery"
	"LottoLedger/internal/remote"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// fixedFeed returns one price for every historical lookup.
type fixedFeed struct{ price int64 }

func (f fixedFeed) HistoricalPrice(assetID string, ts time.Time) (int64, error) {
	return f.price, nil
}

// fakeTransport records sends and serves a fixed fee quote.
type fakeTransport struct {
	fee     int64
	feeErr  error
	sendErr error
	sent    []remote.Transfer
}

func (t *fakeTransport) Send(tr remote.Transfer) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, tr)
	return nil
}

func (t *fakeTransport) QuoteFee(destination string) (int64, error) {
	return t.fee, t.feeErr
}

type fixture struct {
	store      *lottery.Store
	tickets    *ledger.MemoryTicketLedger
	refunds    *remote.RefundLedger
	transport  *fakeTransport
	reconciler *remote.Reconciler
	lotteryID  uint64
}

// newFixture builds a reconciler around one priced lottery: bucket size
// 50_000, table anchored at 100_000 pricing that bucket at 400, collateral
// USDC, open [epoch+1h, epoch+48h), maturity epoch+72h. Zero fee rate.
func newFixture(t *testing.T, pools map[string]remote.PoolInfo) *fixture {
	t.Helper()
	store := lottery.NewStore()
	tickets := ledger.NewMemoryTicketLedger()
	refunds := remote.NewRefundLedger()
	transport := &fakeTransport{fee: 10}

	id, err := store.Create(lottery.Params{
		AssetID:         "BTC",
		BucketSize:      50_000,
		OpenTime:        epoch.Add(time.Hour),
		CloseTime:       epoch.Add(48 * time.Hour),
		MaturityTime:    epoch.Add(72 * time.Hour),
		CollateralAsset: "USDC",
	}, epoch)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.SetPrices(id, 100_000, []int64{400, 500}, epoch); err != nil {
		t.Fatalf("set prices: %v", err)
	}

	resolver := lottery.NewResolver(store, fixedFeed{price: 123_456}, ledger.NewFeePot(), 0)
	claims := lottery.NewClaimProcessor(store, resolver, tickets)
	cache := remote.NewPoolCache(&remote.StaticRegistry{Pools: pools})

	r := remote.NewReconciler(store, tickets, claims, refunds, cache, transport, zerolog.Nop())
	return &fixture{
		store:      store,
		tickets:    tickets,
		refunds:    refunds,
		transport:  transport,
		reconciler: r,
		lotteryID:  id,
	}
}

func purchaseReq(f *fixture, count, escrow int64) *event.RemotePurchase {
	return &event.RemotePurchase{
		RequestID:    uuid.New(),
		Origin:       "domain-a",
		LotteryID:    f.lotteryID,
		Bucket:       100_000,
		Count:        count,
		Buyer:        "a1origin",
		Receiver:     "alice",
		EscrowAsset:  "USDC",
		EscrowAmount: escrow,
	}
}

// saleTime is inside the sales window, settleTime past maturity.
var (
	saleTime   = epoch.Add(2 * time.Hour)
	settleTime = epoch.Add(72 * time.Hour)
)

// ============================================================================
// Test: ReconcilePurchase
// ============================================================================

func TestReconcilePurchase_SurplusRefunded(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.reconciler.ReconcilePurchase(purchaseReq(f, 2, 1_000), saleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !out.Applied {
		t.Fatalf("not applied: %+v", out)
	}
	if out.Cost != 800 || out.Refunded != 200 {
		t.Errorf("cost=%d refunded=%d, want 800, 200", out.Cost, out.Refunded)
	}
	if got := f.tickets.Balance("alice", f.lotteryID, 100_000); got != 2 {
		t.Errorf("minted = %d, want 2", got)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 200 {
		t.Errorf("refund credit = %d, want 200", got)
	}
	l, _ := f.store.Get(f.lotteryID)
	if l.Proceeds != 800 {
		t.Errorf("proceeds = %d, want 800", l.Proceeds)
	}
}

func TestReconcilePurchase_ExactEscrow(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.reconciler.ReconcilePurchase(purchaseReq(f, 2, 800), saleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !out.Applied || out.Refunded != 0 {
		t.Errorf("outcome = %+v, want applied with zero refund", out)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 0 {
		t.Errorf("refund credit = %d, want 0", got)
	}
}

// Every rejection absorbs the full escrow as a refund credit and mints
// nothing. The call itself succeeds: the funds already moved.
func TestReconcilePurchase_Absorbed(t *testing.T) {
	cases := []struct {
		name   string
		mut    func(f *fixture, req *event.RemotePurchase)
		now    time.Time
		reason string
	}{
		{
			name:   "unknown lottery",
			mut:    func(f *fixture, req *event.RemotePurchase) { req.LotteryID = 42 },
			now:    saleTime,
			reason: "unknown lottery",
		},
		{
			name:   "collateral mismatch",
			mut:    func(f *fixture, req *event.RemotePurchase) { req.EscrowAsset = "DAI" },
			now:    saleTime,
			reason: "collateral mismatch",
		},
		{
			name:   "before open",
			mut:    func(f *fixture, req *event.RemotePurchase) {},
			now:    epoch.Add(30 * time.Minute),
			reason: "lottery not open",
		},
		{
			name:   "after close",
			mut:    func(f *fixture, req *event.RemotePurchase) {},
			now:    epoch.Add(49 * time.Hour),
			reason: "lottery not open",
		},
		{
			name:   "misaligned bucket",
			mut:    func(f *fixture, req *event.RemotePurchase) { req.Bucket = 100_001 },
			now:    saleTime,
			reason: "misaligned bucket",
		},
		{
			name:   "zero count",
			mut:    func(f *fixture, req *event.RemotePurchase) { req.Count = 0 },
			now:    saleTime,
			reason: "zero count",
		},
		{
			name:   "insufficient escrow",
			mut:    func(f *fixture, req *event.RemotePurchase) { req.EscrowAmount = 799 },
			now:    saleTime,
			reason: "insufficient escrow",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := purchaseReq(f, 2, 800)
			tc.mut(f, req)

			out, err := f.reconciler.ReconcilePurchase(req, tc.now)
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			if out.Applied {
				t.Fatal("applied despite violation")
			}
			if out.Reason != tc.reason {
				t.Errorf("reason = %q, want %q", out.Reason, tc.reason)
			}
			if out.Refunded != req.EscrowAmount {
				t.Errorf("refunded = %d, want full escrow %d", out.Refunded, req.EscrowAmount)
			}
			if got := f.refunds.Balance(req.EscrowAsset, req.Receiver); got != req.EscrowAmount {
				t.Errorf("refund credit = %d, want %d", got, req.EscrowAmount)
			}
			if got := f.tickets.Balance("alice", f.lotteryID, req.Bucket); got != 0 {
				t.Errorf("minted = %d, want 0", got)
			}
		})
	}
}

func TestReconcilePurchase_UnpricedLottery(t *testing.T) {
	f := newFixture(t, nil)
	unpriced, err := f.store.Create(lottery.Params{
		AssetID:         "BTC",
		BucketSize:      50_000,
		OpenTime:        epoch.Add(time.Hour),
		CloseTime:       epoch.Add(48 * time.Hour),
		MaturityTime:    epoch.Add(72 * time.Hour),
		CollateralAsset: "USDC",
	}, epoch)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := purchaseReq(f, 1, 400)
	req.LotteryID = unpriced
	out, err := f.reconciler.ReconcilePurchase(req, saleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Reason != "price table not set" {
		t.Errorf("reason = %q, want price table not set", out.Reason)
	}
}

// ============================================================================
// Test: ReconcileClaim
// ============================================================================

func claimFixture(t *testing.T, pools map[string]remote.PoolInfo) *fixture {
	t.Helper()
	f := newFixture(t, pools)
	// Buy 2 tickets at the bucket the maturity price 123_456 resolves to.
	if _, err := f.reconciler.ReconcilePurchase(purchaseReq(f, 2, 800), saleTime); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	f.reconciler.AddFeeBudget(50)
	return f
}

func claimReq(f *fixture, poolID string) *event.RemoteClaim {
	return &event.RemoteClaim{
		RequestID: uuid.New(),
		Origin:    "domain-a",
		Sender:    "alice",
		LotteryID: f.lotteryID,
		PoolID:    poolID,
	}
}

func TestReconcileClaim_PayoutSent(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 100},
	})

	req := claimReq(f, "pool-1")
	out, err := f.reconciler.ReconcileClaim(req, settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Paid != 800 || out.Sent != 800 || out.Asset != "USDC" {
		t.Errorf("outcome = %+v, want paid=sent=800 in USDC", out)
	}
	if len(f.transport.sent) != 1 {
		t.Fatalf("sent %d transfers, want 1", len(f.transport.sent))
	}
	tr := f.transport.sent[0]
	if tr.Destination != "domain-a" || tr.PoolAddress != "pooladdr" || tr.Amount != 800 || tr.Receiver != "alice" {
		t.Errorf("transfer = %+v", tr)
	}
	if tr.TransferID == (uuid.UUID{}) {
		t.Error("transfer id not assigned")
	}
	if tr.RequestID != req.RequestID {
		t.Errorf("transfer request id = %s, want %s", tr.RequestID, req.RequestID)
	}
	// Fee budget consumed once.
	if got := f.reconciler.FeeBudget(); got != 40 {
		t.Errorf("fee budget = %d, want 40", got)
	}
	// Position drained; a redelivered claim pays nothing.
	out, err = f.reconciler.ReconcileClaim(claimReq(f, "pool-1"), settleTime)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if out.Paid != 0 || out.Sent != 0 {
		t.Errorf("second claim outcome = %+v, want nothing paid", out)
	}
}

func TestReconcileClaim_TruncationDust(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 300},
	})

	out, err := f.reconciler.ReconcileClaim(claimReq(f, "pool-1"), settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// 800 truncates to 600 at rate 300; the 200 dust stays local.
	if out.Paid != 800 || out.Sent != 600 {
		t.Errorf("outcome = %+v, want paid 800 sent 600", out)
	}
	if f.transport.sent[0].Amount != 600 {
		t.Errorf("transfer amount = %d, want 600", f.transport.sent[0].Amount)
	}
}

func TestReconcileClaim_AssetMismatchHeldAsCredit(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-osmo": {Asset: "OSMO", PoolAddress: "pooladdr", ConversionRate: 1},
	})

	out, err := f.reconciler.ReconcileClaim(claimReq(f, "pool-osmo"), settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Paid != 800 || out.Sent != 0 {
		t.Errorf("outcome = %+v, want paid 800 sent 0", out)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 800 {
		t.Errorf("refund credit = %d, want 800", got)
	}
	if len(f.transport.sent) != 0 {
		t.Errorf("unexpected transfers: %v", f.transport.sent)
	}
}

func TestReconcileClaim_FeeBudgetExceeded(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 1},
	})
	f.transport.fee = 1_000 // above the 50 budget

	out, err := f.reconciler.ReconcileClaim(claimReq(f, "pool-1"), settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Paid != 800 || out.Sent != 0 {
		t.Errorf("outcome = %+v, want paid 800 sent 0", out)
	}
	// Full pre-truncation amount becomes a recoverable credit.
	if got := f.refunds.Balance("USDC", "alice"); got != 800 {
		t.Errorf("refund credit = %d, want 800", got)
	}
	if got := f.reconciler.FeeBudget(); got != 50 {
		t.Errorf("fee budget = %d, want untouched 50", got)
	}
}

func TestReconcileClaim_TransportFailure(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 1},
	})
	f.transport.sendErr = errors.New("relay down")

	out, err := f.reconciler.ReconcileClaim(claimReq(f, "pool-1"), settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Sent != 0 {
		t.Errorf("sent = %d, want 0", out.Sent)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 800 {
		t.Errorf("refund credit = %d, want 800", got)
	}
}

func TestReconcileClaim_UnresolvablePool(t *testing.T) {
	f := claimFixture(t, nil)
	out, err := f.reconciler.ReconcileClaim(claimReq(f, "no-such-pool"), settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Absorbed != "unresolvable pool" {
		t.Errorf("absorbed = %q", out.Absorbed)
	}
	// Tickets stay intact for a retry with valid hints.
	if got := f.tickets.Balance("alice", f.lotteryID, 100_000); got != 2 {
		t.Errorf("position = %d, want 2", got)
	}
}

func TestReconcileClaim_NotMaturedAbsorbed(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 1},
	})
	out, err := f.reconciler.ReconcileClaim(claimReq(f, "pool-1"), saleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Absorbed != "not matured" {
		t.Errorf("absorbed = %q", out.Absorbed)
	}
	if got := f.tickets.Balance("alice", f.lotteryID, 100_000); got != 2 {
		t.Errorf("position = %d, want 2", got)
	}
}

func TestReconcileClaim_UnknownLotteryAbsorbed(t *testing.T) {
	f := claimFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 1},
	})
	req := claimReq(f, "pool-1")
	req.LotteryID = 99
	out, err := f.reconciler.ReconcileClaim(req, settleTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.Absorbed != "unknown lottery" {
		t.Errorf("absorbed = %q", out.Absorbed)
	}
}

// ============================================================================
// Test: ReconcileRefundDrain
// ============================================================================

func drainReq(poolID string) *event.RemoteRefundDrain {
	return &event.RemoteRefundDrain{
		RequestID: uuid.New(),
		Origin:    "domain-a",
		Sender:    "alice",
		PoolID:    poolID,
	}
}

func TestReconcileRefundDrain(t *testing.T) {
	f := newFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 100},
	})
	f.reconciler.AddFeeBudget(50)
	f.refunds.Credit("USDC", "alice", 1_250)

	out, err := f.reconciler.ReconcileRefundDrain(drainReq("pool-1"))
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if out.Drained != 1_250 || out.Sent != 1_200 {
		t.Errorf("outcome = %+v, want drained 1250 sent 1200", out)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 0 {
		t.Errorf("credit after drain = %d, want 0", got)
	}

	// A second drain finds no credit.
	out, err = f.reconciler.ReconcileRefundDrain(drainReq("pool-1"))
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if out.Absorbed != "no credit" {
		t.Errorf("absorbed = %q, want no credit", out.Absorbed)
	}
}

func TestReconcileRefundDrain_SendFailureRecredits(t *testing.T) {
	f := newFixture(t, map[string]remote.PoolInfo{
		"pool-1": {Asset: "USDC", PoolAddress: "pooladdr", ConversionRate: 1},
	})
	f.reconciler.AddFeeBudget(50)
	f.refunds.Credit("USDC", "alice", 500)
	f.transport.sendErr = errors.New("relay down")

	out, err := f.reconciler.ReconcileRefundDrain(drainReq("pool-1"))
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if out.Drained != 500 || out.Sent != 0 {
		t.Errorf("outcome = %+v, want drained 500 sent 0", out)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 500 {
		t.Errorf("credit = %d, want re-credited 500", got)
	}
}

func TestReconcileRefundDrain_UnresolvablePoolKeepsCredit(t *testing.T) {
	f := newFixture(t, nil)
	f.refunds.Credit("USDC", "alice", 500)

	out, err := f.reconciler.ReconcileRefundDrain(drainReq("bad-pool"))
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if out.Absorbed != "unresolvable pool" {
		t.Errorf("absorbed = %q", out.Absorbed)
	}
	if got := f.refunds.Balance("USDC", "alice"); got != 500 {
		t.Errorf("credit = %d, want untouched 500", got)
	}
}
