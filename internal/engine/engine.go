package engine

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"LottoLedger/internal/event"
	"LottoLedger/internal/ledger"
	"LottoLedger/internal/lottery"
	"LottoLedger/internal/observability"
	"LottoLedger/internal/oracle"
	"LottoLedger/internal/remote"

	"github.com/google/uuid"
)

// Engine is the single-writer settlement core. Every mutating operation
// runs under the write lock, so handlers never see torn state; readers take
// the read lock against cloned snapshots.
type Engine struct {
	mu sync.RWMutex

	// Goroutine id of the writer currently holding mu, 0 when free. A
	// collaborator calling back into a mutating operation would deadlock
	// silently on the mutex; tracking the holder turns that into a loud
	// panic.
	holder atomic.Int64

	sequence int64

	store      *lottery.Store
	tickets    *ledger.MemoryTicketLedger
	collateral ledger.Collateral
	fees       *ledger.FeePot
	resolver   *lottery.Resolver
	claims     *lottery.ClaimProcessor
	refunds    *remote.RefundLedger
	pools      *remote.PoolCache
	reconciler *remote.Reconciler
	feed       *oracle.MemoryFeed
	deduper    *Deduper
	metrics    *observability.Metrics

	// Internal account holding all lottery collateral
	poolAccount  string
	oracleWindow time.Duration

	// Set while the event log is being replayed at boot: dedup checks stay
	// in-memory (the log rows being replayed would read as duplicates) and
	// each applied event re-lands on the persist channel, where the
	// sequence conflict makes the insert a no-op.
	replaying bool

	persistChan    chan<- Output
	projectionChan chan<- Output
}

// Output carries one applied operation to the persistence and projection
// workers: the envelope for the event log plus the post-operation read-model
// rows so projections never re-derive engine state.
type Output struct {
	Envelope  *event.Envelope
	Lotteries []*event.LotteryState
	Sold      []event.SoldCount
	Refunds   []event.RefundBalance
	Fees      []event.FeeBalance
}

// BucketOrder is one line of a multi-bucket purchase.
type BucketOrder struct {
	Bucket int64 `json:"bucket"`
	Count  int64 `json:"count"`
}

type Config struct {
	StartSequence int64
	PoolAccount   string
	DedupCapacity int

	// Rounding window for recorded oracle ticks; must match the oracle
	// client's accuracy window. Defaults to one minute.
	OracleWindow time.Duration
}

func New(
	cfg Config,
	store *lottery.Store,
	tickets *ledger.MemoryTicketLedger,
	collateral ledger.Collateral,
	fees *ledger.FeePot,
	resolver *lottery.Resolver,
	claims *lottery.ClaimProcessor,
	refunds *remote.RefundLedger,
	pools *remote.PoolCache,
	reconciler *remote.Reconciler,
	feed *oracle.MemoryFeed,
	dbChecker DBDedupChecker,
	metrics *observability.Metrics,
	persistChan, projectionChan chan<- Output,
) *Engine {
	capacity := cfg.DedupCapacity
	if capacity <= 0 {
		capacity = 1_000_000
	}
	window := cfg.OracleWindow
	if window <= 0 {
		window = time.Minute
	}
	return &Engine{
		sequence:       cfg.StartSequence,
		store:          store,
		tickets:        tickets,
		collateral:     collateral,
		fees:           fees,
		resolver:       resolver,
		claims:         claims,
		refunds:        refunds,
		pools:          pools,
		reconciler:     reconciler,
		feed:           feed,
		deduper:        NewDeduper(capacity, dbChecker),
		metrics:        metrics,
		poolAccount:    cfg.PoolAccount,
		oracleWindow:   window,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

func (e *Engine) begin() {
	id := goid()
	if !e.mu.TryLock() {
		if e.holder.Load() == id {
			panic("engine: re-entrant mutating call")
		}
		e.mu.Lock()
	}
	e.holder.Store(id)
}

func (e *Engine) end() {
	e.holder.Store(0)
	e.mu.Unlock()
}

// goid parses the current goroutine id from the stack header. The only load
// it bears is telling "blocked on another writer" apart from "blocked on
// myself" in begin.
func goid() int64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// --- Lottery lifecycle ---

// CreateLottery registers a new lottery and returns its id.
func (e *Engine) CreateLottery(params lottery.Params, now time.Time) (uint64, error) {
	e.begin()
	defer e.end()
	start := time.Now()

	id, err := e.store.Create(params, now)
	if err != nil {
		e.reject(event.KindCreateLottery, "validation")
		return 0, err
	}

	e.emit(Output{
		Envelope:  e.envelope(event.KindCreateLottery, uuid.NewString(), id, now, params),
		Lotteries: e.lotteryRows(id),
	}, start)
	return id, nil
}

// SetTicketPrices installs or overwrites the price table for one lottery.
func (e *Engine) SetTicketPrices(id uint64, firstBucket int64, prices []int64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if err := e.store.SetPrices(id, firstBucket, prices, now); err != nil {
		e.reject(event.KindSetPrices, "validation")
		return err
	}

	payload := setPricesPayload{FirstBucket: firstBucket, Prices: prices}

	e.emit(Output{
		Envelope:  e.envelope(event.KindSetPrices, uuid.NewString(), id, now, payload),
		Lotteries: e.lotteryRows(id),
	}, start)
	return nil
}

// BuyTickets sells count tickets at one bucket to a local buyer. Collateral
// moves buyer -> pool before any bookkeeping; a failed transfer leaves the
// lottery untouched.
func (e *Engine) BuyTickets(buyer string, id uint64, bucket, count int64, now time.Time) (int64, error) {
	e.begin()
	defer e.end()
	start := time.Now()

	cost, err := e.buyOne(buyer, id, bucket, count, now)
	if err != nil {
		e.reject(event.KindPurchase, "validation")
		return 0, err
	}

	payload := purchasePayload{Buyer: buyer, Bucket: bucket, Count: count, Cost: cost}

	e.emit(Output{
		Envelope:  e.envelope(event.KindPurchase, uuid.NewString(), id, now, payload),
		Lotteries: e.lotteryRows(id),
		Sold:      e.soldRows(id, bucket),
	}, start)
	return cost, nil
}

func (e *Engine) buyOne(buyer string, id uint64, bucket, count int64, now time.Time) (int64, error) {
	lot, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}
	if !lot.OpenAt(now) {
		return 0, lottery.ErrLotteryNotOpen
	}

	cost, err := lottery.Quote(lot, bucket, count)
	if err != nil {
		return 0, err
	}

	if err := ledger.CheckedTransferFrom(e.collateral, lot.Params.CollateralAsset, buyer, e.poolAccount, cost); err != nil {
		return 0, err
	}
	if err := e.store.RecordSale(id, bucket, count, cost); err != nil {
		return 0, err
	}
	if err := e.tickets.Mint(buyer, id, bucket, count); err != nil {
		return 0, err
	}
	return cost, nil
}

// BuyMultipleTickets sells tickets across several buckets as one purchase:
// all orders are quoted first, a single collateral transfer covers the total,
// then every order is recorded. Any failed quote rejects the whole purchase.
func (e *Engine) BuyMultipleTickets(buyer string, id uint64, orders []BucketOrder, now time.Time) (int64, error) {
	e.begin()
	defer e.end()
	start := time.Now()

	total, err := e.buyMany(buyer, id, orders, now)
	if err != nil {
		e.reject(event.KindPurchase, "validation")
		return 0, err
	}

	payload := multiPurchasePayload{Buyer: buyer, Orders: orders, Total: total}

	buckets := make([]int64, len(orders))
	for i, o := range orders {
		buckets[i] = o.Bucket
	}

	e.emit(Output{
		Envelope:  e.envelope(event.KindPurchase, uuid.NewString(), id, now, payload),
		Lotteries: e.lotteryRows(id),
		Sold:      e.soldRows(id, buckets...),
	}, start)
	return total, nil
}

func (e *Engine) buyMany(buyer string, id uint64, orders []BucketOrder, now time.Time) (int64, error) {
	if len(orders) == 0 {
		return 0, lottery.ErrZeroCount
	}

	lot, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}
	if !lot.OpenAt(now) {
		return 0, lottery.ErrLotteryNotOpen
	}

	var total int64
	costs := make([]int64, len(orders))
	for i, o := range orders {
		cost, err := lottery.Quote(lot, o.Bucket, o.Count)
		if err != nil {
			return 0, fmt.Errorf("bucket %d: %w", o.Bucket, err)
		}
		costs[i] = cost
		total += cost
		if total < 0 {
			return 0, lottery.ErrAmountOverflow
		}
	}

	if err := ledger.CheckedTransferFrom(e.collateral, lot.Params.CollateralAsset, buyer, e.poolAccount, total); err != nil {
		return 0, err
	}
	for i, o := range orders {
		if err := e.store.RecordSale(id, o.Bucket, o.Count, costs[i]); err != nil {
			return 0, err
		}
		if err := e.tickets.Mint(buyer, id, o.Bucket, o.Count); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ResolveLottery fixes the winning bucket from the oracle price at maturity
// and charges the protocol fee. Fails on a second call.
func (e *Engine) ResolveLottery(id uint64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if err := e.resolver.Resolve(id, now); err != nil {
		e.reject(event.KindResolve, "validation")
		return err
	}

	lot, _ := e.store.Snapshot(id)
	payload := resolvePayload{WinningBucket: lot.WinningBucket, Proceeds: lot.Proceeds}
	e.emit(Output{
		Envelope:  e.envelope(event.KindResolve, uuid.NewString(), id, now, payload),
		Lotteries: e.lotteryRows(id),
		Fees:      []event.FeeBalance{{Asset: lot.Params.CollateralAsset, Collected: e.fees.Collected(lot.Params.CollateralAsset)}},
	}, start)
	return nil
}

// Claim settles the claimant's winnings across several lotteries. Lotteries
// where the claimant holds no winning tickets are skipped; any hard failure
// aborts the batch with earlier payouts already final, and those payouts
// are logged so the event log never lags externally-observed effects.
func (e *Engine) Claim(claimant string, ids []uint64, now time.Time) (int64, error) {
	e.begin()
	defer e.end()
	start := time.Now()

	var total int64
	settled := make([]uint64, 0, len(ids))
	for _, id := range ids {
		paid, held, err := e.claims.ClaimFor(id, claimant, now, e.localPayout)
		if err != nil {
			e.reject(event.KindClaim, "validation")
			if len(settled) > 0 {
				payload := claimPayload{Claimant: claimant, Lotteries: settled, Paid: total}
				e.emit(Output{
					Envelope:  e.envelope(event.KindClaim, uuid.NewString(), 0, now, payload),
					Lotteries: e.lotteryRowsFor(settled),
				}, start)
			}
			return total, fmt.Errorf("lottery %d: %w", id, err)
		}
		if held > 0 {
			settled = append(settled, id)
		}
		total += paid
	}

	payload := claimPayload{Claimant: claimant, Lotteries: ids, Paid: total}

	e.emit(Output{
		Envelope:  e.envelope(event.KindClaim, uuid.NewString(), 0, now, payload),
		Lotteries: e.lotteryRowsFor(ids),
	}, start)
	return total, nil
}

// ClaimOne settles one lottery and, unlike the batch form, reports
// ErrNoWinningTickets when the claimant holds nothing at the winning bucket.
func (e *Engine) ClaimOne(claimant string, id uint64, now time.Time) (int64, error) {
	e.begin()
	defer e.end()
	start := time.Now()

	paid, held, err := e.claims.ClaimFor(id, claimant, now, e.localPayout)
	if err != nil {
		e.reject(event.KindClaim, "validation")
		return 0, err
	}
	if held == 0 {
		e.reject(event.KindClaim, "no_winning_tickets")
		return 0, lottery.ErrNoWinningTickets
	}

	payload := claimOnePayload{Claimant: claimant, Tickets: held, Paid: paid}

	e.emit(Output{
		Envelope:  e.envelope(event.KindClaim, uuid.NewString(), id, now, payload),
		Lotteries: e.lotteryRows(id),
	}, start)
	return paid, nil
}

func (e *Engine) localPayout(asset, account string, amount int64) error {
	return e.collateral.Transfer(asset, e.poolAccount, account, amount)
}

// TransferProceeds rolls an unwon pool forward into an open lottery.
func (e *Engine) TransferProceeds(prevID, fwdID uint64, now time.Time) (int64, error) {
	e.begin()
	defer e.end()
	start := time.Now()

	moved, err := e.resolver.TransferProceeds(prevID, fwdID, now)
	if err != nil {
		e.reject(event.KindTransferProceeds, "validation")
		return 0, err
	}

	payload := transferProceedsPayload{From: prevID, To: fwdID, Moved: moved}

	e.emit(Output{
		Envelope:  e.envelope(event.KindTransferProceeds, uuid.NewString(), prevID, now, payload),
		Lotteries: e.lotteryRowsFor([]uint64{prevID, fwdID}),
	}, start)
	return moved, nil
}

// AddProceeds tops up an unresolved lottery's pool from a local account.
func (e *Engine) AddProceeds(from string, id uint64, amount int64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if amount <= 0 {
		e.reject(event.KindAddProceeds, "validation")
		return lottery.ErrInvalidParams
	}
	lot, err := e.store.Get(id)
	if err != nil {
		e.reject(event.KindAddProceeds, "validation")
		return err
	}
	if err := ledger.CheckedTransferFrom(e.collateral, lot.Params.CollateralAsset, from, e.poolAccount, amount); err != nil {
		e.reject(event.KindAddProceeds, "validation")
		return err
	}
	if err := e.store.AddProceeds(id, amount); err != nil {
		// Funds already in the pool account; hand them back as a refund
		// credit rather than failing with the collateral stranded. The
		// movement is logged so replay reproduces the credit.
		e.refunds.Credit(lot.Params.CollateralAsset, from, amount)
		e.reject(event.KindAddProceeds, "validation")
		e.emit(Output{
			Envelope: e.envelope(event.KindAddProceeds, uuid.NewString(), id, now,
				addProceedsPayload{From: from, Amount: amount, Refunded: amount}),
			Refunds: e.refundRows(lot.Params.CollateralAsset, from),
		}, start)
		return err
	}

	payload := addProceedsPayload{From: from, Amount: amount}

	e.emit(Output{
		Envelope:  e.envelope(event.KindAddProceeds, uuid.NewString(), id, now, payload),
		Lotteries: e.lotteryRows(id),
	}, start)
	return nil
}

// WithdrawFees pays collected protocol fees out to a local account.
func (e *Engine) WithdrawFees(asset, to string, amount int64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if err := e.fees.Withdraw(asset, amount); err != nil {
		e.reject(event.KindWithdrawFees, "validation")
		return err
	}
	if err := e.collateral.Transfer(asset, e.poolAccount, to, amount); err != nil {
		// Put the fee back; the pot and the pool account must stay in step.
		e.fees.Credit(asset, amount)
		e.reject(event.KindWithdrawFees, "validation")
		return err
	}

	payload := withdrawFeesPayload{Asset: asset, To: to, Amount: amount}

	e.emit(Output{
		Envelope: e.envelope(event.KindWithdrawFees, uuid.NewString(), 0, now, payload),
		Fees:     []event.FeeBalance{{Asset: asset, Collected: e.fees.Collected(asset)}},
	}, start)
	return nil
}

// FundRemoteFeeBudget credits the interchain fee budget. The native fee
// denomination arrives out of band, so no collateral moves here.
func (e *Engine) FundRemoteFeeBudget(amount int64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if amount <= 0 {
		e.reject(event.KindFundFeeBudget, "validation")
		return lottery.ErrInvalidParams
	}
	e.reconciler.AddFeeBudget(amount)
	if e.metrics != nil {
		e.metrics.OutboundFeeBudget.Set(float64(e.reconciler.FeeBudget()))
	}

	payload := fundFeeBudgetPayload{Amount: amount, Budget: e.reconciler.FeeBudget()}

	e.emit(Output{
		Envelope: e.envelope(event.KindFundFeeBudget, uuid.NewString(), 0, now, payload),
	}, start)
	return nil
}

// Deposit credits new collateral into a local account. Only available when
// the collateral implementation exposes a deposit boundary; an adapter over
// an external balance store handles deposits upstream and never sees this.
func (e *Engine) Deposit(asset, account string, amount int64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if asset == "" || account == "" || amount <= 0 {
		e.reject(event.KindDeposit, "validation")
		return lottery.ErrInvalidParams
	}
	dep, ok := e.collateral.(ledger.Depositor)
	if !ok {
		e.reject(event.KindDeposit, "unsupported")
		return fmt.Errorf("collateral store does not accept deposits")
	}
	dep.Credit(asset, account, amount)

	payload := depositPayload{Asset: asset, Account: account, Amount: amount}
	e.emit(Output{
		Envelope: e.envelope(event.KindDeposit, uuid.NewString(), 0, now, payload),
	}, start)
	return nil
}

// RecordPrice stores one oracle tick, rounded to the oracle accuracy window.
// Recording flows through the engine so ticks land in the event log and
// resolution replays deterministically.
func (e *Engine) RecordPrice(asset string, ts time.Time, price int64, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	if asset == "" || price <= 0 {
		e.reject(event.KindRecordPrice, "validation")
		return lottery.ErrInvalidParams
	}
	if e.feed == nil {
		e.reject(event.KindRecordPrice, "unsupported")
		return fmt.Errorf("no recordable price feed configured")
	}
	rounded := ts.Round(e.oracleWindow)
	e.feed.Record(asset, rounded, price)

	payload := recordPricePayload{Asset: asset, Unix: rounded.Unix(), Price: price}
	e.emit(Output{
		Envelope: e.envelope(event.KindRecordPrice, uuid.NewString(), 0, now, payload),
	}, start)
	return nil
}

// --- Remote requests ---

// HandleRemotePurchase applies one at-least-once remote purchase. Redelivered
// duplicates are dropped; business failures become refund credits inside the
// reconciler, so a nil return always means "safe to ack".
func (e *Engine) HandleRemotePurchase(req *event.RemotePurchase, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	kind, key := req.RequestKind(), req.IdempotencyKey()
	dup, err := e.isDuplicate(kind, key)
	if err != nil {
		return err
	}
	if dup {
		e.reject(kind, "duplicate")
		return nil
	}

	outcome, err := e.reconciler.ReconcilePurchase(req, now)
	if err != nil {
		return err
	}
	e.countRemote(kind, outcome.Applied, outcome.Reason)

	payload := remotePurchasePayload{Request: req, Outcome: outcome}
	out := Output{
		Envelope: e.envelope(kind, key, req.LotteryID, now, payload),
	}
	if outcome.Applied {
		out.Lotteries = e.lotteryRows(req.LotteryID)
		out.Sold = e.soldRows(req.LotteryID, req.Bucket)
	}
	if outcome.Refunded > 0 {
		out.Refunds = e.refundRows(req.EscrowAsset, req.Receiver)
	}
	e.emit(out, start)
	e.deduper.MarkApplied(kind, key)
	return nil
}

// HandleRemoteDispatch applies a remote claim or refund drain.
func (e *Engine) HandleRemoteDispatch(req event.Request, now time.Time) error {
	e.begin()
	defer e.end()
	start := time.Now()

	kind, key := req.RequestKind(), req.IdempotencyKey()
	dup, err := e.isDuplicate(kind, key)
	if err != nil {
		return err
	}
	if dup {
		e.reject(kind, "duplicate")
		return nil
	}

	var (
		outcome remote.DispatchOutcome
		account string
		payload remoteDispatchPayload
	)
	switch r := req.(type) {
	case *event.RemoteClaim:
		outcome, err = e.reconciler.ReconcileClaim(r, now)
		account = r.Sender
		payload.Claim = r
	case *event.RemoteRefundDrain:
		outcome, err = e.reconciler.ReconcileRefundDrain(r)
		account = r.Sender
		payload.Drain = r
	default:
		return fmt.Errorf("unknown remote request type %T", req)
	}
	if err != nil {
		return err
	}
	payload.Outcome = outcome
	e.countRemote(kind, outcome.Absorbed == "", outcome.Absorbed)
	if e.metrics != nil {
		e.metrics.OutboundFeeBudget.Set(float64(e.reconciler.FeeBudget()))
	}

	out := Output{
		Envelope: e.envelope(kind, key, req.Lottery(), now, payload),
	}
	if id := req.Lottery(); id != 0 && outcome.Absorbed == "" {
		out.Lotteries = e.lotteryRows(id)
	}
	if outcome.Asset != "" {
		out.Refunds = e.refundRows(outcome.Asset, account)
	}
	e.emit(out, start)
	e.deduper.MarkApplied(kind, key)
	return nil
}

// --- Readers ---

// GetLottery returns a deep copy safe for concurrent use.
func (e *Engine) GetLottery(id uint64) (*lottery.Lottery, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Snapshot(id)
}

func (e *Engine) LastLotteryID() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.LastID()
}

func (e *Engine) TicketsSoldCount(id uint64, bucket int64) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lot, err := e.store.Get(id)
	if err != nil {
		return 0, err
	}
	return lot.SoldAt(bucket), nil
}

func (e *Engine) TicketBalance(account string, id uint64, bucket int64) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tickets.Balance(account, id, bucket)
}

func (e *Engine) RefundCreditOf(asset, account string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refunds.Balance(asset, account)
}

func (e *Engine) FeesCollected(asset string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fees.Collected(asset)
}

func (e *Engine) RemoteFeeBudget() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reconciler.FeeBudget()
}

func (e *Engine) Sequence() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sequence
}

// --- Snapshot & restore ---

// SnapshotState is the full serializable in-memory state. Collateral and
// Prices are populated only when the respective collaborators are the
// in-process implementations; external stores keep their own durability.
type SnapshotState struct {
	Sequence   int64
	Lotteries  []*lottery.Lottery
	Tickets    map[ledger.PositionKey]int64
	Collateral map[ledger.BalanceKey]int64
	Refunds    map[remote.RefundKey]int64
	Fees       map[string]int64
	Pools      map[string]remote.PoolInfo
	Prices     []oracle.Tick
	FeeBudget  int64
	DedupKeys  []string
}

// balanceSnapshotter is the optional snapshot surface of a collateral
// implementation. MemoryCollateral satisfies it.
type balanceSnapshotter interface {
	Snapshot() map[ledger.BalanceKey]int64
	Restore(map[ledger.BalanceKey]int64)
}

func (e *Engine) SnapshotState() *SnapshotState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := &SnapshotState{
		Sequence:  e.sequence,
		Lotteries: e.store.All(),
		Tickets:   e.tickets.Snapshot(),
		Refunds:   e.refunds.Snapshot(),
		Fees:      e.fees.Snapshot(),
		Pools:     e.pools.Snapshot(),
		FeeBudget: e.reconciler.FeeBudget(),
		DedupKeys: e.deduper.Keys(),
	}
	if bs, ok := e.collateral.(balanceSnapshotter); ok {
		snap.Collateral = bs.Snapshot()
	}
	if e.feed != nil {
		snap.Prices = e.feed.Snapshot()
	}
	return snap
}

// RestoreFromSnapshot loads state on warm restart, before any event replay.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.begin()
	defer e.end()

	e.sequence = snap.Sequence
	e.store.Restore(snap.Lotteries)
	e.tickets.Restore(snap.Tickets)
	e.refunds.Restore(snap.Refunds)
	e.fees.Restore(snap.Fees)
	e.pools.Restore(snap.Pools)
	e.reconciler.RestoreFeeBudget(snap.FeeBudget)
	e.deduper.Warm(snap.DedupKeys)
	if bs, ok := e.collateral.(balanceSnapshotter); ok && snap.Collateral != nil {
		bs.Restore(snap.Collateral)
	}
	if e.feed != nil && snap.Prices != nil {
		e.feed.Restore(snap.Prices)
	}
}

// --- Emission helpers ---

func (e *Engine) envelope(kind event.Kind, key string, lotteryID uint64, now time.Time, payload interface{}) *event.Envelope {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	return &event.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: key,
		Kind:           kind,
		LotteryID:      lotteryID,
		Timestamp:      now,
		Payload:        body,
	}
}

// emit assigns the sequence and hands the output to the workers. The persist
// send blocks so no applied operation is ever lost; the projection send drops
// on a full channel since read models rebuild from the event log.
func (e *Engine) emit(out Output, start time.Time) {
	e.sequence++

	if e.persistChan != nil {
		e.persistChan <- out
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}
	}

	if e.metrics != nil {
		kind := out.Envelope.Kind.String()
		e.metrics.EngineOpsApplied.WithLabelValues(kind).Inc()
		e.metrics.EngineOpDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
}

func (e *Engine) isDuplicate(kind event.Kind, key string) (bool, error) {
	if e.replaying {
		return e.deduper.IsDuplicateLocal(kind, key), nil
	}
	return e.deduper.IsDuplicate(kind, key)
}

func (e *Engine) reject(kind event.Kind, reason string) {
	if e.metrics != nil {
		e.metrics.EngineOpsRejected.WithLabelValues(kind.String(), reason).Inc()
	}
}

func (e *Engine) countRemote(kind event.Kind, applied bool, reason string) {
	if e.metrics == nil {
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "absorbed"
	}
	e.metrics.RemoteRequests.WithLabelValues(kind.String(), outcome).Inc()
	if !applied && reason != "" {
		e.metrics.RemoteRefundsIssued.WithLabelValues(kind.String()).Inc()
	}
}

func (e *Engine) lotteryRows(ids ...uint64) []*event.LotteryState {
	rows := make([]*event.LotteryState, 0, len(ids))
	for _, id := range ids {
		lot, err := e.store.Snapshot(id)
		if err != nil {
			continue
		}
		rows = append(rows, &event.LotteryState{
			ID:              lot.ID,
			AssetID:         lot.Params.AssetID,
			CollateralAsset: lot.Params.CollateralAsset,
			BucketSize:      lot.Params.BucketSize,
			OpenTime:        lot.Params.OpenTime,
			CloseTime:       lot.Params.CloseTime,
			MaturityTime:    lot.Params.MaturityTime,
			MinTicketPrice:  lot.MinTicketPrice,
			Resolved:        lot.Resolved,
			WinningBucket:   lot.WinningBucket,
			Proceeds:        lot.Proceeds,
		})
	}
	return rows
}

func (e *Engine) lotteryRowsFor(ids []uint64) []*event.LotteryState {
	return e.lotteryRows(ids...)
}

func (e *Engine) soldRows(id uint64, buckets ...int64) []event.SoldCount {
	lot, err := e.store.Get(id)
	if err != nil {
		return nil
	}
	rows := make([]event.SoldCount, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, event.SoldCount{LotteryID: id, Bucket: b, Count: lot.SoldAt(b)})
	}
	return rows
}

func (e *Engine) refundRows(asset, account string) []event.RefundBalance {
	return []event.RefundBalance{{
		Asset:   asset,
		Account: account,
		Amount:  e.refunds.Balance(asset, account),
	}}
}
