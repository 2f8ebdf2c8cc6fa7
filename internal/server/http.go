package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"LottoLedger/internal/auth"
	"LottoLedger/internal/engine"
	"LottoLedger/internal/ledger"
	"LottoLedger/internal/lottery"
	"LottoLedger/internal/observability"
	"LottoLedger/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the query API (projection-backed, open) and the admin API
// (engine-backed, bearer-token gated) over HTTP.
type Server struct {
	engine  *engine.Engine
	queries *query.QueryService
	authz   auth.Authorizer
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	eng *engine.Engine,
	queries *query.QueryService,
	authz auth.Authorizer,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  eng,
		queries: queries,
		authz:   authz,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/lotteries", s.instrument("list_lotteries", s.handleListLotteries))
		r.Get("/lotteries/{id}", s.instrument("get_lottery", s.handleGetLottery))
		r.Get("/lotteries/{id}/sold", s.instrument("get_sold", s.handleGetSold))
		r.Get("/refunds/{asset}/{account}", s.instrument("get_refund", s.handleGetRefundCredit))
		r.Get("/fees/{asset}", s.instrument("get_fees", s.handleGetFees))
		r.Get("/events", s.instrument("get_events", s.handleGetEvents))

		// Pricing surface: the dedicated pricing principal or an admin.
		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleAdmin, auth.RolePricing))
			r.Post("/lotteries/{id}/prices", s.instrument("set_prices", s.handleSetPrices))
			r.Post("/oracle/prices", s.instrument("record_price", s.handleRecordPrice))
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleAdmin))
			r.Post("/lotteries", s.instrument("create_lottery", s.handleCreateLottery))
			r.Post("/lotteries/{id}/purchase", s.instrument("purchase", s.handlePurchase))
			r.Post("/lotteries/{id}/resolve", s.instrument("resolve", s.handleResolve))
			r.Post("/lotteries/{id}/proceeds", s.instrument("add_proceeds", s.handleAddProceeds))
			r.Post("/lotteries/{id}/transfer/{to}", s.instrument("transfer_proceeds", s.handleTransferProceeds))
			r.Post("/claims", s.instrument("claim", s.handleClaim))
			r.Post("/deposits", s.instrument("deposit", s.handleDeposit))
			r.Post("/fees/withdraw", s.instrument("withdraw_fees", s.handleWithdrawFees))
			r.Post("/feebudget", s.instrument("fund_fee_budget", s.handleFundFeeBudget))
		})
	})

	return r
}

func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := s.authz.Authorize(r)
			if principal == "" {
				writeError(w, http.StatusUnauthorized, "missing or invalid credential")
				return
			}
			for _, role := range roles {
				if principal == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "principal not allowed")
		})
	}
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		h(ww, r)
		if s.metrics != nil {
			s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(ww.Status())).Inc()
			s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

// --- Query handlers ---

func (s *Server) handleListLotteries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.queries.ListLotteries(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLottery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	out, err := s.queries.GetLottery(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSold(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	out, err := s.queries.GetSold(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRefundCredit(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	account := chi.URLParam(r, "account")
	out, err := s.queries.GetRefundCredit(r.Context(), asset, account)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	out, err := s.queries.GetFees(r.Context(), chi.URLParam(r, "asset"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := s.queries.GetEvents(r.Context(), from, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Admin handlers ---

type createLotteryRequest struct {
	AssetID         string    `json:"asset_id"`
	BucketSize      int64     `json:"bucket_size"`
	OpenTime        time.Time `json:"open_time"`
	CloseTime       time.Time `json:"close_time"`
	MaturityTime    time.Time `json:"maturity_time"`
	CollateralAsset string    `json:"collateral_asset"`
}

func (s *Server) handleCreateLottery(w http.ResponseWriter, r *http.Request) {
	var req createLotteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	id, err := s.engine.CreateLottery(lottery.Params{
		AssetID:         req.AssetID,
		BucketSize:      req.BucketSize,
		OpenTime:        req.OpenTime,
		CloseTime:       req.CloseTime,
		MaturityTime:    req.MaturityTime,
		CollateralAsset: req.CollateralAsset,
	}, time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

type setPricesRequest struct {
	FirstBucket int64   `json:"first_bucket"`
	Prices      []int64 `json:"prices"`
}

func (s *Server) handleSetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	var req setPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.engine.SetTicketPrices(id, req.FirstBucket, req.Prices, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type purchaseRequest struct {
	Buyer  string `json:"buyer"`
	Orders []struct {
		Bucket int64 `json:"bucket"`
		Count  int64 `json:"count"`
	} `json:"orders"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	var cost int64
	switch len(req.Orders) {
	case 0:
		writeError(w, http.StatusBadRequest, "no orders")
		return
	case 1:
		cost, err = s.engine.BuyTickets(req.Buyer, id, req.Orders[0].Bucket, req.Orders[0].Count, time.Now())
	default:
		orders := make([]engine.BucketOrder, len(req.Orders))
		for i, o := range req.Orders {
			orders[i] = engine.BucketOrder{Bucket: o.Bucket, Count: o.Count}
		}
		cost, err = s.engine.BuyMultipleTickets(req.Buyer, id, orders, time.Now())
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cost": cost})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	if err := s.engine.ResolveLottery(id, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type addProceedsRequest struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleAddProceeds(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	var req addProceedsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.engine.AddProceeds(req.From, id, req.Amount, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransferProceeds(w http.ResponseWriter, r *http.Request) {
	from, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lottery id")
		return
	}
	to, err := pathID(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid forward lottery id")
		return
	}
	moved, err := s.engine.TransferProceeds(from, to, time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"moved": moved})
}

type claimRequest struct {
	Claimant  string   `json:"claimant"`
	Lotteries []uint64 `json:"lotteries"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	var (
		paid int64
		err  error
	)
	if len(req.Lotteries) == 1 {
		paid, err = s.engine.ClaimOne(req.Claimant, req.Lotteries[0], time.Now())
	} else {
		paid, err = s.engine.Claim(req.Claimant, req.Lotteries, time.Now())
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"paid": paid})
}

type recordPriceRequest struct {
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
	Price     int64     `json:"price"`
}

func (s *Server) handleRecordPrice(w http.ResponseWriter, r *http.Request) {
	var req recordPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.engine.RecordPrice(req.Asset, req.Timestamp, req.Price, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type depositRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.engine.Deposit(req.Asset, req.Account, req.Amount, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type withdrawFeesRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.engine.WithdrawFees(req.Asset, req.To, req.Amount, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fundFeeBudgetRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleFundFeeBudget(w http.ResponseWriter, r *http.Request) {
	var req fundFeeBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := s.engine.FundRemoteFeeBudget(req.Amount, time.Now()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"budget": s.engine.RemoteFeeBudget()})
}

// --- Helpers ---

// fail maps domain sentinels to HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound), errors.Is(err, lottery.ErrUnknownLottery):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lottery.ErrInvalidParams),
		errors.Is(err, lottery.ErrEmptyPriceList),
		errors.Is(err, lottery.ErrMisalignedBucket),
		errors.Is(err, lottery.ErrZeroCount),
		errors.Is(err, lottery.ErrAmountOverflow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lottery.ErrLotteryClosed),
		errors.Is(err, lottery.ErrLotteryNotOpen),
		errors.Is(err, lottery.ErrNotMatured),
		errors.Is(err, lottery.ErrAlreadyResolved),
		errors.Is(err, lottery.ErrClosedForPricing),
		errors.Is(err, lottery.ErrNoWinningTickets),
		errors.Is(err, lottery.ErrCollateralMismatch),
		errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
