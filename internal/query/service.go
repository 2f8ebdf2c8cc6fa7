package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to the projection tables. Every
// response carries as_of_sequence, the projection watermark at query time, so
// callers can reason about freshness against the engine's live sequence.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetLottery returns one lottery by id.
func (qs *QueryService) GetLottery(ctx context.Context, id uint64) (*LotteryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var l LotteryResponse
	var winning int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT id, asset_id, collateral_asset, bucket_size, open_time, close_time,
		       maturity_time, min_ticket_price, resolved, winning_bucket, proceeds
		FROM projections.lotteries
		WHERE id = $1
	`, id).Scan(
		&l.ID, &l.AssetID, &l.CollateralAsset, &l.BucketSize, &l.OpenTime, &l.CloseTime,
		&l.MaturityTime, &l.MinTicketPrice, &l.Resolved, &winning, &l.Proceeds,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if l.Resolved {
		l.WinningBucket = &winning
	}
	l.AsOfSequence = asOfSeq
	return &l, nil
}

// ListLotteries returns lotteries in descending id order.
func (qs *QueryService) ListLotteries(ctx context.Context, limit int) ([]LotteryResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT id, asset_id, collateral_asset, bucket_size, open_time, close_time,
		       maturity_time, min_ticket_price, resolved, winning_bucket, proceeds
		FROM projections.lotteries
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LotteryResponse
	for rows.Next() {
		var l LotteryResponse
		var winning int64
		if err := rows.Scan(
			&l.ID, &l.AssetID, &l.CollateralAsset, &l.BucketSize, &l.OpenTime, &l.CloseTime,
			&l.MaturityTime, &l.MinTicketPrice, &l.Resolved, &winning, &l.Proceeds,
		); err != nil {
			return nil, err
		}
		if l.Resolved {
			l.WinningBucket = &winning
		}
		l.AsOfSequence = asOfSeq
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetSold returns tickets sold per bucket for one lottery.
func (qs *QueryService) GetSold(ctx context.Context, lotteryID uint64) ([]SoldResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT lottery_id, bucket, count
		FROM projections.tickets_sold
		WHERE lottery_id = $1 AND count > 0
		ORDER BY bucket
	`, lotteryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SoldResponse
	for rows.Next() {
		var s SoldResponse
		if err := rows.Scan(&s.LotteryID, &s.Bucket, &s.Count); err != nil {
			return nil, err
		}
		s.AsOfSequence = asOfSeq
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRefundCredit returns one account's refund credit in one asset. A missing
// row reads as zero, not as an error.
func (qs *QueryService) GetRefundCredit(ctx context.Context, asset, account string) (*RefundCreditResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &RefundCreditResponse{Asset: asset, Account: account, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT amount FROM projections.refund_credits
		WHERE asset = $1 AND account = $2
	`, asset, account).Scan(&resp.Amount)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return resp, nil
}

// GetFees returns collected protocol fees for one asset.
func (qs *QueryService) GetFees(ctx context.Context, asset string) (*FeeResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &FeeResponse{Asset: asset, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT collected FROM projections.fees
		WHERE asset = $1
	`, asset).Scan(&resp.Collected)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	return resp, nil
}

// GetEvents returns event-log envelopes from a sequence onward.
func (qs *QueryService) GetEvents(ctx context.Context, fromSequence int64, limit int) ([]EventResponse, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, kind, idempotency_key, lottery_id, payload, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventResponse
	for rows.Next() {
		var e EventResponse
		if err := rows.Scan(&e.Sequence, &e.Kind, &e.IdempotencyKey, &e.LotteryID, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := qs.db.QueryRowContext(ctx, `
		SELECT sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}
