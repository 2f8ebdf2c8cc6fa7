package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"LottoLedger/internal/event"
	"LottoLedger/internal/observability"

	"github.com/rs/zerolog"
)

// ProjectionOutput carries the read-model rows for one applied operation.
// The orchestrator bridges between engine.Output and this.
type ProjectionOutput struct {
	Sequence  int64
	Lotteries []event.LotteryState
	Sold      []event.SoldCount
	Refunds   []event.RefundBalance
	Fees      []event.FeeBalance
}

// ProjectionWorker upserts read-model tables from applied operations. Its
// input channel is fed with non-blocking sends, so it may miss outputs under
// load; Rebuild recovers by replaying the event log's state rows.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics, log zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		log:       log,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				// Projections are eventually consistent; a missed update is
				// recovered by rebuild, not by stalling the loop.
				pw.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
				continue
			}

			pw.lastSeq = output.Sequence
			if pw.metrics != nil {
				pw.metrics.ProjectionWatermark.Set(float64(pw.lastSeq))
			}
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, l := range output.Lotteries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.lotteries
				(id, asset_id, collateral_asset, bucket_size, open_time, close_time,
				 maturity_time, min_ticket_price, resolved, winning_bucket, proceeds, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				min_ticket_price = EXCLUDED.min_ticket_price,
				resolved         = EXCLUDED.resolved,
				winning_bucket   = EXCLUDED.winning_bucket,
				proceeds         = EXCLUDED.proceeds,
				last_sequence    = EXCLUDED.last_sequence
			WHERE projections.lotteries.last_sequence < EXCLUDED.last_sequence
		`, l.ID, l.AssetID, l.CollateralAsset, l.BucketSize, l.OpenTime, l.CloseTime,
			l.MaturityTime, l.MinTicketPrice, l.Resolved, l.WinningBucket, l.Proceeds, output.Sequence,
		); err != nil {
			return fmt.Errorf("upsert lottery %d: %w", l.ID, err)
		}
	}

	for _, s := range output.Sold {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.tickets_sold (lottery_id, bucket, count, last_sequence)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (lottery_id, bucket) DO UPDATE SET
				count = EXCLUDED.count, last_sequence = EXCLUDED.last_sequence
			WHERE projections.tickets_sold.last_sequence < EXCLUDED.last_sequence
		`, s.LotteryID, s.Bucket, s.Count, output.Sequence); err != nil {
			return fmt.Errorf("upsert tickets_sold %d/%d: %w", s.LotteryID, s.Bucket, err)
		}
	}

	for _, r := range output.Refunds {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.refund_credits (asset, account, amount, last_sequence)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (asset, account) DO UPDATE SET
				amount = EXCLUDED.amount, last_sequence = EXCLUDED.last_sequence
			WHERE projections.refund_credits.last_sequence < EXCLUDED.last_sequence
		`, r.Asset, r.Account, r.Amount, output.Sequence); err != nil {
			return fmt.Errorf("upsert refund_credit %s/%s: %w", r.Asset, r.Account, err)
		}
	}

	for _, f := range output.Fees {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.fees (asset, collected, last_sequence)
			VALUES ($1, $2, $3)
			ON CONFLICT (asset) DO UPDATE SET
				collected = EXCLUDED.collected, last_sequence = EXCLUDED.last_sequence
			WHERE projections.fees.last_sequence < EXCLUDED.last_sequence
		`, f.Asset, f.Collected, output.Sequence); err != nil {
			return fmt.Errorf("upsert fees %s: %w", f.Asset, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET
			sequence = GREATEST(projections.watermark.sequence, EXCLUDED.sequence),
			updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues("all").Observe(time.Since(start).Seconds())
	}
	return nil
}

// LastSequence returns the highest sequence applied by this worker.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

// Truncate clears all projection tables ahead of a rebuild.
func Truncate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.lotteries`,
		`TRUNCATE projections.tickets_sold`,
		`TRUNCATE projections.refund_credits`,
		`TRUNCATE projections.fees`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}
	return nil
}
