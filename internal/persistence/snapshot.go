package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager stores and loads full-state snapshots for warm restart:
// load the latest snapshot, then replay the event log from its sequence.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of the engine's in-memory state.
type SnapshotData struct {
	Sequence   int64            `json:"sequence"`
	Lotteries  []LotterySnap    `json:"lotteries"`
	Tickets    []TicketSnap     `json:"tickets"`
	Collateral []BalanceSnap    `json:"collateral,omitempty"`
	Refunds    []RefundSnap     `json:"refunds"`
	Fees       map[string]int64 `json:"fees"` // asset -> collected
	Pools      []PoolSnap       `json:"pools"`
	Prices     []PriceSnap      `json:"prices,omitempty"`
	FeeBudget  int64            `json:"fee_budget"`
	DedupKeys  []string         `json:"dedup_keys"`
	CreatedAt  time.Time        `json:"created_at"`
}

// BalanceSnap is one collateral balance, present only for in-process
// collateral deployments.
type BalanceSnap struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// PriceSnap is one recorded oracle tick.
type PriceSnap struct {
	Asset string `json:"asset"`
	Unix  int64  `json:"unix"`
	Price int64  `json:"price"`
}

// LotterySnap is a serializable lottery record.
type LotterySnap struct {
	ID              uint64           `json:"id"`
	AssetID         string           `json:"asset_id"`
	BucketSize      int64            `json:"bucket_size"`
	OpenTime        time.Time        `json:"open_time"`
	CloseTime       time.Time        `json:"close_time"`
	MaturityTime    time.Time        `json:"maturity_time"`
	CollateralAsset string           `json:"collateral_asset"`
	FirstBucket     int64            `json:"first_bucket"`
	BucketPrices    []int64          `json:"bucket_prices"`
	MinTicketPrice  int64            `json:"min_ticket_price"`
	TicketsSold     map[string]int64 `json:"tickets_sold"` // bucket (decimal string) -> count
	Resolved        bool             `json:"resolved"`
	WinningBucket   int64            `json:"winning_bucket"`
	Proceeds        int64            `json:"proceeds"`
}

// TicketSnap is one ticket-ledger position.
type TicketSnap struct {
	Account   string `json:"account"`
	LotteryID uint64 `json:"lottery_id"`
	Bucket    int64  `json:"bucket"`
	Count     int64  `json:"count"`
}

// RefundSnap is one refund-credit balance.
type RefundSnap struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// PoolSnap is one resolved pool entry.
type PoolSnap struct {
	PoolID         string `json:"pool_id"`
	Asset          string `json:"asset"`
	PoolAddress    string `json:"pool_address"`
	ConversionRate int64  `json:"conversion_rate"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $4
	`, uuid.New(), snap.Sequence, data, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent snapshot, or nil on cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Prune deletes all but the newest keep snapshots.
func (sm *SnapshotManager) Prune(ctx context.Context, keep int) error {
	_, err := sm.db.ExecContext(ctx, `
		DELETE FROM event_log.snapshots
		WHERE sequence NOT IN (
			SELECT sequence FROM event_log.snapshots
			ORDER BY sequence DESC
			LIMIT $1
		)
	`, keep)
	return err
}

// LoadEventsFrom loads envelopes from a given sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
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

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.Kind, &e.IdempotencyKey, &e.LotteryID, &e.Payload, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
