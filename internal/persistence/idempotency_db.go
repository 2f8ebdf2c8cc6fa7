package persistence

import (
	"context"
	"database/sql"
	"time"

	"LottoLedger/internal/event"
)

// PostgresDedupChecker is the cold-path dedup lookup against the event log.
type PostgresDedupChecker struct {
	db *sql.DB
}

func NewPostgresDedupChecker(db *sql.DB) *PostgresDedupChecker {
	return &PostgresDedupChecker{db: db}
}

// Seen reports whether a request with this key was already written.
func (pc *PostgresDedupChecker) Seen(kind event.Kind, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM event_log.events
        WHERE kind = $1 AND idempotency_key = $2
        LIMIT 1
    `

	var exists int
	err := pc.db.QueryRowContext(ctx, query, kind.String(), idempotencyKey).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentKeys loads the newest composite keys for warming the in-memory LRU
// on restart.
func (pc *PostgresDedupChecker) RecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := pc.db.QueryContext(ctx, `
		SELECT kind || ':' || idempotency_key
		FROM event_log.events
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
