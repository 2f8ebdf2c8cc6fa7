package oracle_test

import (
	"errors"
	"testing"
	"time"

	"LottoLedger/internal/oracle"
)

// ============================================================================
// Test: Client window rounding
// ============================================================================

func TestClient_RoundsToWindow(t *testing.T) {
	feed := oracle.NewMemoryFeed()
	boundary := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	feed.Record("BTC", boundary, 6_123_400_000_000)

	c := oracle.NewClient(feed, time.Minute)

	// Lookups up to half a window away land on the recorded tick.
	for _, off := range []time.Duration{0, 10 * time.Second, 29 * time.Second, -25 * time.Second} {
		price, err := c.HistoricalPrice("BTC", boundary.Add(off))
		if err != nil {
			t.Fatalf("offset %s: %v", off, err)
		}
		if price != 6_123_400_000_000 {
			t.Errorf("offset %s: price = %d", off, price)
		}
	}
}

func TestClient_NoPrice(t *testing.T) {
	feed := oracle.NewMemoryFeed()
	c := oracle.NewClient(feed, time.Minute)
	_, err := c.HistoricalPrice("BTC", time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	if !errors.Is(err, oracle.ErrNoPrice) {
		t.Errorf("got %v, want ErrNoPrice", err)
	}
}

func TestClient_DistantTickNotFound(t *testing.T) {
	feed := oracle.NewMemoryFeed()
	boundary := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	feed.Record("BTC", boundary, 100)

	c := oracle.NewClient(feed, time.Minute)
	// Rounds to 12:31, where nothing was recorded.
	if _, err := c.HistoricalPrice("BTC", boundary.Add(45*time.Second)); !errors.Is(err, oracle.ErrNoPrice) {
		t.Errorf("got %v, want ErrNoPrice", err)
	}
}

func TestClient_DefaultWindow(t *testing.T) {
	feed := oracle.NewMemoryFeed()
	boundary := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	feed.Record("BTC", boundary, 100)

	// Non-positive window falls back to one minute.
	c := oracle.NewClient(feed, 0)
	price, err := c.HistoricalPrice("BTC", boundary.Add(5*time.Second))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if price != 100 {
		t.Errorf("price = %d, want 100", price)
	}
}

// ============================================================================
// Test: MemoryFeed snapshot
// ============================================================================

func TestMemoryFeed_SnapshotRestore(t *testing.T) {
	feed := oracle.NewMemoryFeed()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	feed.Record("BTC", t0, 100)
	feed.Record("BTC", t0.Add(time.Minute), 110)
	feed.Record("ETH", t0, 7)

	snap := feed.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d ticks, want 3", len(snap))
	}

	fresh := oracle.NewMemoryFeed()
	fresh.Restore(snap)
	for _, tc := range []struct {
		asset string
		ts    time.Time
		want  int64
	}{
		{"BTC", t0, 100},
		{"BTC", t0.Add(time.Minute), 110},
		{"ETH", t0, 7},
	} {
		price, err := fresh.HistoricalPrice(tc.asset, tc.ts)
		if err != nil {
			t.Fatalf("%s at %s: %v", tc.asset, tc.ts, err)
		}
		if price != tc.want {
			t.Errorf("%s at %s: price = %d, want %d", tc.asset, tc.ts, price, tc.want)
		}
	}
}

func TestMemoryFeed_RecordOverwrites(t *testing.T) {
	feed := oracle.NewMemoryFeed()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	feed.Record("BTC", t0, 100)
	feed.Record("BTC", t0, 200)

	price, err := feed.HistoricalPrice("BTC", t0)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if price != 200 {
		t.Errorf("price = %d, want latest 200", price)
	}
}
