package oracle

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoPrice is returned when the feed has no price recorded within the
// accuracy window of the requested timestamp.
var ErrNoPrice = errors.New("no price recorded")

// PriceFeed is the external historical-price oracle. Prices are fixed-point
// int64 at 1e8 scale.
type PriceFeed interface {
	HistoricalPrice(assetID string, ts time.Time) (int64, error)
}

// Client wraps a PriceFeed and normalizes lookup timestamps to the feed's
// accuracy window, so a maturity timestamp a few seconds off a recorded tick
// still resolves. No internal state beyond configuration.
type Client struct {
	feed   PriceFeed
	window time.Duration
}

func NewClient(feed PriceFeed, window time.Duration) *Client {
	if window <= 0 {
		window = time.Minute
	}
	return &Client{feed: feed, window: window}
}

// HistoricalPrice rounds ts to the nearest window boundary and queries the
// feed once.
func (c *Client) HistoricalPrice(assetID string, ts time.Time) (int64, error) {
	rounded := ts.Round(c.window)
	price, err := c.feed.HistoricalPrice(assetID, rounded)
	if err != nil {
		return 0, fmt.Errorf("price %s at %s: %w", assetID, rounded.UTC().Format(time.RFC3339), err)
	}
	return price, nil
}

// MemoryFeed is a PriceFeed backed by explicitly recorded ticks, for tests
// and local runs. Lookups require an exact (already window-rounded) match.
type MemoryFeed struct {
	prices map[string]map[int64]int64 // asset -> unix seconds -> price
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		prices: make(map[string]map[int64]int64),
	}
}

// Record stores a price tick for an asset at ts.
func (m *MemoryFeed) Record(assetID string, ts time.Time, price int64) {
	byTime, ok := m.prices[assetID]
	if !ok {
		byTime = make(map[int64]int64)
		m.prices[assetID] = byTime
	}
	byTime[ts.Unix()] = price
}

func (m *MemoryFeed) HistoricalPrice(assetID string, ts time.Time) (int64, error) {
	price, ok := m.prices[assetID][ts.Unix()]
	if !ok {
		return 0, fmt.Errorf("%w: %s at %s", ErrNoPrice, assetID, ts.UTC().Format(time.RFC3339))
	}
	return price, nil
}

// Tick is one recorded price point, the serializable form of the feed's
// contents.
type Tick struct {
	AssetID string
	Unix    int64
	Price   int64
}

// Snapshot returns every recorded tick.
func (m *MemoryFeed) Snapshot() []Tick {
	var ticks []Tick
	for asset, byTime := range m.prices {
		for unix, price := range byTime {
			ticks = append(ticks, Tick{AssetID: asset, Unix: unix, Price: price})
		}
	}
	return ticks
}

// Restore replaces the feed's contents with the given ticks.
func (m *MemoryFeed) Restore(ticks []Tick) {
	m.prices = make(map[string]map[int64]int64)
	for _, t := range ticks {
		m.Record(t.AssetID, time.Unix(t.Unix, 0), t.Price)
	}
}
