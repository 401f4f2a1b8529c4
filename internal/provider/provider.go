package provider

import (
    "context"

    "marketdata/internal/bars"
)

// UniverseType selects a symbol universe an adapter can serve.
type UniverseType string

const (
    UniverseDefault    UniverseType = "default"     // small hard-coded set of majors
    UniverseSP500      UniverseType = "sp500"       // index membership, where the vendor exposes it
    UniverseMostActive UniverseType = "most_active" // highest-volume names
    UniverseAll        UniverseType = "all"         // vendor's full tradable list
)

// Adapter is the uniform contract every vendor implementation satisfies.
// GetHistoricalData returns a canonical dataset covering the tickers that
// could be fetched; per-ticker failures are logged and skipped, never fatal
// to the batch. The dataset is empty but non-nil when nothing succeeded.
type Adapter interface {
    Name() string
    GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error)
    GetStockUniverse(ctx context.Context, universe UniverseType) ([]string, error)
}

// MarketClock is an optional adapter capability. Vendors with a status
// endpoint answer from it; the rest fall back to the exchange calendar.
type MarketClock interface {
    IsMarketOpen(ctx context.Context) (bool, error)
}

// DefaultUniverse is the built-in symbol list served for UniverseDefault and
// substituted, with a warning, when a universe fetch fails and the adapter
// is configured to fail open.
var DefaultUniverse = []string{
    "AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK.B",
    "JPM", "V", "UNH", "JNJ", "WMT", "XOM", "PG", "HD", "MA", "BAC",
    "KO", "PFE",
}

// FallbackUniverse returns a copy of DefaultUniverse so callers can't
// mutate the shared list.
func FallbackUniverse() []string {
    out := make([]string, len(DefaultUniverse))
    copy(out, DefaultUniverse)
    return out
}
