package provider

import (
    "time"
)

// Window is a period token resolved to an absolute date range.
type Window struct {
    From time.Time
    To   time.Time
}

// Period tokens accepted by every adapter.
var periodTokens = map[string]bool{
    "1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
    "1y": true, "2y": true, "5y": true, "ytd": true, "max": true,
}

// Interval tokens accepted by every adapter. Individual vendors may reject
// a subset (e.g. Tiingo has no intraday bars on the EOD endpoint).
var intervalTokens = map[string]bool{
    "1m": true, "5m": true, "15m": true, "30m": true,
    "1h": true, "1d": true, "1wk": true, "1mo": true,
}

// ValidTokens validates both tokens, returning a ValidationError for the
// first bad one. Adapters call this before touching the network or cache.
func ValidTokens(period, interval string) error {
    if !periodTokens[period] {
        return &ValidationError{Field: "period", Value: period}
    }
    if !intervalTokens[interval] {
        return &ValidationError{Field: "interval", Value: interval}
    }
    return nil
}

// ResolveWindow converts a period token to an absolute [from, to] range
// anchored at now. "max" resolves to a 30-year lookback, which predates
// every vendor's coverage.
func ResolveWindow(period string, now time.Time) (Window, error) {
    if !periodTokens[period] {
        return Window{}, &ValidationError{Field: "period", Value: period}
    }
    to := now
    var from time.Time
    switch period {
    case "1d":
        from = to.AddDate(0, 0, -1)
    case "5d":
        from = to.AddDate(0, 0, -7) // pad over a weekend
    case "1mo":
        from = to.AddDate(0, -1, 0)
    case "3mo":
        from = to.AddDate(0, -3, 0)
    case "6mo":
        from = to.AddDate(0, -6, 0)
    case "1y":
        from = to.AddDate(-1, 0, 0)
    case "2y":
        from = to.AddDate(-2, 0, 0)
    case "5y":
        from = to.AddDate(-5, 0, 0)
    case "ytd":
        from = time.Date(to.Year(), time.January, 1, 0, 0, 0, 0, to.Location())
    case "max":
        from = to.AddDate(-30, 0, 0)
    }
    return Window{From: from, To: to}, nil
}
