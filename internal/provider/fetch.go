package provider

import (
    "context"
    "time"

    log "github.com/sirupsen/logrus"

    "marketdata/internal/bars"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/ratelimit"
)

// Request is one symbol's slice of a batch call: the original tokens plus
// the resolved absolute window. Vendors that take relative ranges natively
// use Period; the rest use Window.
type Request struct {
    Symbol   string
    Period   string
    Interval string
    Window   Window
}

// SymbolFetch retrieves every bar for one symbol of the batch.
// Implementations return the vendor's rows already mapped to canonical Bars;
// they do not retry themselves.
type SymbolFetch func(ctx context.Context, req Request) ([]bars.Bar, error)

// Fetcher is the shared historical-data pipeline: token validation, cache
// lookup, per-symbol retry with failure isolation, inter-batch pauses, and
// dataset assembly. Every adapter's GetHistoricalData delegates here so the
// batch semantics stay identical across vendors.
type Fetcher struct {
    Provider   string
    RetryCount int           // attempts per symbol, default 3
    RetryDelay time.Duration // pause between attempts, default 1s
    BatchSize  int           // symbols per batch before pausing, default 100
    BatchPause time.Duration // pause between batches, default 1s
    History    *cache.History

    // sleep is swapped out by tests.
    sleep func(context.Context, time.Duration) error
}

func NewFetcher(providerName string, history *cache.History) *Fetcher {
    return &Fetcher{
        Provider:   providerName,
        RetryCount: 3,
        RetryDelay: time.Second,
        BatchSize:  100,
        BatchPause: time.Second,
        History:    history,
        sleep:      sleepCtx,
    }
}

// Fetch runs the pipeline. Per-symbol failures are logged and the symbol is
// excluded; the call fails as a whole only on invalid tokens or context
// cancellation. An all-failure batch yields an empty, correctly shaped
// dataset.
func (f *Fetcher) Fetch(ctx context.Context, symbols []string, period, interval string, fn SymbolFetch) (*bars.Dataset, error) {
    if err := ValidTokens(period, interval); err != nil {
        return nil, err
    }
    key := cache.Key(symbols, period, interval)
    build := func() (*bars.Dataset, error) {
        return f.build(ctx, symbols, period, interval, fn)
    }
    if f.History == nil {
        return build()
    }
    return f.History.GetOrFetch(key, build)
}

func (f *Fetcher) build(ctx context.Context, symbols []string, period, interval string, fn SymbolFetch) (*bars.Dataset, error) {
    w, err := ResolveWindow(period, time.Now().UTC())
    if err != nil {
        return nil, err
    }

    ds := bars.New()
    for i, sym := range symbols {
        if err := ctx.Err(); err != nil {
            return nil, err
        }
        if i > 0 && f.BatchSize > 0 && i%f.BatchSize == 0 && f.BatchPause > 0 {
            if err := f.sleep(ctx, f.BatchPause); err != nil {
                return nil, err
            }
        }

        var rows []bars.Bar
        req := Request{Symbol: sym, Period: period, Interval: interval, Window: w}
        err := ratelimit.Do(ctx, f.RetryCount, f.RetryDelay, func() error {
            var ferr error
            rows, ferr = fn(ctx, req)
            return ferr
        })
        if err != nil {
            log.WithFields(log.Fields{
                "provider": f.Provider,
                "symbol":   sym,
                "attempts": f.RetryCount,
            }).WithError(err).Warn("dropping symbol after exhausting retries")
            continue
        }
        for _, b := range rows {
            if b.Close <= 0 {
                // vendors occasionally emit placeholder rows with no close
                continue
            }
            if err := ds.Add(b); err != nil {
                log.WithFields(log.Fields{
                    "provider": f.Provider,
                    "symbol":   sym,
                }).WithError(err).Debug("dropping malformed bar")
            }
        }
    }
    return ds, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
