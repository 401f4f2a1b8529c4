package alphavantage

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "sort"
    "strconv"
    "time"

    log "github.com/sirupsen/logrus"

    "marketdata/internal/bars"
    "marketdata/internal/httpx"
    "marketdata/internal/marketcal"
    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/ratelimit"
)

//go:generate mockgen -package=alphavantage_test -destination=mock_doer_test.go -source=../../httpx/httpx.go Doer

const ProviderName = "alphavantage"

type Config struct {
    Name           string
    APIKey         string
    BaseURL        string
    CallsPerMinute int
    RetryCount     int
    RetryDelay     time.Duration
    // DisableUniverseFallback propagates universe-fetch errors instead of
    // substituting the built-in major-ticker list.
    DisableUniverseFallback bool
}

// Adapter maps the Alpha Vantage query API onto the canonical dataset.
// The wire shape is a JSON object keyed "Time Series (<interval>)" /
// "Time Series (Daily)" / "Weekly Time Series" / "Monthly Time Series",
// each value a date-string -> {"1. open" ... "5. volume"} map of strings.
type Adapter struct {
    cfg       Config
    client    httpx.Doer
    limiter   *ratelimit.FixedWindow
    fetcher   *provider.Fetcher
    universes *cache.Universe
    cal       *marketcal.Calendar
}

func New(cfg Config, client httpx.Doer) (*Adapter, error) {
    if cfg.APIKey == "" {
        return nil, &provider.CredentialError{Provider: ProviderName, Key: "ALPHA_VANTAGE_API_KEY"}
    }
    if cfg.Name == "" { cfg.Name = ProviderName }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://www.alphavantage.co" }
    if cfg.CallsPerMinute <= 0 { cfg.CallsPerMinute = 5 }
    if cfg.RetryCount <= 0 { cfg.RetryCount = 3 }
    if cfg.RetryDelay <= 0 { cfg.RetryDelay = time.Second }

    cal, err := marketcal.New()
    if err != nil {
        return nil, fmt.Errorf("%s: load calendar: %w", ProviderName, err)
    }

    a := &Adapter{
        cfg:       cfg,
        client:    client,
        limiter:   ratelimit.NewFixedWindow(cfg.CallsPerMinute),
        universes: cache.NewUniverse(),
        cal:       cal,
    }
    f := provider.NewFetcher(cfg.Name, cache.NewHistory())
    f.RetryCount = cfg.RetryCount
    f.RetryDelay = cfg.RetryDelay
    a.fetcher = f
    return a, nil
}

func (a *Adapter) Name() string { return a.cfg.Name }

// seriesKey maps an interval token to the query function and the top-level
// key the payload is nested under.
func seriesKey(interval string) (function, key, extra string, err error) {
    switch interval {
    case "1m", "5m", "15m", "30m", "1h":
        native := map[string]string{"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min", "1h": "60min"}[interval]
        return "TIME_SERIES_INTRADAY", "Time Series (" + native + ")", "&interval=" + native, nil
    case "1d":
        return "TIME_SERIES_DAILY", "Time Series (Daily)", "", nil
    case "1wk":
        return "TIME_SERIES_WEEKLY", "Weekly Time Series", "", nil
    case "1mo":
        return "TIME_SERIES_MONTHLY", "Monthly Time Series", "", nil
    }
    return "", "", "", &provider.ValidationError{Field: "interval", Value: interval}
}

func (a *Adapter) GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error) {
    if _, _, _, err := seriesKey(interval); err != nil {
        return nil, err
    }
    return a.fetcher.Fetch(ctx, symbols, period, interval, a.fetchSymbol)
}

func (a *Adapter) fetchSymbol(ctx context.Context, req provider.Request) ([]bars.Bar, error) {
    function, key, extra, err := seriesKey(req.Interval)
    if err != nil {
        return nil, err
    }
    outputSize := "full"
    switch req.Period {
    case "1d", "5d", "1mo":
        outputSize = "compact" // last 100 points is plenty for short windows
    }

    u := fmt.Sprintf("%s/query?function=%s&symbol=%s&outputsize=%s&apikey=%s%s",
        a.cfg.BaseURL, function, url.QueryEscape(req.Symbol), outputSize, a.cfg.APIKey, extra)

    body, err := a.get(ctx, u)
    if err != nil {
        return nil, err
    }

    var top map[string]json.RawMessage
    if err := json.Unmarshal(body, &top); err != nil {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("decode: %v", err)}
    }
    if raw, ok := top["Error Message"]; ok {
        var msg string
        _ = json.Unmarshal(raw, &msg)
        return nil, &provider.VendorPayloadError{Provider: a.cfg.Name, Message: msg}
    }
    if raw, ok := top["Note"]; ok {
        // soft throttle warning: no data came back, retry later
        var msg string
        _ = json.Unmarshal(raw, &msg)
        log.WithField("provider", a.cfg.Name).Warn("vendor throttle note received")
        return nil, &provider.VendorPayloadError{Provider: a.cfg.Name, Message: msg}
    }
    raw, ok := top[key]
    if !ok {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: "missing " + strconv.Quote(key)}
    }

    var series map[string]map[string]string
    if err := json.Unmarshal(raw, &series); err != nil {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("series shape: %v", err)}
    }

    out := make([]bars.Bar, 0, len(series))
    for dateStr, fields := range series {
        ts, err := parseTimestamp(dateStr)
        if err != nil {
            log.WithFields(log.Fields{"provider": a.cfg.Name, "symbol": req.Symbol, "date": dateStr}).
                Debug("skipping row with unparseable date")
            continue
        }
        if ts.Before(req.Window.From) || ts.After(req.Window.To) {
            continue
        }
        closeStr, ok := fields["4. close"]
        if !ok || closeStr == "" {
            continue
        }
        b := bars.Bar{Ticker: req.Symbol, Timestamp: ts}
        b.Open, _ = strconv.ParseFloat(fields["1. open"], 64)
        b.High, _ = strconv.ParseFloat(fields["2. high"], 64)
        b.Low, _ = strconv.ParseFloat(fields["3. low"], 64)
        b.Close, _ = strconv.ParseFloat(closeStr, 64)
        vol, _ := strconv.ParseFloat(fields["5. volume"], 64)
        b.Volume = int64(vol)
        out = append(out, b)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
    return out, nil
}

func parseTimestamp(s string) (time.Time, error) {
    if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
        return t.UTC(), nil
    }
    t, err := time.Parse("2006-01-02", s)
    if err != nil {
        return time.Time{}, err
    }
    return t.UTC(), nil
}

// GetStockUniverse: Alpha Vantage has no universe endpoint, so only the
// built-in default list is servable. Other universe types fail open to the
// fallback list unless that is disabled.
func (a *Adapter) GetStockUniverse(ctx context.Context, universe provider.UniverseType) ([]string, error) {
    if universe == provider.UniverseDefault {
        return provider.FallbackUniverse(), nil
    }
    err := fmt.Errorf("%s: universe %q not supported", a.cfg.Name, universe)
    if a.cfg.DisableUniverseFallback {
        return nil, err
    }
    log.WithFields(log.Fields{"provider": a.cfg.Name, "universe": universe}).
        WithError(err).Warn("universe unavailable, serving fallback list")
    return provider.FallbackUniverse(), nil
}

// IsMarketOpen has no vendor endpoint here; the exchange calendar answers.
func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
    return a.cal.IsOpen(time.Now()), nil
}

func (a *Adapter) get(ctx context.Context, u string) ([]byte, error) {
    if err := a.limiter.Wait(ctx); err != nil {
        return nil, err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
    if err != nil {
        return nil, err
    }
    resp, err := a.client.Do(req)
    if err != nil {
        return nil, &provider.TransportError{Provider: a.cfg.Name, Err: err}
    }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return nil, &provider.TransportError{
            Provider: a.cfg.Name,
            Err:      fmt.Errorf("GET -> %d: %s", resp.StatusCode, string(b)),
        }
    }
    return io.ReadAll(resp.Body)
}
