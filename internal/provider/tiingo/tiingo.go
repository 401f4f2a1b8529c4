package tiingo

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    log "github.com/sirupsen/logrus"

    "marketdata/internal/bars"
    "marketdata/internal/httpx"
    "marketdata/internal/marketcal"
    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/ratelimit"
)

const ProviderName = "tiingo"

type Config struct {
    Name                    string
    APIKey                  string
    BaseURL                 string
    CallsPerMinute          int
    RetryCount              int
    RetryDelay              time.Duration
    DisableUniverseFallback bool
}

// Adapter maps the Tiingo end-of-day API: a bare JSON array of
// {date, open, high, low, close, volume, adjOpen..., divCash, splitFactor}
// rows. A non-200 HTTP status is the error signal; there is no error
// envelope in the payload. Only daily and coarser intervals exist on this
// endpoint, so intraday tokens are rejected up front.
type Adapter struct {
    cfg     Config
    client  httpx.Doer
    limiter *ratelimit.FixedWindow
    fetcher *provider.Fetcher
    cal     *marketcal.Calendar
}

func New(cfg Config, client httpx.Doer) (*Adapter, error) {
    if cfg.APIKey == "" {
        return nil, &provider.CredentialError{Provider: ProviderName, Key: "TIINGO_API_KEY"}
    }
    if cfg.Name == "" { cfg.Name = ProviderName }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://api.tiingo.com" }
    if cfg.CallsPerMinute <= 0 { cfg.CallsPerMinute = 50 }
    if cfg.RetryCount <= 0 { cfg.RetryCount = 3 }
    if cfg.RetryDelay <= 0 { cfg.RetryDelay = time.Second }

    cal, err := marketcal.New()
    if err != nil {
        return nil, fmt.Errorf("%s: load calendar: %w", ProviderName, err)
    }

    a := &Adapter{
        cfg:     cfg,
        client:  client,
        limiter: ratelimit.NewFixedWindow(cfg.CallsPerMinute),
        cal:     cal,
    }
    f := provider.NewFetcher(cfg.Name, cache.NewHistory())
    f.RetryCount = cfg.RetryCount
    f.RetryDelay = cfg.RetryDelay
    a.fetcher = f
    return a, nil
}

func (a *Adapter) Name() string { return a.cfg.Name }

func resampleFreq(interval string) (string, error) {
    switch interval {
    case "1d":
        return "daily", nil
    case "1wk":
        return "weekly", nil
    case "1mo":
        return "monthly", nil
    }
    return "", &provider.ValidationError{Field: "interval", Value: interval}
}

type eodRow struct {
    Date        string   `json:"date"`
    Open        float64  `json:"open"`
    High        float64  `json:"high"`
    Low         float64  `json:"low"`
    Close       *float64 `json:"close"`
    Volume      int64    `json:"volume"`
    AdjOpen     float64  `json:"adjOpen"`
    AdjHigh     float64  `json:"adjHigh"`
    AdjLow      float64  `json:"adjLow"`
    AdjClose    float64  `json:"adjClose"`
    AdjVolume   int64    `json:"adjVolume"`
    DivCash     float64  `json:"divCash"`
    SplitFactor float64  `json:"splitFactor"`
}

func (a *Adapter) GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error) {
    if _, err := resampleFreq(interval); err != nil {
        return nil, err
    }
    return a.fetcher.Fetch(ctx, symbols, period, interval, a.fetchSymbol)
}

func (a *Adapter) fetchSymbol(ctx context.Context, req provider.Request) ([]bars.Bar, error) {
    freq, err := resampleFreq(req.Interval)
    if err != nil {
        return nil, err
    }
    u := fmt.Sprintf("%s/tiingo/daily/%s/prices?startDate=%s&endDate=%s&resampleFreq=%s",
        a.cfg.BaseURL, req.Symbol,
        req.Window.From.Format("2006-01-02"), req.Window.To.Format("2006-01-02"), freq)

    if err := a.limiter.Wait(ctx); err != nil {
        return nil, err
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
    if err != nil {
        return nil, err
    }
    httpReq.Header.Set("Authorization", "Token "+a.cfg.APIKey)
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := a.client.Do(httpReq)
    if err != nil {
        return nil, &provider.TransportError{Provider: a.cfg.Name, Err: err}
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return nil, &provider.TransportError{
            Provider: a.cfg.Name,
            Err:      fmt.Errorf("GET -> %d: %s", resp.StatusCode, string(b)),
        }
    }

    var rows []eodRow
    if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("decode: %v", err)}
    }

    out := make([]bars.Bar, 0, len(rows))
    for _, r := range rows {
        if r.Close == nil {
            continue
        }
        ts, err := time.Parse(time.RFC3339, r.Date)
        if err != nil {
            log.WithFields(log.Fields{"provider": a.cfg.Name, "symbol": req.Symbol, "date": r.Date}).
                Debug("skipping row with unparseable date")
            continue
        }
        out = append(out, bars.Bar{
            Ticker:      req.Symbol,
            Timestamp:   ts.UTC(),
            Open:        r.Open,
            High:        r.High,
            Low:         r.Low,
            Close:       *r.Close,
            Volume:      r.Volume,
            Dividend:    r.DivCash,
            SplitFactor: r.SplitFactor,
        })
    }
    return out, nil
}

// GetStockUniverse: Tiingo's supported-tickers dump is a zip download, not
// an API, so only the default list is served here.
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

func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
    return a.cal.IsOpen(time.Now()), nil
}
