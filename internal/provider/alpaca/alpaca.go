package alpaca

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "time"

    log "github.com/sirupsen/logrus"

    "marketdata/internal/bars"
    "marketdata/internal/httpx"
    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/ratelimit"
)

const ProviderName = "alpaca"

type Config struct {
    Name                    string
    APIKeyID                string
    APISecretKey            string
    DataBaseURL             string
    TradingBaseURL          string
    CallsPerMinute          int
    RetryCount              int
    RetryDelay              time.Duration
    DisableUniverseFallback bool
}

// Adapter speaks the Alpaca market-data v2 API: bars come back as an array
// of {t,o,h,l,c,v} objects with RFC3339 timestamps, paged via the
// page_token query parameter. The trading API serves the clock and the
// tradable-asset universe.
type Adapter struct {
    cfg       Config
    client    httpx.Doer
    limiter   *ratelimit.FixedWindow
    fetcher   *provider.Fetcher
    universes *cache.Universe
}

func New(cfg Config, client httpx.Doer) (*Adapter, error) {
    if cfg.APIKeyID == "" {
        return nil, &provider.CredentialError{Provider: ProviderName, Key: "ALPACA_API_KEY_ID"}
    }
    if cfg.APISecretKey == "" {
        return nil, &provider.CredentialError{Provider: ProviderName, Key: "ALPACA_API_SECRET_KEY"}
    }
    if cfg.Name == "" { cfg.Name = ProviderName }
    if cfg.DataBaseURL == "" { cfg.DataBaseURL = "https://data.alpaca.markets" }
    if cfg.TradingBaseURL == "" { cfg.TradingBaseURL = "https://api.alpaca.markets" }
    if cfg.CallsPerMinute <= 0 { cfg.CallsPerMinute = 200 }
    if cfg.RetryCount <= 0 { cfg.RetryCount = 3 }
    if cfg.RetryDelay <= 0 { cfg.RetryDelay = time.Second }

    a := &Adapter{
        cfg:       cfg,
        client:    client,
        limiter:   ratelimit.NewFixedWindow(cfg.CallsPerMinute),
        universes: cache.NewUniverse(),
    }
    f := provider.NewFetcher(cfg.Name, cache.NewHistory())
    f.RetryCount = cfg.RetryCount
    f.RetryDelay = cfg.RetryDelay
    a.fetcher = f
    return a, nil
}

func (a *Adapter) Name() string { return a.cfg.Name }

func timeframe(interval string) (string, error) {
    tf := map[string]string{
        "1m": "1Min", "5m": "5Min", "15m": "15Min", "30m": "30Min",
        "1h": "1Hour", "1d": "1Day", "1wk": "1Week", "1mo": "1Month",
    }[interval]
    if tf == "" {
        return "", &provider.ValidationError{Field: "interval", Value: interval}
    }
    return tf, nil
}

type barRow struct {
    Timestamp string  `json:"t"`
    Open      float64 `json:"o"`
    High      float64 `json:"h"`
    Low       float64 `json:"l"`
    Close     float64 `json:"c"`
    Volume    int64   `json:"v"`
}

type barsResponse struct {
    Bars          []barRow `json:"bars"`
    Symbol        string   `json:"symbol"`
    NextPageToken *string  `json:"next_page_token"`
}

func (a *Adapter) GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error) {
    if _, err := timeframe(interval); err != nil {
        return nil, err
    }
    return a.fetcher.Fetch(ctx, symbols, period, interval, a.fetchSymbol)
}

func (a *Adapter) fetchSymbol(ctx context.Context, req provider.Request) ([]bars.Bar, error) {
    tf, err := timeframe(req.Interval)
    if err != nil {
        return nil, err
    }

    q := url.Values{}
    q.Set("timeframe", tf)
    q.Set("start", req.Window.From.Format(time.RFC3339))
    q.Set("end", req.Window.To.Format(time.RFC3339))
    q.Set("limit", "10000")
    q.Set("adjustment", "raw")

    var out []bars.Bar
    pageToken := ""
    for {
        if pageToken != "" {
            q.Set("page_token", pageToken)
        }
        u := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", a.cfg.DataBaseURL, url.PathEscape(req.Symbol), q.Encode())

        var resp barsResponse
        if err := a.getJSON(ctx, u, &resp); err != nil {
            if len(out) == 0 {
                return nil, err
            }
            log.WithFields(log.Fields{"provider": a.cfg.Name, "symbol": req.Symbol}).
                WithError(err).Warn("bar pagination aborted, keeping fetched pages")
            return out, nil
        }
        for _, r := range resp.Bars {
            ts, perr := time.Parse(time.RFC3339, r.Timestamp)
            if perr != nil {
                return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("timestamp %q", r.Timestamp)}
            }
            out = append(out, bars.Bar{
                Ticker:    req.Symbol,
                Timestamp: ts.UTC(),
                Open:      r.Open,
                High:      r.High,
                Low:       r.Low,
                Close:     r.Close,
                Volume:    r.Volume,
            })
        }
        if resp.NextPageToken == nil || *resp.NextPageToken == "" {
            return out, nil
        }
        pageToken = *resp.NextPageToken
    }
}

// quoteResponse is the latest-quote envelope: {quote:{ap,bp,t}}.
type quoteResponse struct {
    Quote struct {
        AskPrice  float64 `json:"ap"`
        BidPrice  float64 `json:"bp"`
        Timestamp string  `json:"t"`
    } `json:"quote"`
}

// GetLatestQuote returns the current ask/bid for one symbol.
func (a *Adapter) GetLatestQuote(ctx context.Context, symbol string) (ask, bid float64, err error) {
    u := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", a.cfg.DataBaseURL, url.PathEscape(symbol))
    var resp quoteResponse
    if err := a.getJSON(ctx, u, &resp); err != nil {
        return 0, 0, err
    }
    return resp.Quote.AskPrice, resp.Quote.BidPrice, nil
}

type asset struct {
    Symbol   string `json:"symbol"`
    Tradable bool   `json:"tradable"`
}

type mostActives struct {
    MostActives []struct {
        Symbol string `json:"symbol"`
    } `json:"most_actives"`
}

func (a *Adapter) GetStockUniverse(ctx context.Context, universe provider.UniverseType) ([]string, error) {
    if universe == provider.UniverseDefault {
        return provider.FallbackUniverse(), nil
    }
    symbols, err := a.universes.GetOrFetch(string(universe), func() ([]string, error) {
        switch universe {
        case provider.UniverseAll:
            return a.fetchAssets(ctx)
        case provider.UniverseMostActive:
            return a.fetchMostActive(ctx)
        default:
            return nil, fmt.Errorf("%s: universe %q not supported", a.cfg.Name, universe)
        }
    })
    if err == nil {
        return symbols, nil
    }
    if a.cfg.DisableUniverseFallback {
        return nil, err
    }
    log.WithFields(log.Fields{"provider": a.cfg.Name, "universe": universe}).
        WithError(err).Warn("universe fetch failed, serving fallback list")
    return provider.FallbackUniverse(), nil
}

func (a *Adapter) fetchAssets(ctx context.Context) ([]string, error) {
    u := a.cfg.TradingBaseURL + "/v2/assets?status=active&asset_class=us_equity"
    var assets []asset
    if err := a.getJSON(ctx, u, &assets); err != nil {
        return nil, err
    }
    out := make([]string, 0, len(assets))
    for _, as := range assets {
        if as.Tradable {
            out = append(out, as.Symbol)
        }
    }
    return out, nil
}

func (a *Adapter) fetchMostActive(ctx context.Context) ([]string, error) {
    u := a.cfg.DataBaseURL + "/v1beta1/screener/stocks/most-actives?by=volume&top=50"
    var resp mostActives
    if err := a.getJSON(ctx, u, &resp); err != nil {
        return nil, err
    }
    out := make([]string, 0, len(resp.MostActives))
    for _, r := range resp.MostActives {
        out = append(out, r.Symbol)
    }
    return out, nil
}

type clockResponse struct {
    IsOpen bool `json:"is_open"`
}

// IsMarketOpen asks the trading API clock.
func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
    var c clockResponse
    if err := a.getJSON(ctx, a.cfg.TradingBaseURL+"/v2/clock", &c); err != nil {
        return false, err
    }
    return c.IsOpen, nil
}

func (a *Adapter) getJSON(ctx context.Context, u string, dst any) error {
    if err := a.limiter.Wait(ctx); err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
    if err != nil {
        return err
    }
    req.Header.Set("APCA-API-KEY-ID", a.cfg.APIKeyID)
    req.Header.Set("APCA-API-SECRET-KEY", a.cfg.APISecretKey)

    resp, err := a.client.Do(req)
    if err != nil {
        return &provider.TransportError{Provider: a.cfg.Name, Err: err}
    }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return &provider.TransportError{
            Provider: a.cfg.Name,
            Err:      fmt.Errorf("GET -> %d: %s", resp.StatusCode, string(b)),
        }
    }
    if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
        return &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("decode: %v", err)}
    }
    return nil
}
