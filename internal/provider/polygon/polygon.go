package polygon

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
    "marketdata/internal/provider"
    "marketdata/internal/provider/cache"
    "marketdata/internal/provider/ratelimit"
)

const ProviderName = "polygon"

type Config struct {
    Name                    string
    APIKey                  string
    BaseURL                 string
    CallsPerMinute          int
    RetryCount              int
    RetryDelay              time.Duration
    DisableUniverseFallback bool
}

// Adapter speaks the Polygon aggregates API:
// {results:[{t,o,h,l,c,v,n,vw}], status, next_url} with t in epoch
// milliseconds. status "ERROR" is an application-level failure; next_url is
// followed until exhausted, and pages already fetched are kept when a later
// page fails.
type Adapter struct {
    cfg       Config
    client    httpx.Doer
    limiter   *ratelimit.FixedWindow
    fetcher   *provider.Fetcher
    universes *cache.Universe
}

func New(cfg Config, client httpx.Doer) (*Adapter, error) {
    if cfg.APIKey == "" {
        return nil, &provider.CredentialError{Provider: ProviderName, Key: "POLYGON_API_KEY"}
    }
    if cfg.Name == "" { cfg.Name = ProviderName }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://api.polygon.io" }
    if cfg.CallsPerMinute <= 0 { cfg.CallsPerMinute = 5 }
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

type aggBar struct {
    Timestamp    int64   `json:"t"` // epoch milliseconds
    Open         float64 `json:"o"`
    High         float64 `json:"h"`
    Low          float64 `json:"l"`
    Close        float64 `json:"c"`
    Volume       float64 `json:"v"`
    Transactions int64   `json:"n"`
    VWAP         float64 `json:"vw"`
}

type aggResponse struct {
    Ticker  string   `json:"ticker"`
    Status  string   `json:"status"`
    Error   string   `json:"error"`
    Results []aggBar `json:"results"`
    NextURL string   `json:"next_url"`
}

// timespan maps interval tokens to Polygon's multiplier/timespan pair.
func timespan(interval string) (mult int, span string, err error) {
    switch interval {
    case "1m":
        return 1, "minute", nil
    case "5m":
        return 5, "minute", nil
    case "15m":
        return 15, "minute", nil
    case "30m":
        return 30, "minute", nil
    case "1h":
        return 1, "hour", nil
    case "1d":
        return 1, "day", nil
    case "1wk":
        return 1, "week", nil
    case "1mo":
        return 1, "month", nil
    }
    return 0, "", &provider.ValidationError{Field: "interval", Value: interval}
}

func (a *Adapter) GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error) {
    if _, _, err := timespan(interval); err != nil {
        return nil, err
    }
    return a.fetcher.Fetch(ctx, symbols, period, interval, a.fetchSymbol)
}

func (a *Adapter) fetchSymbol(ctx context.Context, req provider.Request) ([]bars.Bar, error) {
    mult, span, err := timespan(req.Interval)
    if err != nil {
        return nil, err
    }
    u := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
        a.cfg.BaseURL, req.Symbol, mult, span,
        req.Window.From.Format("2006-01-02"), req.Window.To.Format("2006-01-02"), a.cfg.APIKey)

    var out []bars.Bar
    for page := 0; u != ""; page++ {
        var resp aggResponse
        if err := a.getJSON(ctx, u, &resp); err != nil {
            if page == 0 {
                return nil, err
            }
            // keep the pages already fetched
            log.WithFields(log.Fields{
                "provider": a.cfg.Name,
                "symbol":   req.Symbol,
                "page":     page,
            }).WithError(err).Warn("aggregate pagination aborted, keeping fetched pages")
            return out, nil
        }
        if resp.Status == "ERROR" {
            return nil, &provider.VendorPayloadError{Provider: a.cfg.Name, Message: resp.Error}
        }
        for _, r := range resp.Results {
            out = append(out, bars.Bar{
                Ticker:    req.Symbol,
                Timestamp: time.UnixMilli(r.Timestamp).UTC(),
                Open:      r.Open,
                High:      r.High,
                Low:       r.Low,
                Close:     r.Close,
                Volume:    int64(r.Volume),
                VWAP:      r.VWAP,
            })
        }
        u = resp.NextURL
        if u != "" {
            u += "&apiKey=" + a.cfg.APIKey
        }
    }
    return out, nil
}

type tickersPage struct {
    Results []struct {
        Ticker string `json:"ticker"`
        Active bool   `json:"active"`
    } `json:"results"`
    Status  string `json:"status"`
    Error   string `json:"error"`
    NextURL string `json:"next_url"`
}

func (a *Adapter) GetStockUniverse(ctx context.Context, universe provider.UniverseType) ([]string, error) {
    if universe == provider.UniverseDefault {
        return provider.FallbackUniverse(), nil
    }
    symbols, err := a.universes.GetOrFetch(string(universe), func() ([]string, error) {
        switch universe {
        case provider.UniverseAll:
            return a.fetchAllTickers(ctx)
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

func (a *Adapter) fetchAllTickers(ctx context.Context) ([]string, error) {
    u := fmt.Sprintf("%s/v3/reference/tickers?market=stocks&active=true&limit=1000&apiKey=%s",
        a.cfg.BaseURL, a.cfg.APIKey)
    var out []string
    for u != "" {
        var page tickersPage
        if err := a.getJSON(ctx, u, &page); err != nil {
            return nil, err
        }
        if page.Status == "ERROR" {
            return nil, &provider.VendorPayloadError{Provider: a.cfg.Name, Message: page.Error}
        }
        for _, r := range page.Results {
            if r.Active {
                out = append(out, r.Ticker)
            }
        }
        u = page.NextURL
        if u != "" {
            u += "&apiKey=" + a.cfg.APIKey
        }
    }
    return out, nil
}

type marketStatus struct {
    Market string `json:"market"`
}

// IsMarketOpen asks the vendor status endpoint.
func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
    var st marketStatus
    u := fmt.Sprintf("%s/v1/marketstatus/now?apiKey=%s", a.cfg.BaseURL, a.cfg.APIKey)
    if err := a.getJSON(ctx, u, &st); err != nil {
        return false, err
    }
    return st.Market == "open", nil
}

func (a *Adapter) getJSON(ctx context.Context, u string, dst any) error {
    if err := a.limiter.Wait(ctx); err != nil {
        return err
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
    if err != nil {
        return err
    }
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
