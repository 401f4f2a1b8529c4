package yahoo

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
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

const ProviderName = "yahoo"

type Config struct {
    Name                    string
    BaseURL                 string
    CallsPerMinute          int
    RetryCount              int
    RetryDelay              time.Duration
    DisableUniverseFallback bool
}

// Adapter speaks the Yahoo chart API. It is the only vendor here that needs
// no credentials, which makes it the registry's fallback provider. Period
// and interval tokens pass through almost natively; quote arrays carry
// nulls for halted sessions, and dividends/splits arrive as event maps
// keyed by epoch seconds.
type Adapter struct {
    cfg       Config
    client    httpx.Doer
    limiter   *ratelimit.FixedWindow
    fetcher   *provider.Fetcher
    universes *cache.Universe
    cal       *marketcal.Calendar
}

func New(cfg Config, client httpx.Doer) (*Adapter, error) {
    if cfg.Name == "" { cfg.Name = ProviderName }
    if cfg.BaseURL == "" { cfg.BaseURL = "https://query1.finance.yahoo.com" }
    if cfg.CallsPerMinute <= 0 { cfg.CallsPerMinute = 60 }
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

func nativeInterval(interval string) (string, error) {
    switch interval {
    case "1m", "5m", "15m", "30m", "1d", "1wk", "1mo":
        return interval, nil
    case "1h":
        return "60m", nil
    }
    return "", &provider.ValidationError{Field: "interval", Value: interval}
}

type chartResponse struct {
    Chart struct {
        Result []chartResult   `json:"result"`
        Error  json.RawMessage `json:"error"`
    } `json:"chart"`
}

type chartResult struct {
    Timestamp  []int64 `json:"timestamp"`
    Indicators struct {
        Quote []struct {
            Open   []*float64 `json:"open"`
            High   []*float64 `json:"high"`
            Low    []*float64 `json:"low"`
            Close  []*float64 `json:"close"`
            Volume []*int64   `json:"volume"`
        } `json:"quote"`
    } `json:"indicators"`
    Events struct {
        Dividends map[string]struct {
            Amount float64 `json:"amount"`
            Date   int64   `json:"date"`
        } `json:"dividends"`
        Splits map[string]struct {
            Numerator   float64 `json:"numerator"`
            Denominator float64 `json:"denominator"`
            Date        int64   `json:"date"`
        } `json:"splits"`
    } `json:"events"`
}

func (a *Adapter) GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error) {
    if _, err := nativeInterval(interval); err != nil {
        return nil, err
    }
    return a.fetcher.Fetch(ctx, symbols, period, interval, a.fetchSymbol)
}

func (a *Adapter) fetchSymbol(ctx context.Context, req provider.Request) ([]bars.Bar, error) {
    iv, err := nativeInterval(req.Interval)
    if err != nil {
        return nil, err
    }
    u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s&events=%s",
        a.cfg.BaseURL, url.PathEscape(req.Symbol), req.Period, iv, url.QueryEscape("div|split"))

    body, err := a.get(ctx, u)
    if err != nil {
        return nil, err
    }

    var resp chartResponse
    if err := json.Unmarshal(body, &resp); err != nil {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("decode: %v", err)}
    }
    if len(resp.Chart.Error) > 0 && string(resp.Chart.Error) != "null" {
        return nil, &provider.VendorPayloadError{Provider: a.cfg.Name, Message: string(resp.Chart.Error)}
    }
    if len(resp.Chart.Result) == 0 {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: "empty chart result"}
    }
    res := resp.Chart.Result[0]
    if len(res.Indicators.Quote) == 0 {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: "missing quote block"}
    }
    q := res.Indicators.Quote[0]
    if len(q.Close) != len(res.Timestamp) {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: "timestamp/close length mismatch"}
    }

    dividends := make(map[int64]float64, len(res.Events.Dividends))
    for _, d := range res.Events.Dividends {
        dividends[d.Date] = d.Amount
    }
    splits := make(map[int64]float64, len(res.Events.Splits))
    for _, s := range res.Events.Splits {
        if s.Denominator != 0 {
            splits[s.Date] = s.Numerator / s.Denominator
        }
    }

    out := make([]bars.Bar, 0, len(res.Timestamp))
    for i, sec := range res.Timestamp {
        if q.Close[i] == nil {
            // halted or missing session: no close, row is dropped
            continue
        }
        b := bars.Bar{
            Ticker:    req.Symbol,
            Timestamp: time.Unix(sec, 0).UTC(),
            Close:     *q.Close[i],
        }
        if i < len(q.Open) && q.Open[i] != nil {
            b.Open = *q.Open[i]
        }
        if i < len(q.High) && q.High[i] != nil {
            b.High = *q.High[i]
        }
        if i < len(q.Low) && q.Low[i] != nil {
            b.Low = *q.Low[i]
        }
        if i < len(q.Volume) && q.Volume[i] != nil {
            b.Volume = *q.Volume[i]
        }
        if amt, ok := dividends[sec]; ok {
            b.Dividend = amt
        }
        if ratio, ok := splits[sec]; ok {
            b.SplitFactor = ratio
        }
        out = append(out, b)
    }
    return out, nil
}

type screenerResponse struct {
    Finance struct {
        Result []struct {
            Quotes []struct {
                Symbol string `json:"symbol"`
            } `json:"quotes"`
        } `json:"result"`
    } `json:"finance"`
}

func (a *Adapter) GetStockUniverse(ctx context.Context, universe provider.UniverseType) ([]string, error) {
    if universe == provider.UniverseDefault {
        return provider.FallbackUniverse(), nil
    }
    symbols, err := a.universes.GetOrFetch(string(universe), func() ([]string, error) {
        switch universe {
        case provider.UniverseMostActive:
            return a.fetchScreener(ctx, "most_actives")
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

func (a *Adapter) fetchScreener(ctx context.Context, scrID string) ([]string, error) {
    u := fmt.Sprintf("%s/v1/finance/screener/predefined/saved?scrIds=%s&count=%d", a.cfg.BaseURL, scrID, 100)
    body, err := a.get(ctx, u)
    if err != nil {
        return nil, err
    }
    var resp screenerResponse
    if err := json.Unmarshal(body, &resp); err != nil {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: fmt.Sprintf("decode: %v", err)}
    }
    if len(resp.Finance.Result) == 0 {
        return nil, &provider.SchemaError{Provider: a.cfg.Name, Detail: "empty screener result"}
    }
    out := make([]string, 0, len(resp.Finance.Result[0].Quotes))
    for _, q := range resp.Finance.Result[0].Quotes {
        out = append(out, q.Symbol)
    }
    return out, nil
}

// IsMarketOpen falls back to the exchange calendar; the chart API has no
// status endpoint.
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
            Err:      fmt.Errorf("GET -> %d: %s", resp.StatusCode, strconv.Quote(string(b))),
        }
    }
    return io.ReadAll(resp.Body)
}
