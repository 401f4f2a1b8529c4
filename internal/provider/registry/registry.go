package registry

import (
    "fmt"
    "os"
    "strings"
    "sync"
    "time"

    log "github.com/sirupsen/logrus"

    "marketdata/internal/config"
    "marketdata/internal/httpx"
    "marketdata/internal/provider"
    "marketdata/internal/provider/alpaca"
    "marketdata/internal/provider/alphavantage"
    "marketdata/internal/provider/polygon"
    "marketdata/internal/provider/tiingo"
    "marketdata/internal/provider/yahoo"
)

// preference is the order tried when no provider is named: paid feeds with
// generous rate limits first, the keyless yahoo adapter last.
var preference = []string{
    alpaca.ProviderName,
    polygon.ProviderName,
    tiingo.ProviderName,
    alphavantage.ProviderName,
    yahoo.ProviderName,
}

// credentialKeys lists the environment variables each vendor needs. An
// explicit credentials map passed to Get wins over the environment, which
// wins over the config file.
var credentialKeys = map[string][]string{
    alphavantage.ProviderName: {"ALPHA_VANTAGE_API_KEY"},
    alpaca.ProviderName:       {"ALPACA_API_KEY_ID", "ALPACA_API_SECRET_KEY"},
    polygon.ProviderName:      {"POLYGON_API_KEY"},
    tiingo.ProviderName:       {"TIINGO_API_KEY"},
    yahoo.ProviderName:        nil,
}

// Registry constructs and caches provider adapters. Construction is where
// credential errors surface, so a missing key fails fast instead of on the
// first fetch. Instances are shared per (provider, credentials) pair, which
// keeps their rate-limit windows and caches shared too.
type Registry struct {
    cfg       config.Config
    client    httpx.Doer
    lookupEnv func(string) (string, bool)

    mu        sync.Mutex
    instances map[string]provider.Adapter
}

func New(cfg config.Config, client httpx.Doer) *Registry {
    if client == nil {
        timeout := time.Duration(cfg.General.HTTPTimeoutSec) * time.Second
        if timeout <= 0 {
            timeout = 30 * time.Second
        }
        client = httpx.New(timeout)
    }
    return &Registry{
        cfg:       cfg,
        client:    client,
        lookupEnv: os.LookupEnv,
        instances: make(map[string]provider.Adapter),
    }
}

// Names returns every provider this registry knows how to build.
func Names() []string {
    out := make([]string, len(preference))
    copy(out, preference)
    return out
}

// Get returns the adapter for name, building it on first use. creds may be
// nil; it overrides environment and config values key by key.
func (r *Registry) Get(name string, creds map[string]string) (provider.Adapter, error) {
    name = strings.ToLower(strings.TrimSpace(name))
    keys, ok := credentialKeys[name]
    if !ok {
        return nil, &provider.ValidationError{Field: "provider", Value: name}
    }

    resolved := make(map[string]string, len(keys))
    for _, k := range keys {
        resolved[k] = r.resolve(k, creds)
    }

    cacheKey := name
    for _, k := range keys {
        cacheKey += "|" + resolved[k]
    }

    r.mu.Lock()
    defer r.mu.Unlock()
    if a, ok := r.instances[cacheKey]; ok {
        return a, nil
    }
    a, err := r.build(name, resolved)
    if err != nil {
        return nil, err
    }
    r.instances[cacheKey] = a
    return a, nil
}

// GetDefault returns the first constructible provider: the configured
// default if one is named, otherwise the preference order. yahoo needs no
// credentials, so in practice this only fails if every construction breaks.
func (r *Registry) GetDefault(creds map[string]string) (provider.Adapter, error) {
    order := preference
    if d := r.cfg.General.DefaultProvider; d != "" {
        order = append([]string{d}, preference...)
    }

    var errs []string
    for _, name := range order {
        a, err := r.Get(name, creds)
        if err == nil {
            log.WithField("provider", a.Name()).Debug("selected default provider")
            return a, nil
        }
        errs = append(errs, fmt.Sprintf("%s: %v", name, err))
    }
    return nil, fmt.Errorf("no provider available: %s", strings.Join(errs, "; "))
}

// resolve looks a credential up in the explicit map, then the environment,
// then the config file section.
func (r *Registry) resolve(key string, creds map[string]string) string {
    if v, ok := creds[key]; ok && v != "" {
        return v
    }
    if v, ok := r.lookupEnv(key); ok && v != "" {
        return v
    }
    switch key {
    case "ALPHA_VANTAGE_API_KEY":
        return r.cfg.AlphaVantage.APIKey
    case "ALPACA_API_KEY_ID":
        return r.cfg.Alpaca.APIKeyID
    case "ALPACA_API_SECRET_KEY":
        return r.cfg.Alpaca.APISecretKey
    case "POLYGON_API_KEY":
        return r.cfg.Polygon.APIKey
    case "TIINGO_API_KEY":
        return r.cfg.Tiingo.APIKey
    }
    return ""
}

func (r *Registry) build(name string, creds map[string]string) (provider.Adapter, error) {
    switch name {
    case alphavantage.ProviderName:
        c := r.cfg.AlphaVantage
        return alphavantage.New(alphavantage.Config{
            APIKey:                  creds["ALPHA_VANTAGE_API_KEY"],
            BaseURL:                 c.BaseURL,
            CallsPerMinute:          c.MaxRequestsPerMinute,
            RetryCount:              c.RetryCount,
            RetryDelay:              time.Duration(c.RetryDelaySec) * time.Second,
            DisableUniverseFallback: c.DisableUniverseFallback,
        }, r.client)
    case alpaca.ProviderName:
        c := r.cfg.Alpaca
        return alpaca.New(alpaca.Config{
            APIKeyID:                creds["ALPACA_API_KEY_ID"],
            APISecretKey:            creds["ALPACA_API_SECRET_KEY"],
            DataBaseURL:             c.DataBaseURL,
            TradingBaseURL:          c.TradingBaseURL,
            CallsPerMinute:          c.MaxRequestsPerMinute,
            RetryCount:              c.RetryCount,
            RetryDelay:              time.Duration(c.RetryDelaySec) * time.Second,
            DisableUniverseFallback: c.DisableUniverseFallback,
        }, r.client)
    case polygon.ProviderName:
        c := r.cfg.Polygon
        return polygon.New(polygon.Config{
            APIKey:                  creds["POLYGON_API_KEY"],
            BaseURL:                 c.BaseURL,
            CallsPerMinute:          c.MaxRequestsPerMinute,
            RetryCount:              c.RetryCount,
            RetryDelay:              time.Duration(c.RetryDelaySec) * time.Second,
            DisableUniverseFallback: c.DisableUniverseFallback,
        }, r.client)
    case tiingo.ProviderName:
        c := r.cfg.Tiingo
        return tiingo.New(tiingo.Config{
            APIKey:                  creds["TIINGO_API_KEY"],
            BaseURL:                 c.BaseURL,
            CallsPerMinute:          c.MaxRequestsPerMinute,
            RetryCount:              c.RetryCount,
            RetryDelay:              time.Duration(c.RetryDelaySec) * time.Second,
            DisableUniverseFallback: c.DisableUniverseFallback,
        }, r.client)
    case yahoo.ProviderName:
        c := r.cfg.Yahoo
        return yahoo.New(yahoo.Config{
            BaseURL:                 c.BaseURL,
            CallsPerMinute:          c.MaxRequestsPerMinute,
            RetryCount:              c.RetryCount,
            RetryDelay:              time.Duration(c.RetryDelaySec) * time.Second,
            DisableUniverseFallback: c.DisableUniverseFallback,
        }, r.client)
    }
    return nil, &provider.ValidationError{Field: "provider", Value: name}
}
