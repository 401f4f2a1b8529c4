package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "strings"
)

type General struct {
    LogLevel        string `json:"log_level"`
    DefaultPeriod   string `json:"default_period"`
    DefaultInterval string `json:"default_interval"`
    DefaultProvider string `json:"default_provider"`
    HTTPTimeoutSec  int    `json:"http_timeout_sec"`
}

type AlphaVantage struct {
    APIKey                  string `json:"api_key"`
    BaseURL                 string `json:"base_url"`
    MaxRequestsPerMinute    int    `json:"max_requests_per_minute"`
    RetryCount              int    `json:"retry_count"`
    RetryDelaySec           int    `json:"retry_delay_sec"`
    DisableUniverseFallback bool   `json:"disable_universe_fallback"`
}

type Alpaca struct {
    APIKeyID                string `json:"api_key_id"`
    APISecretKey            string `json:"api_secret_key"`
    DataBaseURL             string `json:"data_base_url"`
    TradingBaseURL          string `json:"trading_base_url"`
    MaxRequestsPerMinute    int    `json:"max_requests_per_minute"`
    RetryCount              int    `json:"retry_count"`
    RetryDelaySec           int    `json:"retry_delay_sec"`
    DisableUniverseFallback bool   `json:"disable_universe_fallback"`
}

type Polygon struct {
    APIKey                  string `json:"api_key"`
    BaseURL                 string `json:"base_url"`
    MaxRequestsPerMinute    int    `json:"max_requests_per_minute"`
    RetryCount              int    `json:"retry_count"`
    RetryDelaySec           int    `json:"retry_delay_sec"`
    DisableUniverseFallback bool   `json:"disable_universe_fallback"`
}

type Tiingo struct {
    APIKey                  string `json:"api_key"`
    BaseURL                 string `json:"base_url"`
    MaxRequestsPerMinute    int    `json:"max_requests_per_minute"`
    RetryCount              int    `json:"retry_count"`
    RetryDelaySec           int    `json:"retry_delay_sec"`
    DisableUniverseFallback bool   `json:"disable_universe_fallback"`
}

type Yahoo struct {
    BaseURL                 string `json:"base_url"`
    MaxRequestsPerMinute    int    `json:"max_requests_per_minute"`
    RetryCount              int    `json:"retry_count"`
    RetryDelaySec           int    `json:"retry_delay_sec"`
    DisableUniverseFallback bool   `json:"disable_universe_fallback"`
}

type Config struct {
    General      General      `json:"general"`
    AlphaVantage AlphaVantage `json:"alphavantage"`
    Alpaca       Alpaca       `json:"alpaca"`
    Polygon      Polygon      `json:"polygon"`
    Tiingo       Tiingo       `json:"tiingo"`
    Yahoo        Yahoo        `json:"yahoo"`
}

func Default() Config {
    return Config{
        General: General{
            LogLevel:        "info",
            DefaultPeriod:   "1y",
            DefaultInterval: "1d",
            HTTPTimeoutSec:  30,
        },
        AlphaVantage: AlphaVantage{
            MaxRequestsPerMinute: 5,
            RetryCount:           3,
            RetryDelaySec:        1,
        },
        Alpaca: Alpaca{
            MaxRequestsPerMinute: 200,
            RetryCount:           3,
            RetryDelaySec:        1,
        },
        Polygon: Polygon{
            MaxRequestsPerMinute: 5,
            RetryCount:           3,
            RetryDelaySec:        1,
        },
        Tiingo: Tiingo{
            MaxRequestsPerMinute: 50,
            RetryCount:           3,
            RetryDelaySec:        1,
        },
        Yahoo: Yahoo{
            MaxRequestsPerMinute: 60,
            RetryCount:           3,
            RetryDelaySec:        1,
        },
    }
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// so API keys stay out of checked-in config files.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.General.LogLevel = v }
    if v := os.Getenv("DEFAULT_PROVIDER"); v != "" { cfg.General.DefaultProvider = strings.ToLower(v) }
    if v := os.Getenv("HTTP_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.General.HTTPTimeoutSec = x }
    }

    if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" { cfg.AlphaVantage.APIKey = v }
    if v := os.Getenv("ALPHA_VANTAGE_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.AlphaVantage.MaxRequestsPerMinute = x }
    }

    if v := os.Getenv("ALPACA_API_KEY_ID"); v != "" { cfg.Alpaca.APIKeyID = v }
    if v := os.Getenv("ALPACA_API_SECRET_KEY"); v != "" { cfg.Alpaca.APISecretKey = v }
    if v := os.Getenv("ALPACA_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Alpaca.MaxRequestsPerMinute = x }
    }

    if v := os.Getenv("POLYGON_API_KEY"); v != "" { cfg.Polygon.APIKey = v }
    if v := os.Getenv("POLYGON_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Polygon.MaxRequestsPerMinute = x }
    }

    if v := os.Getenv("TIINGO_API_KEY"); v != "" { cfg.Tiingo.APIKey = v }
    if v := os.Getenv("TIINGO_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Tiingo.MaxRequestsPerMinute = x }
    }

    if v := os.Getenv("YAHOO_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Yahoo.MaxRequestsPerMinute = x }
    }
}
