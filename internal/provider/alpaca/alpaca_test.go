package alpaca_test

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "marketdata/internal/provider"
    "marketdata/internal/provider/alpaca"
)

func newAdapter(t *testing.T, dataURL, tradingURL string) *alpaca.Adapter {
    t.Helper()
    a, err := alpaca.New(alpaca.Config{
        APIKeyID:       "id",
        APISecretKey:   "secret",
        DataBaseURL:    dataURL,
        TradingBaseURL: tradingURL,
        CallsPerMinute: 10000,
        RetryCount:     1,
        RetryDelay:     time.Millisecond,
    }, http.DefaultClient)
    require.NoError(t, err)
    return a
}

func TestNew_RequiresBothKeys(t *testing.T) {
    var cerr *provider.CredentialError

    _, err := alpaca.New(alpaca.Config{APISecretKey: "s"}, nil)
    require.ErrorAs(t, err, &cerr)
    require.Equal(t, "ALPACA_API_KEY_ID", cerr.Key)

    _, err = alpaca.New(alpaca.Config{APIKeyID: "i"}, nil)
    require.ErrorAs(t, err, &cerr)
    require.Equal(t, "ALPACA_API_SECRET_KEY", cerr.Key)
}

func TestGetHistoricalData_MapsBarsAndPages(t *testing.T) {
    pages := 0
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "/v2/stocks/AAPL/bars", r.URL.Path)
        require.Equal(t, "id", r.Header.Get("APCA-API-KEY-ID"))
        require.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
        require.Equal(t, "1Day", r.URL.Query().Get("timeframe"))

        pages++
        if pages == 1 {
            require.Empty(t, r.URL.Query().Get("page_token"))
            fmt.Fprint(w, `{"bars":[{"t":"2025-06-02T04:00:00Z","o":100,"h":102,"l":99,"c":101,"v":2900000}],"symbol":"AAPL","next_page_token":"tok2"}`)
            return
        }
        require.Equal(t, "tok2", r.URL.Query().Get("page_token"))
        fmt.Fprint(w, `{"bars":[{"t":"2025-06-03T04:00:00Z","o":101,"h":103,"l":100,"c":102,"v":3100000}],"symbol":"AAPL","next_page_token":null}`)
    }))
    defer srv.Close()

    a := newAdapter(t, srv.URL, srv.URL)
    ds, err := a.GetHistoricalData(context.Background(), []string{"AAPL"}, "max", "1d")
    require.NoError(t, err)
    require.Equal(t, 2, pages)

    s := ds.Series("AAPL")
    require.Len(t, s, 2)
    require.Equal(t, 101.0, s[0].Close)
    require.Equal(t, int64(3_100_000), s[1].Volume)
    require.Equal(t, time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), s[0].Timestamp)
}

func TestGetLatestQuote(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "/v2/stocks/AAPL/quotes/latest", r.URL.Path)
        fmt.Fprint(w, `{"quote":{"ap":101.5,"bp":101.4,"t":"2025-06-02T15:00:00Z"}}`)
    }))
    defer srv.Close()

    a := newAdapter(t, srv.URL, srv.URL)
    ask, bid, err := a.GetLatestQuote(context.Background(), "AAPL")
    require.NoError(t, err)
    require.Equal(t, 101.5, ask)
    require.Equal(t, 101.4, bid)
}

func TestGetStockUniverse_AllFiltersUntradable(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "/v2/assets", r.URL.Path)
        json.NewEncoder(w).Encode([]map[string]any{
            {"symbol": "AAPL", "tradable": true},
            {"symbol": "HALT", "tradable": false},
            {"symbol": "MSFT", "tradable": true},
        })
    }))
    defer srv.Close()

    a := newAdapter(t, srv.URL, srv.URL)
    got, err := a.GetStockUniverse(context.Background(), provider.UniverseAll)
    require.NoError(t, err)
    require.Equal(t, []string{"AAPL", "MSFT"}, got)
}

func TestGetStockUniverse_MostActive(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "/v1beta1/screener/stocks/most-actives", r.URL.Path)
        fmt.Fprint(w, `{"most_actives":[{"symbol":"TSLA"},{"symbol":"NVDA"}]}`)
    }))
    defer srv.Close()

    a := newAdapter(t, srv.URL, srv.URL)
    got, err := a.GetStockUniverse(context.Background(), provider.UniverseMostActive)
    require.NoError(t, err)
    require.Equal(t, []string{"TSLA", "NVDA"}, got)
}

func TestIsMarketOpen(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, "/v2/clock", r.URL.Path)
        fmt.Fprint(w, `{"is_open":false,"timestamp":"2025-06-02T20:30:00Z"}`)
    }))
    defer srv.Close()

    a := newAdapter(t, srv.URL, srv.URL)
    open, err := a.IsMarketOpen(context.Background())
    require.NoError(t, err)
    require.False(t, open)
}
