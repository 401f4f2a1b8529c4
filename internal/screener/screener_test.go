package screener_test

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "marketdata/internal/bars"
    "marketdata/internal/provider"
    "marketdata/internal/screener"
)

type fakeAdapter struct {
    universe []string
    data     *bars.Dataset
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) GetStockUniverse(ctx context.Context, u provider.UniverseType) ([]string, error) {
    return f.universe, nil
}

func (f *fakeAdapter) GetHistoricalData(ctx context.Context, symbols []string, period, interval string) (*bars.Dataset, error) {
    return f.data, nil
}

func addSeries(t *testing.T, ds *bars.Dataset, ticker string, closes []float64) {
    t.Helper()
    start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
    for i, c := range closes {
        require.NoError(t, ds.Add(bars.Bar{
            Ticker:    ticker,
            Timestamp: start.AddDate(0, 0, i),
            Open:      c,
            High:      c + 1,
            Low:       c - 1,
            Close:     c,
            Volume:    1000,
        }))
    }
}

func TestRun_OversoldFindsFallingTicker(t *testing.T) {
    ds := bars.New()

    falling := make([]float64, 40)
    rising := make([]float64, 40)
    for i := range falling {
        falling[i] = 200 - float64(i)
        rising[i] = 100 + float64(i)
    }
    addSeries(t, ds, "DOWN", falling)
    addSeries(t, ds, "UP", rising)

    f := &fakeAdapter{universe: []string{"DOWN", "UP"}, data: ds}
    res, err := screener.Run(context.Background(), f, provider.UniverseDefault, "3mo", "1d", screener.Oversold(30))
    require.NoError(t, err)

    require.Equal(t, []string{"DOWN"}, res.Matches)
    require.Less(t, res.Details["DOWN"]["rsi"], 30.0)
}

func TestGoldenCross_DetectsCrossOnLastBar(t *testing.T) {
    ds := bars.New()
    addSeries(t, ds, "X", []float64{100, 101})
    addSeries(t, ds, "FLAT", []float64{100, 101})

    // cross: fast at or below slow yesterday, above today
    ds.SetIndicator("X", 0, "sma_50", 10)
    ds.SetIndicator("X", 0, "sma_200", 10)
    ds.SetIndicator("X", 1, "sma_50", 12)
    ds.SetIndicator("X", 1, "sma_200", 11)

    // already above on both bars: no fresh cross
    ds.SetIndicator("FLAT", 0, "sma_50", 12)
    ds.SetIndicator("FLAT", 0, "sma_200", 10)
    ds.SetIndicator("FLAT", 1, "sma_50", 12)
    ds.SetIndicator("FLAT", 1, "sma_200", 10)

    res := screener.GoldenCross()(ds)
    require.Equal(t, []string{"X"}, res.Matches)
    require.Equal(t, 12.0, res.Details["X"]["sma_50"])
}

func TestGoldenCross_SkipsWarmupNaNs(t *testing.T) {
    ds := bars.New()

    closes := make([]float64, 60)
    for i := range closes {
        closes[i] = 100 + float64(i)
    }
    addSeries(t, ds, "SHORT", closes)

    f := &fakeAdapter{universe: []string{"SHORT"}, data: ds}
    // 60 bars: sma_200 is NaN everywhere, so nothing can match
    res, err := screener.Run(context.Background(), f, provider.UniverseDefault, "3mo", "1d", screener.GoldenCross())
    require.NoError(t, err)
    require.Empty(t, res.Matches)
}
