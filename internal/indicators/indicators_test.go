package indicators

import (
    "math"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "marketdata/internal/bars"
)

const tolerance = 1e-6

// buildDataset creates one ticker with synthetic bars around the given
// closes: high = close + 1, low = close - 1, open = previous close.
func buildDataset(t *testing.T, ticker string, closes []float64) *bars.Dataset {
    t.Helper()
    ds := bars.New()
    start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
    for i, c := range closes {
        open := c
        if i > 0 {
            open = closes[i-1]
        }
        hi := math.Max(open, c) + 1
        lo := math.Min(open, c) - 1
        require.NoError(t, ds.Add(bars.Bar{
            Ticker:    ticker,
            Timestamp: start.AddDate(0, 0, i),
            Open:      open,
            High:      hi,
            Low:       lo,
            Close:     c,
            Volume:    int64(1000 + i),
        }))
    }
    return ds
}

// waveCloses is a deterministic non-trivial price path.
func waveCloses(n int) []float64 {
    out := make([]float64, n)
    for i := range out {
        out[i] = 100 + 10*math.Sin(float64(i)/3) + 0.1*float64(i)
    }
    return out
}

func TestRSI_MatchesHandCalculation(t *testing.T) {
    closes := []float64{10, 11, 12, 11, 10, 9, 10, 12, 14, 13, 12, 13, 14, 15, 16}
    rsi := rsiSeries(closes)

    for i := 0; i < 14; i++ {
        assert.True(t, math.IsNaN(rsi[i]), "rsi[%d] should be inside the warm-up window", i)
    }
    // 14 deltas: gains sum 11, losses sum 5 -> RS = 2.2 -> RSI = 68.75
    assert.InDelta(t, 68.75, rsi[14], tolerance)
}

func TestRSI_ClampsTo100WithoutLosses(t *testing.T) {
    closes := make([]float64, 20)
    for i := range closes {
        closes[i] = 100 + float64(i)
    }
    rsi := rsiSeries(closes)
    assert.InDelta(t, 100.0, rsi[19], tolerance)
}

func TestRSI_StaysInRange(t *testing.T) {
    rsi := rsiSeries(waveCloses(120))
    for i := 14; i < len(rsi); i++ {
        assert.GreaterOrEqual(t, rsi[i], 0.0, "rsi[%d]", i)
        assert.LessOrEqual(t, rsi[i], 100.0, "rsi[%d]", i)
    }
}

func TestEMA_MatchesRecursiveDefinition(t *testing.T) {
    closes := waveCloses(60)
    for _, n := range []int{9, 12, 26} {
        got := emaSeries(closes, n)
        alpha := 2.0 / (float64(n) + 1.0)
        want := closes[0]
        assert.InDelta(t, want, got[0], tolerance)
        for i := 1; i < len(closes); i++ {
            want = alpha*closes[i] + (1-alpha)*want
            assert.InDelta(t, want, got[i], tolerance, "ema_%d[%d]", n, i)
        }
    }
}

func TestRollingMean_WarmupAndValue(t *testing.T) {
    vals := []float64{1, 2, 3, 4, 5, 6}
    m := rollingMean(vals, 5, 0)
    for i := 0; i < 4; i++ {
        assert.True(t, math.IsNaN(m[i]))
    }
    assert.InDelta(t, 3.0, m[4], tolerance)
    assert.InDelta(t, 4.0, m[5], tolerance)
}

func TestBollinger_ConstantSeriesCollapses(t *testing.T) {
    closes := make([]float64, 25)
    for i := range closes {
        closes[i] = 50
    }
    middle, upper, lower := bollingerSeries(closes)
    assert.InDelta(t, 50.0, middle[24], tolerance)
    assert.InDelta(t, 50.0, upper[24], tolerance)
    assert.InDelta(t, 50.0, lower[24], tolerance)
}

func TestMACD_HistogramIsMacdMinusSignal(t *testing.T) {
    closes := waveCloses(80)
    macd, signal, hist := macdSeries(closes)
    for i := range closes {
        assert.InDelta(t, macd[i]-signal[i], hist[i], tolerance)
    }
}

func TestADX_NonNegativeWhereDefined(t *testing.T) {
    closes := waveCloses(120)
    highs := make([]float64, len(closes))
    lows := make([]float64, len(closes))
    for i, c := range closes {
        highs[i] = c + 1.5
        lows[i] = c - 1.5
    }
    tr := trueRangeSeries(highs, lows, closes)
    plusDI, minusDI, adx := adxSeries(highs, lows, tr)
    for i := range closes {
        if !math.IsNaN(plusDI[i]) {
            assert.GreaterOrEqual(t, plusDI[i], 0.0, "plus_di[%d]", i)
        }
        if !math.IsNaN(minusDI[i]) {
            assert.GreaterOrEqual(t, minusDI[i], 0.0, "minus_di[%d]", i)
        }
        if !math.IsNaN(adx[i]) {
            assert.GreaterOrEqual(t, adx[i], 0.0, "adx[%d]", i)
        }
    }
    // warm-up: ADX needs two stacked 14-windows over delta-derived input
    for i := 0; i < 27; i++ {
        assert.True(t, math.IsNaN(adx[i]), "adx[%d] should be undefined", i)
    }
    assert.False(t, math.IsNaN(adx[27]), "adx[27] should be defined")
}

func TestAnnotate_SkipsTickersBelowMinimum(t *testing.T) {
    ds := buildDataset(t, "X", waveCloses(20))
    out := Annotate(ds)
    for _, r := range out.Series("X") {
        assert.Nil(t, r.Indicators, "short series must stay unannotated")
    }
}

func TestAnnotate_IsPure(t *testing.T) {
    ds := buildDataset(t, "AAPL", waveCloses(60))
    first := Annotate(ds)
    second := Annotate(ds)

    // the input itself stays untouched
    for _, r := range ds.Series("AAPL") {
        require.Nil(t, r.Indicators)
    }

    fs, ss := first.Series("AAPL"), second.Series("AAPL")
    require.Equal(t, len(fs), len(ss))
    for i := range fs {
        require.Equal(t, len(fs[i].Indicators), len(ss[i].Indicators), "row %d", i)
        for name, v := range fs[i].Indicators {
            w := ss[i].Indicators[name]
            if math.IsNaN(v) {
                assert.True(t, math.IsNaN(w), "%s[%d]", name, i)
            } else {
                assert.InDelta(t, v, w, tolerance, "%s[%d]", name, i)
            }
        }
    }
}

func TestAnnotate_FullBattery(t *testing.T) {
    closes := waveCloses(220)
    ds := Annotate(buildDataset(t, "MSFT", closes))
    s := ds.Series("MSFT")

    names := []string{
        "sma_5", "sma_10", "sma_20", "sma_50", "sma_200",
        "ema_9", "ema_12", "ema_26",
        "rsi", "macd", "macd_signal", "macd_histogram",
        "bb_middle", "bb_upper", "bb_lower",
        "atr", "plus_di", "minus_di", "adx",
        "vol_sma_5", "vol_sma_10", "vol_sma_20", "vol_sma_50",
        "high_10", "high_20", "high_50", "low_10", "low_20", "low_50",
        "pct_change",
    }
    last := s[len(s)-1]
    for _, name := range names {
        v, ok := last.Indicator(name)
        require.True(t, ok, "missing %s", name)
        assert.False(t, math.IsNaN(v), "%s undefined at series end", name)
    }

    // sma_20 at position 19 equals the mean of the first 20 closes
    sum := 0.0
    for _, c := range closes[:20] {
        sum += c
    }
    v, _ := s[19].Indicator("sma_20")
    assert.InDelta(t, sum/20, v, tolerance)

    // sma_200 warm-up covers the first 199 positions
    v, _ = s[198].Indicator("sma_200")
    assert.True(t, math.IsNaN(v))
    v, _ = s[199].Indicator("sma_200")
    assert.False(t, math.IsNaN(v))

    // rolling high over 10 bars is the window max of the highs
    v, _ = s[50].Indicator("high_10")
    maxHigh := math.Inf(-1)
    for i := 41; i <= 50; i++ {
        if s[i].High > maxHigh {
            maxHigh = s[i].High
        }
    }
    assert.InDelta(t, maxHigh, v, tolerance)

    // close-over-close percent change
    v, _ = s[1].Indicator("pct_change")
    assert.InDelta(t, (closes[1]-closes[0])/closes[0]*100, v, tolerance)
}
