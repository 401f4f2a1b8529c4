package indicators

import (
    "math"
    "strconv"

    "github.com/montanaflynn/stats"

    "marketdata/internal/bars"
)

// MinBars is the minimum series length a ticker needs before any indicator
// is attached. Shorter series pass through unchanged; that is not an error.
const MinBars = 30

// epsilon guards the RSI and DX denominators. The policy is: avg_loss below
// epsilon clamps RSI to 100, a DI sum below epsilon makes DX zero.
const epsilon = 1e-12

// Lookback periods for the standard battery.
var (
    smaPeriods    = []int{5, 10, 20, 50, 200}
    emaPeriods    = []int{9, 12, 26}
    volSMAPeriods = []int{5, 10, 20, 50}
    rangePeriods  = []int{10, 20, 50}
)

const (
    rsiPeriod  = 14
    atrPeriod  = 14
    adxPeriod  = 14
    bbPeriod   = 20
    bbWidth    = 2.0
    macdFast   = 12
    macdSlow   = 26
    macdSignal = 9
)

// Annotate computes the full indicator battery for every ticker in the
// dataset and returns a new annotated dataset. It is a pure function of its
// input: the argument is never mutated and repeated application yields
// identical annotations. Each ticker's series is processed independently;
// nothing crosses ticker boundaries or looks at future bars.
func Annotate(ds *bars.Dataset) *bars.Dataset {
    out := ds.Clone()
    for _, ticker := range out.Tickers() {
        s := out.Series(ticker)
        if len(s) < MinBars {
            continue
        }
        annotateTicker(out, ticker, s)
    }
    return out
}

func annotateTicker(ds *bars.Dataset, ticker string, s []bars.Record) {
    n := len(s)
    closes := make([]float64, n)
    highs := make([]float64, n)
    lows := make([]float64, n)
    vols := make([]float64, n)
    for i, r := range s {
        closes[i] = r.Close
        highs[i] = r.High
        lows[i] = r.Low
        vols[i] = float64(r.Volume)
    }

    set := func(name string, series []float64) {
        for i, v := range series {
            ds.SetIndicator(ticker, i, name, v)
        }
    }

    for _, p := range smaPeriods {
        set(smaName(p), rollingMean(closes, p, 0))
    }
    for _, p := range emaPeriods {
        set(emaName(p), emaSeries(closes, p))
    }

    set("rsi", rsiSeries(closes))

    macd, signal, hist := macdSeries(closes)
    set("macd", macd)
    set("macd_signal", signal)
    set("macd_histogram", hist)

    middle, upper, lower := bollingerSeries(closes)
    set("bb_middle", middle)
    set("bb_upper", upper)
    set("bb_lower", lower)

    tr := trueRangeSeries(highs, lows, closes)
    set("atr", rollingMean(tr, atrPeriod, 0))

    plusDI, minusDI, adx := adxSeries(highs, lows, tr)
    set("plus_di", plusDI)
    set("minus_di", minusDI)
    set("adx", adx)

    for _, p := range volSMAPeriods {
        set(volSMAName(p), rollingMean(vols, p, 0))
    }
    for _, p := range rangePeriods {
        set(highName(p), rollingExtreme(highs, p, stats.Max))
        set(lowName(p), rollingExtreme(lows, p, stats.Min))
    }

    set("pct_change", pctChangeSeries(closes))
}

// rollingMean returns the trailing n-mean of vals. Positions whose window
// would start before minIdx are NaN; minIdx lets delta-derived series mark
// their first element as missing.
func rollingMean(vals []float64, n, minIdx int) []float64 {
    out := nanSeries(len(vals))
    for t := range vals {
        start := t - n + 1
        if start < minIdx {
            continue
        }
        m, err := stats.Mean(vals[start : t+1])
        if err != nil {
            continue
        }
        out[t] = m
    }
    return out
}

func rollingExtreme(vals []float64, n int, fn func(stats.Float64Data) (float64, error)) []float64 {
    out := nanSeries(len(vals))
    for t := n - 1; t < len(vals); t++ {
        v, err := fn(vals[t-n+1 : t+1])
        if err != nil {
            continue
        }
        out[t] = v
    }
    return out
}

// emaSeries is the un-adjusted recursive form: seeded with the first value,
// EMA[t] = alpha*v[t] + (1-alpha)*EMA[t-1] with alpha = 2/(n+1). Defined
// from position zero.
func emaSeries(vals []float64, n int) []float64 {
    out := make([]float64, len(vals))
    if len(vals) == 0 {
        return out
    }
    alpha := 2.0 / (float64(n) + 1.0)
    out[0] = vals[0]
    for t := 1; t < len(vals); t++ {
        out[t] = alpha*vals[t] + (1-alpha)*out[t-1]
    }
    return out
}

// rsiSeries computes RSI(14) from simple rolling means of gains and losses.
// When the average loss vanishes the value clamps to 100.
func rsiSeries(closes []float64) []float64 {
    n := len(closes)
    gains := make([]float64, n)
    losses := make([]float64, n)
    for t := 1; t < n; t++ {
        delta := closes[t] - closes[t-1]
        if delta > 0 {
            gains[t] = delta
        } else {
            losses[t] = -delta
        }
    }
    avgGain := rollingMean(gains, rsiPeriod, 1)
    avgLoss := rollingMean(losses, rsiPeriod, 1)

    out := nanSeries(n)
    for t := range out {
        if math.IsNaN(avgGain[t]) || math.IsNaN(avgLoss[t]) {
            continue
        }
        if avgLoss[t] < epsilon {
            out[t] = 100
            continue
        }
        rs := avgGain[t] / avgLoss[t]
        out[t] = 100 - 100/(1+rs)
    }
    return out
}

func macdSeries(closes []float64) (macd, signal, hist []float64) {
    fast := emaSeries(closes, macdFast)
    slow := emaSeries(closes, macdSlow)
    macd = make([]float64, len(closes))
    for t := range macd {
        macd[t] = fast[t] - slow[t]
    }
    signal = emaSeries(macd, macdSignal)
    hist = make([]float64, len(closes))
    for t := range hist {
        hist[t] = macd[t] - signal[t]
    }
    return macd, signal, hist
}

// bollingerSeries uses the sample standard deviation over the SMA window,
// matching how the dataset's rolling statistics were defined upstream.
func bollingerSeries(closes []float64) (middle, upper, lower []float64) {
    n := len(closes)
    middle = rollingMean(closes, bbPeriod, 0)
    upper = nanSeries(n)
    lower = nanSeries(n)
    for t := bbPeriod - 1; t < n; t++ {
        sd, err := stats.StandardDeviationSample(closes[t-bbPeriod+1 : t+1])
        if err != nil {
            continue
        }
        upper[t] = middle[t] + bbWidth*sd
        lower[t] = middle[t] - bbWidth*sd
    }
    return middle, upper, lower
}

// trueRangeSeries: TR[0] is the plain high-low range since there is no
// previous close to compare against.
func trueRangeSeries(highs, lows, closes []float64) []float64 {
    n := len(highs)
    tr := make([]float64, n)
    if n == 0 {
        return tr
    }
    tr[0] = highs[0] - lows[0]
    for t := 1; t < n; t++ {
        hl := highs[t] - lows[t]
        hc := math.Abs(highs[t] - closes[t-1])
        lc := math.Abs(lows[t] - closes[t-1])
        tr[t] = math.Max(hl, math.Max(hc, lc))
    }
    return tr
}

// adxSeries computes +DI, -DI and ADX over the Wilder 14 window. A
// directional move counts only when it exceeds its counterpart.
func adxSeries(highs, lows, tr []float64) (plusDI, minusDI, adx []float64) {
    n := len(highs)
    plusDM := make([]float64, n)
    minusDM := make([]float64, n)
    for t := 1; t < n; t++ {
        up := highs[t] - highs[t-1]
        down := lows[t-1] - lows[t]
        if up > down && up > 0 {
            plusDM[t] = up
        }
        if down > up && down > 0 {
            minusDM[t] = down
        }
    }

    avgPlus := rollingMean(plusDM, adxPeriod, 1)
    avgMinus := rollingMean(minusDM, adxPeriod, 1)
    avgTR := rollingMean(tr, adxPeriod, 0)

    plusDI = nanSeries(n)
    minusDI = nanSeries(n)
    dx := make([]float64, n)
    for t := range dx {
        dx[t] = math.NaN()
        if math.IsNaN(avgPlus[t]) || math.IsNaN(avgMinus[t]) || math.IsNaN(avgTR[t]) || avgTR[t] < epsilon {
            continue
        }
        plusDI[t] = 100 * avgPlus[t] / avgTR[t]
        minusDI[t] = 100 * avgMinus[t] / avgTR[t]
        sum := plusDI[t] + minusDI[t]
        if sum < epsilon {
            dx[t] = 0
            continue
        }
        dx[t] = 100 * math.Abs(plusDI[t]-minusDI[t]) / sum
    }

    // DX is first defined at position adxPeriod, so ADX windows may not
    // start before it.
    adx = rollingMean(dx, adxPeriod, adxPeriod)
    return plusDI, minusDI, adx
}

func pctChangeSeries(closes []float64) []float64 {
    out := nanSeries(len(closes))
    for t := 1; t < len(closes); t++ {
        if closes[t-1] == 0 {
            continue
        }
        out[t] = (closes[t] - closes[t-1]) / closes[t-1] * 100
    }
    return out
}

func nanSeries(n int) []float64 {
    out := make([]float64, n)
    for i := range out {
        out[i] = math.NaN()
    }
    return out
}

func smaName(p int) string    { return "sma_" + strconv.Itoa(p) }
func emaName(p int) string    { return "ema_" + strconv.Itoa(p) }
func volSMAName(p int) string { return "vol_sma_" + strconv.Itoa(p) }
func highName(p int) string   { return "high_" + strconv.Itoa(p) }
func lowName(p int) string    { return "low_" + strconv.Itoa(p) }
