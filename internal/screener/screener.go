package screener

import (
    "context"
    "math"

    log "github.com/sirupsen/logrus"

    "marketdata/internal/bars"
    "marketdata/internal/indicators"
    "marketdata/internal/provider"
)

// Result names the tickers a predicate matched plus the indicator values
// that drove each match, keyed ticker -> indicator name -> value.
type Result struct {
    Matches []string
    Details map[string]map[string]float64
}

// Predicate inspects an annotated dataset and decides which tickers pass.
type Predicate func(ds *bars.Dataset) Result

// Run wires the full pipeline: universe -> history -> indicator battery ->
// predicate. The dataset handed to the predicate carries every indicator
// the battery computes, so predicates stay pure functions over data.
func Run(ctx context.Context, adapter provider.Adapter, universe provider.UniverseType, period, interval string, pred Predicate) (Result, error) {
    symbols, err := adapter.GetStockUniverse(ctx, universe)
    if err != nil {
        return Result{}, err
    }
    log.WithFields(log.Fields{
        "provider": adapter.Name(),
        "universe": universe,
        "symbols":  len(symbols),
    }).Info("screening universe")

    ds, err := adapter.GetHistoricalData(ctx, symbols, period, interval)
    if err != nil {
        return Result{}, err
    }
    return pred(indicators.Annotate(ds)), nil
}

// last returns the final record of a ticker's series, if any.
func last(ds *bars.Dataset, ticker string) (bars.Record, bool) {
    s := ds.Series(ticker)
    if len(s) == 0 {
        return bars.Record{}, false
    }
    return s[len(s)-1], true
}

func value(rec bars.Record, name string) (float64, bool) {
    v, ok := rec.Indicator(name)
    if !ok || math.IsNaN(v) {
        return 0, false
    }
    return v, true
}

// GoldenCross matches tickers whose 50-day average closed above the
// 200-day average on the last bar after sitting at or below it on the
// previous bar.
func GoldenCross() Predicate {
    return func(ds *bars.Dataset) Result {
        res := Result{Details: make(map[string]map[string]float64)}
        for _, ticker := range ds.Tickers() {
            s := ds.Series(ticker)
            if len(s) < 2 {
                continue
            }
            cur, prev := s[len(s)-1], s[len(s)-2]
            fast, ok := value(cur, "sma_50")
            if !ok {
                continue
            }
            slow, ok := value(cur, "sma_200")
            if !ok {
                continue
            }
            pFast, ok := value(prev, "sma_50")
            if !ok {
                continue
            }
            pSlow, ok := value(prev, "sma_200")
            if !ok {
                continue
            }
            if fast > slow && pFast <= pSlow {
                res.Matches = append(res.Matches, ticker)
                res.Details[ticker] = map[string]float64{"sma_50": fast, "sma_200": slow}
            }
        }
        return res
    }
}

// Oversold matches tickers whose latest RSI sits below threshold.
func Oversold(threshold float64) Predicate {
    return func(ds *bars.Dataset) Result {
        res := Result{Details: make(map[string]map[string]float64)}
        for _, ticker := range ds.Tickers() {
            rec, ok := last(ds, ticker)
            if !ok {
                continue
            }
            rsi, ok := value(rec, "rsi")
            if !ok {
                continue
            }
            if rsi < threshold {
                res.Matches = append(res.Matches, ticker)
                res.Details[ticker] = map[string]float64{"rsi": rsi}
            }
        }
        return res
    }
}
