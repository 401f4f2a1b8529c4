package bars

import (
    "fmt"
    "sort"
    "time"
)

// Bar is one OHLCV observation for one ticker at one interval-aligned instant.
// This is the normalized shape every provider adapter must produce; anything
// vendor-specific stays inside the adapter.
type Bar struct {
    Ticker      string    `json:"ticker"`
    Timestamp   time.Time `json:"timestamp"`
    Open        float64   `json:"open"`
    High        float64   `json:"high"`
    Low         float64   `json:"low"`
    Close       float64   `json:"close"`
    Volume      int64     `json:"volume"`
    VWAP        float64   `json:"vwap,omitempty"`
    Dividend    float64   `json:"dividend,omitempty"`
    SplitFactor float64   `json:"split_factor,omitempty"`
}

// Validate checks the OHLC ordering invariant:
// high >= max(open, close) >= min(open, close) >= low >= 0.
func (b Bar) Validate() error {
    if b.Ticker == "" {
        return fmt.Errorf("bar missing ticker")
    }
    if b.Timestamp.IsZero() {
        return fmt.Errorf("%s: bar missing timestamp", b.Ticker)
    }
    if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
        return fmt.Errorf("%s@%s: non-positive price", b.Ticker, b.Timestamp.Format(time.RFC3339))
    }
    hi, lo := b.Open, b.Open
    if b.Close > hi { hi = b.Close }
    if b.Close < lo { lo = b.Close }
    if b.High < hi || b.Low > lo {
        return fmt.Errorf("%s@%s: high/low outside open/close range", b.Ticker, b.Timestamp.Format(time.RFC3339))
    }
    if b.Volume < 0 {
        return fmt.Errorf("%s@%s: negative volume", b.Ticker, b.Timestamp.Format(time.RFC3339))
    }
    return nil
}

// Record is a Bar plus the named indicator series values attached by the
// indicator engine. Values inside a warm-up window are NaN.
type Record struct {
    Bar
    Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Indicator returns the named annotation and whether it is present.
func (r Record) Indicator(name string) (float64, bool) {
    v, ok := r.Indicators[name]
    return v, ok
}

// Dataset is the canonical dataset: unique (ticker, timestamp) keys, each
// ticker's records sorted ascending by timestamp, tickers iterated in sorted
// order. A Dataset returned by an adapter or the cache must be treated as
// immutable by callers; use Clone when a private mutable copy is needed.
type Dataset struct {
    series map[string][]Record
    index  map[string]map[int64]int // ticker -> unix nanos -> position in series
}

func New() *Dataset {
    return &Dataset{
        series: make(map[string][]Record),
        index:  make(map[string]map[int64]int),
    }
}

// Add inserts a bar, keeping the ticker's series time-sorted. A second bar
// for the same (ticker, timestamp) replaces the first: last write wins, so
// re-fetched pages overwrite rather than duplicate.
func (d *Dataset) Add(b Bar) error {
    if err := b.Validate(); err != nil {
        return err
    }
    key := b.Timestamp.UnixNano()
    idx, ok := d.index[b.Ticker]
    if !ok {
        idx = make(map[int64]int)
        d.index[b.Ticker] = idx
    }
    if pos, dup := idx[key]; dup {
        d.series[b.Ticker][pos].Bar = b
        return nil
    }
    s := d.series[b.Ticker]
    pos := sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(b.Timestamp) })
    s = append(s, Record{})
    copy(s[pos+1:], s[pos:])
    s[pos] = Record{Bar: b}
    d.series[b.Ticker] = s
    // positions after the insertion point shifted right
    for i := pos; i < len(s); i++ {
        idx[s[i].Timestamp.UnixNano()] = i
    }
    return nil
}

// Tickers returns the tickers present, sorted ascending.
func (d *Dataset) Tickers() []string {
    out := make([]string, 0, len(d.series))
    for t := range d.series {
        out = append(out, t)
    }
    sort.Strings(out)
    return out
}

// Series returns the time-sorted records for one ticker. The slice is owned
// by the dataset; callers must not mutate it.
func (d *Dataset) Series(ticker string) []Record {
    return d.series[ticker]
}

// Len is the total number of records across all tickers.
func (d *Dataset) Len() int {
    n := 0
    for _, s := range d.series {
        n += len(s)
    }
    return n
}

// SetIndicator attaches a named annotation to one record.
func (d *Dataset) SetIndicator(ticker string, pos int, name string, value float64) {
    r := &d.series[ticker][pos]
    if r.Indicators == nil {
        r.Indicators = make(map[string]float64)
    }
    r.Indicators[name] = value
}

// Clone deep-copies the dataset, including annotation maps. Cache snapshots
// and engine outputs go through here so callers never alias shared state.
func (d *Dataset) Clone() *Dataset {
    out := New()
    for ticker, s := range d.series {
        cs := make([]Record, len(s))
        idx := make(map[int64]int, len(s))
        for i, r := range s {
            cs[i] = Record{Bar: r.Bar}
            if r.Indicators != nil {
                m := make(map[string]float64, len(r.Indicators))
                for k, v := range r.Indicators {
                    m[k] = v
                }
                cs[i].Indicators = m
            }
            idx[r.Timestamp.UnixNano()] = i
        }
        out.series[ticker] = cs
        out.index[ticker] = idx
    }
    return out
}
