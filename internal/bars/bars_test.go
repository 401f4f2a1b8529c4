package bars

import (
    "testing"
    "time"
)

func day(d int) time.Time {
    return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func bar(ticker string, d int, close float64) Bar {
    return Bar{
        Ticker:    ticker,
        Timestamp: day(d),
        Open:      close - 0.5,
        High:      close + 1,
        Low:       close - 1,
        Close:     close,
        Volume:    1000,
    }
}

func TestDataset_AddKeepsSeriesSorted(t *testing.T) {
    d := New()
    for _, dd := range []int{3, 1, 2} {
        if err := d.Add(bar("AAPL", dd, 100)); err != nil {
            t.Fatalf("add: %v", err)
        }
    }
    s := d.Series("AAPL")
    if len(s) != 3 {
        t.Fatalf("want 3 records, got %d", len(s))
    }
    for i := 1; i < len(s); i++ {
        if !s[i].Timestamp.After(s[i-1].Timestamp) {
            t.Fatalf("series not sorted at %d: %v", i, s)
        }
    }
}

func TestDataset_DuplicateKeyLastWriteWins(t *testing.T) {
    d := New()
    if err := d.Add(bar("MSFT", 1, 100)); err != nil {
        t.Fatalf("add: %v", err)
    }
    if err := d.Add(bar("MSFT", 1, 105)); err != nil {
        t.Fatalf("re-add: %v", err)
    }
    s := d.Series("MSFT")
    if len(s) != 1 {
        t.Fatalf("want 1 record after duplicate add, got %d", len(s))
    }
    if s[0].Close != 105 {
        t.Fatalf("want replaced close 105, got %v", s[0].Close)
    }
}

func TestDataset_TickersSorted(t *testing.T) {
    d := New()
    for _, tk := range []string{"MSFT", "AAPL", "GOOG"} {
        if err := d.Add(bar(tk, 1, 50)); err != nil {
            t.Fatalf("add: %v", err)
        }
    }
    got := d.Tickers()
    want := []string{"AAPL", "GOOG", "MSFT"}
    for i := range want {
        if got[i] != want[i] {
            t.Fatalf("want %v, got %v", want, got)
        }
    }
}

func TestBar_ValidateRejectsBadShapes(t *testing.T) {
    cases := []struct {
        name string
        bar  Bar
    }{
        {"zero close", Bar{Ticker: "X", Timestamp: day(1), Open: 1, High: 1, Low: 1}},
        {"high below open", Bar{Ticker: "X", Timestamp: day(1), Open: 10, High: 9, Low: 8, Close: 9}},
        {"low above close", Bar{Ticker: "X", Timestamp: day(1), Open: 10, High: 11, Low: 10.5, Close: 10.2}},
        {"negative volume", Bar{Ticker: "X", Timestamp: day(1), Open: 10, High: 11, Low: 9, Close: 10, Volume: -1}},
        {"missing ticker", Bar{Timestamp: day(1), Open: 10, High: 11, Low: 9, Close: 10}},
    }
    for _, tc := range cases {
        if err := tc.bar.Validate(); err == nil {
            t.Fatalf("%s: want error, got nil", tc.name)
        }
    }
}

func TestDataset_CloneIsDeep(t *testing.T) {
    d := New()
    if err := d.Add(bar("AAPL", 1, 100)); err != nil {
        t.Fatalf("add: %v", err)
    }
    d.SetIndicator("AAPL", 0, "sma_20", 99.5)

    c := d.Clone()
    c.SetIndicator("AAPL", 0, "sma_20", -1)
    c.Series("AAPL")[0].Bar.Close = 1

    orig := d.Series("AAPL")[0]
    if orig.Close != 100 {
        t.Fatalf("clone mutated original close: %v", orig.Close)
    }
    if v, _ := orig.Indicator("sma_20"); v != 99.5 {
        t.Fatalf("clone mutated original indicator: %v", v)
    }
}
