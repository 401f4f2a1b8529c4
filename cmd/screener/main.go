package main

import (
    "fmt"
    "math"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/olekukonko/tablewriter"
    log "github.com/sirupsen/logrus"
    "github.com/spf13/cobra"

    "marketdata/internal/bars"
    "marketdata/internal/config"
    "marketdata/internal/indicators"
    "marketdata/internal/provider"
    "marketdata/internal/provider/registry"
    "marketdata/internal/screener"
)

var (
    cfgPath      string
    providerName string
    period       string
    interval     string

    cfg config.Config
    reg *registry.Registry
)

func main() {
    root := &cobra.Command{
        Use:          "screener",
        Short:        "Fetch normalized market data and screen tickers on technical indicators",
        SilenceUsage: true,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
            if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
                log.WithError(err).Warn("could not load .env file")
            }

            var err error
            cfg, err = config.Load(cfgPath)
            if err != nil {
                return err
            }

            lvl, err := log.ParseLevel(cfg.General.LogLevel)
            if err != nil {
                lvl = log.InfoLevel
            }
            log.SetLevel(lvl)
            log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

            if period == "" {
                period = cfg.General.DefaultPeriod
            }
            if interval == "" {
                interval = cfg.General.DefaultInterval
            }

            reg = registry.New(cfg, nil)
            return nil
        },
    }

    root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.json")
    root.PersistentFlags().StringVarP(&providerName, "provider", "p", "", "data provider ("+strings.Join(registry.Names(), ", ")+")")
    root.PersistentFlags().StringVar(&period, "period", "", "history period (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, ytd, max)")
    root.PersistentFlags().StringVar(&interval, "interval", "", "bar interval (1m, 5m, 15m, 30m, 1h, 1d, 1wk, 1mo)")

    root.AddCommand(fetchCmd(), screenCmd(), universeCmd(), clockCmd())

    if err := root.Execute(); err != nil {
        os.Exit(1)
    }
}

func adapter() (provider.Adapter, error) {
    if providerName != "" {
        return reg.Get(providerName, nil)
    }
    return reg.GetDefault(nil)
}

func fetchCmd() *cobra.Command {
    var annotate bool
    cmd := &cobra.Command{
        Use:   "fetch SYMBOL [SYMBOL...]",
        Short: "Fetch history and print the latest bar per symbol",
        Args:  cobra.MinimumNArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := adapter()
            if err != nil {
                return err
            }
            ds, err := a.GetHistoricalData(cmd.Context(), args, period, interval)
            if err != nil {
                return err
            }
            if annotate {
                ds = indicators.Annotate(ds)
            }
            printLatest(ds, annotate)
            return nil
        },
    }
    cmd.Flags().BoolVar(&annotate, "indicators", false, "attach the indicator battery before printing")
    return cmd
}

func screenCmd() *cobra.Command {
    var (
        universeName string
        predName     string
        rsiThreshold float64
    )
    cmd := &cobra.Command{
        Use:   "screen",
        Short: "Screen a universe with a predicate",
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := adapter()
            if err != nil {
                return err
            }

            var pred screener.Predicate
            switch predName {
            case "golden_cross":
                pred = screener.GoldenCross()
            case "oversold":
                pred = screener.Oversold(rsiThreshold)
            default:
                return fmt.Errorf("unknown predicate %q (use golden_cross or oversold)", predName)
            }

            res, err := screener.Run(cmd.Context(), a, provider.UniverseType(universeName), period, interval, pred)
            if err != nil {
                return err
            }
            printMatches(res)
            return nil
        },
    }
    cmd.Flags().StringVarP(&universeName, "universe", "u", string(provider.UniverseDefault), "symbol universe (default, sp500, most_active, all)")
    cmd.Flags().StringVar(&predName, "predicate", "oversold", "screen predicate (golden_cross, oversold)")
    cmd.Flags().Float64Var(&rsiThreshold, "rsi-threshold", 30, "RSI cutoff for the oversold predicate")
    return cmd
}

func universeCmd() *cobra.Command {
    var universeName string
    cmd := &cobra.Command{
        Use:   "universe",
        Short: "List the symbols in a universe",
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := adapter()
            if err != nil {
                return err
            }
            symbols, err := a.GetStockUniverse(cmd.Context(), provider.UniverseType(universeName))
            if err != nil {
                return err
            }
            for _, s := range symbols {
                fmt.Println(s)
            }
            return nil
        },
    }
    cmd.Flags().StringVarP(&universeName, "universe", "u", string(provider.UniverseDefault), "symbol universe (default, sp500, most_active, all)")
    return cmd
}

func clockCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "clock",
        Short: "Report whether the market is open",
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := adapter()
            if err != nil {
                return err
            }
            clock, ok := a.(provider.MarketClock)
            if !ok {
                return fmt.Errorf("provider %s has no market clock", a.Name())
            }
            open, err := clock.IsMarketOpen(cmd.Context())
            if err != nil {
                return err
            }
            if open {
                fmt.Println("open")
            } else {
                fmt.Println("closed")
            }
            return nil
        },
    }
}

// highlight indicators shown alongside the latest bar in fetch output.
var summaryIndicators = []string{"rsi", "sma_20", "sma_50", "macd", "atr"}

func printLatest(ds *bars.Dataset, annotated bool) {
    table := tablewriter.NewWriter(os.Stdout)
    header := []string{"Ticker", "Timestamp", "Open", "High", "Low", "Close", "Volume"}
    if annotated {
        for _, name := range summaryIndicators {
            header = append(header, strings.ToUpper(name))
        }
    }
    table.SetHeader(header)

    for _, ticker := range ds.Tickers() {
        s := ds.Series(ticker)
        rec := s[len(s)-1]
        row := []string{
            ticker,
            rec.Timestamp.Format(time.RFC3339),
            fmtPrice(rec.Open),
            fmtPrice(rec.High),
            fmtPrice(rec.Low),
            fmtPrice(rec.Close),
            strconv.FormatInt(rec.Volume, 10),
        }
        if annotated {
            for _, name := range summaryIndicators {
                if v, ok := rec.Indicator(name); ok && !math.IsNaN(v) {
                    row = append(row, fmtPrice(v))
                } else {
                    row = append(row, "-")
                }
            }
        }
        table.Append(row)
    }
    table.Render()
}

func printMatches(res screener.Result) {
    if len(res.Matches) == 0 {
        fmt.Println("no matches")
        return
    }
    table := tablewriter.NewWriter(os.Stdout)
    table.SetHeader([]string{"Ticker", "Signal"})
    for _, ticker := range res.Matches {
        parts := make([]string, 0, len(res.Details[ticker]))
        for name, v := range res.Details[ticker] {
            parts = append(parts, fmt.Sprintf("%s=%s", name, fmtPrice(v)))
        }
        table.Append([]string{ticker, strings.Join(parts, " ")})
    }
    table.Render()
}

func fmtPrice(v float64) string {
    return strconv.FormatFloat(v, 'f', 2, 64)
}
