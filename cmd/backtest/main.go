// cmd/backtest replays stored candles through the full analysis pipeline
// with paper execution, reporting signals, trades and realized PnL.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/candles.db --symbol=BTCUSDT --tf=1m --from=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/analyzer"
	"github.com/Sonofgod20/trading-ai/internal/execution"
	"github.com/Sonofgod20/trading-ai/internal/indicator"
	"github.com/Sonofgod20/trading-ai/internal/logger"
	"github.com/Sonofgod20/trading-ai/internal/model"
	"github.com/Sonofgod20/trading-ai/internal/risk"
	sqlitestore "github.com/Sonofgod20/trading-ai/internal/store/sqlite"
	"github.com/Sonofgod20/trading-ai/internal/strategy"
	"github.com/Sonofgod20/trading-ai/internal/tracker"
)

func main() {
	dbPath := flag.String("db", "data/candles.db", "Path to SQLite candle database")
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to replay")
	tf := flag.String("tf", "1m", "Timeframe to replay")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	stratPath := flag.String("strategy", "", "Strategy YAML file (empty uses the built-in default)")
	equity := flag.Float64("equity", 10000, "Starting account equity")
	flag.Parse()

	logger.Init("backtest", slog.LevelWarn)

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqlite open failed: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	stratFile, err := strategy.LoadFile(*stratPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strategy load failed: %v\n", err)
		os.Exit(1)
	}
	active, _ := stratFile.Find(stratFile.Active)
	agg, err := strategy.NewAggregator(active)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strategy invalid: %v\n", err)
		os.Exit(1)
	}

	params := model.DefaultRiskParameters()
	params.AccountEquity = *equity

	exec := execution.NewPaperExecutor(4096, 0) // no slippage in replay
	trk := tracker.New(tracker.Config{
		MaxOpenPositions: params.MaxOpenPositions,
		StopWinsOnTie:    true,
	}, nil)

	acfg := analyzer.DefaultConfig()
	acfg.Symbols = []string{*symbol}
	acfg.Timeframe = *tf
	acfg.SnapshotInterval = 0
	acfg.PendingSweep = 0

	pipeline, err := analyzer.New(acfg, analyzer.Deps{
		Engine:     indicator.NewEngine(indicator.DefaultConfig()),
		Aggregator: agg,
		Risk:       risk.NewManager(params),
		Tracker:    trk,
		Exec:       exec,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline init failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	candles, err := reader.CandlesAfter(ctx, *symbol, *tf, *fromTS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candle load failed: %v\n", err)
		os.Exit(1)
	}
	if len(candles) == 0 {
		fmt.Fprintf(os.Stderr, "no candles for %s:%s after %d\n", *symbol, *tf, *fromTS)
		os.Exit(1)
	}

	start := time.Now()
	var processed, signals, entries, exits int
	for _, c := range candles {
		exec.SetMarkPrice(c.Symbol, c.Close)

		res, err := pipeline.ProcessCandle(ctx, c)
		if err != nil {
			slog.Warn("tick aborted", "ts", c.TS, "err", err)
		}
		processed++
		if res.Signal.Direction != model.DirectionNone {
			signals++
		}
		if res.Decision != nil && res.Decision.Accepted {
			entries++
		}
		exits += len(res.Exits)

		drainEvents(exec, trk)
	}

	fmt.Printf("\nBacktest %s:%s — %d candles (%s to %s) in %v\n",
		*symbol, *tf, processed,
		candles[0].TS.Format("2006-01-02 15:04"),
		candles[len(candles)-1].TS.Format("2006-01-02 15:04"),
		time.Since(start).Truncate(time.Millisecond))
	fmt.Printf("  strategy:       %s\n", agg.ActiveStrategy())
	fmt.Printf("  signals:        %d\n", signals)
	fmt.Printf("  entries:        %d\n", entries)
	fmt.Printf("  exits:          %d\n", exits)
	fmt.Printf("  open at end:    %d\n", trk.LiveCount())
	fmt.Printf("  realized PnL:   %+.2f (%.2f%% of %.0f equity)\n",
		trk.RealizedPnL(), trk.RealizedPnL() / *equity*100, *equity)
}

// drainEvents applies all queued venue events to the tracker. In replay the
// venue fills synchronously, so this settles state between candles.
func drainEvents(exec *execution.PaperExecutor, trk *tracker.Tracker) {
	for {
		select {
		case ev := <-exec.Events():
			var err error
			switch e := ev.(type) {
			case model.FillEvent:
				err = trk.ApplyFill(e)
			case model.CloseEvent:
				err = trk.ApplyClose(e)
			}
			if err != nil {
				slog.Warn("event rejected", "err", err)
			}
		default:
			return
		}
	}
}
