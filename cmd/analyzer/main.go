// cmd/analyzer runs the live pipeline: exchange WebSocket feed → candle
// aggregation → indicator/pattern/book analysis → signal aggregation → risk
// gate → paper execution, with results published to Redis and candles
// persisted to SQLite.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sonofgod20/trading-ai/config"
	"github.com/Sonofgod20/trading-ai/internal/analyzer"
	"github.com/Sonofgod20/trading-ai/internal/execution"
	"github.com/Sonofgod20/trading-ai/internal/feed"
	"github.com/Sonofgod20/trading-ai/internal/indicator"
	"github.com/Sonofgod20/trading-ai/internal/logger"
	"github.com/Sonofgod20/trading-ai/internal/metrics"
	"github.com/Sonofgod20/trading-ai/internal/model"
	"github.com/Sonofgod20/trading-ai/internal/notification"
	"github.com/Sonofgod20/trading-ai/internal/ringbuf"
	"github.com/Sonofgod20/trading-ai/internal/risk"
	redisstore "github.com/Sonofgod20/trading-ai/internal/store/redis"
	sqlitestore "github.com/Sonofgod20/trading-ai/internal/store/sqlite"
	"github.com/Sonofgod20/trading-ai/internal/strategy"
	"github.com/Sonofgod20/trading-ai/internal/tracker"
)

func main() {
	logger.Init("analyzer", parseLogLevel(os.Getenv("LOG_LEVEL")))

	cfg := config.Load()
	slog.Info("starting", "symbols", cfg.Symbols, "timeframe", cfg.Timeframe, "timeframes", cfg.Timeframes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)

	// ---- Storage ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		slog.Error("sqlite init failed", "err", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)

	journal, err := tracker.NewSQLiteJournal(cfg.JournalPath)
	if err != nil {
		slog.Error("journal init failed", "err", err)
		os.Exit(1)
	}
	defer journal.Close()

	// ---- Result publisher (optional: pipeline runs without Redis) ----
	pubCfg := redisstore.DefaultPublisherConfig(cfg.RedisAddr)
	pubCfg.Password = cfg.RedisPassword
	pubCfg.DB = cfg.RedisDB
	publisher, err := redisstore.NewPublisher(pubCfg)
	if err != nil {
		slog.Warn("redis unavailable, continuing without result publishing", "err", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		publisher.OnBreakerState = func(s redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(s))
			if s == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		defer publisher.Close()
	}

	// ---- Strategy (hot-swappable via file watch) ----
	stratFile, err := strategy.LoadFile(cfg.StrategyFile)
	if err != nil {
		slog.Error("strategy load failed", "path", cfg.StrategyFile, "err", err)
		os.Exit(1)
	}
	active, ok := stratFile.Find(cfg.StrategyName)
	if !ok {
		active, _ = stratFile.Find(stratFile.Active)
	}
	agg, err := strategy.NewAggregator(active)
	if err != nil {
		slog.Error("strategy invalid", "strategy", active.Name, "err", err)
		os.Exit(1)
	}
	if err := strategy.Watch(cfg.StrategyFile, agg); err != nil {
		slog.Warn("strategy watch disabled", "err", err)
	}
	slog.Info("strategy active", "name", agg.ActiveStrategy())

	// ---- Notifications ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	alerts := notification.NewFanout(backends...)

	// ---- Core pipeline components ----
	exec := execution.NewPaperExecutor(1024, cfg.SlippageBps)
	trk := tracker.New(tracker.Config{
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		Hedging:          cfg.Risk.Hedging,
		StopWinsOnTie:    cfg.StopWinsOnTie,
		PendingTimeout:   2 * time.Minute,
	}, journal)

	acfg := analyzer.DefaultConfig()
	acfg.Symbols = cfg.Symbols
	acfg.Timeframe = cfg.Timeframe
	acfg.Lookback = cfg.Lookback
	acfg.CollabTimeout = cfg.CollabTimeout
	acfg.SnapshotInterval = cfg.SnapshotInterval
	acfg.PendingSweep = cfg.PendingSweep

	// ---- Indicator engine: prefer the latest checkpoint over a cold start,
	// bounded to five candle intervals of staleness.
	tfDur, err := feed.TimeframeDuration(cfg.Timeframe)
	if err != nil {
		slog.Error("bad timeframe", "timeframe", cfg.Timeframe, "err", err)
		os.Exit(1)
	}
	engine := indicator.NewEngine(indicator.DefaultConfig())
	engineRestored := false
	if data, err := sqlWriter.ReadLatestSnapshotJSON(); err != nil {
		slog.Warn("checkpoint read failed, starting cold", "err", err)
	} else if data != nil {
		restored, err := indicator.RestoreEngineWithin(indicator.DefaultConfig(), data, 5*tfDur)
		switch {
		case err == nil:
			engine = restored
			engineRestored = true
			slog.Info("indicator engine restored from checkpoint")
		case errors.Is(err, indicator.ErrStaleSnapshot):
			slog.Info("checkpoint stale, warming from history instead")
		default:
			slog.Warn("checkpoint restore failed, starting cold", "err", err)
		}
	}

	deps := analyzer.Deps{
		Engine:     engine,
		Aggregator: agg,
		Risk:       risk.NewManager(cfg.Risk),
		Tracker:    trk,
		Exec:       exec,
		Snapshots:  sqlWriter,
		Metrics:    prom,
		Alerts:     alerts,
	}
	if publisher != nil {
		deps.Publisher = publisher
	}

	pipeline, err := analyzer.New(acfg, deps)
	if err != nil {
		slog.Error("pipeline init failed", "err", err)
		os.Exit(1)
	}

	// ---- Warm-up from REST klines. A restored engine only needs the candle
	// history for level/pattern scans; re-feeding it would double-count.
	rest := feed.NewRESTClient(cfg.RESTURL)
	warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
	warmFn := pipeline.Warmup
	if engineRestored {
		warmFn = pipeline.WarmupHistory
	}
	if err := warmFn(warmCtx, rest, cfg.Lookback); err != nil {
		slog.Warn("warm-up incomplete, indicators will converge live", "err", err)
	}
	warmCancel()

	for _, sym := range cfg.Symbols {
		if ts, err := sqlWriter.GetLastTimestamp(sym, cfg.Timeframe); err == nil && ts > 0 {
			slog.Info("candle store resume point", "symbol", sym,
				"last_candle", time.Unix(ts, 0).UTC().Format(time.RFC3339))
		}
	}

	// ---- Feed: WS → trades/books, aggregator → closed candles ----
	tradeRaw := make(chan model.Trade, 10000)
	tradeCh := make(chan model.Trade, 10000)
	candleCh := make(chan model.PricePoint, 5000)
	sqliteCandleCh := make(chan model.PricePoint, 5000)

	// Candles bound for SQLite go through an SPSC ring so a slow disk batch
	// never backpressures the fan-out. The fan-out goroutine is the sole
	// producer, the pump below the sole consumer.
	persistRing := ringbuf.New(8192)

	ws := feed.NewWS(feed.WSConfig{URL: cfg.WSURL, Symbols: cfg.Symbols}, tradeRaw, pipeline.Books())
	ws.OnReconnect = func() { prom.WSReconnects.Inc() }
	ws.OnDrop = func() { prom.DroppedEvents.Inc() }
	ws.OnConnected = health.SetWSConnected

	candleAgg, err := feed.NewAggregator(cfg.Timeframes)
	if err != nil {
		slog.Error("aggregator init failed", "err", err)
		os.Exit(1)
	}
	candleAgg.OnLateTrade = func() { prom.DroppedEvents.Inc() }

	// Mark-price bridge: every trade updates the paper venue before feeding
	// the candle aggregator.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-tradeRaw:
				if !ok {
					return
				}
				prom.TradesTotal.Inc()
				exec.SetMarkPrice(t.Symbol, t.Price)
				select {
				case tradeCh <- t:
				default:
					prom.DroppedEvents.Inc()
				}
			}
		}
	}()

	go candleAgg.RunLoop(ctx.Done(), tradeCh, candleCh)

	// Closed candles fan out to SQLite (all timeframes) and the pipeline
	// (its timeframe only).
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-candleCh:
				if !ok {
					return
				}
				health.SetLastCandleTime(p.TS)
				persistRing.Push(p)
				if p.Timeframe != cfg.Timeframe {
					continue
				}
				select {
				case pipeline.Candles() <- p:
				default:
					prom.DroppedEvents.Inc()
				}
			}
		}
	}()

	// Pump: drain the ring into the writer channel off the hot path. Blocking
	// here is fine; the producer keeps pushing (or counting overflow).
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		var lastOverflow uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					p, ok := persistRing.Pop()
					if !ok {
						break
					}
					select {
					case sqliteCandleCh <- p:
					case <-ctx.Done():
						return
					}
				}
				if of := persistRing.Overflow(); of > lastOverflow {
					prom.DroppedEvents.Add(float64(of - lastOverflow))
					lastOverflow = of
				}
			}
		}
	}()

	go sqlWriter.Run(ctx, sqliteCandleCh)

	// ---- Debug surface: read-only views over the running pipeline ----
	if publisher != nil {
		metricsSrv.Handle("/debug/latest", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sym := r.URL.Query().Get("symbol")
			if sym == "" {
				sym = cfg.Symbols[0]
			}
			data, err := publisher.Latest(r.Context(), sym)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		}))
	}
	metricsSrv.Handle("/debug/positions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs, err := journal.Recent(50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(recs)
	}))
	metricsSrv.Handle("/debug/forming", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		if sym == "" {
			sym = cfg.Symbols[0]
		}
		tf := r.URL.Query().Get("tf")
		if tf == "" {
			tf = cfg.Timeframe
		}
		out := struct {
			Candle     *model.PricePoint   `json:"candle,omitempty"`
			Indicators *model.IndicatorSet `json:"indicators,omitempty"`
		}{}
		if c, ok := candleAgg.Forming(sym, tf); ok {
			out.Candle = &c
		}
		if set, ok := pipeline.Preview(sym); ok {
			out.Indicators = &set
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	metricsSrv.Start()

	// ---- Liveness ----
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Run ----
	go func() {
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("feed stopped", "err", err)
		}
	}()
	go func() {
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("pipeline stopped", "err", err)
		}
	}()

	slog.Info("pipeline ready",
		"strategy", agg.ActiveStrategy(),
		"max_positions", cfg.Risk.MaxOpenPositions,
		"equity", cfg.Risk.AccountEquity)

	<-sigCh
	slog.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	slog.Info("shutdown complete",
		"realized_pnl", trk.RealizedPnL(),
		"live_positions", trk.LiveCount())
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
