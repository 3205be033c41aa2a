// Package analyzer runs the per-candle analysis pipeline: indicators,
// candlestick patterns and order book microstructure feed the signal
// aggregator; actionable signals pass through the risk gate and, when
// accepted, become tracked positions on the execution venue. One Run
// goroutine owns all pipeline state; collaborator calls are bounded by
// timeouts so a slow venue or publisher can only ever cost one tick.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/book"
	"github.com/Sonofgod20/trading-ai/internal/indicator"
	"github.com/Sonofgod20/trading-ai/internal/logger"
	"github.com/Sonofgod20/trading-ai/internal/metrics"
	"github.com/Sonofgod20/trading-ai/internal/model"
	"github.com/Sonofgod20/trading-ai/internal/notification"
	"github.com/Sonofgod20/trading-ai/internal/pattern"
	"github.com/Sonofgod20/trading-ai/internal/ringbuf"
	"github.com/Sonofgod20/trading-ai/internal/risk"
	"github.com/Sonofgod20/trading-ai/internal/strategy"
	"github.com/Sonofgod20/trading-ai/internal/tracker"
)

// Config tunes the pipeline.
type Config struct {
	Symbols   []string
	Timeframe string

	// Lookback is the candle history retained per symbol for pattern and
	// support/resistance scans.
	Lookback int

	// CollabTimeout bounds every call to an external collaborator
	// (execution venue, result publisher). A timeout aborts the current
	// tick only; the pipeline continues with the next candle.
	CollabTimeout time.Duration

	// SnapshotInterval is how often indicator state is checkpointed.
	// Zero disables periodic checkpoints.
	SnapshotInterval time.Duration

	// PendingSweep is how often stale PENDING positions are expired.
	PendingSweep time.Duration

	Levels indicator.LevelConfig
	Book   book.Config

	// CandleBuffer sizes the ingest channels.
	CandleBuffer int
}

// DefaultConfig returns the live pipeline settings.
func DefaultConfig() Config {
	return Config{
		Timeframe:        "1m",
		Lookback:         64,
		CollabTimeout:    3 * time.Second,
		SnapshotInterval: 30 * time.Second,
		PendingSweep:     15 * time.Second,
		Levels:           indicator.DefaultLevelConfig(),
		Book:             book.DefaultConfig(),
		CandleBuffer:     1024,
	}
}

// Deps are the collaborators the pipeline is wired to. Publisher, Snapshots,
// Metrics and Alerts may be nil; the pipeline degrades gracefully without
// them.
type Deps struct {
	Engine     *indicator.Engine
	Aggregator *strategy.Aggregator
	Risk       *risk.Manager
	Tracker    *tracker.Tracker
	Exec       model.ExecutionClient
	Publisher  model.ResultPublisher
	Snapshots  model.SnapshotStore
	Metrics    *metrics.Metrics
	Alerts     notification.Notifier
}

// Analyzer is the per-candle pipeline orchestrator.
type Analyzer struct {
	cfg Config

	engine  *indicator.Engine
	scanner *pattern.Scanner
	books   *book.Analyzer
	agg     *strategy.Aggregator
	risk    *risk.Manager
	trk     *tracker.Tracker
	exec    model.ExecutionClient
	pub     model.ResultPublisher
	snaps   model.SnapshotStore
	prom    *metrics.Metrics
	alerts  notification.Notifier

	// Pipeline state, owned by the Run goroutine.
	history   map[string]*ringbuf.History
	lastMicro map[string]model.MicrostructureMetrics

	// Intratick indicator preview, written by the Run goroutine on each
	// book snapshot and read concurrently via Preview.
	previewMu sync.Mutex
	preview   map[string]model.IndicatorSet

	candleCh chan model.PricePoint
	bookCh   chan model.OrderBookSnapshot
}

// New wires the pipeline. Engine, Aggregator, Risk, Tracker and Exec are
// required.
func New(cfg Config, deps Deps) (*Analyzer, error) {
	if deps.Engine == nil || deps.Aggregator == nil || deps.Risk == nil ||
		deps.Tracker == nil || deps.Exec == nil {
		return nil, errors.New("analyzer: engine, aggregator, risk, tracker and exec are required")
	}
	if cfg.Lookback < 8 {
		cfg.Lookback = 8
	}
	if cfg.CandleBuffer < 1 {
		cfg.CandleBuffer = 1024
	}

	return &Analyzer{
		cfg:       cfg,
		engine:    deps.Engine,
		scanner:   pattern.NewScanner(),
		books:     book.NewAnalyzer(cfg.Book),
		agg:       deps.Aggregator,
		risk:      deps.Risk,
		trk:       deps.Tracker,
		exec:      deps.Exec,
		pub:       deps.Publisher,
		snaps:     deps.Snapshots,
		prom:      deps.Metrics,
		alerts:    deps.Alerts,
		history:   make(map[string]*ringbuf.History, len(cfg.Symbols)),
		lastMicro: make(map[string]model.MicrostructureMetrics, len(cfg.Symbols)),
		preview:   make(map[string]model.IndicatorSet, len(cfg.Symbols)),
		candleCh:  make(chan model.PricePoint, cfg.CandleBuffer),
		bookCh:    make(chan model.OrderBookSnapshot, cfg.CandleBuffer),
	}, nil
}

// Candles is the closed-candle ingest channel.
func (a *Analyzer) Candles() chan<- model.PricePoint { return a.candleCh }

// Books is the order book snapshot ingest channel.
func (a *Analyzer) Books() chan<- model.OrderBookSnapshot { return a.bookCh }

// Warmup replays historical candles through the indicator engine and the
// pattern/level history so the first live candle already sees warm state.
func (a *Analyzer) Warmup(ctx context.Context, md model.MarketData, count int) error {
	return a.warm(ctx, md, count, true)
}

// WarmupHistory fills only the pattern/level history window. Used when the
// indicator engine was restored from a checkpoint: replaying recent candles
// into already-warm accumulators would double-count them.
func (a *Analyzer) WarmupHistory(ctx context.Context, md model.MarketData, count int) error {
	return a.warm(ctx, md, count, false)
}

func (a *Analyzer) warm(ctx context.Context, md model.MarketData, count int, warmEngine bool) error {
	for _, symbol := range a.cfg.Symbols {
		points, err := md.RecentCandles(ctx, symbol, a.cfg.Timeframe, count)
		if err != nil {
			return fmt.Errorf("warmup %s: %w", symbol, err)
		}
		if warmEngine {
			a.engine.Warm(points)
		}
		h := a.hist(symbol)
		for i := range points {
			h.Append(points[i])
		}
		slog.Info("warmed up", "symbol", symbol, "candles", len(points), "engine", warmEngine)
	}
	return nil
}

// Run drives the pipeline until ctx is cancelled. It consumes candles, book
// snapshots and execution events, sweeps expired pending positions and
// checkpoints indicator state.
func (a *Analyzer) Run(ctx context.Context) error {
	sweep := newTicker(a.cfg.PendingSweep)
	defer sweep.Stop()
	checkpoint := newTicker(a.cfg.SnapshotInterval)
	defer checkpoint.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Checkpoint()
			return ctx.Err()

		case p := <-a.candleCh:
			if _, err := a.ProcessCandle(ctx, p); err != nil {
				slog.Warn("tick aborted", "symbol", p.Symbol, "ts", p.TS, "err", err)
			}

		case snap := <-a.bookCh:
			a.ProcessBook(snap)

		case ev, ok := <-a.exec.Events():
			if !ok {
				return errors.New("execution event stream closed")
			}
			a.applyExecEvent(ctx, ev)

		case <-sweep.C:
			a.sweepPending(ctx)

		case <-checkpoint.C:
			a.Checkpoint()
		}
	}
}

// ProcessBook analyzes a depth snapshot and caches the metrics for the next
// candle's evaluation. Malformed snapshots are rejected and do not overwrite
// the cache.
func (a *Analyzer) ProcessBook(snap model.OrderBookSnapshot) (model.MicrostructureMetrics, error) {
	micro, err := a.books.Analyze(snap)
	if err != nil {
		a.count(func(m *metrics.Metrics) { m.BookRejected.Inc() })
		slog.Warn("order book snapshot rejected", "symbol", snap.Symbol, "err", err)
		return model.MicrostructureMetrics{}, err
	}
	a.lastMicro[snap.Symbol] = micro
	a.count(func(m *metrics.Metrics) { m.BookSnapshots.Inc() })

	// Intratick preview: indicator values as if the candle closed at the
	// current mid. The engine itself is only ever touched from this
	// goroutine; the cache is what Preview readers see.
	if set, ok := a.engine.ProcessPeek(model.PricePoint{
		Symbol:    snap.Symbol,
		Timeframe: a.cfg.Timeframe,
		TS:        micro.TS,
		Open:      micro.MidPrice,
		High:      micro.MidPrice,
		Low:       micro.MidPrice,
		Close:     micro.MidPrice,
	}); ok {
		a.previewMu.Lock()
		a.preview[snap.Symbol] = set
		a.previewMu.Unlock()
	}
	return micro, nil
}

// Preview returns the intratick indicator preview computed on the most
// recent book snapshot. ok is false before the first snapshot for a symbol,
// or before its series has seen a closed candle.
func (a *Analyzer) Preview(symbol string) (model.IndicatorSet, bool) {
	a.previewMu.Lock()
	defer a.previewMu.Unlock()
	set, ok := a.preview[symbol]
	return set, ok
}

// ProcessCandle runs one full analysis pass for a closed candle. The stage
// order is fixed: exits on the new candle's range first, then indicators,
// patterns and levels, then signal aggregation, then the risk gate and order
// submission. Returns the tick's result even when a collaborator error
// aborted the trading half.
func (a *Analyzer) ProcessCandle(ctx context.Context, p model.PricePoint) (Result, error) {
	start := time.Now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(p.Symbol, p.TS))

	// Stop/target touches use the candle's full range and must fire before
	// the same candle can justify a new entry on the symbol.
	exits := a.requestExits(ctx, p)

	h := a.hist(p.Symbol)
	h.Append(p)
	candles := h.Slice()

	indicators := a.engine.Process(p)
	patterns := a.scanner.Scan(candles)
	levels := indicator.FindLevels(candles, a.cfg.Levels)
	micro := a.lastMicro[p.Symbol]

	sig := a.agg.Evaluate(strategy.Inputs{
		Symbol:     p.Symbol,
		Price:      p.Close,
		TS:         p.TS,
		Indicators: indicators,
		Patterns:   patterns,
		Micro:      micro,
		Levels:     levels,
	})

	res := Result{
		Symbol:     p.Symbol,
		Timeframe:  p.Timeframe,
		TS:         p.TS,
		Candle:     p,
		Indicators: indicators,
		Patterns:   patterns,
		Micro:      micro,
		Levels:     levels,
		Signal:     sig,
		Exits:      exits,
	}

	a.observe(start, patterns, sig)

	var tickErr error
	if sig.Actionable() {
		res.Decision, tickErr = a.tryEnter(ctx, sig, indicators, levels)
	}

	res.OpenPositions = a.trk.LiveCount()
	res.RealizedPnL = a.trk.RealizedPnL()
	a.count(func(m *metrics.Metrics) {
		m.OpenPositions.Set(float64(res.OpenPositions))
		m.RealizedPnL.Set(res.RealizedPnL)
	})

	a.publish(ctx, res)
	return res, tickErr
}

// tryEnter runs the risk gate and, on acceptance, submits the entry order and
// reserves the position. A reservation failure after submission cancels the
// venue order so no untracked position can fill.
func (a *Analyzer) tryEnter(ctx context.Context, sig model.Signal, ind model.IndicatorSet, levels model.SupportResistance) (*Decision, error) {
	equity := a.risk.Params().AccountEquity + a.trk.RealizedPnL()
	decision := a.risk.ProposeTrade(risk.TradeContext{
		Signal:        sig,
		Equity:        equity,
		OpenPositions: a.trk.LiveCount(),
		ATR:           ind.ATR,
		ATRReady:      ind.ATRReady,
		Levels:        levels,
	})

	if !decision.Accepted {
		a.count(func(m *metrics.Metrics) { m.RiskRejections.WithLabelValues(decision.Reason).Inc() })
		return &Decision{Reason: decision.Reason}, nil
	}

	pos := decision.Position
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CollabTimeout)
	orderID, err := a.exec.SubmitOrder(cctx, model.OrderRequest{
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		Size:       pos.Size,
		StopLoss:   pos.StopLoss,
		TakeProfit: pos.TakeProfit,
	})
	cancel()
	if err != nil {
		a.count(func(m *metrics.Metrics) { m.CollaboratorErrors.WithLabelValues("execution").Inc() })
		return nil, fmt.Errorf("submit order for %s: %w", pos.Symbol, err)
	}

	if err := a.trk.Reserve(pos, orderID); err != nil {
		// Lost the cap race against another symbol pipeline. Unwind the
		// venue order; best effort.
		cctx, cancel := context.WithTimeout(ctx, a.cfg.CollabTimeout)
		if cerr := a.exec.CancelOrder(cctx, orderID); cerr != nil {
			slog.Error("orphan order cancel failed", "order", orderID, "err", cerr)
		}
		cancel()
		if errors.Is(err, model.ErrInvariantViolation) {
			a.raiseInvariant(ctx, pos.Symbol, err)
		}
		return &Decision{Reason: err.Error()}, nil
	}

	a.count(func(m *metrics.Metrics) { m.OrdersTotal.Inc() })
	args := []any{
		"symbol", pos.Symbol, "direction", pos.Direction, "entry", pos.EntryPrice,
		"stop", pos.StopLoss, "target", pos.TakeProfit, "size", pos.Size, "order", orderID,
	}
	slog.Info("position proposed", append(args, logger.LogWithTrace(ctx)...)...)
	return &Decision{Accepted: true, PositionID: pos.ID, OrderID: orderID}, nil
}

// requestExits asks the venue to close every position whose stop or target
// the candle touched. The state transition itself lands later through the
// CloseEvent; a venue error here leaves the position open for the next tick.
func (a *Analyzer) requestExits(ctx context.Context, p model.PricePoint) []ExitRecord {
	intents := a.trk.TriggeredExits(p)
	if len(intents) == 0 {
		return nil
	}

	out := make([]ExitRecord, 0, len(intents))
	for _, intent := range intents {
		cctx, cancel := context.WithTimeout(ctx, a.cfg.CollabTimeout)
		err := a.exec.ClosePosition(cctx, intent.OrderID, intent.Reason)
		cancel()
		if err != nil {
			a.count(func(m *metrics.Metrics) { m.CollaboratorErrors.WithLabelValues("execution").Inc() })
			slog.Error("exit request failed", "position", intent.PositionID, "err", err)
			continue
		}
		a.count(func(m *metrics.Metrics) { m.ExitsTotal.WithLabelValues(string(intent.Reason)).Inc() })
		out = append(out, ExitRecord{
			PositionID: intent.PositionID,
			Price:      intent.Price,
			Reason:     intent.Reason,
		})
	}
	return out
}

// applyExecEvent routes one fill/close notification into the tracker.
func (a *Analyzer) applyExecEvent(ctx context.Context, ev any) {
	var err error
	var symbol string
	switch e := ev.(type) {
	case model.FillEvent:
		symbol = e.Symbol
		err = a.trk.ApplyFill(e)
	case model.CloseEvent:
		symbol = e.Symbol
		err = a.trk.ApplyClose(e)
		if err == nil && a.alerts != nil {
			if pos, ok := a.trk.PositionByOrder(e.OrderID); ok && pos.Status == model.StatusClosed {
				a.alerts.Send(ctx, notification.PositionClosedAlert(pos, pos.PnL(pos.ExitPrice)))
			}
		}
	default:
		slog.Warn("unknown execution event", "type", fmt.Sprintf("%T", ev))
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, model.ErrStaleEvent):
		a.count(func(m *metrics.Metrics) { m.StaleEvents.Inc() })
		slog.Debug("stale execution event discarded", "symbol", symbol, "err", err)
	case errors.Is(err, model.ErrInvariantViolation):
		a.raiseInvariant(ctx, symbol, err)
	default:
		slog.Error("execution event apply failed", "symbol", symbol, "err", err)
	}
}

// sweepPending expires overdue PENDING positions and cancels their venue
// orders.
func (a *Analyzer) sweepPending(ctx context.Context) {
	for _, orderID := range a.trk.ExpirePending() {
		cctx, cancel := context.WithTimeout(ctx, a.cfg.CollabTimeout)
		if err := a.exec.CancelOrder(cctx, orderID); err != nil {
			slog.Warn("expired order cancel failed", "order", orderID, "err", err)
		}
		cancel()
		slog.Info("pending position expired", "order", orderID)
	}
}

// Checkpoint persists the indicator engine state. Safe to call from the Run
// goroutine only.
func (a *Analyzer) Checkpoint() {
	if a.snaps == nil {
		return
	}
	start := time.Now()
	data, err := indicator.SnapshotEngine(a.engine)
	if err != nil {
		slog.Error("indicator snapshot failed", "err", err)
		return
	}
	if err := a.snaps.SaveSnapshotJSON(data); err != nil {
		a.count(func(m *metrics.Metrics) { m.CollaboratorErrors.WithLabelValues("snapshot").Inc() })
		slog.Error("snapshot save failed", "err", err)
		return
	}
	a.count(func(m *metrics.Metrics) { m.SnapshotSaveDur.Observe(time.Since(start).Seconds()) })
}

func (a *Analyzer) raiseInvariant(ctx context.Context, symbol string, err error) {
	a.count(func(m *metrics.Metrics) { m.InvariantViolations.Inc() })
	slog.Error("position invariant violation", "symbol", symbol, "err", err)
	if a.alerts != nil {
		a.alerts.Send(ctx, notification.InvariantAlert(symbol, err))
	}
}

func (a *Analyzer) observe(start time.Time, patterns []model.PatternMatch, sig model.Signal) {
	a.count(func(m *metrics.Metrics) {
		m.CandlesTotal.Inc()
		m.PipelineDur.Observe(time.Since(start).Seconds())
		m.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()
		for _, pm := range patterns {
			m.PatternsTotal.WithLabelValues(string(pm.Kind)).Inc()
		}
	})
}

func (a *Analyzer) hist(symbol string) *ringbuf.History {
	h, ok := a.history[symbol]
	if !ok {
		h = ringbuf.NewHistory(a.cfg.Lookback)
		a.history[symbol] = h
	}
	return h
}

// count applies fn when metrics are wired.
func (a *Analyzer) count(fn func(*metrics.Metrics)) {
	if a.prom != nil {
		fn(a.prom)
	}
}

type ticker struct {
	C <-chan time.Time
	t *time.Ticker
}

// newTicker returns a ticker that never fires for non-positive intervals.
func newTicker(d time.Duration) *ticker {
	if d <= 0 {
		return &ticker{C: make(chan time.Time)}
	}
	t := time.NewTicker(d)
	return &ticker{C: t.C, t: t}
}

func (t *ticker) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
