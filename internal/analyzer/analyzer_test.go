package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/indicator"
	"github.com/Sonofgod20/trading-ai/internal/model"
	"github.com/Sonofgod20/trading-ai/internal/risk"
	"github.com/Sonofgod20/trading-ai/internal/strategy"
	"github.com/Sonofgod20/trading-ai/internal/tracker"
)

// ─────────────────────────── fakes ───────────────────────────

type fakeExec struct {
	submits   []model.OrderRequest
	cancels   []string
	closes    []string
	submitErr error
	closeErr  error
	nextID    int
	events    chan any
}

func newFakeExec() *fakeExec {
	return &fakeExec{events: make(chan any, 16)}
}

func (f *fakeExec) SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextID++
	f.submits = append(f.submits, req)
	return fmt.Sprintf("ORD-%d", f.nextID), nil
}

func (f *fakeExec) CancelOrder(ctx context.Context, orderID string) error {
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeExec) ClosePosition(ctx context.Context, orderID string, reason model.CloseReason) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closes = append(f.closes, orderID)
	return nil
}

func (f *fakeExec) Events() <-chan any { return f.events }

type fakePublisher struct {
	symbols  []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, symbol string, result []byte) error {
	f.symbols = append(f.symbols, symbol)
	f.payloads = append(f.payloads, result)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeSnaps struct {
	saved [][]byte
}

func (f *fakeSnaps) SaveSnapshotJSON(data []byte) error {
	f.saved = append(f.saved, data)
	return nil
}

func (f *fakeSnaps) ReadLatestSnapshotJSON() ([]byte, error) {
	if len(f.saved) == 0 {
		return nil, nil
	}
	return f.saved[len(f.saved)-1], nil
}

type fakeMarketData struct {
	points []model.PricePoint
}

func (f *fakeMarketData) RecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]model.PricePoint, error) {
	return f.points, nil
}

// ─────────────────────────── helpers ───────────────────────────

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// candleAt builds the i-th test candle: close rises 0.5 per step so the
// lookback stays monotone (no structural levels) and ATR settles at 2.
func candleAt(i int) model.PricePoint {
	close := 100 + 0.5*float64(i)
	return model.PricePoint{
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		TS:        testStart.Add(time.Duration(i) * time.Minute),
		Open:      close - 0.5,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    10,
	}
}

func bookWith(mid float64, bidSize, askSize float64) model.OrderBookSnapshot {
	return model.OrderBookSnapshot{
		Symbol: "BTCUSDT",
		TS:     testStart,
		Bids:   []model.PriceLevel{{Price: mid - 0.1, Size: bidSize}},
		Asks:   []model.PriceLevel{{Price: mid + 0.1, Size: askSize}},
	}
}

func testRiskParams() model.RiskParameters {
	return model.RiskParameters{
		MaxRiskPerTradePct: 0.01,
		AccountEquity:      10000,
		MaxOpenPositions:   3,
		MaxExposurePct:     1.0,
		MinRiskReward:      1.5,
		ATRStopMultiple:    1.5,
	}
}

// newTestAnalyzer builds a pipeline driven purely by the book pressure rule,
// so tests can flip the signal on and off through depth snapshots.
func newTestAnalyzer(t *testing.T, exec *fakeExec, trkCfg tracker.Config, pub model.ResultPublisher, snaps model.SnapshotStore) (*Analyzer, *tracker.Tracker) {
	t.Helper()

	agg, err := strategy.NewAggregator(strategy.Strategy{
		Name:    "pressure-only",
		Weights: map[strategy.RuleID]float64{strategy.RulePressure: 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	trk := tracker.New(trkCfg, nil)
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	a, err := New(cfg, Deps{
		Engine:     indicator.NewEngine(indicator.DefaultConfig()),
		Aggregator: agg,
		Risk:       risk.NewManager(testRiskParams()),
		Tracker:    trk,
		Exec:       exec,
		Publisher:  pub,
		Snapshots:  snaps,
	})
	if err != nil {
		t.Fatal(err)
	}
	return a, trk
}

// warm replays n quiet candles (no book pressure, so no signals).
func warm(t *testing.T, a *Analyzer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := a.ProcessCandle(context.Background(), candleAt(i)); err != nil {
			t.Fatalf("warm candle %d: %v", i, err)
		}
	}
}

// ─────────────────────────── tests ───────────────────────────

func TestPipeline_FullTradeLifecycle(t *testing.T) {
	exec := newFakeExec()
	pub := &fakePublisher{}
	a, trk := newTestAnalyzer(t, exec, tracker.DefaultConfig(), pub, nil)
	ctx := context.Background()

	warm(t, a, 20)

	// Heavy bid dominance: pressure = 0.8 vs 0.2 → vote +0.6.
	if _, err := a.ProcessBook(bookWith(110, 8, 2)); err != nil {
		t.Fatalf("book: %v", err)
	}

	res, err := a.ProcessCandle(ctx, candleAt(20)) // close 110
	if err != nil {
		t.Fatalf("signal candle: %v", err)
	}
	if res.Signal.Direction != model.DirectionLong {
		t.Fatalf("direction = %s, want long", res.Signal.Direction)
	}
	if res.Decision == nil || !res.Decision.Accepted {
		t.Fatalf("decision = %+v, want accepted", res.Decision)
	}
	if len(exec.submits) != 1 {
		t.Fatalf("submitted orders = %d, want 1", len(exec.submits))
	}

	// ATR is 2 with no structural levels in a monotone lookback:
	// stop = 110 − 1.5×2 = 107, target = 110 + 2×3 = 116.
	req := exec.submits[0]
	if req.StopLoss != 107 {
		t.Errorf("stop = %.4f, want 107", req.StopLoss)
	}
	if req.TakeProfit != 116 {
		t.Errorf("target = %.4f, want 116", req.TakeProfit)
	}
	if trk.LiveCount() != 1 {
		t.Fatalf("live positions = %d, want 1", trk.LiveCount())
	}

	// Fill confirmation opens the position at the venue's price.
	orderID := res.Decision.OrderID
	a.applyExecEvent(ctx, model.FillEvent{
		OrderID: orderID, Symbol: "BTCUSDT", Price: 110, Size: req.Size,
		Seq: 1, TS: testStart,
	})
	pos, ok := trk.PositionByOrder(orderID)
	if !ok || pos.Status != model.StatusOpen {
		t.Fatalf("after fill: %+v", pos)
	}

	// Quiet book so the exit candle does not also propose a new entry.
	a.ProcessBook(bookWith(112, 5, 5))

	// Candle range touches the 116 target.
	exit := candleAt(21)
	exit.High = 116.5
	res, err = a.ProcessCandle(ctx, exit)
	if err != nil {
		t.Fatalf("exit candle: %v", err)
	}
	if len(res.Exits) != 1 || res.Exits[0].Reason != model.CloseTakeProfit {
		t.Fatalf("exits = %+v, want one take_profit", res.Exits)
	}
	if len(exec.closes) != 1 || exec.closes[0] != orderID {
		t.Fatalf("closed orders = %v", exec.closes)
	}

	// Venue confirms the exit.
	a.applyExecEvent(ctx, model.CloseEvent{
		OrderID: orderID, Symbol: "BTCUSDT", Price: 116,
		Reason: model.CloseTakeProfit, Seq: 2, TS: testStart,
	})
	pos, _ = trk.PositionByOrder(orderID)
	if pos.Status != model.StatusClosed {
		t.Fatalf("after close: status %s", pos.Status)
	}

	// PnL = (116 − 110) × size, size = 10000×0.01/3.
	wantPnL := 6 * (100.0 / 3.0)
	if got := trk.RealizedPnL(); got < wantPnL-1e-6 || got > wantPnL+1e-6 {
		t.Errorf("realized pnl = %.6f, want %.6f", got, wantPnL)
	}

	if len(pub.payloads) == 0 {
		t.Fatal("no results published")
	}
}

func TestPipeline_PublishedResultRoundTrips(t *testing.T) {
	exec := newFakeExec()
	pub := &fakePublisher{}
	a, _ := newTestAnalyzer(t, exec, tracker.DefaultConfig(), pub, nil)

	warm(t, a, 5)

	var got Result
	if err := json.Unmarshal(pub.payloads[len(pub.payloads)-1], &got); err != nil {
		t.Fatalf("unmarshal published result: %v", err)
	}
	if got.Symbol != "BTCUSDT" || got.Timeframe != "1m" {
		t.Errorf("round-trip: %+v", got)
	}
	if got.Signal.Direction != model.DirectionNone {
		t.Errorf("quiet candle signal = %s, want none", got.Signal.Direction)
	}
}

func TestPipeline_CollaboratorTimeoutAbortsTickOnly(t *testing.T) {
	exec := newFakeExec()
	pub := &fakePublisher{}
	a, trk := newTestAnalyzer(t, exec, tracker.DefaultConfig(), pub, nil)
	ctx := context.Background()

	warm(t, a, 20)
	a.ProcessBook(bookWith(110, 8, 2))

	exec.submitErr = model.ErrCollaboratorTimeout
	res, err := a.ProcessCandle(ctx, candleAt(20))
	if !errors.Is(err, model.ErrCollaboratorTimeout) {
		t.Fatalf("err = %v, want ErrCollaboratorTimeout", err)
	}
	if trk.LiveCount() != 0 {
		t.Fatalf("live positions = %d after aborted submit", trk.LiveCount())
	}
	// The tick still produced and published an analysis.
	if res.Signal.Direction != model.DirectionLong {
		t.Errorf("aborted tick lost its signal: %s", res.Signal.Direction)
	}
	published := len(pub.payloads)

	// The next tick runs normally.
	exec.submitErr = nil
	a.ProcessBook(bookWith(110.5, 5, 5))
	if _, err := a.ProcessCandle(ctx, candleAt(21)); err != nil {
		t.Fatalf("pipeline did not recover: %v", err)
	}
	if len(pub.payloads) != published+1 {
		t.Error("next tick was not published")
	}
}

func TestPipeline_ReservationRaceUnwindsOrder(t *testing.T) {
	exec := newFakeExec()
	// Tracker cap 0: every reservation loses, simulating another symbol
	// pipeline grabbing the last slot between risk gate and reserve.
	a, trk := newTestAnalyzer(t, exec, tracker.Config{MaxOpenPositions: 0, StopWinsOnTie: true}, nil, nil)
	ctx := context.Background()

	warm(t, a, 20)
	a.ProcessBook(bookWith(110, 8, 2))

	res, err := a.ProcessCandle(ctx, candleAt(20))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Decision == nil || res.Decision.Accepted {
		t.Fatalf("decision = %+v, want rejected", res.Decision)
	}
	if !strings.Contains(res.Decision.Reason, "cap") {
		t.Errorf("reason = %q", res.Decision.Reason)
	}
	if len(exec.cancels) != 1 {
		t.Fatalf("cancelled orders = %d, want 1 (unwind)", len(exec.cancels))
	}
	if trk.LiveCount() != 0 {
		t.Errorf("live positions = %d", trk.LiveCount())
	}
}

func TestPipeline_MalformedBookKeepsLastMetrics(t *testing.T) {
	exec := newFakeExec()
	a, _ := newTestAnalyzer(t, exec, tracker.DefaultConfig(), nil, nil)

	if _, err := a.ProcessBook(bookWith(110, 8, 2)); err != nil {
		t.Fatal(err)
	}

	// Crossed book: best bid above best ask.
	crossed := model.OrderBookSnapshot{
		Symbol: "BTCUSDT",
		Bids:   []model.PriceLevel{{Price: 111, Size: 1}},
		Asks:   []model.PriceLevel{{Price: 110, Size: 1}},
	}
	if _, err := a.ProcessBook(crossed); !errors.Is(err, model.ErrInvalidSnapshot) {
		t.Fatalf("crossed book: got %v, want ErrInvalidSnapshot", err)
	}

	if micro := a.lastMicro["BTCUSDT"]; micro.BuyPressure != 0.8 {
		t.Errorf("cached metrics overwritten by rejected snapshot: %+v", micro)
	}
}

func TestPipeline_StaleExecEventsDiscarded(t *testing.T) {
	exec := newFakeExec()
	a, trk := newTestAnalyzer(t, exec, tracker.DefaultConfig(), nil, nil)
	ctx := context.Background()

	warm(t, a, 20)
	a.ProcessBook(bookWith(110, 8, 2))
	res, err := a.ProcessCandle(ctx, candleAt(20))
	if err != nil || res.Decision == nil || !res.Decision.Accepted {
		t.Fatalf("setup: res=%+v err=%v", res, err)
	}
	orderID := res.Decision.OrderID

	a.applyExecEvent(ctx, model.FillEvent{
		OrderID: orderID, Symbol: "BTCUSDT", Price: 110, Size: 1, Seq: 5, TS: testStart,
	})
	// A close with an earlier sequence must not touch the position.
	a.applyExecEvent(ctx, model.CloseEvent{
		OrderID: orderID, Symbol: "BTCUSDT", Price: 90,
		Reason: model.CloseStopLoss, Seq: 3, TS: testStart,
	})

	pos, _ := trk.PositionByOrder(orderID)
	if pos.Status != model.StatusOpen {
		t.Fatalf("stale close applied: status %s", pos.Status)
	}
	if trk.RealizedPnL() != 0 {
		t.Errorf("stale close realized pnl %.2f", trk.RealizedPnL())
	}
}

func TestPipeline_CheckpointAndWarmup(t *testing.T) {
	exec := newFakeExec()
	snaps := &fakeSnaps{}
	a, _ := newTestAnalyzer(t, exec, tracker.DefaultConfig(), nil, snaps)

	warm(t, a, 20)
	a.Checkpoint()
	if len(snaps.saved) != 1 || len(snaps.saved[0]) == 0 {
		t.Fatalf("checkpoint saved %d snapshots", len(snaps.saved))
	}

	// A fresh pipeline warmed from history is ATR-ready immediately.
	exec2 := newFakeExec()
	b, _ := newTestAnalyzer(t, exec2, tracker.DefaultConfig(), nil, nil)
	md := &fakeMarketData{}
	for i := 0; i < 20; i++ {
		md.points = append(md.points, candleAt(i))
	}
	if err := b.Warmup(context.Background(), md, 20); err != nil {
		t.Fatal(err)
	}
	res, err := b.ProcessCandle(context.Background(), candleAt(20))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Indicators.ATRReady {
		t.Error("ATR not ready after warmup")
	}
	if !res.Indicators.RSIReady {
		t.Error("RSI not ready after warmup")
	}
}

// A pipeline rebuilt from a checkpoint must warm its candle history without
// re-feeding the engine: the restored engine already holds that state, and
// double-feeding would skew every accumulator. Equivalence check: restore +
// WarmupHistory produces the same indicator values as the pipeline that
// never stopped.
func TestPipeline_RestoreWithHistoryWarmMatchesLiveEngine(t *testing.T) {
	exec := newFakeExec()
	snaps := &fakeSnaps{}
	a, _ := newTestAnalyzer(t, exec, tracker.DefaultConfig(), nil, snaps)
	warm(t, a, 20)
	a.Checkpoint()

	engine, err := indicator.RestoreEngineWithin(indicator.DefaultConfig(), snaps.saved[0], time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	agg, err := strategy.NewAggregator(strategy.Strategy{
		Name:    "pressure-only",
		Weights: map[strategy.RuleID]float64{strategy.RulePressure: 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT"}
	b, err := New(cfg, Deps{
		Engine:     engine,
		Aggregator: agg,
		Risk:       risk.NewManager(testRiskParams()),
		Tracker:    tracker.New(tracker.DefaultConfig(), nil),
		Exec:       newFakeExec(),
	})
	if err != nil {
		t.Fatal(err)
	}
	md := &fakeMarketData{}
	for i := 0; i < 20; i++ {
		md.points = append(md.points, candleAt(i))
	}
	if err := b.WarmupHistory(context.Background(), md, 20); err != nil {
		t.Fatal(err)
	}

	resA, err := a.ProcessCandle(context.Background(), candleAt(20))
	if err != nil {
		t.Fatal(err)
	}
	resB, err := b.ProcessCandle(context.Background(), candleAt(20))
	if err != nil {
		t.Fatal(err)
	}
	if !resB.Indicators.RSIReady || !resB.Indicators.ATRReady {
		t.Fatal("restored engine not warm after history-only warmup")
	}
	if math.Abs(resA.Indicators.RSI-resB.Indicators.RSI) > 1e-9 {
		t.Errorf("restored RSI %.6f, live %.6f", resB.Indicators.RSI, resA.Indicators.RSI)
	}
	if math.Abs(resA.Indicators.ATR-resB.Indicators.ATR) > 1e-9 {
		t.Errorf("restored ATR %.6f, live %.6f", resB.Indicators.ATR, resA.Indicators.ATR)
	}
}

func TestWarmupHistory_LeavesEngineCold(t *testing.T) {
	b, _ := newTestAnalyzer(t, newFakeExec(), tracker.DefaultConfig(), nil, nil)
	md := &fakeMarketData{}
	for i := 0; i < 20; i++ {
		md.points = append(md.points, candleAt(i))
	}
	if err := b.WarmupHistory(context.Background(), md, 20); err != nil {
		t.Fatal(err)
	}
	res, err := b.ProcessCandle(context.Background(), candleAt(20))
	if err != nil {
		t.Fatal(err)
	}
	if res.Indicators.RSIReady {
		t.Error("history-only warmup must not feed the indicator engine")
	}
}

func TestPipeline_PreviewFollowsBook(t *testing.T) {
	a, _ := newTestAnalyzer(t, newFakeExec(), tracker.DefaultConfig(), nil, nil)
	if _, ok := a.Preview("BTCUSDT"); ok {
		t.Fatal("preview present before any book snapshot")
	}

	warm(t, a, 20)
	if _, err := a.ProcessBook(bookWith(110, 5, 5)); err != nil {
		t.Fatal(err)
	}
	set, ok := a.Preview("BTCUSDT")
	if !ok {
		t.Fatal("no preview after book snapshot")
	}
	if !set.RSIReady {
		t.Error("preview indicators not warm after 20 candles")
	}

	// The peek is side-effect free: the next closed candle sees the same
	// engine state as a pipeline that never previewed.
	res, err := a.ProcessCandle(context.Background(), candleAt(20))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Indicators.RSIReady {
		t.Error("closed-candle indicators regressed after preview")
	}
}
