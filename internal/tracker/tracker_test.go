package tracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

func pending(id, symbol string, dir model.Direction) model.Position {
	return model.Position{
		ID:         id,
		Symbol:     symbol,
		Direction:  dir,
		EntryPrice: 100,
		Size:       1,
		StopLoss:   98,
		TakeProfit: 104,
		Status:     model.StatusPending,
	}
}

func fill(orderID, symbol string, seq uint64, price float64) model.FillEvent {
	return model.FillEvent{
		OrderID: orderID, Symbol: symbol, Seq: seq,
		Price: price, Size: 1, TS: time.Now().UTC(),
	}
}

func closeEv(orderID, symbol string, seq uint64, price float64, reason model.CloseReason) model.CloseEvent {
	return model.CloseEvent{
		OrderID: orderID, Symbol: symbol, Seq: seq,
		Price: price, Reason: reason, TS: time.Now().UTC(),
	}
}

func TestLifecycle_PendingOpenClosed(t *testing.T) {
	tr := New(DefaultConfig(), nil)

	if err := tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := tr.ApplyFill(fill("o1", "BTCUSDT", 1, 100.2)); err != nil {
		t.Fatalf("fill: %v", err)
	}

	pos, _ := tr.Position("p1")
	if pos.Status != model.StatusOpen {
		t.Fatalf("status after fill: %s", pos.Status)
	}
	if pos.EntryPrice != 100.2 {
		t.Errorf("fill price is authoritative: got %.2f, want 100.2", pos.EntryPrice)
	}

	if err := tr.ApplyClose(closeEv("o1", "BTCUSDT", 2, 104, model.CloseTakeProfit)); err != nil {
		t.Fatalf("close: %v", err)
	}
	pos, _ = tr.Position("p1")
	if pos.Status != model.StatusClosed || pos.Reason != model.CloseTakeProfit {
		t.Errorf("status after close: %s / %s", pos.Status, pos.Reason)
	}
	if got := tr.RealizedPnL(); got != (104-100.2)*1 {
		t.Errorf("realized pnl: got %.4f, want %.4f", got, 104-100.2)
	}
	if tr.LiveCount() != 0 {
		t.Errorf("live count after close: %d", tr.LiveCount())
	}
}

func TestOutOfOrderFill_Discarded(t *testing.T) {
	// Two fills for the same order with out-of-order sequence numbers: the
	// later-sequenced one lands first and is applied; the earlier one is
	// stale and must leave state untouched.
	tr := New(DefaultConfig(), nil)
	if err := tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1"); err != nil {
		t.Fatal(err)
	}

	if err := tr.ApplyFill(fill("o1", "BTCUSDT", 5, 100.5)); err != nil {
		t.Fatalf("later-sequenced fill should apply: %v", err)
	}
	err := tr.ApplyFill(fill("o1", "BTCUSDT", 3, 99.9))
	if !errors.Is(err, model.ErrStaleEvent) {
		t.Fatalf("earlier-sequenced fill: got err=%v, want ErrStaleEvent", err)
	}

	pos, _ := tr.Position("p1")
	if pos.EntryPrice != 100.5 || pos.Status != model.StatusOpen {
		t.Errorf("stale fill mutated state: %+v", pos)
	}
}

func TestFillAfterClose_Stale(t *testing.T) {
	// A fill replayed after the position closed must not re-open it.
	tr := New(DefaultConfig(), nil)
	tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1")
	tr.ApplyFill(fill("o1", "BTCUSDT", 1, 100))
	tr.ApplyClose(closeEv("o1", "BTCUSDT", 2, 98, model.CloseStopLoss))

	err := tr.ApplyFill(fill("o1", "BTCUSDT", 3, 100))
	if !errors.Is(err, model.ErrStaleEvent) {
		t.Fatalf("fill on closed position: got err=%v, want ErrStaleEvent", err)
	}
	pos, _ := tr.Position("p1")
	if pos.Status != model.StatusClosed {
		t.Errorf("closed position re-opened: %s", pos.Status)
	}
}

func TestDuplicateFill_Stale(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1")
	tr.ApplyFill(fill("o1", "BTCUSDT", 1, 100))

	if err := tr.ApplyFill(fill("o1", "BTCUSDT", 2, 101)); !errors.Is(err, model.ErrStaleEvent) {
		t.Fatalf("second fill for open position: got err=%v, want ErrStaleEvent", err)
	}
	pos, _ := tr.Position("p1")
	if pos.EntryPrice != 100 {
		t.Errorf("duplicate fill changed entry: %.2f", pos.EntryPrice)
	}
}

func TestUnknownOrder_Stale(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	if err := tr.ApplyFill(fill("ghost", "BTCUSDT", 1, 100)); !errors.Is(err, model.ErrStaleEvent) {
		t.Errorf("unknown order: got err=%v, want ErrStaleEvent", err)
	}
}

func TestDuplicateSymbol_InvariantViolation(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	if err := tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1"); err != nil {
		t.Fatal(err)
	}

	err := tr.Reserve(pending("p2", "BTCUSDT", model.DirectionShort), "o2")
	if !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("duplicate symbol without hedging: got err=%v, want ErrInvariantViolation", err)
	}
	if tr.LiveCount() != 1 {
		t.Errorf("rejected reserve must not register: live=%d", tr.LiveCount())
	}
}

func TestHedging_AllowsDuplicateSymbol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hedging = true
	tr := New(cfg, nil)

	if err := tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Reserve(pending("p2", "BTCUSDT", model.DirectionShort), "o2"); err != nil {
		t.Fatalf("hedging should allow a second position on the symbol: %v", err)
	}
}

func TestPositionCap_AtomicUnderConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenPositions = 3
	tr := New(cfg, nil)

	// 20 goroutines race to reserve on distinct symbols; exactly 3 may win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sym := "SYM" + string(rune('A'+n))
			err := tr.Reserve(pending("p-"+sym, sym, model.DirectionLong), "o-"+sym)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, model.ErrRiskRejected) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != 3 {
		t.Errorf("cap race: %d reservations accepted, want exactly 3", accepted)
	}
	if tr.LiveCount() != 3 {
		t.Errorf("live count %d, want 3", tr.LiveCount())
	}
}

func TestCloseOnPending_Cancels(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1")

	if err := tr.ApplyClose(closeEv("o1", "BTCUSDT", 1, 0, model.CloseManual)); err != nil {
		t.Fatalf("close on pending: %v", err)
	}
	pos, _ := tr.Position("p1")
	if pos.Status != model.StatusCancelled {
		t.Errorf("pending position with exchange close should cancel, got %s", pos.Status)
	}
	if tr.RealizedPnL() != 0 {
		t.Errorf("cancelled entry must not touch realized pnl: %.4f", tr.RealizedPnL())
	}
}

func TestExpirePending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PendingTimeout = time.Minute
	tr := New(cfg, nil)
	tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1")

	// Shift the clock past the timeout.
	tr.clock = func() time.Time { return time.Now().Add(2 * time.Minute) }

	expired := tr.ExpirePending()
	if len(expired) != 1 || expired[0] != "o1" {
		t.Fatalf("expired orders: %v, want [o1]", expired)
	}
	pos, _ := tr.Position("p1")
	if pos.Status != model.StatusCancelled {
		t.Errorf("expired pending should cancel, got %s", pos.Status)
	}
}

// ────────────────────────────────────────────────────────────
// Stop/target trigger detection
// ────────────────────────────────────────────────────────────

func openLong(t *testing.T, tr *Tracker, id, orderID string, stop, target float64) {
	t.Helper()
	p := pending(id, "BTCUSDT", model.DirectionLong)
	p.StopLoss, p.TakeProfit = stop, target
	if err := tr.Reserve(p, orderID); err != nil {
		t.Fatal(err)
	}
	if err := tr.ApplyFill(fill(orderID, "BTCUSDT", uint64(len(tr.byID)), 100)); err != nil {
		t.Fatal(err)
	}
}

func candle(open, high, low, close float64) model.PricePoint {
	return model.PricePoint{
		Symbol: "BTCUSDT", Timeframe: "1m",
		Open: open, High: high, Low: low, Close: close,
	}
}

func TestTriggeredExits_StopOnly(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	openLong(t, tr, "p1", "o1", 98, 104)

	exits := tr.TriggeredExits(candle(99.5, 99.8, 97.9, 98.2))
	if len(exits) != 1 {
		t.Fatalf("exits: %d, want 1", len(exits))
	}
	if exits[0].Reason != model.CloseStopLoss || exits[0].Price != 98 {
		t.Errorf("exit: %+v, want stop at 98", exits[0])
	}
}

func TestTriggeredExits_TargetOnly(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	openLong(t, tr, "p1", "o1", 98, 104)

	exits := tr.TriggeredExits(candle(103, 104.5, 102.8, 104.2))
	if len(exits) != 1 || exits[0].Reason != model.CloseTakeProfit {
		t.Fatalf("exits: %+v, want single take profit", exits)
	}
}

func TestTriggeredExits_BothTouched_OpenNearerStop(t *testing.T) {
	// Candle spans stop and target. Open at 99 sits 1 from the stop and 5
	// from the target: the stop was crossed first.
	tr := New(DefaultConfig(), nil)
	openLong(t, tr, "p1", "o1", 98, 104)

	exits := tr.TriggeredExits(candle(99, 104.5, 97.5, 104))
	if len(exits) != 1 || exits[0].Reason != model.CloseStopLoss {
		t.Fatalf("exits: %+v, want stop (nearer the open)", exits)
	}
}

func TestTriggeredExits_BothTouched_OpenNearerTarget(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	openLong(t, tr, "p1", "o1", 98, 104)

	exits := tr.TriggeredExits(candle(103.5, 104.5, 97.5, 98))
	if len(exits) != 1 || exits[0].Reason != model.CloseTakeProfit {
		t.Fatalf("exits: %+v, want target (nearer the open)", exits)
	}
}

func TestTriggeredExits_EquidistantTieBreak(t *testing.T) {
	// Open at 101 is exactly 3 from both the stop (98) and target (104).
	check := func(stopWins bool, want model.CloseReason) {
		cfg := DefaultConfig()
		cfg.StopWinsOnTie = stopWins
		tr := New(cfg, nil)
		openLong(t, tr, "p1", "o1", 98, 104)

		exits := tr.TriggeredExits(candle(101, 104.5, 97.5, 100))
		if len(exits) != 1 || exits[0].Reason != want {
			t.Errorf("stopWins=%v: exits %+v, want %s", stopWins, exits, want)
		}
	}
	check(true, model.CloseStopLoss)
	check(false, model.CloseTakeProfit)
}

func TestTriggeredExits_ShortDirection(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	p := pending("p1", "BTCUSDT", model.DirectionShort)
	p.StopLoss, p.TakeProfit = 102, 96
	if err := tr.Reserve(p, "o1"); err != nil {
		t.Fatal(err)
	}
	tr.ApplyFill(fill("o1", "BTCUSDT", 1, 100))

	// High pokes through the short's stop.
	exits := tr.TriggeredExits(candle(100.5, 102.3, 100.2, 101))
	if len(exits) != 1 || exits[0].Reason != model.CloseStopLoss {
		t.Fatalf("short stop: %+v", exits)
	}
}

func TestTriggeredExits_IgnoresOtherSymbols(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	openLong(t, tr, "p1", "o1", 98, 104)

	c := candle(99, 99.5, 97, 98)
	c.Symbol = "ETHUSDT"
	if exits := tr.TriggeredExits(c); len(exits) != 0 {
		t.Errorf("other symbol's candle triggered exits: %+v", exits)
	}
}

func TestCancel(t *testing.T) {
	tr := New(DefaultConfig(), nil)
	tr.Reserve(pending("p1", "BTCUSDT", model.DirectionLong), "o1")

	if err := tr.Cancel("p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := tr.Cancel("p1"); !errors.Is(err, model.ErrInvariantViolation) {
		t.Errorf("cancel of non-pending: got %v, want ErrInvariantViolation", err)
	}

	// Slot is freed: the symbol can be traded again.
	if err := tr.Reserve(pending("p2", "BTCUSDT", model.DirectionLong), "o2"); err != nil {
		t.Errorf("reserve after cancel: %v", err)
	}
}
