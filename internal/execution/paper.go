// Package execution provides order-routing collaborators. The paper executor
// simulates a venue without real exchange calls: orders fill at the current
// mark price plus configurable slippage, and fill/close notifications stream
// back with per-symbol sequence numbers exactly like a live adapter would.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// PaperExecutor implements model.ExecutionClient against an in-memory book
// of simulated orders. Useful for paper trading and backtests.
type PaperExecutor struct {
	mu       sync.Mutex
	orders   map[string]model.OrderRequest
	marks    map[string]float64 // symbol → last mark price
	seq      map[string]uint64  // symbol → next event sequence
	orderSeq int64
	events   chan any

	slippageBps float64
	clock       func() time.Time
}

// NewPaperExecutor creates a paper venue. slippageBps simulates adverse fill
// slippage in basis points (5 = 0.05%).
func NewPaperExecutor(eventBufferSize int, slippageBps float64) *PaperExecutor {
	return &PaperExecutor{
		orders:      make(map[string]model.OrderRequest, 16),
		marks:       make(map[string]float64, 8),
		seq:         make(map[string]uint64, 8),
		events:      make(chan any, eventBufferSize),
		slippageBps: slippageBps,
		clock:       time.Now,
	}
}

// SetMarkPrice updates the symbol's simulated mark; entry fills execute at
// this price plus slippage. Live wiring feeds it from the trade stream;
// backtests from each replayed candle close.
func (p *PaperExecutor) SetMarkPrice(symbol string, price float64) {
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// SubmitOrder accepts an order and emits its fill immediately (paper venues
// never queue). Returns ErrCollaboratorTimeout if ctx is already done, same
// as a live adapter would surface a deadline.
func (p *PaperExecutor) SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("submit order: %w", model.ErrCollaboratorTimeout)
	}

	p.mu.Lock()
	mark, ok := p.marks[req.Symbol]
	if !ok || mark <= 0 {
		p.mu.Unlock()
		return "", fmt.Errorf("no mark price for %s: %w", req.Symbol, model.ErrInsufficientData)
	}

	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.orders[orderID] = req

	fillPrice := mark
	slip := mark * p.slippageBps / 10000
	if req.Direction == model.DirectionLong {
		fillPrice += slip // buy higher
	} else {
		fillPrice -= slip // sell lower
	}

	p.seq[req.Symbol]++
	ev := model.FillEvent{
		OrderID: orderID,
		Symbol:  req.Symbol,
		Price:   fillPrice,
		Size:    req.Size,
		Seq:     p.seq[req.Symbol],
		TS:      p.clock(),
	}
	p.mu.Unlock()

	slog.Debug("paper fill",
		"order", orderID, "symbol", req.Symbol, "direction", req.Direction,
		"price", fillPrice, "size", req.Size, "slippage", slip)

	p.emit(ev)
	return orderID, nil
}

// CancelOrder drops a simulated order. Unknown IDs are a no-op: the order
// already filled or was never placed here.
func (p *PaperExecutor) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancel order: %w", model.ErrCollaboratorTimeout)
	}
	p.mu.Lock()
	delete(p.orders, orderID)
	p.mu.Unlock()
	return nil
}

// ClosePosition exits the position behind orderID at the current mark and
// emits the CloseEvent.
func (p *PaperExecutor) ClosePosition(ctx context.Context, orderID string, reason model.CloseReason) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("close position: %w", model.ErrCollaboratorTimeout)
	}

	p.mu.Lock()
	req, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("close unknown order %s: %w", orderID, model.ErrStaleEvent)
	}
	mark := p.marks[req.Symbol]
	delete(p.orders, orderID)

	p.seq[req.Symbol]++
	ev := model.CloseEvent{
		OrderID: orderID,
		Symbol:  req.Symbol,
		Price:   mark,
		Reason:  reason,
		Seq:     p.seq[req.Symbol],
		TS:      p.clock(),
	}
	p.mu.Unlock()

	p.emit(ev)
	return nil
}

// Events returns the fill/close notification stream.
func (p *PaperExecutor) Events() <-chan any {
	return p.events
}

// emit delivers without blocking; a full buffer drops the event and logs,
// mirroring how a live websocket adapter sheds load.
func (p *PaperExecutor) emit(ev any) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("paper event buffer full, dropping", "event", fmt.Sprintf("%T", ev))
	}
}
