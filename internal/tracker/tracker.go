// Package tracker owns position lifecycle state. It is the single source of
// truth for which symbols hold positions and enforces the global position
// cap atomically across concurrent symbol pipelines. All mutation goes
// through one mutex; execution events are applied strictly in per-symbol
// sequence order and stale deliveries are discarded.
package tracker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Config tunes tracker behavior.
type Config struct {
	// MaxOpenPositions caps PENDING+OPEN positions across all symbols.
	MaxOpenPositions int
	// Hedging permits multiple simultaneous positions on one symbol.
	Hedging bool
	// StopWinsOnTie resolves a candle touching both stop and target when
	// the open price is equidistant from both levels. True (the default
	// elsewhere) takes the conservative stop-loss outcome.
	StopWinsOnTie bool
	// PendingTimeout cancels PENDING positions with no fill after this
	// duration. Zero disables the timeout.
	PendingTimeout time.Duration
}

// DefaultConfig returns the live-trading tracker settings.
func DefaultConfig() Config {
	return Config{
		MaxOpenPositions: 3,
		StopWinsOnTie:    true,
		PendingTimeout:   2 * time.Minute,
	}
}

// ExitIntent is a stop/target touch detected on a tick: the tracker asks the
// execution collaborator to close; the state change lands later via the
// resulting CloseEvent.
type ExitIntent struct {
	PositionID string
	OrderID    string
	Symbol     string
	Price      float64 // triggered level
	Reason     model.CloseReason
}

type entry struct {
	pos       model.Position
	orderID   string
	createdAt time.Time
}

// Tracker is safe for concurrent use by multiple symbol pipelines.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	byID    map[string]*entry
	byOrder map[string]string // order ID → position ID
	lastSeq map[string]uint64 // symbol → last applied event sequence

	realized float64 // realized PnL since start

	journal model.PositionJournal // optional
	clock   func() time.Time
}

// New creates a tracker. journal may be nil; journaling failures are logged
// and never block a state transition.
func New(cfg Config, journal model.PositionJournal) *Tracker {
	return &Tracker{
		cfg:     cfg,
		byID:    make(map[string]*entry, 16),
		byOrder: make(map[string]string, 16),
		lastSeq: make(map[string]uint64, 8),
		journal: journal,
		clock:   time.Now,
	}
}

// Reserve admits a proposed position as PENDING, atomically checking the
// global cap and the per-symbol uniqueness rule in one critical section.
// Returns ErrRiskRejected when the cap is full and ErrInvariantViolation
// when the symbol already holds a live position without hedging enabled.
func (t *Tracker) Reserve(pos model.Position, orderID string) error {
	if pos.Status != model.StatusPending {
		return fmt.Errorf("reserve %s in status %s: %w", pos.ID, pos.Status, model.ErrInvariantViolation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	live := 0
	for _, e := range t.byID {
		if e.pos.Status.Terminal() {
			continue
		}
		live++
		if e.pos.Symbol == pos.Symbol && !t.cfg.Hedging {
			return fmt.Errorf("symbol %s already holds position %s: %w",
				pos.Symbol, e.pos.ID, model.ErrInvariantViolation)
		}
	}
	if live >= t.cfg.MaxOpenPositions {
		return fmt.Errorf("position cap %d reached: %w", t.cfg.MaxOpenPositions, model.ErrRiskRejected)
	}

	t.byID[pos.ID] = &entry{pos: pos, orderID: orderID, createdAt: t.clock()}
	t.byOrder[orderID] = pos.ID
	return nil
}

// ApplyFill transitions PENDING → OPEN on a fill confirmation. The fill's
// price and size are authoritative and overwrite the proposal's. Events at
// or below the symbol's last applied sequence, for unknown orders, or for
// terminal positions are discarded with ErrStaleEvent.
func (t *Tracker) ApplyFill(ev model.FillEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.admitSeq(ev.Symbol, ev.Seq); err != nil {
		return fmt.Errorf("fill for order %s seq %d: %w", ev.OrderID, ev.Seq, err)
	}

	e, ok := t.lookup(ev.OrderID)
	if !ok || e.pos.Status.Terminal() {
		return fmt.Errorf("fill for order %s: %w", ev.OrderID, model.ErrStaleEvent)
	}
	if e.pos.Status == model.StatusOpen {
		// Duplicate fill for an already-open position.
		return fmt.Errorf("duplicate fill for order %s: %w", ev.OrderID, model.ErrStaleEvent)
	}

	e.pos.Status = model.StatusOpen
	e.pos.EntryPrice = ev.Price
	if ev.Size > 0 {
		e.pos.Size = ev.Size
	}
	e.pos.OpenedAt = ev.TS

	t.record(func(j model.PositionJournal) error { return j.RecordOpen(e.pos) })
	return nil
}

// ApplyClose finalizes a position on an exchange-reported exit. OPEN →
// CLOSED with exit price and reason; a close for a still-PENDING position
// cancels it (entry never filled). Stale or unknown events are discarded.
func (t *Tracker) ApplyClose(ev model.CloseEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.admitSeq(ev.Symbol, ev.Seq); err != nil {
		return fmt.Errorf("close for order %s seq %d: %w", ev.OrderID, ev.Seq, err)
	}

	e, ok := t.lookup(ev.OrderID)
	if !ok || e.pos.Status.Terminal() {
		return fmt.Errorf("close for order %s: %w", ev.OrderID, model.ErrStaleEvent)
	}

	if e.pos.Status == model.StatusPending {
		e.pos.Status = model.StatusCancelled
		e.pos.ClosedAt = ev.TS
		return nil
	}

	e.pos.Status = model.StatusClosed
	e.pos.ExitPrice = ev.Price
	e.pos.Reason = ev.Reason
	e.pos.ClosedAt = ev.TS
	t.realized += e.pos.PnL(ev.Price)

	t.record(func(j model.PositionJournal) error { return j.RecordClose(e.pos) })
	return nil
}

// Cancel transitions a PENDING position to CANCELLED (explicit cancel path,
// no execution event involved).
func (t *Tracker) Cancel(positionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[positionID]
	if !ok {
		return fmt.Errorf("cancel unknown position %s: %w", positionID, model.ErrStaleEvent)
	}
	if e.pos.Status != model.StatusPending {
		return fmt.Errorf("cancel %s in status %s: %w", positionID, e.pos.Status, model.ErrInvariantViolation)
	}
	e.pos.Status = model.StatusCancelled
	e.pos.ClosedAt = t.clock()
	return nil
}

// ExpirePending cancels PENDING positions older than the configured timeout
// and returns their order IDs so the caller can cancel the venue orders.
func (t *Tracker) ExpirePending() []string {
	if t.cfg.PendingTimeout <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock().Add(-t.cfg.PendingTimeout)
	var expired []string
	for _, e := range t.byID {
		if e.pos.Status == model.StatusPending && e.createdAt.Before(cutoff) {
			e.pos.Status = model.StatusCancelled
			e.pos.ClosedAt = t.clock()
			expired = append(expired, e.orderID)
		}
	}
	return expired
}

// TriggeredExits scans the symbol's OPEN positions against a closed candle's
// range and reports stop/target touches. When the candle spans both levels,
// the level nearer the candle's open is taken to have been crossed first;
// at exactly equal distance the tie-break config decides. At most one exit
// fires per position.
func (t *Tracker) TriggeredExits(p model.PricePoint) []ExitIntent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []ExitIntent
	for _, e := range t.byID {
		pos := e.pos
		if pos.Status != model.StatusOpen || pos.Symbol != p.Symbol {
			continue
		}

		var stopHit, targetHit bool
		if pos.Direction == model.DirectionLong {
			stopHit = pos.StopLoss > 0 && p.Low <= pos.StopLoss
			targetHit = pos.TakeProfit > 0 && p.High >= pos.TakeProfit
		} else {
			stopHit = pos.StopLoss > 0 && p.High >= pos.StopLoss
			targetHit = pos.TakeProfit > 0 && p.Low <= pos.TakeProfit
		}

		switch {
		case stopHit && targetHit:
			out = append(out, t.resolveTie(e, p))
		case stopHit:
			out = append(out, exit(e, pos.StopLoss, model.CloseStopLoss))
		case targetHit:
			out = append(out, exit(e, pos.TakeProfit, model.CloseTakeProfit))
		}
	}
	return out
}

func (t *Tracker) resolveTie(e *entry, p model.PricePoint) ExitIntent {
	distStop := abs(p.Open - e.pos.StopLoss)
	distTarget := abs(p.Open - e.pos.TakeProfit)
	switch {
	case distStop < distTarget:
		return exit(e, e.pos.StopLoss, model.CloseStopLoss)
	case distTarget < distStop:
		return exit(e, e.pos.TakeProfit, model.CloseTakeProfit)
	case t.cfg.StopWinsOnTie:
		return exit(e, e.pos.StopLoss, model.CloseStopLoss)
	default:
		return exit(e, e.pos.TakeProfit, model.CloseTakeProfit)
	}
}

func exit(e *entry, price float64, reason model.CloseReason) ExitIntent {
	return ExitIntent{
		PositionID: e.pos.ID,
		OrderID:    e.orderID,
		Symbol:     e.pos.Symbol,
		Price:      price,
		Reason:     reason,
	}
}

// LiveCount returns the number of non-terminal (PENDING or OPEN) positions.
func (t *Tracker) LiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.byID {
		if !e.pos.Status.Terminal() {
			n++
		}
	}
	return n
}

// HasLive reports whether the symbol holds a PENDING or OPEN position.
func (t *Tracker) HasLive(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.byID {
		if e.pos.Symbol == symbol && !e.pos.Status.Terminal() {
			return true
		}
	}
	return false
}

// Position returns a copy of the position by ID.
func (t *Tracker) Position(id string) (model.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return model.Position{}, false
	}
	return e.pos, true
}

// PositionByOrder returns a copy of the position behind a venue order ID.
func (t *Tracker) PositionByOrder(orderID string) (model.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lookup(orderID)
	if !ok {
		return model.Position{}, false
	}
	return e.pos, true
}

// Positions returns copies of all tracked positions, terminal included.
func (t *Tracker) Positions() []model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Position, 0, len(t.byID))
	for _, e := range t.byID {
		out = append(out, e.pos)
	}
	return out
}

// RealizedPnL returns the cumulative realized profit since start.
func (t *Tracker) RealizedPnL() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.realized
}

// admitSeq enforces per-symbol event ordering. Caller holds the lock.
func (t *Tracker) admitSeq(symbol string, seq uint64) error {
	if seq <= t.lastSeq[symbol] {
		return model.ErrStaleEvent
	}
	t.lastSeq[symbol] = seq
	return nil
}

// lookup resolves an order ID to its entry. Caller holds the lock.
func (t *Tracker) lookup(orderID string) (*entry, bool) {
	id, ok := t.byOrder[orderID]
	if !ok {
		return nil, false
	}
	e, ok := t.byID[id]
	return e, ok
}

func (t *Tracker) record(fn func(model.PositionJournal) error) {
	if t.journal == nil {
		return
	}
	if err := fn(t.journal); err != nil {
		slog.Error("position journal write failed", "err", err)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
