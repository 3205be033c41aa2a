package indicator

import "github.com/Sonofgod20/trading-ai/internal/model"

// MACD calculates the Moving Average Convergence Divergence oscillator:
// line = EMA(fast) − EMA(slow), signal = EMA(signalPeriod) of the line,
// histogram = line − signal. Composed from three incremental EMAs, so each
// update is O(1).
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD with the given periods (typically 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Update(p model.PricePoint) {
	m.fast.update(p.Close)
	m.slow.update(p.Close)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.update(m.fast.Value() - m.slow.Value())
	}
}

// Ready reports whether both the line and its signal EMA are warmed up.
func (m *MACD) Ready() bool {
	return m.fast.Ready() && m.slow.Ready() && m.signal.Ready()
}

func (m *MACD) Value() model.MACDValue {
	if !m.Ready() {
		return model.MACDValue{}
	}
	line := m.fast.Value() - m.slow.Value()
	sig := m.signal.Value()
	return model.MACDValue{Line: line, Signal: sig, Histogram: line - sig}
}

// Peek computes the MACD with an additional close without mutating state.
func (m *MACD) Peek(close float64) model.MACDValue {
	if !m.Ready() {
		return model.MACDValue{}
	}
	line := m.fast.Peek(close) - m.slow.Peek(close)
	sig := m.signal.Peek(line)
	return model.MACDValue{Line: line, Signal: sig, Histogram: line - sig}
}

// Snapshot serializes the MACD state for checkpoint persistence.
func (m *MACD) Snapshot() IndicatorSnapshot {
	fast := m.fast.Snapshot()
	slow := m.slow.Snapshot()
	sig := m.signal.Snapshot()
	return IndicatorSnapshot{
		Type:     "MACD",
		Period:   m.fast.period,
		Children: []IndicatorSnapshot{fast, slow, sig},
	}
}

// RestoreFromSnapshot restores MACD state from a checkpoint.
func (m *MACD) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if len(snap.Children) != 3 {
		return errBadSnapshot
	}
	if err := m.fast.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	if err := m.slow.RestoreFromSnapshot(snap.Children[1]); err != nil {
		return err
	}
	return m.signal.RestoreFromSnapshot(snap.Children[2])
}
