// Package indicator provides incremental technical indicator calculations
// over candle data.
//
// All scalar indicators implement the Indicator interface, receiving candles
// and producing float64 values. Updates are O(1) amortized per candle so the
// engine keeps up with real-time ticks; indicators report Ready() == false
// until their warm-up window is satisfied, and values must not be read
// before that.
package indicator

import "github.com/Sonofgod20/trading-ai/internal/model"

// Indicator is the interface for all scalar technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Update feeds a new closed candle and recalculates.
	Update(p model.PricePoint)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when the warm-up window has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if a candle with this close price
	// were added next, WITHOUT mutating internal state. Used for live
	// previews from forming candles.
	Peek(close float64) float64
}
