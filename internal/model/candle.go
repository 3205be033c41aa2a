// Package model defines the shared market-data and position types used across
// the analysis pipeline, plus the port interfaces that decouple the engine
// from external collaborators.
package model

import (
	"encoding/json"
	"time"
)

// PricePoint represents one OHLCV candle for a symbol on a timeframe.
// Points are append-only with monotonically increasing timestamps; prices
// are quoted in the contract's quote currency (USDT for futures pairs).
type PricePoint struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"` // "1m", "5m", "15m", "1h", "4h", "1d"
	TS        time.Time `json:"ts"`        // bucket open time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Key returns "symbol:timeframe", the pipeline routing key.
func (p *PricePoint) Key() string {
	return p.Symbol + ":" + p.Timeframe
}

// Bullish reports whether the candle closed above its open.
func (p *PricePoint) Bullish() bool { return p.Close > p.Open }

// Bearish reports whether the candle closed below its open.
func (p *PricePoint) Bearish() bool { return p.Close < p.Open }

// Body returns the absolute body length.
func (p *PricePoint) Body() float64 {
	if p.Close >= p.Open {
		return p.Close - p.Open
	}
	return p.Open - p.Close
}

// UpperWick returns the length of the upper shadow.
func (p *PricePoint) UpperWick() float64 {
	top := p.Open
	if p.Close > top {
		top = p.Close
	}
	return p.High - top
}

// LowerWick returns the length of the lower shadow.
func (p *PricePoint) LowerWick() float64 {
	bottom := p.Open
	if p.Close < bottom {
		bottom = p.Close
	}
	return bottom - p.Low
}

// Range returns high minus low.
func (p *PricePoint) Range() float64 { return p.High - p.Low }

// JSON returns the JSON-encoded point (ignoring errors for hot-path usage).
func (p *PricePoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// Trade represents a single executed trade from the exchange feed.
// Side is +1 when the buyer was the aggressor, -1 for the seller.
type Trade struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    float64   `json:"qty"`
	Side   int       `json:"side"`
	TS     time.Time `json:"ts"`
}
