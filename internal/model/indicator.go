package model

import "time"

// BollingerBands holds the three band values for one point.
type BollingerBands struct {
	Upper float64 `json:"upper"`
	Mid   float64 `json:"mid"`
	Lower float64 `json:"lower"`
}

// MACDValue holds the MACD oscillator components. Histogram is always
// Line - Signal, exactly.
type MACDValue struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// IndicatorSet is the full indicator tuple aligned to the most recent
// PricePoint of a symbol+timeframe. Ready maps report per-indicator warm-up:
// a value must not be read before its Ready flag is true.
type IndicatorSet struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	TS        time.Time `json:"ts"`

	EMA      map[int]float64 `json:"ema"` // period -> value
	EMAReady map[int]bool    `json:"ema_ready"`
	SMA      map[int]float64 `json:"sma"`
	SMAReady map[int]bool    `json:"sma_ready"`

	RSI      float64 `json:"rsi"`
	RSIReady bool    `json:"rsi_ready"`

	Bollinger      BollingerBands `json:"bollinger"`
	BollingerReady bool           `json:"bollinger_ready"`

	MACD      MACDValue `json:"macd"`
	MACDReady bool      `json:"macd_ready"`

	ATR      float64 `json:"atr"`
	ATRReady bool    `json:"atr_ready"`
}

// SupportResistance holds confirmed structural levels for a symbol+timeframe,
// sorted ascending.
type SupportResistance struct {
	Support    []float64 `json:"support"`
	Resistance []float64 `json:"resistance"`
}

// NearestSupportBelow returns the highest support strictly below price,
// or false when none exists.
func (sr *SupportResistance) NearestSupportBelow(price float64) (float64, bool) {
	best, found := 0.0, false
	for _, lv := range sr.Support {
		if lv < price && lv > best {
			best, found = lv, true
		}
	}
	return best, found
}

// NearestResistanceAbove returns the lowest resistance strictly above price,
// or false when none exists.
func (sr *SupportResistance) NearestResistanceAbove(price float64) (float64, bool) {
	var best float64
	found := false
	for _, lv := range sr.Resistance {
		if lv > price && (!found || lv < best) {
			best, found = lv, true
		}
	}
	return best, found
}
