package strategy

import (
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// RuleID identifies one entry rule. The set is closed: a strategy can only
// weight rules listed here.
type RuleID string

const (
	RuleEMAAlignment   RuleID = "ema_alignment"
	RuleEMACross       RuleID = "ema_cross"
	RuleRSIExtreme     RuleID = "rsi_extreme"
	RuleRSIDivergence  RuleID = "rsi_divergence"
	RuleMACDCross      RuleID = "macd_cross"
	RulePressure       RuleID = "pressure"
	RulePattern        RuleID = "pattern"
	RulePatternAtLevel RuleID = "pattern_at_level"
)

// Inputs is everything a rule may inspect for one evaluation tick.
type Inputs struct {
	Symbol     string
	Price      float64
	TS         time.Time
	Indicators model.IndicatorSet
	Patterns   []model.PatternMatch
	Micro      model.MicrostructureMetrics
	Levels     model.SupportResistance
}

// ruleFunc evaluates one rule. vote is a signed score in [-1, 1]: positive
// favors long, negative short. fired reports whether the rule's condition
// held at all; a fired rule with vote 0 still shows up in Signal.Factors.
// prev is the previous tick's inputs for the same symbol, nil on the first
// tick — crossover rules need it and stay silent without it.
type ruleFunc func(cur Inputs, prev *Inputs) (vote float64, fired bool)

// rules maps every known RuleID to its implementation.
var rules = map[RuleID]ruleFunc{
	RuleEMAAlignment:   emaAlignment,
	RuleEMACross:       emaCross,
	RuleRSIExtreme:     rsiExtreme,
	RuleRSIDivergence:  rsiDivergence,
	RuleMACDCross:      macdCross,
	RulePressure:       pressure,
	RulePattern:        patternPresence,
	RulePatternAtLevel: patternAtLevel,
}

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0

	// pressureFloor is the minimum bid/ask imbalance before the pressure
	// rule speaks up; below it the book is considered balanced.
	pressureFloor = 0.2

	// levelProximityPct is how close (relative) price must sit to a
	// support/resistance level for pattern_at_level to engage.
	levelProximityPct = 0.005
)

// emaAlignment votes when the 9/20/50 EMAs are stacked in trend order.
func emaAlignment(cur Inputs, _ *Inputs) (float64, bool) {
	ind := cur.Indicators
	if !ind.EMAReady[9] || !ind.EMAReady[20] || !ind.EMAReady[50] {
		return 0, false
	}
	e9, e20, e50 := ind.EMA[9], ind.EMA[20], ind.EMA[50]
	switch {
	case e9 > e20 && e20 > e50:
		return 1, true
	case e9 < e20 && e20 < e50:
		return -1, true
	}
	return 0, false
}

// emaCross votes on the tick where EMA(9) crosses EMA(20).
func emaCross(cur Inputs, prev *Inputs) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	ci, pi := cur.Indicators, prev.Indicators
	if !ci.EMAReady[9] || !ci.EMAReady[20] || !pi.EMAReady[9] || !pi.EMAReady[20] {
		return 0, false
	}
	switch {
	case pi.EMA[9] <= pi.EMA[20] && ci.EMA[9] > ci.EMA[20]:
		return 1, true
	case pi.EMA[9] >= pi.EMA[20] && ci.EMA[9] < ci.EMA[20]:
		return -1, true
	}
	return 0, false
}

// rsiExtreme votes long when oversold, short when overbought, scaling with
// how deep into the extreme the RSI sits.
func rsiExtreme(cur Inputs, _ *Inputs) (float64, bool) {
	if !cur.Indicators.RSIReady {
		return 0, false
	}
	rsi := cur.Indicators.RSI
	switch {
	case rsi <= rsiOversold:
		return (rsiOversold - rsi) / rsiOversold, true
	case rsi >= rsiOverbought:
		return -(rsi - rsiOverbought) / (100 - rsiOverbought), true
	}
	return 0, false
}

// rsiDivergence votes when price and RSI disagree tick-over-tick in the
// half of the range that makes the disagreement meaningful: price falling
// with RSI rising below the midline is bullish, the mirror is bearish.
func rsiDivergence(cur Inputs, prev *Inputs) (float64, bool) {
	if prev == nil || !cur.Indicators.RSIReady || !prev.Indicators.RSIReady {
		return 0, false
	}
	priceDown := cur.Price < prev.Price
	rsiUp := cur.Indicators.RSI > prev.Indicators.RSI
	switch {
	case priceDown && rsiUp && cur.Indicators.RSI < 50:
		return 1, true
	case !priceDown && !rsiUp && cur.Indicators.RSI > 50 && cur.Price > prev.Price:
		return -1, true
	}
	return 0, false
}

// macdCross votes on the tick where the MACD line crosses its signal, i.e.
// the histogram changes sign.
func macdCross(cur Inputs, prev *Inputs) (float64, bool) {
	if prev == nil || !cur.Indicators.MACDReady || !prev.Indicators.MACDReady {
		return 0, false
	}
	ph, ch := prev.Indicators.MACD.Histogram, cur.Indicators.MACD.Histogram
	switch {
	case ph <= 0 && ch > 0:
		return 1, true
	case ph >= 0 && ch < 0:
		return -1, true
	}
	return 0, false
}

// pressure votes with the order book imbalance once it clears the floor.
func pressure(cur Inputs, _ *Inputs) (float64, bool) {
	imb := cur.Micro.BuyPressure - cur.Micro.SellPressure
	if imb >= pressureFloor || imb <= -pressureFloor {
		return imb, true
	}
	return 0, false
}

// patternPresence nets the confidences of directional patterns in the
// window. Doji is indecision and does not vote.
func patternPresence(cur Inputs, _ *Inputs) (float64, bool) {
	var net float64
	fired := false
	for _, m := range cur.Patterns {
		if m.Kind == model.PatternDoji {
			continue
		}
		fired = true
		if m.Bullish {
			net += m.Confidence
		} else {
			net -= m.Confidence
		}
	}
	return clampVote(net), fired
}

// patternAtLevel is patternPresence restricted to patterns forming right at
// structure: bullish patterns near a support below price, bearish near a
// resistance above. Matches away from any level do not fire.
func patternAtLevel(cur Inputs, _ *Inputs) (float64, bool) {
	var net float64
	fired := false
	for _, m := range cur.Patterns {
		if m.Kind == model.PatternDoji {
			continue
		}
		if m.Bullish {
			if lv, ok := cur.Levels.NearestSupportBelow(cur.Price); ok &&
				cur.Price-lv <= cur.Price*levelProximityPct {
				net += m.Confidence
				fired = true
			}
		} else {
			if lv, ok := cur.Levels.NearestResistanceAbove(cur.Price); ok &&
				lv-cur.Price <= cur.Price*levelProximityPct {
				net -= m.Confidence
				fired = true
			}
		}
	}
	return clampVote(net), fired
}

func clampVote(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
