package pattern

import "github.com/Sonofgod20/trading-ai/internal/model"

// Multi-candle formations.

// Engulfing: the latest body fully covers and exceeds the previous body, in
// the opposite direction. Confidence grows with how decisively the previous
// body is engulfed.
type Engulfing struct{}

func (Engulfing) Detect(w Window) (model.PatternMatch, bool) {
	if len(w.Candles) < 2 {
		return model.PatternMatch{}, false
	}
	prev, curr := w.Last(1), w.Last(0)
	prevBody, currBody := prev.Body(), curr.Body()
	if prevBody <= 0 || currBody <= prevBody {
		return model.PatternMatch{}, false
	}

	conf := clamp01(currBody/prevBody - 1)

	if prev.Bearish() && curr.Bullish() &&
		curr.Open <= prev.Close && curr.Close >= prev.Open {
		return model.PatternMatch{
			Kind:       model.PatternBullishEngulf,
			Confidence: conf,
			Bullish:    true,
		}, true
	}
	if prev.Bullish() && curr.Bearish() &&
		curr.Open >= prev.Close && curr.Close <= prev.Open {
		return model.PatternMatch{
			Kind:       model.PatternBearishEngulf,
			Confidence: conf,
			Bullish:    false,
		}, true
	}
	return model.PatternMatch{}, false
}

// Star: morning star (bearish, doji-like middle, bullish close above the
// first candle's midpoint) and its evening mirror. Confidence combines the
// middle candle's doji quality with how far the final close penetrates past
// the midpoint of the first body.
type Star struct{}

func (Star) Detect(w Window) (model.PatternMatch, bool) {
	if len(w.Candles) < 3 {
		return model.PatternMatch{}, false
	}
	first, middle, last := w.Last(2), w.Last(1), w.Last(0)

	middleShadows := middle.UpperWick() + middle.LowerWick()
	if middleShadows <= 0 || middle.Body() > middleShadows*dojiTolerance {
		return model.PatternMatch{}, false
	}
	dojiQuality := clamp01(1 - (middle.Body()/middleShadows)/dojiTolerance)

	mid := (first.Open + first.Close) / 2
	halfBody := first.Body() / 2
	if halfBody <= 0 {
		return model.PatternMatch{}, false
	}

	if first.Bearish() && last.Bullish() && last.Close > mid {
		penetration := clamp01((last.Close - mid) / halfBody)
		return model.PatternMatch{
			Kind:       model.PatternMorningStar,
			Confidence: clamp01((dojiQuality + penetration) / 2),
			Bullish:    true,
		}, true
	}
	if first.Bullish() && last.Bearish() && last.Close < mid {
		penetration := clamp01((mid - last.Close) / halfBody)
		return model.PatternMatch{
			Kind:       model.PatternEveningStar,
			Confidence: clamp01((dojiQuality + penetration) / 2),
			Bullish:    false,
		}, true
	}
	return model.PatternMatch{}, false
}

// ThreeLineStrike: three candles stepping one way with monotone closes, then
// a fourth that retraces past the first candle's open in one bar. Confidence
// scales with how far past the first open the strike candle closes, relative
// to the ground the three candles covered.
type ThreeLineStrike struct{}

func (ThreeLineStrike) Detect(w Window) (model.PatternMatch, bool) {
	if len(w.Candles) < 4 {
		return model.PatternMatch{}, false
	}
	c1, c2, c3, c4 := w.Last(3), w.Last(2), w.Last(1), w.Last(0)

	// Bullish strike: three bearish candles with falling closes, then a
	// bullish candle closing above the first open.
	if c1.Bearish() && c2.Bearish() && c3.Bearish() &&
		c2.Close < c1.Close && c3.Close < c2.Close &&
		c4.Bullish() && c4.Close > c1.Open {
		covered := c1.Open - c3.Close
		if covered <= 0 {
			return model.PatternMatch{}, false
		}
		return model.PatternMatch{
			Kind:       model.PatternThreeLineStrike,
			Confidence: 0.5 + 0.5*clamp01((c4.Close-c1.Open)/covered),
			Bullish:    true,
		}, true
	}

	// Bearish strike: the mirror.
	if c1.Bullish() && c2.Bullish() && c3.Bullish() &&
		c2.Close > c1.Close && c3.Close > c2.Close &&
		c4.Bearish() && c4.Close < c1.Open {
		covered := c3.Close - c1.Open
		if covered <= 0 {
			return model.PatternMatch{}, false
		}
		return model.PatternMatch{
			Kind:       model.PatternThreeLineStrike,
			Confidence: 0.5 + 0.5*clamp01((c1.Open-c4.Close)/covered),
			Bullish:    false,
		}, true
	}
	return model.PatternMatch{}, false
}
