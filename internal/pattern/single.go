package pattern

import "github.com/Sonofgod20/trading-ai/internal/model"

// Single-candle formations. Each scores the most recent candle's geometry;
// reversal shapes additionally require trend context to carry full weight.

const (
	dojiTolerance   = 0.1 // max body as a fraction of combined shadows
	hammerBodyMax   = 0.3 // max body as a fraction of total candle length
	hammerShadowMin = 2.0 // min dominant shadow as a multiple of body
	hammerOtherMax  = 0.1 // max opposite shadow as a multiple of body
)

// Doji: body negligible relative to shadows. Indecision, not directional; the
// Bullish flag just mirrors the close direction for downstream display.
type Doji struct{}

func (Doji) Detect(w Window) (model.PatternMatch, bool) {
	c := w.Last(0)
	shadows := c.UpperWick() + c.LowerWick()
	if shadows <= 0 {
		return model.PatternMatch{}, false
	}
	ratio := c.Body() / shadows
	if ratio > dojiTolerance {
		return model.PatternMatch{}, false
	}
	return model.PatternMatch{
		Kind:       model.PatternDoji,
		Confidence: clamp01(1 - ratio/dojiTolerance),
		Bullish:    c.Bullish(),
	}, true
}

// Hammer: small body at the top of the range with a long lower shadow,
// appearing after a downtrend. Without the downtrend the shape still matches
// but at half confidence.
type Hammer struct{}

func (Hammer) Detect(w Window) (model.PatternMatch, bool) {
	c := w.Last(0)
	conf := wickShapeScore(c.Body(), c.LowerWick(), c.UpperWick(), c.Range())
	if conf <= 0 {
		return model.PatternMatch{}, false
	}
	if w.Trend != TrendDown {
		conf *= 0.5
	}
	return model.PatternMatch{
		Kind:       model.PatternHammer,
		Confidence: conf,
		Bullish:    true,
	}, true
}

// ShootingStar: the hammer's mirror — small body at the bottom with a long
// upper shadow after an uptrend.
type ShootingStar struct{}

func (ShootingStar) Detect(w Window) (model.PatternMatch, bool) {
	c := w.Last(0)
	conf := wickShapeScore(c.Body(), c.UpperWick(), c.LowerWick(), c.Range())
	if conf <= 0 {
		return model.PatternMatch{}, false
	}
	if w.Trend != TrendUp {
		conf *= 0.5
	}
	return model.PatternMatch{
		Kind:       model.PatternShootingStar,
		Confidence: conf,
		Bullish:    false,
	}, true
}

// wickShapeScore scores the hammer geometry: body ≤ hammerBodyMax of the
// candle, dominant wick ≥ hammerShadowMin × body, opposite wick ≤
// hammerOtherMax × body. Returns 0 when any constraint fails; otherwise the
// average of how comfortably the body and dominant-wick constraints hold.
func wickShapeScore(body, dominant, opposite, total float64) float64 {
	if total <= 0 {
		return 0
	}
	if body/total > hammerBodyMax {
		return 0
	}
	if body > 0 {
		if dominant < body*hammerShadowMin || opposite > body*hammerOtherMax {
			return 0
		}
	} else if dominant <= opposite {
		// Zero body: still require the dominant wick to dominate.
		return 0
	}

	bodyScore := 1 - (body/total)/hammerBodyMax
	wickScore := 1.0
	if body > 0 {
		wickScore = clamp01(dominant/(body*hammerShadowMin) - 1)
	}
	return clamp01((bodyScore + wickScore) / 2)
}
