// Package pattern classifies candlestick formations over short OHLC windows.
// Each detector is a deterministic geometric rule producing a continuous
// confidence in [0,1]; multiple non-exclusive patterns may match the same
// window. Detection is pure: no state, same window → same matches.
package pattern

import "github.com/Sonofgod20/trading-ai/internal/model"

// Trend is the local price direction preceding the pattern window. Reversal
// patterns (hammer, stars) are only meaningful against a trend; detectors
// discount matches that appear without one.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

// Window is the detector input: the most recent closed candles, oldest first,
// with the trend computed from candles preceding them.
type Window struct {
	Candles []model.PricePoint
	Trend   Trend
}

// Last returns the n-th candle from the end (0 = most recent).
func (w Window) Last(n int) model.PricePoint {
	return w.Candles[len(w.Candles)-1-n]
}

// Detector evaluates one candlestick formation over a window. Detectors with
// bullish and bearish variants (engulfing, stars) report the variant through
// the match's Kind.
type Detector interface {
	// Detect returns the match and true when the formation is present. A
	// returned confidence of 0 means no match.
	Detect(w Window) (model.PatternMatch, bool)
}

// Scanner runs a fixed detector set over candle history.
type Scanner struct {
	detectors []Detector
	lookback  int // candles used for trend estimation before the window
}

// NewScanner builds a scanner with the full default detector set.
func NewScanner() *Scanner {
	return &Scanner{
		detectors: []Detector{
			Doji{},
			Hammer{},
			ShootingStar{},
			Engulfing{},
			Star{},
			ThreeLineStrike{},
		},
		lookback: 10,
	}
}

// Scan evaluates all detectors against the tail of candles (oldest first) and
// returns every match. Index in each match refers to the position of the
// pattern's final candle within candles.
func (s *Scanner) Scan(candles []model.PricePoint) []model.PatternMatch {
	if len(candles) == 0 {
		return nil
	}

	// Detectors need at most 4 candles; trend comes from what precedes them.
	const windowMax = 4
	start := len(candles) - windowMax
	if start < 0 {
		start = 0
	}

	w := Window{
		Candles: candles[start:],
		Trend:   trendOf(candles[:start], s.lookback),
	}

	var matches []model.PatternMatch
	for _, d := range s.detectors {
		m, ok := d.Detect(w)
		if !ok || m.Confidence <= 0 {
			continue
		}
		m.Index = len(candles) - 1
		matches = append(matches, m)
	}
	return matches
}

// trendOf estimates local direction by comparing the average close of the
// older half of the lookback against the newer half. A 0.1% relative move is
// required to call it a trend at all.
func trendOf(candles []model.PricePoint, lookback int) Trend {
	if len(candles) > lookback {
		candles = candles[len(candles)-lookback:]
	}
	if len(candles) < 4 {
		return TrendFlat
	}

	half := len(candles) / 2
	older, newer := 0.0, 0.0
	for i := 0; i < half; i++ {
		older += candles[i].Close
	}
	for i := half; i < len(candles); i++ {
		newer += candles[i].Close
	}
	older /= float64(half)
	newer /= float64(len(candles) - half)

	const threshold = 0.001
	switch {
	case newer > older*(1+threshold):
		return TrendUp
	case newer < older*(1-threshold):
		return TrendDown
	default:
		return TrendFlat
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
