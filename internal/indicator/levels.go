package indicator

import (
	"sort"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// LevelConfig controls support/resistance detection.
type LevelConfig struct {
	Window     int     // fractal look-around span in candles
	MinTouches int     // touches required to confirm a level
	Tolerance  float64 // relative distance counting as a touch (e.g. 0.002)
}

// DefaultLevelConfig mirrors the 20-candle fractal with 0.2% touch tolerance.
func DefaultLevelConfig() LevelConfig {
	return LevelConfig{Window: 20, MinTouches: 2, Tolerance: 0.002}
}

// FindLevels detects confirmed support and resistance levels in a candle
// window. A candidate is a fractal low (no lower low within ±Window candles)
// or fractal high; it is confirmed when price touched it at least MinTouches
// times within Tolerance. Returned slices are sorted ascending, deduplicated.
func FindLevels(points []model.PricePoint, cfg LevelConfig) model.SupportResistance {
	var sr model.SupportResistance
	n := len(points)
	if n < 2*cfg.Window+1 {
		return sr
	}

	type candidate struct {
		price   float64
		support bool
	}
	var candidates []candidate

	for i := cfg.Window; i < n-cfg.Window; i++ {
		if isFractalLow(points, i, cfg.Window) {
			candidates = append(candidates, candidate{points[i].Low, true})
		} else if isFractalHigh(points, i, cfg.Window) {
			candidates = append(candidates, candidate{points[i].High, false})
		}
	}

	for _, c := range candidates {
		touches := 0
		tol := c.price * cfg.Tolerance
		for i := 0; i < n; i++ {
			var d float64
			if c.support {
				d = points[i].Low - c.price
			} else {
				d = points[i].High - c.price
			}
			if d < 0 {
				d = -d
			}
			if d <= tol {
				touches++
			}
		}
		if touches < cfg.MinTouches {
			continue
		}
		if c.support {
			sr.Support = appendLevel(sr.Support, c.price, tol)
		} else {
			sr.Resistance = appendLevel(sr.Resistance, c.price, tol)
		}
	}

	sort.Float64s(sr.Support)
	sort.Float64s(sr.Resistance)
	return sr
}

func isFractalLow(points []model.PricePoint, i, window int) bool {
	low := points[i].Low
	for j := i - window; j <= i+window; j++ {
		if j != i && points[j].Low < low {
			return false
		}
	}
	return true
}

func isFractalHigh(points []model.PricePoint, i, window int) bool {
	high := points[i].High
	for j := i - window; j <= i+window; j++ {
		if j != i && points[j].High > high {
			return false
		}
	}
	return true
}

// appendLevel skips near-duplicate levels within tolerance.
func appendLevel(levels []float64, price, tol float64) []float64 {
	for _, lv := range levels {
		d := lv - price
		if d < 0 {
			d = -d
		}
		if d <= tol {
			return levels
		}
	}
	return append(levels, price)
}
