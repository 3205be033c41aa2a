// Package book derives microstructure metrics from depth snapshots: bid/ask
// pressure inside a band around mid, spread, outsized walls and contiguous
// liquidity zones. Analysis is pure and per-snapshot; it holds no state
// between ticks.
package book

import (
	"fmt"
	"sort"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Config tunes the snapshot analysis.
type Config struct {
	// PressureBandPct is the half-width of the band around mid price, as a
	// fraction of mid, inside which resting size counts toward pressure.
	PressureBandPct float64
	// WallMultiple flags a level as a wall when its size exceeds
	// WallMultiple × the median level size of its side.
	WallMultiple float64
	// ZoneFraction is the share of a side's total visible depth that a
	// contiguous range must accumulate to count as a liquidity zone.
	ZoneFraction float64
	// MaxDepthLevels caps how many levels per side are considered. 0 means
	// the full snapshot.
	MaxDepthLevels int
}

// DefaultConfig returns the analysis parameters used in live trading.
func DefaultConfig() Config {
	return Config{
		PressureBandPct: 0.005,
		WallMultiple:    5.0,
		ZoneFraction:    0.25,
		MaxDepthLevels:  50,
	}
}

// Analyzer computes MicrostructureMetrics from order book snapshots.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer with the given config.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze computes metrics for one snapshot. A snapshot with unsorted sides
// is rejected with ErrInvalidSnapshot; a snapshot with one or both sides
// empty is analyzed best-effort (empty side reports zero pressure, no walls,
// no zones). Never divides by zero.
func (a *Analyzer) Analyze(snap model.OrderBookSnapshot) (model.MicrostructureMetrics, error) {
	if err := validate(snap); err != nil {
		return model.MicrostructureMetrics{}, err
	}

	bids := truncate(snap.Bids, a.cfg.MaxDepthLevels)
	asks := truncate(snap.Asks, a.cfg.MaxDepthLevels)

	m := model.MicrostructureMetrics{
		Symbol:   snap.Symbol,
		TS:       snap.TS,
		MidPrice: snap.MidPrice(),
	}

	bid, hasBid := snap.BestBid()
	ask, hasAsk := snap.BestAsk()
	if hasBid && hasAsk && m.MidPrice > 0 {
		m.SpreadPct = (ask.Price - bid.Price) / m.MidPrice
	}

	// Pressure: size within ±PressureBandPct of mid, normalized across the
	// two sides so the values express relative dominance.
	band := m.MidPrice * a.cfg.PressureBandPct
	m.BidDepth = sizeWithin(bids, m.MidPrice-band, m.MidPrice)
	m.AskDepth = sizeWithin(asks, m.MidPrice, m.MidPrice+band)
	if total := m.BidDepth + m.AskDepth; total > 0 {
		m.BuyPressure = m.BidDepth / total
		m.SellPressure = m.AskDepth / total
	}

	m.BidWalls = walls(bids, a.cfg.WallMultiple)
	m.AskWalls = walls(asks, a.cfg.WallMultiple)
	m.BidZones = zones(bids, a.cfg.ZoneFraction)
	m.AskZones = zones(asks, a.cfg.ZoneFraction)

	return m, nil
}

// validate rejects snapshots whose sides violate the sort contract (bids
// descending, asks ascending) or carry non-positive prices.
func validate(snap model.OrderBookSnapshot) error {
	for i, lv := range snap.Bids {
		if lv.Price <= 0 {
			return fmt.Errorf("bid %d price %.8f: %w", i, lv.Price, model.ErrInvalidSnapshot)
		}
		if i > 0 && lv.Price >= snap.Bids[i-1].Price {
			return fmt.Errorf("bids not strictly descending at %d: %w", i, model.ErrInvalidSnapshot)
		}
	}
	for i, lv := range snap.Asks {
		if lv.Price <= 0 {
			return fmt.Errorf("ask %d price %.8f: %w", i, lv.Price, model.ErrInvalidSnapshot)
		}
		if i > 0 && lv.Price <= snap.Asks[i-1].Price {
			return fmt.Errorf("asks not strictly ascending at %d: %w", i, model.ErrInvalidSnapshot)
		}
	}
	if bid, ok := snap.BestBid(); ok {
		if ask, ok := snap.BestAsk(); ok && bid.Price >= ask.Price {
			return fmt.Errorf("crossed book bid %.8f >= ask %.8f: %w",
				bid.Price, ask.Price, model.ErrInvalidSnapshot)
		}
	}
	return nil
}

func truncate(levels []model.PriceLevel, max int) []model.PriceLevel {
	if max > 0 && len(levels) > max {
		return levels[:max]
	}
	return levels
}

func sizeWithin(levels []model.PriceLevel, low, high float64) float64 {
	var total float64
	for _, lv := range levels {
		if lv.Price >= low && lv.Price <= high {
			total += lv.Size
		}
	}
	return total
}

// walls returns levels whose size exceeds multiple × the side's median level
// size. Order follows the side's level order (best first).
func walls(levels []model.PriceLevel, multiple float64) []model.Wall {
	if len(levels) < 2 {
		return nil
	}
	med := medianSize(levels)
	if med <= 0 {
		return nil
	}
	var out []model.Wall
	for _, lv := range levels {
		if lv.Size > med*multiple {
			out = append(out, model.Wall{Price: lv.Price, Size: lv.Size})
		}
	}
	return out
}

func medianSize(levels []model.PriceLevel) float64 {
	sizes := make([]float64, len(levels))
	for i, lv := range levels {
		sizes[i] = lv.Size
	}
	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return (sizes[mid-1] + sizes[mid]) / 2
}

// zones finds contiguous level runs whose cumulative size crosses fraction ×
// the side's total depth, in a single pass from the best level outward. When
// the threshold is crossed the zone closes and accumulation restarts at the
// next level.
func zones(levels []model.PriceLevel, fraction float64) []model.LiquidityZone {
	if len(levels) == 0 || fraction <= 0 {
		return nil
	}
	var total float64
	for _, lv := range levels {
		total += lv.Size
	}
	threshold := total * fraction
	if threshold <= 0 {
		return nil
	}

	var out []model.LiquidityZone
	var acc float64
	start := 0
	for i, lv := range levels {
		acc += lv.Size
		if acc >= threshold {
			low, high := levels[start].Price, lv.Price
			if low > high {
				low, high = high, low
			}
			out = append(out, model.LiquidityZone{Low: low, High: high, Size: acc})
			acc = 0
			start = i + 1
		}
	}
	return out
}
