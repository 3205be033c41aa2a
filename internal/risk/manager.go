// Package risk turns actionable signals into sized position proposals. The
// manager never opens anything itself: accepted proposals carry status
// PENDING and go to the tracker; rejections are a normal outcome reported
// with a reason, not an error.
package risk

import (
	"math"

	"github.com/google/uuid"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Stop/target offsets relative to structural levels: stops sit just past the
// level so a touch does not knock the position out.
const (
	stopBelowSupportMult    = 0.995
	stopAboveResistanceMult = 1.005

	// fallbackRewardMultiple sets the take profit at N × risk distance when
	// no structural target exists.
	fallbackRewardMultiple = 2.0
)

// TradeContext is the market state the manager consults for one proposal.
type TradeContext struct {
	Signal        model.Signal
	Equity        float64
	OpenPositions int
	// ATR of the signal timeframe; ATRReady false disables the volatility
	// stop fallback.
	ATR      float64
	ATRReady bool
	Levels   model.SupportResistance
}

// Decision is the proposal outcome. Exactly one of Position (Accepted) or
// Reason (rejected) is meaningful.
type Decision struct {
	Accepted bool
	Position model.Position
	Reason   string
}

func reject(reason string) Decision {
	return Decision{Reason: reason}
}

// Manager applies RiskParameters to signals. Stateless besides its config;
// open-position pressure comes in through the TradeContext so the tracker
// stays the single source of truth.
type Manager struct {
	params model.RiskParameters
}

// NewManager creates a risk manager with the given parameters.
func NewManager(params model.RiskParameters) *Manager {
	return &Manager{params: params}
}

// Params returns the active risk parameters.
func (m *Manager) Params() model.RiskParameters { return m.params }

// ProposeTrade sizes a trade for the signal or rejects it. Sizing: size =
// (equity × max_risk_per_trade_pct) / |entry − stop|. The stop goes just
// past the nearest structurally invalidating level in the adverse direction,
// falling back to k × ATR when no level is close enough; the take profit
// targets the nearest level in the favorable direction, falling back to
// fallbackRewardMultiple × risk distance. Rejections: direction none, max
// positions reached, no stop derivable, notional above the per-trade
// exposure cap, or risk-reward below the configured minimum.
func (m *Manager) ProposeTrade(ctx TradeContext) Decision {
	sig := ctx.Signal
	if !sig.Actionable() {
		return reject("signal has no direction")
	}
	if sig.Price <= 0 {
		return reject("signal carries no reference price")
	}
	if ctx.Equity <= 0 {
		return reject("no equity available")
	}
	if ctx.OpenPositions >= m.params.MaxOpenPositions {
		return reject("max open positions reached")
	}

	entry := sig.Price
	stop, ok := m.stopFor(sig.Direction, entry, ctx)
	if !ok {
		return reject("no structural level or ATR to place a stop")
	}

	riskDist := math.Abs(entry - stop)
	if riskDist <= 0 {
		return reject("stop collapses onto entry")
	}

	target := m.targetFor(sig.Direction, entry, riskDist, ctx)

	pos := model.Position{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Status:     model.StatusPending,
	}
	if rr := pos.RiskReward(); rr < m.params.MinRiskReward {
		return reject("risk-reward below minimum")
	}

	pos.Size = (ctx.Equity * m.params.MaxRiskPerTradePct) / riskDist
	if notional := pos.Size * entry; notional > ctx.Equity*m.params.MaxExposurePct {
		return reject("notional exceeds per-trade exposure cap")
	}

	return Decision{Accepted: true, Position: pos}
}

// stopFor places the stop just past the nearest adverse structural level,
// or at k × ATR when no level sits within one ATR band.
func (m *Manager) stopFor(dir model.Direction, entry float64, ctx TradeContext) (float64, bool) {
	atrStop := 0.0
	haveATR := ctx.ATRReady && ctx.ATR > 0 && m.params.ATRStopMultiple > 0
	if haveATR {
		offset := m.params.ATRStopMultiple * ctx.ATR
		if dir == model.DirectionLong {
			atrStop = entry - offset
		} else {
			atrStop = entry + offset
		}
	}

	if dir == model.DirectionLong {
		if lv, ok := ctx.Levels.NearestSupportBelow(entry); ok {
			stop := lv * stopBelowSupportMult
			// A support further away than the ATR stop would oversize the
			// risk distance; prefer the tighter of the two.
			if !haveATR || stop >= atrStop {
				return stop, true
			}
		}
		if haveATR {
			return atrStop, true
		}
		return 0, false
	}

	if lv, ok := ctx.Levels.NearestResistanceAbove(entry); ok {
		stop := lv * stopAboveResistanceMult
		if !haveATR || stop <= atrStop {
			return stop, true
		}
	}
	if haveATR {
		return atrStop, true
	}
	return 0, false
}

// targetFor aims at the nearest favorable structural level, falling back to
// a fixed multiple of the risk distance.
func (m *Manager) targetFor(dir model.Direction, entry, riskDist float64, ctx TradeContext) float64 {
	if dir == model.DirectionLong {
		if lv, ok := ctx.Levels.NearestResistanceAbove(entry); ok {
			return lv
		}
		return entry + fallbackRewardMultiple*riskDist
	}
	if lv, ok := ctx.Levels.NearestSupportBelow(entry); ok {
		return lv
	}
	return entry - fallbackRewardMultiple*riskDist
}
