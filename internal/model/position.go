package model

import "time"

// PositionStatus is the lifecycle state of a tracked position.
// CLOSED and CANCELLED are terminal.
type PositionStatus string

const (
	StatusPending   PositionStatus = "PENDING"
	StatusOpen      PositionStatus = "OPEN"
	StatusClosed    PositionStatus = "CLOSED"
	StatusCancelled PositionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// CloseReason records why a position left the OPEN state.
type CloseReason string

const (
	CloseStopLoss    CloseReason = "stop_loss"
	CloseTakeProfit  CloseReason = "take_profit"
	CloseManual      CloseReason = "manual"
	CloseLiquidation CloseReason = "liquidation"
)

// Position is the authoritative record of one trade. Mutation is owned
// exclusively by the tracker; everything else sees copies.
type Position struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Direction  Direction      `json:"direction"`
	EntryPrice float64        `json:"entry_price"`
	Size       float64        `json:"size"`
	StopLoss   float64        `json:"stop_loss"`
	TakeProfit float64        `json:"take_profit"`
	Status     PositionStatus `json:"status"`
	OpenedAt   time.Time      `json:"opened_at"` // zero until the entry fill confirms
	ClosedAt   time.Time      `json:"closed_at"`
	ExitPrice  float64        `json:"exit_price"`
	Reason     CloseReason    `json:"close_reason,omitempty"`
}

// RiskReward returns |take_profit - entry| / |entry - stop_loss|.
// Returns 0 when the stop distance is zero.
func (p *Position) RiskReward() float64 {
	risk := p.EntryPrice - p.StopLoss
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := p.TakeProfit - p.EntryPrice
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}

// PnL computes profit/loss against the given price.
func (p *Position) PnL(price float64) float64 {
	if p.Direction == DirectionShort {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// RiskParameters is the process-wide risk configuration read by the
// RiskManager. It is threaded explicitly through calls (never a hidden
// singleton) so concurrent backtests can run with different configs.
type RiskParameters struct {
	MaxRiskPerTradePct float64 `json:"max_risk_per_trade_pct" mapstructure:"max_risk_per_trade_pct"`
	AccountEquity      float64 `json:"account_equity" mapstructure:"account_equity"`
	MaxOpenPositions   int     `json:"max_open_positions" mapstructure:"max_open_positions"`
	MaxExposurePct     float64 `json:"max_exposure_pct" mapstructure:"max_exposure_pct"` // per-trade notional cap as fraction of equity
	MinRiskReward      float64 `json:"min_risk_reward" mapstructure:"min_risk_reward"`
	ATRStopMultiple    float64 `json:"atr_stop_multiple" mapstructure:"atr_stop_multiple"`
	Hedging            bool    `json:"hedging" mapstructure:"hedging"`
}

// DefaultRiskParameters returns conservative defaults.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MaxRiskPerTradePct: 0.01,
		AccountEquity:      10000,
		MaxOpenPositions:   3,
		MaxExposurePct:     0.25,
		MinRiskReward:      1.5,
		ATRStopMultiple:    1.5,
	}
}
