package analyzer

import (
	"context"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Sonofgod20/trading-ai/internal/metrics"
	"github.com/Sonofgod20/trading-ai/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Result is the complete analysis snapshot for one closed candle. It is what
// downstream consumers (dashboard, chat collaborator) see per tick.
type Result struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	TS        time.Time `json:"ts"`

	Candle     model.PricePoint            `json:"candle"`
	Indicators model.IndicatorSet          `json:"indicators"`
	Patterns   []model.PatternMatch        `json:"patterns,omitempty"`
	Micro      model.MicrostructureMetrics `json:"microstructure"`
	Levels     model.SupportResistance     `json:"levels"`
	Signal     model.Signal                `json:"signal"`

	// Decision is present only when the signal was actionable.
	Decision *Decision    `json:"decision,omitempty"`
	Exits    []ExitRecord `json:"exits,omitempty"`

	OpenPositions int     `json:"open_positions"`
	RealizedPnL   float64 `json:"realized_pnl"`
}

// Decision summarizes the risk gate's verdict for the tick.
type Decision struct {
	Accepted   bool   `json:"accepted"`
	PositionID string `json:"position_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ExitRecord is one stop/target exit requested during the tick.
type ExitRecord struct {
	PositionID string            `json:"position_id"`
	Price      float64           `json:"price"`
	Reason     model.CloseReason `json:"reason"`
}

// publish pushes the result to the configured publisher. Publishing is best
// effort: failures are logged and counted, never propagated.
func (a *Analyzer) publish(ctx context.Context, res Result) {
	if a.pub == nil {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		slog.Error("result marshal failed", "symbol", res.Symbol, "err", err)
		return
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, a.cfg.CollabTimeout)
	defer cancel()
	if err := a.pub.Publish(cctx, res.Symbol, data); err != nil {
		a.count(func(m *metrics.Metrics) { m.CollaboratorErrors.WithLabelValues("publisher").Inc() })
		slog.Warn("result publish failed", "symbol", res.Symbol, "err", err)
		return
	}
	a.count(func(m *metrics.Metrics) { m.PublishDur.Observe(time.Since(start).Seconds()) })
}
