// Package notification delivers operator alerts (invariant violations,
// position lifecycle events, feed outages) to external channels.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them (useful for development
// and backtests).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("alert", "level", alert.Level, "title", alert.Title, "message", alert.Message)
	return nil
}

// Fanout delivers every alert to all configured backends. Individual delivery
// failures are logged and do not stop the rest.
type Fanout struct {
	backends []Notifier
}

// NewFanout creates a fanout over the given backends.
func NewFanout(backends ...Notifier) *Fanout {
	return &Fanout{backends: backends}
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	for _, b := range f.backends {
		if err := b.Send(ctx, alert); err != nil {
			slog.Warn("alert delivery failed", "title", alert.Title, "err", err)
		}
	}
	return nil
}

// InvariantAlert builds the critical alert raised when a position state
// transition is rejected as impossible.
func InvariantAlert(symbol string, err error) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "position invariant violation",
		Message: fmt.Sprintf("symbol=%s: %v", symbol, err),
	}
}

// PositionClosedAlert reports a completed trade with its realized PnL.
func PositionClosedAlert(p model.Position, pnl float64) Alert {
	level := AlertInfo
	if pnl < 0 {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("position closed: %s", p.Symbol),
		Message: fmt.Sprintf("%s %s entry=%.4f exit=%.4f size=%.4f reason=%s pnl=%.2f",
			p.Direction, p.Symbol, p.EntryPrice, p.ExitPrice, p.Size, p.Reason, pnl),
	}
}
