package indicator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

var errBadSnapshot = errors.New("malformed indicator snapshot")

// ErrStaleSnapshot is returned by RestoreEngineWithin when the checkpoint is
// older than the caller's freshness bound.
var ErrStaleSnapshot = errors.New("indicator snapshot too old")

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Snapshot() IndicatorSnapshot
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// IndicatorSnapshot holds the serialized state of a single indicator instance.
type IndicatorSnapshot struct {
	Type   string `json:"type"` // "SMA", "EMA", "RSI", "BOLL", "MACD", "ATR"
	Period int    `json:"period"`

	// Window-based fields (SMA, Bollinger)
	Buf   []float64 `json:"buf,omitempty"`
	Idx   int       `json:"idx,omitempty"`
	Count int       `json:"count"`
	Sum   float64   `json:"sum,omitempty"`
	SumSq float64   `json:"sum_sq,omitempty"`
	K     float64   `json:"k,omitempty"`

	Current float64 `json:"current"`

	// EMA fields
	Multiplier float64 `json:"multiplier,omitempty"`

	// RSI / ATR fields
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`

	// Composite indicators (MACD) nest their component snapshots.
	Children []IndicatorSnapshot `json:"children,omitempty"`
}

// SeriesSnapshot holds indicator snapshots for one symbol+timeframe.
type SeriesSnapshot struct {
	Key        string              `json:"key"` // "symbol:timeframe"
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of the indicator engine.
type EngineSnapshot struct {
	Series  []SeriesSnapshot `json:"series"`
	Version int              `json:"version"` // schema version for forward compat
	TakenAt time.Time        `json:"taken_at"`
}

// SnapshotEngine captures the full state of an indicator Engine as JSON.
func SnapshotEngine(e *Engine) ([]byte, error) {
	snap := EngineSnapshot{Version: 1, TakenAt: time.Now().UTC()}

	for key, s := range e.state {
		ss := SeriesSnapshot{Key: key}
		for _, ema := range s.emas {
			ss.Indicators = append(ss.Indicators, ema.Snapshot())
		}
		for _, sma := range s.smas {
			ss.Indicators = append(ss.Indicators, sma.Snapshot())
		}
		ss.Indicators = append(ss.Indicators,
			s.rsi.Snapshot(), s.boll.Snapshot(), s.macd.Snapshot(), s.atr.Snapshot())
		snap.Series = append(snap.Series, ss)
	}

	return json.Marshal(&snap)
}

// RestoreEngine rebuilds an indicator Engine from snapshot JSON. It is
// tolerant of config changes — indicators are matched by Type+Period rather
// than by index. Matching indicators get their state restored; new
// indicators start fresh (cold). Removed indicators are silently skipped.
func RestoreEngine(cfg Config, data []byte) (*Engine, error) {
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return restoreSnapshot(cfg, snap), nil
}

// RestoreEngineWithin is RestoreEngine with a freshness bound: checkpoints
// older than maxAge (or carrying no timestamp) return ErrStaleSnapshot, so a
// long-stopped process re-warms from live history instead of seeding
// indicators with prices the market has left behind.
func RestoreEngineWithin(cfg Config, data []byte, maxAge time.Duration) (*Engine, error) {
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.TakenAt.IsZero() || time.Since(snap.TakenAt) > maxAge {
		return nil, ErrStaleSnapshot
	}
	return restoreSnapshot(cfg, snap), nil
}

func restoreSnapshot(cfg Config, snap EngineSnapshot) *Engine {
	e := NewEngine(cfg)
	for _, ss := range snap.Series {
		s := e.series(ss.Key)
		restored, cold := 0, 0
		for _, indSnap := range ss.Indicators {
			if restoreOne(s, indSnap) {
				restored++
			} else {
				cold++
			}
		}
		if cold > 0 {
			slog.Info("snapshot restore left indicators cold",
				"series", ss.Key, "restored", restored, "cold", cold)
		}
	}
	return e
}

func restoreOne(s *series, snap IndicatorSnapshot) bool {
	var target Snapshottable
	switch snap.Type {
	case "EMA":
		ema, ok := s.emas[snap.Period]
		if !ok {
			return false
		}
		target = ema
	case "SMA":
		sma, ok := s.smas[snap.Period]
		if !ok {
			return false
		}
		target = sma
	case "RSI":
		if s.rsi.period != snap.Period {
			return false
		}
		target = s.rsi
	case "BOLL":
		if s.boll.period != snap.Period {
			return false
		}
		target = s.boll
	case "MACD":
		if s.macd.fast.period != snap.Period {
			return false
		}
		target = s.macd
	case "ATR":
		if s.atr.period != snap.Period {
			return false
		}
		target = s.atr
	default:
		return false
	}
	return target.RestoreFromSnapshot(snap) == nil
}
