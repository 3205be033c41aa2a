package indicator

import (
	"strconv"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// ATR calculates Average True Range with Wilder smoothing. Used by the risk
// manager for volatility-based stop placement when no structural level is
// close enough.
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "ATR_" + strconv.Itoa(a.period) }

func (a *ATR) Update(p model.PricePoint) {
	tr := trueRange(p, a.prevClose, a.count == 0)
	a.prevClose = p.Close
	a.count++

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	// Wilder smoothing
	n := float64(a.period)
	a.current = (a.current*(n-1) + tr) / n
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// Peek approximates ATR with a synthetic candle closing at close, without
// mutating state. The synthetic true range collapses to |close − prevClose|.
func (a *ATR) Peek(close float64) float64 {
	if !a.Ready() {
		return a.current
	}
	tr := close - a.prevClose
	if tr < 0 {
		tr = -tr
	}
	n := float64(a.period)
	return (a.current*(n-1) + tr) / n
}

func trueRange(p model.PricePoint, prevClose float64, first bool) float64 {
	hl := p.High - p.Low
	if first {
		return hl
	}
	hc := p.High - prevClose
	if hc < 0 {
		hc = -hc
	}
	lc := p.Low - prevClose
	if lc < 0 {
		lc = -lc
	}
	tr := hl
	if hc > tr {
		tr = hc
	}
	if lc > tr {
		tr = lc
	}
	return tr
}

// Snapshot serializes the ATR state for checkpoint persistence.
func (a *ATR) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:      "ATR",
		Period:    a.period,
		Count:     a.count,
		PrevClose: a.prevClose,
		Sum:       a.sum,
		Current:   a.current,
	}
}

// RestoreFromSnapshot restores ATR state from a checkpoint.
func (a *ATR) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	a.period = snap.Period
	a.count = snap.Count
	a.prevClose = snap.PrevClose
	a.sum = snap.Sum
	a.current = snap.Current
	return nil
}
