package indicator

import (
	"strconv"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per candle — no history scans. The value is undefined (and
// Ready() is false) until period+1 candles have been seen.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(p model.PricePoint) {
	price := p.Close
	r.count++

	if r.count == 1 {
		// First candle — just record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			// First RSI value using SMA seed
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFromAverages(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p2 := float64(r.period)
	r.avgGain = (r.avgGain*(p2-1) + gain) / p2
	r.avgLoss = (r.avgLoss*(p2-1) + loss) / p2
	r.current = rsiFromAverages(r.avgGain, r.avgLoss)
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// Peek computes what RSI would be with an additional candle without mutating state.
func (r *RSI) Peek(close float64) float64 {
	if r.count <= r.period {
		return r.current
	}
	delta := close - r.prevClose
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	p := float64(r.period)
	ag := (r.avgGain*(p-1) + gain) / p
	al := (r.avgLoss*(p-1) + loss) / p
	return rsiFromAverages(ag, al)
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *RSI) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:      "RSI",
		Period:    r.period,
		Count:     r.count,
		PrevClose: r.prevClose,
		AvgGain:   r.avgGain,
		AvgLoss:   r.avgLoss,
		Current:   r.current,
	}
}

// RestoreFromSnapshot restores RSI state from a checkpoint.
func (r *RSI) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	r.period = snap.Period
	r.count = snap.Count
	r.prevClose = snap.PrevClose
	r.avgGain = snap.AvgGain
	r.avgLoss = snap.AvgLoss
	r.current = snap.Current
	return nil
}
