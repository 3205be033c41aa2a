package indicator

import (
	"math"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Bollinger calculates Bollinger Bands: SMA(period) ± k × stddev(period).
// Rolling mean and variance are maintained from running sum and sum of
// squares over a circular buffer, so updates stay O(1).
type Bollinger struct {
	period int
	k      float64
	buf    []float64
	idx    int
	count  int
	sum    float64
	sumSq  float64
}

// NewBollinger creates Bollinger Bands with the given period and band width
// multiple (typically 20 and 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		period: period,
		k:      k,
		buf:    make([]float64, period),
	}
}

func (b *Bollinger) Update(p model.PricePoint) {
	price := p.Close

	if b.count >= b.period {
		old := b.buf[b.idx]
		b.sum -= old
		b.sumSq -= old * old
	}

	b.buf[b.idx] = price
	b.sum += price
	b.sumSq += price * price
	b.idx = (b.idx + 1) % b.period
	b.count++
}

func (b *Bollinger) Ready() bool { return b.count >= b.period }

// Value returns the current bands. Upper ≥ Mid ≥ Lower always holds because
// the standard deviation is non-negative.
func (b *Bollinger) Value() model.BollingerBands {
	if !b.Ready() {
		return model.BollingerBands{}
	}
	return b.bands(b.sum, b.sumSq)
}

// Peek computes the bands with close replacing the oldest window value,
// without mutating state.
func (b *Bollinger) Peek(close float64) model.BollingerBands {
	if !b.Ready() {
		return model.BollingerBands{}
	}
	old := b.buf[b.idx]
	return b.bands(b.sum-old+close, b.sumSq-old*old+close*close)
}

func (b *Bollinger) bands(sum, sumSq float64) model.BollingerBands {
	n := float64(b.period)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		// Floating-point cancellation on near-constant series
		variance = 0
	}
	dev := b.k * math.Sqrt(variance)
	return model.BollingerBands{Upper: mean + dev, Mid: mean, Lower: mean - dev}
}

// Snapshot serializes the Bollinger state for checkpoint persistence.
func (b *Bollinger) Snapshot() IndicatorSnapshot {
	bufCopy := make([]float64, len(b.buf))
	copy(bufCopy, b.buf)
	return IndicatorSnapshot{
		Type:   "BOLL",
		Period: b.period,
		K:      b.k,
		Buf:    bufCopy,
		Idx:    b.idx,
		Count:  b.count,
		Sum:    b.sum,
		SumSq:  b.sumSq,
	}
}

// RestoreFromSnapshot restores Bollinger state from a checkpoint.
func (b *Bollinger) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	b.period = snap.Period
	b.k = snap.K
	b.idx = snap.Idx
	b.count = snap.Count
	b.sum = snap.Sum
	b.sumSq = snap.SumSq
	if len(snap.Buf) > 0 {
		b.buf = make([]float64, len(snap.Buf))
		copy(b.buf, snap.Buf)
	} else {
		b.buf = make([]float64, snap.Period)
	}
	return nil
}
