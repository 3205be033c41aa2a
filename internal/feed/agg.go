package feed

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// TimeframeDuration maps a timeframe label to its bucket length.
func TimeframeDuration(tf string) (time.Duration, error) {
	switch tf {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
}

// candleState holds the in-progress candle for one series in its current
// time bucket.
type candleState struct {
	bucket int64 // Unix second of the bucket open
	candle model.PricePoint
}

// Aggregator builds per-timeframe OHLCV candles from the trade stream. A
// candle is emitted when the first trade of the next bucket arrives or the
// periodic flush sees the bucket's close time in the past.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*candleState // key = "symbol:tf"
	tfs    map[string]time.Duration

	flushInterval time.Duration
	now           func() time.Time

	// Metrics hooks (optional, set externally)
	OnLateTrade func()
}

// NewAggregator creates an aggregator for the given timeframes.
func NewAggregator(timeframes []string) (*Aggregator, error) {
	tfs := make(map[string]time.Duration, len(timeframes))
	for _, tf := range timeframes {
		d, err := TimeframeDuration(tf)
		if err != nil {
			return nil, err
		}
		tfs[tf] = d
	}
	return &Aggregator{
		states:        make(map[string]*candleState),
		tfs:           tfs,
		flushInterval: 500 * time.Millisecond,
		now:           time.Now,
	}, nil
}

// Process incorporates one trade into every configured timeframe and returns
// candles closed by it. Trades behind a series' current bucket are dropped.
func (a *Aggregator) Process(trade model.Trade) []model.PricePoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []model.PricePoint
	for tf, dur := range a.tfs {
		bucket := trade.TS.Truncate(dur).Unix()
		key := trade.Symbol + ":" + tf

		state, exists := a.states[key]
		if exists && bucket < state.bucket {
			// Late trade for an already-rolled bucket.
			if a.OnLateTrade != nil {
				a.OnLateTrade()
			}
			continue
		}

		if exists && bucket > state.bucket {
			closed = append(closed, state.candle)
			exists = false
		}

		if !exists {
			a.states[key] = &candleState{
				bucket: bucket,
				candle: model.PricePoint{
					Symbol:    trade.Symbol,
					Timeframe: tf,
					TS:        time.Unix(bucket, 0).UTC(),
					Open:      trade.Price,
					High:      trade.Price,
					Low:       trade.Price,
					Close:     trade.Price,
					Volume:    trade.Qty,
				},
			}
			continue
		}

		c := &state.candle
		if trade.Price > c.High {
			c.High = trade.Price
		}
		if trade.Price < c.Low {
			c.Low = trade.Price
		}
		c.Close = trade.Price
		c.Volume += trade.Qty
	}
	return closed
}

// Flush emits every candle whose bucket has fully elapsed, so quiet markets
// still close their candles on time.
func (a *Aggregator) Flush() []model.PricePoint {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []model.PricePoint
	for key, state := range a.states {
		dur := a.tfs[state.candle.Timeframe]
		if time.Unix(state.bucket, 0).Add(dur).After(now) {
			continue
		}
		closed = append(closed, state.candle)
		delete(a.states, key)
	}
	return closed
}

// FlushAll emits all open candles regardless of bucket. Called on shutdown.
func (a *Aggregator) FlushAll() []model.PricePoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	closed := make([]model.PricePoint, 0, len(a.states))
	for key, state := range a.states {
		closed = append(closed, state.candle)
		delete(a.states, key)
	}
	return closed
}

// Forming returns a copy of the in-progress candle for a series, if any.
func (a *Aggregator) Forming(symbol, tf string) (model.PricePoint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.states[symbol+":"+tf]
	if !ok {
		return model.PricePoint{}, false
	}
	return state.candle, true
}

// RunLoop pumps trades through the aggregator and pushes closed candles to
// candleCh. Non-blocking sends: a full pipeline drops the candle and logs.
func (a *Aggregator) RunLoop(done <-chan struct{}, tradeCh <-chan model.Trade, candleCh chan<- model.PricePoint) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	emit := func(points []model.PricePoint) {
		for _, p := range points {
			select {
			case candleCh <- p:
			default:
				slog.Warn("candle channel full, dropping", "key", p.Key(), "ts", p.TS)
			}
		}
	}

	for {
		select {
		case <-done:
			emit(a.FlushAll())
			return
		case trade, ok := <-tradeCh:
			if !ok {
				emit(a.FlushAll())
				return
			}
			emit(a.Process(trade))
		case <-ticker.C:
			emit(a.Flush())
		}
	}
}
