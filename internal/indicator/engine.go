package indicator

import (
	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Config specifies the indicator periods computed per series.
type Config struct {
	EMAPeriods []int
	SMAPeriods []int
	RSIPeriod  int
	BollPeriod int
	BollK      float64
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ATRPeriod  int
}

// DefaultConfig returns the standard period set used by the strategy rules.
func DefaultConfig() Config {
	return Config{
		EMAPeriods: []int{9, 20, 50, 200},
		SMAPeriods: []int{20, 50},
		RSIPeriod:  14,
		BollPeriod: 20,
		BollK:      2.0,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ATRPeriod:  14,
	}
}

// series holds live indicator instances for one symbol+timeframe.
type series struct {
	emas map[int]*EMA
	smas map[int]*SMA
	rsi  *RSI
	boll *Bollinger
	macd *MACD
	atr  *ATR
}

// Engine computes the full indicator set for multiple symbol+timeframe
// series. Accumulator state is keyed per series and never shared; the engine
// is designed for single-goroutine usage within one symbol's pipeline — no
// locks needed.
type Engine struct {
	cfg   Config
	state map[string]*series // "symbol:timeframe"
}

// NewEngine creates an indicator engine with the given period config.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		state: make(map[string]*series, 8),
	}
}

// Process feeds a closed candle and returns the indicator set aligned to it.
// Per-indicator Ready flags report warm-up; values with Ready == false are
// undefined and must not be read.
func (e *Engine) Process(p model.PricePoint) model.IndicatorSet {
	s := e.series(p.Key())

	for _, ema := range s.emas {
		ema.Update(p)
	}
	for _, sma := range s.smas {
		sma.Update(p)
	}
	s.rsi.Update(p)
	s.boll.Update(p)
	s.macd.Update(p)
	s.atr.Update(p)

	return e.collect(s, p, false)
}

// ProcessPeek computes a live indicator set for a forming candle using
// Peek(). Does NOT mutate state. Returns false when the series has not seen
// any closed candle yet.
func (e *Engine) ProcessPeek(p model.PricePoint) (model.IndicatorSet, bool) {
	s, ok := e.state[p.Key()]
	if !ok {
		return model.IndicatorSet{}, false
	}
	return e.collect(s, p, true), true
}

// Warm replays historical candles through the engine, oldest first.
func (e *Engine) Warm(points []model.PricePoint) {
	for i := range points {
		e.Process(points[i])
	}
}

func (e *Engine) series(key string) *series {
	s, ok := e.state[key]
	if ok {
		return s
	}
	s = &series{
		emas: make(map[int]*EMA, len(e.cfg.EMAPeriods)),
		smas: make(map[int]*SMA, len(e.cfg.SMAPeriods)),
		rsi:  NewRSI(e.cfg.RSIPeriod),
		boll: NewBollinger(e.cfg.BollPeriod, e.cfg.BollK),
		macd: NewMACD(e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal),
		atr:  NewATR(e.cfg.ATRPeriod),
	}
	for _, period := range e.cfg.EMAPeriods {
		s.emas[period] = NewEMA(period)
	}
	for _, period := range e.cfg.SMAPeriods {
		s.smas[period] = NewSMA(period)
	}
	e.state[key] = s
	return s
}

func (e *Engine) collect(s *series, p model.PricePoint, peek bool) model.IndicatorSet {
	set := model.IndicatorSet{
		Symbol:    p.Symbol,
		Timeframe: p.Timeframe,
		TS:        p.TS,
		EMA:       make(map[int]float64, len(s.emas)),
		EMAReady:  make(map[int]bool, len(s.emas)),
		SMA:       make(map[int]float64, len(s.smas)),
		SMAReady:  make(map[int]bool, len(s.smas)),
	}

	for period, ema := range s.emas {
		if peek {
			set.EMA[period] = ema.Peek(p.Close)
		} else {
			set.EMA[period] = ema.Value()
		}
		set.EMAReady[period] = ema.Ready()
	}
	for period, sma := range s.smas {
		if peek {
			set.SMA[period] = sma.Peek(p.Close)
		} else {
			set.SMA[period] = sma.Value()
		}
		set.SMAReady[period] = sma.Ready()
	}

	if peek {
		set.RSI = s.rsi.Peek(p.Close)
		set.Bollinger = s.boll.Peek(p.Close)
		set.MACD = s.macd.Peek(p.Close)
		set.ATR = s.atr.Peek(p.Close)
	} else {
		set.RSI = s.rsi.Value()
		set.Bollinger = s.boll.Value()
		set.MACD = s.macd.Value()
		set.ATR = s.atr.Value()
	}
	set.RSIReady = s.rsi.Ready()
	set.BollingerReady = s.boll.Ready()
	set.MACDReady = s.macd.Ready()
	set.ATRReady = s.atr.Ready()

	return set
}
