package feed

import (
	"testing"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

func trade(symbol string, price, qty float64, ts time.Time) model.Trade {
	return model.Trade{Symbol: symbol, Price: price, Qty: qty, Side: 1, TS: ts}
}

func TestAggregator_BuildsCandleWithinBucket(t *testing.T) {
	agg, err := NewAggregator([]string{"1m"})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	agg.Process(trade("BTCUSDT", 100, 1, base))
	agg.Process(trade("BTCUSDT", 105, 2, base.Add(10*time.Second)))
	agg.Process(trade("BTCUSDT", 98, 1, base.Add(20*time.Second)))
	closed := agg.Process(trade("BTCUSDT", 102, 1, base.Add(30*time.Second)))

	if len(closed) != 0 {
		t.Fatalf("no candle should close mid-bucket, got %d", len(closed))
	}

	c, ok := agg.Forming("BTCUSDT", "1m")
	if !ok {
		t.Fatal("expected a forming candle")
	}
	if c.Open != 100 || c.High != 105 || c.Low != 98 || c.Close != 102 {
		t.Errorf("OHLC = %v/%v/%v/%v, want 100/105/98/102", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 5 {
		t.Errorf("volume = %v, want 5", c.Volume)
	}
	if !c.TS.Equal(base) {
		t.Errorf("ts = %v, want bucket open %v", c.TS, base)
	}
}

func TestAggregator_RolloverClosesCandle(t *testing.T) {
	agg, err := NewAggregator([]string{"1m"})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	agg.Process(trade("BTCUSDT", 100, 1, base.Add(5*time.Second)))
	closed := agg.Process(trade("BTCUSDT", 101, 1, base.Add(61*time.Second)))

	if len(closed) != 1 {
		t.Fatalf("closed = %d candles, want 1", len(closed))
	}
	if closed[0].Close != 100 {
		t.Errorf("closed candle close = %v, want 100", closed[0].Close)
	}

	c, ok := agg.Forming("BTCUSDT", "1m")
	if !ok {
		t.Fatal("expected new forming candle after rollover")
	}
	if c.Open != 101 {
		t.Errorf("new candle open = %v, want 101", c.Open)
	}
}

func TestAggregator_MultipleTimeframes(t *testing.T) {
	agg, err := NewAggregator([]string{"1m", "5m"})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	agg.Process(trade("BTCUSDT", 100, 1, base))
	// 90s later: rolls the 1m bucket but stays inside the 5m bucket.
	closed := agg.Process(trade("BTCUSDT", 103, 1, base.Add(90*time.Second)))

	if len(closed) != 1 {
		t.Fatalf("closed = %d, want 1 (only the 1m candle)", len(closed))
	}
	if closed[0].Timeframe != "1m" {
		t.Errorf("closed timeframe = %q, want 1m", closed[0].Timeframe)
	}

	c, ok := agg.Forming("BTCUSDT", "5m")
	if !ok {
		t.Fatal("expected forming 5m candle")
	}
	if c.Open != 100 || c.Close != 103 || c.Volume != 2 {
		t.Errorf("5m candle = %+v, want open 100 close 103 vol 2", c)
	}
}

func TestAggregator_LateTradeDropped(t *testing.T) {
	agg, err := NewAggregator([]string{"1m"})
	if err != nil {
		t.Fatal(err)
	}
	var late int
	agg.OnLateTrade = func() { late++ }

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	agg.Process(trade("BTCUSDT", 100, 1, base.Add(70*time.Second)))
	agg.Process(trade("BTCUSDT", 999, 1, base)) // behind the current bucket

	if late != 1 {
		t.Errorf("late trades = %d, want 1", late)
	}
	c, _ := agg.Forming("BTCUSDT", "1m")
	if c.High == 999 {
		t.Error("late trade leaked into the current candle")
	}
}

func TestAggregator_FlushClosesElapsedBuckets(t *testing.T) {
	agg, err := NewAggregator([]string{"1m"})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	agg.now = func() time.Time { return base.Add(30 * time.Second) }

	agg.Process(trade("BTCUSDT", 100, 1, base))
	if closed := agg.Flush(); len(closed) != 0 {
		t.Fatalf("bucket still open, flush closed %d", len(closed))
	}

	agg.now = func() time.Time { return base.Add(2 * time.Minute) }
	closed := agg.Flush()
	if len(closed) != 1 {
		t.Fatalf("flush closed %d candles, want 1", len(closed))
	}
	if _, ok := agg.Forming("BTCUSDT", "1m"); ok {
		t.Error("flushed candle should no longer be forming")
	}
}

func TestAggregator_FlushAllOnShutdown(t *testing.T) {
	agg, err := NewAggregator([]string{"1m", "5m"})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	agg.Process(trade("BTCUSDT", 100, 1, base))
	agg.Process(trade("ETHUSDT", 2300, 1, base))

	closed := agg.FlushAll()
	if len(closed) != 4 {
		t.Fatalf("flushAll = %d candles, want 4 (2 symbols x 2 timeframes)", len(closed))
	}
	if len(agg.states) != 0 {
		t.Errorf("states not empty after FlushAll")
	}
}

func TestTimeframeDuration_Unknown(t *testing.T) {
	if _, err := TimeframeDuration("3m"); err == nil {
		t.Error("expected error for unsupported timeframe")
	}
	if _, err := NewAggregator([]string{"1m", "7h"}); err == nil {
		t.Error("NewAggregator should reject unknown timeframe")
	}
}
