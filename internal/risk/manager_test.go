package risk

import (
	"math"
	"testing"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

func sig(dir model.Direction, price float64) model.Signal {
	return model.Signal{Symbol: "BTCUSDT", Direction: dir, Strength: 0.6, Price: price}
}

func TestProposeTrade_SizingFromRiskBudget(t *testing.T) {
	// equity=10000, risk 3%, entry=100, stop=98 → size = 300/2 = 150.
	params := model.DefaultRiskParameters()
	params.MaxRiskPerTradePct = 0.03
	params.ATRStopMultiple = 2.0
	params.MaxExposurePct = 2.0 // sizing under test, not the exposure cap

	m := NewManager(params)
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionLong, 100),
		Equity:   10000,
		ATR:      1.0,
		ATRReady: true,
	})

	if !d.Accepted {
		t.Fatalf("proposal rejected: %s", d.Reason)
	}
	if d.Position.StopLoss != 98 {
		t.Errorf("stop: got %.4f, want 98 (2×ATR below entry)", d.Position.StopLoss)
	}
	if d.Position.Size != 150 {
		t.Errorf("size: got %.4f, want 150", d.Position.Size)
	}
	if d.Position.Status != model.StatusPending {
		t.Errorf("proposed position must be PENDING, got %s", d.Position.Status)
	}
	if d.Position.ID == "" {
		t.Error("proposed position needs an ID")
	}
}

func TestProposeTrade_StopAtStructuralLevel(t *testing.T) {
	// Support at 99 just below entry is tighter than the 2×ATR stop and
	// must win; the stop lands just under the level.
	params := model.DefaultRiskParameters()
	params.ATRStopMultiple = 2.0
	params.MaxExposurePct = 10

	m := NewManager(params)
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionLong, 100),
		Equity:   10000,
		ATR:      2.0, // ATR stop would sit at 96
		ATRReady: true,
		Levels:   model.SupportResistance{Support: []float64{99}},
	})

	if !d.Accepted {
		t.Fatalf("proposal rejected: %s", d.Reason)
	}
	want := 99 * 0.995
	if math.Abs(d.Position.StopLoss-want) > 1e-9 {
		t.Errorf("stop: got %.4f, want %.4f (just below support)", d.Position.StopLoss, want)
	}
}

func TestProposeTrade_ShortMirrorsStops(t *testing.T) {
	params := model.DefaultRiskParameters()
	params.ATRStopMultiple = 2.0
	params.MaxExposurePct = 10

	m := NewManager(params)
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionShort, 100),
		Equity:   10000,
		ATR:      2.0,
		ATRReady: true,
		Levels:   model.SupportResistance{Resistance: []float64{101}},
	})

	if !d.Accepted {
		t.Fatalf("proposal rejected: %s", d.Reason)
	}
	want := 101 * 1.005
	if math.Abs(d.Position.StopLoss-want) > 1e-9 {
		t.Errorf("stop: got %.4f, want %.4f (just above resistance)", d.Position.StopLoss, want)
	}
	if d.Position.TakeProfit >= 100 {
		t.Errorf("short target must sit below entry, got %.4f", d.Position.TakeProfit)
	}
}

func TestProposeTrade_RejectsAtMaxPositions(t *testing.T) {
	params := model.DefaultRiskParameters()
	m := NewManager(params)

	d := m.ProposeTrade(TradeContext{
		Signal:        sig(model.DirectionLong, 100),
		Equity:        10000,
		OpenPositions: params.MaxOpenPositions,
		ATR:           1.0,
		ATRReady:      true,
	})

	if d.Accepted {
		t.Fatal("proposal at the position cap should be rejected")
	}
	if d.Reason == "" {
		t.Error("rejection needs a reason")
	}
}

func TestProposeTrade_RejectsLowRiskReward(t *testing.T) {
	// Resistance right above entry caps the target at 100.5 while the stop
	// sits 2 below: RR = 0.25, far under the 1.5 minimum.
	params := model.DefaultRiskParameters()
	params.ATRStopMultiple = 2.0
	params.MaxExposurePct = 10

	m := NewManager(params)
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionLong, 100),
		Equity:   10000,
		ATR:      1.0,
		ATRReady: true,
		Levels:   model.SupportResistance{Resistance: []float64{100.5}},
	})

	if d.Accepted {
		t.Fatalf("RR %.2f should be rejected, got %+v", d.Position.RiskReward(), d.Position)
	}
}

func TestProposeTrade_RejectsExposureCap(t *testing.T) {
	// Tight stop → huge size → notional blows the per-trade cap.
	params := model.DefaultRiskParameters()
	params.MaxRiskPerTradePct = 0.03
	params.MaxExposurePct = 0.25
	params.ATRStopMultiple = 1.0

	m := NewManager(params)
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionLong, 100),
		Equity:   10000,
		ATR:      0.05, // stop at 99.95 → size 6000 → notional 600k
		ATRReady: true,
	})

	if d.Accepted {
		t.Fatalf("notional over the exposure cap should be rejected: %+v", d.Position)
	}
}

func TestProposeTrade_RejectsWithoutStopBasis(t *testing.T) {
	// No levels and no ATR: nothing to anchor a stop on.
	m := NewManager(model.DefaultRiskParameters())
	d := m.ProposeTrade(TradeContext{
		Signal: sig(model.DirectionLong, 100),
		Equity: 10000,
	})
	if d.Accepted {
		t.Fatal("proposal without any stop basis should be rejected")
	}
}

func TestProposeTrade_RejectsNonActionable(t *testing.T) {
	m := NewManager(model.DefaultRiskParameters())
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionNone, 100),
		Equity:   10000,
		ATR:      1.0,
		ATRReady: true,
	})
	if d.Accepted {
		t.Fatal("direction none should never propose a trade")
	}
}

func TestProposeTrade_TargetAtStructuralLevel(t *testing.T) {
	// Resistance well above entry becomes the target when it clears the RR
	// minimum.
	params := model.DefaultRiskParameters()
	params.ATRStopMultiple = 1.0
	params.MaxExposurePct = 10

	m := NewManager(params)
	d := m.ProposeTrade(TradeContext{
		Signal:   sig(model.DirectionLong, 100),
		Equity:   10000,
		ATR:      1.0, // stop 99, risk 1
		ATRReady: true,
		Levels:   model.SupportResistance{Resistance: []float64{105}},
	})

	if !d.Accepted {
		t.Fatalf("proposal rejected: %s", d.Reason)
	}
	if d.Position.TakeProfit != 105 {
		t.Errorf("target: got %.4f, want resistance 105", d.Position.TakeProfit)
	}
	if rr := d.Position.RiskReward(); rr < params.MinRiskReward {
		t.Errorf("accepted RR below minimum: %.4f", rr)
	}
}
