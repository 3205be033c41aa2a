package feed

import (
	"testing"
	"time"
)

func TestParseAggTrade(t *testing.T) {
	payload := []byte(`{"e":"aggTrade","E":1700000000123,"s":"BTCUSDT","a":12345,"p":"43250.10","q":"0.250","f":100,"l":105,"T":1700000000100,"m":false}`)

	trade, err := ParseAggTrade(payload)
	if err != nil {
		t.Fatalf("ParseAggTrade: %v", err)
	}

	if trade.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", trade.Symbol)
	}
	if trade.Price != 43250.10 {
		t.Errorf("price = %v, want 43250.10", trade.Price)
	}
	if trade.Qty != 0.25 {
		t.Errorf("qty = %v, want 0.25", trade.Qty)
	}
	if trade.Side != 1 {
		t.Errorf("side = %d, want 1 (taker buy)", trade.Side)
	}
	want := time.Unix(0, 1700000000100*int64(time.Millisecond)).UTC()
	if !trade.TS.Equal(want) {
		t.Errorf("ts = %v, want %v", trade.TS, want)
	}
}

func TestParseAggTrade_MakerBuyIsSellAggression(t *testing.T) {
	payload := []byte(`{"s":"ETHUSDT","p":"2300.5","q":"1.0","T":1700000000000,"m":true}`)

	trade, err := ParseAggTrade(payload)
	if err != nil {
		t.Fatalf("ParseAggTrade: %v", err)
	}
	if trade.Side != -1 {
		t.Errorf("side = %d, want -1 when buyer is maker", trade.Side)
	}
}

func TestParseAggTrade_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing symbol", `{"p":"100","q":"1","T":1700000000000}`},
		{"bad price", `{"s":"BTCUSDT","p":"abc","q":"1","T":1700000000000}`},
		{"bad qty", `{"s":"BTCUSDT","p":"100","q":"","T":1700000000000}`},
		{"not json", `{{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAggTrade([]byte(tc.payload)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestParseDepth(t *testing.T) {
	payload := []byte(`{"e":"depthUpdate","E":1700000000200,"s":"BTCUSDT",` +
		`"b":[["43249.9","1.5"],["43249.0","2.0"],["43248.0","0"]],` +
		`"a":[["43250.1","0.8"],["43251.0","3.2"]]}`)

	snap, err := ParseDepth(payload)
	if err != nil {
		t.Fatalf("ParseDepth: %v", err)
	}

	if snap.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", snap.Symbol)
	}
	// The zero-quantity bid level is a removal and must be skipped.
	if len(snap.Bids) != 2 {
		t.Fatalf("bids = %d, want 2", len(snap.Bids))
	}
	if len(snap.Asks) != 2 {
		t.Fatalf("asks = %d, want 2", len(snap.Asks))
	}
	if snap.Bids[0].Price != 43249.9 || snap.Bids[0].Size != 1.5 {
		t.Errorf("best bid = %+v", snap.Bids[0])
	}
	if snap.Asks[0].Price != 43250.1 || snap.Asks[0].Size != 0.8 {
		t.Errorf("best ask = %+v", snap.Asks[0])
	}
}

func TestParseDepth_Rejects(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing symbol", `{"E":1,"b":[],"a":[]}`},
		{"bad bid price", `{"s":"BTCUSDT","b":[["x","1"]],"a":[]}`},
		{"bad ask size", `{"s":"BTCUSDT","b":[],"a":[["100","y"]]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDepth([]byte(tc.payload)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}
