package model

import "time"

// PriceLevel is one resting level of a depth snapshot.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot is a full depth snapshot for a symbol. Snapshots are
// replaced wholesale per tick; the engine never applies diffs.
// Bids are sorted by price descending, asks ascending.
type OrderBookSnapshot struct {
	Symbol string       `json:"symbol"`
	TS     time.Time    `json:"ts"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// BestBid returns the highest bid, or false if the bid side is empty.
func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, or false if the ask side is empty.
func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// MidPrice returns (best_bid + best_ask) / 2. When one side is empty it
// falls back to the other side's best price; empty book returns 0.
func (s *OrderBookSnapshot) MidPrice() float64 {
	bid, hasBid := s.BestBid()
	ask, hasAsk := s.BestAsk()
	switch {
	case hasBid && hasAsk:
		return (bid.Price + ask.Price) / 2
	case hasBid:
		return bid.Price
	case hasAsk:
		return ask.Price
	default:
		return 0
	}
}

// Wall is an order-book price level with disproportionately large size.
type Wall struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// LiquidityZone is a contiguous price range with high aggregated depth.
type LiquidityZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	Size float64 `json:"size"` // cumulative resting size inside the range
}

// MicrostructureMetrics is the OrderBookAnalyzer output for one snapshot.
// BuyPressure and SellPressure are in [0,1] and sum to 1 when both sides
// hold depth inside the analysis band; an empty side reports 0.
type MicrostructureMetrics struct {
	Symbol        string          `json:"symbol"`
	TS            time.Time       `json:"ts"`
	MidPrice      float64         `json:"mid_price"`
	SpreadPct     float64         `json:"spread_pct"` // (ask-bid)/mid
	BuyPressure   float64         `json:"buy_pressure"`
	SellPressure  float64         `json:"sell_pressure"`
	BidWalls      []Wall          `json:"bid_walls"`
	AskWalls      []Wall          `json:"ask_walls"`
	BidZones      []LiquidityZone `json:"bid_zones"`
	AskZones      []LiquidityZone `json:"ask_zones"`
	BidDepth      float64         `json:"bid_depth"` // total size within the band
	AskDepth      float64         `json:"ask_depth"`
}
