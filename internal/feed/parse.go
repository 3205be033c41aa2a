package feed

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// aggTradeMsg is the futures aggTrade stream payload.
type aggTradeMsg struct {
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTS  int64  `json:"T"` // epoch milliseconds
	IsMaker  bool   `json:"m"` // true when the buyer is the maker (sell aggression)
}

// ParseAggTrade converts a raw aggTrade payload into a model.Trade.
func ParseAggTrade(data []byte) (model.Trade, error) {
	var msg aggTradeMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Trade{}, fmt.Errorf("aggTrade unmarshal: %w", err)
	}
	if msg.Symbol == "" {
		return model.Trade{}, fmt.Errorf("aggTrade missing symbol")
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return model.Trade{}, fmt.Errorf("aggTrade price %q: %w", msg.Price, err)
	}
	qty, err := strconv.ParseFloat(msg.Quantity, 64)
	if err != nil {
		return model.Trade{}, fmt.Errorf("aggTrade qty %q: %w", msg.Quantity, err)
	}

	side := 1
	if msg.IsMaker {
		side = -1
	}

	return model.Trade{
		Symbol: msg.Symbol,
		Price:  price,
		Qty:    qty,
		Side:   side,
		TS:     time.Unix(0, msg.TradeTS*int64(time.Millisecond)).UTC(),
	}, nil
}

// depthMsg is the futures partial book depth payload. Levels come as
// [price, qty] string pairs, best first on both sides.
type depthMsg struct {
	Symbol  string      `json:"s"`
	EventTS int64       `json:"E"`
	Bids    [][2]string `json:"b"`
	Asks    [][2]string `json:"a"`
}

// ParseDepth converts a raw depth payload into an OrderBookSnapshot.
// Zero-quantity levels (removals in the exchange encoding) are skipped.
func ParseDepth(data []byte) (model.OrderBookSnapshot, error) {
	var msg depthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.OrderBookSnapshot{}, fmt.Errorf("depth unmarshal: %w", err)
	}
	if msg.Symbol == "" {
		return model.OrderBookSnapshot{}, fmt.Errorf("depth missing symbol")
	}

	bids, err := parseLevels(msg.Bids)
	if err != nil {
		return model.OrderBookSnapshot{}, fmt.Errorf("depth bids: %w", err)
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		return model.OrderBookSnapshot{}, fmt.Errorf("depth asks: %w", err)
	}

	return model.OrderBookSnapshot{
		Symbol: msg.Symbol,
		TS:     time.Unix(0, msg.EventTS*int64(time.Millisecond)).UTC(),
		Bids:   bids,
		Asks:   asks,
	}, nil
}

func parseLevels(raw [][2]string) ([]model.PriceLevel, error) {
	levels := make([]model.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair[0], err)
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", pair[1], err)
		}
		if size <= 0 {
			continue
		}
		levels = append(levels, model.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}
