package model

import "time"

// OrderRequest is what the engine submits to the execution collaborator.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
}

// FillEvent confirms (partial or full) execution of a submitted order.
// Seq is a per-symbol monotonically increasing sequence number assigned by
// the execution collaborator; the tracker rejects events that arrive with a
// sequence at or below the last applied one.
type FillEvent struct {
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Price   float64   `json:"price"`
	Size    float64   `json:"size"`
	Seq     uint64    `json:"seq"`
	TS      time.Time `json:"ts"`
}

// CloseEvent reports an exchange-side exit: stop/target order executed,
// manual close, or liquidation.
type CloseEvent struct {
	OrderID string      `json:"order_id"`
	Symbol  string      `json:"symbol"`
	Price   float64     `json:"price"`
	Reason  CloseReason `json:"reason"`
	Seq     uint64      `json:"seq"`
	TS      time.Time   `json:"ts"`
}
