package model

import "time"

// Direction is the trade bias of a signal or position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = "none"
)

// Signal is the fused output of the aggregator for one tick. Strength is the
// normalized magnitude of the weighted rule sum in [0,1]; Factors lists every
// rule that fired, for explainability.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	Factors   []string  `json:"factors"`
	Price     float64   `json:"price"` // reference price at evaluation time
	TS        time.Time `json:"ts"`
}

// Actionable reports whether the signal proposes a trade at all.
func (s *Signal) Actionable() bool {
	return s.Direction == DirectionLong || s.Direction == DirectionShort
}
