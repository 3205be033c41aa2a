package model

// PatternKind identifies a candlestick pattern. The set is closed: adding a
// pattern means adding a constant here and a detector implementing it.
type PatternKind string

const (
	PatternDoji            PatternKind = "doji"
	PatternHammer          PatternKind = "hammer"
	PatternShootingStar    PatternKind = "shooting_star"
	PatternBullishEngulf   PatternKind = "bullish_engulfing"
	PatternBearishEngulf   PatternKind = "bearish_engulfing"
	PatternMorningStar     PatternKind = "morning_star"
	PatternEveningStar     PatternKind = "evening_star"
	PatternThreeLineStrike PatternKind = "three_line_strike"
)

// PatternMatch is one detected pattern occurrence. Confidence is a continuous
// score in [0,1]; Index points at the last candle of the pattern within the
// evaluated window. Bullish is false for bearish variants and for neutral
// patterns like doji it reflects the close direction of the final candle.
type PatternMatch struct {
	Kind       PatternKind `json:"kind"`
	Confidence float64     `json:"confidence"`
	Index      int         `json:"index"`
	Bullish    bool        `json:"bullish"`
}
