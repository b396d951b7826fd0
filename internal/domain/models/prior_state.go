package models

import "time"

// PriorState is the sticky breakout context retained for a symbol between
// scan cycles.
type PriorState struct {
	Direction    Bias      `json:"direction"`
	BreakoutTime time.Time `json:"breakout_time"`
	// LineLevel is the RSI trendline value at the breakout bar.
	LineLevel float64 `json:"line_level"`
	// PriceLevel is the close at the breakout bar.
	PriceLevel float64 `json:"price_level"`
	// Cycles counts consecutive scan cycles the breakout has held.
	Cycles int `json:"cycles"`
}
