package trendline

import (
	"math"

	"SignalScope/internal/services/indicators"
)

// WilderState is the RSI smoothing state after the bar preceding the one
// being projected.
type WilderState struct {
	AvgGain   float64
	AvgLoss   float64
	PrevClose float64
	Period    int
}

// Projection is the trendline value at a bar, optionally translated into
// the close price that would put RSI exactly on the line.
type Projection struct {
	Index int     `json:"index"`
	RSI   float64 `json:"rsi"`
	// Price is nil when no smoothing state was available or the target RSI
	// cannot be reached in one bar.
	Price   *float64 `json:"price,omitempty"`
	Partial bool     `json:"partial"`
}

// ReverseRSI projects line at idx. With state it back-solves the Wilder
// recursion for the close at idx; without it only the RSI projection is
// reported and the result is marked partial.
func ReverseRSI(line Trendline, idx int, state *WilderState) Projection {
	p := Projection{Index: idx, RSI: line.ValueAt(idx), Partial: true}
	if state == nil {
		return p
	}
	if price, ok := PriceForRSI(p.RSI, *state); ok {
		p.Price = &price
		p.Partial = false
	}
	return p
}

// PriceForRSI returns the close that moves RSI to target in one bar from
// state. ok is false for targets outside (0,100), a degenerate state, or a
// non-positive solution.
func PriceForRSI(target float64, s WilderState) (float64, bool) {
	if s.Period < 2 || math.IsNaN(target) || target <= 0 || target >= 100 {
		return 0, false
	}
	if s.AvgGain == 0 && s.AvgLoss == 0 {
		return 0, false
	}
	n1 := float64(s.Period - 1)
	rs := target / (100 - target)

	var price float64
	if up := n1 * (rs*s.AvgLoss - s.AvgGain); up >= 0 {
		price = s.PrevClose + up
	} else {
		down := n1 * (s.AvgGain/rs - s.AvgLoss)
		price = s.PrevClose - down
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}
	return price, true
}

// StateAt reads the Wilder state for projecting bar idx from RSI averages
// and closes. ok is false when the previous bar has no smoothing state.
func StateAt(avgGain, avgLoss indicators.Series, closes []float64, idx, period int) (WilderState, bool) {
	g, okG := avgGain.At(idx - 1)
	l, okL := avgLoss.At(idx - 1)
	if !okG || !okL || idx-1 >= len(closes) {
		return WilderState{}, false
	}
	return WilderState{AvgGain: g, AvgLoss: l, PrevClose: closes[idx-1], Period: period}, true
}
