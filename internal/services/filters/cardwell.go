package filters

import (
	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/indicators"
)

// Regime is the Cardwell label consumed by the scorers.
type Regime string

const (
	RegimeBullMomentum Regime = "BULL_MOMENTUM"
	RegimeBearMomentum Regime = "BEAR_MOMENTUM"
	RegimeNeutral      Regime = "NEUTRAL"
	RegimeOverbought   Regime = "OVERBOUGHT"
	RegimeOversold     Regime = "OVERSOLD"
)

// Range is the Cardwell RSI band in effect.
type Range string

const (
	RangeBull    Range = "bull"
	RangeBear    Range = "bear"
	RangeNeutral Range = "neutral"
)

// Shift is a structural range change signalled by RSI crossing 60 or 40.
type Shift string

const (
	ShiftNone    Shift = ""
	ShiftBullish Shift = "bullish"
	ShiftBearish Shift = "bearish"
)

// Band edges.
const (
	bullFloor   = 40.0
	bullCeiling = 80.0
	bearFloor   = 20.0
	bearCeiling = 60.0
)

// Cardwell is the classification of the latest RSI value.
type Cardwell struct {
	Regime Regime  `json:"regime"`
	Range  Range   `json:"range"`
	Shift  Shift   `json:"shift,omitempty"`
	RSI    float64 `json:"rsi"`
	// Opportunity flags RSI below 40 in a bull range (buy) or above 60 in
	// a bear range (sell).
	Opportunity bool `json:"opportunity"`
	Defined     bool `json:"defined"`
}

// ClassifyCardwell labels the last RSI value under the range selected by
// bias: Bull 40-80 for long, Bear 20-60 for short.
func ClassifyCardwell(rsi indicators.Series, bias models.Bias) Cardwell {
	last := rsi.Defined(2)
	if len(last) == 0 {
		return Cardwell{Regime: RegimeNeutral, Range: RangeNeutral}
	}
	cur := last[len(last)-1]
	res := Cardwell{RSI: cur, Defined: true}
	if len(last) == 2 {
		prev := last[0]
		switch {
		case prev <= bearCeiling && cur > bearCeiling:
			res.Shift = ShiftBullish
		case prev >= bullFloor && cur < bullFloor:
			res.Shift = ShiftBearish
		}
	}

	switch bias {
	case models.BiasLong:
		res.Range = RangeBull
		switch {
		case cur >= bullCeiling:
			res.Regime = RegimeOverbought
		case cur >= bullFloor:
			res.Regime = RegimeBullMomentum
		default:
			res.Regime = RegimeOversold
			res.Opportunity = true
		}
	case models.BiasShort:
		res.Range = RangeBear
		switch {
		case cur <= bearFloor:
			res.Regime = RegimeOversold
		case cur <= bearCeiling:
			res.Regime = RegimeBearMomentum
		default:
			res.Regime = RegimeOverbought
			res.Opportunity = true
		}
	default:
		res.Range = RangeNeutral
		switch {
		case cur >= bullCeiling:
			res.Regime = RegimeOverbought
		case cur <= bearFloor:
			res.Regime = RegimeOversold
		case cur > bearCeiling:
			res.Regime = RegimeBullMomentum
		case cur < bullFloor:
			res.Regime = RegimeBearMomentum
		default:
			res.Regime = RegimeNeutral
		}
	}
	return res
}

// Aligned reports whether the regime supports trading in bias direction.
func (c Cardwell) Aligned(bias models.Bias) bool {
	switch bias {
	case models.BiasLong:
		return c.Regime == RegimeBullMomentum || c.Opportunity
	case models.BiasShort:
		return c.Regime == RegimeBearMomentum || c.Opportunity
	default:
		return false
	}
}

// ShiftMatches reports whether a detected range shift points in bias
// direction.
func (c Cardwell) ShiftMatches(bias models.Bias) bool {
	return (bias == models.BiasLong && c.Shift == ShiftBullish) ||
		(bias == models.BiasShort && c.Shift == ShiftBearish)
}

// Amplitude returns the high-low swing over the last lookback candles,
// the momentum amplitude Cardwell projections extend from a breakout.
func Amplitude(cs []models.Candle, lookback int) (float64, bool) {
	hi, lo, ok := indicators.SwingRange(cs, lookback)
	if !ok || hi <= lo {
		return 0, false
	}
	return hi - lo, true
}
