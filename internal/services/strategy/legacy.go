package strategy

import (
	"math"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/filters"
	"SignalScope/internal/services/indicators"
)

// Legacy score components.
const (
	LegacyTrend     = "trend"
	LegacyMoneyFlow = "money_flow"
	LegacyStructure = "structure"
	LegacyTiming    = "timing"
)

var legacyKeys = []string{LegacyTrend, LegacyMoneyFlow, LegacyStructure, LegacyTiming}

// Legacy is the EMA/ADX trend-following scorer.
type Legacy struct {
	cfg LegacyConfig
}

func NewLegacy(cfg LegacyConfig) *Legacy { return &Legacy{cfg: cfg} }

func (l *Legacy) Name() string { return LegacyName }

func (l *Legacy) Score(c *analysis.Context) models.Signal {
	s := newSheet(LegacyName, c, legacyKeys)
	if c.Insufficient() {
		return s.wait(ReasonInsufficientData)
	}

	bias := l.bias(c)
	s.sig.Bias = bias
	if bias == models.BiasNeutral {
		return s.wait(ReasonNeutralBias)
	}

	s.set(LegacyTrend, l.trend(c, bias))
	s.set(LegacyMoneyFlow, l.moneyFlow(c, bias))
	s.set(LegacyStructure, l.structure(c, bias))
	s.set(LegacyTiming, l.timing(c, bias, s))

	s.decide(l.cfg.MinScore)
	if s.sig.Actionable() {
		atr, _ := c.Last(analysis.LTF, indicators.ATRKey)
		if st, ok := atrSetup(bias, c.Price(), atr, l.cfg.StopATRMult, l.cfg.RewardRisk); ok {
			s.sig.Setup = st
		}
	}
	return s.finish()
}

// bias requires the EMAs and price to agree and ADX to confirm a trend.
func (l *Legacy) bias(c *analysis.Context) models.Bias {
	trend := emaTrend(c, analysis.LTF)
	slow, okS := c.Last(analysis.LTF, indicators.EMASlowKey)
	adx, okA := c.Last(analysis.LTF, indicators.ADXKey)
	if trend == models.BiasNeutral || !okS || !okA || adx < l.cfg.ADXThreshold {
		return models.BiasNeutral
	}
	if (c.Price()-slow)*trend.Sign() <= 0 {
		return models.BiasNeutral
	}
	return trend
}

// trend: ADX strength 15, DI spread 10, EMA separation 5.
func (l *Legacy) trend(c *analysis.Context, bias models.Bias) float64 {
	var score float64
	if adx, ok := c.Last(analysis.LTF, indicators.ADXKey); ok {
		score += 15 * clamp01((adx-l.cfg.ADXThreshold)/(50-l.cfg.ADXThreshold))
	}
	plus, okP := c.Last(analysis.LTF, indicators.PlusDIKey)
	minus, okM := c.Last(analysis.LTF, indicators.MinusDIKey)
	if okP && okM {
		score += 10 * clamp01((plus-minus)*bias.Sign()/20)
	}
	fast, okF := c.Last(analysis.LTF, indicators.EMAFastKey)
	slow, okS := c.Last(analysis.LTF, indicators.EMASlowKey)
	if okF && okS && slow != 0 {
		sepPct := (fast - slow) / slow * 100 * bias.Sign()
		score += 5 * clamp01(sepPct/2)
	}
	return score
}

// moneyFlow: OBV slope agreement 15, MACD histogram agreement 10.
func (l *Legacy) moneyFlow(c *analysis.Context, bias models.Bias) float64 {
	var score float64
	cfg := c.Config().Filters
	if obv, ok := c.Series(analysis.LTF, indicators.OBVKey); ok {
		slope := filters.OBVSlope(obv, cfg.OBVLookback)
		if slope.Matches(bias) {
			score += 10 + 5*clamp01(math.Abs(slope.Value)/avgVolume(c.Candles(analysis.LTF), cfg.OBVLookback))
		}
	}
	if hist, ok := c.Last(analysis.LTF, indicators.MACDHistKey); ok && hist*bias.Sign() > 0 {
		score += 10
	}
	return score
}

// structure: price on the right side of the long EMA 10, HTF agreement 10,
// price not stretched beyond the Bollinger band 5.
func (l *Legacy) structure(c *analysis.Context, bias models.Bias) float64 {
	var score float64
	price := c.Price()
	if ema, ok := c.Last(analysis.LTF, indicators.EMATrendKey); ok && (price-ema)*bias.Sign() > 0 {
		score += 10
	}
	if c.HasHTF() && emaTrend(c, analysis.HTF) == bias {
		score += 10
	}
	upper, okU := c.Last(analysis.LTF, indicators.BBUpperKey)
	lower, okL := c.Last(analysis.LTF, indicators.BBLowerKey)
	if okU && okL {
		if (bias == models.BiasLong && price <= upper) || (bias == models.BiasShort && price >= lower) {
			score += 5
		}
	}
	return score
}

// timing: pullback depth in ATRs 10, RSI momentum band 10.
func (l *Legacy) timing(c *analysis.Context, bias models.Bias, s *sheet) float64 {
	var score float64
	price := c.Price()
	atr, okA := c.Last(analysis.LTF, indicators.ATRKey)
	hi, lo, okR := indicators.SwingRange(c.Candles(analysis.LTF), l.cfg.PullbackLookback)
	if okA && okR && atr > 0 {
		depth := (hi - price) / atr
		if bias == models.BiasShort {
			depth = (price - lo) / atr
		}
		s.note("pullback_atr", depth)
		switch {
		case depth >= 0.5 && depth <= 2:
			score += 10
		case depth < 0.5:
			score += 5
		case depth <= 3:
			score += 3
		}
	}
	if rsi, ok := c.Last(analysis.LTF, indicators.RSIKey); ok {
		// distance from neutral in the bias direction
		m := (rsi - 50) * bias.Sign()
		switch {
		case m >= -10 && m <= 10:
			score += 10
		case m > 10 && m <= 20:
			score += 5
		}
	}
	return score
}

func avgVolume(cs []models.Candle, n int) float64 {
	if n > len(cs) {
		n = len(cs)
	}
	if n <= 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, c := range cs[len(cs)-n:] {
		sum += c.Volume
	}
	if sum == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}
