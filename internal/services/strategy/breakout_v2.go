package strategy

import (
	"math"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/filters"
	"SignalScope/internal/services/indicators"
	"SignalScope/internal/services/trendline"
)

// BreakoutV2 score components.
const (
	V2OIZScore          = "oi_zscore"
	V2OBVSlope          = "obv_slope"
	V2Cardwell          = "cardwell"
	V2TrendlineBreakout = "trendline_breakout"
)

var breakoutV2Keys = []string{V2OIZScore, V2OBVSlope, V2Cardwell, V2TrendlineBreakout}

// BreakoutV2 only scores setups confirmed by open interest expansion and
// on-balance volume. Either filter failing yields a zero WAIT.
type BreakoutV2 struct {
	cfg BreakoutV2Config
}

func NewBreakoutV2(cfg BreakoutV2Config) *BreakoutV2 { return &BreakoutV2{cfg: cfg} }

func (v *BreakoutV2) Name() string { return BreakoutV2Name }

func (v *BreakoutV2) Score(c *analysis.Context) models.Signal {
	s := newSheet(BreakoutV2Name, c, breakoutV2Keys)
	if c.Insufficient() {
		return s.wait(ReasonInsufficientData)
	}

	geo := c.Geometry()
	bias, brk := geo.BreakoutBias()
	if n := trendlineNote(geo, bias, brk); n != nil {
		s.note("trendline", n)
	}
	if bias == models.BiasNeutral {
		bias = emaTrend(c, analysis.LTF)
	}
	s.sig.Bias = bias
	if bias == models.BiasNeutral {
		return s.wait(ReasonNeutralBias)
	}

	fcfg := c.Config().Filters
	z := filters.OIZScore(c.External().OIValues(), fcfg.OILookback, fcfg.OIZThreshold)
	s.note("oi_zscore", map[string]any{"z": z.Z, "samples": z.Samples, "defined": z.Defined, "passed": z.Passed})
	obv, _ := c.Series(analysis.LTF, indicators.OBVKey)
	slope := filters.OBVSlope(obv, fcfg.OBVLookback)
	s.note("obv_slope", slope.Value)

	if !z.Passed {
		return s.wait(ReasonOIZScoreFilter)
	}
	if !slope.Matches(bias) {
		return s.wait(ReasonOBVSlopeFilter)
	}

	rsi, _ := c.Series(analysis.LTF, indicators.RSIKey)
	cw := filters.ClassifyCardwell(rsi, bias)
	s.note("cardwell", map[string]any{
		"regime":      string(cw.Regime),
		"range":       string(cw.Range),
		"shift":       string(cw.Shift),
		"opportunity": cw.Opportunity,
	})

	s.set(V2OIZScore, 30*clamp01(z.Z/v.cfg.ZScoreCap))
	s.set(V2OBVSlope, 25*clamp01(math.Abs(slope.Value)/avgVolume(c.Candles(analysis.LTF), fcfg.OBVLookback)))
	s.set(V2Cardwell, cardwellScore(cw, bias))

	atr, _ := c.Last(analysis.LTF, indicators.ATRKey)
	tl, next := v.breakout(c, bias, brk, atr)
	s.set(V2TrendlineBreakout, tl)
	s.sig.NextState = next

	s.decide(v.cfg.MinScore)
	if s.sig.Actionable() {
		if st, ok := v.setup(c, bias, atr); ok {
			s.sig.Setup = st
		}
	}
	return s.finish()
}

// cardwellScore: aligned regime 10, matching range shift 5, opportunity 5.
func cardwellScore(cw filters.Cardwell, bias models.Bias) float64 {
	var score float64
	if cw.Aligned(bias) {
		score += 10
	}
	if cw.ShiftMatches(bias) {
		score += 5
	}
	if cw.Opportunity {
		score += 5
	}
	return score
}

// breakout scores the trendline component and derives the state to carry
// into the next cycle. A live break earns 15 plus 10 when fresh or 5 when
// it continues a stored break; a stored break that still holds scores 10
// as a retest.
func (v *BreakoutV2) breakout(c *analysis.Context, bias models.Bias, brk trendline.Breakout, atr float64) (float64, *models.PriorState) {
	prior := c.Prior()
	samePrior := prior != nil && prior.Direction == bias
	cs := c.Candles(analysis.LTF)
	last := cs[len(cs)-1]

	if brk.Broken && brkBias(brk) == bias {
		score := 15.0
		next := &models.PriorState{
			Direction:    bias,
			BreakoutTime: last.Time,
			LineLevel:    brk.Line,
			PriceLevel:   last.Close,
			Cycles:       1,
		}
		switch {
		case brk.Fresh:
			score += 10
		case samePrior:
			score += 5
			*next = *prior
			next.Cycles = prior.Cycles + 1
		}
		return score, next
	}

	if samePrior && v.holds(*prior, last.Close, atr) {
		next := *prior
		next.Cycles++
		return 10, &next
	}
	return 0, nil
}

// holds reports whether price has not fallen back through the stored
// breakout level by more than the retest tolerance.
func (v *BreakoutV2) holds(p models.PriorState, price, atr float64) bool {
	if p.PriceLevel <= 0 {
		return false
	}
	tol := 0.0
	if atr > 0 {
		tol = v.cfg.RetestATRTolerance * atr
	}
	return (price-p.PriceLevel)*p.Direction.Sign() >= -tol
}

// setup: stop StopATRMult ATRs away, target the Cardwell amplitude scaled
// by TargetAmplitudeMult. Without an amplitude the target falls back to
// twice the risk.
func (v *BreakoutV2) setup(c *analysis.Context, bias models.Bias, atr float64) (models.Setup, bool) {
	entry := c.Price()
	if atr <= 0 || entry <= 0 {
		return models.Setup{}, false
	}
	sign := bias.Sign()
	risk := v.cfg.StopATRMult * atr
	reward := 2 * risk
	if amp, ok := filters.Amplitude(c.Candles(analysis.LTF), c.Config().Filters.AmplitudeLookback); ok {
		reward = amp * v.cfg.TargetAmplitudeMult
	}
	return newSetup(bias, entry, entry-sign*risk, entry+sign*reward), true
}

func brkBias(b trendline.Breakout) models.Bias {
	switch b.Kind {
	case trendline.Resistance:
		return models.BiasLong
	case trendline.Support:
		return models.BiasShort
	default:
		return models.BiasNeutral
	}
}
