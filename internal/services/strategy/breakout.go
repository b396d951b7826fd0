package strategy

import (
	"math"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/filters"
	"SignalScope/internal/services/indicators"
	"SignalScope/internal/services/trendline"
)

// Breakout score components.
const (
	BreakoutGeometry      = "geometry"
	BreakoutMomentum      = "momentum"
	BreakoutInstitutional = "institutional"
	BreakoutSentiment     = "sentiment"
	BreakoutBonuses       = "bonuses"
)

var breakoutKeys = []string{BreakoutGeometry, BreakoutMomentum, BreakoutInstitutional, BreakoutSentiment, BreakoutBonuses}

// Breakout scores RSI trendline breaks by the pattern that preceded them.
type Breakout struct {
	cfg BreakoutConfig
}

func NewBreakout(cfg BreakoutConfig) *Breakout { return &Breakout{cfg: cfg} }

func (b *Breakout) Name() string { return BreakoutName }

func (b *Breakout) Score(c *analysis.Context) models.Signal {
	s := newSheet(BreakoutName, c, breakoutKeys)
	if c.Insufficient() {
		return s.wait(ReasonInsufficientData)
	}

	ext := c.External()
	if ext != nil && ext.FundingRate != nil {
		s.note("funding_rate", *ext.FundingRate)
		if math.Abs(*ext.FundingRate) > b.cfg.FundingLimit {
			return s.wait(ReasonFundingFilter)
		}
	}

	geo := c.Geometry()
	bias, brk := geo.BreakoutBias()
	line := geo.Line(bias)
	if bias == models.BiasNeutral || line == nil {
		return s.wait(ReasonNoBreakout)
	}
	s.sig.Bias = bias
	s.note("trendline", trendlineNote(geo, bias, brk))

	s.set(BreakoutGeometry, b.geometry(c, *line, s))
	s.set(BreakoutMomentum, b.momentum(c, *line, bias, brk))
	s.set(BreakoutInstitutional, b.institutional(c, s))
	s.set(BreakoutSentiment, b.sentiment(c, bias))
	s.set(BreakoutBonuses, b.bonuses(c, bias, brk))

	s.decide(b.cfg.MinScore)
	if s.sig.Actionable() {
		atr, _ := c.Last(analysis.LTF, indicators.ATRKey)
		if st, ok := atrSetup(bias, c.Price(), atr, b.cfg.StopATRMult, b.cfg.RewardRisk); ok {
			s.sig.Setup = st
		}
	}
	return s.finish()
}

// geometry approximates the triangle the pattern drew: the price amplitude
// in percent over the bars since the first pivot, halved.
func (b *Breakout) geometry(c *analysis.Context, line trendline.Trendline, s *sheet) float64 {
	cs := c.Candles(analysis.LTF)
	bars := len(cs) - line.P1.Index
	if bars < 2 || b.cfg.GeometryScale <= 0 {
		return 0
	}
	hi, lo, ok := indicators.SwingRange(cs, bars)
	if !ok || lo <= 0 {
		return 0
	}
	amplitude := (hi - lo) / lo * 100
	area := amplitude * float64(bars) / 2
	s.note("geometry_area", area)
	return 40 * clamp01(area/b.cfg.GeometryScale)
}

// momentum: breakout strength 15, RSI line against price slope divergence
// 15 (7.5 when both agree with the bias).
func (b *Breakout) momentum(c *analysis.Context, line trendline.Trendline, bias models.Bias, brk trendline.Breakout) float64 {
	score := 15 * clamp01(brk.Distance/5)

	closes := models.Closes(c.Candles(analysis.LTF))
	window := closes[line.P1.Index : line.P2.Index+1]
	priceSlope, ok := indicators.OLSSlope(window)
	mean := indicators.Mean(window)
	if !ok || mean == 0 {
		return score
	}
	priceSlope = priceSlope / mean * 100
	rsiDir := line.Slope * bias.Sign()
	priceDir := priceSlope * bias.Sign()
	switch {
	case rsiDir > 0 && priceDir <= 0:
		score += 15
	case rsiDir > 0 && priceDir > 0:
		score += 7.5
	}
	return score
}

// institutional rewards rising open interest, new money behind the move.
func (b *Breakout) institutional(c *analysis.Context, s *sheet) float64 {
	slope := filters.OISlope(c.External().OIValues(), c.Config().Filters.OISlopeLookback)
	if !slope.Defined || b.cfg.OISlopeScale <= 0 {
		return 0
	}
	s.note("oi_slope_pct", slope.Value)
	return 20 * clamp01(slope.Value/b.cfg.OISlopeScale)
}

// sentiment: funding paid by the opposite side 5, top traders leaning with
// the bias 5.
func (b *Breakout) sentiment(c *analysis.Context, bias models.Bias) float64 {
	ext := c.External()
	if ext == nil {
		return 0
	}
	var score float64
	if ext.FundingRate != nil {
		f := *ext.FundingRate * bias.Sign()
		switch {
		case f <= 0:
			score += 5
		case f < b.cfg.FundingLimit/2:
			score += 2.5
		}
	}
	if ext.LongShortRatio != nil && *ext.LongShortRatio > 0 {
		lean := math.Log(*ext.LongShortRatio) * bias.Sign()
		score += 5 * clamp01(lean/math.Log(2))
	}
	return score
}

// bonuses: fresh break, volume spike and HTF agreement add 5 each.
func (b *Breakout) bonuses(c *analysis.Context, bias models.Bias, brk trendline.Breakout) float64 {
	var score float64
	if brk.Fresh {
		score += 5
	}
	cs := c.Candles(analysis.LTF)
	if n := len(cs); n > 1 {
		avg := avgVolume(cs[:n-1], b.cfg.VolumeLookback)
		if cs[n-1].Volume > b.cfg.VolumeSpikeMult*avg {
			score += 5
		}
	}
	if c.HasHTF() && emaTrend(c, analysis.HTF) == bias {
		score += 5
	}
	return score
}
