// Package strategy turns analysis contexts into scored signals. Scorers
// only read the context; every indicator they use was computed by the
// builder.
package strategy

import (
	"math"
	"time"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/indicators"
	"SignalScope/internal/services/trendline"

	"github.com/shopspring/decimal"
)

// Scorer produces one signal for one context.
type Scorer interface {
	Name() string
	Score(c *analysis.Context) models.Signal
}

// Diagnostic reasons reported when a scorer waits.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonNeutralBias      = "neutral_bias"
	ReasonNoBreakout       = "no_breakout"
	ReasonFundingFilter    = "funding_filter"
	ReasonOIZScoreFilter   = "oi_zscore_filter"
	ReasonOBVSlopeFilter   = "obv_slope_filter"
	ReasonBelowMinScore    = "below_min_score"
)

// sheet accumulates one signal. Components outside keys are ignored so the
// breakdown always has exactly the strategy's key set.
type sheet struct {
	sig  models.Signal
	keys []string
}

func newSheet(name string, c *analysis.Context, keys []string) *sheet {
	bd := make(map[string]float64, len(keys))
	for _, k := range keys {
		bd[k] = 0
	}
	return &sheet{
		sig: models.Signal{
			StrategyName:    name,
			Symbol:          c.Symbol(),
			CanonicalSymbol: c.CanonicalSymbol(),
			Exchange:        c.Exchange(),
			Price:           c.Price(),
			Bias:            models.BiasNeutral,
			Action:          models.ActionWait,
			ScoreBreakdown:  bd,
			Diagnostics:     map[string]any{},
		},
		keys: keys,
	}
}

func (s *sheet) set(key string, v float64) {
	if _, ok := s.sig.ScoreBreakdown[key]; ok {
		s.sig.ScoreBreakdown[key] = v
	}
}

func (s *sheet) note(key string, v any) {
	s.sig.Diagnostics[key] = v
}

// wait discards every component and returns a non-actionable signal.
func (s *sheet) wait(reason string) models.Signal {
	for _, k := range s.keys {
		s.sig.ScoreBreakdown[k] = 0
	}
	s.sig.Action = models.ActionWait
	s.sig.Setup = models.Setup{}
	s.sig.NextState = nil
	s.note("reason", reason)
	return s.finish()
}

// decide sets the action from the bias once the total reaches threshold.
func (s *sheet) decide(threshold float64) {
	total := s.total()
	switch {
	case total < threshold:
		s.sig.Action = models.ActionWait
		s.note("reason", ReasonBelowMinScore)
	case s.sig.Bias == models.BiasLong:
		s.sig.Action = models.ActionBuy
	case s.sig.Bias == models.BiasShort:
		s.sig.Action = models.ActionSell
	default:
		s.sig.Action = models.ActionWait
		s.note("reason", ReasonNeutralBias)
	}
}

func (s *sheet) total() float64 {
	sum := decimal.Zero
	for _, k := range s.keys {
		sum = sum.Add(roundScore(s.sig.ScoreBreakdown[k]))
	}
	return sum.InexactFloat64()
}

// finish rounds the components, derives score and total_score from their
// sum and strips every non-finite number.
func (s *sheet) finish() models.Signal {
	sum := decimal.Zero
	for _, k := range s.keys {
		d := roundScore(s.sig.ScoreBreakdown[k])
		s.sig.ScoreBreakdown[k] = d.InexactFloat64()
		sum = sum.Add(d)
	}
	s.sig.Score = sum.InexactFloat64()
	s.sig.TotalScore = s.sig.Score
	s.sig.Price = finite(s.sig.Price)
	s.sig.Setup = cleanSetup(s.sig.Setup)
	s.sig.Diagnostics = cleanMap(s.sig.Diagnostics)
	return s.sig
}

func roundScore(v float64) decimal.Decimal {
	return decimal.NewFromFloat(finite(v)).Round(2)
}

func roundPrice(v float64) float64 {
	return decimal.NewFromFloat(finite(v)).Round(8).InexactFloat64()
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func cleanSetup(st models.Setup) models.Setup {
	st.Entry = roundPrice(st.Entry)
	st.StopLoss = roundPrice(st.StopLoss)
	st.TakeProfit = roundPrice(st.TakeProfit)
	st.RiskReward = decimal.NewFromFloat(finite(st.RiskReward)).Round(2).InexactFloat64()
	return st
}

func cleanMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = cleanValue(v)
	}
	return m
}

func cleanValue(v any) any {
	switch x := v.(type) {
	case float64:
		return finite(x)
	case *float64:
		if x == nil || math.IsNaN(*x) || math.IsInf(*x, 0) {
			return nil
		}
		return *x
	case []float64:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = finite(f)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(x))
		for k, f := range x {
			out[k] = finite(f)
		}
		return out
	case map[string]any:
		return cleanMap(x)
	default:
		return v
	}
}

// newSetup derives the reward-to-risk ratio from entry, stop and target.
func newSetup(side models.Bias, entry, stop, target float64) models.Setup {
	st := models.Setup{Entry: entry, StopLoss: stop, TakeProfit: target, Side: side}
	if risk := math.Abs(entry - stop); risk > 0 {
		st.RiskReward = math.Abs(target-entry) / risk
	}
	return st
}

// atrSetup places the stop stopMult ATRs against the bias and the target
// rewardRisk times that distance in its favour.
func atrSetup(bias models.Bias, entry, atr, stopMult, rewardRisk float64) (models.Setup, bool) {
	if atr <= 0 || entry <= 0 || bias == models.BiasNeutral {
		return models.Setup{}, false
	}
	sign := bias.Sign()
	risk := stopMult * atr
	return newSetup(bias, entry, entry-sign*risk, entry+sign*risk*rewardRisk), true
}

// clamp01 bounds v to [0,1]; non-finite input maps to 0.
func clamp01(v float64) float64 {
	v = finite(v)
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// emaTrend compares the fast and slow EMA of frame.
func emaTrend(c *analysis.Context, f analysis.Frame) models.Bias {
	fast, okF := c.Last(f, indicators.EMAFastKey)
	slow, okS := c.Last(f, indicators.EMASlowKey)
	switch {
	case !okF || !okS:
		return models.BiasNeutral
	case fast > slow:
		return models.BiasLong
	case fast < slow:
		return models.BiasShort
	default:
		return models.BiasNeutral
	}
}

// trendlineNote describes the line crossed by a breakout in bias
// direction together with its reverse-RSI projection at the last bar.
func trendlineNote(geo analysis.Geometry, bias models.Bias, brk trendline.Breakout) map[string]any {
	line := geo.Line(bias)
	if line == nil {
		return nil
	}
	n := map[string]any{
		"kind":      string(line.Kind),
		"equation":  line.Equation,
		"slope":     line.Slope,
		"intercept": line.Intercept,
		"pivot_1":   pivotNote(line.P1),
		"pivot_2":   pivotNote(line.P2),
		"fresh":     brk.Fresh,
		"distance":  brk.Distance,
	}
	if p := geo.Projection(bias); p != nil {
		proj := map[string]any{"index": p.Index, "rsi": p.RSI, "partial": p.Partial}
		if p.Price != nil {
			proj["price"] = *p.Price
		}
		n["projection"] = proj
	}
	return n
}

func pivotNote(p trendline.Pivot) map[string]any {
	return map[string]any{
		"index": p.Index,
		"value": p.Value,
		"time":  p.Time.UTC().Format(time.RFC3339),
	}
}
