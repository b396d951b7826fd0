// Package analysis builds the immutable per-symbol analysis context that
// every strategy scorer reads from.
package analysis

import (
	"maps"
	"slices"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/filters"
	"SignalScope/internal/services/indicators"
	"SignalScope/internal/services/trendline"
)

// Frame selects the LTF or HTF indicator namespace.
type Frame string

const (
	LTF Frame = "ltf"
	HTF Frame = "htf"
)

// Config controls context construction and is carried on every context so
// scorers see the same settings the builder used.
type Config struct {
	MinCandles         int
	Enabled            []string
	Params             indicators.Params
	Filters            filters.Config
	PivotOrder         int
	TrendlineTolerance float64
}

// DefaultConfig enables every built-in indicator with default periods.
func DefaultConfig() Config {
	return Config{
		MinCandles:         50,
		Enabled:            indicators.DefaultRegistry().Names(),
		Params:             indicators.DefaultParams(),
		Filters:            filters.DefaultConfig(),
		PivotOrder:         5,
		TrendlineTolerance: 0.5,
	}
}

// Context is the fully populated input of one analysis call. It is built
// once and only read afterwards; accessors never recompute anything and
// hand out copies, so scorers cannot change what the next scorer sees.
type Context struct {
	symbol    string
	canonical string
	exchange  string

	ltf []models.Candle
	htf []models.Candle

	ltfIndicators indicators.Set
	htfIndicators indicators.Set
	omitted       []string

	external *models.ExternalData
	prior    *models.PriorState
	cfg      Config

	geometry Geometry

	insufficient bool
}

// Geometry is the RSI trendline analysis derived once at build time.
type Geometry struct {
	Available            bool
	Lines                trendline.Result
	ResistanceBreak      trendline.Breakout
	SupportBreak         trendline.Breakout
	ResistanceProjection *trendline.Projection
	SupportProjection    *trendline.Projection
}

// BreakoutBias returns the direction of a trendline break at the last
// bar. A resistance break wins when both lines are broken.
func (g Geometry) BreakoutBias() (models.Bias, trendline.Breakout) {
	switch {
	case g.ResistanceBreak.Broken:
		return models.BiasLong, g.ResistanceBreak
	case g.SupportBreak.Broken:
		return models.BiasShort, g.SupportBreak
	default:
		return models.BiasNeutral, trendline.Breakout{}
	}
}

// Line returns the trendline a breakout in bias direction crosses.
func (g Geometry) Line(bias models.Bias) *trendline.Trendline {
	switch bias {
	case models.BiasLong:
		return g.Lines.Resistance
	case models.BiasShort:
		return g.Lines.Support
	default:
		return nil
	}
}

// Projection returns the reverse-RSI projection of Line(bias).
func (g Geometry) Projection(bias models.Bias) *trendline.Projection {
	switch bias {
	case models.BiasLong:
		return g.ResistanceProjection
	case models.BiasShort:
		return g.SupportProjection
	default:
		return nil
	}
}

// LineReport is one RSI trendline with its projection at the last bar.
type LineReport struct {
	trendline.Trendline
	Projection *trendline.Projection `json:"projection,omitempty"`
}

// GeometryReport is the trendline analysis as returned to API callers.
type GeometryReport struct {
	Resistance *LineReport `json:"resistance,omitempty"`
	Support    *LineReport `json:"support,omitempty"`
}

// Report returns the detected lines and their projections, or nil when
// no line was found.
func (g Geometry) Report() *GeometryReport {
	if !g.Available || (g.Lines.Resistance == nil && g.Lines.Support == nil) {
		return nil
	}
	r := &GeometryReport{}
	if l := g.Lines.Resistance; l != nil {
		r.Resistance = &LineReport{Trendline: *l, Projection: g.ResistanceProjection}
	}
	if l := g.Lines.Support; l != nil {
		r.Support = &LineReport{Trendline: *l, Projection: g.SupportProjection}
	}
	return r
}

func (g Geometry) clone() Geometry {
	out := g
	out.Lines.Highs = slices.Clone(g.Lines.Highs)
	out.Lines.Lows = slices.Clone(g.Lines.Lows)
	out.Lines.Resistance = clonePtr(g.Lines.Resistance)
	out.Lines.Support = clonePtr(g.Lines.Support)
	out.ResistanceProjection = cloneProjection(g.ResistanceProjection)
	out.SupportProjection = cloneProjection(g.SupportProjection)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneProjection(p *trendline.Projection) *trendline.Projection {
	out := clonePtr(p)
	if out != nil {
		out.Price = clonePtr(p.Price)
	}
	return out
}

func (c *Context) Symbol() string          { return c.symbol }
func (c *Context) CanonicalSymbol() string { return c.canonical }
func (c *Context) Exchange() string        { return c.exchange }
func (c *Context) Config() Config          { return c.cfg }

// Insufficient reports the "insufficient data" marker: too few LTF candles
// to compute anything. Scorers treat it as no signal.
func (c *Context) Insufficient() bool { return c.insufficient }

// Candles returns a copy of the candles of frame.
func (c *Context) Candles(f Frame) []models.Candle {
	if f == HTF {
		return slices.Clone(c.htf)
	}
	return slices.Clone(c.ltf)
}

// HasHTF reports whether higher-timeframe candles were supplied.
func (c *Context) HasHTF() bool { return len(c.htf) > 0 }

func (c *Context) set(f Frame) indicators.Set {
	if f == HTF {
		return c.htfIndicators
	}
	return c.ltfIndicators
}

// Indicators returns a deep copy of the indicator namespace of frame.
func (c *Context) Indicators(f Frame) indicators.Set {
	out := maps.Clone(c.set(f))
	for k, s := range out {
		out[k] = slices.Clone(s)
	}
	return out
}

// Series returns a copy of one indicator output.
func (c *Context) Series(f Frame, name string) (indicators.Series, bool) {
	s, ok := c.set(f).Get(name)
	return slices.Clone(s), ok
}

// Last returns the latest defined value of an indicator output.
func (c *Context) Last(f Frame, name string) (float64, bool) {
	return c.set(f).Last(name)
}

// Omitted lists "frame:indicator" entries whose computation failed.
func (c *Context) Omitted() []string { return slices.Clone(c.omitted) }

// External returns the institutional data; never nil. It is shared with
// the batch that fetched it and must be treated as read-only.
func (c *Context) External() *models.ExternalData { return c.external }

// Prior returns sticky state from the previous cycle, if any. Read-only,
// like External.
func (c *Context) Prior() *models.PriorState { return c.prior }

// Price returns the last LTF close.
func (c *Context) Price() float64 {
	if len(c.ltf) == 0 {
		return 0
	}
	return c.ltf[len(c.ltf)-1].Close
}

// Geometry returns a copy of the derived RSI trendline analysis.
func (c *Context) Geometry() Geometry { return c.geometry.clone() }

// LastIndex returns the index of the last LTF candle.
func (c *Context) LastIndex() int { return len(c.ltf) - 1 }
