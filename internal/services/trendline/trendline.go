// Package trendline detects RSI pivots and fits validated two-point
// trendlines through them.
package trendline

import (
	"fmt"
	"math"
	"time"
)

const (
	MinOrder         = 5
	MaxOrder         = 7
	DefaultOrder     = 5
	DefaultTolerance = 0.5
)

// Kind is the direction of a trendline.
type Kind string

const (
	Resistance Kind = "resistance"
	Support    Kind = "support"
)

// Trendline is a line through two same-type pivots, x being the bar index.
type Trendline struct {
	Kind      Kind    `json:"kind"`
	P1        Pivot   `json:"pivot_1"`
	P2        Pivot   `json:"pivot_2"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Equation  string  `json:"equation"`
}

func newTrendline(kind Kind, p1, p2 Pivot) Trendline {
	slope := (p2.Value - p1.Value) / float64(p2.Index-p1.Index)
	intercept := p1.Value - slope*float64(p1.Index)
	return Trendline{
		Kind:      kind,
		P1:        p1,
		P2:        p2,
		Slope:     slope,
		Intercept: intercept,
		Equation:  fmt.Sprintf("rsi = %.4f*i %+.4f", slope, intercept),
	}
}

// ValueAt projects the line at bar index idx.
func (t Trendline) ValueAt(idx int) float64 {
	return t.Slope*float64(idx) + t.Intercept
}

// Result is the output of Detect. A nil line means no valid candidate.
type Result struct {
	Resistance *Trendline `json:"resistance,omitempty"`
	Support    *Trendline `json:"support,omitempty"`
	Highs      []Pivot    `json:"-"`
	Lows       []Pivot    `json:"-"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithOrder sets the pivot order k.
func WithOrder(k int) Option {
	return func(e *Engine) {
		e.order = k
	}
}

// WithTolerance sets how far (in RSI points) an intermediate value may
// cross a line before the line is rejected.
func WithTolerance(tol float64) Option {
	return func(e *Engine) {
		e.tolerance = tol
	}
}

// Engine finds pivots and fits trendlines. It is stateless after
// construction and safe for concurrent use.
type Engine struct {
	order     int
	tolerance float64
}

// New creates an Engine. The pivot order must lie in [MinOrder, MaxOrder].
func New(opts ...Option) (*Engine, error) {
	e := &Engine{order: DefaultOrder, tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(e)
	}
	if e.order < MinOrder || e.order > MaxOrder {
		return nil, fmt.Errorf("pivot order %d outside [%d,%d]", e.order, MinOrder, MaxOrder)
	}
	if e.tolerance < 0 || math.IsNaN(e.tolerance) {
		return nil, fmt.Errorf("invalid tolerance %v", e.tolerance)
	}
	return e, nil
}

// Order returns the pivot order k.
func (e *Engine) Order() int { return e.order }

// Tolerance returns the violation tolerance.
func (e *Engine) Tolerance() float64 { return e.tolerance }

// Detect finds the most recent valid resistance and support lines.
func (e *Engine) Detect(rsi []float64, ts []time.Time) Result {
	highs, lows := FindPivots(rsi, ts, e.order)
	return Result{
		Resistance: e.fit(Resistance, highs, rsi),
		Support:    e.fit(Support, lows, rsi),
		Highs:      highs,
		Lows:       lows,
	}
}

// fit walks consecutive pivot pairs from the newest backwards and returns
// the first pair whose line holds over every intermediate point.
func (e *Engine) fit(kind Kind, pivots []Pivot, rsi []float64) *Trendline {
	for i := len(pivots) - 1; i >= 1; i-- {
		line := newTrendline(kind, pivots[i-1], pivots[i])
		if e.holds(line, rsi) {
			return &line
		}
	}
	return nil
}

func (e *Engine) holds(line Trendline, rsi []float64) bool {
	for j := line.P1.Index + 1; j < line.P2.Index; j++ {
		if e.violates(line.Kind, rsi[j], line.ValueAt(j)) {
			return false
		}
	}
	return true
}

func (e *Engine) violates(kind Kind, value, line float64) bool {
	if math.IsNaN(value) {
		return false
	}
	if kind == Resistance {
		return value > line+e.tolerance
	}
	return value < line-e.tolerance
}

// Breakout describes the last bar of a series relative to a line.
type Breakout struct {
	Kind     Kind    `json:"kind"`
	Broken   bool    `json:"broken"`
	Fresh    bool    `json:"fresh"`
	Index    int     `json:"index"`
	RSI      float64 `json:"rsi"`
	Line     float64 `json:"line"`
	Distance float64 `json:"distance"`
}

// Breakout checks whether the last value of rsi has crossed line beyond the
// tolerance. Fresh means the previous bar had not.
func (e *Engine) Breakout(line *Trendline, rsi []float64) Breakout {
	if line == nil || len(rsi) == 0 {
		return Breakout{}
	}
	idx := len(rsi) - 1
	b := Breakout{Kind: line.Kind, Index: idx, RSI: rsi[idx], Line: line.ValueAt(idx)}
	if math.IsNaN(b.RSI) || idx <= line.P2.Index {
		return b
	}
	b.Distance = b.RSI - b.Line
	if line.Kind == Support {
		b.Distance = -b.Distance
	}
	b.Broken = e.violates(line.Kind, b.RSI, b.Line)
	if b.Broken && idx > 0 {
		prev := rsi[idx-1]
		b.Fresh = idx-1 <= line.P2.Index || !e.violates(line.Kind, prev, line.ValueAt(idx-1))
	}
	return b
}
