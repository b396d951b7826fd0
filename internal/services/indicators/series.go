// Package indicators computes technical indicators over ordered candle
// sequences. Every output series is index-aligned with its input; leading
// positions without enough history hold NaN.
package indicators

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a series is too short for the
// requested window.
var ErrInsufficientData = errors.New("insufficient data")

// Series is an indicator output aligned 1:1 with its source candles.
type Series []float64

// Last returns the most recent defined value.
func (s Series) Last() (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if isFinite(s[i]) {
			return s[i], true
		}
	}
	return 0, false
}

// At returns s[i] when it is inside the series and defined.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || !isFinite(s[i]) {
		return 0, false
	}
	return s[i], true
}

// Defined returns the trailing n defined values, oldest first.
func (s Series) Defined(n int) []float64 {
	out := make([]float64, 0, n)
	for i := len(s) - 1; i >= 0 && len(out) < n; i-- {
		if isFinite(s[i]) {
			out = append(out, s[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func newSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func need(n, period int) error {
	if period <= 0 {
		return fmt.Errorf("invalid period %d", period)
	}
	if n < period {
		return fmt.Errorf("need %d values, have %d: %w", period, n, ErrInsufficientData)
	}
	return nil
}
