// Package filters implements the institutional confirmation filters:
// open-interest Z-score, OBV and OI slopes, and Cardwell RSI ranges.
package filters

import (
	"math"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/indicators"
)

// Config holds filter windows and thresholds.
type Config struct {
	OILookback        int
	OIZThreshold      float64
	OBVLookback       int
	OISlopeLookback   int
	AmplitudeLookback int
}

// DefaultConfig returns the standard filter settings.
func DefaultConfig() Config {
	return Config{
		OILookback:        30,
		OIZThreshold:      1.5,
		OBVLookback:       14,
		OISlopeLookback:   14,
		AmplitudeLookback: 20,
	}
}

// ZScore is the standardized position of the latest OI sample inside its
// trailing window. Passed is false whenever Defined is false.
type ZScore struct {
	Z       float64 `json:"z"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Samples int     `json:"samples"`
	Defined bool    `json:"defined"`
	Passed  bool    `json:"passed"`
}

// OIZScore computes z = (current - mean) / stddev over the last lookback
// samples, current included. Fewer than two samples or zero deviation
// leave the score undefined and the filter closed.
func OIZScore(values []float64, lookback int, threshold float64) ZScore {
	window := trailingFinite(values, lookback)
	res := ZScore{Samples: len(window)}
	if len(window) < 2 {
		return res
	}
	res.Mean = indicators.Mean(window)
	res.StdDev = indicators.StdDev(window)
	if res.StdDev == 0 || math.IsNaN(res.StdDev) {
		return res
	}
	res.Z = (window[len(window)-1] - res.Mean) / res.StdDev
	res.Defined = true
	res.Passed = res.Z > threshold
	return res
}

// Slope is an OLS slope over a trailing window.
type Slope struct {
	Value   float64 `json:"value"`
	Samples int     `json:"samples"`
	Defined bool    `json:"defined"`
}

// Matches reports whether the slope sign agrees with bias.
func (s Slope) Matches(b models.Bias) bool {
	if !s.Defined {
		return false
	}
	switch b {
	case models.BiasLong:
		return s.Value > 0
	case models.BiasShort:
		return s.Value < 0
	default:
		return false
	}
}

// OBVSlope fits a line through the last lookback OBV values.
func OBVSlope(obv indicators.Series, lookback int) Slope {
	return slopeOf(trailingFinite(obv, lookback))
}

// OISlope fits a line through the last lookback OI values and expresses it
// in percent of the window mean per sample.
func OISlope(values []float64, lookback int) Slope {
	window := trailingFinite(values, lookback)
	s := slopeOf(window)
	if !s.Defined {
		return s
	}
	mean := indicators.Mean(window)
	if mean == 0 {
		return Slope{Samples: s.Samples}
	}
	s.Value = s.Value / math.Abs(mean) * 100
	return s
}

func slopeOf(window []float64) Slope {
	v, ok := indicators.OLSSlope(window)
	return Slope{Value: v, Samples: len(window), Defined: ok}
}

func trailingFinite(values []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	return indicators.Series(values).Defined(n)
}
