package indicators

import (
	"math"

	"SignalScope/internal/domain/models"
)

// ATR computes Wilder's average true range. The first value is the mean of
// the first period true ranges and sits at index period.
func ATR(cs []models.Candle, period int) (Series, error) {
	if err := need(len(cs), period+1); err != nil {
		return nil, err
	}
	out := newSeries(len(cs))
	p := float64(period)

	var sum float64
	for i := 1; i <= period; i++ {
		sum += trueRange(cs[i], cs[i-1].Close)
	}
	atr := sum / p
	out[period] = atr
	for i := period + 1; i < len(cs); i++ {
		atr = (atr*(p-1) + trueRange(cs[i], cs[i-1].Close)) / p
		out[i] = atr
	}
	return out, nil
}

func trueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// BollingerResult holds the three band series.
type BollingerResult struct {
	Upper  Series
	Middle Series
	Lower  Series
}

// Bollinger computes SMA bands at mult population standard deviations.
func Bollinger(closes []float64, period int, mult float64) (BollingerResult, error) {
	mid, err := SMA(closes, period)
	if err != nil {
		return BollingerResult{}, err
	}
	n := len(closes)
	res := BollingerResult{Upper: newSeries(n), Middle: mid, Lower: newSeries(n)}
	for i := period - 1; i < n; i++ {
		sd := StdDev(closes[i-period+1 : i+1])
		res.Upper[i] = mid[i] + mult*sd
		res.Lower[i] = mid[i] - mult*sd
	}
	return res, nil
}
