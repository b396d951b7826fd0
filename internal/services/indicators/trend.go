package indicators

import (
	"math"

	"SignalScope/internal/domain/models"
)

// ADXResult holds ADX and the directional indicators.
type ADXResult struct {
	ADX     Series
	PlusDI  Series
	MinusDI Series
}

// ADX computes Wilder's average directional index. DI values start at
// index period and ADX at index 2*period-1.
func ADX(cs []models.Candle, period int) (ADXResult, error) {
	if err := need(len(cs), 2*period); err != nil {
		return ADXResult{}, err
	}
	n := len(cs)
	res := ADXResult{ADX: newSeries(n), PlusDI: newSeries(n), MinusDI: newSeries(n)}
	p := float64(period)

	var sTR, sPlus, sMinus float64
	dx := newSeries(n)
	for i := 1; i < n; i++ {
		tr := trueRange(cs[i], cs[i-1].Close)
		up := cs[i].High - cs[i-1].High
		down := cs[i-1].Low - cs[i].Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		if i <= period {
			sTR += tr
			sPlus += plusDM
			sMinus += minusDM
			if i < period {
				continue
			}
		} else {
			sTR = sTR - sTR/p + tr
			sPlus = sPlus - sPlus/p + plusDM
			sMinus = sMinus - sMinus/p + minusDM
		}

		var pdi, mdi float64
		if sTR > 0 {
			pdi = 100 * sPlus / sTR
			mdi = 100 * sMinus / sTR
		}
		res.PlusDI[i] = pdi
		res.MinusDI[i] = mdi
		if sum := pdi + mdi; sum > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / sum
		} else {
			dx[i] = 0
		}
	}

	first := 2*period - 1
	var sum float64
	for i := period; i <= first; i++ {
		sum += dx[i]
	}
	adx := sum / p
	res.ADX[first] = adx
	for i := first + 1; i < n; i++ {
		adx = (adx*(p-1) + dx[i]) / p
		res.ADX[i] = adx
	}
	return res, nil
}

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      Series
	Signal    Series
	Histogram Series
}

// MACD computes the fast/slow EMA difference and its signal EMA.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if err := need(len(closes), slow+signal-1); err != nil {
		return MACDResult{}, err
	}
	fastEMA, err := EMA(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := EMA(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}
	n := len(closes)
	line := newSeries(n)
	for i := slow - 1; i < n; i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig, err := EMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	hist := newSeries(n)
	for i := range hist {
		if isFinite(line[i]) && isFinite(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}, nil
}

// OBV computes on-balance volume starting from zero.
func OBV(cs []models.Candle) (Series, error) {
	if err := need(len(cs), 1); err != nil {
		return nil, err
	}
	out := make(Series, len(cs))
	for i := 1; i < len(cs); i++ {
		switch {
		case cs[i].Close > cs[i-1].Close:
			out[i] = out[i-1] + cs[i].Volume
		case cs[i].Close < cs[i-1].Close:
			out[i] = out[i-1] - cs[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}
