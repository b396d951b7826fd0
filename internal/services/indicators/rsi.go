package indicators

// RSIResult carries the RSI series together with the Wilder averages it was
// derived from. AvgGain and AvgLoss at bar t are the smoothed state after
// consuming bar t.
type RSIResult struct {
	RSI     Series
	AvgGain Series
	AvgLoss Series
}

// RSI computes Wilder's relative strength index.
//
// The averages are seeded with the simple mean of the first period deltas,
// so the first defined value sits at index period. Afterwards
// AvgU_t = (AvgU_{t-1}*(N-1) + U_t) / N and likewise for AvgD.
func RSI(closes []float64, period int) (RSIResult, error) {
	if err := need(len(closes), period+1); err != nil {
		return RSIResult{}, err
	}
	n := len(closes)
	res := RSIResult{RSI: newSeries(n), AvgGain: newSeries(n), AvgLoss: newSeries(n)}
	p := float64(period)

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/p, loss/p
	res.set(period, avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain, avgLoss = WilderStep(avgGain, avgLoss, closes[i]-closes[i-1], period)
		res.set(i, avgGain, avgLoss)
	}
	return res, nil
}

func (r RSIResult) set(i int, avgGain, avgLoss float64) {
	r.AvgGain[i] = avgGain
	r.AvgLoss[i] = avgLoss
	r.RSI[i] = RSIFromAverages(avgGain, avgLoss)
}

// WilderStep advances the smoothed averages by one price change.
func WilderStep(avgGain, avgLoss, delta float64, period int) (float64, float64) {
	p := float64(period)
	var up, down float64
	if delta > 0 {
		up = delta
	} else {
		down = -delta
	}
	return (avgGain*(p-1) + up) / p, (avgLoss*(p-1) + down) / p
}

// RSIFromAverages maps Wilder averages to an RSI value. A flat window
// (both averages zero) reads as 50.
func RSIFromAverages(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
