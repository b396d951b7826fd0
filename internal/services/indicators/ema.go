package indicators

// EMA computes an exponential moving average seeded with the SMA of the
// first period defined values. Leading NaN input is skipped, which lets
// EMA run over another indicator's output.
func EMA(values []float64, period int) (Series, error) {
	start := firstDefined(values)
	if start < 0 {
		return nil, need(0, period)
	}
	if err := need(len(values)-start, period); err != nil {
		return nil, err
	}
	out := newSeries(len(values))
	seedEnd := start + period - 1

	var sum float64
	for i := start; i <= seedEnd; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[seedEnd] = prev

	k := 2.0 / float64(period+1)
	for i := seedEnd + 1; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out, nil
}

// SMA computes a simple moving average.
func SMA(values []float64, period int) (Series, error) {
	if err := need(len(values), period); err != nil {
		return nil, err
	}
	out := newSeries(len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

func firstDefined(values []float64) int {
	for i, v := range values {
		if isFinite(v) {
			return i
		}
	}
	return -1
}
