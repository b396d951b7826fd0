package trendline

import "time"

// Pivot is a local RSI extremum.
type Pivot struct {
	Index int       `json:"index"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// FindPivots returns the strict k-order pivot highs and lows of series in
// chronological order. A point qualifies only if it is strictly above (or
// below) each of its k neighbours on both sides; ties and NaN neighbours
// disqualify it.
func FindPivots(series []float64, ts []time.Time, k int) (highs, lows []Pivot) {
	if k < 1 {
		return nil, nil
	}
	for i := k; i <= len(series)-1-k; i++ {
		v := series[i]
		isHigh, isLow := true, true
		for j := 1; j <= k && (isHigh || isLow); j++ {
			l, r := series[i-j], series[i+j]
			if !(v > l && v > r) {
				isHigh = false
			}
			if !(v < l && v < r) {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, Pivot{Index: i, Value: v, Time: timeAt(ts, i)})
		}
		if isLow {
			lows = append(lows, Pivot{Index: i, Value: v, Time: timeAt(ts, i)})
		}
	}
	return highs, lows
}

func timeAt(ts []time.Time, i int) time.Time {
	if i < 0 || i >= len(ts) {
		return time.Time{}
	}
	return ts[i]
}
