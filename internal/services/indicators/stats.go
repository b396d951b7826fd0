package indicators

import (
	"math"

	"SignalScope/internal/domain/models"
)

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// OLSSlope fits y = a + b*x with x = 0..n-1 and returns b.
// ok is false for fewer than two points.
func OLSSlope(ys []float64) (slope float64, ok bool) {
	n := len(ys)
	if n < 2 {
		return 0, false
	}
	xMean := float64(n-1) / 2
	yMean := Mean(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// SwingRange returns the highest high and lowest low of the trailing n
// candles.
func SwingRange(cs []models.Candle, n int) (hi, lo float64, ok bool) {
	if n <= 0 || len(cs) == 0 {
		return 0, 0, false
	}
	if n > len(cs) {
		n = len(cs)
	}
	hi, lo = math.Inf(-1), math.Inf(1)
	for _, c := range cs[len(cs)-n:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return hi, lo, true
}
