package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wilderCloses is the classic 14-period Wilder RSI worked example.
var wilderCloses = []float64{
	44.3389, 44.0902, 44.1497, 43.6124, 44.3278, 44.8264, 45.0955, 45.4245, 45.8433, 46.0826,
	45.8931, 46.0328, 45.6140, 46.2820, 46.2820, 46.0028, 46.0328, 46.4116, 46.2222, 45.6439,
	46.2122, 46.2521, 45.7137, 46.4515, 45.7835, 45.3548, 44.0288, 44.1783, 44.2181, 44.5672,
	43.4205, 42.6628, 43.1314,
}

var wilderRSI = []float64{
	70.5327894837, 66.3185618052, 66.5498299355, 69.4063053388, 66.3551690563, 57.9748557143,
	62.9296067546, 63.2571475625, 56.0592987153, 62.3770714432, 54.7075730813, 50.4227744115,
	39.9898231454, 41.4604819757, 41.8689160925, 45.4632124453, 37.3040420899, 33.0795229944,
	37.7729521144,
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("%s: got %.10f want %.10f (tol %g)", label, got, want, tol)
	}
}

func TestRSIMatchesWilderReference(t *testing.T) {
	res, err := RSI(wilderCloses, 14)
	require.NoError(t, err)
	require.Len(t, res.RSI, len(wilderCloses))

	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(res.RSI[i]), "index %d should be undefined", i)
	}
	for i, want := range wilderRSI {
		assertClose(t, "rsi", res.RSI[14+i], want, 1e-6)
	}
}

func TestRSIHandCalculated(t *testing.T) {
	// period 3: seed gains (1+1)/3, losses 0.5/3 -> RS 4 -> 80
	closes := []float64{10, 11, 10.5, 11.5, 12, 11}
	res, err := RSI(closes, 3)
	require.NoError(t, err)

	assertClose(t, "rsi[3]", res.RSI[3], 80, 1e-9)
	assertClose(t, "rsi[4]", res.RSI[4], 100-100/6.5, 1e-9)
	assertClose(t, "rsi[5]", res.RSI[5], 50, 1e-9)
	assertClose(t, "avg_gain[5]", res.AvgGain[5], 11.0/27.0, 1e-12)
	assertClose(t, "avg_loss[5]", res.AvgLoss[5], 11.0/27.0, 1e-12)
}

func TestRSIAveragesReproduceSeries(t *testing.T) {
	res, err := RSI(wilderCloses, 14)
	require.NoError(t, err)
	for i := 15; i < len(wilderCloses); i++ {
		g, l := WilderStep(res.AvgGain[i-1], res.AvgLoss[i-1], wilderCloses[i]-wilderCloses[i-1], 14)
		assertClose(t, "replayed rsi", RSIFromAverages(g, l), res.RSI[i], 1e-12)
	}
}

func TestRSIEdgeValues(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	res, err := RSI(flat, 14)
	require.NoError(t, err)
	v, ok := res.RSI.Last()
	require.True(t, ok)
	assert.Equal(t, 50.0, v)

	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(i + 1)
	}
	res, err = RSI(rising, 14)
	require.NoError(t, err)
	v, _ = res.RSI.Last()
	assert.Equal(t, 100.0, v)
}

func TestRSIInsufficientData(t *testing.T) {
	_, err := RSI([]float64{1, 2, 3}, 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
