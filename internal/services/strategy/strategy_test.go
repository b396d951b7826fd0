package strategy

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/filters"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// trending closes at 100+step*(i+1) with a fixed +-1 range and volume.
func trending(n int, step float64) []models.Candle {
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		price += step
		out[i] = models.Candle{
			Time:   t0.Add(time.Duration(i) * 15 * time.Minute),
			Open:   price - step/2,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}
	return out
}

func flat(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Time: t0.Add(time.Duration(i) * 15 * time.Minute),
			Open: 100, High: 100, Low: 100, Close: 100, Volume: 1000,
		}
	}
	return out
}

func randomWalk(rng *rand.Rand, n int) []models.Candle {
	out := make([]models.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price *= 1 + rng.NormFloat64()*0.01
		out[i] = models.Candle{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, price) * (1 + rng.Float64()*0.005),
			Low:    math.Min(open, price) * (1 - rng.Float64()*0.005),
			Close:  price,
			Volume: 500 + rng.Float64()*1500,
		}
	}
	return out
}

// oiSeries is 29 samples alternating around 1000 followed by last.
func oiSeries(last float64) []models.SeriesPoint {
	out := make([]models.SeriesPoint, 30)
	for i := 0; i < 29; i++ {
		v := 1010.0
		if i%2 == 0 {
			v = 990
		}
		out[i] = models.SeriesPoint{Time: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	out[29] = models.SeriesPoint{Time: t0.Add(29 * time.Hour), Value: last}
	return out
}

func buildContext(t *testing.T, ltf []models.Candle, ext *models.ExternalData, prior *models.PriorState) *analysis.Context {
	t.Helper()
	b, err := analysis.NewBuilder(analysis.DefaultConfig())
	require.NoError(t, err)
	c, err := b.Build(context.Background(), analysis.Input{
		Symbol:   "BTCUSDT",
		Exchange: "binance",
		LTF:      ltf,
		External: ext,
		Prior:    prior,
	})
	require.NoError(t, err)
	return c
}

func allScorers(t *testing.T) []Scorer {
	t.Helper()
	r, err := NewRegistry(DefaultConfig())
	require.NoError(t, err)
	s, err := r.Select(nil)
	require.NoError(t, err)
	return s
}

func assertWellFormed(t *testing.T, sig models.Signal) {
	t.Helper()
	keys := make([]string, 0, len(sig.ScoreBreakdown))
	var sum float64
	for k, v := range sig.ScoreBreakdown {
		keys = append(keys, k)
		sum += v
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s/%s not finite", sig.StrategyName, k)
	}
	want := Components(sig.StrategyName)
	sort.Strings(keys)
	sort.Strings(want)
	assert.Equal(t, want, keys, sig.StrategyName)
	assert.InDelta(t, sum, sig.Score, 1e-6, sig.StrategyName)
	assert.Equal(t, sig.Score, sig.TotalScore)

	_, err := json.Marshal(sig)
	assert.NoError(t, err)
}

func TestBreakdownSumsToScore(t *testing.T) {
	scorers := allScorers(t)
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		ltf := randomWalk(rng, 300)
		oi := make([]models.SeriesPoint, 40)
		v := 1e6
		for i := range oi {
			v *= 1 + rng.NormFloat64()*0.02
			oi[i] = models.SeriesPoint{Time: ltf[i].Time, Value: v}
		}
		funding := rng.NormFloat64() * 0.02
		ratio := 0.5 + rng.Float64()
		ext := &models.ExternalData{
			Status:         models.StatusResolved,
			OpenInterest:   oi,
			FundingRate:    &funding,
			LongShortRatio: &ratio,
		}
		c := buildContext(t, ltf, ext, nil)
		for _, sig := range Run(c, scorers) {
			assertWellFormed(t, sig)
			if sig.Action == models.ActionWait {
				continue
			}
			assert.NotEqual(t, models.BiasNeutral, sig.Bias)
		}
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	ltf := randomWalk(rand.New(rand.NewSource(42)), 250)
	ext := &models.ExternalData{Status: models.StatusAggregated, OpenInterest: oiSeries(1040)}
	a := Run(buildContext(t, ltf, ext, nil), allScorers(t))
	b := Run(buildContext(t, ltf, ext, nil), allScorers(t))
	assert.Equal(t, a, b)
}

func TestInsufficientDataWaits(t *testing.T) {
	c := buildContext(t, trending(10, 1), nil, nil)
	require.True(t, c.Insufficient())
	for _, sig := range Run(c, allScorers(t)) {
		assert.Equal(t, models.ActionWait, sig.Action, sig.StrategyName)
		assert.Zero(t, sig.Score)
		assert.Equal(t, ReasonInsufficientData, sig.Diagnostics["reason"])
		assertWellFormed(t, sig)
	}
}

func TestLegacyFlatCandlesWait(t *testing.T) {
	c := buildContext(t, flat(120), nil, nil)
	sig := NewLegacy(DefaultConfig().Legacy).Score(c)

	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Equal(t, models.BiasNeutral, sig.Bias)
	assert.Zero(t, sig.Score)
	for _, k := range legacyKeys {
		assert.Zero(t, sig.ScoreBreakdown[k], k)
	}
	assertWellFormed(t, sig)
}

func TestLegacyUptrendBuys(t *testing.T) {
	ltf := trending(250, 0.5)
	c := buildContext(t, ltf, nil, nil)
	sig := NewLegacy(DefaultConfig().Legacy).Score(c)

	require.Equal(t, models.BiasLong, sig.Bias)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.GreaterOrEqual(t, sig.Score, 60.0)
	assert.Equal(t, 30.0, sig.ScoreBreakdown[LegacyTrend])

	entry := ltf[len(ltf)-1].Close
	assert.InDelta(t, entry, sig.Setup.Entry, 1e-6)
	assert.InDelta(t, entry-3, sig.Setup.StopLoss, 1e-6)
	assert.InDelta(t, entry+6, sig.Setup.TakeProfit, 1e-6)
	assert.InDelta(t, 2, sig.Setup.RiskReward, 1e-9)
	assertWellFormed(t, sig)
}

func TestBreakoutFundingFilter(t *testing.T) {
	funding := 0.08
	ext := &models.ExternalData{Status: models.StatusResolved, FundingRate: &funding}
	c := buildContext(t, randomWalk(rand.New(rand.NewSource(3)), 200), ext, nil)

	sig := NewBreakout(DefaultConfig().Breakout).Score(c)
	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Zero(t, sig.Score)
	assert.Equal(t, ReasonFundingFilter, sig.Diagnostics["reason"])
	assertWellFormed(t, sig)
}

func TestBreakoutWithoutTrendlineBreakWaits(t *testing.T) {
	// a constant RSI of 100 has no pivots and therefore no lines
	c := buildContext(t, trending(120, 0.5), nil, nil)
	sig := NewBreakout(DefaultConfig().Breakout).Score(c)
	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Equal(t, ReasonNoBreakout, sig.Diagnostics["reason"])
	assert.Zero(t, sig.Score)
}

func TestBreakoutBiasFollowsTrendlineBreak(t *testing.T) {
	scorer := NewBreakout(DefaultConfig().Breakout)
	for seed := int64(100); seed < 140; seed++ {
		c := buildContext(t, randomWalk(rand.New(rand.NewSource(seed)), 300), nil, nil)
		sig := scorer.Score(c)
		want, _ := c.Geometry().BreakoutBias()
		if sig.Diagnostics["reason"] == ReasonNoBreakout {
			assert.Equal(t, models.BiasNeutral, want)
			continue
		}
		assert.Equal(t, want, sig.Bias, "seed %d", seed)
		assert.LessOrEqual(t, sig.ScoreBreakdown[BreakoutGeometry], 40.0)
		assert.LessOrEqual(t, sig.ScoreBreakdown[BreakoutMomentum], 30.0)
		assert.LessOrEqual(t, sig.ScoreBreakdown[BreakoutInstitutional], 20.0)
		assert.LessOrEqual(t, sig.ScoreBreakdown[BreakoutSentiment], 10.0)
	}
}

func TestBreakoutV2WaitsBelowZThreshold(t *testing.T) {
	ext := &models.ExternalData{Status: models.StatusResolved, OpenInterest: oiSeries(1012.17)}
	z := filters.OIZScore(ext.OIValues(), 30, 1.5)
	require.InDelta(t, 1.2, z.Z, 0.01)

	c := buildContext(t, trending(120, 0.5), ext, nil)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)

	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Zero(t, sig.Score)
	assert.Zero(t, sig.TotalScore)
	for _, k := range breakoutV2Keys {
		assert.Zero(t, sig.ScoreBreakdown[k], k)
	}
	assert.Equal(t, ReasonOIZScoreFilter, sig.Diagnostics["reason"])
	assert.Nil(t, sig.NextState)
}

func TestBreakoutV2ConstantOIFailsClosed(t *testing.T) {
	oi := oiSeries(1000)
	for i := range oi {
		oi[i].Value = 5000
	}
	c := buildContext(t, trending(120, 0.5), &models.ExternalData{Status: models.StatusResolved, OpenInterest: oi}, nil)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)
	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Zero(t, sig.Score)
	assertWellFormed(t, sig)
}

func TestBreakoutV2NeutralExternalWaits(t *testing.T) {
	c := buildContext(t, trending(120, 0.5), nil, nil)
	require.Equal(t, models.StatusNeutral, c.External().Status)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)
	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Zero(t, sig.Score)
}

func TestBreakoutV2OBVAgainstBiasWaits(t *testing.T) {
	ltf := trending(120, 0.5)
	// volume flows out on the last bars while the EMAs still point up
	for i := len(ltf) - 14; i < len(ltf); i++ {
		ltf[i].Close = ltf[i-1].Close - 0.1
		ltf[i].Open = ltf[i].Close + 0.05
		ltf[i].High = ltf[i].Close + 1
		ltf[i].Low = ltf[i].Close - 1
	}
	ext := &models.ExternalData{Status: models.StatusResolved, OpenInterest: oiSeries(1040)}
	c := buildContext(t, ltf, ext, nil)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)

	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Zero(t, sig.Score)
	if sig.Bias == models.BiasLong {
		assert.Equal(t, ReasonOBVSlopeFilter, sig.Diagnostics["reason"])
	}
}

func TestBreakoutV2ScoresWhenGatesPass(t *testing.T) {
	ext := &models.ExternalData{Status: models.StatusResolved, OpenInterest: oiSeries(1040)}
	c := buildContext(t, trending(120, 0.5), ext, nil)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)

	assert.Equal(t, models.BiasLong, sig.Bias)
	assert.Equal(t, 30.0, sig.ScoreBreakdown[V2OIZScore])
	assert.Equal(t, 25.0, sig.ScoreBreakdown[V2OBVSlope])
	// RSI pinned at 100 is overbought in the bull range
	assert.Zero(t, sig.ScoreBreakdown[V2Cardwell])
	assert.Zero(t, sig.ScoreBreakdown[V2TrendlineBreakout])
	assert.Equal(t, 55.0, sig.Score)
	assert.Equal(t, models.ActionWait, sig.Action)
	assert.Equal(t, ReasonBelowMinScore, sig.Diagnostics["reason"])
}

func TestBreakoutV2PriorRetestAndSetup(t *testing.T) {
	ltf := trending(120, 0.5)
	entry := ltf[len(ltf)-1].Close
	prior := &models.PriorState{
		Direction:    models.BiasLong,
		BreakoutTime: ltf[100].Time,
		LineLevel:    60,
		PriceLevel:   ltf[100].Close,
		Cycles:       2,
	}
	ext := &models.ExternalData{Status: models.StatusResolved, OpenInterest: oiSeries(1040)}
	c := buildContext(t, ltf, ext, prior)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)

	assert.Equal(t, 10.0, sig.ScoreBreakdown[V2TrendlineBreakout])
	assert.Equal(t, 65.0, sig.Score)
	require.Equal(t, models.ActionBuy, sig.Action)

	// ATR is 2 and the 20-bar swing spans 19 steps plus the candle range
	assert.InDelta(t, entry-6, sig.Setup.StopLoss, 1e-6)
	assert.InDelta(t, entry+11.5, sig.Setup.TakeProfit, 1e-6)
	assert.Equal(t, models.BiasLong, sig.Setup.Side)

	require.NotNil(t, sig.NextState)
	assert.Equal(t, 3, sig.NextState.Cycles)
	assert.Equal(t, prior.BreakoutTime, sig.NextState.BreakoutTime)
}

func TestBreakoutV2FailedRetestDropsState(t *testing.T) {
	ltf := trending(120, 0.5)
	prior := &models.PriorState{Direction: models.BiasLong, PriceLevel: ltf[len(ltf)-1].Close + 10, Cycles: 1}
	ext := &models.ExternalData{Status: models.StatusResolved, OpenInterest: oiSeries(1040)}
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(buildContext(t, ltf, ext, prior))
	assert.Zero(t, sig.ScoreBreakdown[V2TrendlineBreakout])
	assert.Nil(t, sig.NextState)
}

func TestFinishCleansNonFinite(t *testing.T) {
	c := buildContext(t, flat(60), nil, nil)
	s := newSheet(LegacyName, c, legacyKeys)
	s.set(LegacyTrend, math.NaN())
	s.set(LegacyTiming, math.Inf(1))
	s.set(LegacyMoneyFlow, 12.345)
	s.set("unknown", 99)
	nan := math.NaN()
	s.note("ratio", math.Inf(-1))
	s.note("ptr", &nan)
	s.note("nested", map[string]any{"x": math.NaN()})
	s.sig.Setup = models.Setup{Entry: math.NaN(), RiskReward: math.Inf(1)}

	sig := s.finish()
	assert.Equal(t, 0.0, sig.ScoreBreakdown[LegacyTrend])
	assert.Equal(t, 0.0, sig.ScoreBreakdown[LegacyTiming])
	assert.Equal(t, 12.35, sig.ScoreBreakdown[LegacyMoneyFlow])
	assert.NotContains(t, sig.ScoreBreakdown, "unknown")
	assert.Equal(t, 12.35, sig.Score)
	assert.Equal(t, 0.0, sig.Diagnostics["ratio"])
	assert.Nil(t, sig.Diagnostics["ptr"])
	assert.Equal(t, 0.0, sig.Setup.Entry)

	_, err := json.Marshal(sig)
	assert.NoError(t, err)
}

func TestRegistrySelection(t *testing.T) {
	r, err := NewRegistry(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{LegacyName, BreakoutName, BreakoutV2Name}, r.Names())

	s, err := r.Select([]string{BreakoutV2Name, BreakoutV2Name, LegacyName})
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, BreakoutV2Name, s[0].Name())

	_, err = r.Select([]string{"momentum"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	r, err = NewRegistry(DefaultConfig(), BreakoutName)
	require.NoError(t, err)
	assert.Equal(t, []string{BreakoutName}, r.Names())
	_, err = r.Select([]string{LegacyName})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = NewRegistry(DefaultConfig(), "nope")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

type panicky struct{}

func (panicky) Name() string                          { return LegacyName }
func (panicky) Score(*analysis.Context) models.Signal { panic("boom") }

func TestRunIsolatesPanics(t *testing.T) {
	c := buildContext(t, flat(60), nil, nil)
	out := Run(c, []Scorer{panicky{}, NewBreakout(DefaultConfig().Breakout)})
	require.Len(t, out, 2)
	assert.Equal(t, models.ActionWait, out[0].Action)
	assertWellFormed(t, out[0])
	assert.Equal(t, BreakoutName, out[1].StrategyName)
}

func TestBreakoutScorersReportTrendline(t *testing.T) {
	scorers := []Scorer{NewBreakout(DefaultConfig().Breakout), NewBreakoutV2(DefaultConfig().BreakoutV2)}
	found := 0
	for seed := int64(1); seed <= 300 && found < 3; seed++ {
		c := buildContext(t, randomWalk(rand.New(rand.NewSource(seed)), 300), nil, nil)
		bias, _ := c.Geometry().BreakoutBias()
		if bias == models.BiasNeutral {
			continue
		}
		found++
		line := c.Geometry().Line(bias)
		require.NotNil(t, line)

		for _, sc := range scorers {
			raw, err := json.Marshal(sc.Score(c))
			require.NoError(t, err, sc.Name())
			var out struct {
				Diagnostics map[string]json.RawMessage `json:"diagnostics"`
			}
			require.NoError(t, json.Unmarshal(raw, &out))
			require.Contains(t, out.Diagnostics, "trendline", "%s seed %d", sc.Name(), seed)

			var note map[string]any
			require.NoError(t, json.Unmarshal(out.Diagnostics["trendline"], &note))
			for _, k := range []string{"kind", "equation", "slope", "intercept", "pivot_1", "pivot_2", "projection"} {
				assert.Contains(t, note, k, "%s seed %d", sc.Name(), seed)
			}
			assert.Equal(t, line.Equation, note["equation"])
			assert.InDelta(t, line.Intercept, note["intercept"], 1e-9)

			p1 := note["pivot_1"].(map[string]any)
			assert.EqualValues(t, line.P1.Index, p1["index"])
			assert.Contains(t, p1, "value")
			assert.Contains(t, p1, "time")

			proj := note["projection"].(map[string]any)
			assert.EqualValues(t, c.LastIndex(), proj["index"])
			assert.InDelta(t, line.ValueAt(c.LastIndex()), proj["rsi"], 1e-9)
			assert.Contains(t, proj, "partial")
		}
	}
	require.Positive(t, found, "no trendline break in the sampled walks")
}

func TestBreakoutV2OmitsTrendlineWithoutBreak(t *testing.T) {
	c := buildContext(t, trending(120, 0.5), nil, nil)
	sig := NewBreakoutV2(DefaultConfig().BreakoutV2).Score(c)
	assert.NotContains(t, sig.Diagnostics, "trendline")
}
