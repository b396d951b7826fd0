package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/indicators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walk(seed int64, n int, step time.Duration) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	price := 250.0
	for i := range out {
		open := price
		price *= 1 + rng.NormFloat64()*0.01
		out[i] = models.Candle{
			Time:   base.Add(time.Duration(i) * step),
			Open:   open,
			High:   math.Max(open, price) * 1.002,
			Low:    math.Min(open, price) * 0.998,
			Close:  price,
			Volume: 100 + rng.Float64()*900,
		}
	}
	return out
}

func newBuilder(t *testing.T, opts ...BuilderOption) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultConfig(), opts...)
	require.NoError(t, err)
	return b
}

type fakeResolver struct {
	calls int
	res   models.Resolution
}

func (f *fakeResolver) Resolve(_ context.Context, symbol, exchange string) models.Resolution {
	f.calls++
	r := f.res
	r.Symbol, r.Exchange = symbol, exchange
	return r
}

type fakeFetcher struct {
	calls int
	data  map[string]*models.ExternalData
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ []models.Resolution) map[string]*models.ExternalData {
	f.calls++
	return f.data
}

type countingMetrics struct{ errors []string }

func (m *countingMetrics) RecordScan(int, float64)            {}
func (m *countingMetrics) RecordSignal(string, models.Action) {}
func (m *countingMetrics) RecordError(kind string)            { m.errors = append(m.errors, kind) }
func (m *countingMetrics) RecordLatency(string, float64)      {}

func TestBuildComputesBothFrames(t *testing.T) {
	ltf := walk(1, 300, 15*time.Minute)
	htf := walk(2, 80, 4*time.Hour)

	c, err := newBuilder(t).Build(context.Background(), Input{Symbol: "ETH/USDT:USDT", Exchange: "bybit", LTF: ltf, HTF: htf})
	require.NoError(t, err)

	assert.False(t, c.Insufficient())
	assert.Equal(t, "ETH", c.CanonicalSymbol())
	assert.Equal(t, ltf[len(ltf)-1].Close, c.Price())
	assert.True(t, c.HasHTF())

	ltfRSI, ok := c.Series(LTF, indicators.RSIKey)
	require.True(t, ok)
	htfRSI, ok := c.Series(HTF, indicators.RSIKey)
	require.True(t, ok)
	assert.Len(t, ltfRSI, len(ltf))
	assert.Len(t, htfRSI, len(htf))

	// 80 HTF candles cannot seed the 200-period EMA
	_, ok = c.Series(HTF, indicators.EMATrendKey)
	assert.False(t, ok)
	assert.Contains(t, c.Omitted(), "htf:ema_trend")
	_, ok = c.Series(LTF, indicators.EMATrendKey)
	assert.True(t, ok)

	assert.Equal(t, models.StatusNeutral, c.External().Status)
	assert.True(t, c.Geometry().Available)
}

func TestBuildInsufficientHistory(t *testing.T) {
	c, err := newBuilder(t).Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(3, 49, time.Minute)})
	require.NoError(t, err)
	assert.True(t, c.Insufficient())
	assert.Empty(t, c.Indicators(LTF))
	assert.False(t, c.Geometry().Available)
	assert.NotNil(t, c.External())
}

func TestBuildRejectsMalformedCandles(t *testing.T) {
	b := newBuilder(t)

	unordered := walk(4, 60, time.Minute)
	unordered[30].Time = unordered[29].Time
	_, err := b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: unordered})
	assert.ErrorIs(t, err, ErrMalformedCandles)

	nan := walk(5, 60, time.Minute)
	nan[10].Close = math.NaN()
	_, err = b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: nan})
	assert.ErrorIs(t, err, ErrMalformedCandles)

	badHTF := walk(6, 10, time.Hour)
	badHTF[3].Volume = math.Inf(1)
	_, err = b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(7, 60, time.Minute), HTF: badHTF})
	assert.ErrorIs(t, err, ErrMalformedCandles)

	// short but well-formed input is not an error
	_, err = b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(8, 3, time.Minute)})
	assert.NoError(t, err)
}

func TestBuildIsIdempotent(t *testing.T) {
	ltf := walk(9, 260, time.Hour)
	b := newBuilder(t)
	c1, err := b.Build(context.Background(), Input{Symbol: "SOLUSDT", LTF: ltf})
	require.NoError(t, err)
	c2, err := b.Build(context.Background(), Input{Symbol: "SOLUSDT", LTF: ltf})
	require.NoError(t, err)

	s1, s2 := c1.Indicators(LTF), c2.Indicators(LTF)
	require.Equal(t, len(s1), len(s2))
	for name, a := range s1 {
		bs := s2[name]
		require.Len(t, bs, len(a), name)
		for i := range a {
			assert.Equal(t, math.Float64bits(a[i]), math.Float64bits(bs[i]), "%s[%d]", name, i)
		}
	}
	assert.Equal(t, c1.Geometry(), c2.Geometry())
}

func TestFailingIndicatorIsOmitted(t *testing.T) {
	reg := indicators.DefaultRegistry()
	reg.Register(indicators.Indicator{Name: "broken", Compute: func([]models.Candle, indicators.Params) (indicators.Set, error) {
		return nil, errors.New("boom")
	}})
	reg.Register(indicators.Indicator{Name: "explodes", Compute: func([]models.Candle, indicators.Params) (indicators.Set, error) {
		panic("index out of range")
	}})
	cfg := DefaultConfig()
	cfg.Enabled = append(cfg.Enabled, "broken", "explodes", "rsi", "missing")

	m := &countingMetrics{}
	b, err := NewBuilder(cfg, WithRegistry(reg), WithMetrics(m))
	require.NoError(t, err)
	c, err := b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(10, 250, time.Hour)})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ltf:broken", "ltf:explodes"}, c.Omitted())
	assert.ElementsMatch(t, []string{"indicator_broken", "indicator_explodes"}, m.errors)
	_, ok := c.Last(LTF, indicators.RSIKey)
	assert.True(t, ok)
	_, ok = c.Last(LTF, indicators.MACDHistKey)
	assert.True(t, ok)
}

func TestBuildFallbackFetch(t *testing.T) {
	funding := 0.01
	res := &fakeResolver{res: models.Resolution{ProviderSymbol: "BTCUSDT_PERP.A", Status: models.StatusResolved}}
	fetch := &fakeFetcher{data: map[string]*models.ExternalData{
		"BTCUSDT_PERP.A": {ProviderSymbol: "BTCUSDT_PERP.A", Status: models.StatusResolved, FundingRate: &funding},
	}}
	b := newBuilder(t, WithFallbackFetch(res, fetch))

	c, err := b.Build(context.Background(), Input{Symbol: "BTCUSDT", Exchange: "binance", LTF: walk(11, 60, time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, c.External().FundingRate)
	assert.Equal(t, 0.01, *c.External().FundingRate)
	assert.Equal(t, 1, res.calls)
	assert.Equal(t, 1, fetch.calls)

	// a supplied batch result skips the fallback
	pre := &models.ExternalData{Status: models.StatusAggregated}
	c, err = b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(11, 60, time.Hour), External: pre})
	require.NoError(t, err)
	assert.Same(t, pre, c.External())
	assert.Equal(t, 1, res.calls)
}

func TestBuildFallbackNeutral(t *testing.T) {
	res := &fakeResolver{res: models.Resolution{Status: models.StatusNeutral}}
	fetch := &fakeFetcher{}
	b := newBuilder(t, WithFallbackFetch(res, fetch))

	c, err := b.Build(context.Background(), Input{Symbol: "NEWCOIN", LTF: walk(12, 60, time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeutral, c.External().Status)
	assert.False(t, c.External().HasData())
	assert.Zero(t, fetch.calls)

	// resolved but the batch came back empty
	res.res = models.Resolution{ProviderSymbol: "NEWCOIN.0", Status: models.StatusAggregated}
	c, err = b.Build(context.Background(), Input{Symbol: "NEWCOIN", LTF: walk(12, 60, time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAggregated, c.External().Status)
	assert.False(t, c.External().HasData())
}

func TestNewBuilderRejectsPivotOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PivotOrder = 3
	_, err := NewBuilder(cfg)
	assert.Error(t, err)
}

func TestGeometryReportCarriesProjections(t *testing.T) {
	b := newBuilder(t)
	var (
		c   *Context
		rep *GeometryReport
	)
	for seed := int64(1); seed <= 100 && rep == nil; seed++ {
		var err error
		c, err = b.Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(seed, 300, time.Hour)})
		require.NoError(t, err)
		rep = c.Geometry().Report()
	}
	require.NotNil(t, rep, "no trendline in the sampled walks")

	idx := c.LastIndex()
	for _, lr := range []*LineReport{rep.Resistance, rep.Support} {
		if lr == nil {
			continue
		}
		require.NotNil(t, lr.Projection)
		assert.Equal(t, idx, lr.Projection.Index)
		assert.InDelta(t, lr.ValueAt(idx), lr.Projection.RSI, 1e-12)
		if !lr.Projection.Partial {
			require.NotNil(t, lr.Projection.Price)
			assert.Positive(t, *lr.Projection.Price)
		}
	}

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	for _, lr := range out {
		for _, k := range []string{"kind", "pivot_1", "pivot_2", "slope", "intercept", "equation", "projection"} {
			assert.Contains(t, lr, k)
		}
		assert.Contains(t, lr["pivot_1"], "time")
		assert.Contains(t, lr["projection"], "rsi")
	}
}

func TestGeometryReportNilWithoutLines(t *testing.T) {
	c, err := newBuilder(t).Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: walk(3, 49, time.Minute)})
	require.NoError(t, err)
	assert.Nil(t, c.Geometry().Report())
}

func TestContextAccessorsReturnCopies(t *testing.T) {
	ltf := walk(13, 300, time.Hour)
	c, err := newBuilder(t).Build(context.Background(), Input{Symbol: "BTCUSDT", LTF: ltf})
	require.NoError(t, err)
	price := c.Price()
	rsi, _ := c.Last(LTF, indicators.RSIKey)

	// the caller's input slice is not retained
	ltf[len(ltf)-1].Close = -1
	assert.Equal(t, price, c.Price())

	cs := c.Candles(LTF)
	cs[len(cs)-1].Close = -2
	assert.Equal(t, price, c.Price())

	s, ok := c.Series(LTF, indicators.RSIKey)
	require.True(t, ok)
	s[len(s)-1] = -3
	set := c.Indicators(LTF)
	set[indicators.RSIKey][len(s)-1] = -4
	delete(set, indicators.RSIKey)
	got, ok := c.Last(LTF, indicators.RSIKey)
	require.True(t, ok)
	assert.Equal(t, rsi, got)

	g := c.Geometry()
	if g.Lines.Resistance != nil {
		g.Lines.Resistance.Slope = 1e6
		assert.NotEqual(t, 1e6, c.Geometry().Lines.Resistance.Slope)
	}
}
