package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalScope/internal/domain/models"
	svccache "SignalScope/internal/service/cache"
	"SignalScope/internal/service/ratelimit"
	pkgcache "SignalScope/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	t        *testing.T
	hits     sync.Map
	mu       sync.Mutex
	fail     map[string]bool
	requests atomic.Int64
	maxBatch atomic.Int64
}

func (f *fakeProvider) count(path string) int64 {
	v, ok := f.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (f *fakeProvider) setFail(path string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = v
}

func (f *fakeProvider) failing(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[path]
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	v, _ := f.hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	if r.Header.Get("api_key") != "k" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.failing(r.URL.Path) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	symbols := strings.Split(r.URL.Query().Get("symbols"), ",")
	if n := int64(len(symbols)); n > f.maxBatch.Load() {
		f.maxBatch.Store(n)
	}
	var body any
	switch r.URL.Path {
	case "/future-markets":
		body = []Market{
			{Symbol: "BTCUSDT_PERP.A", BaseAsset: "BTC", QuoteAsset: "USDT", IsPerpetual: true},
			{Symbol: "BTCUSDT_PERP.6", BaseAsset: "BTC", QuoteAsset: "USDT", IsPerpetual: true},
			{Symbol: "ETHUSDT_PERP.A", BaseAsset: "ETH", QuoteAsset: "USDT", IsPerpetual: true},
			{Symbol: "SOLUSD_PERP.3", BaseAsset: "SOL", QuoteAsset: "USD", IsPerpetual: true},
			{Symbol: "XRPUSDT.A", BaseAsset: "XRP", QuoteAsset: "USDT", IsPerpetual: false},
		}
	case "/funding-rate":
		rows := []fundingRow{}
		for _, s := range symbols {
			rows = append(rows, fundingRow{Symbol: s, Value: 0.01})
		}
		body = rows
	default:
		assert.NotEmpty(f.t, r.URL.Query().Get("from"))
		rows := []historyRow{}
		for _, s := range symbols {
			rows = append(rows, historyRow{Symbol: s, History: []historyPoint{
				{T: 1700000900, C: 110, R: 1.4, L: 3, S: 4},
				{T: 1700000000, C: 100, R: 1.2, L: 1, S: 2},
			}})
		}
		body = rows
	}
	_ = json.NewEncoder(w).Encode(body)
}

func setup(t *testing.T) (*fakeProvider, Config, *svccache.ProviderCache) {
	t.Helper()
	fp := &fakeProvider{t: t, fail: map[string]bool{}}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	store := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "k"
	cfg.MinInterval = 0
	return fp, cfg, svccache.NewProviderCache(store, time.Minute, time.Hour)
}

func TestResolverTiers(t *testing.T) {
	fp, cfg, cache := setup(t)
	cfg.Overrides = map[string]string{"DOGE": "DOGEUSDT_PERP.A", "BYBIT:ETHUSDT": "ETHUSDT_PERP.A"}
	r := NewResolver(cfg, cache, ratelimit.New(0, 1), nil)
	ctx := context.Background()

	res := r.Resolve(ctx, "BTC/USDT:USDT", "bybit")
	assert.Equal(t, models.StatusResolved, res.Status)
	assert.Equal(t, "BTCUSDT_PERP.6", res.ProviderSymbol)
	assert.Equal(t, "BTC", res.CanonicalSymbol)

	res = r.Resolve(ctx, "BTCUSDT", "okx")
	assert.Equal(t, models.StatusAggregated, res.Status)
	assert.Equal(t, "BTCUSDT_PERP.A", res.ProviderSymbol)

	res = r.Resolve(ctx, "SOL-USDT-SWAP", "binance")
	assert.Equal(t, models.StatusAggregated, res.Status)
	assert.Equal(t, "SOLUSD_PERP.3", res.ProviderSymbol)

	res = r.Resolve(ctx, "DOGEUSDT", "kraken")
	assert.Equal(t, models.StatusResolved, res.Status)
	assert.Equal(t, "DOGEUSDT_PERP.A", res.ProviderSymbol)

	res = r.Resolve(ctx, "ETHUSDT", "bybit")
	assert.Equal(t, "ETHUSDT_PERP.A", res.ProviderSymbol)

	res = r.Resolve(ctx, "XRPUSDT", "binance")
	assert.Equal(t, models.StatusNeutral, res.Status)
	assert.Empty(t, res.ProviderSymbol)

	assert.Equal(t, int64(1), fp.count("/future-markets"), "listing is cached")
}

func TestResolverNeutralWhenListingFails(t *testing.T) {
	fp, cfg, cache := setup(t)
	fp.setFail("/future-markets", true)
	r := NewResolver(cfg, cache, nil, nil)

	out := r.ResolveAll(context.Background(), []models.Resolution{
		{Symbol: "BTCUSDT", Exchange: "binance"},
		{Symbol: "ETHUSDT", Exchange: "binance"},
	})
	require.Len(t, out, 2)
	for _, res := range out {
		assert.Equal(t, models.StatusNeutral, res.Status)
	}
	assert.Equal(t, int64(1), fp.count("/future-markets"))
}

func resolutions(n int) []models.Resolution {
	out := make([]models.Resolution, 0, n)
	for i := 0; i < n; i++ {
		sym := string(rune('A'+i/26)) + string(rune('A'+i%26)) + "USDT_PERP.A"
		out = append(out, models.Resolution{ProviderSymbol: sym, Status: models.StatusResolved})
	}
	return out
}

func TestBatches(t *testing.T) {
	b := Batches([]string{"c", "a", "b", "a", ""}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, b)
	assert.Len(t, Batches(make([]string, 0), 20), 0)

	many := make([]string, 45)
	for i := range many {
		many[i] = string(rune('A' + i))
	}
	for _, batch := range Batches(many, 100) {
		assert.LessOrEqual(t, len(batch), MaxBatchSize)
	}
}

func TestFetchAllBatchesEveryDataType(t *testing.T) {
	fp, cfg, cache := setup(t)
	c := NewBatchClient(cfg, cache, nil, nil)
	res := append(resolutions(25), models.Resolution{Symbol: "X", Status: models.StatusNeutral})

	out := c.FetchAll(context.Background(), res)
	require.Len(t, out, 25)
	assert.Equal(t, int64(8), fp.requests.Load(), "2 batches x 4 data types")
	assert.LessOrEqual(t, fp.maxBatch.Load(), int64(MaxBatchSize))

	rec := out["AAUSDT_PERP.A"]
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusResolved, rec.Status)
	require.Len(t, rec.OpenInterest, 2)
	assert.Equal(t, 100.0, rec.OpenInterest[0].Value, "history is ordered by time")
	assert.Equal(t, 110.0, rec.OpenInterest[1].Value)
	require.NotNil(t, rec.FundingRate)
	assert.Equal(t, 0.01, *rec.FundingRate)
	require.NotNil(t, rec.LongShortRatio)
	assert.Equal(t, 1.4, *rec.LongShortRatio)
	assert.Len(t, rec.Liquidations, 2)

	// second cycle is served from the response cache
	_ = c.FetchAll(context.Background(), res)
	assert.Equal(t, int64(8), fp.requests.Load())
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	fp, cfg, cache := setup(t)
	fp.setFail("/open-interest-history", true)
	c := NewBatchClient(cfg, cache, nil, nil)

	out := c.FetchAll(context.Background(), resolutions(3))
	require.Len(t, out, 3)
	for _, rec := range out {
		assert.Empty(t, rec.OpenInterest)
		assert.NotNil(t, rec.FundingRate)
		assert.NotNil(t, rec.LongShortRatio)
	}

	// failed responses are not cached
	fp.setFail("/open-interest-history", false)
	out = c.FetchAll(context.Background(), resolutions(3))
	for _, rec := range out {
		assert.Len(t, rec.OpenInterest, 2)
	}
}

func TestFetchAllCancelledWritesNothing(t *testing.T) {
	fp, cfg, cache := setup(t)
	c := NewBatchClient(cfg, cache, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := c.FetchAll(ctx, resolutions(2))
	for _, rec := range out {
		assert.False(t, rec.HasData())
	}
	_, ok := cache.Response(context.Background(), string(DataFunding), Batches([]string{"AAUSDT_PERP.A", "ABUSDT_PERP.A"}, 20)[0])
	assert.False(t, ok)
	assert.Equal(t, int64(0), fp.requests.Load())
}

func TestDecodeEmptyIsNoData(t *testing.T) {
	_, err := decode(DataOpenInterest, []byte(`[]`))
	assert.ErrorIs(t, err, ErrNoData)
	_, err = decode(DataFunding, []byte(`{`))
	assert.Error(t, err)
}
