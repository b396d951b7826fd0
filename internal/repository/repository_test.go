package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"SignalScope/internal/domain/models"
	pkgcache "SignalScope/pkg/cache"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorStateStoreRedis(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	store := NewCachePriorStateStore(pkgcache.NewRedisCacheWithClient(rdb, "sig"), 6*time.Hour)

	state := models.PriorState{
		Direction:    models.BiasLong,
		BreakoutTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		LineLevel:    58.2,
		PriceLevel:   61250,
		Cycles:       2,
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)

	mock.ExpectSet("sig:prior:BTC", raw, 6*time.Hour).SetVal("OK")
	mock.ExpectGet("sig:prior:BTC").SetVal(string(raw))
	mock.ExpectGet("sig:prior:ETH").RedisNil()
	mock.ExpectGet("sig:prior:SOL").SetErr(errors.New("connection refused"))

	require.NoError(t, store.Save(ctx, "BTCUSDT", state))

	got, err := store.Load(ctx, "BTC/USDT:USDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.Direction, got.Direction)
	assert.True(t, state.BreakoutTime.Equal(got.BreakoutTime))
	assert.Equal(t, state.Cycles, got.Cycles)

	got, err = store.Load(ctx, "ETHUSDT")
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = store.Load(ctx, "SOLUSDT")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPriorStateStoreMemory(t *testing.T) {
	ctx := context.Background()
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	store := NewCachePriorStateStore(mc, time.Hour)

	require.NoError(t, store.Save(ctx, "ETHUSDT", models.PriorState{Direction: models.BiasShort, Cycles: 1}))
	require.NoError(t, store.Save(ctx, "ETHUSDT", models.PriorState{Direction: models.BiasShort, Cycles: 2}))

	got, err := store.Load(ctx, "ETH-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Cycles)
}

func TestSignalMessageKeyedByCanonicalSymbol(t *testing.T) {
	m := signalMessage(models.Signal{
		StrategyName: "breakout_v2",
		Symbol:       "BTCUSDT",
		Exchange:     "binance",
		Action:       models.ActionBuy,
		NextState:    &models.PriorState{Cycles: 1},
	})
	assert.Equal(t, "BTC", string(m.Key))
	assert.Equal(t, "breakout_v2", m.Headers["strategy"])
	assert.Equal(t, "BUY", m.Headers["action"])

	raw, err := json.Marshal(m.Value)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "cycles")
}

func TestNoopSignalPublisher(t *testing.T) {
	var p NoopSignalPublisher
	assert.NoError(t, p.Publish(context.Background(), models.Signal{}))
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.NoError(t, p.Close())
}

func TestReverseCandles(t *testing.T) {
	t0 := time.Unix(0, 0)
	cs := []models.Candle{{Time: t0.Add(2 * time.Minute)}, {Time: t0.Add(time.Minute)}, {Time: t0}}
	reverseCandles(cs)
	assert.Equal(t, t0, cs[0].Time)
	assert.Equal(t, t0.Add(2*time.Minute), cs[2].Time)
	reverseCandles(nil)
}

func TestCandleTableDDL(t *testing.T) {
	stmts := CandleTableDDL("market.candles")
	require.Len(t, stmts, 1)
	assert.True(t, strings.Contains(stmts[0], "CREATE TABLE IF NOT EXISTS market.candles"))
	assert.Contains(t, stmts[0], "ORDER BY (exchange, symbol, timeframe, bucket)")
}
