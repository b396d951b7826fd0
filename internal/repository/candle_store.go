package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalScope/internal/domain/models"
	domrepo "SignalScope/internal/domain/repository"
	pkgch "SignalScope/pkg/clickhouse"
	applogger "SignalScope/pkg/logger"
	"SignalScope/pkg/util"
)

// CandleTableDDL returns the schema of the candle table read by
// CHCandleStore.
func CandleTableDDL(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            exchange  LowCardinality(String),
            symbol    LowCardinality(String),
            timeframe LowCardinality(String),
            bucket    DateTime64(3, 'UTC'),
            open      Float64,
            high      Float64,
            low       Float64,
            close     Float64,
            volume    Float64
        ) ENGINE = ReplacingMergeTree
        PARTITION BY toYYYYMM(bucket)
        ORDER BY (exchange, symbol, timeframe, bucket)
    `, table)}
}

const latestCandlesTpl = `
        SELECT bucket, open, high, low, close, volume
        FROM %s FINAL
        WHERE exchange = ? AND symbol = ? AND timeframe = ? AND bucket >= ?
        ORDER BY bucket DESC
        LIMIT ?
    `

// CHCandleStore implements CandleSource backed by ClickHouse.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: ch.DB(), table: table, l: l, now: time.Now}
}

// GetLatestNCandles returns up to n candles in ascending time order. The
// lookback bound is two windows wide so gaps in the feed do not starve the
// result.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol, exchange string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()
	from, _ := util.CandleWindow(s.now(), tf.Duration(), 2*n)
	log := s.l.With(
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.String("exchange", exchange),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", n),
	)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(latestCandlesTpl, s.table), exchange, symbol, string(tf), from, n)
	if err != nil {
		log.Error("clickhouse latest_candles query error", applogger.Error(err))
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			log.Error("clickhouse latest_candles scan error", applogger.Error(err))
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		log.Error("clickhouse latest_candles rows error", applogger.Error(err))
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseCandles(out)

	log.Debug("clickhouse latest_candles ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// reverseCandles flips DESC query order to ASC in place.
func reverseCandles(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
