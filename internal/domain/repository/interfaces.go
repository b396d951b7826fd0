package repository

import (
	"context"

	"SignalScope/internal/domain/models"
)

// CandleSource provides read-only access to stored candles.
type CandleSource interface {
	GetLatestNCandles(ctx context.Context, symbol, exchange string, n int, tf Timeframe) ([]models.Candle, error)
}

// SignalPublisher forwards finished signals to downstream consumers.
type SignalPublisher interface {
	Publish(ctx context.Context, s models.Signal) error
	PublishBatch(ctx context.Context, signals []models.Signal) error
	Close() error
}

// PriorStateStore keeps sticky per-symbol state between scan cycles.
// Load returns (nil, nil) when nothing is stored.
type PriorStateStore interface {
	Load(ctx context.Context, symbol string) (*models.PriorState, error)
	Save(ctx context.Context, symbol string, state models.PriorState) error
}

type Metrics interface {
	RecordScan(symbols int, seconds float64)
	RecordSignal(strategy string, action models.Action)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
