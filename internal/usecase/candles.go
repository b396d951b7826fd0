package usecase

import (
	"context"
	"fmt"

	"SignalScope/internal/domain/models"
	domrepo "SignalScope/internal/domain/repository"
	"SignalScope/internal/services/analysis"
	"SignalScope/pkg/util"
)

// ErrNoCandleSource is returned when a symbol carries no inline candles
// and no candle store is configured.
var ErrNoCandleSource = fmt.Errorf("no inline candles and no candle store configured")

// ParseCandles converts wire candles. Ordering is validated by the
// analysis builder.
func ParseCandles(dtos []models.CandleDTO) ([]models.Candle, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]models.Candle, len(dtos))
	for i, d := range dtos {
		t, ok := util.ParseTime(d.Time)
		if !ok {
			return nil, fmt.Errorf("candle %d time %q: %w", i, d.Time, analysis.ErrMalformedCandles)
		}
		out[i] = models.Candle{Time: t, Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, Volume: d.Volume}
	}
	return out, nil
}

// CandleLoader picks inline candles when present and falls back to the
// store otherwise.
type CandleLoader struct {
	store domrepo.CandleSource
}

func NewCandleLoader(store domrepo.CandleSource) *CandleLoader {
	return &CandleLoader{store: store}
}

// Load returns the candles of one frame. An empty tf with no inline
// candles means the frame is not wanted.
func (l *CandleLoader) Load(ctx context.Context, sym models.ScanSymbol, inline []models.CandleDTO, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	if len(inline) > 0 {
		return ParseCandles(inline)
	}
	if tf == "" {
		return nil, nil
	}
	if l == nil || l.store == nil {
		return nil, ErrNoCandleSource
	}
	cs, err := l.store.GetLatestNCandles(ctx, sym.Symbol, sym.Exchange, limit, tf)
	if err != nil {
		return nil, fmt.Errorf("load %s candles: %w", tf, err)
	}
	return cs, nil
}
