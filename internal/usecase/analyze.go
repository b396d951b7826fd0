package usecase

import (
	"context"
	"time"

	"SignalScope/internal/domain/models"
	domrepo "SignalScope/internal/domain/repository"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/strategy"
)

// AnalyzeUseCase scores one symbol from inline candles. Institutional data
// comes from the builder's per-symbol fallback fetch.
type AnalyzeUseCase struct {
	builder  *analysis.Builder
	registry *strategy.Registry
	prior    domrepo.PriorStateStore
	metrics  domrepo.Metrics
}

func NewAnalyzeUseCase(builder *analysis.Builder, registry *strategy.Registry, prior domrepo.PriorStateStore, metrics domrepo.Metrics) *AnalyzeUseCase {
	return &AnalyzeUseCase{builder: builder, registry: registry, prior: prior, metrics: metrics}
}

// AnalyzeResult is the response of one analyze call.
type AnalyzeResult struct {
	Symbol          string   `json:"symbol"`
	CanonicalSymbol string   `json:"canonical_symbol"`
	Exchange        string   `json:"exchange"`
	Candles         int      `json:"candles"`
	Omitted         []string `json:"omitted_indicators,omitempty"`

	// Geometry carries the RSI trendlines and their reverse-RSI
	// projections; nil when no line was detected.
	Geometry *analysis.GeometryReport `json:"geometry,omitempty"`
	Signals  []models.Signal          `json:"signals"`
}

// Analyze reads prior state but never writes it; only scan cycles advance
// sticky breakout state.
func (uc *AnalyzeUseCase) Analyze(ctx context.Context, req models.AnalyzeRequest) (*AnalyzeResult, error) {
	scorers, err := uc.registry.Select(req.Strategies)
	if err != nil {
		return nil, err
	}
	ltf, err := ParseCandles(req.LTF)
	if err != nil {
		return nil, err
	}
	htf, err := ParseCandles(req.HTF)
	if err != nil {
		return nil, err
	}

	canonical := models.CanonicalSymbol(req.Symbol)
	var prior *models.PriorState
	if uc.prior != nil {
		// a failed load only loses the retest bonus
		prior, _ = uc.prior.Load(ctx, canonical)
	}

	start := time.Now()
	actx, err := uc.builder.Build(ctx, analysis.Input{
		Symbol:          req.Symbol,
		CanonicalSymbol: canonical,
		Exchange:        req.Exchange,
		LTF:             ltf,
		HTF:             htf,
		Prior:           prior,
	})
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.RecordError("analyze_input")
		}
		return nil, err
	}
	signals := strategy.Run(actx, scorers)
	if uc.metrics != nil {
		uc.metrics.RecordLatency("analyze", time.Since(start).Seconds())
		for _, s := range signals {
			uc.metrics.RecordSignal(s.StrategyName, s.Action)
		}
	}

	return &AnalyzeResult{
		Symbol:          req.Symbol,
		CanonicalSymbol: canonical,
		Exchange:        req.Exchange,
		Candles:         len(ltf),
		Omitted:         actx.Omitted(),
		Geometry:        actx.Geometry().Report(),
		Signals:         signals,
	}, nil
}
