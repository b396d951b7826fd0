package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"SignalScope/internal/domain/models"
	domrepo "SignalScope/internal/domain/repository"
	domsvc "SignalScope/internal/domain/service"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/strategy"
	applogger "SignalScope/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BatchResolver resolves many tickers against one market listing.
type BatchResolver interface {
	ResolveAll(ctx context.Context, refs []models.Resolution) []models.Resolution
}

// ReportListener receives every finished scan report.
type ReportListener interface {
	Broadcast(report *models.ScanReport)
}

// ScannerConfig holds scan cycle settings.
type ScannerConfig struct {
	Concurrency   int
	Timeframe     domrepo.Timeframe
	HTFTimeframe  domrepo.Timeframe
	CandleLimit   int
	SymbolTimeout time.Duration
	Strategies    []string
}

// ScannerDeps groups the collaborators of Scanner. Candles, Prior,
// Publisher, Metrics and Listener are optional.
type ScannerDeps struct {
	Builder   *analysis.Builder
	Registry  *strategy.Registry
	Resolver  BatchResolver
	Fetcher   domsvc.ExternalDataFetcher
	Candles   domrepo.CandleSource
	Prior     domrepo.PriorStateStore
	Publisher domrepo.SignalPublisher
	Metrics   domrepo.Metrics
	Listener  ReportListener
	Logger    *applogger.Logger
}

// Scanner runs scan cycles: resolve every symbol, pre-fetch institutional
// data in batches, then analyse and score symbols on a bounded pool.
type Scanner struct {
	cfg     ScannerConfig
	deps    ScannerDeps
	candles *CandleLoader
	log     *applogger.Logger
	latest  atomic.Pointer[models.ScanReport]
	now     func() time.Time
}

func NewScanner(cfg ScannerConfig, deps ScannerDeps) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 300
	}
	if deps.Logger == nil {
		deps.Logger = applogger.Nop()
	}
	return &Scanner{
		cfg:     cfg,
		deps:    deps,
		candles: NewCandleLoader(deps.Candles),
		log:     deps.Logger,
		now:     time.Now,
	}
}

// Latest returns the most recent report, or nil before the first scan.
func (s *Scanner) Latest() *models.ScanReport {
	return s.latest.Load()
}

type scanJob struct {
	sym   models.ScanSymbol
	res   models.Resolution
	ltfTF domrepo.Timeframe
	htfTF domrepo.Timeframe
	limit int
}

type symbolResult struct {
	signals []models.Signal
	err     error
}

// Scan runs one cycle over req.Symbols. Only an invalid strategy
// selection fails the call; per-symbol failures land in report.Errors.
func (s *Scanner) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanReport, error) {
	names := req.Strategies
	if len(names) == 0 {
		names = s.cfg.Strategies
	}
	scorers, err := s.deps.Registry.Select(names)
	if err != nil {
		return nil, err
	}

	report := &models.ScanReport{
		ScanID:    uuid.NewString(),
		StartedAt: s.now().UTC(),
		Symbols:   len(req.Symbols),
		Signals:   []models.Signal{},
		Errors:    map[string]string{},
	}
	log := s.log.With(applogger.String("scan_id", report.ScanID))
	log.Info("scan started", applogger.Int("symbols", len(req.Symbols)), applogger.Strings("strategies", names))

	refs := make([]models.Resolution, len(req.Symbols))
	for i, sym := range req.Symbols {
		refs[i] = models.Resolution{Symbol: sym.Symbol, Exchange: sym.Exchange}
	}
	resolutions := s.resolve(ctx, refs)
	external := s.prefetch(ctx, resolutions)

	ltfTF, htfTF := s.timeframes(req)
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.CandleLimit
	}

	results := make([]symbolResult, len(req.Symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, sym := range req.Symbols {
		job := scanJob{sym: sym, res: resolutions[i], ltfTF: ltfTF, htfTF: htfTF, limit: limit}
		g.Go(func() error {
			sigs, err := s.scanSymbol(gctx, job, externalFor(job.res, external), scorers)
			results[i] = symbolResult{signals: sigs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		sym := req.Symbols[i]
		if r.err != nil {
			report.Errors[symbolKey(sym)] = r.err.Error()
			s.recordError("scan_symbol")
			log.Warn("symbol scan failed",
				applogger.String("symbol", sym.Symbol),
				applogger.String("exchange", sym.Exchange),
				applogger.Error(r.err),
			)
		}
		report.Signals = append(report.Signals, r.signals...)
	}
	sortSignals(report.Signals)

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishBatch(ctx, actionable(report.Signals)); err != nil {
			s.recordError("publish")
			log.Error("signal publish failed", applogger.Error(err))
		}
	}

	report.FinishedAt = s.now().UTC()
	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordScan(report.Symbols, elapsed.Seconds())
		for _, sig := range report.Signals {
			s.deps.Metrics.RecordSignal(sig.StrategyName, sig.Action)
		}
	}
	s.latest.Store(report)
	if s.deps.Listener != nil {
		s.deps.Listener.Broadcast(report)
	}

	log.Info("scan finished",
		applogger.Int("signals", len(report.Signals)),
		applogger.Int("errors", len(report.Errors)),
		applogger.Duration("duration_ms", elapsed),
	)
	return report, nil
}

func (s *Scanner) timeframes(req models.ScanRequest) (domrepo.Timeframe, domrepo.Timeframe) {
	ltf := s.cfg.Timeframe
	if req.Timeframe != "" {
		ltf = domrepo.NormalizeTimeframe(req.Timeframe)
	}
	if ltf == "" {
		ltf = domrepo.DefaultTimeframe()
	}
	htf := s.cfg.HTFTimeframe
	if req.HTFrame != "" {
		htf = domrepo.NormalizeTimeframe(req.HTFrame)
	}
	return ltf, htf
}

func (s *Scanner) resolve(ctx context.Context, refs []models.Resolution) []models.Resolution {
	if s.deps.Resolver == nil {
		out := make([]models.Resolution, len(refs))
		for i, r := range refs {
			out[i] = neutralResolution(r)
		}
		return out
	}
	start := time.Now()
	out := s.deps.Resolver.ResolveAll(ctx, refs)
	s.observe("resolve", start)
	return out
}

func (s *Scanner) prefetch(ctx context.Context, resolutions []models.Resolution) map[string]*models.ExternalData {
	if s.deps.Fetcher == nil {
		return nil
	}
	start := time.Now()
	out := s.deps.Fetcher.FetchAll(ctx, resolutions)
	s.observe("external_fetch", start)
	return out
}

// scanSymbol analyses one symbol. Its failure never affects siblings.
func (s *Scanner) scanSymbol(ctx context.Context, job scanJob, ext *models.ExternalData, scorers []strategy.Scorer) ([]models.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.cfg.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SymbolTimeout)
		defer cancel()
	}

	ltf, err := s.candles.Load(ctx, job.sym, job.sym.LTF, job.ltfTF, job.limit)
	if err != nil {
		return nil, fmt.Errorf("ltf: %w", err)
	}
	htf, err := s.candles.Load(ctx, job.sym, job.sym.HTF, job.htfTF, job.limit)
	if err != nil {
		// HTF only adds alignment bonuses
		s.log.Debug("htf candles unavailable",
			applogger.String("symbol", job.sym.Symbol),
			applogger.Error(err),
		)
		htf = nil
	}

	prior := s.loadPrior(ctx, job.res.CanonicalSymbol)

	start := time.Now()
	actx, err := s.deps.Builder.Build(ctx, analysis.Input{
		Symbol:          job.sym.Symbol,
		CanonicalSymbol: job.res.CanonicalSymbol,
		Exchange:        job.sym.Exchange,
		LTF:             ltf,
		HTF:             htf,
		External:        ext,
		Prior:           prior,
	})
	if err != nil {
		return nil, err
	}
	signals := strategy.Run(actx, scorers)
	s.observe("analyze", start)

	s.savePrior(ctx, job.res.CanonicalSymbol, signals)
	return signals, nil
}

func (s *Scanner) loadPrior(ctx context.Context, canonical string) *models.PriorState {
	if s.deps.Prior == nil {
		return nil
	}
	p, err := s.deps.Prior.Load(ctx, canonical)
	if err != nil {
		s.recordError("prior_load")
		s.log.Warn("prior state load failed", applogger.String("symbol", canonical), applogger.Error(err))
		return nil
	}
	return p
}

func (s *Scanner) savePrior(ctx context.Context, canonical string, signals []models.Signal) {
	if s.deps.Prior == nil {
		return
	}
	for _, sig := range signals {
		if sig.NextState == nil {
			continue
		}
		if err := s.deps.Prior.Save(ctx, canonical, *sig.NextState); err != nil {
			s.recordError("prior_save")
			s.log.Warn("prior state save failed", applogger.String("symbol", canonical), applogger.Error(err))
		}
		return
	}
}

func (s *Scanner) observe(op string, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}

func (s *Scanner) recordError(kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordError(kind)
	}
}

// externalFor picks the pre-fetched record of a resolution. A resolved
// symbol whose fetch failed still carries its status.
func externalFor(res models.Resolution, data map[string]*models.ExternalData) *models.ExternalData {
	if res.Status == models.StatusNeutral || res.ProviderSymbol == "" {
		return models.NeutralExternalData()
	}
	if ext, ok := data[res.ProviderSymbol]; ok && ext != nil {
		return ext
	}
	return &models.ExternalData{ProviderSymbol: res.ProviderSymbol, Status: res.Status}
}

func neutralResolution(r models.Resolution) models.Resolution {
	return models.Resolution{
		Symbol:          r.Symbol,
		Exchange:        r.Exchange,
		CanonicalSymbol: models.CanonicalSymbol(r.Symbol),
		Status:          models.StatusNeutral,
	}
}

func symbolKey(sym models.ScanSymbol) string {
	return sym.Exchange + ":" + sym.Symbol
}

// sortSignals orders by score descending, then by symbol and strategy so
// equal inputs always produce the same report.
func sortSignals(sigs []models.Signal) {
	sort.SliceStable(sigs, func(i, j int) bool {
		a, b := sigs[i], sigs[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Exchange != b.Exchange {
			return a.Exchange < b.Exchange
		}
		return a.StrategyName < b.StrategyName
	})
}

func actionable(sigs []models.Signal) []models.Signal {
	out := make([]models.Signal, 0, len(sigs))
	for _, s := range sigs {
		if s.Actionable() {
			out = append(out, s)
		}
	}
	return out
}

// IsClientError reports whether err comes from bad input rather than from
// the engine.
func IsClientError(err error) bool {
	return errors.Is(err, analysis.ErrMalformedCandles) || errors.Is(err, strategy.ErrUnknownStrategy)
}
