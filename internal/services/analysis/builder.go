package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"SignalScope/internal/domain/models"
	domrepo "SignalScope/internal/domain/repository"
	domsvc "SignalScope/internal/domain/service"
	"SignalScope/internal/services/indicators"
	"SignalScope/internal/services/trendline"
	applogger "SignalScope/pkg/logger"
)

// ErrMalformedCandles marks input that cannot be analysed at all.
var ErrMalformedCandles = errors.New("malformed candles")

// Input is everything one Build call needs. External and Prior are
// optional; a nil External triggers the per-symbol fallback fetch.
type Input struct {
	Symbol          string
	CanonicalSymbol string
	Exchange        string
	LTF             []models.Candle
	HTF             []models.Candle
	External        *models.ExternalData
	Prior           *models.PriorState
}

// BuilderOption configures Builder.
type BuilderOption func(*Builder)

// WithRegistry replaces the indicator table.
func WithRegistry(r *indicators.Registry) BuilderOption {
	return func(b *Builder) { b.registry = r }
}

// WithFallbackFetch enables per-symbol external data loading when no
// pre-fetched batch is supplied.
func WithFallbackFetch(r domsvc.SymbolResolver, f domsvc.ExternalDataFetcher) BuilderOption {
	return func(b *Builder) {
		b.resolver = r
		b.fetcher = f
	}
}

// WithLogger sets the logger used for indicator warnings.
func WithLogger(l *applogger.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records indicator failures.
func WithMetrics(m domrepo.Metrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// Builder constructs analysis contexts. It holds no per-call state and is
// safe for concurrent use.
type Builder struct {
	cfg      Config
	registry *indicators.Registry
	engine   *trendline.Engine
	resolver domsvc.SymbolResolver
	fetcher  domsvc.ExternalDataFetcher
	logger   *applogger.Logger
	metrics  domrepo.Metrics
}

func NewBuilder(cfg Config, opts ...BuilderOption) (*Builder, error) {
	engine, err := trendline.New(
		trendline.WithOrder(cfg.PivotOrder),
		trendline.WithTolerance(cfg.TrendlineTolerance),
	)
	if err != nil {
		return nil, fmt.Errorf("trendline engine: %w", err)
	}
	b := &Builder{cfg: cfg, registry: indicators.DefaultRegistry(), engine: engine, logger: applogger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Config returns the builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the candles and computes every enabled indicator exactly
// once per frame. Only malformed candles produce an error; short history
// yields a context marked Insufficient.
func (b *Builder) Build(ctx context.Context, in Input) (*Context, error) {
	if err := ValidateCandles(in.LTF); err != nil {
		return nil, fmt.Errorf("%s ltf: %w", in.Symbol, err)
	}
	if err := ValidateCandles(in.HTF); err != nil {
		return nil, fmt.Errorf("%s htf: %w", in.Symbol, err)
	}

	c := &Context{
		symbol:        in.Symbol,
		canonical:     in.CanonicalSymbol,
		exchange:      in.Exchange,
		ltf:           slices.Clone(in.LTF),
		htf:           slices.Clone(in.HTF),
		ltfIndicators: indicators.Set{},
		htfIndicators: indicators.Set{},
		external:      in.External,
		prior:         in.Prior,
		cfg:           b.cfg,
	}
	if c.canonical == "" {
		c.canonical = models.CanonicalSymbol(in.Symbol)
	}
	if c.external == nil {
		c.external = b.fallbackExternal(ctx, in)
	}

	if len(in.LTF) < b.cfg.MinCandles {
		c.insufficient = true
		return c, nil
	}

	log := b.logger.With(applogger.String("symbol", in.Symbol), applogger.String("exchange", in.Exchange))
	c.ltfIndicators, c.omitted = b.computeAll(log, LTF, c.ltf, c.omitted)
	if len(c.htf) > 0 {
		c.htfIndicators, c.omitted = b.computeAll(log, HTF, c.htf, c.omitted)
	}
	c.geometry = b.geometry(c)
	return c, nil
}

// geometry derives the RSI trendlines, their breakout state and the
// reverse-RSI projections at the last bar.
func (b *Builder) geometry(c *Context) Geometry {
	rsi, ok := c.ltfIndicators.Get(indicators.RSIKey)
	if !ok {
		return Geometry{}
	}
	g := Geometry{Available: true, Lines: b.engine.Detect(rsi, models.Times(c.ltf))}
	g.ResistanceBreak = b.engine.Breakout(g.Lines.Resistance, rsi)
	g.SupportBreak = b.engine.Breakout(g.Lines.Support, rsi)

	idx := c.LastIndex()
	var state *trendline.WilderState
	gain, okG := c.ltfIndicators.Get(indicators.RSIAvgGainKey)
	loss, okL := c.ltfIndicators.Get(indicators.RSIAvgLossKey)
	if okG && okL {
		if s, ok := trendline.StateAt(gain, loss, models.Closes(c.ltf), idx, b.cfg.Params.RSIPeriod); ok {
			state = &s
		}
	}
	if g.Lines.Resistance != nil {
		p := trendline.ReverseRSI(*g.Lines.Resistance, idx, state)
		g.ResistanceProjection = &p
	}
	if g.Lines.Support != nil {
		p := trendline.ReverseRSI(*g.Lines.Support, idx, state)
		g.SupportProjection = &p
	}
	return g
}

func (b *Builder) computeAll(log *applogger.Logger, frame Frame, cs []models.Candle, omitted []string) (indicators.Set, []string) {
	out := indicators.Set{}
	seen := make(map[string]struct{}, len(b.cfg.Enabled))
	for _, name := range b.cfg.Enabled {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		ind, ok := b.registry.Get(name)
		if !ok {
			log.Warn("unknown indicator skipped", applogger.String("indicator", name))
			continue
		}
		set, err := safeCompute(ind, cs, b.cfg.Params)
		if err != nil {
			log.Warn("indicator omitted",
				applogger.String("indicator", name),
				applogger.String("frame", string(frame)),
				applogger.Int("candles", len(cs)),
				applogger.Error(err),
			)
			if b.metrics != nil {
				b.metrics.RecordError("indicator_" + name)
			}
			omitted = append(omitted, string(frame)+":"+name)
			continue
		}
		for k, s := range set {
			out[k] = s
		}
	}
	return out, omitted
}

func safeCompute(ind indicators.Indicator, cs []models.Candle, p indicators.Params) (set indicators.Set, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indicator %s panicked: %v", ind.Name, r)
		}
	}()
	return ind.Compute(cs, p)
}

func (b *Builder) fallbackExternal(ctx context.Context, in Input) *models.ExternalData {
	if b.resolver == nil || b.fetcher == nil {
		return models.NeutralExternalData()
	}
	res := b.resolver.Resolve(ctx, in.Symbol, in.Exchange)
	if res.Status == models.StatusNeutral || res.ProviderSymbol == "" {
		return models.NeutralExternalData()
	}
	data := b.fetcher.FetchAll(ctx, []models.Resolution{res})
	ext, ok := data[res.ProviderSymbol]
	if !ok || ext == nil {
		return &models.ExternalData{ProviderSymbol: res.ProviderSymbol, Status: res.Status}
	}
	return ext
}

// ValidateCandles checks timestamps are strictly increasing and every
// OHLCV value is finite.
func ValidateCandles(cs []models.Candle) error {
	for i, c := range cs {
		for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("candle %d has non-finite value: %w", i, ErrMalformedCandles)
			}
		}
		if c.Time.IsZero() {
			return fmt.Errorf("candle %d has no timestamp: %w", i, ErrMalformedCandles)
		}
		if i > 0 && !c.Time.After(cs[i-1].Time) {
			return fmt.Errorf("candle %d timestamp %s not after %s: %w", i, c.Time, cs[i-1].Time, ErrMalformedCandles)
		}
	}
	return nil
}
