package external

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"SignalScope/internal/domain/models"
	svccache "SignalScope/internal/service/cache"
	"SignalScope/internal/service/metrics"
	"SignalScope/internal/service/ratelimit"
	applogger "SignalScope/pkg/logger"
)

const marketsPath = "/future-markets"

// Market is one entry of the provider's futures market listing.
type Market struct {
	Symbol       string `json:"symbol"`
	Exchange     string `json:"exchange"`
	BaseAsset    string `json:"base_asset"`
	QuoteAsset   string `json:"quote_asset"`
	IsPerpetual  bool   `json:"is_perpetual"`
	OnExchange   string `json:"symbol_on_exchange"`
	HasLongShort bool   `json:"has_long_short_ratio_data"`
}

type marketIndex struct {
	bySymbol map[string]Market
	byBase   map[string][]Market
}

func newMarketIndex(ms []Market) marketIndex {
	idx := marketIndex{bySymbol: make(map[string]Market, len(ms)), byBase: map[string][]Market{}}
	for _, m := range ms {
		if !m.IsPerpetual {
			continue
		}
		idx.bySymbol[m.Symbol] = m
		base := strings.ToUpper(m.BaseAsset)
		idx.byBase[base] = append(idx.byBase[base], m)
	}
	return idx
}

// Resolver maps exchange tickers to provider symbols: configured overrides
// first, then the exchange-specific market, then an aggregated market for
// the same base asset, otherwise neutral.
type Resolver struct {
	base  *providerBase
	cfg   Config
	cache *svccache.ProviderCache
	log   *applogger.Logger

	mu sync.Mutex
}

func NewResolver(cfg Config, cache *svccache.ProviderCache, limiter *ratelimit.Limiter, log *applogger.Logger) *Resolver {
	if log == nil {
		log = applogger.Nop()
	}
	return &Resolver{base: newProviderBase(cfg, limiter), cfg: cfg, cache: cache, log: log}
}

// Resolve implements domain service.SymbolResolver.
func (r *Resolver) Resolve(ctx context.Context, symbol, exchange string) models.Resolution {
	idx, err := r.markets(ctx)
	if err != nil {
		r.log.Warn("market listing unavailable", applogger.Error(err))
	}
	return r.resolve(idx, symbol, exchange)
}

// ResolveAll resolves many tickers against a single market listing load.
func (r *Resolver) ResolveAll(ctx context.Context, refs []models.Resolution) []models.Resolution {
	idx, err := r.markets(ctx)
	if err != nil {
		r.log.Warn("market listing unavailable", applogger.Error(err), applogger.Int("symbols", len(refs)))
	}
	out := make([]models.Resolution, len(refs))
	for i, ref := range refs {
		out[i] = r.resolve(idx, ref.Symbol, ref.Exchange)
	}
	return out
}

func (r *Resolver) resolve(idx marketIndex, symbol, exchange string) models.Resolution {
	canonical := models.CanonicalSymbol(symbol)
	res := models.Resolution{Symbol: symbol, Exchange: exchange, CanonicalSymbol: canonical, Status: models.StatusNeutral}

	if ps, ok := r.override(symbol, exchange, canonical); ok {
		res.ProviderSymbol, res.Status = ps, models.StatusResolved
		return res
	}
	if idx.bySymbol == nil {
		return res
	}

	quote := models.QuoteAsset(symbol)
	if code, ok := r.cfg.ExchangeCodes[strings.ToLower(exchange)]; ok {
		candidate := fmt.Sprintf("%s%s_PERP.%s", canonical, quote, code)
		if _, ok := idx.bySymbol[candidate]; ok {
			res.ProviderSymbol, res.Status = candidate, models.StatusResolved
			return res
		}
	}
	if m, ok := aggregated(idx.byBase[canonical], quote, r.cfg.AggregateCode); ok {
		res.ProviderSymbol, res.Status = m.Symbol, models.StatusAggregated
	}
	return res
}

func (r *Resolver) override(symbol, exchange, canonical string) (string, bool) {
	if len(r.cfg.Overrides) == 0 {
		return "", false
	}
	for _, k := range []string{strings.ToUpper(exchange + ":" + symbol), canonical} {
		if ps, ok := r.cfg.Overrides[k]; ok && ps != "" {
			return ps, true
		}
	}
	return "", false
}

// aggregated picks the preferred exchange with a matching quote, then any
// matching quote, then the first listed market.
func aggregated(ms []Market, quote, preferred string) (Market, bool) {
	if len(ms) == 0 {
		return Market{}, false
	}
	var sameQuote *Market
	for i := range ms {
		m := ms[i]
		if !strings.EqualFold(m.QuoteAsset, quote) {
			continue
		}
		if strings.HasSuffix(m.Symbol, "."+preferred) {
			return m, true
		}
		if sameQuote == nil {
			sameQuote = &ms[i]
		}
	}
	if sameQuote != nil {
		return *sameQuote, true
	}
	return ms[0], true
}

// markets returns the listing from cache, fetching it at most once at a
// time when the cache is cold.
func (r *Resolver) markets(ctx context.Context) (marketIndex, error) {
	if raw, ok := r.cache.Markets(ctx); ok {
		var ms []Market
		if err := json.Unmarshal(raw, &ms); err == nil {
			return newMarketIndex(ms), nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if raw, ok := r.cache.Markets(ctx); ok {
		var ms []Market
		if err := json.Unmarshal(raw, &ms); err == nil {
			return newMarketIndex(ms), nil
		}
	}

	raw, err := r.base.get(ctx, marketsPath, nil)
	if err != nil {
		return marketIndex{}, err
	}
	var ms []Market
	if err := json.Unmarshal(raw, &ms); err != nil {
		metrics.RequestFailed(marketsPath, "decode")
		return marketIndex{}, fmt.Errorf("decode markets: %w", err)
	}
	if len(ms) == 0 {
		return marketIndex{}, fmt.Errorf("markets: %w", ErrNoData)
	}
	if ctx.Err() == nil {
		if err := r.cache.PutMarkets(ctx, raw); err != nil {
			r.log.Warn("market listing not cached", applogger.Error(err))
		}
	}
	r.log.Info("market listing loaded", applogger.Int("markets", len(ms)))
	return newMarketIndex(ms), nil
}
