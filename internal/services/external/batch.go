package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"SignalScope/internal/domain/models"
	svccache "SignalScope/internal/service/cache"
	"SignalScope/internal/service/metrics"
	"SignalScope/internal/service/ratelimit"
	applogger "SignalScope/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// MaxBatchSize is the provider's symbol limit per request.
const MaxBatchSize = 20

// DataType names one provider endpoint.
type DataType string

const (
	DataOpenInterest DataType = "open_interest"
	DataFunding      DataType = "funding_rate"
	DataLongShort    DataType = "long_short_ratio"
	DataLiquidations DataType = "liquidations"
)

// DataTypes lists every type fetched per batch.
var DataTypes = []DataType{DataOpenInterest, DataFunding, DataLongShort, DataLiquidations}

func (d DataType) path() string {
	switch d {
	case DataOpenInterest:
		return "/open-interest-history"
	case DataFunding:
		return "/funding-rate"
	case DataLongShort:
		return "/long-short-ratio-history"
	default:
		return "/liquidation-history"
	}
}

func (d DataType) historical() bool { return d != DataFunding }

type historyPoint struct {
	T int64   `json:"t"`
	C float64 `json:"c"`
	R float64 `json:"r"`
	L float64 `json:"l"`
	S float64 `json:"s"`
}

type historyRow struct {
	Symbol  string         `json:"symbol"`
	History []historyPoint `json:"history"`
}

type fundingRow struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

// batchResult holds one decoded (data type, batch) response keyed by
// provider symbol.
type batchResult struct {
	dataType DataType
	history  map[string][]historyPoint
	funding  map[string]float64
}

// BatchClient fetches institutional data for many provider symbols in
// batches of at most MaxBatchSize, one request per data type per batch.
type BatchClient struct {
	base  *providerBase
	cfg   Config
	cache *svccache.ProviderCache
	log   *applogger.Logger
	now   func() time.Time
}

func NewBatchClient(cfg Config, cache *svccache.ProviderCache, limiter *ratelimit.Limiter, log *applogger.Logger) *BatchClient {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.HistoryPoints <= 0 {
		cfg.HistoryPoints = 50
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &BatchClient{base: newProviderBase(cfg, limiter), cfg: cfg, cache: cache, log: log, now: time.Now}
}

// Batches splits provider symbols into deduplicated, sorted chunks.
func Batches(symbols []string, size int) [][]string {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	seen := make(map[string]struct{}, len(symbols))
	uniq := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)

	var out [][]string
	for len(uniq) > 0 {
		n := size
		if n > len(uniq) {
			n = len(uniq)
		}
		out = append(out, uniq[:n:n])
		uniq = uniq[n:]
	}
	return out
}

// FetchAll implements domain service.ExternalDataFetcher. Every resolved
// symbol gets a record; fields stay empty when their fetch failed.
func (b *BatchClient) FetchAll(ctx context.Context, resolutions []models.Resolution) map[string]*models.ExternalData {
	out := make(map[string]*models.ExternalData, len(resolutions))
	symbols := make([]string, 0, len(resolutions))
	for _, r := range resolutions {
		if r.Status == models.StatusNeutral || r.ProviderSymbol == "" {
			continue
		}
		if _, ok := out[r.ProviderSymbol]; !ok {
			out[r.ProviderSymbol] = &models.ExternalData{ProviderSymbol: r.ProviderSymbol, Status: r.Status}
			symbols = append(symbols, r.ProviderSymbol)
		}
	}
	if len(symbols) == 0 {
		return out
	}

	batches := Batches(symbols, b.cfg.BatchSize)
	var (
		mu      sync.Mutex
		results []batchResult
		g       errgroup.Group
	)
	for _, batch := range batches {
		for _, dt := range DataTypes {
			g.Go(func() error {
				res, err := b.fetch(ctx, dt, batch)
				if err != nil {
					lvl := b.log.Warn
					if errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) {
						lvl = b.log.Debug
					}
					lvl("external data fetch failed",
						applogger.String("data_type", string(dt)),
						applogger.Int("batch_size", len(batch)),
						applogger.String("first_symbol", batch[0]),
						applogger.Error(err),
					)
					return nil
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, res := range results {
		apply(out, res)
	}
	return out
}

func (b *BatchClient) fetch(ctx context.Context, dt DataType, batch []string) (batchResult, error) {
	if raw, ok := b.cache.Response(ctx, string(dt), batch); ok {
		if res, err := decode(dt, raw); err == nil {
			return res, nil
		}
	}

	raw, err := b.base.get(ctx, dt.path(), b.query(dt, batch))
	if err != nil {
		return batchResult{}, err
	}
	res, err := decode(dt, raw)
	if err != nil {
		metrics.RequestFailed(dt.path(), "decode")
		return batchResult{}, err
	}
	if ctx.Err() != nil {
		return batchResult{}, ctx.Err()
	}
	if err := b.cache.PutResponse(ctx, string(dt), batch, raw); err != nil {
		b.log.Warn("provider response not cached", applogger.String("data_type", string(dt)), applogger.Error(err))
	}
	return res, nil
}

func (b *BatchClient) query(dt DataType, batch []string) map[string][]string {
	q := map[string][]string{"symbols": {strings.Join(batch, ",")}}
	if !dt.historical() {
		return q
	}
	to := b.now().Unix()
	from := to - int64(b.cfg.HistoryPoints)*intervalSeconds(b.cfg.Interval)
	q["interval"] = []string{b.cfg.Interval}
	q["from"] = []string{strconv.FormatInt(from, 10)}
	q["to"] = []string{strconv.FormatInt(to, 10)}
	if dt == DataOpenInterest || dt == DataLiquidations {
		q["convert_to_usd"] = []string{"true"}
	}
	return q
}

func decode(dt DataType, raw []byte) (batchResult, error) {
	res := batchResult{dataType: dt}
	if dt == DataFunding {
		var rows []fundingRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			return res, fmt.Errorf("decode %s: %w", dt, err)
		}
		if len(rows) == 0 {
			return res, fmt.Errorf("%s: %w", dt, ErrNoData)
		}
		res.funding = make(map[string]float64, len(rows))
		for _, r := range rows {
			res.funding[r.Symbol] = r.Value
		}
		return res, nil
	}

	var rows []historyRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return res, fmt.Errorf("decode %s: %w", dt, err)
	}
	if len(rows) == 0 {
		return res, fmt.Errorf("%s: %w", dt, ErrNoData)
	}
	res.history = make(map[string][]historyPoint, len(rows))
	for _, r := range rows {
		pts := append([]historyPoint(nil), r.History...)
		sort.Slice(pts, func(i, j int) bool { return pts[i].T < pts[j].T })
		res.history[r.Symbol] = pts
	}
	return res, nil
}

func apply(out map[string]*models.ExternalData, res batchResult) {
	for sym, v := range res.funding {
		if rec, ok := out[sym]; ok {
			f := v
			rec.FundingRate = &f
		}
	}
	for sym, pts := range res.history {
		rec, ok := out[sym]
		if !ok || len(pts) == 0 {
			continue
		}
		switch res.dataType {
		case DataOpenInterest:
			rec.OpenInterest = make([]models.SeriesPoint, len(pts))
			for i, p := range pts {
				rec.OpenInterest[i] = models.SeriesPoint{Time: time.Unix(p.T, 0).UTC(), Value: p.C}
			}
		case DataLongShort:
			r := pts[len(pts)-1].R
			rec.LongShortRatio = &r
		case DataLiquidations:
			rec.Liquidations = make([]models.Liquidation, len(pts))
			for i, p := range pts {
				rec.Liquidations[i] = models.Liquidation{Time: time.Unix(p.T, 0).UTC(), Long: p.L, Short: p.S}
			}
		}
	}
}

func intervalSeconds(interval string) int64 {
	switch interval {
	case "1min":
		return 60
	case "5min":
		return 300
	case "15min":
		return 900
	case "30min":
		return 1800
	case "1hour":
		return 3600
	case "2hour":
		return 7200
	case "4hour":
		return 14400
	case "6hour":
		return 21600
	case "12hour":
		return 43200
	case "daily":
		return 86400
	default:
		return 900
	}
}
