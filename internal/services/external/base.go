// Package external resolves exchange tickers to institutional data
// provider symbols and fetches provider data in rate-limited batches.
package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SignalScope/internal/service/metrics"
	"SignalScope/internal/service/ratelimit"
	xhttp "SignalScope/pkg/http"
)

// ErrNoData is returned when the provider answered but had nothing for the
// requested symbols.
var ErrNoData = errors.New("external: no data")

const limiterKey = "provider"

// Config configures the provider endpoints and caching.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MinInterval   time.Duration
	BatchSize     int
	Interval      string
	HistoryPoints int
	ResponseTTL   time.Duration
	MappingTTL    time.Duration
	// ExchangeCodes maps lower-case exchange names to provider suffixes.
	ExchangeCodes map[string]string
	// AggregateCode is the preferred exchange suffix for aggregated data.
	AggregateCode string
	// Overrides maps "EXCHANGE:SYMBOL" or a canonical symbol to a provider
	// symbol.
	Overrides map[string]string
}

// DefaultConfig returns settings for the public provider API.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://api.coinalyze.net/v1",
		Timeout:       10 * time.Second,
		MinInterval:   1500 * time.Millisecond,
		BatchSize:     MaxBatchSize,
		Interval:      "15min",
		HistoryPoints: 50,
		ResponseTTL:   5 * time.Minute,
		MappingTTL:    24 * time.Hour,
		ExchangeCodes: map[string]string{"binance": "A", "bybit": "6", "okx": "3", "bitget": "K", "gateio": "Y"},
		AggregateCode: "A",
	}
}

// providerBase centralizes client construction and rate-limited GETs.
type providerBase struct {
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
}

func newProviderBase(cfg Config, limiter *ratelimit.Limiter) *providerBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.New(cfg.MinInterval, 1)
	}
	return &providerBase{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithHeader("api_key", cfg.APIKey)),
		limiter: limiter,
	}
}

// get waits for the shared limiter, then returns the raw response body.
func (b *providerBase) get(ctx context.Context, path string, query map[string][]string) ([]byte, error) {
	if err := b.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", path, err)
	}
	start := time.Now()
	var body []byte
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, &body)
	metrics.ObserveRequest(path, time.Since(start))
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			metrics.RequestFailed(path, "status")
		} else {
			metrics.RequestFailed(path, "http")
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return body, nil
}
