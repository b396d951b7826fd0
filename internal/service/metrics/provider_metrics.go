package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalscope",
			Subsystem: "provider",
			Name:      "request_seconds",
			Help:      "Latency of institutional data provider requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalscope",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Failed provider requests by endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalscope",
			Subsystem: "provider",
			Name:      "cache_lookups_total",
			Help:      "Provider cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ProviderLatency, ProviderErrors, CacheLookups)
	})
}

// ObserveRequest records one provider call.
func ObserveRequest(endpoint string, elapsed time.Duration) {
	ProviderLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RequestFailed counts a failed call; kind is e.g. "http", "decode", "status".
func RequestFailed(endpoint, kind string) {
	ProviderErrors.WithLabelValues(endpoint, kind).Inc()
}

func CacheHit(cache string)  { CacheLookups.WithLabelValues(cache, "hit").Inc() }
func CacheMiss(cache string) { CacheLookups.WithLabelValues(cache, "miss").Inc() }
