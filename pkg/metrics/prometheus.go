package metrics

import (
	"SignalScope/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scans        prometheus.Counter
	scanSymbols  prometheus.Histogram
	scanDuration prometheus.Histogram
	signals      *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounter(
			prometheus.CounterOpts{
				Name: "signalscope_scans_total",
				Help: "Total number of completed scan cycles",
			},
		),
		scanSymbols: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalscope_scan_symbols",
				Help:    "Number of symbols per scan cycle",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		scanDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalscope_scan_duration_seconds",
				Help:    "Wall time of one scan cycle",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscope_signals_total",
				Help: "Signals produced by strategy and action",
			},
			[]string{"strategy", "action"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscope_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalscope_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordScan records one finished scan cycle.
func (r *Recorder) RecordScan(symbols int, seconds float64) {
	r.scans.Inc()
	r.scanSymbols.Observe(float64(symbols))
	r.scanDuration.Observe(seconds)
}

// RecordSignal counts one emitted signal.
func (r *Recorder) RecordSignal(strategy string, action models.Action) {
	r.signals.WithLabelValues(strategy, string(action)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
