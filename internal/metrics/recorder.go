// Package metrics exposes run counters in Prometheus format.
//
// A Recorder owns a private registry; nothing is registered globally. The CLI
// writes the registry to a node-exporter textfile when [metrics] textfile is
// set. All methods are safe on a nil *Recorder.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audiotagger"

// Outcome labels for AssetsTotal.
const (
	OutcomeSuccess        = "success"
	OutcomeUploadFailure  = "upload_failure"
	OutcomeExtractFailure = "extract_failure"
)

// Recorder collects per-run counters.
type Recorder struct {
	registry *prometheus.Registry

	assets        *prometheus.CounterVec
	requests      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	assetDuration prometheus.Histogram
	workers       prometheus.Gauge
	lastRun       prometheus.Gauge
}

// New builds a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_total",
			Help:      "Assets processed, by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Analysis API attempts, by operation and result.",
		}, []string{"op", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Analysis API retries scheduled, by operation.",
		}, []string{"op"}),
		assetDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "asset_duration_seconds",
			Help:      "Wall time spent on one asset from submit to persist.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Workers used by the most recent run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
	r.registry.MustRegister(r.assets, r.requests, r.retries, r.assetDuration, r.workers, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRequest counts one analysis API attempt.
func (r *Recorder) ObserveRequest(op string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.requests.WithLabelValues(op, result).Inc()
}

// ObserveRetry counts one scheduled retry.
func (r *Recorder) ObserveRetry(op string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(op).Inc()
}

// ObserveAsset counts one finished asset.
func (r *Recorder) ObserveAsset(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.assets.WithLabelValues(outcome).Inc()
	r.assetDuration.Observe(elapsed.Seconds())
}

// SetWorkers records the pool size of the current run.
func (r *Recorder) SetWorkers(n int) {
	if r == nil {
		return
	}
	r.workers.Set(float64(n))
}

// MarkRunFinished stamps the completion time.
func (r *Recorder) MarkRunFinished(at time.Time) {
	if r == nil {
		return
	}
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
