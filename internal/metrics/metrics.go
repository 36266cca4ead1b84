// Package metrics records per-run pipeline gauges and pushes them to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "metaspot"
	subsystem = "run"
	jobName   = "metaspot_meta_analysis"
)

// Recorder holds the gauges of one pipeline run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	matches       prometheus.Gauge
	features      prometheus.Gauge
	clusters      prometheus.Gauge
	reported      prometheus.Gauge
	skipped       prometheus.Gauge
	noiseRatio    prometheus.Gauge
	lastSuccess   prometheus.Gauge
	stageDuration *prometheus.GaugeVec
	failures      *prometheus.CounterVec
}

// NewRecorder registers the run gauges on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
	}

	return &Recorder{
		registry:    reg,
		matches:     gauge("matches", "Matches fetched from the match source"),
		features:    gauge("feature_columns", "Columns of the feature table"),
		clusters:    gauge("clusters", "Non-noise clusters found"),
		reported:    gauge("reported_archetypes", "Clusters written to the report"),
		skipped:     gauge("skipped_clusters", "Clusters skipped for lacking a category signature"),
		noiseRatio:  gauge("noise_ratio", "Share of matches labeled as noise"),
		lastSuccess: gauge("last_success_timestamp_seconds", "Unix time of the last successful run"),
		stageDuration: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
		}, []string{"stage"}),
		failures: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Run failures by error kind",
		}, []string{"kind"}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// ObserveMatches records the input size.
func (r *Recorder) ObserveMatches(matches, columns int) {
	r.matches.Set(float64(matches))
	r.features.Set(float64(columns))
}

// ObserveClusters records the clustering outcome.
func (r *Recorder) ObserveClusters(clusters, noise, total int) {
	r.clusters.Set(float64(clusters))
	if total > 0 {
		r.noiseRatio.Set(float64(noise) / float64(total))
	}
}

// ObserveReport records how many clusters made it to the report.
func (r *Recorder) ObserveReport(reported, skipped int) {
	r.reported.Set(float64(reported))
	r.skipped.Set(float64(skipped))
}

// MarkSuccess stamps the completion time.
func (r *Recorder) MarkSuccess(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
}

// MarkFailure counts a failed run by error kind.
func (r *Recorder) MarkFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	r.failures.WithLabelValues(kind).Inc()
}

// Push sends the gauges to a Pushgateway, replacing the previous push of the same report.
func (r *Recorder) Push(ctx context.Context, gatewayURL, report string) error {
	if gatewayURL == "" {
		return nil
	}
	err := push.New(gatewayURL, jobName).
		Gatherer(r.registry).
		Grouping("report", report).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
