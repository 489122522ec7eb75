package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration     *prom.HistogramVec
	buildDuration     prom.Histogram
	stageResults      *prom.CounterVec
	buildOutcome      *prom.CounterVec
	transformDuration *prom.HistogramVec
	modules           *prom.CounterVec
	cacheResults      *prom.CounterVec
	emittedBytes      *prom.CounterVec
	workers           prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline states",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		transformDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "transform_duration_seconds",
			Help:      "Duration of individual module transforms",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"transform"}),
		modules: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "modules_total",
			Help:      "Discovered modules by detected type",
		}, []string{"type"}),
		cacheResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "transform_cache_results_total",
			Help:      "Transform cache lookups by result",
		}, []string{"result"}),
		emittedBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "assetpipe",
			Name:      "emitted_bytes_total",
			Help:      "Bytes written to the output directory by artifact kind",
		}, []string{"kind"}),
		workers: prom.NewGauge(prom.GaugeOpts{
			Namespace: "assetpipe",
			Name:      "transform_workers",
			Help:      "Size of the transform worker pool for the last build",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.transformDuration, pr.modules, pr.cacheResults, pr.emittedBytes, pr.workers)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveTransformDuration(transform string, d time.Duration) {
	p.transformDuration.WithLabelValues(transform).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncModules(moduleType string) {
	p.modules.WithLabelValues(moduleType).Inc()
}

func (p *PrometheusRecorder) IncCacheResult(hit bool) {
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) AddEmittedBytes(kind string, n int) {
	p.emittedBytes.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	p.workers.Set(float64(n))
}

// WriteTextfile dumps every metric in reg to path in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func WriteTextfile(path string, reg *prom.Registry) error {
	if err := prom.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
