package monitoring

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	cycleDuration prom.Histogram
	stageDuration *prom.HistogramVec
	cycleOutcomes *prom.CounterVec
	entityResults *prom.CounterVec
	cacheLookups  *prom.CounterVec
	artifacts     prom.Gauge
}

// NewPrometheusRecorder constructs the build metrics and registers them on
// reg, or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		cycleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "slate",
			Name:      "build_cycle_duration_seconds",
			Help:      "Duration of build cycles from scan to commit",
			Buckets:   prom.DefBuckets,
		}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "slate",
			Name:      "build_stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		cycleOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "slate",
			Name:      "build_cycles_total",
			Help:      "Build cycles by outcome",
		}, []string{"outcome"}),
		entityResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "slate",
			Name:      "build_entities_total",
			Help:      "Entities processed by result",
		}, []string{"result"}),
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "slate",
			Name:      "cache_lookups_total",
			Help:      "Build cache lookups by stage and result",
		}, []string{"stage", "result"}),
		artifacts: prom.NewGauge(prom.GaugeOpts{
			Namespace: "slate",
			Name:      "artifacts",
			Help:      "Artifacts in the committed snapshot",
		}),
	}
	reg.MustRegister(pr.cycleDuration, pr.stageDuration, pr.cycleOutcomes, pr.entityResults, pr.cacheLookups, pr.artifacts)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveCycleDuration(d time.Duration) {
	p.cycleDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCycleOutcome(outcome string) {
	p.cycleOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) AddEntityResults(result string, n int) {
	if n <= 0 {
		return
	}
	p.entityResults.WithLabelValues(result).Add(float64(n))
}

func (p *PrometheusRecorder) IncCacheLookup(stage string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(stage, result).Inc()
}

func (p *PrometheusRecorder) SetArtifacts(n int) {
	p.artifacts.Set(float64(n))
}
