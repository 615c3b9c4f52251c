package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "wikiexport"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stageDuration *prom.HistogramVec
	runDuration   prom.Histogram
	runOutcome    *prom.CounterVec
	fetches       *prom.CounterVec
	inFlight      *prom.GaugeVec
	propagated    *prom.CounterVec
	rendered      *prom.CounterVec
	deleted       *prom.CounterVec
	linkMisses    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of export stages per corpus",
			Buckets:   prom.DefBuckets,
		}, []string{"corpus", "stage"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total export run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Export runs by final status",
		}, []string{"outcome"})
		pr.fetches = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Document fetches by result",
		}, []string{"corpus", "result"})
		pr.inFlight = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "fetches_in_flight",
			Help:      "Document fetches currently in flight",
		}, []string{"corpus"})
		pr.propagated = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "propagated_documents_total",
			Help:      "Documents added to the changed set by dependency rule",
		}, []string{"corpus", "rule"})
		pr.rendered = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rendered_documents_total",
			Help:      "Rendered documents by kind and result",
		}, []string{"corpus", "kind", "result"})
		pr.deleted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "deleted_documents_total",
			Help:      "Documents evicted because they vanished remotely",
		}, []string{"corpus"})
		pr.linkMisses = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "link_misses_total",
			Help:      "Internal links that fell back to the live site",
		}, []string{"corpus"})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.runOutcome, pr.fetches, pr.inFlight,
			pr.propagated, pr.rendered, pr.deleted, pr.linkMisses)
	})
	return pr
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) ObserveStageDuration(corpus, stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(corpus, stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome ResultLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncFetch(corpus string, success bool) {
	if p == nil || p.fetches == nil {
		return
	}
	p.fetches.WithLabelValues(corpus, result(success)).Inc()
}

func (p *PrometheusRecorder) SetInFlight(corpus string, n int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.WithLabelValues(corpus).Set(float64(n))
}

func (p *PrometheusRecorder) IncPropagated(corpus, rule string, n int) {
	if p == nil || p.propagated == nil || n <= 0 {
		return
	}
	p.propagated.WithLabelValues(corpus, rule).Add(float64(n))
}

func (p *PrometheusRecorder) IncRendered(corpus, kind string, success bool) {
	if p == nil || p.rendered == nil {
		return
	}
	p.rendered.WithLabelValues(corpus, kind, result(success)).Inc()
}

func (p *PrometheusRecorder) IncDeleted(corpus string) {
	if p == nil || p.deleted == nil {
		return
	}
	p.deleted.WithLabelValues(corpus).Inc()
}

func (p *PrometheusRecorder) IncLinkMiss(corpus string) {
	if p == nil || p.linkMisses == nil {
		return
	}
	p.linkMisses.WithLabelValues(corpus).Inc()
}
