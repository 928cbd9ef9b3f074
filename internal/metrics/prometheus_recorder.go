package metrics

import (
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once                  sync.Once
	webhooks              *prom.CounterVec
	normalizationFailures *prom.CounterVec
	eventsPublished       *prom.CounterVec
	decisions             *prom.CounterVec
	buildsTriggered       *prom.CounterVec
	batchSize             prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.webhooks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildrelay",
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by provider and gate outcome",
		}, []string{"provider", "outcome"})
		pr.normalizationFailures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildrelay",
			Name:      "normalization_failures_total",
			Help:      "Per-item payload normalization failures by provider",
		}, []string{"provider"})
		pr.eventsPublished = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildrelay",
			Name:      "content_events_published_total",
			Help:      "Content events published by provider and event type",
		}, []string{"provider", "event_type"})
		pr.decisions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildrelay",
			Name:      "batch_decisions_total",
			Help:      "Batch orchestrator decisions by strategy",
		}, []string{"strategy"})
		pr.buildsTriggered = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildrelay",
			Name:      "builds_triggered_total",
			Help:      "Build invocations by type",
		}, []string{"build_type"})
		pr.batchSize = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildrelay",
			Name:      "batch_size_events",
			Help:      "Event count of batches at build trigger time",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		})
		reg.MustRegister(pr.webhooks, pr.normalizationFailures, pr.eventsPublished,
			pr.decisions, pr.buildsTriggered, pr.batchSize)
	})
	return pr
}

func (p *PrometheusRecorder) IncWebhook(provider string, outcome OutcomeLabel) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(provider, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncNormalizationFailure(provider string) {
	if p == nil || p.normalizationFailures == nil {
		return
	}
	p.normalizationFailures.WithLabelValues(provider).Inc()
}

func (p *PrometheusRecorder) IncEventPublished(provider, eventType string) {
	if p == nil || p.eventsPublished == nil {
		return
	}
	p.eventsPublished.WithLabelValues(provider, eventType).Inc()
}

func (p *PrometheusRecorder) IncDecision(strategy string) {
	if p == nil || p.decisions == nil {
		return
	}
	p.decisions.WithLabelValues(strategy).Inc()
}

func (p *PrometheusRecorder) IncBuildTriggered(buildType string) {
	if p == nil || p.buildsTriggered == nil {
		return
	}
	p.buildsTriggered.WithLabelValues(buildType).Inc()
}

func (p *PrometheusRecorder) ObserveBatchSize(n int) {
	if p == nil || p.batchSize == nil {
		return
	}
	p.batchSize.Observe(float64(n))
}
