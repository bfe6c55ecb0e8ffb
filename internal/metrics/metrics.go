package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the Prometheus metrics for the analyzer service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RecordsAnalyzed  *prometheus.CounterVec
	RuleMatches      *prometheus.CounterVec
	EvaluationErrors *prometheus.CounterVec
	RulesLoaded      prometheus.Gauge
	RuleLoadFailures prometheus.Counter
	RuleOverrides    prometheus.Gauge
	AnalyzeDuration  prometheus.Histogram
	NatsConnected    prometheus.Gauge
	NatsPublishErrs  prometheus.Counter
	RecordsInvalid   prometheus.Counter
}

// NewMetrics creates a Metrics instance on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RecordsAnalyzed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_records_analyzed_total",
			Help: "Total number of change records analyzed",
		}, []string{"category", "severity"}),
		RuleMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_rule_matches_total",
			Help: "Total number of times each rule matched a change record",
		}, []string{"rule"}),
		EvaluationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_evaluation_errors_total",
			Help: "Total number of diagnostic events raised while loading or evaluating rules",
		}, []string{"event"}),
		RulesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_rules_loaded",
			Help: "Number of rules in the active rule set",
		}),
		RuleLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_rule_load_failures_total",
			Help: "Total number of failed rule set loads",
		}),
		RuleOverrides: factory.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_rule_overrides",
			Help: "Number of active rule overrides",
		}),
		AnalyzeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_analyze_duration_seconds",
			Help:    "Time spent classifying a single change record",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		NatsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_nats_connected",
			Help: "Whether the NATS connection is up (1) or not (0)",
		}),
		NatsPublishErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_nats_publish_errors_total",
			Help: "Total number of NATS publish errors",
		}),
		RecordsInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_records_invalid_total",
			Help: "Total number of change record messages that could not be decoded",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAnalysis records one classified record
func (m *Metrics) ObserveAnalysis(category, severity string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RecordsAnalyzed.WithLabelValues(category, severity).Inc()
	m.AnalyzeDuration.Observe(elapsed.Seconds())
}

// IncrementRuleMatch counts a rule whose clauses all passed
func (m *Metrics) IncrementRuleMatch(rule string) {
	if m == nil {
		return
	}
	m.RuleMatches.WithLabelValues(rule).Inc()
}

// SetRulesLoaded sets the size of the active rule set
func (m *Metrics) SetRulesLoaded(count float64) {
	if m == nil {
		return
	}
	m.RulesLoaded.Set(count)
}

// IncrementRuleLoadFailures counts a failed load
func (m *Metrics) IncrementRuleLoadFailures() {
	if m == nil {
		return
	}
	m.RuleLoadFailures.Inc()
}

// SetRuleOverrides implements rules.MetricsUpdater
func (m *Metrics) SetRuleOverrides(count float64) {
	if m == nil {
		return
	}
	m.RuleOverrides.Set(count)
}

// SetNatsConnected sets the NATS connection gauge
func (m *Metrics) SetNatsConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.NatsConnected.Set(1)
	} else {
		m.NatsConnected.Set(0)
	}
}

// IncrementNatsPublishErrors increments the NATS publish error counter
func (m *Metrics) IncrementNatsPublishErrors() {
	if m == nil {
		return
	}
	m.NatsPublishErrs.Inc()
}

// IncrementRecordsInvalid counts an undecodable message
func (m *Metrics) IncrementRecordsInvalid() {
	if m == nil {
		return
	}
	m.RecordsInvalid.Inc()
}

// TrackEvent implements telemetry.Sink by counting events by name
func (m *Metrics) TrackEvent(name string, _ map[string]string) {
	if m == nil {
		return
	}
	m.EvaluationErrors.WithLabelValues(name).Inc()
}
