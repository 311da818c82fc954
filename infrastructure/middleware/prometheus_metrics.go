// Package middleware provides cross-cutting concerns around judge calls and
// scoring: budget enforcement, budget tracing and Prometheus metrics.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/softscore/infrastructure/llm"
	"github.com/ahrav/softscore/internal/ports"
)

const (
	metricNamespace = "softscore"
	unknownLabel    = "unknown"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It exposes judge call health, the distribution of resolved scores, parse
// fallbacks and budget consumption.
type PrometheusMetrics struct {
	judgeLatency       *prometheus.HistogramVec
	judgeRequests      *prometheus.CounterVec
	judgeTokens        *prometheus.CounterVec
	scoreValues        *prometheus.HistogramVec
	sentinelScores     *prometheus.CounterVec
	outOfScaleScores   *prometheus.CounterVec
	emptyDistributions *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationLatency  *prometheus.HistogramVec
	aggregateScores    *prometheus.GaugeVec
	budgetState        *prometheus.GaugeVec
	budgetExceeded     *prometheus.CounterVec
	operationCounter   *prometheus.CounterVec
	observations       *prometheus.HistogramVec
	systemGauges       *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers all
// metrics with reg. A nil reg selects the default Prometheus registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Judge transport metrics fed by llm.MetricsMiddleware.
		judgeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      llm.MetricJudgeLatency,
				Help:      "Latency of judge model requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		judgeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      llm.MetricJudgeRequests,
				Help:      "Judge model requests by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		judgeTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      llm.MetricJudgeTokens,
				Help:      "Tokens consumed by judge model requests.",
			},
			[]string{"provider", "model", "token_type"},
		),

		// Scoring metrics fed by the evaluation service.
		scoreValues: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricScoreValue,
				Help:      "Resolved scores by rubric and kind.",
				Buckets:   prometheus.LinearBuckets(0, 1, 11),
			},
			[]string{"eval_name", "kind"},
		),
		sentinelScores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricSentinelScores,
				Help:      "Results whose score could not be parsed.",
			},
			[]string{"eval_name"},
		),
		outOfScaleScores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricOutOfScaleScores,
				Help:      "Discrete scores outside the rubric's score scale.",
			},
			[]string{"eval_name"},
		),
		emptyDistributions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricEmptyDistributions,
				Help:      "Replies whose score position carried no numeric candidates.",
			},
			[]string{"eval_name"},
		),
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricEvaluations,
				Help:      "Evaluations by rubric and outcome.",
			},
			[]string{"eval_name", "status"},
		),
		evaluationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricEvaluationLatency,
				Help:      "End-to-end duration of evaluation operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "eval_name"},
		),
		aggregateScores: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      ports.MetricAggregateScore,
				Help:      "Latest aggregate score per rubric.",
			},
			[]string{"eval_name", "kind"},
		),

		// Budget metrics fed by the budget observer.
		budgetState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "budget_state",
				Help:      "Current judge budget consumption and remaining allowance.",
			},
			[]string{"metric", "budget_limit", "model"},
		),
		budgetExceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      MetricBudgetExceeded,
				Help:      "Judge calls rejected by the budget.",
			},
			[]string{"limit_type", "model"},
		),

		// Fallbacks for metric names without a dedicated vector.
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "operations_total",
				Help:      "Counters without a dedicated metric.",
			},
			[]string{"operation"},
		),
		observations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "observations",
				Help:      "Histogram observations without a dedicated metric.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "system_state",
				Help:      "Gauges without a dedicated metric.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	if operation == llm.MetricJudgeLatency {
		pm.RecordHistogram(operation, duration.Seconds(), labels)
		return
	}
	pm.evaluationLatency.WithLabelValues(operation, label(labels, "eval_name")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricJudgeRequests:
		pm.judgeRequests.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Add(value)
	case llm.MetricJudgeTokens:
		pm.judgeTokens.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "token_type"),
		).Add(value)
	case ports.MetricSentinelScores:
		pm.sentinelScores.WithLabelValues(label(labels, "eval_name")).Add(value)
	case ports.MetricOutOfScaleScores:
		pm.outOfScaleScores.WithLabelValues(label(labels, "eval_name")).Add(value)
	case ports.MetricEmptyDistributions:
		pm.emptyDistributions.WithLabelValues(label(labels, "eval_name")).Add(value)
	case ports.MetricEvaluations:
		pm.evaluations.WithLabelValues(label(labels, "eval_name"), label(labels, "status")).Add(value)
	case MetricBudgetExceeded:
		pm.budgetExceeded.WithLabelValues(label(labels, "limit_type"), label(labels, "model")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case ports.MetricAggregateScore:
		pm.aggregateScores.WithLabelValues(label(labels, "eval_name"), label(labels, "kind")).Set(value)
	case MetricBudgetTokensUsed, MetricBudgetCallsUsed, MetricBudgetRemainingTokens, MetricBudgetRemainingCalls:
		pm.budgetState.WithLabelValues(metric, label(labels, "budget_limit"), label(labels, "model")).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricJudgeLatency:
		pm.judgeLatency.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Observe(value)
	case ports.MetricScoreValue:
		pm.scoreValues.WithLabelValues(label(labels, "eval_name"), label(labels, "kind")).Observe(value)
	default:
		pm.observations.WithLabelValues(metric).Observe(value)
	}
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
