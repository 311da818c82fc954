package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// Budget metric names.
const (
	MetricBudgetTokensUsed      = "budget_tokens_used"
	MetricBudgetCallsUsed       = "budget_calls_used"
	MetricBudgetRemainingTokens = "budget_remaining_tokens"
	MetricBudgetRemainingCalls  = "budget_remaining_calls"
	MetricBudgetExceeded        = "budget_exceeded_total"
	MetricBudgetJudgeLatency    = "budget_judge_duration_seconds"
)

const (
	budgetWarningThreshold  = 0.8
	budgetCriticalThreshold = 0.9
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// OTelBudgetObserver implements observability for budget operations using
// OpenTelemetry tracing. It creates one span per judge call, sets usage
// attributes, and records events for threshold warnings or rejections.
// The span travels in the context, so one observer serves concurrent calls.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	model   string
	tracer  trace.Tracer
}

// NewOTelBudgetObserver creates a new OpenTelemetry budget observer.
// metrics may be nil.
func NewOTelBudgetObserver(metrics ports.MetricsCollector, model string) *OTelBudgetObserver {
	return &OTelBudgetObserver{
		metrics: metrics,
		model:   model,
		tracer:  otel.Tracer("softscore/budget"),
	}
}

// WithTracer replaces the tracer used for budget spans.
func (o *OTelBudgetObserver) WithTracer(tracer trace.Tracer) *OTelBudgetObserver {
	o.tracer = tracer
	return o
}

// PreCheck implements the BudgetObserver interface. It starts a span and
// records the budget state before the call.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, usage domain.Usage, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetManager.Judge")

	o.addSpanAttributes(span, usage, budget)
	o.checkBudgetThresholds(span, usage, budget)
	return ctx
}

// PostCheck implements the BudgetObserver interface. It finalizes the span,
// records metrics, and handles any error conditions that occurred.
func (o *OTelBudgetObserver) PostCheck(
	ctx context.Context,
	usage domain.Usage,
	budget Budget,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	o.addSpanAttributes(span, usage, budget)

	if o.metrics != nil {
		o.metrics.RecordLatency(MetricBudgetJudgeLatency, elapsed, o.metricLabels(budget))
	}

	if err != nil {
		var budgetErr *domain.BudgetExceededError
		if errors.As(err, &budgetErr) {
			span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", budgetErr.LimitType),
				attribute.Int("limit_value", budgetErr.Limit),
				attribute.Int("used_value", budgetErr.Used),
			))
			span.SetStatus(codes.Error, "budget limit exceeded")

			if o.metrics != nil {
				labels := o.metricLabels(budget)
				labels["limit_type"] = budgetErr.LimitType
				o.metrics.RecordCounter(MetricBudgetExceeded, 1, labels)
			}
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return
	}

	span.AddEvent("budget.usage_tracked", trace.WithAttributes(
		attribute.Int64("tokens_consumed", usage.Tokens),
		attribute.Int64("calls_made", usage.Calls),
	))

	o.updateMetrics(usage, budget)
	span.SetStatus(codes.Ok, "")
}

func (o *OTelBudgetObserver) addSpanAttributes(span trace.Span, usage domain.Usage, budget Budget) {
	span.SetAttributes(
		attribute.String("budget.model", o.model),
		attribute.Int64("budget.tokens_used", usage.Tokens),
		attribute.Int64("budget.calls_made", usage.Calls),
	)

	if budget.MaxTokens > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_tokens", budget.MaxTokens),
			attribute.Int64("budget.remaining_tokens", budget.MaxTokens-usage.Tokens),
		)
	}

	if budget.MaxCalls > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_calls", budget.MaxCalls),
			attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls),
		)
	}
}

// checkBudgetThresholds adds a span event when usage nears a limit.
func (o *OTelBudgetObserver) checkBudgetThresholds(span trace.Span, usage domain.Usage, budget Budget) {
	thresholdEvent(span, "tokens", usage.Tokens, budget.MaxTokens)
	thresholdEvent(span, "calls", usage.Calls, budget.MaxCalls)
}

func thresholdEvent(span trace.Span, resource string, used, limit int64) {
	if limit <= 0 {
		return
	}
	pct := float64(used) / float64(limit)

	var name string
	switch {
	case pct >= budgetCriticalThreshold:
		name = "budget.threshold.critical"
	case pct >= budgetWarningThreshold:
		name = "budget.threshold.warning"
	default:
		return
	}
	span.AddEvent(name, trace.WithAttributes(
		attribute.String("resource_type", resource),
		attribute.Float64("usage_percentage", pct*100),
	))
}

// updateMetrics sends current budget usage to the metrics collector.
func (o *OTelBudgetObserver) updateMetrics(usage domain.Usage, budget Budget) {
	if o.metrics == nil {
		return
	}

	labels := o.metricLabels(budget)
	o.metrics.RecordGauge(MetricBudgetTokensUsed, float64(usage.Tokens), labels)
	o.metrics.RecordGauge(MetricBudgetCallsUsed, float64(usage.Calls), labels)

	if budget.MaxTokens > 0 {
		o.metrics.RecordGauge(MetricBudgetRemainingTokens, float64(budget.MaxTokens-usage.Tokens), labels)
	}

	if budget.MaxCalls > 0 {
		o.metrics.RecordGauge(MetricBudgetRemainingCalls, float64(budget.MaxCalls-usage.Calls), labels)
	}
}

func (o *OTelBudgetObserver) metricLabels(budget Budget) map[string]string {
	return map[string]string{
		"budget_limit": budgetLimitLabel(budget),
		"model":        o.model,
	}
}

// budgetLimitLabel describes which limits are active.
func budgetLimitLabel(budget Budget) string {
	switch {
	case budget.MaxTokens > 0 && budget.MaxCalls > 0:
		return "tokens_and_calls"
	case budget.MaxTokens > 0:
		return "tokens_only"
	case budget.MaxCalls > 0:
		return "calls_only"
	}
	return "unlimited"
}
