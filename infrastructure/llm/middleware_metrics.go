package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricJudgeLatency  = "judge_latency_seconds"
	MetricJudgeRequests = "judge_requests_total"
	MetricJudgeTokens   = "judge_tokens_total"
)

// metricsLLM records request latency, outcome and token usage.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects judge request metrics.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{
			next:      next,
			collector: collector,
		}
	}
}

// DoRequest executes the request while collecting metrics.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	start := time.Now()
	reply, err := m.next.DoRequest(ctx, prompt, opts)

	if m.collector == nil {
		return reply, err
	}

	labels := map[string]string{
		"provider": m.extractProvider(),
		"model":    m.next.GetModel(),
		"status":   requestStatus(ctx, err),
	}

	m.collector.RecordHistogram(MetricJudgeLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricJudgeRequests, 1, labels)

	if err == nil {
		tokenLabels := map[string]string{
			"provider": labels["provider"],
			"model":    labels["model"],
		}

		tokenLabels["token_type"] = "input"
		m.collector.RecordCounter(MetricJudgeTokens, float64(reply.TokensIn), tokenLabels)

		tokenLabels["token_type"] = "output"
		m.collector.RecordCounter(MetricJudgeTokens, float64(reply.TokensOut), tokenLabels)
	}

	return reply, err
}

func requestStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ports.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (m *metricsLLM) extractProvider() string {
	return ProviderForModel(m.next.GetModel())
}

// ProviderForModel guesses the provider from a model name.
func ProviderForModel(model string) string {
	switch {
	case strings.Contains(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	case strings.Contains(model, "claude"):
		return "anthropic"
	case strings.Contains(model, "gemini"):
		return "google"
	default:
		return "unknown"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
