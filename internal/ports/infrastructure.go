package ports

import (
	"context"
	"time"

	"github.com/ahrav/softscore/internal/domain"
)

// JudgeClient defines the interface for calling a judge language model.
// Implementations handle provider-specific details like authentication,
// request formatting and response parsing, and translate the provider's
// per-token log-probabilities into domain.TokenPosition values.
type JudgeClient interface {
	// Judge sends a prompt to the judge model and returns its reply.
	// The reply carries a token table only when the provider supports
	// log-probabilities and the options requested them.
	//
	// Common options include:
	//   - "temperature": float64
	//   - "top_p": float64
	//   - "max_tokens": int
	//   - "logprobs": bool
	//   - "top_logprobs": int
	//   - "response_format": "json_object" or "text"
	//   - "system_prompt": string
	Judge(ctx context.Context, prompt string, options map[string]any) (domain.JudgeReply, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// ResultSink receives computed scores for display, aggregation or storage.
// Implementations must be safe for concurrent use.
type ResultSink interface {
	// Publish delivers one or more results. Results for a single call are
	// delivered together.
	Publish(ctx context.Context, results ...domain.ResultScore) error

	// Close flushes pending results and releases resources.
	Close() error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, such as a score.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// ConfigLoader loads configuration from a file or another source into the
// provided struct pointer.
type ConfigLoader interface {
	Load(ctx context.Context, config any) error
}
