package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/softscore/internal/domain"
)

// tracedLLM wraps each judge request in an OpenTelemetry span.
type tracedLLM struct {
	next        CoreLLM
	serviceName string
	tracer      trace.Tracer
}

// TracingMiddleware creates middleware that adds distributed tracing to
// judge requests. Spans are created with the globally registered tracer
// provider, which is a no-op unless the application installs one.
func TracingMiddleware(serviceName string) Middleware {
	return TracingMiddlewareWithTracer(serviceName, otel.Tracer("softscore/llm"))
}

// TracingMiddlewareWithTracer is TracingMiddleware with an explicit tracer.
func TracingMiddlewareWithTracer(serviceName string, tracer trace.Tracer) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{
			next:        next,
			serviceName: serviceName,
			tracer:      tracer,
		}
	}
}

// DoRequest executes the request within a span carrying the model, prompt
// size, token usage and the number of positions in the token table.
func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	ctx, span := t.tracer.Start(ctx, "judge.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("service.name", t.serviceName),
			attribute.String("judge.model", t.next.GetModel()),
			attribute.Int("judge.prompt.length", len(prompt)),
			attribute.Bool("judge.logprobs.requested", ExtractOptionalBool(opts, "logprobs", false)),
		),
	)
	defer span.End()

	reply, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reply, err
	}

	span.SetAttributes(
		attribute.Int("judge.tokens.input", reply.TokensIn),
		attribute.Int("judge.tokens.output", reply.TokensOut),
		attribute.Int("judge.logprobs.positions", len(reply.Tokens)),
	)
	span.SetStatus(codes.Ok, "")

	return reply, nil
}

// GetModel returns the model name from the wrapped implementation.
func (t *tracedLLM) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *tracedLLM) SetModel(m string) { t.next.SetModel(m) }
