package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/log"
	"github.com/ahrav/softscore/internal/ports"
	"github.com/ahrav/softscore/internal/scoring"
)

// DefaultSystemPrompt frames every judge call as a rubric evaluation.
const DefaultSystemPrompt = `# Instruction
## Goal
### You are an expert in evaluating the quality of a RESPONSE from an intelligent system based on provided definition and data. Your goal will involve answering the questions below using the information provided.
- **Definition**: You are given a definition of the communication trait that is being evaluated to help guide your Score.
- **Data**: Your input data include CONTEXT, QUERY, and RESPONSE.
- **Tasks**: To complete your evaluation you will be asked to evaluate the Data in different ways.`

// Judge call settings per evaluation mode.
const (
	plainMaxTokens   = 1
	explainMaxTokens = 800
)

// Values of the "kind" metric label.
const (
	kindDiscrete = "discrete"
	kindWeighted = "weighted"
)

// EvalInput is one answer to be scored against one rubric.
type EvalInput struct {
	EvalName        string `json:"eval_name" yaml:"eval_name"`
	Question        string `json:"question,omitempty" yaml:"question,omitempty"`
	Answer          string `json:"answer" yaml:"answer"`
	Context         string `json:"context,omitempty" yaml:"context,omitempty"`
	ReferenceAnswer string `json:"reference_answer,omitempty" yaml:"reference_answer,omitempty"`
	Persona         string `json:"persona,omitempty" yaml:"persona,omitempty"`
}

// BatchItemResult pairs a batch input with its outcome. RequestID is the
// stable identifier callers should use to correlate inputs and results.
type BatchItemResult struct {
	RequestID string
	Input     EvalInput
	Result    domain.ResultScore
	Err       error
}

// ServiceConfig holds the settings EvalService applies to every call.
type ServiceConfig struct {
	SystemPrompt     string
	TopLogProbs      int
	ScoreMarker      string
	MaxConcurrency   int
	ExcludeSentinels bool
}

// ServiceConfigFrom derives a ServiceConfig from a loaded engine config.
func ServiceConfigFrom(cfg *EngineConfig) ServiceConfig {
	sc := ServiceConfig{
		SystemPrompt:     cfg.Judge.SystemPrompt,
		TopLogProbs:      cfg.Judge.TopLogProbs,
		ScoreMarker:      cfg.Scoring.ScoreMarker,
		MaxConcurrency:   cfg.Scoring.MaxConcurrency,
		ExcludeSentinels: cfg.Scoring.ExcludeSentinels,
	}
	return sc.withDefaults()
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.TopLogProbs <= 0 {
		c.TopLogProbs = DefaultTopLogProbs
	}
	if c.ScoreMarker == "" {
		c.ScoreMarker = scoring.DefaultScoreMarker
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	return c
}

// EvalService scores answers by rendering rubric prompts, calling the judge
// model and resolving its reply into a ResultScore.
// It is safe for concurrent use.
type EvalService struct {
	judge    ports.JudgeClient
	rubrics  *RubricRegistry
	resolver *scoring.Resolver
	sink     ports.ResultSink
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
	logger   log.Logger
	config   ServiceConfig
}

// ServiceOption configures an EvalService.
type ServiceOption func(*EvalService)

// WithSink publishes every successful result to sink.
func WithSink(sink ports.ResultSink) ServiceOption {
	return func(s *EvalService) { s.sink = sink }
}

// WithMetrics records score and evaluation metrics to collector.
func WithMetrics(collector ports.MetricsCollector) ServiceOption {
	return func(s *EvalService) { s.metrics = collector }
}

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *EvalService) { s.tracer = tracer }
}

// WithServiceLogger sets the logger for the service and its resolver.
func WithServiceLogger(logger log.Logger) ServiceOption {
	return func(s *EvalService) { s.logger = logger }
}

// WithServiceConfig overrides the default service settings.
func WithServiceConfig(cfg ServiceConfig) ServiceOption {
	return func(s *EvalService) { s.config = cfg }
}

// NewEvalService creates an EvalService.
// It returns an error if judge or rubrics is nil.
func NewEvalService(judge ports.JudgeClient, rubrics *RubricRegistry, opts ...ServiceOption) (*EvalService, error) {
	if judge == nil {
		return nil, fmt.Errorf("judge client cannot be nil")
	}
	if rubrics == nil {
		return nil, fmt.Errorf("rubric registry cannot be nil")
	}

	s := &EvalService{
		judge:   judge,
		rubrics: rubrics,
		tracer:  otel.Tracer("softscore/eval"),
		logger:  log.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()
	s.resolver = scoring.NewResolver(
		scoring.WithScoreMarker(s.config.ScoreMarker),
		scoring.WithLogger(s.logger),
	)

	return s, nil
}

// Evaluate scores one input. Replies whose score position holds no numeric
// candidate return an error wrapping domain.ErrEmptyDistribution.
func (s *EvalService) Evaluate(ctx context.Context, in EvalInput) (domain.ResultScore, error) {
	ctx, span := s.tracer.Start(ctx, "EvalService.Evaluate",
		trace.WithAttributes(attribute.String("eval.name", in.EvalName)))
	defer span.End()

	start := time.Now()
	result, err := s.evaluate(ctx, in)
	s.recordOutcome(in.EvalName, result, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ResultScore{}, err
	}

	span.SetAttributes(
		attribute.Int("eval.score", result.Score),
		attribute.Bool("eval.weighted", result.HasProbScore),
	)
	if result.HasProbScore {
		span.SetAttributes(attribute.Float64("eval.prob_score", result.ProbScore))
	}

	if s.sink != nil {
		if err := s.sink.Publish(ctx, result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("eval %s: failed to publish result: %w", in.EvalName, err)
		}
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *EvalService) evaluate(ctx context.Context, in EvalInput) (domain.ResultScore, error) {
	rubric, err := s.rubrics.Get(in.EvalName)
	if err != nil {
		return domain.ResultScore{}, err
	}

	prompt, err := s.rubrics.Render(in.EvalName, PromptData{
		Question:        in.Question,
		Answer:          in.Answer,
		Context:         in.Context,
		ReferenceAnswer: in.ReferenceAnswer,
		Persona:         in.Persona,
	})
	if err != nil {
		return domain.ResultScore{}, err
	}

	reply, err := s.judge.Judge(ctx, prompt, s.requestOptions(rubric.Mode))
	if err != nil {
		return domain.ResultScore{}, ports.NewLLMError(s.judge.GetModel(), "judge", err)
	}
	if !reply.HasLogProbs() {
		s.logger.Debugf("eval %s: judge %s returned no log-probabilities", in.EvalName, s.judge.GetModel())
	}

	result, err := s.resolve(rubric, reply)
	if err != nil {
		return domain.ResultScore{}, err
	}
	s.checkScale(rubric, result)
	if in.ReferenceAnswer != "" {
		result.ReferenceAnswer = domain.StringPtr(in.ReferenceAnswer)
	}
	return result, nil
}

// checkScale warns when a discrete score falls outside the rubric's
// score_scale. The result is kept as the judge gave it.
func (s *EvalService) checkScale(rubric domain.Rubric, result domain.ResultScore) {
	if result.IsSentinel() || rubric.ScoreScale == "" {
		return
	}
	scale, err := domain.ParseScoreScale(rubric.ScoreScale)
	if err != nil || scale.Contains(float64(result.Score)) {
		return
	}

	s.logger.Warnf("eval %s: score %d is outside scale %s", rubric.Name, result.Score, scale)
	if s.metrics != nil {
		s.metrics.RecordCounter(ports.MetricOutOfScaleScores, 1, map[string]string{"eval_name": rubric.Name})
	}
}

// resolve picks the resolver path for the rubric. Explain rubrics with a
// custom score property use the generic JSON path.
func (s *EvalService) resolve(rubric domain.Rubric, reply domain.JudgeReply) (domain.ResultScore, error) {
	if rubric.Mode == domain.ModeExplain && rubric.ScoreKey() != domain.DefaultScoreProperty {
		return s.resolver.FromJSON(rubric.Name, rubric.ScoreKey(), reply.Text, reply.Tokens)
	}
	return s.resolver.Resolve(rubric.Name, rubric.Mode, reply)
}

// requestOptions returns the judge settings for mode.
func (s *EvalService) requestOptions(mode domain.EvalMode) map[string]any {
	opts := map[string]any{
		"temperature":   0.0,
		"logprobs":      true,
		"top_logprobs":  s.config.TopLogProbs,
		"system_prompt": s.config.SystemPrompt,
	}

	if mode == domain.ModeExplain {
		opts["max_tokens"] = explainMaxTokens
		opts["response_format"] = "json_object"
		return opts
	}

	opts["max_tokens"] = plainMaxTokens
	opts["top_p"] = 0.0
	return opts
}

// EvaluateBatch scores inputs concurrently, at most MaxConcurrency at a
// time. Each item gets a RequestID and its own error; a failed item does
// not stop the batch. The returned slice is in input order. The error is
// non-nil only when ctx ends before the batch completes.
func (s *EvalService) EvaluateBatch(ctx context.Context, inputs []EvalInput) ([]BatchItemResult, error) {
	ctx, span := s.tracer.Start(ctx, "EvalService.EvaluateBatch",
		trace.WithAttributes(attribute.Int("batch.size", len(inputs))))
	defer span.End()

	items := make([]BatchItemResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrency)

	for i, in := range inputs {
		items[i] = BatchItemResult{RequestID: uuid.NewString(), Input: in}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Result, items[i].Err = s.Evaluate(gctx, in)
			if items[i].Err != nil {
				s.logger.Warnf("batch item %s (%s): %v", items[i].RequestID, in.EvalName, items[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return items, err
	}
	span.SetStatus(codes.Ok, "")
	return items, nil
}

// Aggregate averages results per rubric, honouring ExcludeSentinels, and
// records the aggregates as gauges.
func (s *EvalService) Aggregate(results []domain.ResultScore, useWeighted bool) domain.AggregateResult {
	agg := scoring.Aggregate(results, scoring.AggregateOptions{
		UseWeighted:      useWeighted,
		ExcludeSentinels: s.config.ExcludeSentinels,
	})

	if s.metrics != nil {
		kind := kindDiscrete
		if useWeighted {
			kind = kindWeighted
		}
		for name, v := range agg {
			s.metrics.RecordGauge(ports.MetricAggregateScore, v, map[string]string{"eval_name": name, "kind": kind})
		}
	}
	return agg
}

// Results returns the results of the successful items in order.
func Results(items []BatchItemResult) []domain.ResultScore {
	out := make([]domain.ResultScore, 0, len(items))
	for _, item := range items {
		if item.Err == nil {
			out = append(out, item.Result)
		}
	}
	return out
}

func (s *EvalService) recordOutcome(evalName string, result domain.ResultScore, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	labels := map[string]string{"eval_name": evalName}

	s.metrics.RecordLatency(ports.MetricEvaluationLatency, elapsed, labels)

	outcome := err
	if outcome == nil {
		outcome = result.ParseErr()
	}
	status := ports.ErrorStatus(outcome)
	if status == ports.StatusEmptyDistribution {
		s.metrics.RecordCounter(ports.MetricEmptyDistributions, 1, labels)
	}
	s.metrics.RecordCounter(ports.MetricEvaluations, 1, map[string]string{"eval_name": evalName, "status": status})
	if err != nil {
		return
	}

	if result.IsSentinel() {
		s.metrics.RecordCounter(ports.MetricSentinelScores, 1, labels)
	} else {
		s.metrics.RecordHistogram(ports.MetricScoreValue, float64(result.Score),
			map[string]string{"eval_name": evalName, "kind": kindDiscrete})
	}
	if result.HasProbScore {
		s.metrics.RecordHistogram(ports.MetricScoreValue, result.ProbScore,
			map[string]string{"eval_name": evalName, "kind": kindWeighted})
	}
}

// FormatScore renders a result score for display: the weighted score when
// present, otherwise the discrete score.
func FormatScore(r domain.ResultScore) string {
	if r.HasProbScore {
		return strconv.FormatFloat(r.ProbScore, 'f', 3, 64)
	}
	return strconv.Itoa(r.Score)
}
