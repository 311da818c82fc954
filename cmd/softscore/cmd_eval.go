package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/softscore/infrastructure/middleware"
	"github.com/ahrav/softscore/infrastructure/sink"
	"github.com/ahrav/softscore/internal/application"
	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/log"
	"github.com/ahrav/softscore/internal/ports"
)

type evalOptions struct {
	config   string
	input    string
	out      string
	weighted bool
	format   string
}

func newEvalCommand() *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score a batch of answers with a live judge model",
		Long: `Render each rubric prompt, ask the configured judge model for a score and
interpret the reply, including its token log-probabilities.

The input is a JSON or YAML list of items:

  [{"eval_name": "Coherence", "question": "...", "answer": "..."}]

The judge API key is read from the provider's environment variable, for
example OPENAI_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runEval(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "Engine configuration YAML file (required)")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "JSON or YAML file of items to score (required)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Append results to this JSON Lines file")
	cmd.Flags().BoolVar(&opts.weighted, "weighted", false, "Aggregate probability-weighted scores instead of discrete scores")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "Output format: table or json")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, opts *evalOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	loader, err := application.NewConfigLoader()
	if err != nil {
		return err
	}
	var cfg application.EngineConfig
	if err := loader.FileSource(opts.config).Load(ctx, &cfg); err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.config, err)
	}

	inputs, err := loadEvalInputs(opts.input)
	if err != nil {
		return err
	}

	metrics := middleware.NewPrometheusMetrics(prometheus.NewRegistry())
	judge, err := newJudge(cfg.Judge, metrics)
	if err != nil {
		return err
	}

	run, err := evaluate(ctx, &cfg, judge, metrics, inputs, opts)
	if run.items == nil {
		return err
	}

	usage := judge.Usage()
	log.Infof("judge %s: %d calls, %d tokens", judge.GetModel(), usage.Calls, usage.Tokens)

	// An interrupted batch still reports the items that finished.
	reportErr := report(cmd, run, opts.weighted, opts.format)
	if err != nil {
		return err
	}
	return reportErr
}

// evaluate runs the batch through an EvalService wired to judge. When ctx
// ends mid-batch the returned run holds every item alongside the error.
func evaluate(
	ctx context.Context,
	cfg *application.EngineConfig,
	judge ports.JudgeClient,
	metrics ports.MetricsCollector,
	inputs []application.EvalInput,
	opts *evalOptions,
) (evalRun, error) {
	rubrics, err := application.NewRubricRegistry(cfg.Rubrics)
	if err != nil {
		return evalRun{}, err
	}

	results, err := openSink(opts.out)
	if err != nil {
		return evalRun{}, err
	}
	defer func() {
		if cerr := results.Close(); cerr != nil {
			log.Errorf("failed to close result sink: %v", cerr)
		}
	}()

	svc, err := application.NewEvalService(judge, rubrics,
		application.WithSink(results),
		application.WithMetrics(metrics),
		application.WithServiceConfig(application.ServiceConfigFrom(cfg)),
	)
	if err != nil {
		return evalRun{}, err
	}

	items, err := svc.EvaluateBatch(ctx, inputs)
	run := evalRun{
		items:     items,
		aggregate: svc.Aggregate(application.Results(items), opts.weighted),
	}
	if err != nil {
		return run, fmt.Errorf("batch interrupted: %w", err)
	}
	return run, nil
}

type evalRun struct {
	items     []application.BatchItemResult
	aggregate domain.AggregateResult
}

func report(cmd *cobra.Command, run evalRun, weighted bool, format string) error {
	rows := make([]reportRow, len(run.items))
	for i, item := range run.items {
		rows[i] = reportRow{ID: item.RequestID, Name: item.Input.EvalName, Result: item.Result, Err: item.Err}
	}

	out := cmd.OutOrStdout()
	if format == formatJSON {
		if err := writeJSONReport(out, rows, run.aggregate, weighted); err != nil {
			return err
		}
	} else {
		printResults(out, rows)
		printAggregate(out, run.aggregate, weighted)
	}

	if failed := failedRows(rows); failed > 0 {
		return &ItemFailureError{Failed: failed, Total: len(rows)}
	}
	return nil
}

func openSink(path string) (ports.ResultSink, error) {
	if path == "" {
		return sink.NewMemory(), nil
	}
	s, err := sink.OpenJSONLines(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// loadEvalInputs reads a JSON or YAML list of items, chosen by extension.
func loadEvalInputs(path string) ([]application.EvalInput, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs: %w", err)
	}

	var inputs []application.EvalInput
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &inputs)
	default:
		err = json.Unmarshal(data, &inputs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode inputs in %s: %w", path, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs in %s", path)
	}
	return inputs, nil
}
