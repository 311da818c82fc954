package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/log"
	"github.com/ahrav/softscore/internal/scoring"
)

// recordedToken is one emitted position in the layout judge providers
// report log-probabilities in.
type recordedToken struct {
	Token       string                  `json:"token"`
	LogProb     float64                 `json:"logprob"`
	TopLogProbs []domain.TokenCandidate `json:"top_logprobs"`
}

// recordedReply is a judge reply captured for offline scoring.
type recordedReply struct {
	EvalName      string          `json:"eval_name"`
	Mode          domain.EvalMode `json:"mode,omitempty"`
	ScoreProperty string          `json:"score_property,omitempty"`
	Text          string          `json:"text"`
	Tokens        []recordedToken `json:"tokens,omitempty"`
}

// judgeReply converts the recording into a JudgeReply. The text is rebuilt
// from the tokens when it was not recorded.
func (r recordedReply) judgeReply() domain.JudgeReply {
	reply := domain.JudgeReply{Text: r.Text}
	for _, t := range r.Tokens {
		reply.Tokens = append(reply.Tokens, domain.TokenPosition{
			Chosen:       domain.TokenCandidate{Text: t.Token, LogProbability: t.LogProb},
			Alternatives: t.TopLogProbs,
		})
	}
	if reply.Text == "" {
		reply.Text = reply.JoinedText()
	}
	return reply
}

type scoreOptions struct {
	input            string
	explain          bool
	weighted         bool
	excludeSentinels bool
	scoreMarker      string
	scoreProperty    string
	format           string
}

func newScoreCommand() *cobra.Command {
	opts := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score recorded judge replies offline",
		Long: `Score judge replies that were recorded earlier, without calling a model.

The input is a JSON array of replies:

  [{"eval_name": "Coherence", "text": "4",
    "tokens": [{"token": "4", "logprob": -0.36,
                "top_logprobs": [{"token": "4", "logprob": -0.36},
                                 {"token": "3", "logprob": -1.61}]}]}]

Replies are interpreted in plain mode unless the rubric name ends in
"Explain", the reply sets "mode": "explain", or --explain is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "JSON file of recorded judge replies (required)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Interpret every reply as a structured explain reply")
	cmd.Flags().BoolVar(&opts.weighted, "weighted", false, "Aggregate probability-weighted scores instead of discrete scores")
	cmd.Flags().BoolVar(&opts.excludeSentinels, "exclude-sentinels", false, "Leave unparsable results out of the aggregate")
	cmd.Flags().StringVar(&opts.scoreMarker, "score-marker", scoring.DefaultScoreMarker, "Text preceding the score in structured replies")
	cmd.Flags().StringVar(&opts.scoreProperty, "score-property", "", "JSON property holding the score in structured replies")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "Output format: table or json")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runScore(cmd *cobra.Command, opts *scoreOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}

	replies, err := loadRecordedReplies(opts.input)
	if err != nil {
		return err
	}

	resolver := scoring.NewResolver(
		scoring.WithScoreMarker(opts.scoreMarker),
		scoring.WithLogger(log.Default),
	)

	rows := make([]reportRow, len(replies))
	for i, r := range replies {
		rows[i] = reportRow{ID: strconv.Itoa(i + 1), Name: r.EvalName}
		rows[i].Result, rows[i].Err = scoreRecorded(resolver, r, opts)
	}

	agg := scoring.Aggregate(rowResults(rows), scoring.AggregateOptions{
		UseWeighted:      opts.weighted,
		ExcludeSentinels: opts.excludeSentinels,
	})

	out := cmd.OutOrStdout()
	if opts.format == formatJSON {
		if err := writeJSONReport(out, rows, agg, opts.weighted); err != nil {
			return err
		}
	} else {
		printResults(out, rows)
		printAggregate(out, agg, opts.weighted)
	}

	if failed := failedRows(rows); failed > 0 {
		return &ItemFailureError{Failed: failed, Total: len(rows)}
	}
	return nil
}

// scoreRecorded picks the interpretation path for one reply.
func scoreRecorded(resolver *scoring.Resolver, r recordedReply, opts *scoreOptions) (domain.ResultScore, error) {
	if r.EvalName == "" {
		return domain.ResultScore{}, fmt.Errorf("reply has no eval_name")
	}

	mode := r.Mode
	switch {
	case opts.explain:
		mode = domain.ModeExplain
	case mode == "":
		mode = domain.EvalType(r.EvalName).Mode()
	}

	property := r.ScoreProperty
	if property == "" {
		property = opts.scoreProperty
	}

	reply := r.judgeReply()
	if mode == domain.ModeExplain && property != "" && property != domain.DefaultScoreProperty {
		return resolver.FromJSON(r.EvalName, property, reply.Text, reply.Tokens)
	}
	return resolver.Resolve(r.EvalName, mode, reply)
}

func loadRecordedReplies(path string) ([]recordedReply, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read replies: %w", err)
	}

	var replies []recordedReply
	if err := json.Unmarshal(data, &replies); err != nil {
		return nil, fmt.Errorf("failed to decode replies in %s: %w", path, err)
	}
	return replies, nil
}
