// Package domain defines the core types for scoring judge replies: token
// log-probability tables, rubrics, scored results and their errors.
package domain

import "fmt"

// SentinelScore marks a ResultScore whose discrete score could not be parsed.
const SentinelScore = -1

// ResultScore is the outcome of scoring one judge reply against one rubric.
// It is created once per (input, rubric) pair and is read-only afterwards.
type ResultScore struct {
	// EvalName identifies the rubric that produced this score.
	EvalName string `json:"eval_name"`

	// Score is the best discrete score, or SentinelScore when the judge output
	// could not be parsed as an integer.
	Score int `json:"score"`

	// ProbScore is the probability-weighted expectation over candidate scores.
	// It is meaningful only when HasProbScore is true.
	ProbScore float64 `json:"prob_score"`

	// HasProbScore reports whether a normalized distribution was available
	// to compute ProbScore.
	HasProbScore bool `json:"has_prob_score"`

	// Output holds the raw text when no integer score could be parsed.
	Output *string `json:"output,omitempty"`

	// Reasoning is the judge's explanation. Present only in explain mode.
	Reasoning *string `json:"reasoning,omitempty"`

	// ChainOfThought is the judge's step-by-step reasoning. Present only in
	// explain mode.
	ChainOfThought *string `json:"chain_of_thought,omitempty"`

	// ReferenceAnswer is an optional ideal answer attached by the caller.
	ReferenceAnswer *string `json:"reference_answer,omitempty"`

	// LogProbResults retains the top-K candidates used for weighting.
	LogProbResults []TokenCandidate `json:"log_prob_results,omitempty"`

	// Result holds the full decoded structured reply for custom score
	// properties. It is nil for plain replies.
	Result map[string]any `json:"result,omitempty"`
}

// IsSentinel reports whether the discrete score is the parse-failure sentinel.
func (r ResultScore) IsSentinel() bool { return r.Score == SentinelScore }

// ParseErr returns ErrUnparsableScore, quoting the unparsed output, for
// sentinel results and nil otherwise.
func (r ResultScore) ParseErr() error {
	if !r.IsSentinel() {
		return nil
	}
	return fmt.Errorf("eval %s: %w: %q", r.EvalName, ErrUnparsableScore, r.OutputText())
}

// OutputText returns Output or the empty string.
func (r ResultScore) OutputText() string {
	if r.Output == nil {
		return ""
	}
	return *r.Output
}

// AggregateResult maps a rubric name to the mean score of its results.
// It is recomputed on demand and never persisted.
type AggregateResult map[string]float64

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
