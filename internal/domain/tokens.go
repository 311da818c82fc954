package domain

import (
	"math"
	"strings"
)

// TokenCandidate is one token a judge model considered at a single output
// position together with the natural-log probability it assigned to it.
type TokenCandidate struct {
	// Text is the literal token text. It may be a fragment of a word or
	// number, including leading whitespace.
	Text string `json:"token"`

	// LogProbability is the natural-log probability of the token.
	// It is always <= 0.
	LogProbability float64 `json:"logprob"`
}

// LinearProbability converts the candidate's log-probability into a linear
// probability in (0, 1].
func (c TokenCandidate) LinearProbability() float64 { return math.Exp(c.LogProbability) }

// TokenPosition is a single emitted output position of a judge reply.
// It is built once from the provider payload and never mutated afterwards.
type TokenPosition struct {
	// Chosen is the token the model actually emitted at this position.
	Chosen TokenCandidate `json:"chosen"`

	// Alternatives holds the top-K candidates in provider rank order,
	// highest probability first. It usually contains Chosen as well.
	Alternatives []TokenCandidate `json:"top_logprobs,omitempty"`
}

// JudgeReply is the raw output of one judge-model call.
type JudgeReply struct {
	// Text is the full decoded reply.
	Text string `json:"text"`

	// Tokens is the ordered per-position log-probability table.
	// It is empty when the provider returned no log-probabilities.
	Tokens []TokenPosition `json:"tokens,omitempty"`

	// Model identifies the judge model that produced the reply.
	Model string `json:"model,omitempty"`

	// TokensIn and TokensOut report provider token usage when known.
	TokensIn  int `json:"tokens_in,omitempty"`
	TokensOut int `json:"tokens_out,omitempty"`
}

// HasLogProbs reports whether the reply carries a token log-probability table.
func (r JudgeReply) HasLogProbs() bool { return len(r.Tokens) > 0 }

// JoinedText reconstructs the reply from its emitted tokens.
func (r JudgeReply) JoinedText() string {
	var b strings.Builder
	for _, tok := range r.Tokens {
		b.WriteString(tok.Chosen.Text)
	}
	return b.String()
}

// WeightedToken pairs a token text with a linear probability.
type WeightedToken struct {
	Text        string
	Probability float64
}

// NormalizedDistribution is a probability distribution over numeric token
// texts whose probabilities sum to 1.
// Entries keep the rank order of the alternatives they were derived from.
type NormalizedDistribution struct {
	Entries []WeightedToken
}

// Probability returns the normalized probability of the given token text
// and whether it is part of the distribution.
func (d NormalizedDistribution) Probability(text string) (float64, bool) {
	for _, e := range d.Entries {
		if e.Text == text {
			return e.Probability, true
		}
	}
	return 0, false
}

// Total returns the sum of all entry probabilities.
func (d NormalizedDistribution) Total() float64 {
	var sum float64
	for _, e := range d.Entries {
		sum += e.Probability
	}
	return sum
}
