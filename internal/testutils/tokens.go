package testutils

import (
	"math"

	"github.com/ahrav/softscore/internal/domain"
)

// Candidate builds a TokenCandidate from a linear probability.
func Candidate(text string, p float64) domain.TokenCandidate {
	return domain.TokenCandidate{Text: text, LogProbability: math.Log(p)}
}

// Position builds a TokenPosition whose chosen token is looked up among alts.
// When chosen is not among alts its log-probability is 0.
func Position(chosen string, alts ...domain.TokenCandidate) domain.TokenPosition {
	pos := domain.TokenPosition{
		Chosen:       domain.TokenCandidate{Text: chosen},
		Alternatives: alts,
	}
	for _, a := range alts {
		if a.Text == chosen {
			pos.Chosen = a
			break
		}
	}
	return pos
}

// TokenStream builds a token sequence in which every position emitted its
// text with certainty and has no other alternatives.
func TokenStream(texts ...string) []domain.TokenPosition {
	out := make([]domain.TokenPosition, len(texts))
	for i, text := range texts {
		c := domain.TokenCandidate{Text: text}
		out[i] = domain.TokenPosition{Chosen: c, Alternatives: []domain.TokenCandidate{c}}
	}
	return out
}

// WithPosition returns a copy of tokens with position i replaced.
func WithPosition(tokens []domain.TokenPosition, i int, pos domain.TokenPosition) []domain.TokenPosition {
	out := append([]domain.TokenPosition(nil), tokens...)
	out[i] = pos
	return out
}

// Reply builds a JudgeReply whose text is the concatenation of tokens.
func Reply(tokens []domain.TokenPosition) domain.JudgeReply {
	reply := domain.JudgeReply{Tokens: tokens}
	reply.Text = reply.JoinedText()
	return reply
}
