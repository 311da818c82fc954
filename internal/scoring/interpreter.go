// Package scoring turns judge-model output into numeric quality scores.
//
// A judge reply is interpreted in one of two ways. When the provider returns
// a per-token log-probability table, the token that carries the numeral is
// located, its top-K alternatives are restricted to integer literals and
// renormalized, and the probability-weighted expectation over those integers
// becomes the soft score. Without log-probabilities only the discrete score
// parsed from the text is available.
package scoring

import (
	"strconv"
	"strings"

	"github.com/ahrav/softscore/internal/domain"
)

// DefaultScoreMarker is the text that precedes the numeral in a structured
// judge reply such as {"score": 4, "explanation": "..."}.
const DefaultScoreMarker = `"score": `

// ToLinearProbability returns exp(logProbability) for the candidate.
func ToLinearProbability(c domain.TokenCandidate) float64 { return c.LinearProbability() }

// ParseIntToken parses token text as an optionally signed base-10 integer.
// Surrounding whitespace is ignored since tokenizers often attach a leading
// space to numerals.
func ParseIntToken(text string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return v, true
}

// RestrictToNumericCandidates keeps the alternatives of pos whose text parses
// as an integer, converted to linear probabilities. Rank order is preserved.
func RestrictToNumericCandidates(pos domain.TokenPosition) []domain.WeightedToken {
	out := make([]domain.WeightedToken, 0, len(pos.Alternatives))
	for _, alt := range pos.Alternatives {
		if _, ok := ParseIntToken(alt.Text); !ok {
			continue
		}
		out = append(out, domain.WeightedToken{Text: alt.Text, Probability: ToLinearProbability(alt)})
	}
	return out
}

// Normalize divides each probability by the sum of all probabilities.
// It returns domain.ErrEmptyDistribution when entries is empty or sums to zero.
func Normalize(entries []domain.WeightedToken) (domain.NormalizedDistribution, error) {
	if len(entries) == 0 {
		return domain.NormalizedDistribution{}, domain.ErrEmptyDistribution
	}

	var total float64
	for _, e := range entries {
		total += e.Probability
	}
	if total == 0 {
		return domain.NormalizedDistribution{}, domain.ErrEmptyDistribution
	}

	normalized := make([]domain.WeightedToken, len(entries))
	for i, e := range entries {
		normalized[i] = domain.WeightedToken{Text: e.Text, Probability: e.Probability / total}
	}
	return domain.NormalizedDistribution{Entries: normalized}, nil
}

// NumericDistribution restricts pos to numeric alternatives and normalizes them.
func NumericDistribution(pos domain.TokenPosition) (domain.NormalizedDistribution, error) {
	return Normalize(RestrictToNumericCandidates(pos))
}

// WeightedScore returns the expectation of the integer values in dist.
func WeightedScore(dist domain.NormalizedDistribution) float64 {
	var sum float64
	for _, e := range dist.Entries {
		v, _ := ParseIntToken(e.Text)
		sum += float64(v) * e.Probability
	}
	return sum
}

// LocateScoreToken returns the position holding the first character after
// DefaultScoreMarker in the concatenated token stream.
func LocateScoreToken(tokens []domain.TokenPosition) (domain.TokenPosition, bool) {
	return LocateScoreTokenWithMarker(tokens, DefaultScoreMarker)
}

// LocateScoreTokenWithMarker folds the emitted token texts into a running
// string and, once the marker has appeared, returns the token that contains
// the character immediately following it. If the marker ends exactly at the
// end of the running text, the next non-empty token is returned when one
// exists.
// It reports false when the marker never appears or nothing follows it.
func LocateScoreTokenWithMarker(tokens []domain.TokenPosition, marker string) (domain.TokenPosition, bool) {
	idx, ok := locateScoreIndex(tokens, marker, strings.Index)
	if !ok {
		return domain.TokenPosition{}, false
	}
	return tokens[idx], true
}

// LocatePropertyToken locates the token following `"<property>": `, matching
// the property name case-insensitively.
func LocatePropertyToken(tokens []domain.TokenPosition, property string) (domain.TokenPosition, bool) {
	idx, ok := locateScoreIndex(tokens, PropertyMarker(property), foldIndex)
	if !ok {
		return domain.TokenPosition{}, false
	}
	return tokens[idx], true
}

// PropertyMarker returns the marker text that precedes a JSON property value.
func PropertyMarker(property string) string { return `"` + property + `": ` }

// locateScoreIndex implements the marker fold over (running text, token
// index). The marker first becomes visible while appending token i, so any
// character after it that is already in the running text belongs to token i.
func locateScoreIndex(
	tokens []domain.TokenPosition,
	marker string,
	index func(s, substr string) int,
) (int, bool) {
	if marker == "" {
		return 0, false
	}

	var running strings.Builder
	for i, tok := range tokens {
		running.WriteString(tok.Chosen.Text)

		text := running.String()
		at := index(text, marker)
		if at == -1 {
			continue
		}

		if at+len(marker) < len(text) {
			return i, true
		}
		// Marker is the last content so far; the score lives in the next
		// non-empty token.
		for j := i + 1; j < len(tokens); j++ {
			if tokens[j].Chosen.Text != "" {
				return j, true
			}
		}
		return 0, false
	}

	return 0, false
}

// foldIndex is an ASCII case-insensitive strings.Index. Byte offsets are
// preserved, unlike a full Unicode case fold.
func foldIndex(s, substr string) int {
	return strings.Index(asciiLower(s), asciiLower(substr))
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
