package scoring

import (
	"fmt"
	"strings"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/log"
)

// scorePrefix is stripped from plain replies before parsing.
const scorePrefix = "Score:"

// Resolver builds ResultScore records from judge replies.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	marker string
	logger log.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithScoreMarker overrides the marker that precedes the score numeral in
// structured replies. Empty markers are ignored.
func WithScoreMarker(marker string) ResolverOption {
	return func(r *Resolver) {
		if marker != "" {
			r.marker = marker
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger log.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver using DefaultScoreMarker and log.Default.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{marker: DefaultScoreMarker, logger: log.Default}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Marker returns the score marker in use.
func (r *Resolver) Marker() string { return r.marker }

// FromText parses a plain reply such as "Score: 3". Any "Score:" literal is
// removed and surrounding whitespace trimmed. When the remainder is not an
// integer, Score is SentinelScore and Output holds the trimmed text.
func (r *Resolver) FromText(evalName, text string) domain.ResultScore {
	output := strings.TrimSpace(strings.ReplaceAll(text, scorePrefix, ""))
	result := domain.ResultScore{EvalName: evalName, Score: domain.SentinelScore}
	if score, ok := ParseIntToken(output); ok {
		result.Score = score
		return result
	}

	r.logger.Warnf("eval %s: reply is not an integer score: %q", evalName, output)
	result.Output = domain.StringPtr(output)
	return result
}

// FromPosition scores a single token position. ProbScore is the weighted
// expectation over the numeric alternatives; Score is parsed independently
// from the chosen token. It returns a *domain.DistributionError when no
// alternative is numeric.
func (r *Resolver) FromPosition(evalName string, pos domain.TokenPosition) (domain.ResultScore, error) {
	r.logger.Debugf("eval %s: score token %q, top-k %s", evalName, pos.Chosen.Text, formatAlternatives(pos.Alternatives))

	dist, err := NumericDistribution(pos)
	if err != nil {
		return domain.ResultScore{}, domain.NewDistributionError(evalName, pos)
	}

	result := domain.ResultScore{
		EvalName:       evalName,
		Score:          domain.SentinelScore,
		ProbScore:      WeightedScore(dist),
		HasProbScore:   true,
		LogProbResults: append([]domain.TokenCandidate(nil), pos.Alternatives...),
	}
	if score, ok := ParseIntToken(pos.Chosen.Text); ok {
		result.Score = score
	} else {
		result.Output = domain.StringPtr(pos.Chosen.Text)
	}
	return result, nil
}

// FromStructured scores an explain-mode reply. When the score token can be
// located in tokens the weighted path applies; otherwise ProbScore stays
// unset and Score comes from the decoded object. Reasoning and
// ChainOfThought are copied from reply in both cases.
func (r *Resolver) FromStructured(
	evalName string,
	reply *StructuredReply,
	tokens []domain.TokenPosition,
) (domain.ResultScore, error) {
	marker := r.marker
	if reply != nil && reply.ScoreProperty != "" && reply.ScoreProperty != domain.DefaultScoreProperty {
		marker = PropertyMarker(reply.ScoreProperty)
	}
	return r.fromStructured(evalName, reply, tokens, marker, strings.Index)
}

// FromJSON decodes text as a structured reply whose score lives under
// scoreProperty and scores it. The property is matched case-insensitively
// both in the decoded object and in the token stream. The full decoded
// object is kept in ResultScore.Result. Text that holds no JSON object
// yields SentinelScore with Output set, unless tokens still locate a score.
func (r *Resolver) FromJSON(
	evalName, scoreProperty, text string,
	tokens []domain.TokenPosition,
) (domain.ResultScore, error) {
	if scoreProperty == "" {
		scoreProperty = domain.DefaultScoreProperty
	}

	reply, err := ParseStructuredReplyWithProperty(text, scoreProperty)
	if err != nil {
		r.logger.Warnf("eval %s: %v", evalName, err)
		reply = nil
	}

	marker := PropertyMarker(scoreProperty)
	if reply != nil {
		marker = PropertyMarker(reply.ScoreProperty)
	}
	result, rerr := r.fromStructured(evalName, reply, tokens, marker, foldIndex)
	if rerr != nil {
		return domain.ResultScore{}, rerr
	}
	if reply == nil && !result.HasProbScore && result.Output == nil {
		result.Output = domain.StringPtr(strings.TrimSpace(text))
	}
	if reply != nil {
		result.Result = reply.Fields
	}
	return result, nil
}

func (r *Resolver) fromStructured(
	evalName string,
	reply *StructuredReply,
	tokens []domain.TokenPosition,
	marker string,
	index func(s, substr string) int,
) (domain.ResultScore, error) {
	if len(tokens) > 0 {
		r.logger.Debugf("eval %s: judge text %q", evalName, domain.JudgeReply{Tokens: tokens}.JoinedText())
	}

	var (
		result domain.ResultScore
		err    error
	)
	if idx, ok := locateScoreIndex(tokens, marker, index); ok {
		result, err = r.FromPosition(evalName, tokens[idx])
		if err != nil {
			return domain.ResultScore{}, err
		}
	} else {
		if len(tokens) > 0 {
			r.logger.Warnf("eval %s: score marker %q not found in token stream", evalName, marker)
		}
		result = domain.ResultScore{EvalName: evalName, Score: domain.SentinelScore}
		switch {
		case reply == nil:
		case reply.Score != nil:
			result.Score = *reply.Score
		case reply.RawScore != "":
			r.logger.Warnf("eval %s: %s %q is not an integer score", evalName, reply.ScoreProperty, reply.RawScore)
			result.Output = domain.StringPtr(reply.RawScore)
		default:
			r.logger.Warnf("eval %s: reply has no %s field", evalName, reply.ScoreProperty)
			result.Output = domain.StringPtr(reply.Text)
		}
	}

	if reply != nil {
		if reply.Explanation != "" {
			result.Reasoning = domain.StringPtr(reply.Explanation)
		}
		if reply.ThoughtChain != "" {
			result.ChainOfThought = domain.StringPtr(reply.ThoughtChain)
		}
	}
	return result, nil
}

// Resolve scores a judge reply according to mode. Plain replies use the
// first token position when log-probabilities are present and the text path
// otherwise. Explain replies are decoded as structured objects.
func (r *Resolver) Resolve(evalName string, mode domain.EvalMode, reply domain.JudgeReply) (domain.ResultScore, error) {
	switch mode {
	case domain.ModeExplain:
		structured, err := ParseStructuredReply(reply.Text)
		if err != nil {
			r.logger.Warnf("eval %s: %v", evalName, err)
			result, rerr := r.FromStructured(evalName, nil, reply.Tokens)
			if rerr != nil {
				return domain.ResultScore{}, rerr
			}
			if !result.HasProbScore && result.Output == nil {
				result.Output = domain.StringPtr(strings.TrimSpace(reply.Text))
			}
			return result, nil
		}
		return r.FromStructured(evalName, structured, reply.Tokens)
	case domain.ModePlain, "":
		if reply.HasLogProbs() {
			return r.FromPosition(evalName, reply.Tokens[0])
		}
		return r.FromText(evalName, reply.Text), nil
	default:
		return domain.ResultScore{}, fmt.Errorf("unsupported eval mode %q", mode)
	}
}

func formatAlternatives(alts []domain.TokenCandidate) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, a := range alts {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q:%.4f", a.Text, a.LinearProbability())
	}
	b.WriteByte(']')
	return b.String()
}
