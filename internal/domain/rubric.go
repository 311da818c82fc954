package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EvalType names a built-in rubric.
type EvalType string

// Built-in rubrics. The Explain variants ask the judge for a structured
// JSON reply carrying a score, an explanation and a chain of thought.
const (
	EvalGroundedness                EvalType = "GptGroundedness"
	EvalGroundedness2               EvalType = "GptGroundedness2"
	EvalSimilarity                  EvalType = "GptSimilarity"
	EvalRelevance                   EvalType = "Relevance"
	EvalCoherence                   EvalType = "Coherence"
	EvalPerceivedIntelligence       EvalType = "PerceivedIntelligence"
	EvalPerceivedIntelligenceNonRag EvalType = "PerceivedIntelligenceNonRag"
	EvalFluency                     EvalType = "Fluency"
	EvalEmpathy                     EvalType = "Empathy"
	EvalHelpfulness                 EvalType = "Helpfulness"
	EvalRetrieval                   EvalType = "Retrieval"
	EvalExcessiveAgency             EvalType = "ExcessiveAgency"
	EvalRoleAdherence               EvalType = "RoleAdherence"

	EvalGroundednessExplain                EvalType = "GptGroundednessExplain"
	EvalGroundedness2Explain               EvalType = "GptGroundedness2Explain"
	EvalSimilarityExplain                  EvalType = "GptSimilarityExplain"
	EvalRelevanceExplain                   EvalType = "RelevanceExplain"
	EvalCoherenceExplain                   EvalType = "CoherenceExplain"
	EvalPerceivedIntelligenceExplain       EvalType = "PerceivedIntelligenceExplain"
	EvalPerceivedIntelligenceNonRagExplain EvalType = "PerceivedIntelligenceNonRagExplain"
	EvalFluencyExplain                     EvalType = "FluencyExplain"
	EvalEmpathyExplain                     EvalType = "EmpathyExplain"
	EvalHelpfulnessExplain                 EvalType = "HelpfulnessExplain"
	EvalRetrievalExplain                   EvalType = "RetrievalExplain"
	EvalExcessiveAgencyExplain             EvalType = "ExcessiveAgencyExplain"
	EvalRoleAdherenceExplain               EvalType = "RoleAdherenceExplain"
)

// builtinScales records the score range of each built-in rubric.
var builtinScales = map[EvalType]string{
	EvalGroundedness:                "1-5",
	EvalGroundedness2:               "1-10",
	EvalSimilarity:                  "1-5",
	EvalRelevance:                   "1-5",
	EvalCoherence:                   "1-5",
	EvalPerceivedIntelligence:       "1-10",
	EvalPerceivedIntelligenceNonRag: "1-10",
	EvalFluency:                     "1-5",
	EvalEmpathy:                     "1-5",
	EvalHelpfulness:                 "1-5",
	EvalRetrieval:                   "1-5",
	EvalExcessiveAgency:             "1-5",
	EvalRoleAdherence:               "1-5",
}

// BuiltinEvalTypes returns every built-in rubric, plain variants first.
func BuiltinEvalTypes() []EvalType {
	return []EvalType{
		EvalGroundedness, EvalGroundedness2, EvalSimilarity, EvalRelevance,
		EvalCoherence, EvalPerceivedIntelligence, EvalPerceivedIntelligenceNonRag,
		EvalFluency, EvalEmpathy, EvalHelpfulness, EvalRetrieval,
		EvalExcessiveAgency, EvalRoleAdherence,
		EvalGroundednessExplain, EvalGroundedness2Explain, EvalSimilarityExplain,
		EvalRelevanceExplain, EvalCoherenceExplain, EvalPerceivedIntelligenceExplain,
		EvalPerceivedIntelligenceNonRagExplain, EvalFluencyExplain, EvalEmpathyExplain,
		EvalHelpfulnessExplain, EvalRetrievalExplain, EvalExcessiveAgencyExplain,
		EvalRoleAdherenceExplain,
	}
}

// IsExplain reports whether the rubric expects a structured reply.
func (t EvalType) IsExplain() bool { return strings.HasSuffix(string(t), "Explain") }

// Mode returns the evaluation mode of the rubric.
func (t EvalType) Mode() EvalMode {
	if t.IsExplain() {
		return ModeExplain
	}
	return ModePlain
}

// DefaultScale returns the score range for the rubric. Explain variants share
// the scale of their plain counterpart.
func (t EvalType) DefaultScale() string {
	base := EvalType(strings.TrimSuffix(string(t), "Explain"))
	if s, ok := builtinScales[base]; ok {
		return s
	}
	return "1-5"
}

// EvalMode selects how a judge reply is interpreted.
type EvalMode string

const (
	// ModePlain expects a bare integer reply, usually a single token.
	ModePlain EvalMode = "plain"

	// ModeExplain expects a JSON object carrying a score and an explanation.
	ModeExplain EvalMode = "explain"
)

// Rubric describes a named scoring criterion and how to ask the judge about it.
// Rubrics are built once at startup and treated as read-only.
type Rubric struct {
	// Name is the rubric identifier used as ResultScore.EvalName.
	Name string `yaml:"name" json:"name" validate:"required,min=1,max=100"`

	// Mode selects plain or explain interpretation of the reply.
	Mode EvalMode `yaml:"mode" json:"mode" validate:"required,oneof=plain explain"`

	// ScoreScale is the expected integer range, e.g. "1-5".
	ScoreScale string `yaml:"score_scale" json:"score_scale" validate:"required,scorescale"`

	// Prompt is a text/template rendered with the evaluation inputs.
	Prompt string `yaml:"prompt" json:"prompt" validate:"required,min=10"`

	// ScoreProperty is the JSON key holding the score in explain mode.
	// Defaults to "score".
	ScoreProperty string `yaml:"score_property,omitempty" json:"score_property,omitempty"`
}

// ScoreKey returns the JSON property holding the score.
func (r Rubric) ScoreKey() string {
	if r.ScoreProperty == "" {
		return DefaultScoreProperty
	}
	return r.ScoreProperty
}

// DefaultScoreProperty is the JSON key carrying the score in structured replies.
const DefaultScoreProperty = "score"

// ScoreScale is a parsed score range.
type ScoreScale struct {
	Min float64
	Max float64
}

// ParseScoreScale parses a "min-max" range such as "1-5", "0-10" or "-5-5".
func ParseScoreScale(scaleStr string) (ScoreScale, error) {
	s := strings.TrimSpace(scaleStr)
	// Skip a leading sign so that "-5-5" splits on the separator dash.
	idx := strings.Index(s[min(1, len(s)):], "-")
	if idx == -1 {
		return ScoreScale{}, fmt.Errorf("score scale must be in format 'min-max', got: %s", scaleStr)
	}
	idx += min(1, len(s))

	minVal, err := strconv.ParseFloat(strings.TrimSpace(s[:idx]), 64)
	if err != nil {
		return ScoreScale{}, fmt.Errorf("invalid minimum value in score scale: %w", err)
	}
	maxVal, err := strconv.ParseFloat(strings.TrimSpace(s[idx+1:]), 64)
	if err != nil {
		return ScoreScale{}, fmt.Errorf("invalid maximum value in score scale: %w", err)
	}
	if minVal >= maxVal {
		return ScoreScale{}, fmt.Errorf("minimum value must be less than maximum value in score scale")
	}
	return ScoreScale{Min: minVal, Max: maxVal}, nil
}

// Contains checks if a score falls within this scale's range.
func (s ScoreScale) Contains(score float64) bool { return score >= s.Min && score <= s.Max }

// String returns the string representation of the scale.
func (s ScoreScale) String() string { return fmt.Sprintf("%g-%g", s.Min, s.Max) }
