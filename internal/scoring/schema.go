package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ahrav/softscore/internal/domain"
)

// SchemaVersion identifies the field naming of a structured judge reply.
type SchemaVersion int

const (
	// SchemaUnknown means neither known score field was present.
	SchemaUnknown SchemaVersion = iota

	// SchemaV1 uses qualityScore, qualityScoreReasoning and chainOfThought.
	SchemaV1

	// SchemaV2 uses score, explanation and thoughtChain.
	SchemaV2
)

// String returns the schema name.
func (v SchemaVersion) String() string {
	switch v {
	case SchemaV1:
		return "v1"
	case SchemaV2:
		return "v2"
	default:
		return "unknown"
	}
}

// schemaFields maps the logical reply fields onto the JSON keys of a version.
type schemaFields struct {
	score        string
	explanation  string
	thoughtChain string
}

var schemaKeys = map[SchemaVersion]schemaFields{
	SchemaV1: {score: "qualityScore", explanation: "qualityScoreReasoning", thoughtChain: "chainOfThought"},
	SchemaV2: {score: "score", explanation: "explanation", thoughtChain: "thoughtChain"},
}

// ErrNoJSONObject indicates that a reply contained no JSON object.
var ErrNoJSONObject = errors.New("no JSON object in reply")

// StructuredReply is a decoded explain-mode judge reply with its field names
// mapped onto a single shape.
type StructuredReply struct {
	// Score is the integer score field, or nil when it was absent or not an
	// integer.
	Score *int

	// ScoreProperty is the JSON key the score was read from.
	ScoreProperty string

	// RawScore is the score field as text when it is present but not an
	// integer.
	RawScore string

	// Text is the trimmed reply the object was decoded from.
	Text string

	Explanation  string
	ThoughtChain string
	Version      SchemaVersion

	// Fields holds the full decoded object.
	Fields map[string]any
}

// ParseStructuredReply decodes a judge reply using the default score property.
func ParseStructuredReply(text string) (*StructuredReply, error) {
	return ParseStructuredReplyWithProperty(text, "")
}

// ParseStructuredReplyWithProperty decodes a judge reply. Markdown code
// fences and surrounding prose are stripped. Keys are matched
// case-insensitively. When scoreProperty is set to something other than
// domain.DefaultScoreProperty, the score is read from that property instead
// of the schema's own score key.
func ParseStructuredReplyWithProperty(text, scoreProperty string) (*StructuredReply, error) {
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, ErrNoJSONObject
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode structured reply: %w", err)
	}

	folded := foldKeys(fields)
	version := detectVersion(folded)

	keys := schemaKeys[SchemaV2]
	if version == SchemaV1 {
		keys = schemaKeys[SchemaV1]
	}

	reply := &StructuredReply{
		ScoreProperty: keys.score,
		Text:          strings.TrimSpace(text),
		Version:       version,
		Fields:        fields,
		Explanation:   stringField(folded, keys.explanation),
		ThoughtChain:  stringField(folded, keys.thoughtChain),
	}
	if scoreProperty != "" && !strings.EqualFold(scoreProperty, domain.DefaultScoreProperty) {
		reply.ScoreProperty = scoreProperty
	}
	if v, ok := lookupFold(folded, reply.ScoreProperty); ok {
		if score, ok := intValue(v); ok {
			reply.Score = &score
		} else {
			reply.RawScore = stringField(folded, reply.ScoreProperty)
		}
	}
	return reply, nil
}

func detectVersion(folded map[string]any) SchemaVersion {
	if _, ok := lookupFold(folded, schemaKeys[SchemaV2].score); ok {
		return SchemaV2
	}
	if _, ok := lookupFold(folded, schemaKeys[SchemaV1].score); ok {
		return SchemaV1
	}
	return SchemaUnknown
}

// foldKeys re-keys m by the Unicode case fold of each key. The first key in
// iteration order wins on collisions.
func foldKeys(m map[string]any) map[string]any {
	caser := cases.Fold()
	out := make(map[string]any, len(m))
	for k, v := range m {
		fk := caser.String(k)
		if _, exists := out[fk]; !exists {
			out[fk] = v
		}
	}
	return out
}

func lookupFold(folded map[string]any, key string) (any, bool) {
	v, ok := folded[cases.Fold().String(key)]
	return v, ok
}

func stringField(folded map[string]any, key string) string {
	v, ok := lookupFold(folded, key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// intValue accepts integral JSON numbers and numeric strings.
func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i), true
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		return ParseIntToken(t)
	default:
		return 0, false
	}
}

// ExtractJSON returns the first JSON object in response, looking inside
// markdown code blocks first. It returns "" when no object is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if start := strings.Index(response, "```"); start != -1 {
		start += len("```")
		// Skip any language identifier.
		if nl := strings.Index(response[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	// Find the matching closing brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
