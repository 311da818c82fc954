package application

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/softscore/internal/domain"
)

// maxSuggestionDistance bounds how far a misspelled rubric name may be from
// a registered one and still be suggested.
const maxSuggestionDistance = 3

// PromptData is the data rubric prompts are rendered with.
type PromptData struct {
	Question        string
	Answer          string
	Context         string
	ReferenceAnswer string
	Persona         string
}

// compiledRubric pairs a rubric with its parsed prompt template.
type compiledRubric struct {
	rubric domain.Rubric
	tmpl   *template.Template
}

// RubricRegistry maps rubric names to their descriptors. It is built once
// at startup and is read-only afterwards, so it is safe for concurrent use
// without locking.
type RubricRegistry struct {
	rubrics map[string]compiledRubric
	names   []string
}

// NewRubricRegistry compiles the prompt of every rubric.
// It returns an error on duplicate names or prompts that fail to parse.
func NewRubricRegistry(rubrics []domain.Rubric) (*RubricRegistry, error) {
	reg := &RubricRegistry{rubrics: make(map[string]compiledRubric, len(rubrics))}

	for _, r := range rubrics {
		if r.Name == "" {
			return nil, fmt.Errorf("rubric name cannot be empty")
		}
		if _, exists := reg.rubrics[r.Name]; exists {
			return nil, fmt.Errorf("duplicate rubric %q", r.Name)
		}

		tmpl, err := parsePrompt(r.Name, r.Prompt)
		if err != nil {
			return nil, fmt.Errorf("rubric %q: failed to parse prompt: %w", r.Name, err)
		}
		if r.Mode == "" {
			r.Mode = domain.EvalType(r.Name).Mode()
		}

		reg.rubrics[r.Name] = compiledRubric{rubric: r, tmpl: tmpl}
		reg.names = append(reg.names, r.Name)
	}
	sort.Strings(reg.names)

	return reg, nil
}

// Get returns the rubric registered under name. Unknown names yield a
// *domain.RubricError carrying the closest registered name, if any.
func (r *RubricRegistry) Get(name string) (domain.Rubric, error) {
	c, ok := r.rubrics[name]
	if !ok {
		return domain.Rubric{}, &domain.RubricError{Name: name, Suggestion: r.suggest(name)}
	}
	return c.rubric, nil
}

// Render executes the rubric's prompt template with data.
func (r *RubricRegistry) Render(name string, data PromptData) (string, error) {
	c, ok := r.rubrics[name]
	if !ok {
		return "", &domain.RubricError{Name: name, Suggestion: r.suggest(name)}
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rubric %q: failed to render prompt: %w", name, err)
	}
	return buf.String(), nil
}

// Names returns the registered rubric names in sorted order.
func (r *RubricRegistry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered rubrics.
func (r *RubricRegistry) Len() int { return len(r.rubrics) }

// suggest returns the registered name closest to name by edit distance,
// or "" when none is within maxSuggestionDistance.
func (r *RubricRegistry) suggest(name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range r.names {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
