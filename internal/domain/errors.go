package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while scoring judge replies.
var (
	// ErrEmptyDistribution indicates that the candidate set for the
	// score-bearing token contained no numeric entries, or that their
	// probabilities summed to zero.
	ErrEmptyDistribution = errors.New("empty score distribution")

	// ErrUnparsableScore indicates that judge text is not an integer.
	// Resolvers record it as SentinelScore instead of returning it, and
	// ResultScore.ParseErr reports it.
	ErrUnparsableScore = errors.New("unparsable score")

	// ErrUnknownRubric indicates that a rubric name is not registered.
	ErrUnknownRubric = errors.New("unknown rubric")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// DistributionError reports that no usable score distribution could be
// built for a rubric. It always wraps ErrEmptyDistribution.
type DistributionError struct {
	// EvalName is the rubric being scored.
	EvalName string

	// Token is the chosen text of the position that was inspected.
	Token string

	// Candidates is the number of alternatives that were considered.
	Candidates int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for DistributionError.
func (e *DistributionError) Error() string {
	return fmt.Sprintf("distribution error: eval=%s, token=%q, candidates=%d, err=%v",
		e.EvalName, e.Token, e.Candidates, e.Err)
}

// Unwrap returns the underlying error.
func (e *DistributionError) Unwrap() error { return e.Err }

// NewDistributionError creates a DistributionError wrapping ErrEmptyDistribution.
func NewDistributionError(evalName string, pos TokenPosition) *DistributionError {
	return &DistributionError{
		EvalName:   evalName,
		Token:      pos.Chosen.Text,
		Candidates: len(pos.Alternatives),
		Err:        ErrEmptyDistribution,
	}
}

// RubricError reports a lookup of an unregistered rubric.
type RubricError struct {
	// Name is the requested rubric name.
	Name string

	// Suggestion is the closest registered name, if any.
	Suggestion string
}

// Error implements the error interface for RubricError.
func (e *RubricError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown rubric %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown rubric %q", e.Name)
}

// Unwrap returns ErrUnknownRubric.
func (e *RubricError) Unwrap() error { return ErrUnknownRubric }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// Unwrap returns ErrInvalidConfiguration so callers can classify the failure.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
