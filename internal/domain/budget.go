package domain

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded indicates that a judge call would exceed the configured
// token or call budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Usage tracks resource consumption of judge calls.
type Usage struct {
	// Tokens represents the cumulative token consumption.
	Tokens int64

	// Calls represents the cumulative judge call count.
	Calls int64
}

// BudgetExceededError reports which limit a judge call ran into.
type BudgetExceededError struct {
	// LimitType is "tokens" or "calls".
	LimitType string

	// Limit is the configured maximum.
	Limit int

	// Used is the consumption at the time of the check.
	Used int

	// Model is the judge model the call was addressed to.
	Model string
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit=%d used=%d model=%s", e.LimitType, e.Limit, e.Used, e.Model)
}

// Unwrap returns ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// NewBudgetExceededError creates a BudgetExceededError.
func NewBudgetExceededError(limitType string, limit, used int, model string) *BudgetExceededError {
	return &BudgetExceededError{
		LimitType: limitType,
		Limit:     limit,
		Used:      used,
		Model:     model,
	}
}
