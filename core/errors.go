package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is().
// These are generic errors that can be wrapped with additional context.
var (
	// Input errors
	ErrInputInvalid  = errors.New("input invalid")
	ErrMissingFields = errors.New("required fields missing")

	// Provider errors
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderResponse    = errors.New("provider returned malformed response")

	// Request lifecycle errors
	ErrDeadlineExceeded = errors.New("request deadline exceeded")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")

	// State errors
	ErrSessionNotFound   = errors.New("session not found")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrInvariantViolated = errors.New("internal invariant violated")

	// Operation errors
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

// Error taxonomy codes surfaced in API responses.
const (
	CodeInputInvalid        = "input_invalid"
	CodeProviderUnavailable = "provider_unavailable"
	CodeDeadlineExceeded    = "deadline_exceeded"
	CodeInvariantViolated   = "internal_invariant_violated"
	CodeRateLimited         = "rate_limited"
)

// PlanError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type PlanError struct {
	Op      string // Operation that failed (e.g., "retrieval.Search")
	Code    string // Taxonomy code (e.g., "provider_unavailable")
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error.
func (e *PlanError) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Code)
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError creates a new PlanError.
func NewPlanError(op, code string, err error) *PlanError {
	return &PlanError{Op: op, Code: code, Err: err}
}

// TaxonomyCode maps an error to its API taxonomy code.
func TaxonomyCode(err error) string {
	var pe *PlanError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	switch {
	case errors.Is(err, ErrInputInvalid), errors.Is(err, ErrMissingFields):
		return CodeInputInvalid
	case errors.Is(err, ErrProviderUnavailable):
		return CodeProviderUnavailable
	case errors.Is(err, ErrDeadlineExceeded):
		return CodeDeadlineExceeded
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInvariantViolated):
		return CodeInvariantViolated
	default:
		return CodeInvariantViolated
	}
}

// IsRetryable checks if an error is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderResponse) ||
		errors.Is(err, ErrRateLimited)
}

// IsRecoverable reports whether the pipeline can degrade instead of failing.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrRateLimited)
}
