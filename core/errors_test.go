package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestPlanErrorUnwrap(t *testing.T) {
	err := &PlanError{
		Op:   "retrieval.Search",
		Code: CodeProviderUnavailable,
		Err:  ErrProviderUnavailable,
	}

	if !errors.Is(err, ErrProviderUnavailable) {
		t.Error("errors.Is() failed to match the wrapped sentinel")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	var pe *PlanError
	if !errors.As(wrapped, &pe) {
		t.Fatal("errors.As() failed to recover *PlanError through wrapping")
	}
	if pe.Op != "retrieval.Search" {
		t.Errorf("Op = %q, want retrieval.Search", pe.Op)
	}
}

func TestPlanErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *PlanError
		want string
	}{
		{
			name: "op and cause",
			err:  &PlanError{Op: "intake.Parse", Err: ErrMissingFields},
			want: "intake.Parse: required fields missing",
		},
		{
			name: "message only",
			err:  &PlanError{Code: CodeInputInvalid, Message: "days must be positive"},
			want: "days must be positive",
		},
		{
			name: "code only",
			err:  &PlanError{Code: CodeRateLimited},
			want: "rate_limited error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaxonomyCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"explicit code wins", &PlanError{Code: CodeDeadlineExceeded, Err: ErrInputInvalid}, CodeDeadlineExceeded},
		{"input sentinel", fmt.Errorf("x: %w", ErrInputInvalid), CodeInputInvalid},
		{"missing fields sentinel", ErrMissingFields, CodeInputInvalid},
		{"provider sentinel", ErrProviderUnavailable, CodeProviderUnavailable},
		{"deadline sentinel", ErrDeadlineExceeded, CodeDeadlineExceeded},
		{"rate limit sentinel", ErrRateLimited, CodeRateLimited},
		{"unknown maps to invariant", errors.New("mystery"), CodeInvariantViolated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TaxonomyCode(tt.err); got != tt.want {
				t.Errorf("TaxonomyCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("call: %w", ErrProviderUnavailable)) {
		t.Error("provider unavailable should be retryable")
	}
	if !IsRetryable(ErrRateLimited) {
		t.Error("rate limited should be retryable")
	}
	if IsRetryable(ErrInputInvalid) {
		t.Error("input errors must never be retried")
	}
	if IsRetryable(ErrDeadlineExceeded) {
		t.Error("deadline errors must never be retried")
	}
}
