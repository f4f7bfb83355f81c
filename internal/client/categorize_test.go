package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/climate-dashboard/internal/circuitbreaker"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"circuit open", circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
		{"schema mismatch", fmt.Errorf("%w: annual: empty", ErrSchemaMismatch), ErrorCategorySchemaMismatch},
		{"not found", ErrNotFound, ErrorCategoryNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", fmt.Errorf("exhausted retries: %w", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"timeout in message", errors.New("annual request timeout"), ErrorCategoryTimeout},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUpstreamFault(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrUpstreamFailure, true},
		{ErrRateLimited, true},
		{context.DeadlineExceeded, true},
		{errors.New("connection reset"), true},
		{ErrNotFound, false},
		{ErrSchemaMismatch, false},
		{circuitbreaker.ErrOpen, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsUpstreamFault(tt.err); got != tt.want {
			t.Errorf("IsUpstreamFault(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
