package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	err := New(StoreUnavailable, "graph store unreachable", cause)

	if err.Code != StoreUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, StoreUnavailable)
	}
	if err.Message != "graph store unreachable" {
		t.Errorf("Message = %q, want %q", err.Message, "graph store unreachable")
	}
	if len(err.SuggestedFixes) != 1 {
		t.Errorf("len(SuggestedFixes) = %d, want 1", len(err.SuggestedFixes))
	}
}

func TestDriftError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      StoreUnavailable,
			message:   "postgres not reachable",
			cause:     errors.New("connection refused"),
			wantParts: []string{"STORE_UNAVAILABLE", "postgres not reachable", "connection refused"},
		},
		{
			name:      "without cause",
			code:      UnknownEntityReference,
			message:   "no node comp:ghost",
			cause:     nil,
			wantParts: []string{"UNKNOWN_ENTITY_REFERENCE", "no node comp:ghost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, missing %q", got, part)
				}
			}
		})
	}
}

func TestDriftError_Is(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		target error
	}{
		{StoreUnavailable, ErrStoreUnavailable},
		{UnknownEntityReference, ErrNotFound},
		{Unsupported, ErrUnsupported},
		{DanglingEdge, ErrDanglingEdge},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			wrapped := fmt.Errorf("query: %w", New(tt.code, "x", nil))
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("errors.Is(%s, %v) = false", tt.code, tt.target)
			}
		})
	}

	if errors.Is(New(InternalError, "x", nil), ErrStoreUnavailable) {
		t.Error("INTERNAL_ERROR should not match ErrStoreUnavailable")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"drift error", New(MalformedSpecOrDoc, "no path", nil), MalformedSpecOrDoc},
		{"wrapped sentinel", fmt.Errorf("open: %w", ErrStoreUnavailable), StoreUnavailable},
		{"not found", ErrNotFound, UnknownEntityReference},
		{"plain", errors.New("boom"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDriftError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(InternalError, "wrapped", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(PartialIngestionFailure); len(fixes) == 0 {
		t.Error("expected fixes for PARTIAL_INGESTION_FAILURE")
	}
	if fixes := GetSuggestedFixes(InternalError); fixes != nil {
		t.Errorf("expected no fixes for INTERNAL_ERROR, got %v", fixes)
	}
}
