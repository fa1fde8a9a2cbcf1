package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// StoreUnavailable indicates the graph store is disabled or unreachable
	StoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// PartialIngestionFailure indicates one or more ingestion sources failed
	PartialIngestionFailure ErrorCode = "PARTIAL_INGESTION_FAILURE"
	// MalformedSpecOrDoc indicates a drift input is missing required structure
	MalformedSpecOrDoc ErrorCode = "MALFORMED_SPEC_OR_DOC"
	// UnknownEntityReference indicates an id with no matching node
	UnknownEntityReference ErrorCode = "UNKNOWN_ENTITY_REFERENCE"
	// InvalidEvent indicates an ingestion record failed validation
	InvalidEvent ErrorCode = "INVALID_EVENT"
	// DanglingEdge indicates an edge whose endpoint does not exist
	DanglingEdge ErrorCode = "DANGLING_EDGE"
	// Unsupported indicates the backend cannot serve the operation
	Unsupported ErrorCode = "UNSUPPORTED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Sentinel errors for errors.Is checks across packages.
var (
	ErrStoreUnavailable = stderrors.New("graph store unavailable")
	ErrNotFound         = stderrors.New("entity not found")
	ErrUnsupported      = stderrors.New("operation not supported by backend")
	ErrDanglingEdge     = stderrors.New("edge endpoint missing")
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// DriftError represents an error with code, message, and suggestions
type DriftError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new DriftError with the default fixes for its code
func New(code ErrorCode, message string, cause error) *DriftError {
	return &DriftError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *DriftError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DriftError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *DriftError) WithDetails(details interface{}) *DriftError {
	e.Details = details
	return e
}

// Is lets errors.Is match a DriftError against the sentinel for its code.
func (e *DriftError) Is(target error) bool {
	switch e.Code {
	case StoreUnavailable:
		return target == ErrStoreUnavailable
	case UnknownEntityReference:
		return target == ErrNotFound
	case Unsupported:
		return target == ErrUnsupported
	case DanglingEdge:
		return target == ErrDanglingEdge
	}
	return false
}

// CodeOf returns the ErrorCode carried by err, or InternalError.
func CodeOf(err error) ErrorCode {
	var de *DriftError
	if stderrors.As(err, &de) {
		return de.Code
	}
	switch {
	case stderrors.Is(err, ErrStoreUnavailable):
		return StoreUnavailable
	case stderrors.Is(err, ErrNotFound):
		return UnknownEntityReference
	case stderrors.Is(err, ErrUnsupported):
		return Unsupported
	case stderrors.Is(err, ErrDanglingEdge):
		return DanglingEdge
	}
	return InternalError
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	StoreUnavailable: {
		{
			Type:        RunCommand,
			Command:     "docdrift config show",
			Safe:        true,
			Description: "Check store.enabled and the connection parameters",
		},
	},
	PartialIngestionFailure: {
		{
			Type:        RunCommand,
			Command:     "docdrift ingest ${batch_file}",
			Safe:        true,
			Description: "Re-run the batch; upserts are idempotent",
		},
	},
	MalformedSpecOrDoc: {
		{
			Type:        OpenDocs,
			Description: "Every endpoint needs a method and a path",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
