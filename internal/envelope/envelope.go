// Package envelope provides the response wrapper returned by every query,
// ingestion and evaluation surface. The explicit Status lets consumers tell
// "no results" apart from "data unavailable".
package envelope

// Status is the outcome of an operation.
type Status string

const (
	// OK indicates the operation completed against a healthy store.
	OK Status = "OK"
	// Unavailable indicates the store was disabled or unreachable.
	Unavailable Status = "UNAVAILABLE"
	// NotFound indicates the referenced entity does not exist.
	NotFound Status = "NOT_FOUND"
	// Invalid indicates the input failed validation.
	Invalid Status = "INVALID"
	// Partial indicates some parts of the operation failed or were cut short.
	Partial Status = "PARTIAL"
)

// Worse returns the more severe of two statuses.
// Ordering: OK < NOT_FOUND < PARTIAL < INVALID < UNAVAILABLE.
func Worse(a, b Status) Status {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func rank(s Status) int {
	switch s {
	case OK, "":
		return 0
	case NotFound:
		return 1
	case Partial:
		return 2
	case Invalid:
		return 3
	default:
		return 4
	}
}

// Provenance describes where the data came from.
type Provenance struct {
	Backend string `json:"backend,omitempty"` // sqlite, postgres, memory, disabled
	RunID   string `json:"runId,omitempty"`   // ingestion or evaluation run
}

// Truncation describes result trimming.
type Truncation struct {
	IsTruncated bool   `json:"isTruncated"`
	Shown       int    `json:"shown,omitempty"`
	Total       int    `json:"total,omitempty"`
	Reason      string `json:"reason,omitempty"` // "max-nodes", "deadline"
}

// Meta holds response metadata.
type Meta struct {
	Provenance *Provenance `json:"provenance,omitempty"`
	Truncation *Truncation `json:"truncation,omitempty"`
}

// Warning represents a non-fatal issue.
type Warning struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Response is the standard envelope for query and command results.
type Response struct {
	SchemaVersion string      `json:"schemaVersion"`
	Status        Status      `json:"status"`
	Fallback      bool        `json:"fallback,omitempty"`
	Data          interface{} `json:"data"`
	Meta          *Meta       `json:"meta,omitempty"`
	Warnings      []Warning   `json:"warnings,omitempty"`
	Error         *string     `json:"error,omitempty"`
}

// CurrentSchemaVersion is the current envelope schema version.
const CurrentSchemaVersion = "1.0"
