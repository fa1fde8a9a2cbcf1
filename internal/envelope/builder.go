package envelope

import (
	"docdrift/internal/errors"
)

// Builder constructs Response envelopes using a fluent API.
type Builder struct {
	resp *Response
}

// New creates a new envelope builder with status OK.
func New() *Builder {
	return &Builder{
		resp: &Response{
			SchemaVersion: CurrentSchemaVersion,
			Status:        OK,
		},
	}
}

// Data sets the payload.
func (b *Builder) Data(data interface{}) *Builder {
	b.resp.Data = data
	return b
}

// Status sets the status. A status other than OK marks the data as a fallback.
func (b *Builder) Status(s Status) *Builder {
	b.resp.Status = s
	b.resp.Fallback = s == Unavailable
	return b
}

// Backend records which store served the data.
func (b *Builder) Backend(name string) *Builder {
	b.meta().Provenance = b.provenance()
	b.resp.Meta.Provenance.Backend = name
	return b
}

// RunID records the ingestion or evaluation run id.
func (b *Builder) RunID(id string) *Builder {
	b.meta().Provenance = b.provenance()
	b.resp.Meta.Provenance.RunID = id
	return b
}

// WithTruncation adds truncation metadata.
func (b *Builder) WithTruncation(truncated bool, shown, total int, reason string) *Builder {
	if !truncated {
		return b
	}
	b.meta().Truncation = &Truncation{
		IsTruncated: true,
		Shown:       shown,
		Total:       total,
		Reason:      reason,
	}
	return b
}

// Warning adds a warning message.
func (b *Builder) Warning(msg string) *Builder {
	b.resp.Warnings = append(b.resp.Warnings, Warning{Message: msg})
	return b
}

// WarningWithCode adds a warning with a code.
func (b *Builder) WarningWithCode(code, msg string) *Builder {
	b.resp.Warnings = append(b.resp.Warnings, Warning{Code: code, Message: msg})
	return b
}

// Error sets the error field and derives the status from the error code.
func (b *Builder) Error(err error) *Builder {
	if err == nil {
		return b
	}
	msg := err.Error()
	b.resp.Error = &msg
	return b.Status(StatusOf(err))
}

// Build returns the completed response envelope.
func (b *Builder) Build() *Response {
	return b.resp
}

func (b *Builder) meta() *Meta {
	if b.resp.Meta == nil {
		b.resp.Meta = &Meta{}
	}
	return b.resp.Meta
}

func (b *Builder) provenance() *Provenance {
	if b.resp.Meta.Provenance == nil {
		return &Provenance{}
	}
	return b.resp.Meta.Provenance
}

// StatusOf maps an error to the status a caller should report.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}
	switch errors.CodeOf(err) {
	case errors.UnknownEntityReference:
		return NotFound
	case errors.InvalidEvent, errors.MalformedSpecOrDoc, errors.DanglingEdge, errors.Unsupported:
		return Invalid
	case errors.PartialIngestionFailure:
		return Partial
	default:
		return Unavailable
	}
}

// Operational creates a simple OK envelope.
func Operational(data interface{}) *Response {
	return &Response{
		SchemaVersion: CurrentSchemaVersion,
		Status:        OK,
		Data:          data,
	}
}
