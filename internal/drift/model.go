// Package drift compares a structured API specification against its
// documentation and reports field-level discrepancies.
package drift

import (
	"regexp"
	"strings"

	"docdrift/internal/graph"
)

// Param is one request parameter.
type Param struct {
	Name        string `json:"name" yaml:"name"`
	In          string `json:"in,omitempty" yaml:"in"` // path, query, header, body
	Type        string `json:"type,omitempty" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Endpoint is one operation of a spec.
type Endpoint struct {
	Method string  `json:"method" yaml:"method"`
	Path   string  `json:"path" yaml:"path"`
	Params []Param `json:"params" yaml:"params"`
}

// Spec is a parsed API specification.
type Spec struct {
	Title     string     `json:"title,omitempty" yaml:"title"`
	Version   string     `json:"version" yaml:"version"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// DocSection documents one operation.
type DocSection struct {
	Method string  `json:"method" yaml:"method"`
	Path   string  `json:"path" yaml:"path"`
	Params []Param `json:"params" yaml:"params"`
}

// DocArtifact is parsed documentation.
type DocArtifact struct {
	URL           string       `json:"url,omitempty" yaml:"url"`
	StatedVersion string       `json:"statedVersion" yaml:"stated_version"`
	Sections      []DocSection `json:"sections" yaml:"endpoint_sections"`
}

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rank orders severities; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	}
	return 0
}

// Kind classifies a finding.
type Kind string

const (
	MissingEndpointInDoc Kind = "missing_endpoint_in_doc"
	ExtraEndpointInDoc   Kind = "extra_endpoint_in_doc"
	MissingParam         Kind = "missing_param"
	ExtraParam           Kind = "extra_param"
	RequiredMismatch     Kind = "required_mismatch"
	DescriptionMismatch  Kind = "description_mismatch"
	TypeMismatch         Kind = "type_mismatch"
	VersionMismatch      Kind = "version_mismatch"
	MalformedInput       Kind = "malformed_input"
)

// Finding is one discrepancy.
type Finding struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Method   string   `json:"method,omitempty"`
	Path     string   `json:"path,omitempty"`
	Param    string   `json:"param,omitempty"`
	Message  string   `json:"message"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
}

// Operation returns "METHOD /path" or "" for global findings.
func (f Finding) Operation() string {
	if f.Method == "" && f.Path == "" {
		return ""
	}
	return f.Method + " " + f.Path
}

var spaces = regexp.MustCompile(`\s+`)

// operationKey normalizes (method, path) for matching: upper-case method,
// {param} placeholders and no trailing slash.
func operationKey(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + graph.EndpointPath(path)
}

func paramKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// normalizeText lower-cases and collapses whitespace.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(spaces.ReplaceAllString(s, " ")))
}

// normalizeVersion strips a leading v and trailing .0 components so 2.0 and 2.0.0 compare equal.
func normalizeVersion(v string) string {
	v = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "v")
	for strings.HasSuffix(v, ".0") && strings.Count(v, ".") > 0 {
		v = strings.TrimSuffix(v, ".0")
	}
	return v
}
