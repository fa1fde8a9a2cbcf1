package drift

import (
	"fmt"
	"strings"
)

// EndpointReport groups the findings of one operation.
type EndpointReport struct {
	Method   string    `json:"method"`
	Path     string    `json:"path"`
	Findings []Finding `json:"findings"`
}

// Summary aggregates a report.
type Summary struct {
	MissingParams []string     `json:"missingParams"`
	ExtraParams   []string     `json:"extraParams"`
	Errors        int          `json:"errors"`
	Warnings      int          `json:"warnings"`
	ByKind        map[Kind]int `json:"byKind"`
}

// Report is the output of Detect.
type Report struct {
	SpecVersion string           `json:"specVersion"`
	DocVersion  string           `json:"docVersion"`
	Global      []Finding        `json:"global"`
	Endpoints   []EndpointReport `json:"endpoints"`
	Summary     Summary          `json:"summary"`
}

// Findings returns every finding, global ones first.
func (r *Report) Findings() []Finding {
	out := append([]Finding(nil), r.Global...)
	for _, ep := range r.Endpoints {
		out = append(out, ep.Findings...)
	}
	return out
}

// Clean reports whether nothing was found.
func (r *Report) Clean() bool {
	return r.Summary.Errors == 0 && r.Summary.Warnings == 0
}

type detector struct {
	report *Report
	byOp   map[string]int
}

func (d *detector) global(f Finding) {
	d.report.Global = append(d.report.Global, f)
}

func (d *detector) add(method, path string, f Finding) {
	f.Method, f.Path = strings.ToUpper(method), path
	key := operationKey(method, path)
	i, ok := d.byOp[key]
	if !ok {
		i = len(d.report.Endpoints)
		d.byOp[key] = i
		d.report.Endpoints = append(d.report.Endpoints, EndpointReport{Method: f.Method, Path: path})
	}
	d.report.Endpoints[i].Findings = append(d.report.Endpoints[i].Findings, f)
}

// Detect compares spec against doc. Endpoints and sections missing a method
// or path yield malformed_input findings and are skipped, so partial inputs
// still produce partial reports. A nil input is reported as malformed.
func Detect(spec *Spec, doc *DocArtifact) *Report {
	d := &detector{report: &Report{}, byOp: map[string]int{}}
	if spec == nil || doc == nil {
		which := "spec"
		if spec != nil {
			which = "doc"
		}
		d.global(Finding{Kind: MalformedInput, Severity: SeverityError, Message: which + " is missing"})
		d.summarize()
		return d.report
	}
	d.report.SpecVersion = spec.Version
	d.report.DocVersion = doc.StatedVersion

	sections := map[string]DocSection{}
	var sectionOrder []string
	for i, s := range doc.Sections {
		if strings.TrimSpace(s.Method) == "" || strings.TrimSpace(s.Path) == "" {
			d.global(Finding{Kind: MalformedInput, Severity: SeverityError,
				Message: fmt.Sprintf("doc section %d has no method or path", i+1)})
			continue
		}
		key := operationKey(s.Method, s.Path)
		if _, dup := sections[key]; dup {
			continue
		}
		sections[key] = s
		sectionOrder = append(sectionOrder, key)
	}

	matched := map[string]bool{}
	for i, ep := range spec.Endpoints {
		if strings.TrimSpace(ep.Method) == "" || strings.TrimSpace(ep.Path) == "" {
			d.global(Finding{Kind: MalformedInput, Severity: SeverityError,
				Message: fmt.Sprintf("spec endpoint %d has no method or path", i+1)})
			continue
		}
		key := operationKey(ep.Method, ep.Path)
		section, ok := sections[key]
		if !ok {
			d.add(ep.Method, ep.Path, Finding{Kind: MissingEndpointInDoc, Severity: SeverityError,
				Message: fmt.Sprintf("%s is not documented", key)})
			continue
		}
		matched[key] = true
		d.compareParams(ep, section)
	}

	for _, key := range sectionOrder {
		if matched[key] {
			continue
		}
		s := sections[key]
		d.add(s.Method, s.Path, Finding{Kind: ExtraEndpointInDoc, Severity: SeverityWarning,
			Message: fmt.Sprintf("%s is documented but not in the spec", key)})
	}

	if spec.Version != "" && normalizeVersion(spec.Version) != normalizeVersion(doc.StatedVersion) {
		actual := doc.StatedVersion
		if actual == "" {
			actual = "(none)"
		}
		d.global(Finding{Kind: VersionMismatch, Severity: SeverityWarning,
			Message:  fmt.Sprintf("spec version %s, doc states %s", spec.Version, actual),
			Expected: spec.Version, Actual: doc.StatedVersion})
	}

	d.summarize()
	return d.report
}

func (d *detector) compareParams(ep Endpoint, section DocSection) {
	docParams := map[string]Param{}
	for _, p := range section.Params {
		if k := paramKey(p.Name); k != "" {
			if _, dup := docParams[k]; !dup {
				docParams[k] = p
			}
		}
	}
	specParams := map[string]bool{}

	var shared []Param
	for _, p := range ep.Params {
		k := paramKey(p.Name)
		if k == "" {
			d.add(ep.Method, ep.Path, Finding{Kind: MalformedInput, Severity: SeverityError,
				Message: "spec parameter without a name"})
			continue
		}
		// Docs name parameters without a location, so the first spec
		// parameter of a name stands for all of them.
		if specParams[k] {
			continue
		}
		specParams[k] = true
		if _, ok := docParams[k]; !ok {
			d.add(ep.Method, ep.Path, Finding{Kind: MissingParam, Severity: SeverityError, Param: p.Name,
				Message: fmt.Sprintf("parameter %s is not documented", p.Name)})
			continue
		}
		shared = append(shared, p)
	}

	seen := map[string]bool{}
	for _, p := range section.Params {
		k := paramKey(p.Name)
		if k == "" || specParams[k] || seen[k] {
			continue
		}
		seen[k] = true
		d.add(ep.Method, ep.Path, Finding{Kind: ExtraParam, Severity: SeverityWarning, Param: p.Name,
			Message: fmt.Sprintf("documented parameter %s is not in the spec", p.Name)})
	}

	for _, sp := range shared {
		dp := docParams[paramKey(sp.Name)]
		if sp.Required != dp.Required {
			d.add(ep.Method, ep.Path, Finding{Kind: RequiredMismatch, Severity: SeverityError, Param: sp.Name,
				Message:  fmt.Sprintf("parameter %s is %s in the spec but %s in the doc", sp.Name, requiredWord(sp.Required), requiredWord(dp.Required)),
				Expected: requiredWord(sp.Required), Actual: requiredWord(dp.Required)})
		}
		if sp.Type != "" && dp.Type != "" && !strings.EqualFold(strings.TrimSpace(sp.Type), strings.TrimSpace(dp.Type)) {
			d.add(ep.Method, ep.Path, Finding{Kind: TypeMismatch, Severity: SeverityWarning, Param: sp.Name,
				Message:  fmt.Sprintf("parameter %s is %s in the spec but %s in the doc", sp.Name, sp.Type, dp.Type),
				Expected: sp.Type, Actual: dp.Type})
		}
		if normalizeText(sp.Description) != normalizeText(dp.Description) {
			d.add(ep.Method, ep.Path, Finding{Kind: DescriptionMismatch, Severity: SeverityWarning, Param: sp.Name,
				Message:  fmt.Sprintf("parameter %s description differs", sp.Name),
				Expected: sp.Description, Actual: dp.Description})
		}
	}
}

func requiredWord(required bool) string {
	if required {
		return "required"
	}
	return "optional"
}

func (d *detector) summarize() {
	s := Summary{MissingParams: []string{}, ExtraParams: []string{}, ByKind: map[Kind]int{}}
	for _, f := range d.report.Findings() {
		s.ByKind[f.Kind]++
		switch f.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		}
		switch f.Kind {
		case MissingParam:
			s.MissingParams = append(s.MissingParams, f.Param)
		case ExtraParam:
			s.ExtraParams = append(s.ExtraParams, f.Param)
		}
	}
	if d.report.Global == nil {
		d.report.Global = []Finding{}
	}
	if d.report.Endpoints == nil {
		d.report.Endpoints = []EndpointReport{}
	}
	d.report.Summary = s
}
