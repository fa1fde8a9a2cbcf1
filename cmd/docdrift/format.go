package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"docdrift/internal/drift"
	"docdrift/internal/envelope"
	"docdrift/internal/evaluate"
	"docdrift/internal/ingest"
	"docdrift/internal/issues"
	"docdrift/internal/query"
	"docdrift/internal/scoring"
	"docdrift/internal/storage"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp *envelope.Response, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// printResponse writes resp to w in the --format selected on the command line.
func printResponse(w io.Writer, resp *envelope.Response) error {
	out, err := FormatResponse(resp, OutputFormat(formatFlag))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp *envelope.Response) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Status: %s", resp.Status))
	if resp.Meta != nil && resp.Meta.Provenance != nil {
		if p := resp.Meta.Provenance; p.Backend != "" {
			b.WriteString(fmt.Sprintf(" (backend: %s)", p.Backend))
		}
	}
	b.WriteString("\n")
	if resp.Error != nil {
		b.WriteString("Error: " + *resp.Error + "\n")
	}
	for _, w := range resp.Warnings {
		b.WriteString("Warning: " + w.Message + "\n")
	}
	if resp.Meta != nil && resp.Meta.Truncation != nil {
		b.WriteString(fmt.Sprintf("Truncated at %d results (%s)\n", resp.Meta.Truncation.Shown, resp.Meta.Truncation.Reason))
	}
	b.WriteString("\n")

	switch v := resp.Data.(type) {
	case nil:
	case *query.Neighborhood:
		formatNeighborhood(&b, v)
	case *query.APIImpact:
		formatImpact(&b, v)
	case *query.Dependencies:
		b.WriteString(fmt.Sprintf("Dependencies of %s (%d):\n", v.CodeID, len(v.Dependencies)))
		for _, d := range v.Dependencies {
			b.WriteString(fmt.Sprintf("  %s%s\n", strings.Repeat("  ", max(d.Depth-1, 0)), d.ID))
		}
	case *query.Related:
		b.WriteString(fmt.Sprintf("Related to %s (%d of %d nodes):\n", v.ID, len(v.Results), v.Subgraph))
		for _, r := range v.Results {
			b.WriteString(fmt.Sprintf("  %.4f  %-14s %s\n", r.Score, r.Kind, r.ID))
		}
	case scoring.ComponentScore:
		formatScore(&b, v)
	case *drift.Report:
		formatDrift(&b, v)
	case []*issues.DocIssue:
		formatIssues(&b, v)
	case *evaluate.Report:
		formatEvaluation(&b, v)
	case *ingest.BatchReport:
		formatBatch(&b, v)
	case []*storage.IngestRun:
		if len(v) == 0 {
			b.WriteString("No ingestion runs recorded.\n")
		}
		for _, r := range v {
			b.WriteString(fmt.Sprintf("%s  %-11s %s\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.RunID))
		}
	default:
		out, err := formatJSON(v)
		if err != nil {
			return "", err
		}
		b.WriteString(out + "\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func writeGroup(b *strings.Builder, title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("  %s (%d):\n", title, len(ids)))
	for _, id := range ids {
		b.WriteString("    - " + id + "\n")
	}
}

func formatNeighborhood(b *strings.Builder, n *query.Neighborhood) {
	b.WriteString(fmt.Sprintf("Neighborhood of %s (depth %d, %d nodes)\n", n.ComponentID, n.Depth, n.Size()))
	writeGroup(b, "Docs", n.Docs)
	writeGroup(b, "Issues", n.Issues)
	writeGroup(b, "Pull requests", n.PullRequests)
	writeGroup(b, "Slack threads", n.SlackThreads)
	writeGroup(b, "API endpoints", n.APIEndpoints)
}

func formatImpact(b *strings.Builder, i *query.APIImpact) {
	b.WriteString("Impact of " + i.EndpointID + "\n")
	if i.Provider != "" {
		b.WriteString("  Provider: " + i.Provider + "\n")
	}
	writeGroup(b, "Services", i.Services)
	writeGroup(b, "Components", i.Components)
	writeGroup(b, "Docs", i.Docs)
	writeGroup(b, "Issues", i.Issues)
	writeGroup(b, "Pull requests", i.PullRequests)
}

func formatScore(b *strings.Builder, s scoring.ComponentScore) {
	b.WriteString(fmt.Sprintf("%s  priority %.2f\n", s.ComponentID, s.Priority))
	axes := make([]string, 0, len(s.Axes))
	for a := range s.Axes {
		axes = append(axes, a)
	}
	sort.Strings(axes)
	for _, name := range axes {
		a := s.Axes[name]
		b.WriteString(fmt.Sprintf("  %-16s %6.2f  %-5s (%+.2f over %s)\n", name, a.Score, a.Trend, a.Delta, a.Window))
		if a.Summary != "" {
			b.WriteString("    " + a.Summary + "\n")
		}
	}
}

func formatDrift(b *strings.Builder, r *drift.Report) {
	if r.Clean() {
		b.WriteString("No drift: documentation matches the spec.\n")
		return
	}
	write := func(f drift.Finding) {
		b.WriteString(fmt.Sprintf("  [%s] %s\n", f.Severity, f.Message))
	}
	for _, f := range r.Global {
		write(f)
	}
	for _, ep := range r.Endpoints {
		b.WriteString(fmt.Sprintf("%s %s\n", ep.Method, ep.Path))
		for _, f := range ep.Findings {
			write(f)
		}
	}
	b.WriteString(fmt.Sprintf("\n%d errors, %d warnings\n", r.Summary.Errors, r.Summary.Warnings))
	if len(r.Summary.MissingParams) > 0 {
		b.WriteString("Missing from doc: " + strings.Join(r.Summary.MissingParams, ", ") + "\n")
	}
	if len(r.Summary.ExtraParams) > 0 {
		b.WriteString("Not in spec: " + strings.Join(r.Summary.ExtraParams, ", ") + "\n")
	}
}

func formatIssues(b *strings.Builder, list []*issues.DocIssue) {
	if len(list) == 0 {
		b.WriteString("No documentation issues.\n")
		return
	}
	for _, d := range list {
		b.WriteString(fmt.Sprintf("%-8s %-8s %s  [%s]\n", d.Severity, d.Status, d.ComponentID, strings.Join(d.DivergenceSources, ",")))
		b.WriteString("  " + d.Summary + "\n")
		b.WriteString(fmt.Sprintf("  updated %s\n", d.UpdatedAt.Format("2006-01-02 15:04")))
	}
}

func formatEvaluation(b *strings.Builder, r *evaluate.Report) {
	b.WriteString(fmt.Sprintf("Evaluated %d components, %d findings\n", r.Components, len(r.Findings)))
	for _, t := range r.Drift {
		line := fmt.Sprintf("  drift %s: %s", t.Name, t.Status)
		if t.Report != nil {
			line += fmt.Sprintf(" (%d errors, %d warnings)", t.Report.Summary.Errors, t.Report.Summary.Warnings)
		}
		b.WriteString(line + "\n")
	}
	if o := r.Outcome; o != nil {
		b.WriteString(fmt.Sprintf("Issues: %d opened, %d refreshed, %d reopened, %d resolved, %d open\n",
			o.Opened, o.Refreshed, o.Reopened, o.Resolved, len(o.Issues)))
	}
	for i, s := range r.Scores {
		if i == 5 {
			b.WriteString(fmt.Sprintf("  ... %d more\n", len(r.Scores)-5))
			break
		}
		b.WriteString(fmt.Sprintf("  %6.2f  %s\n", s.Priority, s.ComponentID))
	}
}

func formatBatch(b *strings.Builder, r *ingest.BatchReport) {
	b.WriteString(fmt.Sprintf("Run %s\n", r.RunID))
	for _, s := range r.Sources {
		b.WriteString(fmt.Sprintf("  %-12s %-11s applied %d, unchanged %d, failed %d", s.Source, s.Status, s.Applied, s.Unchanged, s.Failed))
		if s.Skipped > 0 {
			b.WriteString(fmt.Sprintf(", skipped %d", s.Skipped))
		}
		b.WriteString("\n")
		for _, e := range s.Errors {
			b.WriteString("    " + e + "\n")
		}
	}
}
