package export

import (
	"fmt"
	"sort"
	"strings"

	"docdrift/internal/graph"
	"docdrift/internal/issues"
)

// ComponentSummary is the one-hop footprint of a component in an archive.
type ComponentSummary struct {
	ID     string                 `json:"id"`
	ByKind map[graph.NodeKind]int `json:"byKind"`
	Issue  *issues.DocIssue       `json:"issue,omitempty"`
}

// Total counts every neighbor.
func (c ComponentSummary) Total() int {
	n := 0
	for _, v := range c.ByKind {
		n += v
	}
	return n
}

// Organizer groups an archive by component for human review.
type Organizer struct {
	archive *Archive
}

// NewOrganizer creates an organizer.
func NewOrganizer(a *Archive) *Organizer {
	return &Organizer{archive: a}
}

// Components returns a summary per component, components with open issues
// first, then by neighbor count.
func (o *Organizer) Components() []ComponentSummary {
	if o.archive == nil {
		return nil
	}

	kinds := make(map[string]graph.NodeKind, len(o.archive.Nodes))
	byID := make(map[string]*ComponentSummary)
	for _, n := range o.archive.Nodes {
		kinds[n.ID] = n.Kind
		if n.Kind == graph.KindComponent {
			byID[n.ID] = &ComponentSummary{ID: n.ID, ByKind: map[graph.NodeKind]int{}}
		}
	}

	seen := make(map[string]bool)
	for _, e := range o.archive.Edges {
		for _, pair := range [][2]string{{e.Src, e.Dst}, {e.Dst, e.Src}} {
			comp, other := pair[0], pair[1]
			s, ok := byID[comp]
			if !ok || seen[comp+"|"+other] {
				continue
			}
			seen[comp+"|"+other] = true
			s.ByKind[kinds[other]]++
		}
	}
	for _, d := range o.archive.Issues {
		if s, ok := byID[d.ComponentID]; ok && d.Status == issues.Open {
			s.Issue = d
		}
	}

	out := make([]ComponentSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := issueRank(out[i].Issue), issueRank(out[j].Issue)
		if ri != rj {
			return ri > rj
		}
		if ti, tj := out[i].Total(), out[j].Total(); ti != tj {
			return ti > tj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func issueRank(d *issues.DocIssue) int {
	if d == nil {
		return 0
	}
	return d.Severity.Rank()
}

// FormatText renders the archive as a component map.
func (o *Organizer) FormatText() string {
	var sb strings.Builder
	if o.archive == nil {
		return ""
	}
	m := o.archive.Metadata
	sb.WriteString(fmt.Sprintf("# Snapshot from %s backend\n", m.Backend))
	sb.WriteString(fmt.Sprintf("# Generated: %s\n", m.Generated.Format("2006-01-02T15:04:05Z07:00")))
	sb.WriteString(fmt.Sprintf("# Nodes: %d | Edges: %d | Issues: %d\n\n", m.NodeCount, m.EdgeCount, m.IssueCount))

	for _, c := range o.Components() {
		header := "## " + c.ID
		if c.Issue != nil {
			header += fmt.Sprintf(" [%s] %s", c.Issue.Severity, c.Issue.Summary)
		}
		sb.WriteString(header + "\n")

		kinds := make([]string, 0, len(c.ByKind))
		for k := range c.ByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			sb.WriteString(fmt.Sprintf("  %-16s %d\n", k, c.ByKind[graph.NodeKind(k)]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
