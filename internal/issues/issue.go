// Package issues turns scoring and drift findings into DocIssues: one issue
// per component, severity-ranked, opened, refreshed and resolved across
// evaluation cycles.
package issues

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"docdrift/internal/config"
)

// Severity of a DocIssue.
type Severity string

const (
	Critical Severity = "critical"
	High     Severity = "high"
	Medium   Severity = "medium"
	Low      Severity = "low"
)

// Rank orders severities; higher is worse. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case Critical:
		return 4
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	}
	return 0
}

// Valid reports whether s is one of the four severities.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Max returns the worse of two severities.
func Max(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Status of a DocIssue.
type Status string

const (
	Open     Status = "open"
	Resolved Status = "resolved"
)

// Link points at the evidence behind an issue, tagged with its signal source.
type Link struct {
	Source string `json:"source"`
	Ref    string `json:"ref"`
}

// DocIssue is an aggregated documentation problem tied to a component.
type DocIssue struct {
	ID                string     `json:"id"`
	ComponentID       string     `json:"componentId"`
	Severity          Severity   `json:"severity"`
	Status            Status     `json:"status"`
	DivergenceSources []string   `json:"divergenceSources"`
	Summary           string     `json:"summary"`
	SourceLinks       []Link     `json:"sourceLinks"`
	DetectedAt        time.Time  `json:"detectedAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	MissedCycles      int        `json:"missedCycles"`
}

func (d *DocIssue) clone() *DocIssue {
	c := *d
	c.DivergenceSources = append([]string(nil), d.DivergenceSources...)
	c.SourceLinks = append([]Link(nil), d.SourceLinks...)
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// Finding is one scoring or drift observation about a component.
type Finding struct {
	ComponentID string   `json:"componentId"`
	Sources     []string `json:"sources"`
	Severity    Severity `json:"severity"`
	Summary     string   `json:"summary"`
	Links       []Link   `json:"links,omitempty"`
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docdrift:docissue"))

// IssueID derives the stable DocIssue id of a component.
func IssueID(componentID string) string {
	return "docissue:" + uuid.NewSHA1(idNamespace, []byte(componentID)).String()
}

// Rank sorts issues by severity descending, then most recently updated.
func Rank(list []*DocIssue) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// DriftSeverity maps drift finding counts to a severity. ok is false when
// there is nothing to report.
func DriftSeverity(errorCount, warningCount int, cfg config.SeverityConfig) (sev Severity, ok bool) {
	switch {
	case errorCount > 0 && errorCount >= cfg.CriticalErrorCount:
		return Critical, true
	case errorCount > 0:
		return High, true
	case warningCount > 0 && warningCount >= cfg.MediumWarningCount:
		return Medium, true
	case warningCount > 0:
		return Low, true
	}
	return "", false
}

// ScoreSeverity maps an axis score to a severity. Scores below the low
// threshold are not findings.
func ScoreSeverity(score float64, t config.ScoreThresholds) (sev Severity, ok bool) {
	switch {
	case score >= t.Critical:
		return Critical, true
	case score >= t.High:
		return High, true
	case score >= t.Medium:
		return Medium, true
	case score >= t.Low:
		return Low, true
	}
	return "", false
}
