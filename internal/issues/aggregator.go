package issues

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"
)

// Outcome counts what one Apply did.
type Outcome struct {
	Opened    int         `json:"opened"`
	Refreshed int         `json:"refreshed"`
	Reopened  int         `json:"reopened"`
	Unchanged int         `json:"unchanged"`
	Missed    int         `json:"missed"`
	Resolved  int         `json:"resolved"`
	Issues    []*DocIssue `json:"issues"`
}

// Aggregator folds findings into DocIssues.
type Aggregator struct {
	repo          Repository
	resolveAfter  int
	sourceEnabled func(source string) bool
	logger        *slog.Logger
}

// NewAggregator creates an aggregator. An open issue is resolved after
// resolveAfter consecutive cycles without findings (minimum 1).
// sourceEnabled gates signal sources; nil enables all.
func NewAggregator(repo Repository, resolveAfter int, sourceEnabled func(string) bool, logger *slog.Logger) *Aggregator {
	if resolveAfter < 1 {
		resolveAfter = 1
	}
	if sourceEnabled == nil {
		sourceEnabled = func(string) bool { return true }
	}
	return &Aggregator{repo: repo, resolveAfter: resolveAfter, sourceEnabled: sourceEnabled, logger: logger}
}

// Repository returns the backing repository.
func (a *Aggregator) Repository() Repository { return a.repo }

// Apply folds one complete evaluation cycle: components with findings get
// opened, refreshed or reopened issues, and open issues without findings
// count a miss toward resolution.
func (a *Aggregator) Apply(ctx context.Context, findings []Finding, now time.Time) (*Outcome, error) {
	return a.apply(ctx, findings, now, true)
}

// ApplyPartial folds findings from an incomplete cycle. Missing findings are
// a data gap, not a resolution, so no misses are counted.
func (a *Aggregator) ApplyPartial(ctx context.Context, findings []Finding, now time.Time) (*Outcome, error) {
	return a.apply(ctx, findings, now, false)
}

type group struct {
	severity Severity
	sources  []string
	links    []Link
	lines    []Finding
}

func (a *Aggregator) apply(ctx context.Context, findings []Finding, now time.Time, complete bool) (*Outcome, error) {
	now = now.UTC()
	groups := a.group(findings)

	existing, err := a.repo.List(ctx, ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load doc issues: %w", err)
	}
	byComp := make(map[string]*DocIssue, len(existing))
	for _, d := range existing {
		byComp[d.ComponentID] = d
	}

	out := &Outcome{}
	var changed []*DocIssue

	comps := make([]string, 0, len(groups))
	for c := range groups {
		comps = append(comps, c)
	}
	sort.Strings(comps)

	for _, comp := range comps {
		g := groups[comp]
		summary := g.summary()
		d, ok := byComp[comp]
		switch {
		case !ok:
			d = &DocIssue{
				ID:          IssueID(comp),
				ComponentID: comp,
				Status:      Open,
				DetectedAt:  now,
			}
			out.Opened++
			a.logger.Info("Doc issue opened", "component", comp, "severity", g.severity)
		case d.Status == Resolved:
			d.Status = Open
			d.ResolvedAt = nil
			out.Reopened++
			a.logger.Info("Doc issue reopened", "component", comp, "severity", g.severity)
		case d.Severity == g.severity && d.Summary == summary &&
			slices.Equal(d.DivergenceSources, g.sources) && slices.Equal(d.SourceLinks, g.links):
			if d.MissedCycles != 0 {
				d.MissedCycles = 0
				changed = append(changed, d)
			}
			out.Unchanged++
			continue
		default:
			out.Refreshed++
		}
		d.Severity = g.severity
		d.Summary = summary
		d.DivergenceSources = g.sources
		d.SourceLinks = g.links
		d.MissedCycles = 0
		d.UpdatedAt = later(now, d.DetectedAt)
		changed = append(changed, d)
	}

	if complete {
		for _, d := range existing {
			if d.Status != Open {
				continue
			}
			if _, ok := groups[d.ComponentID]; ok {
				continue
			}
			d.MissedCycles++
			if d.MissedCycles >= a.resolveAfter {
				resolvedAt := now
				d.Status = Resolved
				d.ResolvedAt = &resolvedAt
				d.UpdatedAt = later(now, d.DetectedAt)
				out.Resolved++
				a.logger.Info("Doc issue resolved", "component", d.ComponentID, "missedCycles", d.MissedCycles)
			} else {
				out.Missed++
			}
			changed = append(changed, d)
		}
	}

	if len(changed) > 0 {
		if err := a.repo.Save(ctx, changed...); err != nil {
			return nil, fmt.Errorf("failed to save doc issues: %w", err)
		}
	}

	out.Issues, err = a.repo.List(ctx, ListOptions{Status: Open})
	if err != nil {
		return nil, fmt.Errorf("failed to list doc issues: %w", err)
	}
	return out, nil
}

// group merges findings per component. Disabled sources are dropped from
// sources and links; a finding whose sources are all disabled is ignored.
func (a *Aggregator) group(findings []Finding) map[string]*group {
	groups := map[string]*group{}
	for _, f := range findings {
		if f.ComponentID == "" || !f.Severity.Valid() {
			a.logger.Warn("Skipping malformed finding", "component", f.ComponentID, "severity", f.Severity)
			continue
		}
		var sources []string
		for _, s := range f.Sources {
			if a.sourceEnabled(s) {
				sources = append(sources, s)
			}
		}
		if len(f.Sources) > 0 && len(sources) == 0 {
			continue
		}

		g, ok := groups[f.ComponentID]
		if !ok {
			g = &group{sources: []string{}, links: []Link{}}
			groups[f.ComponentID] = g
		}
		g.severity = Max(g.severity, f.Severity)
		for _, s := range sources {
			if !slices.Contains(g.sources, s) {
				g.sources = append(g.sources, s)
			}
		}
		for _, l := range f.Links {
			if a.sourceEnabled(l.Source) && !slices.Contains(g.links, l) {
				g.links = append(g.links, l)
			}
		}
		g.lines = append(g.lines, f)
	}
	for _, g := range groups {
		sort.Strings(g.sources)
		sort.Slice(g.links, func(i, j int) bool {
			if g.links[i].Source != g.links[j].Source {
				return g.links[i].Source < g.links[j].Source
			}
			return g.links[i].Ref < g.links[j].Ref
		})
	}
	return groups
}

// summary joins finding summaries, worst first.
func (g *group) summary() string {
	lines := append([]Finding(nil), g.lines...)
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Severity.Rank() > lines[j].Severity.Rank()
	})
	parts := make([]string, 0, len(lines))
	for _, f := range lines {
		if s := strings.TrimSpace(f.Summary); s != "" && !slices.Contains(parts, s) {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}

func later(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
