// Package evaluate runs evaluation cycles: score every component, check each
// configured spec/doc pair for drift, and fold the findings into DocIssues.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docdrift/internal/config"
	"docdrift/internal/drift"
	"docdrift/internal/envelope"
	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
	"docdrift/internal/issues"
	"docdrift/internal/scoring"
	"docdrift/internal/signals"
)

// DriftSource tags drift findings in DocIssue sources and links.
const DriftSource = "drift"

// TargetReport is the drift outcome of one configured spec/doc pair.
type TargetReport struct {
	Name       string          `json:"name"`
	Status     envelope.Status `json:"status"`
	Error      string          `json:"error,omitempty"`
	Components []string        `json:"components"`
	Report     *drift.Report   `json:"report,omitempty"`
}

// Report summarizes one cycle.
type Report struct {
	Status     envelope.Status          `json:"status"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt"`
	Components int                      `json:"components"`
	Scores     []scoring.ComponentScore `json:"scores"`
	Drift      []TargetReport           `json:"drift"`
	Findings   []issues.Finding         `json:"findings"`
	Outcome    *issues.Outcome          `json:"outcome,omitempty"`
	Warnings   []string                 `json:"warnings,omitempty"`
}

// Evaluator wires the store, scorer and aggregator together. Cycles are serialized.
type Evaluator struct {
	store  graphstore.Store
	cfg    *config.Config
	root   string
	scorer *scoring.Scorer
	agg    *issues.Aggregator
	logger *slog.Logger

	mu sync.Mutex
}

// New builds an evaluator from configuration. Relative spec and doc paths in
// drift targets resolve against root.
func New(store graphstore.Store, cfg *config.Config, root string, repo issues.Repository, logger *slog.Logger) *Evaluator {
	registry := signals.NewRegistry(store, cfg)
	scorer := scoring.NewScorer(registry, scoring.ParamsFromConfig(cfg), cfg.Scoring.Lookback(), cfg.Ingest.Concurrency, logger)
	agg := issues.NewAggregator(repo, cfg.Severity.ResolveAfterCycles, cfg.ModalityEnabled, logger)
	return &Evaluator{store: store, cfg: cfg, root: root, scorer: scorer, agg: agg, logger: logger}
}

// Scorer returns the scorer used by cycles.
func (e *Evaluator) Scorer() *scoring.Scorer { return e.scorer }

// Issues returns the issue repository.
func (e *Evaluator) Issues() issues.Repository { return e.agg.Repository() }

// RunCycle evaluates every component as of now. A store outage or a failed
// drift target makes the cycle incomplete: findings still open or refresh
// issues but no issue counts a miss. A cancelled context yields PARTIAL with
// whatever was computed.
func (e *Evaluator) RunCycle(ctx context.Context, now time.Time) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = now.UTC()
	rep := &Report{Status: envelope.OK, StartedAt: now, Scores: []scoring.ComponentScore{}, Drift: []TargetReport{}}
	complete := true
	degrade := func(status envelope.Status, msg string) {
		complete = false
		rep.Warnings = append(rep.Warnings, msg)
		switch rep.Status {
		case envelope.OK:
			rep.Status = status
		case status:
		default:
			rep.Status = envelope.Partial
		}
	}

	nodes, err := e.store.NodesByKind(ctx, graph.KindComponent)
	if err != nil {
		e.logger.Warn("Evaluation without graph store", "error", err.Error())
		degrade(cycleStatus(ctx, err), "components unavailable: "+err.Error())
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	rep.Components = len(ids)

	var findings []issues.Finding
	if len(ids) > 0 {
		results, err := e.scorer.ScoreAll(ctx, ids, now)
		if err != nil {
			degrade(cycleStatus(ctx, err), "scoring incomplete: "+err.Error())
		}
		for _, r := range results {
			rep.Scores = append(rep.Scores, r.Score)
			findings = append(findings, e.scoreFindings(r)...)
		}
	}

	for _, t := range e.cfg.Drift.Targets {
		if ctx.Err() != nil {
			degrade(envelope.Partial, "drift skipped: "+ctx.Err().Error())
			break
		}
		tr, targetFindings := e.checkTarget(ctx, t)
		rep.Drift = append(rep.Drift, tr)
		findings = append(findings, targetFindings...)
		if tr.Status != envelope.OK {
			degrade(envelope.Partial, fmt.Sprintf("drift target %s: %s", t.Name, tr.Error))
		}
	}
	if findings == nil {
		findings = []issues.Finding{}
	}
	rep.Findings = findings

	// Aggregation runs even after cancellation; it is quick and idempotent.
	aggCtx := context.WithoutCancel(ctx)
	if complete {
		rep.Outcome, err = e.agg.Apply(aggCtx, findings, now)
	} else {
		rep.Outcome, err = e.agg.ApplyPartial(aggCtx, findings, now)
	}
	rep.FinishedAt = time.Now().UTC()
	if err != nil {
		return rep, fmt.Errorf("failed to aggregate issues: %w", err)
	}

	e.logger.Info("Evaluation cycle finished",
		"status", rep.Status,
		"components", rep.Components,
		"findings", len(findings),
		"opened", rep.Outcome.Opened,
		"resolved", rep.Outcome.Resolved,
	)
	return rep, nil
}

func cycleStatus(ctx context.Context, err error) envelope.Status {
	if ctx.Err() != nil {
		return envelope.Partial
	}
	return envelope.StatusOf(err)
}

// scoreFindings turns each configured issue axis above the low threshold
// into a finding carrying the contributing sources and their signal links.
func (e *Evaluator) scoreFindings(r *scoring.Result) []issues.Finding {
	links := scoring.Links(r.Events, e.scorer.Params())
	var out []issues.Finding
	for _, axis := range e.cfg.Severity.IssueAxes {
		b, ok := r.Score.Axes[axis]
		if !ok {
			continue
		}
		sev, ok := issues.ScoreSeverity(b.Score, e.cfg.Severity.ScoreThresholds)
		if !ok {
			continue
		}
		f := issues.Finding{ComponentID: r.Score.ComponentID, Severity: sev, Summary: b.Summary}
		for src, m := range b.Metrics {
			if m.Contribution <= 0 {
				continue
			}
			f.Sources = append(f.Sources, src)
			for _, ref := range links[src] {
				f.Links = append(f.Links, issues.Link{Source: src, Ref: ref})
			}
		}
		sort.Strings(f.Sources)
		out = append(out, f)
	}
	return out
}

// checkTarget loads and compares one spec/doc pair and attributes its
// findings to components: endpoint findings go to the components exposing
// the endpoint, global findings to every affected component.
func (e *Evaluator) checkTarget(ctx context.Context, t config.DriftTarget) (TargetReport, []issues.Finding) {
	tr := TargetReport{Name: t.Name, Status: envelope.OK, Components: []string{}}

	var spec *drift.Spec
	var doc *drift.DocArtifact
	var g errgroup.Group
	g.Go(func() (err error) {
		spec, err = drift.LoadSpec(e.path(t.Spec))
		return err
	})
	g.Go(func() (err error) {
		doc, err = drift.LoadDoc(e.path(t.Doc))
		return err
	})
	if err := g.Wait(); err != nil {
		tr.Status = envelope.StatusOf(err)
		if errors.CodeOf(err) == errors.InternalError {
			tr.Status = envelope.Invalid
		}
		tr.Error = err.Error()
		e.logger.Warn("Drift target failed", "target", t.Name, "error", err.Error())
		return tr, nil
	}
	tr.Report = drift.Detect(spec, doc)

	fallback := []string{}
	if t.Component != "" {
		fallback = []string{graph.ComponentID(strings.TrimPrefix(t.Component, "comp:"))}
	}

	type tally struct {
		errors, warnings int
		lines            []string
	}
	byComp := map[string]*tally{}
	var order []string
	count := func(comp string, f drift.Finding) {
		c, ok := byComp[comp]
		if !ok {
			c = &tally{}
			byComp[comp] = c
			order = append(order, comp)
		}
		switch f.Severity {
		case drift.SeverityError:
			c.errors++
		case drift.SeverityWarning:
			c.warnings++
		}
		if f.Kind == drift.MissingParam || f.Kind == drift.MissingEndpointInDoc {
			c.lines = append(c.lines, f.Message)
		}
	}

	for _, ep := range tr.Report.Endpoints {
		comps, err := e.exposedBy(ctx, t.Service, ep.Method, ep.Path)
		if err != nil {
			tr.Status = envelope.Partial
			tr.Error = err.Error()
		}
		if len(comps) == 0 {
			comps = fallback
		}
		for _, comp := range comps {
			for _, f := range ep.Findings {
				count(comp, f)
			}
		}
	}
	if len(tr.Report.Global) > 0 {
		globalComps := fallback
		if len(globalComps) == 0 {
			globalComps = e.specComponents(ctx, t.Service, spec)
		}
		for _, comp := range globalComps {
			for _, f := range tr.Report.Global {
				count(comp, f)
			}
		}
	}

	var out []issues.Finding
	for _, comp := range order {
		c := byComp[comp]
		sev, ok := issues.DriftSeverity(c.errors, c.warnings, e.cfg.Severity)
		if !ok {
			continue
		}
		summary := fmt.Sprintf("%s drift: %d errors, %d warnings", t.Name, c.errors, c.warnings)
		if len(c.lines) > 0 {
			summary += " (" + strings.Join(c.lines, "; ") + ")"
		}
		ref := doc.URL
		if ref == "" {
			ref = t.Doc
		}
		out = append(out, issues.Finding{
			ComponentID: comp,
			Sources:     []string{DriftSource},
			Severity:    sev,
			Summary:     summary,
			Links:       []issues.Link{{Source: DriftSource, Ref: graph.DocID(ref)}},
		})
		tr.Components = append(tr.Components, comp)
	}
	return tr, out
}

// exposedBy returns the components exposing an endpoint of service.
func (e *Evaluator) exposedBy(ctx context.Context, service, method, path string) ([]string, error) {
	if service == "" {
		return nil, nil
	}
	edges, err := e.store.Edges(ctx, graph.EndpointID(service, method, path), graph.In, graph.EdgeExposesEndpoint)
	if err != nil {
		return nil, err
	}
	var comps []string
	for _, edge := range edges {
		comps = append(comps, edge.Src)
	}
	return comps, nil
}

// specComponents collects the components exposing any endpoint of spec.
func (e *Evaluator) specComponents(ctx context.Context, service string, spec *drift.Spec) []string {
	seen := map[string]bool{}
	var out []string
	for _, ep := range spec.Endpoints {
		comps, _ := e.exposedBy(ctx, service, strings.ToUpper(ep.Method), ep.Path)
		for _, c := range comps {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func (e *Evaluator) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.root, p)
}
