package evaluate

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"docdrift/internal/config"
	"docdrift/internal/envelope"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
	"docdrift/internal/ingest"
	"docdrift/internal/issues"
	"docdrift/internal/slogutil"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

const specYAML = `openapi: 3.0.0
info:
  title: Payments
  version: "2.1.0"
paths:
  /payments/charge:
    post:
      parameters:
        - {name: amount, in: query, required: true, schema: {type: integer}}
        - {name: currency, in: query, required: true, schema: {type: string}}
`

const docMarkdown = `Version: 2.1.0

## POST /payments/charge

| Name | Type | Required |
|------|------|----------|
| amount | integer | yes |
`

type fixture struct {
	root  string
	store *graphstore.MemoryStore
	cfg   *config.Config
	repo  *issues.MemoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	for name, data := range map[string]string{"payments.yaml": specYAML, "payments.md": docMarkdown} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := graphstore.NewMemory()
	in := ingest.New(store, slogutil.NewDiscardLogger())
	results := []ingest.Result{
		in.UpsertComponent(ctx, "payments", nil),
		in.UpsertComponent(ctx, "ledger", nil),
		in.UpsertAPIEndpoint(ctx, "payments", "POST", "/payments/charge", nil, "comp:payments"),
		in.UpsertSupportCase(ctx, "zendesk", "881", graph.Props{
			"opened_at": now.Add(-time.Hour).Format(time.RFC3339),
			"magnitude": 30,
		}, "comp:payments"),
	}
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("fixture upsert %s failed: %s", r.NodeID, r.Error())
		}
	}

	cfg := config.DefaultConfig()
	cfg.Drift.Targets = []config.DriftTarget{{
		Name: "payments-api", Service: "payments", Spec: "payments.yaml", Doc: "payments.md",
	}}
	return &fixture{root: root, store: store, cfg: cfg, repo: issues.NewMemoryRepository()}
}

func (f *fixture) evaluator(store graphstore.Store) *Evaluator {
	return New(store, f.cfg, f.root, f.repo, slogutil.NewDiscardLogger())
}

func TestRunCycle_OpensIssues(t *testing.T) {
	f := newFixture(t)
	rep, err := f.evaluator(f.store).RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if rep.Status != envelope.OK || rep.Components != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Drift) != 1 || rep.Drift[0].Status != envelope.OK {
		t.Fatalf("drift = %+v", rep.Drift)
	}
	if got := rep.Drift[0].Components; !reflect.DeepEqual(got, []string{"comp:payments"}) {
		t.Errorf("drift attributed to %v", got)
	}
	if rep.Outcome.Opened != 1 {
		t.Errorf("outcome = %+v", rep.Outcome)
	}

	d, _ := f.repo.Get(context.Background(), "comp:payments")
	if d == nil {
		t.Fatal("no issue for comp:payments")
	}
	// One missing param is an error below the critical count; support alone
	// puts dissatisfaction in the medium band.
	if d.Severity != issues.High {
		t.Errorf("severity = %s, want high", d.Severity)
	}
	if !reflect.DeepEqual(d.DivergenceSources, []string{"drift", "support"}) {
		t.Errorf("sources = %v", d.DivergenceSources)
	}
	if !strings.Contains(d.Summary, "parameter currency is not documented") {
		t.Errorf("summary = %q", d.Summary)
	}
	wantLink := issues.Link{Source: "support", Ref: "support:zendesk:881"}
	found := false
	for _, l := range d.SourceLinks {
		found = found || l == wantLink
	}
	if !found {
		t.Errorf("links = %+v, want %+v", d.SourceLinks, wantLink)
	}
	if ledger, _ := f.repo.Get(context.Background(), "comp:ledger"); ledger != nil {
		t.Errorf("ledger has no findings but got %+v", ledger)
	}
}

func TestRunCycle_ModalityGating(t *testing.T) {
	f := newFixture(t)
	f.cfg.Modalities["support"] = false

	if _, err := f.evaluator(f.store).RunCycle(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	d, _ := f.repo.Get(context.Background(), "comp:payments")
	if !reflect.DeepEqual(d.DivergenceSources, []string{"drift"}) {
		t.Errorf("sources = %v", d.DivergenceSources)
	}
	for _, l := range d.SourceLinks {
		if l.Source == "support" {
			t.Errorf("support link kept: %+v", l)
		}
	}
}

func TestRunCycle_StoreUnavailableCountsNoMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.evaluator(f.store).RunCycle(ctx, now); err != nil {
		t.Fatal(err)
	}

	f.cfg.Drift.Targets = nil
	down := f.evaluator(graphstore.NewDisabled("test"))
	for i := 1; i <= 3; i++ {
		rep, err := down.RunCycle(ctx, now.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if rep.Status != envelope.Unavailable {
			t.Errorf("cycle %d status = %s, want UNAVAILABLE", i, rep.Status)
		}
		if rep.Outcome.Missed != 0 || rep.Outcome.Resolved != 0 {
			t.Errorf("cycle %d outcome = %+v", i, rep.Outcome)
		}
	}
	if d, _ := f.repo.Get(ctx, "comp:payments"); d.Status != issues.Open || d.MissedCycles != 0 {
		t.Errorf("issue after outage = %+v", d)
	}
}

func TestRunCycle_ResolvesAfterConsecutiveMisses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.evaluator(f.store).RunCycle(ctx, now); err != nil {
		t.Fatal(err)
	}

	f.cfg.Drift.Targets = nil
	f.cfg.Modalities["support"] = false
	quiet := f.evaluator(f.store)
	first, _ := quiet.RunCycle(ctx, now.Add(time.Hour))
	second, _ := quiet.RunCycle(ctx, now.Add(2*time.Hour))
	if first.Outcome.Missed != 1 || second.Outcome.Resolved != 1 {
		t.Errorf("outcomes = %+v, %+v", first.Outcome, second.Outcome)
	}
	d, _ := f.repo.Get(ctx, "comp:payments")
	if d.Status != issues.Resolved {
		t.Errorf("status = %s, want resolved", d.Status)
	}
}

func TestRunCycle_BadTargetIsPartial(t *testing.T) {
	f := newFixture(t)
	f.cfg.Drift.Targets[0].Doc = "missing.md"

	rep, err := f.evaluator(f.store).RunCycle(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Status != envelope.Partial {
		t.Errorf("status = %s, want PARTIAL", rep.Status)
	}
	if rep.Drift[0].Status != envelope.Invalid || rep.Drift[0].Error == "" {
		t.Errorf("target = %+v", rep.Drift[0])
	}
	if rep.Outcome.Opened != 1 {
		t.Errorf("score findings should still open issues: %+v", rep.Outcome)
	}
}

func TestRunCycle_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := f.evaluator(f.store).RunCycle(ctx, now)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if rep.Status != envelope.Partial || rep.Outcome == nil {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunCycle_MatchesColonStyleEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spec := `openapi: 3.0.0
info:
  version: "2.1.0"
paths:
  /payments/{id}:
    get:
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
        - {name: expand, in: query, schema: {type: string}}
`
	doc := "Version: 2.1.0\n\n## GET /payments/:id\n\n| Name | Type | Required |\n|------|------|----------|\n| id | string | yes |\n"
	for name, data := range map[string]string{"lookup.yaml": spec, "lookup.md": doc} {
		if err := os.WriteFile(filepath.Join(f.root, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	in := ingest.New(f.store, slogutil.NewDiscardLogger())
	if r := in.UpsertAPIEndpoint(ctx, "payments", "GET", "/payments/:id", nil, "comp:ledger"); !r.OK() {
		t.Fatalf("UpsertAPIEndpoint() = %s", r.Error())
	}
	f.cfg.Drift.Targets = []config.DriftTarget{{
		Name: "lookup", Service: "payments", Component: "payments", Spec: "lookup.yaml", Doc: "lookup.md",
	}}

	rep, err := f.evaluator(f.store).RunCycle(ctx, now)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(rep.Drift) != 1 || rep.Drift[0].Report == nil {
		t.Fatalf("drift = %+v", rep.Drift)
	}
	if got := rep.Drift[0].Components; !reflect.DeepEqual(got, []string{"comp:ledger"}) {
		t.Errorf("drift attributed to %v, want [comp:ledger]", got)
	}
}
