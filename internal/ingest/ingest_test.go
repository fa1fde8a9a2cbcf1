package ingest

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docdrift/internal/envelope"
	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
	"docdrift/internal/slogutil"
	"docdrift/internal/storage"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestIngestor(store graphstore.Store) *Ingestor {
	in := New(store, slogutil.NewDiscardLogger())
	in.now = func() time.Time { return fixedNow }
	return in
}

func TestUpsertComponent_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)

	first := in.UpsertComponent(ctx, "payments", graph.Props{"owner": "team-a", "tier": 1})
	if !first.OK() || first.NodeID != "comp:payments" {
		t.Fatalf("first upsert = %+v", first)
	}
	second := in.UpsertComponent(ctx, "payments", graph.Props{"owner": "team-b", "tier": 2})
	if !second.OK() {
		t.Fatalf("second upsert failed: %s", second.Error())
	}
	if second.Changes.NodesCreated != 0 || second.Changes.NodesUpdated != 1 {
		t.Errorf("second upsert changes = %+v", second.Changes)
	}

	nodes, err := store.NodesByKind(ctx, graph.KindComponent)
	if err != nil {
		t.Fatalf("NodesByKind() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected exactly one component, got %d", len(nodes))
	}
	if got := nodes[0].Props.String("owner"); got != "team-b" {
		t.Errorf("owner = %q, want team-b", got)
	}
	if got, _ := nodes[0].Props.Float("tier"); got != 2 {
		t.Errorf("tier = %v, want 2", got)
	}

	again := in.UpsertComponent(ctx, "payments", graph.Props{"owner": "team-b", "tier": 2})
	if again.Changes.Changed() {
		t.Errorf("repeating the last upsert changed the graph: %+v", again.Changes)
	}
}

func TestUpserts_Commutative(t *testing.T) {
	ctx := context.Background()

	docFirst := graphstore.NewMemory()
	a := newTestIngestor(docFirst)
	a.UpsertDoc(ctx, "https://docs/payments", graph.Props{"version": "2.0"}, "comp:payments")
	a.UpsertComponent(ctx, "payments", graph.Props{"tier": "gold"})

	compFirst := graphstore.NewMemory()
	b := newTestIngestor(compFirst)
	b.UpsertComponent(ctx, "payments", graph.Props{"tier": "gold"})
	b.UpsertDoc(ctx, "https://docs/payments", graph.Props{"version": "2.0"}, "comp:payments")

	for _, s := range []graphstore.Store{docFirst, compFirst} {
		n, err := s.Node(ctx, "comp:payments")
		if err != nil {
			t.Fatalf("Node() error = %v", err)
		}
		if n.Props.String("tier") != "gold" || n.Props.String("name") != "payments" {
			t.Errorf("component props = %v", n.Props)
		}
		edges, _ := s.Edges(ctx, "comp:payments", graph.In, graph.EdgeDescribesComponent)
		if len(edges) != 1 || edges[0].Src != "doc:https://docs/payments" {
			t.Errorf("describes edges = %+v", edges)
		}
	}
}

func TestUpsertAPIEndpoint_LinksService(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)

	res := in.UpsertAPIEndpoint(ctx, "payments-api", "post", "/payments/charge", nil, "comp:payments")
	if !res.OK() {
		t.Fatalf("UpsertAPIEndpoint() = %s", res.Error())
	}
	if res.NodeID != "api:payments-api:POST:/payments/charge" {
		t.Errorf("NodeID = %s", res.NodeID)
	}

	edges, _ := store.Edges(ctx, res.NodeID, graph.In)
	kinds := map[graph.EdgeKind]string{}
	for _, e := range edges {
		kinds[e.Kind] = e.Src
	}
	if kinds[graph.EdgeProvidesEndpoint] != "svc:payments-api" {
		t.Errorf("PROVIDES_ENDPOINT source = %q", kinds[graph.EdgeProvidesEndpoint])
	}
	if kinds[graph.EdgeExposesEndpoint] != "comp:payments" {
		t.Errorf("EXPOSES_ENDPOINT source = %q", kinds[graph.EdgeExposesEndpoint])
	}
}

func TestUpsertActivitySignal_WeightedEdges(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)
	at := fixedNow.Add(-time.Hour)

	res := in.UpsertActivitySignal(ctx, "slack", "payments-eng", at, graph.Props{"magnitude": 4}, "comp:payments")
	if !res.OK() {
		t.Fatalf("UpsertActivitySignal() = %s", res.Error())
	}

	edges, _ := store.Edges(ctx, "comp:payments", graph.In, graph.EdgeSignalsComponent)
	if len(edges) != 1 {
		t.Fatalf("expected 1 SIGNALS_COMPONENT edge, got %d", len(edges))
	}
	e := edges[0]
	if e.Weight() != 4 {
		t.Errorf("signal_weight = %v, want 4", e.Weight())
	}
	if seen, ok := e.LastSeen(); !ok || !seen.Equal(at) {
		t.Errorf("last_seen = %v, want %v", seen, at)
	}
	if e.Props.String(graph.PropSource) != "slack" {
		t.Errorf("source = %q", e.Props.String(graph.PropSource))
	}
	if _, err := store.Node(ctx, "comp:payments"); err != nil {
		t.Errorf("related component should exist as a stub: %v", err)
	}
}

func TestUpsertSupportCase_DefaultsOpenedAt(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)

	res := in.UpsertSupportCase(ctx, "zendesk", "4411", graph.Props{"severity": "high"}, "comp:payments")
	if !res.OK() {
		t.Fatalf("UpsertSupportCase() = %s", res.Error())
	}
	edges, _ := store.Edges(ctx, "support:zendesk:4411", graph.Out)
	if len(edges) != 1 || edges[0].Kind != graph.EdgeSupportsComponent {
		t.Fatalf("edges = %+v", edges)
	}
	if seen, _ := edges[0].LastSeen(); !seen.Equal(fixedNow) {
		t.Errorf("last_seen = %v, want %v", seen, fixedNow)
	}
	if edges[0].Props.String(graph.PropSource) != "support" {
		t.Errorf("edge source = %q, want support", edges[0].Props.String(graph.PropSource))
	}

	in.now = func() time.Time { return fixedNow.Add(30 * 24 * time.Hour) }
	again := in.UpsertSupportCase(ctx, "zendesk", "4411", graph.Props{"severity": "high"}, "comp:payments")
	if !again.OK() {
		t.Fatalf("second UpsertSupportCase() = %s", again.Error())
	}
	if again.Changes.Changed() {
		t.Errorf("re-ingesting the case changed the graph: %+v", again.Changes)
	}
	edges, _ = store.Edges(ctx, "support:zendesk:4411", graph.Out)
	if seen, _ := edges[0].LastSeen(); !seen.Equal(fixedNow) {
		t.Errorf("last_seen after re-ingestion = %v, want %v", seen, fixedNow)
	}
	node, _ := store.Node(ctx, "support:zendesk:4411")
	if opened, _ := node.Props.Time("opened_at"); !opened.Equal(fixedNow) {
		t.Errorf("opened_at after re-ingestion = %v, want %v", opened, fixedNow)
	}
}

func TestUpsertComponent_MergesProperties(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)

	in.UpsertComponent(ctx, "payments", graph.Props{"owner": "a", "tier": 1})
	in.UpsertComponent(ctx, "payments", graph.Props{"owner": "b"})

	n, err := store.Node(ctx, "comp:payments")
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	if got := n.Props.String("owner"); got != "b" {
		t.Errorf("owner = %q, want b", got)
	}
	if tier, ok := n.Props.Float("tier"); !ok || tier != 1 {
		t.Errorf("tier = %v, want 1 kept from the earlier upsert", n.Props["tier"])
	}
}

func TestUpsert_UnlinkablePair(t *testing.T) {
	in := newTestIngestor(graphstore.NewMemory())
	res := in.UpsertDoc(context.Background(), "https://docs/x", nil, "slack:eng:1.2")
	if res.Status != envelope.Invalid {
		t.Errorf("Status = %s, want INVALID", res.Status)
	}
	if errors.CodeOf(res.Err) != errors.InvalidEvent {
		t.Errorf("code = %s", errors.CodeOf(res.Err))
	}
}

func TestUpsert_StoreUnavailable(t *testing.T) {
	in := newTestIngestor(graphstore.NewDisabled("disabled by configuration"))
	res := in.UpsertComponent(context.Background(), "payments", nil)
	if res.Status != envelope.Unavailable {
		t.Errorf("Status = %s, want UNAVAILABLE", res.Status)
	}
	if res.Err == nil {
		t.Error("expected an error on the result")
	}
}

const chargePatch = "diff --git a/internal/charge/charge.go b/internal/charge/charge.go\n" +
	"index 1111111..2222222 100644\n" +
	"--- a/internal/charge/charge.go\n" +
	"+++ b/internal/charge/charge.go\n" +
	"@@ -1,3 +1,4 @@\n" +
	" package charge\n" +
	" \n" +
	"+// Capture settles an authorized charge.\n" +
	" func Capture() {}\n" +
	"diff --git a/README.md b/README.md\n" +
	"index 3333333..4444444 100644\n" +
	"--- a/README.md\n" +
	"+++ b/README.md\n" +
	"@@ -1,1 +1,1 @@\n" +
	"-# Payments\n" +
	"+# Payments service\n"

func TestUpsertCommit_LinksOwningComponents(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)

	if res := in.UpsertComponent(ctx, "payments", nil, graph.CodeID("acme/pay", "internal/charge/charge.go")); !res.OK() {
		t.Fatalf("UpsertComponent() = %s", res.Error())
	}

	at := fixedNow.Add(-2 * time.Hour)
	res := in.UpsertCommit(ctx, Commit{
		Repo:    "acme/pay",
		SHA:     "abc123",
		Author:  "dev@acme.dev",
		Message: "Add capture\n\nLong body",
		At:      at,
		Patch:   chargePatch,
	})
	if !res.OK() {
		t.Fatalf("UpsertCommit() = %s", res.Error())
	}
	wantID := graph.SignalID("git", "acme/pay@abc123", at)
	if res.NodeID != wantID {
		t.Errorf("NodeID = %s, want %s", res.NodeID, wantID)
	}

	signal, err := store.Node(ctx, wantID)
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	if signal.Props.String("message") != "Add capture" {
		t.Errorf("message = %q", signal.Props.String("message"))
	}
	if files, _ := signal.Props.Float("files"); files != 2 {
		t.Errorf("files = %v, want 2", files)
	}

	readme, err := store.Node(ctx, graph.CodeID("acme/pay", "README.md"))
	if err != nil {
		t.Fatalf("README artifact missing: %v", err)
	}
	if readme.Props.String("language") != "markdown" {
		t.Errorf("README language = %q", readme.Props.String("language"))
	}

	edges, _ := store.Edges(ctx, "comp:payments", graph.In, graph.EdgeSignalsComponent)
	if len(edges) != 1 || edges[0].Src != wantID {
		t.Fatalf("signal edges = %+v", edges)
	}
	if edges[0].Props.String(graph.PropSource) != "git" || edges[0].Weight() != 1 {
		t.Errorf("edge props = %v", edges[0].Props)
	}

	again := in.UpsertCommit(ctx, Commit{Repo: "acme/pay", SHA: "abc123", Author: "dev@acme.dev", Message: "Add capture\n\nLong body", At: at, Patch: chargePatch})
	if again.Changes.Changed() {
		t.Errorf("re-ingesting the commit changed the graph: %+v", again.Changes)
	}
}

func TestUpsertCommit_KeyedBySHA(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)
	at := fixedNow.Add(-time.Hour)

	first := in.UpsertCommit(ctx, Commit{Repo: "acme/pay", SHA: "aaa", At: at}, "comp:payments")
	second := in.UpsertCommit(ctx, Commit{Repo: "acme/pay", SHA: "bbb", At: at}, "comp:payments")
	if !first.OK() || !second.OK() {
		t.Fatalf("UpsertCommit() = %q, %q", first.Error(), second.Error())
	}
	if first.NodeID == second.NodeID {
		t.Fatalf("commits aaa and bbb share id %s", first.NodeID)
	}
	n, err := store.Node(ctx, first.NodeID)
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	if n.Props.String("sha") != "aaa" {
		t.Errorf("sha = %q, want aaa", n.Props.String("sha"))
	}
	edges, _ := store.Edges(ctx, "comp:payments", graph.In, graph.EdgeSignalsComponent)
	if len(edges) != 2 {
		t.Errorf("signal edges = %d, want 2", len(edges))
	}
}

func TestIngest_CommitReingestion(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := newTestIngestor(store)

	event := Event{
		Kind:    EventCommit,
		Key:     []string{"acme/pay", "abc123"},
		Props:   map[string]any{"at": "2026-03-02T11:00:00Z"},
		Related: []string{"comp:payments"},
	}
	if res := in.Ingest(ctx, event); !res.OK() {
		t.Fatalf("Ingest() = %s", res.Error())
	}
	before, _ := store.Counts(ctx)

	in.now = func() time.Time { return fixedNow.Add(time.Second) }
	if res := in.Ingest(ctx, event); !res.OK() || res.Changes.Changed() {
		t.Errorf("second Ingest() = %+v", res)
	}
	after, _ := store.Counts(ctx)
	if before.Nodes != after.Nodes || before.Edges != after.Edges {
		t.Errorf("counts %d/%d -> %d/%d", before.Nodes, before.Edges, after.Nodes, after.Edges)
	}

	undated := Event{Kind: EventCommit, Key: []string{"acme/pay", "def456"}, Related: []string{"comp:payments"}}
	res := in.Ingest(ctx, undated)
	if res.Status != envelope.Invalid || errors.CodeOf(res.Err) != errors.InvalidEvent {
		t.Errorf("undated commit = %s (%s), want INVALID_EVENT", res.Status, res.Error())
	}
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"component", Event{Kind: EventComponent, Key: []string{"payments"}}, false},
		{"endpoint", Event{Kind: EventAPIEndpoint, Key: []string{"payments-api", "POST", "/charge"}}, false},
		{"missing kind", Event{Key: []string{"payments"}}, true},
		{"unknown kind", Event{Kind: "deploy", Key: []string{"x"}}, true},
		{"empty key part", Event{Kind: EventComponent, Key: []string{""}}, true},
		{"wrong arity", Event{Kind: EventIssue, Key: []string{"jira"}}, true},
		{"empty related", Event{Kind: EventDoc, Key: []string{"u"}, Related: []string{""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && errors.CodeOf(err) != errors.InvalidEvent {
				t.Errorf("code = %s, want INVALID_EVENT", errors.CodeOf(err))
			}
		})
	}
}

func TestIngest_Dispatch(t *testing.T) {
	ctx := context.Background()
	in := newTestIngestor(graphstore.NewMemory())

	tests := []struct {
		event  Event
		wantID string
		status envelope.Status
	}{
		{Event{Kind: EventPR, Key: []string{"acme/pay", "#42"}, Related: []string{"comp:payments"}}, "pr:acme/pay:42", envelope.OK},
		{Event{Kind: EventPR, Key: []string{"acme/pay", "forty"}}, "", envelope.Invalid},
		{Event{Kind: EventIssue, Key: []string{"jira", "PAY-7"}}, "issue:jira:PAY-7", envelope.OK},
		{Event{Kind: EventActivitySignal, Key: []string{"slack", "eng", "2026-03-01T10:00:00Z"}}, "signal:slack:eng:2026-03-01T10:00:00Z", envelope.OK},
		{Event{Kind: EventActivitySignal, Key: []string{"slack", "eng", "yesterday"}}, "", envelope.Invalid},
		{Event{Kind: EventSlackThread, Key: []string{"eng", "1700000000.1"}, Related: []string{"comp:payments"}}, "slack:eng:1700000000.1", envelope.OK},
		{Event{Kind: EventCommit, Key: []string{"acme/pay", "ff00"}, Props: map[string]any{"branch": "release", "at": "2026-03-01T09:00:00Z"}}, "signal:git:acme/pay@ff00:2026-03-01T09:00:00Z", envelope.OK},
		{Event{Kind: EventCommit, Key: []string{"acme/pay", "ff01"}}, "", envelope.Invalid},
	}

	for _, tt := range tests {
		t.Run(tt.event.Kind+"/"+tt.event.Key[len(tt.event.Key)-1], func(t *testing.T) {
			res := in.Ingest(ctx, tt.event)
			if res.Status != tt.status {
				t.Fatalf("Status = %s, want %s (%s)", res.Status, tt.status, res.Error())
			}
			if res.NodeID != tt.wantID {
				t.Errorf("NodeID = %q, want %q", res.NodeID, tt.wantID)
			}
		})
	}
}

func fixtureBatches() []Batch {
	return []Batch{
		{Source: "github", Events: []Event{
			{Kind: EventComponent, Key: []string{"payments"}},
			{Kind: EventPR, Key: []string{"acme/pay", "1"}, Related: []string{"comp:payments"}},
			{Kind: EventPR, Key: []string{"acme/pay", "2"}, Related: []string{"comp:payments"}},
		}},
		{Source: "slack", Events: []Event{
			{Kind: EventSlackThread, Key: []string{"payments", "1.0"}, Related: []string{"comp:payments"}},
			{Kind: EventActivitySignal, Key: []string{"slack", "payments", "2026-03-01T10:00:00Z"}, Related: []string{"comp:payments"}},
		}},
		{Source: "support", Events: []Event{
			{Kind: EventSupportCase, Key: []string{"zendesk", "1"}, Props: map[string]any{"opened_at": "2026-03-01T08:00:00Z"}, Related: []string{"comp:payments"}},
		}},
	}
}

func TestRunner_ReingestionIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	runner := NewRunner(newTestIngestor(store), slogutil.NewDiscardLogger(), 2)

	first := runner.Run(ctx, fixtureBatches())
	if first.Status != envelope.OK {
		t.Fatalf("first run status = %s: %+v", first.Status, first.Sources)
	}
	before, _ := store.Counts(ctx)

	second := runner.Run(ctx, fixtureBatches())
	if second.Status != envelope.OK {
		t.Fatalf("second run status = %s", second.Status)
	}
	after, _ := store.Counts(ctx)
	if before.Nodes != after.Nodes || before.Edges != after.Edges {
		t.Errorf("counts changed: before %+v, after %+v", before, after)
	}
	for _, s := range second.Sources {
		if s.Applied != 0 {
			t.Errorf("source %s applied %d events on re-run", s.Source, s.Applied)
		}
	}
	if first.RunID == second.RunID || first.RunID == "" {
		t.Errorf("run ids should be unique: %q %q", first.RunID, second.RunID)
	}
	if got := []string{second.Sources[0].Source, second.Sources[1].Source, second.Sources[2].Source}; got[0] != "github" || got[2] != "support" {
		t.Errorf("sources not sorted: %v", got)
	}
}

func TestRunner_PartialFailure(t *testing.T) {
	ctx := context.Background()
	batches := fixtureBatches()
	batches[1].Events = append(batches[1].Events, Event{Kind: EventIssue, Key: []string{"jira"}})

	report := NewRunner(newTestIngestor(graphstore.NewMemory()), slogutil.NewDiscardLogger(), 0).Run(ctx, batches)
	if report.Status != envelope.Partial {
		t.Fatalf("Status = %s, want PARTIAL", report.Status)
	}
	for _, s := range report.Sources {
		switch s.Source {
		case "slack":
			if s.Status != envelope.Partial || s.Failed != 1 || s.Applied != 2 {
				t.Errorf("slack report = %+v", s)
			}
		default:
			if s.Status != envelope.OK {
				t.Errorf("%s status = %s, want OK", s.Source, s.Status)
			}
		}
	}
	if errors.CodeOf(report.Err()) != errors.PartialIngestionFailure {
		t.Errorf("Err() code = %s", errors.CodeOf(report.Err()))
	}
}

func TestRunner_StoreUnavailable(t *testing.T) {
	report := NewRunner(newTestIngestor(graphstore.NewDisabled("down")), slogutil.NewDiscardLogger(), 4).
		Run(context.Background(), fixtureBatches())
	if report.Status != envelope.Unavailable {
		t.Fatalf("Status = %s, want UNAVAILABLE", report.Status)
	}
	github := report.Sources[0]
	if github.Failed != 1 || github.Skipped != 2 {
		t.Errorf("github report = %+v", github)
	}
	if !stderrors.Is(report.Err(), errors.ErrStoreUnavailable) {
		t.Errorf("Err() = %v", report.Err())
	}
}

func TestRunner_RecordsRuns(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "runs.db"), slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	defer db.Close()
	runs := storage.NewRunRepository(db)

	report := NewRunner(newTestIngestor(graphstore.NewMemory()), slogutil.NewDiscardLogger(), 1).
		WithRecorder(runs).
		Run(ctx, fixtureBatches())

	run, err := runs.Get(ctx, report.RunID)
	if err != nil || run == nil {
		t.Fatalf("Get() = %v, %v", run, err)
	}
	if run.Status != "OK" || run.FinishedAt == nil {
		t.Errorf("recorded run = %+v", run)
	}
}

const fixtureManifest = `
repo = "acme/pay"

[[component]]
name = "payments"
code = ["internal/charge/charge.go"]

[[service]]
name = "payments-api"
  [[service.endpoint]]
  method = "post"
  path = "/payments/charge"
  component = "payments"

[[doc]]
url = "https://docs.acme.dev/payments"
version = "2.0"
components = ["payments"]
endpoints = ["api:payments-api:POST:/payments/charge"]

[[code]]
path = "internal/charge/charge.go"
language = "go"
depends_on = ["internal/ledger/ledger.go"]
`

func TestManifest_Batch(t *testing.T) {
	m, err := ParseManifest([]byte(fixtureManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	batch, err := m.Batch()
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if batch.Source != "manifest" || len(batch.Events) != 5 {
		t.Fatalf("batch = %s with %d events", batch.Source, len(batch.Events))
	}

	ctx := context.Background()
	store := graphstore.NewMemory()
	report := NewRunner(newTestIngestor(store), slogutil.NewDiscardLogger(), 1).Run(ctx, []Batch{batch})
	if report.Status != envelope.OK {
		t.Fatalf("Status = %s: %+v", report.Status, report.Sources)
	}

	exposes, _ := store.Edges(ctx, "comp:payments", graph.Out, graph.EdgeExposesEndpoint)
	if len(exposes) != 1 || exposes[0].Dst != "api:payments-api:POST:/payments/charge" {
		t.Errorf("EXPOSES_ENDPOINT = %+v", exposes)
	}
	deps, _ := store.Edges(ctx, "code:acme/pay:internal/charge/charge.go", graph.Out, graph.EdgeDependsOn)
	if len(deps) != 1 {
		t.Errorf("DEPENDS_ON = %+v", deps)
	}
	doc, _ := store.Node(ctx, "doc:https://docs.acme.dev/payments")
	if doc == nil || doc.Props.String("version") != "2.0" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestManifest_Errors(t *testing.T) {
	if _, err := ParseManifest([]byte("[[component]]\nnmae = \"x\"\n")); err == nil {
		t.Error("expected an error for an unknown key")
	}
	if _, err := ParseManifest([]byte("repo = ")); err == nil {
		t.Error("expected an error for invalid TOML")
	}
	m, _ := ParseManifest([]byte("[[doc]]\nurl = \"\"\n"))
	if _, err := m.Batch(); err == nil {
		t.Error("expected an error for a doc without url")
	}
}

func TestLoadManifest_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.toml")
	if err := os.WriteFile(path, []byte(fixtureManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if m.Repo != "acme/pay" || len(m.Services) != 1 || len(m.Services[0].Endpoints) != 1 {
		t.Errorf("manifest = %+v", m)
	}
}
