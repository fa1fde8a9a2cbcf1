package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		id   string
		want NodeKind
		ok   bool
	}{
		{"comp:payments", KindComponent, true},
		{"svc:payments-api", KindService, true},
		{"doc:https://wiki/payments", KindDoc, true},
		{"issue:jira:PAY-12", KindIssue, true},
		{"pr:acme/payments:42", KindPullRequest, true},
		{"api:payments-api:POST:/payments/charge", KindAPIEndpoint, true},
		{"code:acme/payments:src/charge.go", KindCodeArtifact, true},
		{"signal:git:main:2026-03-01T10:00:00Z", KindActivitySignal, true},
		{"support:zendesk:8812", KindSupportCase, true},
		{"slack:C042:1700000000.1234", KindSlackThread, true},
		{"widget:x", "", false},
		{"comp:", "", false},
		{"payments", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := KindOf(tt.id)
			if got != tt.want || ok != tt.ok {
				t.Errorf("KindOf(%q) = %q, %v; want %q, %v", tt.id, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEndpointPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/payments/:id", "/payments/{id}"},
		{"/payments/{id}/", "/payments/{id}"},
		{" /payments/charge ", "/payments/charge"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := EndpointPath(tt.in); got != tt.want {
			t.Errorf("EndpointPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	colon, err := ID(KindAPIEndpoint, "payments", "get", "/payments/:id")
	if err != nil {
		t.Fatalf("ID() error = %v", err)
	}
	if colon != EndpointID("payments", "GET", "/payments/{id}") {
		t.Errorf("ID() = %q, want the braced form", colon)
	}
}

func TestID(t *testing.T) {
	id, err := ID(KindAPIEndpoint, "payments-api", "post", "/payments/charge")
	if err != nil {
		t.Fatalf("ID() error = %v", err)
	}
	if id != "api:payments-api:POST:/payments/charge" {
		t.Errorf("ID() = %q", id)
	}
	if id != EndpointID("payments-api", "POST", "/payments/charge") {
		t.Error("ID and EndpointID disagree")
	}

	if _, err := ID(KindIssue, "jira"); err == nil {
		t.Error("expected arity error")
	}
	if _, err := ID(KindComponent, "  "); err == nil {
		t.Error("expected empty key error")
	}
	if _, err := ID("Widget", "x"); err == nil {
		t.Error("expected unknown kind error")
	}
}

func TestIDsAreDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	a := SignalID("git", "main", at)
	b := SignalID("git", "main", at.UTC())
	if a != b {
		t.Errorf("SignalID depends on zone: %q vs %q", a, b)
	}
	if PullRequestID("acme/payments", 42) != "pr:acme/payments:42" {
		t.Errorf("PullRequestID = %q", PullRequestID("acme/payments", 42))
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name     string
		id, rel  string
		wantSrc  string
		wantKind EdgeKind
		ok       bool
	}{
		{"code owned by component", "code:r:a.go", "comp:payments", "comp:payments", EdgeOwnsCode, true},
		{"component owns code", "comp:payments", "code:r:a.go", "comp:payments", EdgeOwnsCode, true},
		{"code depends on code", "code:r:a.go", "code:r:b.go", "code:r:a.go", EdgeDependsOn, true},
		{"doc describes endpoint", "doc:d", "api:s:GET:/x", "doc:d", EdgeDescribesEndpoint, true},
		{"pr modifies component", "pr:r:1", "comp:c", "pr:r:1", EdgeModifiesComponent, true},
		{"signal signals component", "signal:git:m:t", "comp:c", "signal:git:m:t", EdgeSignalsComponent, true},
		{"support on endpoint", "support:zd:1", "api:s:GET:/x", "support:zd:1", EdgeSupportsEndpoint, true},
		{"endpoint provided by service", "api:s:GET:/x", "svc:s", "svc:s", EdgeProvidesEndpoint, true},
		{"service calls endpoint", "svc:caller", "api:s:GET:/x", "svc:caller", EdgeCallsEndpoint, true},
		{"endpoint exposed by component", "api:s:GET:/x", "comp:c", "comp:c", EdgeExposesEndpoint, true},
		{"slack discusses component", "slack:C1:1", "comp:c", "slack:C1:1", EdgeDiscussesComponent, true},
		{"doc to issue unlinkable", "doc:d", "issue:j:1", "", "", false},
		{"unknown prefix", "x:1", "comp:c", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := Connect(tt.id, tt.rel)
			if ok != tt.ok {
				t.Fatalf("Connect() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if e.Src != tt.wantSrc || e.Kind != tt.wantKind {
				t.Errorf("Connect() = %+v, want src %s kind %s", e, tt.wantSrc, tt.wantKind)
			}
			if e.Other(e.Src) != e.Dst {
				t.Error("Other() should return the opposite endpoint")
			}
		})
	}
}

func TestEdgeWeightDefaultsToZero(t *testing.T) {
	legacy := Edge{Src: "signal:git:m:t", Dst: "comp:c", Kind: EdgeSignalsComponent}
	if legacy.Weight() != 0 {
		t.Errorf("Weight() = %v, want 0 for edge without signal_weight", legacy.Weight())
	}

	var props Props
	if err := json.Unmarshal([]byte(`{"signal_weight": 2.5, "last_seen": "2026-03-01T10:00:00Z"}`), &props); err != nil {
		t.Fatal(err)
	}
	e := Edge{Kind: EdgeSignalsComponent, Props: props}
	if e.Weight() != 2.5 {
		t.Errorf("Weight() = %v, want 2.5", e.Weight())
	}
	if ts, ok := e.LastSeen(); !ok || ts.Hour() != 10 {
		t.Errorf("LastSeen() = %v, %v", ts, ok)
	}
	if !EdgeSupportsComponent.Weighted() || EdgeOwnsCode.Weighted() {
		t.Error("Weighted() classification wrong")
	}
}

func TestPropsMerge(t *testing.T) {
	base := Props{"name": "Payments", "tier": 1}
	merged := base.Merge(Props{"tier": 2, "owner": "team-pay"})

	if merged["name"] != "Payments" || merged["tier"] != 2 || merged["owner"] != "team-pay" {
		t.Errorf("Merge() = %v", merged)
	}
	if base["tier"] != 1 {
		t.Error("Merge() mutated the receiver")
	}
	if f, ok := merged.Float("tier"); !ok || f != 2 {
		t.Errorf("Float(tier) = %v, %v", f, ok)
	}
	if merged.String("missing") != "" {
		t.Error("String() of missing key should be empty")
	}
}

func adjacencyFunc(adj map[string][]string) NeighborFunc {
	return func(_ context.Context, id string) ([]string, error) {
		return adj[id], nil
	}
}

func TestWalk(t *testing.T) {
	// a -> b -> c -> a (cycle), b -> d
	adj := map[string][]string{
		"a": {"b"},
		"b": {"c", "d"},
		"c": {"a"},
	}

	visits, err := Walk(context.Background(), "a", 5, 0, adjacencyFunc(adj))
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []Visit{{"b", 1}, {"c", 2}, {"d", 2}}
	if len(visits) != len(want) {
		t.Fatalf("Walk() = %v, want %v", visits, want)
	}
	for i := range want {
		if visits[i] != want[i] {
			t.Errorf("visit[%d] = %v, want %v", i, visits[i], want[i])
		}
	}

	shallow, _ := Walk(context.Background(), "a", 1, 0, adjacencyFunc(adj))
	if len(shallow) != 1 {
		t.Errorf("depth 1 walk = %v", shallow)
	}

	capped, _ := Walk(context.Background(), "a", 5, 2, adjacencyFunc(adj))
	if len(capped) != 2 {
		t.Errorf("maxNodes walk = %v", capped)
	}
}

func TestWalkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	next := func(_ context.Context, id string) ([]string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return []string{id + "1", id + "2"}, nil
	}

	visits, err := Walk(ctx, "n", 10, 0, next)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Walk() error = %v, want context.Canceled", err)
	}
	if len(visits) == 0 {
		t.Error("cancelled walk should return what it collected")
	}
}

func TestRank(t *testing.T) {
	edges := []Edge{
		{Src: "comp:payments", Dst: "code:r:charge.go", Kind: EdgeOwnsCode},
		{Src: "doc:payments", Dst: "comp:payments", Kind: EdgeDescribesComponent},
		{Src: "signal:git:main:t1", Dst: "comp:payments", Kind: EdgeSignalsComponent, Props: Props{PropSignalWeight: 5.0}},
		{Src: "signal:git:main:t1", Dst: "comp:ledger", Kind: EdgeSignalsComponent, Props: Props{PropSignalWeight: 5.0}},
		{Src: "doc:ledger", Dst: "comp:ledger", Kind: EdgeDescribesComponent},
		{Src: "doc:unrelated", Dst: "comp:other", Kind: EdgeDescribesComponent},
	}
	adj := NewAdjacency(edges)
	if adj.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", adj.Len())
	}

	res, err := adj.Rank(context.Background(), []string{"comp:payments"}, DefaultRankOptions())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(res.Results) == 0 {
		t.Fatal("expected ranked nodes")
	}
	if res.Results[0].ID != "signal:git:main:t1" {
		t.Errorf("top result = %s, want the heavy signal", res.Results[0].ID)
	}
	for _, r := range res.Results {
		if r.ID == "comp:payments" {
			t.Error("seed should not be ranked")
		}
		if r.ID == "doc:unrelated" || r.ID == "comp:other" {
			t.Errorf("disconnected node %s ranked", r.ID)
		}
	}

	comps := FilterByKind(res.Results, KindComponent)
	if len(comps) != 1 || comps[0].ID != "comp:ledger" {
		t.Errorf("FilterByKind(Component) = %v", comps)
	}
	if p := comps[0].Path; len(p) < 2 || p[0] != "comp:payments" || p[len(p)-1] != "comp:ledger" {
		t.Errorf("path = %v", p)
	}
	if docs := FilterByPrefix(res.Results, "doc:"); len(docs) != 2 {
		t.Errorf("FilterByPrefix(doc:) = %v", docs)
	}
}

func TestRankUnknownSeed(t *testing.T) {
	adj := NewAdjacency([]Edge{{Src: "comp:a", Dst: "doc:a", Kind: EdgeDescribesComponent}})
	res, err := adj.Rank(context.Background(), []string{"comp:ghost"}, RankOptions{})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(res.Results) != 0 {
		t.Errorf("unknown seed ranked %v", res.Results)
	}
	if _, err := adj.Rank(context.Background(), nil, RankOptions{}); err == nil {
		t.Error("expected error without seeds")
	}
}
