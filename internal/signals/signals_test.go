package signals

import (
	"context"
	"reflect"
	"testing"
	"time"

	"docdrift/internal/config"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
	"docdrift/internal/ingest"
	"docdrift/internal/slogutil"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixture(t *testing.T) graphstore.Store {
	t.Helper()
	ctx := context.Background()
	store := graphstore.NewMemory()
	in := ingest.New(store, slogutil.NewDiscardLogger())
	charge := graph.EndpointID("payments-api", "POST", "/payments/charge")

	for _, r := range []ingest.Result{
		in.UpsertAPIEndpoint(ctx, "payments-api", "POST", "/payments/charge", nil, "comp:payments"),
		in.UpsertActivitySignal(ctx, "git", "main", now.Add(-48*time.Hour), graph.Props{"magnitude": 2}, "comp:payments"),
		in.UpsertActivitySignal(ctx, "slack", "payments", now.Add(-24*time.Hour), nil, "comp:payments"),
		in.UpsertActivitySignal(ctx, "git", "main", now.Add(-time.Hour), nil, charge),
		in.UpsertActivitySignal(ctx, "git", "main", now.Add(-90*24*time.Hour), nil, "comp:payments"),
		in.UpsertSupportCase(ctx, "zendesk", "77", graph.Props{"opened_at": now.Add(-2 * time.Hour).Format(time.RFC3339)}, "comp:payments"),
		in.UpsertActivitySignal(ctx, "git", "main", now.Add(-3*time.Hour), nil, "comp:billing"),
	} {
		if !r.OK() {
			t.Fatalf("fixture: %s", r.Error())
		}
	}
	return store
}

func TestActivitySource_Events(t *testing.T) {
	store := fixture(t)
	since := now.Add(-30 * 24 * time.Hour)

	events, err := NewActivitySource(Git, store).Events(context.Background(), "comp:payments", since)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 git events inside the lookback, got %d: %+v", len(events), events)
	}
	if events[0].Magnitude != 2 || !events[0].At.Equal(now.Add(-48*time.Hour)) {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Via != graph.EndpointID("payments-api", "POST", "/payments/charge") {
		t.Errorf("endpoint event Via = %q", events[1].Via)
	}
	for _, e := range events {
		if e.Source != Git {
			t.Errorf("event source = %s", e.Source)
		}
	}
}

func TestSupportSource_Events(t *testing.T) {
	store := fixture(t)
	events, err := NewSupportSource(store).Events(context.Background(), "comp:payments", now.Add(-time.Hour*24))
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 || events[0].Link != "support:zendesk:77" || events[0].Magnitude != 1 {
		t.Errorf("support events = %+v", events)
	}
}

func TestRegistry_ModalityGating(t *testing.T) {
	store := fixture(t)

	cfg := config.DefaultConfig()
	if got := NewRegistry(store, cfg).Names(); !reflect.DeepEqual(got, []string{"git", "issues", "slack", "support", "tickets"}) {
		t.Errorf("Names() = %v", got)
	}

	cfg.Modalities = map[string]bool{"slack": false, "support": false}
	reg := NewRegistry(store, cfg)
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"git", "issues", "tickets"}) {
		t.Errorf("Names() with slack and support disabled = %v", got)
	}

	collected, err := reg.Collect(context.Background(), "comp:payments", now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if _, ok := collected["slack"]; ok {
		t.Error("disabled slack source should not be collected")
	}
	if len(collected["git"]) != 2 {
		t.Errorf("git events = %d", len(collected["git"]))
	}
}

func TestRegistry_StoreUnavailable(t *testing.T) {
	reg := NewRegistry(graphstore.NewDisabled("off"), config.DefaultConfig())
	if _, err := reg.Collect(context.Background(), "comp:payments", now); err == nil {
		t.Error("expected an error from a disabled store")
	}
}
