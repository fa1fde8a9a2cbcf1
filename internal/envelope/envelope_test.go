package envelope

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"docdrift/internal/errors"
)

func TestBuilderBasic(t *testing.T) {
	resp := New().Data(map[string]int{"docs": 2}).Build()

	if resp.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", resp.SchemaVersion, CurrentSchemaVersion)
	}
	if resp.Status != OK {
		t.Errorf("Status = %q, want OK", resp.Status)
	}
	if resp.Fallback {
		t.Error("OK response should not be a fallback")
	}
}

func TestBuilderStatusUnavailableIsFallback(t *testing.T) {
	resp := New().Data([]string{}).Status(Unavailable).Build()
	if !resp.Fallback {
		t.Error("UNAVAILABLE should mark the response as fallback")
	}

	resp = New().Status(NotFound).Build()
	if resp.Fallback {
		t.Error("NOT_FOUND is an authoritative answer, not a fallback")
	}
}

func TestBuilderProvenance(t *testing.T) {
	resp := New().Backend("sqlite").RunID("run-1").Build()
	if resp.Meta == nil || resp.Meta.Provenance == nil {
		t.Fatal("expected provenance")
	}
	if resp.Meta.Provenance.Backend != "sqlite" || resp.Meta.Provenance.RunID != "run-1" {
		t.Errorf("Provenance = %+v", resp.Meta.Provenance)
	}
}

func TestBuilderWithTruncation(t *testing.T) {
	resp := New().WithTruncation(false, 10, 10, "").Build()
	if resp.Meta != nil {
		t.Error("no meta expected when not truncated")
	}

	resp = New().WithTruncation(true, 500, 812, "max-nodes").Build()
	if resp.Meta.Truncation.Shown != 500 || resp.Meta.Truncation.Reason != "max-nodes" {
		t.Errorf("Truncation = %+v", resp.Meta.Truncation)
	}
}

func TestBuilderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"store down", errors.New(errors.StoreUnavailable, "down", nil), Unavailable},
		{"wrapped not found", fmt.Errorf("lookup: %w", errors.ErrNotFound), NotFound},
		{"malformed", errors.New(errors.MalformedSpecOrDoc, "no method", nil), Invalid},
		{"partial", errors.New(errors.PartialIngestionFailure, "slack failed", nil), Partial},
		{"plain", stderrors.New("boom"), Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := New().Error(tt.err).Build()
			if resp.Status != tt.want {
				t.Errorf("Status = %q, want %q", resp.Status, tt.want)
			}
			if resp.Error == nil || *resp.Error != tt.err.Error() {
				t.Errorf("Error = %v, want %q", resp.Error, tt.err.Error())
			}
		})
	}

	if resp := New().Error(nil).Build(); resp.Error != nil || resp.Status != OK {
		t.Error("nil error should leave the response untouched")
	}
}

func TestWorse(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{OK, OK, OK},
		{OK, Partial, Partial},
		{Unavailable, Partial, Unavailable},
		{NotFound, Invalid, Invalid},
		{"", NotFound, NotFound},
	}
	for _, tt := range tests {
		if got := Worse(tt.a, tt.b); got != tt.want {
			t.Errorf("Worse(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestResponseJSONSerialization(t *testing.T) {
	resp := New().
		Data(map[string]string{"id": "comp:payments"}).
		Status(Unavailable).
		WarningWithCode("STORE_UNAVAILABLE", "graph store disabled").
		Build()

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["status"] != "UNAVAILABLE" {
		t.Errorf("status = %v", decoded["status"])
	}
	if decoded["fallback"] != true {
		t.Errorf("fallback = %v", decoded["fallback"])
	}
	if _, ok := decoded["meta"]; ok {
		t.Error("meta should be omitted when empty")
	}
	warnings, ok := decoded["warnings"].([]interface{})
	if !ok || len(warnings) != 1 {
		t.Errorf("warnings = %v", decoded["warnings"])
	}
}

func TestOperational(t *testing.T) {
	resp := Operational("ok")
	if resp.Status != OK || resp.Data != "ok" {
		t.Errorf("Operational() = %+v", resp)
	}
}
