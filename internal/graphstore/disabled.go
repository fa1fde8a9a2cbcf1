package graphstore

import (
	"context"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
)

// DisabledStore answers every call with STORE_UNAVAILABLE.
type DisabledStore struct {
	reason string
}

// NewDisabled creates a store that is never available.
func NewDisabled(reason string) *DisabledStore {
	return &DisabledStore{reason: reason}
}

// Reason explains why the store is disabled.
func (s *DisabledStore) Reason() string { return s.reason }

func (s *DisabledStore) err() error {
	return errors.New(errors.StoreUnavailable, "graph store unavailable: "+s.reason, nil)
}

func (s *DisabledStore) Backend() string            { return "disabled" }
func (s *DisabledStore) Ping(context.Context) error { return s.err() }
func (s *DisabledStore) Close() error               { return nil }

func (s *DisabledStore) Counts(context.Context) (Counts, error) {
	return Counts{}, s.err()
}

func (s *DisabledStore) Apply(context.Context, Mutation) (ApplyResult, error) {
	return ApplyResult{}, s.err()
}

func (s *DisabledStore) Node(context.Context, string) (*graph.Node, error) {
	return nil, s.err()
}

func (s *DisabledStore) NodesByKind(context.Context, graph.NodeKind) ([]graph.Node, error) {
	return nil, s.err()
}

func (s *DisabledStore) Edges(context.Context, string, graph.Direction, ...graph.EdgeKind) ([]graph.Edge, error) {
	return nil, s.err()
}

func (s *DisabledStore) Snapshot(context.Context) (*Snapshot, error) {
	return nil, s.err()
}

func (s *DisabledStore) Raw(context.Context, string, map[string]any) ([]Row, error) {
	return nil, s.err()
}
