// Package graphstore persists the property graph. Every backend implements
// Store; Open picks one from configuration and falls back to the disabled
// backend when the store is turned off or unreachable.
package graphstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"docdrift/internal/config"
	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/storage"
)

// NodeUpsert merges Props into the node ID, creating it if absent.
type NodeUpsert struct {
	ID    string
	Kind  graph.NodeKind // derived from the id prefix when empty
	Props graph.Props
}

// Mutation is applied atomically: either every node and edge is written or none is.
type Mutation struct {
	Nodes []NodeUpsert
	// Stubs are ids that must exist; absent ones are created with no properties.
	Stubs []string
	// Edges are merged after nodes and stubs. An endpoint that still does not exist fails the mutation.
	Edges []graph.Edge
}

// Empty reports whether the mutation writes nothing.
func (m Mutation) Empty() bool {
	return len(m.Nodes) == 0 && len(m.Stubs) == 0 && len(m.Edges) == 0
}

// ApplyResult counts what a mutation changed. Re-applying a mutation changes nothing.
type ApplyResult struct {
	NodesCreated int `json:"nodesCreated"`
	NodesUpdated int `json:"nodesUpdated"`
	EdgesCreated int `json:"edgesCreated"`
	EdgesUpdated int `json:"edgesUpdated"`
}

// Changed reports whether anything was written.
func (r ApplyResult) Changed() bool {
	return r.NodesCreated+r.NodesUpdated+r.EdgesCreated+r.EdgesUpdated > 0
}

// Add accumulates another result.
func (r *ApplyResult) Add(o ApplyResult) {
	r.NodesCreated += o.NodesCreated
	r.NodesUpdated += o.NodesUpdated
	r.EdgesCreated += o.EdgesCreated
	r.EdgesUpdated += o.EdgesUpdated
}

// Counts summarizes store contents.
type Counts struct {
	Nodes  int            `json:"nodes"`
	Edges  int            `json:"edges"`
	ByKind map[string]int `json:"byKind"`
}

// Snapshot is the full store contents in insertion order.
type Snapshot struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// Row is one result row of a raw query.
type Row map[string]any

// Store is the graph persistence contract.
type Store interface {
	// Backend names the implementation: memory, sqlite, postgres or disabled.
	Backend() string
	Ping(ctx context.Context) error
	Apply(ctx context.Context, m Mutation) (ApplyResult, error)
	// Node returns errors.ErrNotFound when id does not exist.
	Node(ctx context.Context, id string) (*graph.Node, error)
	NodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.Node, error)
	// Edges returns edges touching id in insertion order, optionally filtered by kind.
	Edges(ctx context.Context, id string, dir graph.Direction, kinds ...graph.EdgeKind) ([]graph.Edge, error)
	Counts(ctx context.Context) (Counts, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
	// Raw runs a read-only backend-native query with named parameters.
	Raw(ctx context.Context, query string, params map[string]any) ([]Row, error)
	Close() error
}

// Open returns the configured store. It never returns nil: when the store is
// disabled or cannot be reached the disabled backend is returned together
// with the reason.
func Open(ctx context.Context, root string, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if !cfg.Enabled {
		logger.Warn("Graph store disabled by configuration")
		return NewDisabled("disabled by configuration"), nil
	}

	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(config.Dir, "docdrift.db")
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		db, err := storage.Open(path, logger)
		if err != nil {
			logger.Warn("Graph store unavailable", "backend", "sqlite", "error", err.Error())
			return NewDisabled(err.Error()), errors.New(errors.StoreUnavailable, "open sqlite store", err)
		}
		return NewSQLite(db, logger), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
		defer cancel()
		pg, err := NewPostgres(ctx, cfg.PostgresDSN(), logger)
		if err != nil {
			logger.Warn("Graph store unavailable", "backend", "postgres", "address", cfg.Address, "error", err.Error())
			return NewDisabled(err.Error()), errors.New(errors.StoreUnavailable, "connect postgres store", err)
		}
		return pg, nil
	default:
		return NewDisabled("unknown backend"), fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// normalizeProps round-trips props through JSON so every backend stores and
// returns the same value types (numbers as float64, times as RFC 3339 strings).
func normalizeProps(p graph.Props) (graph.Props, []byte, error) {
	if len(p) == 0 {
		return graph.Props{}, []byte("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, nil, errors.New(errors.InvalidEvent, "properties are not JSON encodable", err)
	}
	out, err := decodeProps(data)
	return out, data, err
}

func decodeProps(data []byte) (graph.Props, error) {
	out := graph.Props{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return out, nil
}

// mergeProps merges next over old and reports whether the result differs from old.
func mergeProps(old, next graph.Props) (graph.Props, []byte, bool, error) {
	merged, data, err := normalizeProps(old.Merge(next))
	if err != nil {
		return nil, nil, false, err
	}
	oldData, err := json.Marshal(old)
	if err != nil {
		return nil, nil, false, err
	}
	if len(old) == 0 {
		oldData = []byte("{}")
	}
	return merged, data, !bytes.Equal(oldData, data), nil
}

// resolveKind validates a node's kind against its id prefix.
func resolveKind(id string, kind graph.NodeKind) (graph.NodeKind, error) {
	derived, ok := graph.KindOf(id)
	if !ok {
		return "", errors.New(errors.InvalidEvent, fmt.Sprintf("id %q has no known kind prefix", id), nil)
	}
	if kind != "" && kind != derived {
		return "", errors.New(errors.InvalidEvent, fmt.Sprintf("id %q is a %s, not a %s", id, derived, kind), nil)
	}
	return derived, nil
}

func danglingEdge(e graph.Edge, missing string) error {
	return errors.New(errors.DanglingEdge,
		fmt.Sprintf("%s edge %s -> %s references missing node %s", e.Kind, e.Src, e.Dst, missing), nil)
}

// readOnly rejects raw statements that could mutate the graph.
func readOnly(query string) error {
	q := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH") || strings.HasPrefix(q, "EXPLAIN") {
		return nil
	}
	return errors.New(errors.InvalidEvent, "raw queries must be read-only (SELECT or WITH)", nil)
}

func kindSet(kinds []graph.EdgeKind) map[graph.EdgeKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[graph.EdgeKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
