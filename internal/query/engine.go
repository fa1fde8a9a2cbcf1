// Package query answers read-only questions about the graph: what surrounds a
// component, what depends on an API endpoint, the DEPENDS_ON closure of a code
// artifact and which entities are most related to a node. Every operation
// returns a well-typed result together with an envelope.Status; an
// unavailable store yields the same empty shape as "nothing found".
package query

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"docdrift/internal/config"
	"docdrift/internal/envelope"
	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
)

// Engine is the graph query service.
type Engine struct {
	store  graphstore.Store
	logger *slog.Logger
	cfg    config.QueryConfig

	mu       sync.Mutex
	degraded bool
}

// NewEngine creates a query engine over store.
func NewEngine(store graphstore.Store, cfg config.QueryConfig, logger *slog.Logger) *Engine {
	if cfg.NeighborhoodDepth <= 0 {
		cfg.NeighborhoodDepth = 1
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 500
	}
	return &Engine{store: store, logger: logger, cfg: cfg}
}

// Backend names the store serving queries.
func (e *Engine) Backend() string { return e.store.Backend() }

// Ping checks the store, updating the degraded state.
func (e *Engine) Ping(ctx context.Context) error {
	err := e.store.Ping(ctx)
	e.classify(err)
	return err
}

// Degraded reports whether the last store call failed.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// classify maps a store error to a status, logging the transition into and
// out of degraded mode once.
func (e *Engine) classify(err error) envelope.Status {
	switch {
	case err == nil:
		e.setDegraded(false, nil)
		return envelope.OK
	case stderrors.Is(err, errors.ErrNotFound):
		e.setDegraded(false, nil)
		return envelope.NotFound
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return envelope.Partial
	default:
		e.setDegraded(true, err)
		return envelope.Unavailable
	}
}

func (e *Engine) setDegraded(degraded bool, cause error) {
	e.mu.Lock()
	changed := e.degraded != degraded
	e.degraded = degraded
	e.mu.Unlock()
	if !changed {
		return
	}
	if degraded {
		e.logger.Warn("Graph store degraded, serving empty results",
			"backend", e.store.Backend(),
			"error", cause.Error(),
		)
		return
	}
	e.logger.Info("Graph store recovered", "backend", e.store.Backend())
}

// neighbors returns a NeighborFunc following edges of the given kinds in both directions.
func (e *Engine) neighbors(kinds ...graph.EdgeKind) graph.NeighborFunc {
	return func(ctx context.Context, id string) ([]string, error) {
		edges, err := e.store.Edges(ctx, id, graph.Both, kinds...)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(edges))
		for _, edge := range edges {
			out = append(out, edge.Other(id))
		}
		return out, nil
	}
}

// exists checks id, returning NOT_FOUND for malformed or unknown ids.
func (e *Engine) exists(ctx context.Context, id string) envelope.Status {
	if _, ok := graph.KindOf(id); !ok {
		// Still probe the store so a disabled backend reports UNAVAILABLE.
		if err := e.store.Ping(ctx); err != nil {
			return e.classify(err)
		}
		return envelope.NotFound
	}
	_, err := e.store.Node(ctx, id)
	return e.classify(err)
}
