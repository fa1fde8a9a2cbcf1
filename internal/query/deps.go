package query

import (
	"context"

	"docdrift/internal/envelope"
	"docdrift/internal/graph"
)

// Dependency is one code artifact in a DEPENDS_ON closure.
type Dependency struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
}

// Dependencies is the transitive DEPENDS_ON closure of a code artifact.
type Dependencies struct {
	CodeID       string       `json:"codeId"`
	Dependencies []Dependency `json:"dependencies"`
	Truncated    bool         `json:"truncated,omitempty"`
}

// Dependencies walks outgoing DEPENDS_ON edges breadth-first. Cycles are
// visited once; the result is capped at the configured node limit.
func (e *Engine) Dependencies(ctx context.Context, codeID string) (*Dependencies, envelope.Status) {
	out := &Dependencies{CodeID: codeID, Dependencies: []Dependency{}}
	if status := e.exists(ctx, codeID); status != envelope.OK {
		return out, status
	}

	next := func(ctx context.Context, id string) ([]string, error) {
		edges, err := e.store.Edges(ctx, id, graph.Out, graph.EdgeDependsOn)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(edges))
		for _, edge := range edges {
			ids = append(ids, edge.Dst)
		}
		return ids, nil
	}

	visits, err := graph.Walk(ctx, codeID, e.cfg.MaxNodes, e.cfg.MaxNodes, next)
	for _, v := range visits {
		out.Dependencies = append(out.Dependencies, Dependency{ID: v.ID, Depth: v.Depth})
	}
	out.Truncated = len(visits) >= e.cfg.MaxNodes
	return out, e.classify(err)
}
