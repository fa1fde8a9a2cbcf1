package query

import (
	"context"

	"docdrift/internal/envelope"
	"docdrift/internal/graph"
)

// RelatedOptions controls the related-entities query.
type RelatedOptions struct {
	Depth int              // hops collected around the seed (default 2)
	TopK  int              // default 20
	Kinds []graph.NodeKind // keep only these kinds when set
}

// Related is the ranked set of entities most connected to a node.
type Related struct {
	ID         string         `json:"id"`
	Results    []graph.Ranked `json:"results"`
	Converged  bool           `json:"converged"`
	Iterations int            `json:"iterations"`
	Subgraph   int            `json:"subgraphNodes"`
}

// Related ranks the nodes around id with personalized PageRank over the
// subgraph within Depth hops. Weighted edges count with their signal weight,
// so components sharing heavy activity rank close together.
func (e *Engine) Related(ctx context.Context, id string, opts RelatedOptions) (*Related, envelope.Status) {
	if opts.Depth <= 0 {
		opts.Depth = 2
	}
	out := &Related{ID: id, Results: []graph.Ranked{}}
	if status := e.exists(ctx, id); status != envelope.OK {
		return out, status
	}

	var edges []graph.Edge
	seen := map[string]bool{}
	next := func(ctx context.Context, node string) ([]string, error) {
		touching, err := e.store.Edges(ctx, node, graph.Both)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(touching))
		for _, edge := range touching {
			if k := edge.Key(); !seen[k] {
				seen[k] = true
				edges = append(edges, edge)
			}
			ids = append(ids, edge.Other(node))
		}
		return ids, nil
	}
	_, walkErr := graph.Walk(ctx, id, opts.Depth, e.cfg.MaxNodes, next)
	if status := e.classify(walkErr); status == envelope.Unavailable {
		return out, status
	}

	adj := graph.NewAdjacency(edges)
	rankOpts := graph.DefaultRankOptions()
	if opts.TopK > 0 {
		rankOpts.TopK = opts.TopK
	}
	if len(opts.Kinds) > 0 {
		// Filter before truncating so TopK applies to the requested kinds.
		rankOpts.TopK = adj.Len()
	}
	res, err := adj.Rank(ctx, []string{id}, rankOpts)
	if err != nil && res == nil {
		return out, e.classify(err)
	}
	if walkErr == nil {
		walkErr = err
	}

	results := res.Results
	if len(opts.Kinds) > 0 {
		results = graph.FilterByKind(results, opts.Kinds...)
		limit := opts.TopK
		if limit <= 0 {
			limit = graph.DefaultRankOptions().TopK
		}
		if len(results) > limit {
			results = results[:limit]
		}
	}
	if results != nil {
		out.Results = results
	}
	out.Converged = res.Converged
	out.Iterations = res.Iterations
	out.Subgraph = adj.Len()

	if walkErr != nil {
		return out, envelope.Partial
	}
	return out, envelope.OK
}
