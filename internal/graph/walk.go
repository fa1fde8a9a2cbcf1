package graph

import "context"

// NeighborFunc returns the ids adjacent to id, in encounter order.
type NeighborFunc func(ctx context.Context, id string) ([]string, error)

// Visit is one node reached by Walk.
type Visit struct {
	ID    string
	Depth int
}

// Walk performs a breadth-first traversal from start up to maxDepth hops,
// visiting each node at most once. The start node is not included.
// maxNodes caps the result; 0 means unbounded. When ctx is done, Walk
// returns the visits collected so far together with ctx.Err().
func Walk(ctx context.Context, start string, maxDepth, maxNodes int, next NeighborFunc) ([]Visit, error) {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var out []Visit

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var following []string
		for _, id := range frontier {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			neighbors, err := next(ctx, id)
			if err != nil {
				return out, err
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				out = append(out, Visit{ID: n, Depth: depth})
				if maxNodes > 0 && len(out) >= maxNodes {
					return out, nil
				}
				following = append(following, n)
			}
		}
		frontier = following
	}
	return out, nil
}
