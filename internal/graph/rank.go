package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// RankOptions configures personalized PageRank over the property graph.
type RankOptions struct {
	Damping       float64 // probability of following an edge (default 0.85)
	MaxIterations int     // default 30
	Tolerance     float64 // default 1e-6
	TopK          int     // default 20
}

// DefaultRankOptions returns the defaults used by the related-entities query.
func DefaultRankOptions() RankOptions {
	return RankOptions{Damping: 0.85, MaxIterations: 30, Tolerance: 1e-6, TopK: 20}
}

// Ranked is one node scored by Rank.
type Ranked struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Score float64  `json:"score"`
	Path  []string `json:"path,omitempty"` // seed → node, following the heaviest edges
}

// RankResult is the output of Rank.
type RankResult struct {
	Results    []Ranked `json:"results"`
	Iterations int      `json:"iterations"`
	Converged  bool     `json:"converged"`
	TotalNodes int      `json:"totalNodes"`
}

type arc struct {
	to     int
	weight float64
}

// Adjacency is an undirected weighted view of a set of edges.
// Weighted edges count with their signal_weight; all others weigh 1.
type Adjacency struct {
	ids   []string
	index map[string]int
	arcs  [][]arc
}

// NewAdjacency builds an adjacency view from edges.
func NewAdjacency(edges []Edge) *Adjacency {
	a := &Adjacency{index: make(map[string]int)}
	for _, e := range edges {
		w := 1.0
		if e.Kind.Weighted() {
			if sw := e.Weight(); sw > 0 {
				w = sw
			}
		}
		s, d := a.add(e.Src), a.add(e.Dst)
		a.arcs[s] = append(a.arcs[s], arc{to: d, weight: w})
		a.arcs[d] = append(a.arcs[d], arc{to: s, weight: w})
	}
	return a
}

func (a *Adjacency) add(id string) int {
	if i, ok := a.index[id]; ok {
		return i
	}
	i := len(a.ids)
	a.ids = append(a.ids, id)
	a.index[id] = i
	a.arcs = append(a.arcs, nil)
	return i
}

// Len returns the number of nodes.
func (a *Adjacency) Len() int { return len(a.ids) }

// Rank computes personalized PageRank seeded at seeds and returns the
// highest-scoring non-seed nodes. Cancellation returns the scores of the
// last completed iteration.
func (a *Adjacency) Rank(ctx context.Context, seeds []string, opts RankOptions) (*RankResult, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed nodes provided")
	}
	def := DefaultRankOptions()
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = def.Damping
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}

	n := len(a.ids)
	res := &RankResult{Results: []Ranked{}, TotalNodes: n}
	seedSet := make(map[int]bool)
	for _, s := range seeds {
		if i, ok := a.index[s]; ok {
			seedSet[i] = true
		}
	}
	if len(seedSet) == 0 {
		return res, nil
	}

	teleport := make([]float64, n)
	for i := range seedSet {
		teleport[i] = 1 / float64(len(seedSet))
	}
	degree := make([]float64, n)
	for i, arcs := range a.arcs {
		for _, e := range arcs {
			degree[i] += e.weight
		}
	}

	scores := append([]float64(nil), teleport...)
	next := make([]float64, n)
	var err error
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err = ctx.Err(); err != nil {
			break
		}
		for i := range next {
			next[i] = 0
		}
		for i, arcs := range a.arcs {
			if degree[i] == 0 {
				continue
			}
			share := scores[i] / degree[i]
			for _, e := range arcs {
				next[e.to] += share * e.weight
			}
		}
		delta := 0.0
		for i := range next {
			next[i] = opts.Damping*next[i] + (1-opts.Damping)*teleport[i]
			delta = math.Max(delta, math.Abs(next[i]-scores[i]))
		}
		scores, next = next, scores
		res.Iterations = iter + 1
		if delta < opts.Tolerance {
			res.Converged = true
			break
		}
	}

	order := make([]int, 0, n)
	for i, s := range scores {
		if s > 0 && !seedSet[i] {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(x, y int) bool {
		if scores[order[x]] != scores[order[y]] {
			return scores[order[x]] > scores[order[y]]
		}
		return a.ids[order[x]] < a.ids[order[y]]
	})
	if len(order) > opts.TopK {
		order = order[:opts.TopK]
	}
	for _, i := range order {
		kind, _ := KindOf(a.ids[i])
		res.Results = append(res.Results, Ranked{
			ID:    a.ids[i],
			Kind:  kind,
			Score: scores[i],
			Path:  a.pathFromSeed(i, seedSet, 6),
		})
	}
	return res, err
}

// pathFromSeed walks greedily along the heaviest unvisited arc until a seed is reached.
func (a *Adjacency) pathFromSeed(target int, seeds map[int]bool, maxDepth int) []string {
	path := []string{a.ids[target]}
	visited := map[int]bool{target: true}
	cur := target
	for depth := 0; depth < maxDepth; depth++ {
		best, bestW := -1, 0.0
		for _, e := range a.arcs[cur] {
			if visited[e.to] {
				continue
			}
			if seeds[e.to] {
				best = e.to
				break
			}
			if e.weight > bestW {
				best, bestW = e.to, e.weight
			}
		}
		if best < 0 {
			break
		}
		path = append(path, a.ids[best])
		visited[best] = true
		if seeds[best] {
			break
		}
		cur = best
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FilterByKind keeps results of the given kinds.
func FilterByKind(results []Ranked, kinds ...NodeKind) []Ranked {
	if len(kinds) == 0 {
		return results
	}
	out := make([]Ranked, 0, len(results))
	for _, r := range results {
		for _, k := range kinds {
			if r.Kind == k {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// FilterByPrefix keeps results whose id starts with prefix.
func FilterByPrefix(results []Ranked, prefix string) []Ranked {
	out := make([]Ranked, 0, len(results))
	for _, r := range results {
		if strings.HasPrefix(r.ID, prefix) {
			out = append(out, r)
		}
	}
	return out
}
