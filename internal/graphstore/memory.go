package graphstore

import (
	"context"
	"sync"
	"time"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
)

// MemoryStore keeps the graph in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	nodes map[string]*graph.Node
	order []string

	edges []*graph.Edge
	byKey map[string]int
	out   map[string][]int
	in    map[string][]int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		now:   time.Now,
		nodes: make(map[string]*graph.Node),
		byKey: make(map[string]int),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
	}
}

func (s *MemoryStore) Backend() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Apply stages the mutation on copies and swaps them in only when every step succeeds.
func (s *MemoryStore) Apply(ctx context.Context, m Mutation) (ApplyResult, error) {
	if err := ctx.Err(); err != nil {
		return ApplyResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var res ApplyResult
	staged := make(map[string]*graph.Node)
	lookup := func(id string) *graph.Node {
		if n, ok := staged[id]; ok {
			return n
		}
		return s.nodes[id]
	}

	for _, u := range m.Nodes {
		kind, err := resolveKind(u.ID, u.Kind)
		if err != nil {
			return ApplyResult{}, err
		}
		if cur := lookup(u.ID); cur != nil {
			merged, _, changed, err := mergeProps(cur.Props, u.Props)
			if err != nil {
				return ApplyResult{}, err
			}
			if !changed {
				continue
			}
			next := *cur
			next.Props = merged
			next.UpdatedAt = now
			staged[u.ID] = &next
			if _, existed := s.nodes[u.ID]; existed {
				res.NodesUpdated++
			}
			continue
		}
		props, _, err := normalizeProps(u.Props)
		if err != nil {
			return ApplyResult{}, err
		}
		staged[u.ID] = &graph.Node{ID: u.ID, Kind: kind, Props: props, CreatedAt: now, UpdatedAt: now}
		res.NodesCreated++
	}

	for _, id := range m.Stubs {
		if lookup(id) != nil {
			continue
		}
		kind, err := resolveKind(id, "")
		if err != nil {
			return ApplyResult{}, err
		}
		staged[id] = &graph.Node{ID: id, Kind: kind, Props: graph.Props{}, CreatedAt: now, UpdatedAt: now}
		res.NodesCreated++
	}

	stagedEdges := make(map[string]*graph.Edge)
	var newKeys []string
	for _, e := range m.Edges {
		if lookup(e.Src) == nil {
			return ApplyResult{}, danglingEdge(e, e.Src)
		}
		if lookup(e.Dst) == nil {
			return ApplyResult{}, danglingEdge(e, e.Dst)
		}
		key := e.Key()
		cur := stagedEdges[key]
		if cur == nil {
			if i, ok := s.byKey[key]; ok {
				cur = s.edges[i]
			}
		}
		if cur != nil {
			merged, _, changed, err := mergeProps(cur.Props, e.Props)
			if err != nil {
				return ApplyResult{}, err
			}
			if !changed {
				continue
			}
			next := *cur
			next.Props = merged
			stagedEdges[key] = &next
			if _, existed := s.byKey[key]; existed {
				res.EdgesUpdated++
			}
			continue
		}
		props, _, err := normalizeProps(e.Props)
		if err != nil {
			return ApplyResult{}, err
		}
		stagedEdges[key] = &graph.Edge{Src: e.Src, Dst: e.Dst, Kind: e.Kind, Props: props}
		newKeys = append(newKeys, key)
		res.EdgesCreated++
	}

	// Commit.
	for _, u := range append(nodeIDs(m), m.Stubs...) {
		n, ok := staged[u]
		if !ok {
			continue
		}
		if _, exists := s.nodes[u]; !exists {
			s.order = append(s.order, u)
		}
		s.nodes[u] = n
		delete(staged, u)
	}
	for key, e := range stagedEdges {
		if i, ok := s.byKey[key]; ok {
			s.edges[i] = e
		}
	}
	for _, key := range newKeys {
		e := stagedEdges[key]
		i := len(s.edges)
		s.edges = append(s.edges, e)
		s.byKey[key] = i
		s.out[e.Src] = append(s.out[e.Src], i)
		s.in[e.Dst] = append(s.in[e.Dst], i)
	}
	return res, nil
}

func nodeIDs(m Mutation) []string {
	ids := make([]string, len(m.Nodes))
	for i, u := range m.Nodes {
		ids[i] = u.ID
	}
	return ids
}

func (s *MemoryStore) Node(_ context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errors.New(errors.UnknownEntityReference, "no node "+id, nil)
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) NodesByKind(_ context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Node
	for _, id := range s.order {
		if n := s.nodes[id]; n.Kind == kind {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *MemoryStore) Edges(_ context.Context, id string, dir graph.Direction, kinds ...graph.EdgeKind) ([]graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idx []int
	switch dir {
	case graph.Out:
		idx = s.out[id]
	case graph.In:
		idx = s.in[id]
	default:
		idx = mergeSorted(s.out[id], s.in[id])
	}

	want := kindSet(kinds)
	out := make([]graph.Edge, 0, len(idx))
	for _, i := range idx {
		e := s.edges[i]
		if want != nil && !want[e.Kind] {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// mergeSorted merges two ascending index lists, dropping duplicates (self loops).
func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func (s *MemoryStore) Counts(context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{Nodes: len(s.nodes), Edges: len(s.edges), ByKind: make(map[string]int)}
	for _, n := range s.nodes {
		c.ByKind[string(n.Kind)]++
	}
	return c, nil
}

func (s *MemoryStore) Snapshot(context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Nodes: make([]graph.Node, 0, len(s.order)),
		Edges: make([]graph.Edge, 0, len(s.edges)),
	}
	for _, id := range s.order {
		snap.Nodes = append(snap.Nodes, *s.nodes[id])
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, *e)
	}
	return snap, nil
}

func (s *MemoryStore) Raw(context.Context, string, map[string]any) ([]Row, error) {
	return nil, errors.New(errors.Unsupported, "raw queries need a sqlite or postgres store", nil)
}
