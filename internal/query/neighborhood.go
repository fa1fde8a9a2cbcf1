package query

import (
	"context"

	"docdrift/internal/envelope"
	"docdrift/internal/graph"
)

// Neighborhood groups the ids surrounding a component by kind, each in encounter order.
type Neighborhood struct {
	ComponentID  string   `json:"componentId"`
	Depth        int      `json:"depth"`
	Docs         []string `json:"docs"`
	Issues       []string `json:"issues"`
	PullRequests []string `json:"pullRequests"`
	SlackThreads []string `json:"slackThreads"`
	APIEndpoints []string `json:"apiEndpoints"`
	Truncated    bool     `json:"truncated,omitempty"`
}

func emptyNeighborhood(id string, depth int) *Neighborhood {
	return &Neighborhood{
		ComponentID:  id,
		Depth:        depth,
		Docs:         []string{},
		Issues:       []string{},
		PullRequests: []string{},
		SlackThreads: []string{},
		APIEndpoints: []string{},
	}
}

// Size returns the number of grouped ids.
func (n *Neighborhood) Size() int {
	return len(n.Docs) + len(n.Issues) + len(n.PullRequests) + len(n.SlackThreads) + len(n.APIEndpoints)
}

func (n *Neighborhood) add(id string) {
	kind, _ := graph.KindOf(id)
	switch kind {
	case graph.KindDoc:
		n.Docs = append(n.Docs, id)
	case graph.KindIssue:
		n.Issues = append(n.Issues, id)
	case graph.KindPullRequest:
		n.PullRequests = append(n.PullRequests, id)
	case graph.KindSlackThread:
		n.SlackThreads = append(n.SlackThreads, id)
	case graph.KindAPIEndpoint:
		n.APIEndpoints = append(n.APIEndpoints, id)
	}
}

// Neighborhood traverses every edge touching id up to depth hops (the
// configured default when depth <= 0). Unknown ids and an unavailable store
// yield empty groups; a cancelled traversal returns what was collected.
func (e *Engine) Neighborhood(ctx context.Context, id string, depth int) (*Neighborhood, envelope.Status) {
	if depth <= 0 {
		depth = e.cfg.NeighborhoodDepth
	}
	out := emptyNeighborhood(id, depth)
	if status := e.exists(ctx, id); status != envelope.OK {
		return out, status
	}

	visits, err := graph.Walk(ctx, id, depth, e.cfg.MaxNodes, e.neighbors())
	for _, v := range visits {
		out.add(v.ID)
	}
	out.Truncated = len(visits) >= e.cfg.MaxNodes
	return out, e.classify(err)
}
