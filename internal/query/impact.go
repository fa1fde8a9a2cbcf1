package query

import (
	"context"

	"docdrift/internal/envelope"
	"docdrift/internal/graph"
)

// APIImpact lists what is affected by a change to an endpoint.
type APIImpact struct {
	EndpointID   string   `json:"endpointId"`
	Services     []string `json:"services"`
	Docs         []string `json:"docs"`
	Issues       []string `json:"issues"`
	PullRequests []string `json:"pullRequests"`
	// Provider is the service that owns the endpoint, also listed in Services.
	Provider   string   `json:"provider,omitempty"`
	Components []string `json:"components,omitempty"`
}

func emptyImpact(id string) *APIImpact {
	return &APIImpact{
		EndpointID:   id,
		Services:     []string{},
		Docs:         []string{},
		Issues:       []string{},
		PullRequests: []string{},
	}
}

var impactEdges = []graph.EdgeKind{
	graph.EdgeModifiesEndpoint,
	graph.EdgeDescribesEndpoint,
	graph.EdgeCallsEndpoint,
	graph.EdgeProvidesEndpoint,
	graph.EdgeExposesEndpoint,
}

// APIImpact follows MODIFIES_ENDPOINT, DESCRIBES_ENDPOINT and the calling and
// providing service edges of an endpoint.
func (e *Engine) APIImpact(ctx context.Context, id string) (*APIImpact, envelope.Status) {
	out := emptyImpact(id)
	if status := e.exists(ctx, id); status != envelope.OK {
		return out, status
	}

	edges, err := e.store.Edges(ctx, id, graph.In, impactEdges...)
	if err != nil {
		return out, e.classify(err)
	}
	seen := map[string]bool{}
	for _, edge := range edges {
		src := edge.Src
		if seen[src] {
			continue
		}
		seen[src] = true
		switch edge.Kind {
		case graph.EdgeCallsEndpoint, graph.EdgeProvidesEndpoint:
			out.Services = append(out.Services, src)
			if edge.Kind == graph.EdgeProvidesEndpoint {
				out.Provider = src
			}
		case graph.EdgeDescribesEndpoint:
			out.Docs = append(out.Docs, src)
		case graph.EdgeExposesEndpoint:
			out.Components = append(out.Components, src)
		case graph.EdgeModifiesEndpoint:
			if kind, _ := graph.KindOf(src); kind == graph.KindPullRequest {
				out.PullRequests = append(out.PullRequests, src)
			} else {
				out.Issues = append(out.Issues, src)
			}
		}
	}
	return out, e.classify(nil)
}
