// Package signals harvests scoring events from the graph. Each provider
// (git, slack, issues, tickets, support) is a Source that returns the
// normalized events linked to a component since a point in time.
package signals

import (
	"context"
	"sort"
	"time"

	"docdrift/internal/config"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
)

// Source names.
const (
	Git     = "git"
	Slack   = "slack"
	Issues  = "issues"
	Tickets = "tickets"
	Support = "support"
)

// ActivitySources are the providers recorded as ActivitySignal nodes.
var ActivitySources = []string{Git, Slack, Issues, Tickets}

// Event is one weighted observation harvested from a signal edge.
type Event struct {
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
	Magnitude float64   `json:"magnitude"`
	// Link is the id of the signal or support-case node.
	Link string `json:"link"`
	// Via is the endpoint the event reached the component through, if any.
	Via string `json:"via,omitempty"`
}

// Source fetches a provider's events for a component.
type Source interface {
	Name() string
	Events(ctx context.Context, componentID string, since time.Time) ([]Event, error)
}

// edgeSource reads weighted edges into a component and into the endpoints it exposes.
type edgeSource struct {
	name          string
	store         graphstore.Store
	componentEdge graph.EdgeKind
	endpointEdge  graph.EdgeKind
	// match reports whether an edge belongs to this source.
	match func(graph.Edge) bool
}

// NewActivitySource returns the source reading ActivitySignal edges whose source property is name.
func NewActivitySource(name string, store graphstore.Store) Source {
	return &edgeSource{
		name:          name,
		store:         store,
		componentEdge: graph.EdgeSignalsComponent,
		endpointEdge:  graph.EdgeSignalsEndpoint,
		match:         func(e graph.Edge) bool { return e.Props.String(graph.PropSource) == name },
	}
}

// NewSupportSource returns the source reading SupportCase edges.
func NewSupportSource(store graphstore.Store) Source {
	return &edgeSource{
		name:          Support,
		store:         store,
		componentEdge: graph.EdgeSupportsComponent,
		endpointEdge:  graph.EdgeSupportsEndpoint,
		match:         func(graph.Edge) bool { return true },
	}
}

func (s *edgeSource) Name() string { return s.name }

// Events returns events last seen at or after since, oldest first. Edges
// without a last_seen timestamp are skipped.
func (s *edgeSource) Events(ctx context.Context, componentID string, since time.Time) ([]Event, error) {
	edges, err := s.store.Edges(ctx, componentID, graph.In, s.componentEdge)
	if err != nil {
		return nil, err
	}
	var out []Event
	out = s.collect(out, edges, "", since)

	exposed, err := s.store.Edges(ctx, componentID, graph.Out, graph.EdgeExposesEndpoint)
	if err != nil {
		return nil, err
	}
	for _, ex := range exposed {
		edges, err := s.store.Edges(ctx, ex.Dst, graph.In, s.endpointEdge)
		if err != nil {
			return nil, err
		}
		out = s.collect(out, edges, ex.Dst, since)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (s *edgeSource) collect(out []Event, edges []graph.Edge, via string, since time.Time) []Event {
	for _, e := range edges {
		if !s.match(e) {
			continue
		}
		at, ok := e.LastSeen()
		if !ok || at.Before(since) {
			continue
		}
		out = append(out, Event{
			Source:    s.name,
			At:        at,
			Magnitude: e.Weight(),
			Link:      e.Src,
			Via:       via,
		})
	}
	return out
}

// Registry holds the sources of every enabled modality.
type Registry struct {
	sources map[string]Source
}

// NewRegistry registers a source for every known provider and every weighted
// source in cfg, skipping disabled modalities.
func NewRegistry(store graphstore.Store, cfg *config.Config) *Registry {
	r := &Registry{sources: map[string]Source{}}
	names := append([]string(nil), ActivitySources...)
	for name := range cfg.Weights {
		names = append(names, name)
	}
	for _, name := range names {
		if name == Support || !cfg.ModalityEnabled(name) {
			continue
		}
		r.Register(NewActivitySource(name, store))
	}
	if cfg.ModalityEnabled(Support) {
		r.Register(NewSupportSource(store))
	}
	return r
}

// Register adds or replaces a source.
func (r *Registry) Register(s Source) {
	r.sources[s.Name()] = s
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collect fetches every source's events for componentID.
func (r *Registry) Collect(ctx context.Context, componentID string, since time.Time) (map[string][]Event, error) {
	out := make(map[string][]Event, len(r.sources))
	for _, name := range r.Names() {
		events, err := r.sources[name].Events(ctx, componentID, since)
		if err != nil {
			return out, err
		}
		out[name] = events
	}
	return out, nil
}
