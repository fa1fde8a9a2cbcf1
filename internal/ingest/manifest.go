package ingest

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
)

// Manifest declares the static topology: components, services with their
// endpoints, docs and code ownership. It is loaded from TOML:
//
//	repo = "acme/payments"
//
//	[[component]]
//	name = "payments"
//	code = ["internal/charge/charge.go"]
//
//	[[service]]
//	name = "payments-api"
//	  [[service.endpoint]]
//	  method = "POST"
//	  path = "/payments/charge"
//	  component = "payments"
//
//	[[doc]]
//	url = "https://docs.acme.dev/payments"
//	version = "2.0"
//	components = ["payments"]
type Manifest struct {
	Repo       string              `toml:"repo"`
	Components []ManifestComponent `toml:"component"`
	Services   []ManifestService   `toml:"service"`
	Docs       []ManifestDoc       `toml:"doc"`
	Code       []ManifestCode      `toml:"code"`
}

// ManifestComponent declares a component and the code it owns.
type ManifestComponent struct {
	Name  string         `toml:"name"`
	Code  []string       `toml:"code"`
	Props map[string]any `toml:"props"`
}

// ManifestService declares a service, the code it owns and the endpoints it provides.
type ManifestService struct {
	Name      string             `toml:"name"`
	Code      []string           `toml:"code"`
	Calls     []string           `toml:"calls"` // endpoint ids called by this service
	Endpoints []ManifestEndpoint `toml:"endpoint"`
	Props     map[string]any     `toml:"props"`
}

// ManifestEndpoint declares one HTTP operation.
type ManifestEndpoint struct {
	Method    string         `toml:"method"`
	Path      string         `toml:"path"`
	Component string         `toml:"component"`
	Props     map[string]any `toml:"props"`
}

// ManifestDoc declares a documentation source and what it describes.
type ManifestDoc struct {
	URL        string         `toml:"url"`
	Version    string         `toml:"version"`
	Components []string       `toml:"components"`
	Endpoints  []string       `toml:"endpoints"` // endpoint ids
	Props      map[string]any `toml:"props"`
}

// ManifestCode declares a code artifact and its dependencies.
type ManifestCode struct {
	Repo      string         `toml:"repo"`
	Path      string         `toml:"path"`
	Language  string         `toml:"language"`
	DependsOn []string       `toml:"depends_on"`
	Props     map[string]any `toml:"props"`
}

// LoadManifest reads a TOML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a TOML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, errors.New(errors.InvalidEvent, "manifest is not valid TOML", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.InvalidEvent, fmt.Sprintf("unknown manifest key %s", undecoded[0]), nil)
	}
	return &m, nil
}

// Batch converts the manifest into ingestion events. Endpoints are emitted
// after the components and services they link to.
func (m *Manifest) Batch() (Batch, error) {
	b := Batch{Source: "manifest"}
	add := func(e Event) { b.Events = append(b.Events, e) }

	for _, c := range m.Components {
		if c.Name == "" {
			return Batch{}, errors.New(errors.InvalidEvent, "component without a name", nil)
		}
		related := make([]string, 0, len(c.Code))
		for _, p := range c.Code {
			related = append(related, graph.CodeID(m.Repo, p))
		}
		add(Event{Kind: EventComponent, Key: []string{c.Name}, Props: c.Props, Related: related})
	}

	for _, s := range m.Services {
		if s.Name == "" {
			return Batch{}, errors.New(errors.InvalidEvent, "service without a name", nil)
		}
		related := make([]string, 0, len(s.Code)+len(s.Calls))
		for _, p := range s.Code {
			related = append(related, graph.CodeID(m.Repo, p))
		}
		related = append(related, s.Calls...)
		add(Event{Kind: EventService, Key: []string{s.Name}, Props: s.Props, Related: related})

		for _, ep := range s.Endpoints {
			var rel []string
			if ep.Component != "" {
				rel = append(rel, graph.ComponentID(ep.Component))
			}
			add(Event{Kind: EventAPIEndpoint, Key: []string{s.Name, ep.Method, ep.Path}, Props: ep.Props, Related: rel})
		}
	}

	for _, d := range m.Docs {
		props := d.Props
		if d.Version != "" {
			props = withDefault(props, "version", d.Version)
		}
		var related []string
		for _, c := range d.Components {
			related = append(related, graph.ComponentID(c))
		}
		related = append(related, d.Endpoints...)
		add(Event{Kind: EventDoc, Key: []string{d.URL}, Props: props, Related: related})
	}

	for _, c := range m.Code {
		repo := c.Repo
		if repo == "" {
			repo = m.Repo
		}
		props := c.Props
		if c.Language != "" {
			props = withDefault(props, "language", c.Language)
		}
		var related []string
		for _, dep := range c.DependsOn {
			related = append(related, graph.CodeID(repo, dep))
		}
		add(Event{Kind: EventCodeArtifact, Key: []string{repo, c.Path}, Props: props, Related: related})
	}

	for i, e := range b.Events {
		if err := e.Validate(); err != nil {
			return Batch{}, fmt.Errorf("manifest entry %d (%s): %w", i, e.Kind, err)
		}
	}
	return b, nil
}
