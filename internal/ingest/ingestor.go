// Package ingest writes normalized events into the graph store. Every upsert
// is a merge keyed by a deterministic id, so applying the same event twice, or
// two events touching one node in either order, converges to the same graph.
package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"docdrift/internal/envelope"
	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
)

// Result is the outcome of one upsert. Failures are reported, never raised.
type Result struct {
	Status  envelope.Status        `json:"status"`
	NodeID  string                 `json:"nodeId,omitempty"`
	Changes graphstore.ApplyResult `json:"changes"`
	Err     error                  `json:"-"`
}

// OK reports whether the upsert was applied.
func (r Result) OK() bool { return r.Status == envelope.OK }

// Error returns the failure message, if any.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func failed(id string, err error) Result {
	return Result{Status: envelope.StatusOf(err), NodeID: id, Err: err}
}

// Ingestor upserts nodes and their relationships.
type Ingestor struct {
	store  graphstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates an ingestor writing to store.
func New(store graphstore.Store, logger *slog.Logger) *Ingestor {
	return &Ingestor{store: store, logger: logger, now: time.Now}
}

// Store returns the underlying graph store.
func (in *Ingestor) Store() graphstore.Store { return in.store }

// UpsertComponent merges comp:<name>.
func (in *Ingestor) UpsertComponent(ctx context.Context, name string, props graph.Props, related ...string) Result {
	return in.upsert(ctx, graph.KindComponent, []string{name}, withDefault(props, "name", name), related, nil)
}

// UpsertService merges svc:<name>. Related endpoints are linked as called by the service.
func (in *Ingestor) UpsertService(ctx context.Context, name string, props graph.Props, related ...string) Result {
	return in.upsert(ctx, graph.KindService, []string{name}, withDefault(props, "name", name), related, nil)
}

// UpsertDoc merges doc:<url>.
func (in *Ingestor) UpsertDoc(ctx context.Context, url string, props graph.Props, related ...string) Result {
	return in.upsert(ctx, graph.KindDoc, []string{url}, withDefault(props, "url", url), related, nil)
}

// UpsertIssue merges issue:<tracker>:<key>.
func (in *Ingestor) UpsertIssue(ctx context.Context, tracker, key string, props graph.Props, related ...string) Result {
	props = withDefault(props, "tracker", tracker)
	return in.upsert(ctx, graph.KindIssue, []string{tracker, key}, withDefault(props, "key", key), related, nil)
}

// UpsertPR merges pr:<repo>:<number>.
func (in *Ingestor) UpsertPR(ctx context.Context, repo string, number int, props graph.Props, related ...string) Result {
	props = withDefault(props, "repo", repo)
	props = withDefault(props, "number", number)
	return in.upsert(ctx, graph.KindPullRequest, []string{repo, strconv.Itoa(number)}, props, related, nil)
}

// UpsertAPIEndpoint merges api:<service>:<METHOD>:<path> and links the owning
// service through PROVIDES_ENDPOINT.
func (in *Ingestor) UpsertAPIEndpoint(ctx context.Context, service, method, path string, props graph.Props, related ...string) Result {
	props = withDefault(props, "service", service)
	props = withDefault(props, "method", strings.ToUpper(method))
	props = withDefault(props, "path", path)
	related = append([]string{graph.ServiceID(service)}, related...)
	return in.upsert(ctx, graph.KindAPIEndpoint, []string{service, method, path}, props, related, nil)
}

// UpsertCodeArtifact merges code:<repo>:<path>. Related code artifacts become DEPENDS_ON targets.
func (in *Ingestor) UpsertCodeArtifact(ctx context.Context, repo, path string, props graph.Props, related ...string) Result {
	props = withDefault(props, "repo", repo)
	return in.upsert(ctx, graph.KindCodeArtifact, []string{repo, path}, withDefault(props, "path", path), related, nil)
}

// UpsertActivitySignal merges signal:<source>:<channel>:<at>. Edges to related
// components or endpoints are weighted by the signal's magnitude (default 1).
func (in *Ingestor) UpsertActivitySignal(ctx context.Context, source, channel string, at time.Time, props graph.Props, related ...string) Result {
	at = at.UTC()
	props = withDefault(props, graph.PropSource, source)
	props = withDefault(props, "channel", channel)
	props = withDefault(props, "started_at", at.Format(time.RFC3339Nano))
	key := []string{source, channel, at.Format(time.RFC3339Nano)}
	return in.upsert(ctx, graph.KindActivitySignal, key, props, related, weighted(source, at, props))
}

// UpsertSupportCase merges support:<source>:<caseId> with weighted edges
// last seen at opened_at. A case without opened_at keeps the value stored by
// its first ingestion, or now when it is new.
func (in *Ingestor) UpsertSupportCase(ctx context.Context, source, caseID string, props graph.Props, related ...string) Result {
	props = withDefault(props, graph.PropSource, source)
	at, ok := props.Time("opened_at")
	if !ok {
		opened, err := in.storedTime(ctx, graph.KindSupportCase, []string{source, caseID}, "opened_at")
		if err != nil {
			return failed("", err)
		}
		if opened.IsZero() {
			opened = in.now()
		}
		at = opened.UTC()
		props = withDefault(props, "opened_at", at.Format(time.RFC3339Nano))
	}
	return in.upsert(ctx, graph.KindSupportCase, []string{source, caseID}, props, related, weighted("support", at, props))
}

// UpsertSlackThread merges slack:<channel>:<ts>.
func (in *Ingestor) UpsertSlackThread(ctx context.Context, channel, ts string, props graph.Props, related ...string) Result {
	props = withDefault(props, "channel", channel)
	return in.upsert(ctx, graph.KindSlackThread, []string{channel, ts}, withDefault(props, "ts", ts), related, nil)
}

// storedTime reads a time property from an existing node. A missing node,
// stub or property yields the zero time.
func (in *Ingestor) storedTime(ctx context.Context, kind graph.NodeKind, key []string, prop string) (time.Time, error) {
	id, err := graph.ID(kind, key...)
	if err != nil {
		return time.Time{}, errors.New(errors.InvalidEvent, err.Error(), nil)
	}
	n, err := in.store.Node(ctx, id)
	if stderrors.Is(err, errors.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, _ := n.Props.Time(prop)
	return t, nil
}

// weighted returns the property builder for weighted edges.
func weighted(source string, at time.Time, props graph.Props) func() graph.Props {
	return func() graph.Props {
		w, ok := props.Float(graph.PropMagnitude)
		if !ok {
			w = 1
		}
		return graph.Props{
			graph.PropSignalWeight: w,
			graph.PropLastSeen:     at.UTC().Format(time.RFC3339Nano),
			graph.PropSource:       source,
		}
	}
}

// upsert builds one atomic mutation: the node, stubs for related ids and the linking edges.
func (in *Ingestor) upsert(ctx context.Context, kind graph.NodeKind, key []string, props graph.Props, related []string, edgeProps func() graph.Props) Result {
	id, err := graph.ID(kind, key...)
	if err != nil {
		return failed("", errors.New(errors.InvalidEvent, err.Error(), nil))
	}

	m := graphstore.Mutation{Nodes: []graphstore.NodeUpsert{{ID: id, Kind: kind, Props: props}}}
	seen := map[string]bool{}
	for _, rel := range related {
		if rel == "" || rel == id || seen[rel] {
			continue
		}
		seen[rel] = true
		e, ok := graph.Connect(id, rel)
		if !ok {
			return failed(id, errors.New(errors.InvalidEvent,
				fmt.Sprintf("cannot link %s to %s", id, rel), nil))
		}
		if edgeProps != nil && e.Kind.Weighted() {
			e.Props = edgeProps()
		}
		m.Stubs = append(m.Stubs, rel)
		m.Edges = append(m.Edges, e)
	}

	return in.apply(ctx, id, m)
}

func (in *Ingestor) apply(ctx context.Context, id string, m graphstore.Mutation) Result {
	changes, err := in.store.Apply(ctx, m)
	if err != nil {
		in.logger.Debug("Upsert failed", "id", id, "error", err.Error())
		return failed(id, err)
	}
	if changes.Changed() {
		in.logger.Debug("Upserted node",
			"id", id,
			"nodes_created", changes.NodesCreated,
			"edges_created", changes.EdgesCreated,
		)
	}
	return Result{Status: envelope.OK, NodeID: id, Changes: changes}
}

// withDefault copies props and sets key when absent.
func withDefault(props graph.Props, key string, value any) graph.Props {
	out := make(graph.Props, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}
