package ingest

import (
	"context"
	"strings"
	"time"

	"docdrift/internal/diff"
	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
)

// Commit is a git commit with its unified-diff patch.
type Commit struct {
	Repo    string
	SHA     string
	Branch  string
	Author  string
	Message string
	At      time.Time
	Patch   string
	Props   graph.Props
}

// UpsertCommit records a git ActivitySignal keyed by repo, sha and commit
// time; a commit without a timestamp is rejected. Every file in the
// patch becomes a CodeArtifact, and the signal is linked to each component
// that owns a touched file as well as to any related ids.
func (in *Ingestor) UpsertCommit(ctx context.Context, c Commit, related ...string) Result {
	if c.Repo == "" || c.SHA == "" {
		return failed("", errors.New(errors.InvalidEvent, "commit needs repo and sha", nil))
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.At.IsZero() {
		return failed("", errors.New(errors.InvalidEvent, "commit needs a timestamp", nil))
	}
	at := c.At.UTC()

	changes, err := diff.ParsePatch(c.Patch)
	if err != nil {
		return failed("", errors.New(errors.InvalidEvent, "unparseable patch", err))
	}

	// The sha keeps distinct commits with equal timestamps apart.
	signalID := graph.SignalID("git", c.Repo+"@"+c.SHA, at)
	props := withDefault(c.Props, graph.PropSource, "git")
	props = withDefault(props, "type", "commit")
	props = withDefault(props, "channel", c.Branch)
	props = withDefault(props, "started_at", at.Format(time.RFC3339Nano))
	props = withDefault(props, "repo", c.Repo)
	props = withDefault(props, "sha", c.SHA)
	if c.Author != "" {
		props = withDefault(props, "author", c.Author)
	}
	if c.Message != "" {
		subject, _, _ := strings.Cut(c.Message, "\n")
		props = withDefault(props, "message", subject)
	}
	props = withDefault(props, "files", len(changes))

	m := graphstore.Mutation{Nodes: []graphstore.NodeUpsert{{ID: signalID, Kind: graph.KindActivitySignal, Props: props}}}
	targets := append([]string(nil), related...)

	for _, fc := range changes {
		path := fc.Path()
		if path == "" {
			continue
		}
		codeID := graph.CodeID(c.Repo, path)
		m.Nodes = append(m.Nodes, graphstore.NodeUpsert{
			ID:   codeID,
			Kind: graph.KindCodeArtifact,
			Props: graph.Props{
				"repo":          c.Repo,
				"path":          path,
				"language":      fc.Language,
				"last_modified": at.Format(time.RFC3339Nano),
			},
		})

		owners, err := in.store.Edges(ctx, codeID, graph.In, graph.EdgeOwnsCode)
		if err != nil {
			return failed(signalID, err)
		}
		for _, e := range owners {
			if kind, _ := graph.KindOf(e.Src); kind == graph.KindComponent {
				targets = append(targets, e.Src)
			}
		}
	}

	edgeProps := weighted("git", at, props)
	seen := map[string]bool{}
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		e, ok := graph.Connect(signalID, target)
		if !ok {
			return failed(signalID, errors.New(errors.InvalidEvent, "cannot link commit signal to "+target, nil))
		}
		e.Props = edgeProps()
		m.Stubs = append(m.Stubs, target)
		m.Edges = append(m.Edges, e)
	}

	return in.apply(ctx, signalID, m)
}
