package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/graphstore"
	"docdrift/internal/issues"
)

// zstdMagic opens every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Exporter snapshots a store and restores archives into one.
type Exporter struct {
	store  graphstore.Store
	issues issues.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. repo may be nil when issues are not carried.
func NewExporter(store graphstore.Store, repo issues.Repository, logger *slog.Logger) *Exporter {
	return &Exporter{store: store, issues: repo, logger: logger, now: time.Now}
}

// Export reads the store into an archive.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Archive, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}

	a := &Archive{
		Metadata: Metadata{
			Format:    FormatName,
			Version:   FormatVersion,
			Generated: e.now().UTC(),
			Backend:   e.store.Backend(),
		},
		Nodes: snap.Nodes,
		Edges: snap.Edges,
	}
	if len(opts.Kinds) > 0 {
		a.Nodes, a.Edges = filterKinds(snap.Nodes, snap.Edges, opts.Kinds)
	}
	if a.Nodes == nil {
		a.Nodes = []graph.Node{}
	}
	if a.Edges == nil {
		a.Edges = []graph.Edge{}
	}

	if opts.IncludeIssues && e.issues != nil {
		list, err := e.issues.List(ctx, issues.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list issues: %w", err)
		}
		a.Issues = list
	}

	a.Metadata.NodeCount = len(a.Nodes)
	a.Metadata.EdgeCount = len(a.Edges)
	a.Metadata.IssueCount = len(a.Issues)

	e.logger.Debug("Exported snapshot",
		"nodes", a.Metadata.NodeCount,
		"edges", a.Metadata.EdgeCount,
		"issues", a.Metadata.IssueCount,
	)
	return a, nil
}

func filterKinds(nodes []graph.Node, edges []graph.Edge, kinds []graph.NodeKind) ([]graph.Node, []graph.Edge) {
	want := make(map[graph.NodeKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	kept := make(map[string]bool)
	outNodes := make([]graph.Node, 0, len(nodes))
	for _, n := range nodes {
		if want[n.Kind] {
			kept[n.ID] = true
			outNodes = append(outNodes, n)
		}
	}
	outEdges := make([]graph.Edge, 0)
	for _, edge := range edges {
		if kept[edge.Src] && kept[edge.Dst] {
			outEdges = append(outEdges, edge)
		}
	}
	return outNodes, outEdges
}

// Import merges an archive into the store in one atomic mutation, then
// saves its issues. Importing the same archive twice changes nothing.
func (e *Exporter) Import(ctx context.Context, a *Archive) (*ImportResult, error) {
	if err := a.check(); err != nil {
		return nil, err
	}

	m := graphstore.Mutation{
		Nodes: make([]graphstore.NodeUpsert, 0, len(a.Nodes)),
		Edges: a.Edges,
	}
	for _, n := range a.Nodes {
		m.Nodes = append(m.Nodes, graphstore.NodeUpsert{ID: n.ID, Kind: n.Kind, Props: n.Props})
	}

	out := &ImportResult{}
	if !m.Empty() {
		res, err := e.store.Apply(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("failed to import graph: %w", err)
		}
		out.NodesCreated, out.NodesUpdated = res.NodesCreated, res.NodesUpdated
		out.EdgesCreated, out.EdgesUpdated = res.EdgesCreated, res.EdgesUpdated
	}

	if len(a.Issues) > 0 && e.issues != nil {
		if err := e.issues.Save(ctx, a.Issues...); err != nil {
			return out, fmt.Errorf("failed to import issues: %w", err)
		}
		out.Issues = len(a.Issues)
	}

	e.logger.Info("Imported snapshot",
		"nodesCreated", out.NodesCreated,
		"edgesCreated", out.EdgesCreated,
		"issues", out.Issues,
	)
	return out, nil
}

func (a *Archive) check() error {
	if a.Metadata.Format != FormatName {
		return errors.New(errors.InvalidEvent, fmt.Sprintf("not a %s archive", FormatName), nil)
	}
	if a.Metadata.Version > FormatVersion {
		return errors.New(errors.Unsupported,
			fmt.Sprintf("archive version %d is newer than supported version %d", a.Metadata.Version, FormatVersion), nil)
	}
	return nil
}

// Write encodes a as JSON, zstd-compressed when compress is set.
func Write(w io.Writer, a *Archive, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(a); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode archive: %w", err)
	}
	return zw.Close()
}

// Read decodes an archive, detecting zstd compression from the frame header.
func Read(r io.Reader) (*Archive, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var a Archive
	if err := json.NewDecoder(src).Decode(&a); err != nil {
		return nil, errors.New(errors.InvalidEvent, "archive is not valid JSON", err)
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return &a, nil
}

// WriteFile writes an archive to path.
func WriteFile(path string, a *Archive, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, a, compress); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads an archive from path.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
