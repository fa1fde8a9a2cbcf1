// Package export writes and restores portable snapshots of the graph and
// its DocIssues. Archives are JSON, optionally zstd-compressed.
package export

import (
	"time"

	"docdrift/internal/graph"
	"docdrift/internal/issues"
)

// FormatName identifies docdrift archives.
const FormatName = "docdrift-snapshot"

// FormatVersion is bumped when the archive layout changes incompatibly.
const FormatVersion = 1

// Archive is a full or filtered snapshot.
type Archive struct {
	Metadata Metadata           `json:"metadata"`
	Nodes    []graph.Node       `json:"nodes"`
	Edges    []graph.Edge       `json:"edges"`
	Issues   []*issues.DocIssue `json:"issues,omitempty"`
}

// Metadata describes where and when an archive was taken.
type Metadata struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	Generated  time.Time `json:"generated"`
	Backend    string    `json:"backend"`
	NodeCount  int       `json:"nodeCount"`
	EdgeCount  int       `json:"edgeCount"`
	IssueCount int       `json:"issueCount"`
}

// Options configures Export.
type Options struct {
	// Kinds keeps only nodes of these kinds, and edges between kept nodes.
	Kinds         []graph.NodeKind
	IncludeIssues bool
}

// ImportResult counts what Import changed.
type ImportResult struct {
	NodesCreated int `json:"nodesCreated"`
	NodesUpdated int `json:"nodesUpdated"`
	EdgesCreated int `json:"edgesCreated"`
	EdgesUpdated int `json:"edgesUpdated"`
	Issues       int `json:"issues"`
}
