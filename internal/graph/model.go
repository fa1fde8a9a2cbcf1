// Package graph defines the property-graph model: node and edge kinds,
// deterministic node ids, the edge-kind resolution table and traversals.
package graph

import (
	"encoding/json"
	"strconv"
	"time"
)

// NodeKind identifies the type of a node.
type NodeKind string

const (
	KindComponent      NodeKind = "Component"
	KindService        NodeKind = "Service"
	KindDoc            NodeKind = "Doc"
	KindIssue          NodeKind = "Issue"
	KindPullRequest    NodeKind = "PullRequest"
	KindAPIEndpoint    NodeKind = "APIEndpoint"
	KindCodeArtifact   NodeKind = "CodeArtifact"
	KindActivitySignal NodeKind = "ActivitySignal"
	KindSupportCase    NodeKind = "SupportCase"
	KindSlackThread    NodeKind = "SlackThread"
)

// AllNodeKinds lists every node kind.
var AllNodeKinds = []NodeKind{
	KindComponent, KindService, KindDoc, KindIssue, KindPullRequest,
	KindAPIEndpoint, KindCodeArtifact, KindActivitySignal, KindSupportCase, KindSlackThread,
}

// EdgeKind identifies the type of a directed edge.
type EdgeKind string

const (
	EdgeOwnsCode           EdgeKind = "OWNS_CODE"
	EdgeDependsOn          EdgeKind = "DEPENDS_ON"
	EdgeModifiesComponent  EdgeKind = "MODIFIES_COMPONENT"
	EdgeDescribesComponent EdgeKind = "DESCRIBES_COMPONENT"
	EdgeModifiesEndpoint   EdgeKind = "MODIFIES_ENDPOINT"
	EdgeDescribesEndpoint  EdgeKind = "DESCRIBES_ENDPOINT"
	EdgeSignalsComponent   EdgeKind = "SIGNALS_COMPONENT"
	EdgeSignalsEndpoint    EdgeKind = "SIGNALS_ENDPOINT"
	EdgeSupportsComponent  EdgeKind = "SUPPORTS_COMPONENT"
	EdgeSupportsEndpoint   EdgeKind = "SUPPORTS_ENDPOINT"
	EdgeExposesEndpoint    EdgeKind = "EXPOSES_ENDPOINT"
	EdgeProvidesEndpoint   EdgeKind = "PROVIDES_ENDPOINT"
	EdgeCallsEndpoint      EdgeKind = "CALLS_ENDPOINT"
	EdgeDiscussesComponent EdgeKind = "DISCUSSES_COMPONENT"
)

// Weighted reports whether edges of this kind carry signal_weight and last_seen.
func (k EdgeKind) Weighted() bool {
	switch k {
	case EdgeSignalsComponent, EdgeSignalsEndpoint, EdgeSupportsComponent, EdgeSupportsEndpoint:
		return true
	}
	return false
}

// Property keys with meaning to the engine.
const (
	PropSignalWeight = "signal_weight"
	PropLastSeen     = "last_seen"
	PropSource       = "source"
	PropMagnitude    = "magnitude"
)

// Direction selects edges relative to a node.
type Direction int

const (
	Out Direction = iota
	In
	Both
)

// Props is a node or edge property bag.
type Props map[string]any

// Merge returns a copy of p with every key of next written over it.
func (p Props) Merge(next Props) Props {
	out := make(Props, len(p)+len(next))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// String returns the string value of key, or "".
func (p Props) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case json.Number:
		return v.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Float returns the numeric value of key and whether one was present.
func (p Props) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Time returns the timestamp stored at key.
func (p Props) Time(key string) (time.Time, bool) {
	switch v := p[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	}
	return time.Time{}, false
}

// Node is a vertex in the graph.
type Node struct {
	ID        string    `json:"id"`
	Kind      NodeKind  `json:"kind"`
	Props     Props     `json:"props,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Edge is a directed relationship. (Src, Dst, Kind) identifies it.
type Edge struct {
	Src   string   `json:"src"`
	Dst   string   `json:"dst"`
	Kind  EdgeKind `json:"kind"`
	Props Props    `json:"props,omitempty"`
}

// Key returns the identity of the edge.
func (e Edge) Key() string {
	return e.Src + "|" + string(e.Kind) + "|" + e.Dst
}

// Other returns the endpoint of e that is not id.
func (e Edge) Other(id string) string {
	if e.Src == id {
		return e.Dst
	}
	return e.Src
}

// Weight returns signal_weight. Edges written before weights existed read as 0.
func (e Edge) Weight() float64 {
	w, _ := e.Props.Float(PropSignalWeight)
	return w
}

// LastSeen returns the last_seen timestamp of a weighted edge.
func (e Edge) LastSeen() (time.Time, bool) {
	return e.Props.Time(PropLastSeen)
}
