package graph

// Link is the edge implied by relating a node of one kind to a node of another.
type Link struct {
	Kind     EdgeKind
	Reversed bool // the related node is the edge source
}

type kindPair struct {
	from, to NodeKind
}

// links resolves (ingested kind, related kind) to an edge.
// A Service ingested with a related endpoint calls it; an endpoint ingested
// with a related Service is provided by it.
var links = map[kindPair]Link{
	{KindComponent, KindCodeArtifact}:    {Kind: EdgeOwnsCode},
	{KindCodeArtifact, KindComponent}:    {Kind: EdgeOwnsCode, Reversed: true},
	{KindService, KindCodeArtifact}:      {Kind: EdgeOwnsCode},
	{KindCodeArtifact, KindService}:      {Kind: EdgeOwnsCode, Reversed: true},
	{KindCodeArtifact, KindCodeArtifact}: {Kind: EdgeDependsOn},

	{KindComponent, KindAPIEndpoint}: {Kind: EdgeExposesEndpoint},
	{KindAPIEndpoint, KindComponent}: {Kind: EdgeExposesEndpoint, Reversed: true},
	{KindService, KindAPIEndpoint}:   {Kind: EdgeCallsEndpoint},
	{KindAPIEndpoint, KindService}:   {Kind: EdgeProvidesEndpoint, Reversed: true},

	{KindIssue, KindComponent}:       {Kind: EdgeModifiesComponent},
	{KindIssue, KindAPIEndpoint}:     {Kind: EdgeModifiesEndpoint},
	{KindPullRequest, KindComponent}: {Kind: EdgeModifiesComponent},
	{KindPullRequest, KindAPIEndpoint}: {Kind: EdgeModifiesEndpoint},

	{KindDoc, KindComponent}:   {Kind: EdgeDescribesComponent},
	{KindDoc, KindAPIEndpoint}: {Kind: EdgeDescribesEndpoint},

	{KindActivitySignal, KindComponent}:   {Kind: EdgeSignalsComponent},
	{KindActivitySignal, KindAPIEndpoint}: {Kind: EdgeSignalsEndpoint},
	{KindSupportCase, KindComponent}:      {Kind: EdgeSupportsComponent},
	{KindSupportCase, KindAPIEndpoint}:    {Kind: EdgeSupportsEndpoint},

	{KindSlackThread, KindComponent}: {Kind: EdgeDiscussesComponent},
}

// EdgeFor returns the edge linking a node of kind from to a related node of kind to.
func EdgeFor(from, to NodeKind) (Link, bool) {
	l, ok := links[kindPair{from, to}]
	return l, ok
}

// Connect builds the edge between id and related, oriented per EdgeFor.
func Connect(id, related string) (Edge, bool) {
	from, ok := KindOf(id)
	if !ok {
		return Edge{}, false
	}
	to, ok := KindOf(related)
	if !ok {
		return Edge{}, false
	}
	l, ok := EdgeFor(from, to)
	if !ok {
		return Edge{}, false
	}
	if l.Reversed {
		return Edge{Src: related, Dst: id, Kind: l.Kind}, true
	}
	return Edge{Src: id, Dst: related, Kind: l.Kind}, true
}
