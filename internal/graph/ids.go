package graph

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var prefixes = map[string]NodeKind{
	"comp":    KindComponent,
	"svc":     KindService,
	"doc":     KindDoc,
	"issue":   KindIssue,
	"pr":      KindPullRequest,
	"api":     KindAPIEndpoint,
	"code":    KindCodeArtifact,
	"signal":  KindActivitySignal,
	"support": KindSupportCase,
	"slack":   KindSlackThread,
}

// KindOf returns the node kind encoded in id's prefix.
func KindOf(id string) (NodeKind, bool) {
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok || rest == "" {
		return "", false
	}
	kind, ok := prefixes[prefix]
	return kind, ok
}

// Arity is the number of natural-key parts each kind's id is built from.
var Arity = map[NodeKind]int{
	KindComponent:      1,
	KindService:        1,
	KindDoc:            1,
	KindIssue:          2,
	KindPullRequest:    2,
	KindAPIEndpoint:    3,
	KindCodeArtifact:   2,
	KindActivitySignal: 3,
	KindSupportCase:    2,
	KindSlackThread:    2,
}

// ID builds the id of a node from its natural key.
func ID(kind NodeKind, key ...string) (string, error) {
	want, ok := Arity[kind]
	if !ok {
		return "", fmt.Errorf("unknown node kind %q", kind)
	}
	if len(key) != want {
		return "", fmt.Errorf("%s key needs %d parts, got %d", kind, want, len(key))
	}
	parts := make([]string, len(key))
	for i, k := range key {
		k = strings.TrimSpace(k)
		if k == "" {
			return "", fmt.Errorf("%s key part %d is empty", kind, i)
		}
		parts[i] = k
	}
	if kind == KindAPIEndpoint {
		parts[1] = strings.ToUpper(parts[1])
		parts[2] = EndpointPath(parts[2])
	}
	return prefixFor(kind) + ":" + strings.Join(parts, ":"), nil
}

func prefixFor(kind NodeKind) string {
	for p, k := range prefixes {
		if k == kind {
			return p
		}
	}
	return ""
}

// ComponentID returns comp:<name>.
func ComponentID(name string) string { return "comp:" + strings.TrimSpace(name) }

// ServiceID returns svc:<name>.
func ServiceID(name string) string { return "svc:" + strings.TrimSpace(name) }

// DocID returns doc:<url>.
func DocID(url string) string { return "doc:" + strings.TrimSpace(url) }

// IssueID returns issue:<tracker>:<key>.
func IssueID(tracker, key string) string { return "issue:" + tracker + ":" + key }

// PullRequestID returns pr:<repo>:<number>.
func PullRequestID(repo string, number int) string { return fmt.Sprintf("pr:%s:%d", repo, number) }

// EndpointID returns api:<service>:<METHOD>:<path>.
func EndpointID(service, method, path string) string {
	return "api:" + service + ":" + strings.ToUpper(method) + ":" + EndpointPath(path)
}

var colonParam = regexp.MustCompile(`/:([A-Za-z0-9_]+)`)

// EndpointPath normalizes an API path: /:id placeholders become /{id} and a
// trailing slash is dropped.
func EndpointPath(path string) string {
	path = strings.TrimSpace(path)
	path = colonParam.ReplaceAllString(path, "/{$1}")
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// CodeID returns code:<repo>:<path>.
func CodeID(repo, path string) string { return "code:" + repo + ":" + path }

// SignalID returns signal:<source>:<channel>:<timestamp> with the timestamp in UTC RFC 3339.
func SignalID(source, channel string, at time.Time) string {
	return "signal:" + source + ":" + channel + ":" + at.UTC().Format(time.RFC3339Nano)
}

// SupportID returns support:<source>:<caseId>.
func SupportID(source, caseID string) string { return "support:" + source + ":" + caseID }

// SlackThreadID returns slack:<channel>:<ts>.
func SlackThreadID(channel, ts string) string { return "slack:" + channel + ":" + ts }
