package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
)

// Event kinds accepted in batches.
const (
	EventComponent      = "component"
	EventService        = "service"
	EventDoc            = "doc"
	EventIssue          = "issue"
	EventPR             = "pr"
	EventAPIEndpoint    = "api_endpoint"
	EventCodeArtifact   = "code_artifact"
	EventActivitySignal = "activity_signal"
	EventSupportCase    = "support_case"
	EventSlackThread    = "slack_thread"
	EventCommit         = "commit"
)

// keyParts is the natural-key arity of every event kind.
var keyParts = map[string]int{
	EventComponent:      1, // name
	EventService:        1, // name
	EventDoc:            1, // url
	EventIssue:          2, // tracker, key
	EventPR:             2, // repo, number
	EventAPIEndpoint:    3, // service, method, path
	EventCodeArtifact:   2, // repo, path
	EventActivitySignal: 3, // source, channel, RFC 3339 timestamp
	EventSupportCase:    2, // source, case id
	EventSlackThread:    2, // channel, ts
	EventCommit:         2, // repo, sha
}

// Event is one normalized ingestion record.
type Event struct {
	Kind    string         `json:"kind" toml:"kind" validate:"required,oneof=component service doc issue pr api_endpoint code_artifact activity_signal support_case slack_thread commit"`
	Key     []string       `json:"key" toml:"key" validate:"required,min=1,dive,required"`
	Props   map[string]any `json:"props,omitempty" toml:"props"`
	Related []string       `json:"related,omitempty" toml:"related" validate:"dive,required"`
	// Patch is the unified diff of a commit event.
	Patch string `json:"patch,omitempty" toml:"patch"`
}

// Batch is a run of events from one source, applied in order.
type Batch struct {
	Source string  `json:"source" validate:"required"`
	Events []Event `json:"events" validate:"dive"`
}

var validate = validator.New()

// Validate checks the event's shape and key arity.
func (e Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.New(errors.InvalidEvent, "event failed validation", err)
	}
	if want := keyParts[e.Kind]; len(e.Key) != want {
		return errors.New(errors.InvalidEvent,
			fmt.Sprintf("%s key needs %d parts, got %d", e.Kind, want, len(e.Key)), nil)
	}
	return nil
}

// Ingest validates and applies one event.
func (in *Ingestor) Ingest(ctx context.Context, e Event) Result {
	if err := e.Validate(); err != nil {
		return failed("", err)
	}
	props := graph.Props(e.Props)
	k := e.Key

	switch e.Kind {
	case EventComponent:
		return in.UpsertComponent(ctx, k[0], props, e.Related...)
	case EventService:
		return in.UpsertService(ctx, k[0], props, e.Related...)
	case EventDoc:
		return in.UpsertDoc(ctx, k[0], props, e.Related...)
	case EventIssue:
		return in.UpsertIssue(ctx, k[0], k[1], props, e.Related...)
	case EventPR:
		n, err := strconv.Atoi(strings.TrimPrefix(k[1], "#"))
		if err != nil {
			return failed("", errors.New(errors.InvalidEvent, "pr number must be an integer: "+k[1], nil))
		}
		return in.UpsertPR(ctx, k[0], n, props, e.Related...)
	case EventAPIEndpoint:
		return in.UpsertAPIEndpoint(ctx, k[0], k[1], k[2], props, e.Related...)
	case EventCodeArtifact:
		return in.UpsertCodeArtifact(ctx, k[0], k[1], props, e.Related...)
	case EventActivitySignal:
		at, err := time.Parse(time.RFC3339Nano, k[2])
		if err != nil {
			return failed("", errors.New(errors.InvalidEvent, "signal timestamp must be RFC 3339: "+k[2], nil))
		}
		return in.UpsertActivitySignal(ctx, k[0], k[1], at, props, e.Related...)
	case EventSupportCase:
		return in.UpsertSupportCase(ctx, k[0], k[1], props, e.Related...)
	case EventSlackThread:
		return in.UpsertSlackThread(ctx, k[0], k[1], props, e.Related...)
	case EventCommit:
		c := Commit{
			Repo:    k[0],
			SHA:     k[1],
			Branch:  props.String("branch"),
			Author:  props.String("author"),
			Message: props.String("message"),
			Patch:   e.Patch,
		}
		if at, ok := props.Time("at"); ok {
			c.At = at
		}
		c.Props = withoutKeys(props, "branch", "author", "message", "at")
		return in.UpsertCommit(ctx, c, e.Related...)
	}
	return failed("", errors.New(errors.InvalidEvent, "unknown event kind "+e.Kind, nil))
}

func withoutKeys(props graph.Props, keys ...string) graph.Props {
	out := make(graph.Props, len(props))
	for k, v := range props {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
