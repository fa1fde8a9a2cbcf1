package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"docdrift/internal/drift"
	"docdrift/internal/envelope"
	"docdrift/internal/graph"
	"docdrift/internal/ingest"
	"docdrift/internal/issues"
	"docdrift/internal/query"
)

// pathID reads the :id parameter, undoing %2F escaping.
func pathID(c echo.Context) (string, error) {
	id, err := url.PathUnescape(c.Param("id"))
	if err != nil || strings.TrimSpace(id) == "" {
		return "", badRequest("invalid id", err)
	}
	return id, nil
}

// componentID accepts either a full node id or a bare component name.
func componentID(id string) string {
	if _, ok := graph.KindOf(id); ok {
		return id
	}
	return graph.ComponentID(id)
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(fmt.Sprintf("%s must be a non-negative integer", name), err)
	}
	return n, nil
}

func (s *Server) envelope() *envelope.Builder {
	b := envelope.New()
	if s.deps.Engine != nil {
		b.Backend(s.deps.Engine.Backend())
	}
	return b
}

// GET /api/components/:id/neighborhood?depth=N
func (s *Server) handleNeighborhood(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	depth, err := intParam(c, "depth")
	if err != nil {
		return err
	}
	n, status := s.deps.Engine.Neighborhood(c.Request().Context(), componentID(id), depth)
	return respond(c, s.envelope().
		Data(n).
		Status(status).
		WithTruncation(n.Truncated, n.Size(), 0, "max-nodes"))
}

// GET /api/components/:id/related?depth=N&topK=K&kinds=Doc,Issue
func (s *Server) handleRelated(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	opts := query.RelatedOptions{}
	if opts.Depth, err = intParam(c, "depth"); err != nil {
		return err
	}
	if opts.TopK, err = intParam(c, "topK"); err != nil {
		return err
	}
	if raw := c.QueryParam("kinds"); raw != "" {
		kinds, err := parseKinds(raw)
		if err != nil {
			return err
		}
		opts.Kinds = kinds
	}
	r, status := s.deps.Engine.Related(c.Request().Context(), componentID(id), opts)
	return respond(c, s.envelope().Data(r).Status(status))
}

func parseKinds(raw string) ([]graph.NodeKind, error) {
	var out []graph.NodeKind
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for _, k := range graph.AllNodeKinds {
			if strings.EqualFold(string(k), part) {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			return nil, badRequest("unknown node kind "+part, nil)
		}
	}
	return out, nil
}

// GET /api/components/:id/score
func (s *Server) handleScore(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	r, err := s.deps.Evaluator.Scorer().ScoreComponent(c.Request().Context(), componentID(id), s.now())
	if err != nil {
		return respond(c, s.envelope().Error(err))
	}
	return respond(c, s.envelope().Data(r.Score))
}

// GET /api/endpoints/:id/impact
func (s *Server) handleImpact(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	impact, status := s.deps.Engine.APIImpact(c.Request().Context(), id)
	return respond(c, s.envelope().Data(impact).Status(status))
}

// GET /api/code/:id/dependencies
func (s *Server) handleDependencies(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	deps, status := s.deps.Engine.Dependencies(c.Request().Context(), id)
	return respond(c, s.envelope().
		Data(deps).
		Status(status).
		WithTruncation(deps.Truncated, len(deps.Dependencies), 0, "max-nodes"))
}

// RawQueryRequest is the body of POST /api/query.
type RawQueryRequest struct {
	Query  string         `json:"query" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// POST /api/query
func (s *Server) handleRawQuery(c echo.Context) error {
	var req RawQueryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest("query is required", err)
	}
	rows, status, err := s.deps.Engine.Raw(c.Request().Context(), req.Query, req.Params)
	return respond(c, s.envelope().Data(rows).Error(err).Status(status))
}

// GET /api/issues?status=open&minSeverity=medium&limit=N
func (s *Server) handleListIssues(c echo.Context) error {
	opts := issues.ListOptions{
		Status:      issues.Status(c.QueryParam("status")),
		MinSeverity: issues.Severity(c.QueryParam("minSeverity")),
	}
	if opts.Status != "" && opts.Status != issues.Open && opts.Status != issues.Resolved {
		return badRequest("status must be open or resolved", nil)
	}
	if opts.MinSeverity != "" && !opts.MinSeverity.Valid() {
		return badRequest("unknown severity "+string(opts.MinSeverity), nil)
	}
	var err error
	if opts.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}
	list, err := s.deps.Evaluator.Issues().List(c.Request().Context(), opts)
	if err != nil {
		return respond(c, s.envelope().Data([]*issues.DocIssue{}).Error(err))
	}
	if list == nil {
		list = []*issues.DocIssue{}
	}
	return respond(c, s.envelope().Data(list))
}

// POST /api/evaluate
func (s *Server) handleEvaluate(c echo.Context) error {
	rep, err := s.deps.Evaluator.RunCycle(c.Request().Context(), s.now())
	if err != nil {
		return err
	}
	b := s.envelope().Data(rep).Status(rep.Status)
	for _, w := range rep.Warnings {
		b.Warning(w)
	}
	return respond(c, b)
}

// DriftRequest is the body of POST /api/drift: an inline spec and doc.
type DriftRequest struct {
	Spec      string `json:"spec" validate:"required"`
	Doc       string `json:"doc" validate:"required"`
	DocFormat string `json:"docFormat,omitempty" validate:"omitempty,oneof=markdown native"`
}

// POST /api/drift
func (s *Server) handleDrift(c echo.Context) error {
	var req DriftRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest("spec and doc are required", err)
	}
	spec, err := drift.ParseSpec([]byte(req.Spec))
	if err != nil {
		return respond(c, envelope.New().Error(err))
	}
	var doc *drift.DocArtifact
	if req.DocFormat == "native" {
		if doc, err = drift.ParseNativeDoc([]byte(req.Doc)); err != nil {
			return respond(c, envelope.New().Error(err))
		}
	} else {
		doc = drift.ParseMarkdownDoc([]byte(req.Doc))
	}
	return respond(c, envelope.New().Data(drift.Detect(spec, doc)))
}

// IngestRequest is the body of POST /api/ingest.
type IngestRequest struct {
	Batches []ingest.Batch `json:"batches" validate:"required,min=1"`
}

// POST /api/ingest
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest("batches are required", err)
	}
	rep := s.deps.Runner.Run(c.Request().Context(), req.Batches)
	b := s.envelope().Data(rep).Status(rep.Status).RunID(rep.RunID)
	if err := rep.Err(); err != nil {
		b.Warning(err.Error())
	}
	return respond(c, b)
}
