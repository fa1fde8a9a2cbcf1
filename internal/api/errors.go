package api

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"docdrift/internal/envelope"
	"docdrift/internal/errors"
)

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error          string             `json:"error"`
	Code           string             `json:"code"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggestedFixes,omitempty"`
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.StoreUnavailable:
		return http.StatusServiceUnavailable
	case errors.UnknownEntityReference:
		return http.StatusNotFound
	case errors.InvalidEvent, errors.MalformedSpecOrDoc, errors.DanglingEdge:
		return http.StatusBadRequest
	case errors.Unsupported:
		return http.StatusNotImplemented
	case errors.PartialIngestionFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// badRequest wraps a binding or validation failure.
func badRequest(msg string, cause error) error {
	return errors.New(errors.InvalidEvent, msg, cause)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if stderrors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: msg, Code: "HTTP_ERROR"})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: string(errors.InternalError)}
	var de *errors.DriftError
	if stderrors.As(err, &de) {
		resp.Code = string(de.Code)
		resp.Details = de.Details
		resp.SuggestedFixes = de.SuggestedFixes
	}
	status := MapErrorToStatus(errors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.Path(), "error", err.Error())
	}
	_ = c.JSON(status, resp)
}

// respond writes an envelope. Degraded statuses are still 200: the status
// field, not the HTTP code, tells consumers the data is a fallback.
func respond(c echo.Context, b *envelope.Builder) error {
	return c.JSON(http.StatusOK, b.Build())
}
