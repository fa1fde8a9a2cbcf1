package query

import (
	"context"

	"docdrift/internal/envelope"
	"docdrift/internal/graphstore"
)

// Raw runs a read-only backend-native query. Backends without a query
// language report UNSUPPORTED as an INVALID status.
func (e *Engine) Raw(ctx context.Context, q string, params map[string]any) ([]graphstore.Row, envelope.Status, error) {
	rows, err := e.store.Raw(ctx, q, params)
	if err != nil {
		status := envelope.StatusOf(err)
		if status == envelope.Unavailable {
			status = e.classify(err)
		}
		return []graphstore.Row{}, status, err
	}
	e.classify(nil)
	if rows == nil {
		rows = []graphstore.Row{}
	}
	return rows, envelope.OK, nil
}
