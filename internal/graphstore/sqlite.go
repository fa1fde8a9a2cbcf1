package graphstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
	"docdrift/internal/storage"
)

// SQLiteStore keeps the graph in the embedded database.
type SQLiteStore struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLite wraps an open database.
func NewSQLite(db *storage.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, logger: logger, now: time.Now}
}

func (s *SQLiteStore) Backend() string { return "sqlite" }

// DB returns the underlying database, shared with the issue and run tables.
func (s *SQLiteStore) DB() *storage.DB { return s.db }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return errors.New(errors.StoreUnavailable, "sqlite ping failed", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Apply(ctx context.Context, m Mutation) (ApplyResult, error) {
	var res ApplyResult
	now := storage.FormatTime(s.now())

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res = ApplyResult{}
		for _, u := range m.Nodes {
			kind, err := resolveKind(u.ID, u.Kind)
			if err != nil {
				return err
			}
			created, updated, err := upsertRow(ctx, tx,
				"SELECT props FROM nodes WHERE id = ?", []any{u.ID},
				"INSERT INTO nodes (id, kind, props, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
				[]any{u.ID, string(kind)},
				"UPDATE nodes SET props = ?, updated_at = ? WHERE id = ?", []any{u.ID},
				u.Props, now)
			if err != nil {
				return fmt.Errorf("upsert node %s: %w", u.ID, err)
			}
			res.NodesCreated += created
			res.NodesUpdated += updated
		}

		for _, id := range m.Stubs {
			kind, err := resolveKind(id, "")
			if err != nil {
				return err
			}
			r, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO nodes (id, kind, props, created_at, updated_at) VALUES (?, ?, '{}', ?, ?)",
				id, string(kind), now, now)
			if err != nil {
				return fmt.Errorf("stub node %s: %w", id, err)
			}
			n, _ := r.RowsAffected()
			res.NodesCreated += int(n)
		}

		for _, e := range m.Edges {
			for _, end := range []string{e.Src, e.Dst} {
				var one int
				err := tx.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE id = ?", end).Scan(&one)
				if err == sql.ErrNoRows {
					return danglingEdge(e, end)
				}
				if err != nil {
					return err
				}
			}
			created, updated, err := upsertRow(ctx, tx,
				"SELECT props FROM edges WHERE src = ? AND dst = ? AND kind = ?", []any{e.Src, e.Dst, string(e.Kind)},
				"INSERT INTO edges (src, dst, kind, props, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
				[]any{e.Src, e.Dst, string(e.Kind)},
				"UPDATE edges SET props = ?, updated_at = ? WHERE src = ? AND dst = ? AND kind = ?",
				[]any{e.Src, e.Dst, string(e.Kind)},
				e.Props, now)
			if err != nil {
				return fmt.Errorf("upsert edge %s: %w", e.Key(), err)
			}
			res.EdgesCreated += created
			res.EdgesUpdated += updated
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return res, nil
}

// upsertRow reads the current props of a row, then inserts it or writes the
// merged props when they changed. Insert args are followed by props, now, now;
// update args are preceded by props, now.
func upsertRow(ctx context.Context, tx *sql.Tx,
	selectSQL string, selectArgs []any,
	insertSQL string, insertArgs []any,
	updateSQL string, updateArgs []any,
	props graph.Props, now string,
) (created, updated int, err error) {
	var current string
	err = tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&current)
	if err == sql.ErrNoRows {
		_, data, err := normalizeProps(props)
		if err != nil {
			return 0, 0, err
		}
		args := append(append([]any{}, insertArgs...), string(data), now, now)
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
			return 0, 0, err
		}
		return 1, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	old, err := decodeProps([]byte(current))
	if err != nil {
		return 0, 0, err
	}
	_, data, changed, err := mergeProps(old, props)
	if err != nil || !changed {
		return 0, 0, err
	}
	args := append([]any{string(data), now}, updateArgs...)
	if _, err := tx.ExecContext(ctx, updateSQL, args...); err != nil {
		return 0, 0, err
	}
	return 0, 1, nil
}

func (s *SQLiteStore) Node(ctx context.Context, id string) (*graph.Node, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, kind, props, created_at, updated_at FROM nodes WHERE id = ?", id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.UnknownEntityReference, "no node "+id, nil)
	}
	if err != nil {
		return nil, s.unavailable("read node", err)
	}
	return n, nil
}

func (s *SQLiteStore) NodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	return s.queryNodes(ctx,
		"SELECT id, kind, props, created_at, updated_at FROM nodes WHERE kind = ? ORDER BY rowid", string(kind))
}

func (s *SQLiteStore) queryNodes(ctx context.Context, query string, args ...any) ([]graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.unavailable("list nodes", err)
	}
	defer rows.Close()

	var out []graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Edges(ctx context.Context, id string, dir graph.Direction, kinds ...graph.EdgeKind) ([]graph.Edge, error) {
	var (
		where []string
		args  []any
	)
	switch dir {
	case graph.Out:
		where = append(where, "src = ?")
		args = append(args, id)
	case graph.In:
		where = append(where, "dst = ?")
		args = append(args, id)
	default:
		where = append(where, "(src = ? OR dst = ?)")
		args = append(args, id, id)
	}
	if len(kinds) > 0 {
		marks := make([]string, len(kinds))
		for i, k := range kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	return s.queryEdges(ctx,
		"SELECT src, dst, kind, props FROM edges WHERE "+strings.Join(where, " AND ")+" ORDER BY seq", args...)
}

func (s *SQLiteStore) queryEdges(ctx context.Context, query string, args ...any) ([]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.unavailable("list edges", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var (
			e     graph.Edge
			kind  string
			props string
		)
		if err := rows.Scan(&e.Src, &e.Dst, &kind, &props); err != nil {
			return nil, err
		}
		e.Kind = graph.EdgeKind(kind)
		if e.Props, err = decodeProps([]byte(props)); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	c := Counts{ByKind: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM nodes GROUP BY kind")
	if err != nil {
		return c, s.unavailable("count nodes", err)
	}
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return c, err
		}
		c.ByKind[kind] = n
		c.Nodes += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&c.Edges); err != nil {
		return c, s.unavailable("count edges", err)
	}
	return c, nil
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	nodes, err := s.queryNodes(ctx, "SELECT id, kind, props, created_at, updated_at FROM nodes ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	edges, err := s.queryEdges(ctx, "SELECT src, dst, kind, props FROM edges ORDER BY seq")
	if err != nil {
		return nil, err
	}
	return &Snapshot{Nodes: nodes, Edges: edges}, nil
}

// Raw runs a read-only SQL query. Parameters bind by name (:name or @name).
func (s *SQLiteStore) Raw(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	if err := readOnly(query); err != nil {
		return nil, err
	}
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.InvalidEvent, "raw query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (*graph.Node, error) {
	var (
		n                graph.Node
		kind, props      string
		created, updated string
	)
	if err := r.Scan(&n.ID, &kind, &props, &created, &updated); err != nil {
		return nil, err
	}
	n.Kind = graph.NodeKind(kind)
	var err error
	if n.Props, err = decodeProps([]byte(props)); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = storage.ParseTime(created); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = storage.ParseTime(updated); err != nil {
		return nil, err
	}
	return &n, nil
}

// unavailable wraps low-level read failures. Context errors pass through.
func (s *SQLiteStore) unavailable(op string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(errors.StoreUnavailable, "sqlite "+op, err)
}
