package graphstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docdrift/internal/errors"
	"docdrift/internal/graph"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	props JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE TABLE IF NOT EXISTS edges (
	seq BIGSERIAL PRIMARY KEY,
	src TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	dst TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	props JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (src, dst, kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src, kind);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst, kind);
`

// Upserts merge JSONB shallowly (new keys win) and skip the write when nothing changes.
// "inserted" distinguishes creation from update through the xmax system column.
const (
	pgUpsertNode = `
INSERT INTO nodes (id, kind, props, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (id) DO UPDATE
	SET props = nodes.props || EXCLUDED.props, updated_at = EXCLUDED.updated_at
	WHERE nodes.props IS DISTINCT FROM nodes.props || EXCLUDED.props
RETURNING (xmax = 0) AS inserted`

	pgStubNode = `
INSERT INTO nodes (id, kind, props, created_at, updated_at)
VALUES ($1, $2, '{}'::jsonb, $3, $3)
ON CONFLICT (id) DO NOTHING`

	pgUpsertEdge = `
INSERT INTO edges (src, dst, kind, props, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (src, dst, kind) DO UPDATE
	SET props = edges.props || EXCLUDED.props, updated_at = EXCLUDED.updated_at
	WHERE edges.props IS DISTINCT FROM edges.props || EXCLUDED.props
RETURNING (xmax = 0) AS inserted`
)

// foreign_key_violation
const pgForeignKeyViolation = "23503"

// PostgresStore keeps the graph in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgres connects, verifies the connection and ensures the schema.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("Connected to postgres graph store")
	return &PostgresStore{pool: pool, logger: logger, now: time.Now}, nil
}

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.New(errors.StoreUnavailable, "postgres ping failed", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Apply(ctx context.Context, m Mutation) (ApplyResult, error) {
	var res ApplyResult
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, s.unavailable("begin", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, u := range m.Nodes {
		kind, err := resolveKind(u.ID, u.Kind)
		if err != nil {
			return ApplyResult{}, err
		}
		_, data, err := normalizeProps(u.Props)
		if err != nil {
			return ApplyResult{}, err
		}
		created, updated, err := upsertReturning(ctx, tx, pgUpsertNode, u.ID, string(kind), data, now)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("upsert node %s: %w", u.ID, err)
		}
		res.NodesCreated += created
		res.NodesUpdated += updated
	}

	for _, id := range m.Stubs {
		kind, err := resolveKind(id, "")
		if err != nil {
			return ApplyResult{}, err
		}
		tag, err := tx.Exec(ctx, pgStubNode, id, string(kind), now)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("stub node %s: %w", id, err)
		}
		res.NodesCreated += int(tag.RowsAffected())
	}

	for _, e := range m.Edges {
		_, data, err := normalizeProps(e.Props)
		if err != nil {
			return ApplyResult{}, err
		}
		created, updated, err := upsertReturning(ctx, tx, pgUpsertEdge, e.Src, e.Dst, string(e.Kind), data, now)
		if err != nil {
			var pgErr *pgconn.PgError
			if stderrors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return ApplyResult{}, danglingEdge(e, missingEndpoint(pgErr, e))
			}
			return ApplyResult{}, fmt.Errorf("upsert edge %s: %w", e.Key(), err)
		}
		res.EdgesCreated += created
		res.EdgesUpdated += updated
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyResult{}, s.unavailable("commit", err)
	}
	return res, nil
}

// upsertReturning runs an upsert whose RETURNING row is absent when nothing changed.
func upsertReturning(ctx context.Context, tx pgx.Tx, query string, args ...any) (created, updated int, err error) {
	var inserted bool
	err = tx.QueryRow(ctx, query, args...).Scan(&inserted)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if inserted {
		return 1, 0, nil
	}
	return 0, 1, nil
}

func missingEndpoint(pgErr *pgconn.PgError, e graph.Edge) string {
	if strings.Contains(pgErr.Detail, "("+e.Dst+")") {
		return e.Dst
	}
	return e.Src
}

func (s *PostgresStore) Node(ctx context.Context, id string) (*graph.Node, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, kind, props, created_at, updated_at FROM nodes WHERE id = $1", id)
	n, err := scanPgNode(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.UnknownEntityReference, "no node "+id, nil)
	}
	if err != nil {
		return nil, s.unavailable("read node", err)
	}
	return n, nil
}

func (s *PostgresStore) NodesByKind(ctx context.Context, kind graph.NodeKind) ([]graph.Node, error) {
	return s.queryNodes(ctx,
		"SELECT id, kind, props, created_at, updated_at FROM nodes WHERE kind = $1 ORDER BY created_at, id", string(kind))
}

func (s *PostgresStore) queryNodes(ctx context.Context, query string, args ...any) ([]graph.Node, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.unavailable("list nodes", err)
	}
	defer rows.Close()

	var out []graph.Node
	for rows.Next() {
		n, err := scanPgNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Edges(ctx context.Context, id string, dir graph.Direction, kinds ...graph.EdgeKind) ([]graph.Edge, error) {
	var cond string
	switch dir {
	case graph.Out:
		cond = "src = $1"
	case graph.In:
		cond = "dst = $1"
	default:
		cond = "(src = $1 OR dst = $1)"
	}
	args := []any{id}
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		cond += " AND kind = ANY($2)"
		args = append(args, names)
	}
	return s.queryEdges(ctx, "SELECT src, dst, kind, props FROM edges WHERE "+cond+" ORDER BY seq", args...)
}

func (s *PostgresStore) queryEdges(ctx context.Context, query string, args ...any) ([]graph.Edge, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.unavailable("list edges", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var (
			e     graph.Edge
			kind  string
			props []byte
		)
		if err := rows.Scan(&e.Src, &e.Dst, &kind, &props); err != nil {
			return nil, err
		}
		e.Kind = graph.EdgeKind(kind)
		if e.Props, err = decodeProps(props); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	c := Counts{ByKind: make(map[string]int)}
	rows, err := s.pool.Query(ctx, "SELECT kind, COUNT(*) FROM nodes GROUP BY kind")
	if err != nil {
		return c, s.unavailable("count nodes", err)
	}
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return c, err
		}
		c.ByKind[kind] = int(n)
		c.Nodes += int(n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return c, err
	}

	var edges int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM edges").Scan(&edges); err != nil {
		return c, s.unavailable("count edges", err)
	}
	c.Edges = int(edges)
	return c, nil
}

func (s *PostgresStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	nodes, err := s.queryNodes(ctx, "SELECT id, kind, props, created_at, updated_at FROM nodes ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	edges, err := s.queryEdges(ctx, "SELECT src, dst, kind, props FROM edges ORDER BY seq")
	if err != nil {
		return nil, err
	}
	return &Snapshot{Nodes: nodes, Edges: edges}, nil
}

// Raw runs a read-only SQL query. Parameters bind by name (@name).
func (s *PostgresStore) Raw(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	if err := readOnly(query); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, pgx.NamedArgs(params))
	if err != nil {
		return nil, errors.New(errors.InvalidEvent, "raw query failed", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[f.Name] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanPgNode(r pgx.Row) (*graph.Node, error) {
	var (
		n     graph.Node
		kind  string
		props []byte
	)
	if err := r.Scan(&n.ID, &kind, &props, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Kind = graph.NodeKind(kind)
	if err := json.Unmarshal(props, &n.Props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return &n, nil
}

func (s *PostgresStore) unavailable(op string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(errors.StoreUnavailable, "postgres "+op, err)
}
