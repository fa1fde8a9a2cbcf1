package issues

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"docdrift/internal/storage"
)

// ListOptions filters List results.
type ListOptions struct {
	Status      Status // empty means any
	MinSeverity Severity
	Limit       int
}

func (o ListOptions) match(d *DocIssue) bool {
	if o.Status != "" && d.Status != o.Status {
		return false
	}
	return d.Severity.Rank() >= o.MinSeverity.Rank()
}

// Repository persists DocIssues keyed by component.
type Repository interface {
	// List returns matching issues in Rank order.
	List(ctx context.Context, opts ListOptions) ([]*DocIssue, error)
	// Get returns the issue of a component, or nil.
	Get(ctx context.Context, componentID string) (*DocIssue, error)
	// Save upserts issues atomically.
	Save(ctx context.Context, issues ...*DocIssue) error
}

// MemoryRepository keeps issues in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	byComp map[string]*DocIssue
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byComp: make(map[string]*DocIssue)}
}

func (r *MemoryRepository) List(_ context.Context, opts ListOptions) ([]*DocIssue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*DocIssue, 0, len(r.byComp))
	for _, d := range r.byComp {
		if opts.match(d) {
			out = append(out, d.clone())
		}
	}
	Rank(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, componentID string) (*DocIssue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byComp[componentID]; ok {
		return d.clone(), nil
	}
	return nil, nil
}

func (r *MemoryRepository) Save(_ context.Context, issues ...*DocIssue) error {
	for _, d := range issues {
		if err := checkIssue(d); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range issues {
		r.byComp[d.ComponentID] = d.clone()
	}
	return nil
}

func checkIssue(d *DocIssue) error {
	if d.ComponentID == "" || d.ID == "" {
		return fmt.Errorf("issue without id or component")
	}
	if !d.Severity.Valid() {
		return fmt.Errorf("issue %s: invalid severity %q", d.ID, d.Severity)
	}
	if d.UpdatedAt.Before(d.DetectedAt) {
		return fmt.Errorf("issue %s: updatedAt before detectedAt", d.ID)
	}
	return nil
}

// SQLiteRepository stores issues in the doc_issues table.
type SQLiteRepository struct {
	db *storage.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *storage.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const issueColumns = `id, component_id, severity, status, summary, sources, source_links,
	missed_cycles, detected_at, updated_at, resolved_at`

func (r *SQLiteRepository) List(ctx context.Context, opts ListOptions) ([]*DocIssue, error) {
	query := "SELECT " + issueColumns + " FROM doc_issues"
	var args []interface{}
	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(opts.Status))
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list doc issues: %w", err)
	}
	defer rows.Close()

	var out []*DocIssue
	for rows.Next() {
		d, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		if opts.match(d) {
			out = append(out, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	Rank(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, componentID string) (*DocIssue, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM doc_issues WHERE component_id = ?", componentID)
	d, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get doc issue: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, issues ...*DocIssue) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range issues {
			if err := checkIssue(d); err != nil {
				return err
			}
			sources, err := json.Marshal(nonNil(d.DivergenceSources))
			if err != nil {
				return err
			}
			links, err := json.Marshal(nonNilLinks(d.SourceLinks))
			if err != nil {
				return err
			}
			var resolvedAt interface{}
			if d.ResolvedAt != nil {
				resolvedAt = storage.FormatTime(*d.ResolvedAt)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO doc_issues (`+issueColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					severity = excluded.severity,
					status = excluded.status,
					summary = excluded.summary,
					sources = excluded.sources,
					source_links = excluded.source_links,
					missed_cycles = excluded.missed_cycles,
					detected_at = excluded.detected_at,
					updated_at = excluded.updated_at,
					resolved_at = excluded.resolved_at
			`,
				d.ID, d.ComponentID, string(d.Severity), string(d.Status), d.Summary,
				string(sources), string(links), d.MissedCycles,
				storage.FormatTime(d.DetectedAt), storage.FormatTime(d.UpdatedAt), resolvedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to save doc issue %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(s rowScanner) (*DocIssue, error) {
	var (
		d                     DocIssue
		severity, status      string
		sources, links        string
		detectedAt, updatedAt string
		resolvedAt            sql.NullString
	)
	if err := s.Scan(&d.ID, &d.ComponentID, &severity, &status, &d.Summary, &sources, &links,
		&d.MissedCycles, &detectedAt, &updatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	d.Severity, d.Status = Severity(severity), Status(status)
	if err := json.Unmarshal([]byte(sources), &d.DivergenceSources); err != nil {
		return nil, fmt.Errorf("issue %s sources: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(links), &d.SourceLinks); err != nil {
		return nil, fmt.Errorf("issue %s links: %w", d.ID, err)
	}
	var err error
	if d.DetectedAt, err = storage.ParseTime(detectedAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = storage.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t, err := storage.ParseTime(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		d.ResolvedAt = &t
	}
	return &d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilLinks(l []Link) []Link {
	if l == nil {
		return []Link{}
	}
	return l
}
