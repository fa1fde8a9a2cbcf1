package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 2

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(context.Background(), func(tx *sql.Tx) error {
		steps := []func(*sql.Tx) error{
			createSchemaVersionTable,
			createNodesTable,
			createEdgesTable,
			createDocIssuesTable,
			createIngestRunsTable,
		}
		for _, step := range steps {
			if err := step(tx); err != nil {
				return err
			}
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations",
		"from_version", version,
		"to_version", currentSchemaVersion,
	)

	// v2 added ingestion run history.
	if version < 2 {
		err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
			if err := createIngestRunsTable(tx); err != nil {
				return err
			}
			return setSchemaVersion(tx, 2)
		})
		if err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.conn.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createNodesTable creates the graph node table.
// props holds the node's property map as JSON.
func createNodesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			props TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create nodes table: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// createEdgesTable creates the graph edge table.
// seq preserves insertion order; (src, dst, kind) identifies an edge.
func createEdgesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS edges (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			src TEXT NOT NULL,
			dst TEXT NOT NULL,
			kind TEXT NOT NULL,
			props TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			UNIQUE (src, dst, kind),
			FOREIGN KEY (src) REFERENCES nodes(id) ON DELETE CASCADE,
			FOREIGN KEY (dst) REFERENCES nodes(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create edges table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src, kind)",
		"CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst, kind)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// createDocIssuesTable creates the aggregated documentation issue table.
func createDocIssuesTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS doc_issues (
			id TEXT PRIMARY KEY,
			component_id TEXT NOT NULL UNIQUE,
			severity TEXT NOT NULL CHECK(severity IN ('critical', 'high', 'medium', 'low')),
			status TEXT NOT NULL CHECK(status IN ('open', 'resolved')),
			summary TEXT NOT NULL,
			sources TEXT NOT NULL DEFAULT '[]',
			source_links TEXT NOT NULL DEFAULT '[]',
			missed_cycles INTEGER NOT NULL DEFAULT 0,
			detected_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			resolved_at TEXT,

			CHECK(updated_at >= detected_at)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create doc_issues table: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_doc_issues_status ON doc_issues(status)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// createIngestRunsTable creates the ingestion run history table.
func createIngestRunsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS ingest_runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			report TEXT NOT NULL DEFAULT '{}'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create ingest_runs table: %w", err)
	}
	return nil
}
