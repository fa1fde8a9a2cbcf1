package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"docdrift/internal/config"
	"docdrift/internal/evaluate"
	"docdrift/internal/graphstore"
	"docdrift/internal/ingest"
	"docdrift/internal/issues"
	"docdrift/internal/query"
	"docdrift/internal/slogutil"
	"docdrift/internal/storage"
)

// app holds what every command needs: config, logger, store and the issue
// repository.
type app struct {
	root   string
	cfg    *config.Config
	logs   *slogutil.LoggerFactory
	logger *slog.Logger
	store  graphstore.Store
	// db backs issues and run history. It is the store's own database for
	// the sqlite backend and a side file otherwise; nil when unavailable.
	db     *storage.DB
	ownsDB bool
	issues issues.Repository
}

func workspaceRoot() (string, error) {
	if rootFlag != "" {
		return filepath.Abs(rootFlag)
	}
	return os.Getwd()
}

func loadConfig() (string, *config.Config, error) {
	root, err := workspaceRoot()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// newApp opens the configured store. An unreachable store is not an error:
// commands run against the disabled backend and report UNAVAILABLE.
func newApp(ctx context.Context, serve bool) (*app, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logs := slogutil.NewLoggerFactory(root, cfg.Logging, slogutil.LevelFromVerbosity(verbosity, quietFlag))
	logger := logs.CLILogger()
	if serve {
		if logger, err = logs.ServeLogger(); err != nil {
			return nil, fmt.Errorf("failed to open serve log: %w", err)
		}
	}

	store, err := graphstore.Open(ctx, root, cfg.Store, logger)
	if err != nil {
		logger.Warn("Continuing without graph store", "error", err.Error())
	}

	a := &app{root: root, cfg: cfg, logs: logs, logger: logger, store: store}
	a.openIssues()
	return a, nil
}

func (a *app) openIssues() {
	if s, ok := a.store.(interface{ DB() *storage.DB }); ok {
		a.db = s.DB()
		a.issues = issues.NewSQLiteRepository(a.db)
		return
	}
	if a.cfg.Store.Backend == "memory" {
		a.issues = issues.NewMemoryRepository()
		return
	}

	path := filepath.Join(a.root, config.Dir, "docdrift.db")
	db, err := storage.Open(path, a.logger)
	if err != nil {
		a.logger.Warn("Issue history unavailable, keeping issues in memory", "path", path, "error", err.Error())
		a.issues = issues.NewMemoryRepository()
		return
	}
	a.db, a.ownsDB = db, true
	a.issues = issues.NewSQLiteRepository(db)
}

func (a *app) engine() *query.Engine {
	return query.NewEngine(a.store, a.cfg.Query, a.logger)
}

func (a *app) runner() *ingest.Runner {
	r := ingest.NewRunner(ingest.New(a.store, a.logger), a.logger, a.cfg.Ingest.Concurrency)
	if a.db != nil {
		r.WithRecorder(storage.NewRunRepository(a.db))
	}
	return r
}

func (a *app) evaluator() *evaluate.Evaluator {
	return evaluate.New(a.store, a.cfg, a.root, a.issues, a.logger)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err.Error())
	}
	if a.ownsDB {
		_ = a.db.Close()
	}
	_ = a.logs.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
