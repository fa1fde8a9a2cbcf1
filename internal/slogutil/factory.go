package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"docdrift/internal/config"
)

// LoggerFactory builds loggers for the CLI and the long-running server.
// The server logger tees to stderr and to .docdrift/logs/serve.log.
type LoggerFactory struct {
	root     string
	cfg      config.LoggingConfig
	cliLevel slog.Level
	stderr   io.Writer

	mu      sync.Mutex
	closers []io.Closer
}

// NewLoggerFactory creates a factory for the workspace at root.
func NewLoggerFactory(root string, cfg config.LoggingConfig, cliLevel slog.Level) *LoggerFactory {
	return &LoggerFactory{
		root:     root,
		cfg:      cfg,
		cliLevel: cliLevel,
		stderr:   os.Stderr,
	}
}

// CLILogger writes to stderr at the CLI verbosity level.
func (f *LoggerFactory) CLILogger() *slog.Logger {
	return NewFormatLogger(f.stderr, f.cliLevel, f.cfg.Format)
}

// ServeLogger writes to stderr and to the serve log file.
// The file receives records at the configured level regardless of CLI flags.
func (f *LoggerFactory) ServeLogger() (*slog.Logger, error) {
	dir := filepath.Join(f.root, config.Dir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fileLogger, file, err := NewFileLogger(filepath.Join(dir, "serve.log"), f.fileLevel(), f.cfg.Format)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.closers = append(f.closers, file)
	f.mu.Unlock()

	console := NewFormatLogger(f.stderr, f.cliLevel, f.cfg.Format)
	return slog.New(NewTeeHandler(console.Handler(), fileLogger.Handler())), nil
}

func (f *LoggerFactory) fileLevel() slog.Level {
	if f.cfg.Level == "" {
		return slog.LevelInfo
	}
	return LevelFromString(f.cfg.Level)
}

// Close closes every log file opened by the factory.
func (f *LoggerFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
