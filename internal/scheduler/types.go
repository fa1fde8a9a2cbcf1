// Package scheduler runs background tasks on cron expressions.
package scheduler

import (
	"context"
	"time"
)

// TaskFunc executes one run of a scheduled task.
type TaskFunc func(ctx context.Context) error

// Run outcomes recorded in Status.LastStatus.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Status is a snapshot of a registered task.
type Status struct {
	Name         string     `json:"name"`
	Expression   string     `json:"expression"`
	NextRun      time.Time  `json:"nextRun,omitempty"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastStatus   string     `json:"lastStatus,omitempty"`
	LastDuration int64      `json:"lastDuration,omitempty"` // milliseconds
	LastError    string     `json:"lastError,omitempty"`
	Runs         int        `json:"runs"`
}
