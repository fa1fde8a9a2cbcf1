package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type task struct {
	name    string
	expr    string
	fn      TaskFunc
	entry   cron.EntryID
	running sync.Mutex

	mu     sync.Mutex
	status Status
}

// Scheduler runs registered tasks on their cron expressions. A task whose
// previous run is still in flight is skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	tasks map[string]*task
	now   func() time.Time
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{logger})),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
		now:    time.Now,
	}
}

// ValidateExpression checks a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 15m".
func ValidateExpression(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Add registers a task. Names must be unique.
func (s *Scheduler) Add(name, expr string, fn TaskFunc) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("task %s already registered", name)
	}
	t := &task{name: name, expr: expr, fn: fn, status: Status{Name: name, Expression: expr}}
	t.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.execute(s.ctx, t) }))
	s.tasks[name] = t

	s.logger.Debug("Registered scheduled task", "task", name, "expression", expr)
	return nil
}

// Start begins dispatching tasks.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", "tasks", len(s.tasks))
	s.cron.Start()
}

// Stop prevents new runs, cancels in-flight ones and waits up to timeout
// for them to return.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.logger.Info("Stopping scheduler")
	done := s.cron.Stop()
	s.cancel()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler shutdown timed out")
	}
}

// RunNow runs a task immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	return s.execute(ctx, t)
}

// Status returns a snapshot of every task sorted by name.
func (s *Scheduler) Status() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		st := t.status
		t.mu.Unlock()
		st.NextRun = s.cron.Entry(t.entry).Next
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) execute(ctx context.Context, t *task) error {
	if !t.running.TryLock() {
		s.logger.Warn("Skipping scheduled task, previous run still active", "task", t.name)
		t.mu.Lock()
		t.status.LastStatus = StatusSkipped
		t.mu.Unlock()
		return fmt.Errorf("task %s is already running", t.name)
	}
	defer t.running.Unlock()

	start := s.now()
	s.logger.Info("Running scheduled task", "task", t.name)
	err := t.fn(ctx)
	duration := s.now().Sub(start)

	t.mu.Lock()
	t.status.LastRun = &start
	t.status.LastDuration = duration.Milliseconds()
	t.status.Runs++
	if err != nil {
		t.status.LastStatus = StatusFailed
		t.status.LastError = err.Error()
	} else {
		t.status.LastStatus = StatusSuccess
		t.status.LastError = ""
	}
	t.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled task failed", "task", t.name, "duration", duration.String(), "error", err.Error())
		return err
	}
	s.logger.Info("Scheduled task completed", "task", t.name, "duration", duration.String())
	return nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
