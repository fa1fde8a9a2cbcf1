package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docdrift/internal/envelope"
	"docdrift/internal/errors"
	"docdrift/internal/storage"
)

// maxErrorsPerSource caps the error messages kept per source report.
const maxErrorsPerSource = 20

// SourceReport is the outcome of one source's batch.
type SourceReport struct {
	Source    string          `json:"source"`
	Status    envelope.Status `json:"status"`
	Applied   int             `json:"applied"`
	Unchanged int             `json:"unchanged"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
}

// BatchReport is the outcome of a Runner.Run call.
type BatchReport struct {
	RunID      string          `json:"runId"`
	Status     envelope.Status `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Sources    []SourceReport  `json:"sources"`
}

// Err returns a PARTIAL_INGESTION_FAILURE or STORE_UNAVAILABLE error when the run was not clean.
func (r *BatchReport) Err() error {
	switch r.Status {
	case envelope.OK:
		return nil
	case envelope.Unavailable:
		return errors.New(errors.StoreUnavailable, "no batch could be written", nil).WithDetails(r.Sources)
	default:
		return errors.New(errors.PartialIngestionFailure, "some events were not ingested", nil).WithDetails(r.Sources)
	}
}

// RunRecorder persists run history.
type RunRecorder interface {
	Create(ctx context.Context, run *storage.IngestRun) error
	Finish(ctx context.Context, runID, status, report string, finishedAt time.Time) error
}

// Runner ingests per-source batches concurrently. Events within a batch are applied in order.
type Runner struct {
	ingestor    *Ingestor
	logger      *slog.Logger
	concurrency int
	recorder    RunRecorder
}

// NewRunner creates a runner. concurrency <= 0 means one goroutine per batch.
func NewRunner(ingestor *Ingestor, logger *slog.Logger, concurrency int) *Runner {
	return &Runner{ingestor: ingestor, logger: logger, concurrency: concurrency}
}

// WithRecorder records every run through rec.
func (r *Runner) WithRecorder(rec RunRecorder) *Runner {
	r.recorder = rec
	return r
}

// Run applies batches and reports per-source outcomes.
func (r *Runner) Run(ctx context.Context, batches []Batch) *BatchReport {
	report := &BatchReport{
		RunID:     uuid.New().String(),
		StartedAt: r.ingestor.now().UTC(),
	}
	r.record(ctx, func(rec RunRecorder) error {
		return rec.Create(ctx, &storage.IngestRun{RunID: report.RunID, Status: "RUNNING", StartedAt: report.StartedAt})
	})

	var (
		mu      sync.Mutex
		results = make([]SourceReport, len(batches))
	)
	g := new(errgroup.Group)
	if r.concurrency > 0 {
		g.SetLimit(r.concurrency)
	}
	for i, b := range batches {
		g.Go(func() error {
			sr := r.runBatch(ctx, b)
			mu.Lock()
			results[i] = sr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Sources = results
	sort.SliceStable(report.Sources, func(i, j int) bool { return report.Sources[i].Source < report.Sources[j].Source })
	report.Status = aggregate(report.Sources)
	report.FinishedAt = r.ingestor.now().UTC()

	r.logger.Info("Ingestion run finished",
		"run_id", report.RunID,
		"status", string(report.Status),
		"sources", len(report.Sources),
	)
	r.record(ctx, func(rec RunRecorder) error {
		data, _ := json.Marshal(report)
		return rec.Finish(ctx, report.RunID, string(report.Status), string(data), report.FinishedAt)
	})
	return report
}

func (r *Runner) record(ctx context.Context, fn func(RunRecorder) error) {
	if r.recorder == nil {
		return
	}
	if err := fn(r.recorder); err != nil {
		r.logger.Warn("Failed to record ingestion run", "error", err.Error())
	}
}

// runBatch applies one source's events. Once the store is unavailable the
// remaining events are skipped; invalid events are counted and passed over.
func (r *Runner) runBatch(ctx context.Context, b Batch) SourceReport {
	sr := SourceReport{Source: b.Source, Status: envelope.OK}
	if err := validate.Var(b.Source, "required"); err != nil {
		sr.Status = envelope.Invalid
		sr.Failed = len(b.Events)
		sr.Errors = append(sr.Errors, "batch source is required")
		return sr
	}

	for i, ev := range b.Events {
		if err := ctx.Err(); err != nil {
			sr.Skipped = len(b.Events) - i
			sr.Status = envelope.Worse(sr.Status, envelope.Partial)
			sr.Errors = appendCapped(sr.Errors, err.Error())
			break
		}

		res := r.ingestor.Ingest(ctx, ev)
		switch {
		case res.OK() && res.Changes.Changed():
			sr.Applied++
		case res.OK():
			sr.Unchanged++
		default:
			sr.Failed++
			sr.Errors = appendCapped(sr.Errors, res.Error())
			if res.Status == envelope.Unavailable {
				sr.Skipped = len(b.Events) - i - 1
				sr.Status = envelope.Unavailable
				r.logger.Warn("Store unavailable, abandoning batch", "source", b.Source, "skipped", sr.Skipped)
				return sr
			}
			sr.Status = envelope.Worse(sr.Status, envelope.Partial)
		}
	}
	return sr
}

// aggregate folds source statuses: all OK is OK, every source unavailable is
// UNAVAILABLE, anything else with a failure is PARTIAL.
func aggregate(sources []SourceReport) envelope.Status {
	if len(sources) == 0 {
		return envelope.OK
	}
	unavailable, ok := 0, 0
	for _, s := range sources {
		switch s.Status {
		case envelope.OK:
			ok++
		case envelope.Unavailable:
			unavailable++
		}
	}
	switch {
	case ok == len(sources):
		return envelope.OK
	case unavailable == len(sources):
		return envelope.Unavailable
	default:
		return envelope.Partial
	}
}

func appendCapped(errs []string, msg string) []string {
	if len(errs) >= maxErrorsPerSource {
		return errs
	}
	return append(errs, msg)
}
