package scoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docdrift/internal/signals"
)

// Collector fetches per-source events for a component.
type Collector interface {
	Collect(ctx context.Context, componentID string, since time.Time) (map[string][]signals.Event, error)
}

// Result is a component score together with the events behind it.
type Result struct {
	Score  ComponentScore
	Events map[string][]signals.Event
}

// Scorer fetches events once per component and scores them.
type Scorer struct {
	collector   Collector
	params      Params
	lookback    time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewScorer creates a scorer. lookback bounds how far back events are fetched.
func NewScorer(collector Collector, params Params, lookback time.Duration, concurrency int, logger *slog.Logger) *Scorer {
	return &Scorer{collector: collector, params: params, lookback: lookback, concurrency: concurrency, logger: logger}
}

// Params returns the scoring parameters.
func (s *Scorer) Params() Params { return s.params }

func (s *Scorer) since(now time.Time) time.Time {
	if s.lookback <= 0 {
		return time.Time{}
	}
	return now.Add(-s.lookback)
}

// ScoreComponent scores one component as of now.
func (s *Scorer) ScoreComponent(ctx context.Context, componentID string, now time.Time) (*Result, error) {
	events, err := s.collector.Collect(ctx, componentID, s.since(now))
	if err != nil {
		return nil, err
	}
	return &Result{Score: s.params.Score(componentID, events, now), Events: events}, nil
}

// ScoreAll scores components in parallel and returns results ranked by
// priority. Components whose events cannot be fetched are left out and the
// first error is returned alongside whatever was scored.
func (s *Scorer) ScoreAll(ctx context.Context, componentIDs []string, now time.Time) ([]*Result, error) {
	var (
		mu      sync.Mutex
		results []*Result
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for _, id := range componentIDs {
		g.Go(func() error {
			r, err := s.ScoreComponent(gctx, id, now)
			if err != nil {
				s.logger.Debug("Scoring failed", "component", id, "error", err.Error())
				return err
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return RankResults(results), err
}

// RankResults orders results the way Rank orders scores.
func RankResults(results []*Result) []*Result {
	scores := make([]ComponentScore, len(results))
	byID := make(map[string]*Result, len(results))
	for i, r := range results {
		scores[i] = r.Score
		byID[r.Score.ComponentID] = r
	}
	out := make([]*Result, 0, len(results))
	for _, cs := range Rank(scores) {
		out = append(out, byID[cs.ComponentID])
	}
	return out
}
