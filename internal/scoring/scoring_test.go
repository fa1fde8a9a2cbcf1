package scoring

import (
	"context"
	"math"
	"testing"
	"time"

	"docdrift/internal/config"
	"docdrift/internal/signals"
	"docdrift/internal/slogutil"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func burst(source string, n int, at time.Time) []signals.Event {
	out := make([]signals.Event, n)
	for i := range out {
		out[i] = signals.Event{Source: source, At: at, Magnitude: 1, Link: source + "-link"}
	}
	return out
}

// docFixture returns the canonical A/B prioritization fixture.
func docFixture() (a, b map[string][]signals.Event) {
	a = map[string][]signals.Event{
		"git":   burst("git", 10, now),
		"slack": burst("slack", 1, now),
	}
	b = map[string][]signals.Event{
		"git":     burst("git", 1, now),
		"slack":   burst("slack", 1, now),
		"support": burst("support", 5, now),
	}
	return a, b
}

func fixtureParams() Params {
	return ParamsFromConfig(config.DefaultConfig())
}

func TestDecay(t *testing.T) {
	week := 7 * 24 * time.Hour
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"now", 0, 1},
		{"one half-life", week, 0.5},
		{"two half-lives", 2 * week, 0.25},
		{"future clamps", -time.Hour, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decay(tt.age, week); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Decay(%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestSaturate(t *testing.T) {
	if Saturate(0, 3) != 0 || Saturate(-1, 3) != 0 {
		t.Error("non-positive input should saturate to 0")
	}
	if Saturate(3, 3) != 0.5 {
		t.Errorf("Saturate(m, m) = %v, want 0.5", Saturate(3, 3))
	}
	if Saturate(1e9, 3) >= 1 {
		t.Error("saturation must stay below 1")
	}
	if Saturate(2, 3) >= Saturate(4, 3) {
		t.Error("saturation must be increasing")
	}
}

func TestScore_SupportDominance(t *testing.T) {
	p := fixtureParams()
	a, b := docFixture()

	scoreA := p.Score("doc-a", a, now)
	scoreB := p.Score("doc-b", b, now)

	if math.Abs(scoreA.Priority-2.8077) > 1e-3 {
		t.Errorf("A priority = %v, want ~2.808", scoreA.Priority)
	}
	if math.Abs(scoreB.Priority-3.75) > 1e-3 {
		t.Errorf("B priority = %v, want 3.75", scoreB.Priority)
	}

	ranked := Rank([]ComponentScore{scoreA, scoreB})
	if ranked[0].ComponentID != "doc-b" {
		t.Errorf("expected doc-b first, got %s", ranked[0].ComponentID)
	}
}

func TestScore_WeightMonotonicity(t *testing.T) {
	a, b := docFixture()

	base := fixtureParams()
	baseGap := base.Score("doc-a", a, now).Priority - base.Score("doc-b", b, now).Priority

	heavyGit := fixtureParams()
	heavyGit.Weights["git"] = 10
	gap := heavyGit.Score("doc-a", a, now).Priority - heavyGit.Score("doc-b", b, now).Priority

	if gap <= baseGap {
		t.Errorf("raising the git weight should favor the git-dominated doc: gap %v -> %v", baseGap, gap)
	}
	ranked := Rank([]ComponentScore{heavyGit.Score("doc-a", a, now), heavyGit.Score("doc-b", b, now)})
	if ranked[0].ComponentID != "doc-a" {
		t.Errorf("with git weight 10, doc-a should rank first, got %s", ranked[0].ComponentID)
	}
}

func TestScore_ModalityGating(t *testing.T) {
	_, b := docFixture()

	cfg := config.DefaultConfig()
	with := ParamsFromConfig(cfg).Score("doc-b", b, now)

	cfg.Modalities = map[string]bool{"slack": false}
	without := ParamsFromConfig(cfg).Score("doc-b", b, now)

	if _, ok := without.Sources["slack"]; ok {
		t.Error("disabled slack should not appear in source metrics")
	}
	if _, ok := without.Axes["activity"].Metrics["slack"]; ok {
		t.Error("disabled slack should not appear in axis metrics")
	}
	if math.Abs((with.Priority-without.Priority)-0.5) > 1e-3 {
		t.Errorf("slack contributed %v, want 0.5", with.Priority-without.Priority)
	}

	links := Links(b, ParamsFromConfig(cfg))
	if _, ok := links["slack"]; ok {
		t.Error("disabled slack should contribute no links")
	}
	if len(links["support"]) != 5 {
		t.Errorf("support links = %v", links["support"])
	}
}

func TestScore_AbsentWeightContributesNothing(t *testing.T) {
	p := fixtureParams()
	events := map[string][]signals.Event{"tickets": burst("tickets", 50, now)}

	s := p.Score("comp:x", events, now)
	if s.Priority != 0 {
		t.Errorf("Priority = %v, want 0", s.Priority)
	}
	if s.Axes["dissatisfaction"].Score != 0 {
		t.Errorf("dissatisfaction = %v, want 0", s.Axes["dissatisfaction"].Score)
	}
}

func TestScore_AxesAndTrend(t *testing.T) {
	p := fixtureParams()
	events := map[string][]signals.Event{
		"git":     burst("git", 6, now.Add(-time.Hour)),
		"support": burst("support", 30, now.Add(-30*24*time.Hour)),
	}
	s := p.Score("comp:payments", events, now)

	drift := s.Axes["drift"]
	if drift.Score <= 0 || drift.Score > 100 {
		t.Fatalf("drift score = %v", drift.Score)
	}
	if drift.Trend != TrendUp {
		t.Errorf("drift trend = %s, want up (all git activity is new)", drift.Trend)
	}
	if drift.Window != "7d" {
		t.Errorf("window = %s", drift.Window)
	}
	if drift.Summary == "" || drift.Metrics["git"].Events != 6 {
		t.Errorf("bundle = %+v", drift)
	}

	dis := s.Axes["dissatisfaction"]
	if dis.Trend != TrendDown {
		t.Errorf("dissatisfaction trend = %s, want down (support decayed further over the window)", dis.Trend)
	}
	for axis, b := range s.Axes {
		if b.Score < 0 || b.Score > 100 {
			t.Errorf("%s score %v outside [0,100]", axis, b.Score)
		}
	}

	quiet := p.Score("comp:quiet", nil, now)
	if quiet.Axes["activity"].Trend != TrendFlat || quiet.Axes["activity"].Score != 0 {
		t.Errorf("quiet component = %+v", quiet.Axes["activity"])
	}
}

func TestScore_FutureEventsClamp(t *testing.T) {
	p := fixtureParams()
	future := map[string][]signals.Event{"git": burst("git", 3, now.Add(48*time.Hour))}
	present := map[string][]signals.Event{"git": burst("git", 3, now)}

	if f, c := p.Score("x", future, now).Priority, p.Score("x", present, now).Priority; f != c {
		t.Errorf("future events should score like present ones: %v vs %v", f, c)
	}
}

type staticCollector map[string]map[string][]signals.Event

func (s staticCollector) Collect(_ context.Context, id string, _ time.Time) (map[string][]signals.Event, error) {
	return s[id], nil
}

func TestScorer_ScoreAll(t *testing.T) {
	a, b := docFixture()
	collector := staticCollector{"comp:a": a, "comp:b": b, "comp:c": nil}
	scorer := NewScorer(collector, fixtureParams(), 0, 2, slogutil.NewDiscardLogger())

	results, err := scorer.ScoreAll(context.Background(), []string{"comp:a", "comp:b", "comp:c"}, now)
	if err != nil {
		t.Fatalf("ScoreAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	order := []string{results[0].Score.ComponentID, results[1].Score.ComponentID, results[2].Score.ComponentID}
	if order[0] != "comp:b" || order[1] != "comp:a" || order[2] != "comp:c" {
		t.Errorf("order = %v", order)
	}
}
