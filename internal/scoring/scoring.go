// Package scoring turns harvested signal events into 0-100 activity, drift
// and dissatisfaction scores per component.
//
// Each source's events are summed with a recency decay of 0.5^(Δt/halfLife),
// saturated with x/(x+m) so bursts cannot dominate, then combined as a
// weighted average per axis. Priority, the ranking key, is the weighted sum
// of saturations over every enabled source.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"docdrift/internal/config"
	"docdrift/internal/signals"
)

// Trend directions.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Params are the scoring knobs, usually derived from configuration.
type Params struct {
	Weights      map[string]float64
	Disabled     map[string]bool
	HalfLife     time.Duration
	Window       time.Duration
	Midpoint     float64
	TrendEpsilon float64
	Axes         map[string][]string
}

// ParamsFromConfig builds scoring parameters from cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	p := Params{
		Weights:      map[string]float64{},
		Disabled:     map[string]bool{},
		HalfLife:     cfg.Scoring.HalfLife(),
		Window:       cfg.Scoring.Window(),
		Midpoint:     cfg.Scoring.SaturationMidpoint,
		TrendEpsilon: cfg.Scoring.TrendEpsilon,
		Axes:         cfg.Scoring.Axes,
	}
	for src, w := range cfg.Weights {
		p.Weights[strings.ToLower(src)] = w
	}
	for src, enabled := range cfg.Modalities {
		if !enabled {
			p.Disabled[strings.ToLower(src)] = true
		}
	}
	return p
}

// weight returns the effective weight of a source; disabled and unknown sources weigh 0.
func (p Params) weight(source string) float64 {
	if p.Disabled[source] {
		return 0
	}
	return p.Weights[source]
}

// Decay returns the recency multiplier for an event age. Negative ages
// (events in the future) clamp to 0 and a non-positive half-life disables decay.
func Decay(age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// Saturate maps x ≥ 0 into [0, 1), reaching 0.5 at the midpoint m.
func Saturate(x, m float64) float64 {
	if x <= 0 {
		return 0
	}
	if m <= 0 {
		m = 1
	}
	return x / (x + m)
}

// SourceMetric is the per-source breakdown of a score.
type SourceMetric struct {
	Events       int     `json:"events"`
	Decayed      float64 `json:"decayed"`
	Saturation   float64 `json:"saturation"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"` // weight × saturation
}

// SignalBundle is one axis score with its trend and explanation.
type SignalBundle struct {
	Axis    string                  `json:"axis"`
	Score   float64                 `json:"score"`
	Trend   Trend                   `json:"trend"`
	Delta   float64                 `json:"delta"`
	Window  string                  `json:"window"`
	Summary string                  `json:"summary"`
	Metrics map[string]SourceMetric `json:"metrics"`
}

// ComponentScore is the scoring output for one component.
type ComponentScore struct {
	ComponentID string                  `json:"componentId"`
	Priority    float64                 `json:"priority"`
	Axes        map[string]SignalBundle `json:"axes"`
	Sources     map[string]SourceMetric `json:"sources"`
	ComputedAt  time.Time               `json:"computedAt"`
}

// Links returns the signal node ids behind the contributing events of the given
// sources, in event order.
func Links(events map[string][]signals.Event, p Params) map[string][]string {
	out := map[string][]string{}
	for src, evs := range events {
		if p.weight(src) <= 0 {
			continue
		}
		for _, e := range evs {
			if e.Magnitude > 0 {
				out[src] = append(out[src], e.Link)
			}
		}
	}
	return out
}

// metrics sums decayed magnitudes per source as seen at time at. Events after
// at are clamped to age 0 when includeFuture is set and dropped otherwise.
func (p Params) metrics(events map[string][]signals.Event, at time.Time, includeFuture bool) map[string]SourceMetric {
	out := make(map[string]SourceMetric, len(events))
	for src, evs := range events {
		src = strings.ToLower(src)
		w := p.weight(src)
		if p.Disabled[src] {
			continue
		}
		m := out[src]
		m.Weight = w
		for _, e := range evs {
			if e.At.After(at) && !includeFuture {
				continue
			}
			m.Events++
			m.Decayed += e.Magnitude * Decay(at.Sub(e.At), p.HalfLife)
		}
		m.Saturation = Saturate(m.Decayed, p.Midpoint)
		m.Contribution = w * m.Saturation
		out[src] = m
	}
	return out
}

// axisScore is 100 × Σ w·sat / Σ w over the axis's weighted sources.
func (p Params) axisScore(axis string, metrics map[string]SourceMetric) float64 {
	var num, den float64
	for _, src := range p.Axes[axis] {
		w := p.weight(src)
		if w <= 0 {
			continue
		}
		den += w
		num += w * metrics[src].Saturation
	}
	if den == 0 {
		return 0
	}
	return round2(100 * num / den)
}

// Score computes a component's scores as of now.
func (p Params) Score(componentID string, events map[string][]signals.Event, now time.Time) ComponentScore {
	current := p.metrics(events, now, true)
	previous := p.metrics(events, now.Add(-p.Window), false)

	cs := ComponentScore{
		ComponentID: componentID,
		Axes:        make(map[string]SignalBundle, len(p.Axes)),
		Sources:     current,
		ComputedAt:  now,
	}
	for _, m := range current {
		cs.Priority += m.Contribution
	}
	cs.Priority = round4(cs.Priority)

	for axis, sources := range p.Axes {
		score := p.axisScore(axis, current)
		delta := round2(score - p.axisScore(axis, previous))
		axisMetrics := make(map[string]SourceMetric, len(sources))
		for _, src := range sources {
			if m, ok := current[src]; ok && p.weight(src) > 0 {
				axisMetrics[src] = m
			}
		}
		b := SignalBundle{
			Axis:    axis,
			Score:   score,
			Trend:   trend(delta, p.TrendEpsilon),
			Delta:   delta,
			Window:  windowLabel(p.Window),
			Metrics: axisMetrics,
		}
		b.Summary = summarize(b)
		cs.Axes[axis] = b
	}
	return cs
}

func trend(delta, epsilon float64) Trend {
	switch {
	case math.Abs(delta) < epsilon:
		return TrendFlat
	case delta > 0:
		return TrendUp
	default:
		return TrendDown
	}
}

func windowLabel(d time.Duration) string {
	if d <= 0 {
		return "all"
	}
	hours := int(d.Hours())
	if hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}

// summarize renders "drift 42.5 (up over 7d): git 10 events, issues 2 events".
func summarize(b SignalBundle) string {
	names := make([]string, 0, len(b.Metrics))
	for src, m := range b.Metrics {
		if m.Events > 0 {
			names = append(names, src)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := b.Metrics[names[i]].Contribution, b.Metrics[names[j]].Contribution
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})

	head := fmt.Sprintf("%s %.1f (%s over %s)", b.Axis, b.Score, b.Trend, b.Window)
	if len(names) == 0 {
		return head + ": no signals"
	}
	parts := make([]string, 0, len(names))
	for _, src := range names {
		n := b.Metrics[src].Events
		unit := "events"
		if n == 1 {
			unit = "event"
		}
		parts = append(parts, fmt.Sprintf("%s %d %s", src, n, unit))
	}
	return head + ": " + strings.Join(parts, ", ")
}

// Rank orders scores by priority descending, then component id.
func Rank(scores []ComponentScore) []ComponentScore {
	out := append([]ComponentScore(nil), scores...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ComponentID < out[j].ComponentID
	})
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
