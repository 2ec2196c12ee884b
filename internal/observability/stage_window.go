package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Stage is one step of an agent turn.
type Stage string

const (
	StageContext  Stage = "context"
	StageGenerate Stage = "generate"
	StageSkill    Stage = "skill"
	StageTurn     Stage = "turn"
)

// turnStages lists the stages in pipeline order with their p95 budgets.
// A turn may run generate and skill more than once.
var turnStages = []struct {
	stage    Stage
	budgetMS float64
}{
	{StageContext, 150},
	{StageGenerate, 4000},
	{StageSkill, 2500},
	{StageTurn, 9000},
}

// Indicator names a loop event worth counting next to latencies.
type Indicator string

const (
	IndicatorProviderFallback Indicator = "provider_fallback"
	IndicatorUnknownAction    Indicator = "unknown_action"
	IndicatorLoopBound        Indicator = "loop_bound_reached"
)

var indicatorOrder = []Indicator{IndicatorProviderFallback, IndicatorUnknownAction, IndicatorLoopBound}

type StageStats struct {
	Stage      Stage   `json:"stage"`
	Samples    int     `json:"samples"`
	LastMS     float64 `json:"last_ms"`
	AvgMS      float64 `json:"avg_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	P99MS      float64 `json:"p99_ms"`
	BudgetMS   float64 `json:"budget_p95_ms"`
	OverBudget int     `json:"over_budget"`
}

type IndicatorCount struct {
	Name  Indicator `json:"name"`
	Count int       `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []StageStats     `json:"stages"`
	Indicators  []IndicatorCount `json:"indicators,omitempty"`
}

// stageWindow keeps the last size latencies of every turn stage.
type stageWindow struct {
	mu         sync.Mutex
	size       int
	rings      map[Stage]*ring
	indicators map[Indicator]int
}

type ring struct {
	budget float64
	values []float64
	next   int
	count  int
	last   float64
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	w := &stageWindow{
		size:       size,
		rings:      make(map[Stage]*ring, len(turnStages)),
		indicators: make(map[Indicator]int, len(indicatorOrder)),
	}
	for _, s := range turnStages {
		w.rings[s.stage] = &ring{budget: s.budgetMS, values: make([]float64, size)}
	}
	return w
}

// Observe drops negative samples and stages outside the turn pipeline.
func (w *stageWindow) Observe(stage Stage, ms float64) {
	if ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		return
	}
	r.values[r.next] = ms
	r.last = ms
	r.next = (r.next + 1) % len(r.values)
	r.count = min(r.count+1, len(r.values))
}

func (w *stageWindow) ObserveIndicator(name Indicator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

// Snapshot reports stages in pipeline order, skipping those without samples.
func (w *stageWindow) Snapshot() StageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(turnStages)),
	}
	for _, s := range turnStages {
		r := w.rings[s.stage]
		if r.count == 0 {
			continue
		}
		samples := slices.Clone(r.values[:r.count])
		slices.Sort(samples)

		var sum float64
		over := 0
		for _, v := range samples {
			sum += v
			if v > r.budget {
				over++
			}
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:      s.stage,
			Samples:    r.count,
			LastMS:     round2(r.last),
			AvgMS:      round2(sum / float64(r.count)),
			P50MS:      round2(Quantile(samples, 0.50)),
			P95MS:      round2(Quantile(samples, 0.95)),
			P99MS:      round2(Quantile(samples, 0.99)),
			BudgetMS:   r.budget,
			OverBudget: over,
		})
	}
	for _, name := range indicatorOrder {
		if n := w.indicators[name]; n > 0 {
			snap.Indicators = append(snap.Indicators, IndicatorCount{Name: name, Count: n})
		}
	}
	return snap
}

// Quantile interpolates linearly between the closest ranks of sorted.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
