package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageGenerate, 500)
	w.Observe(StageGenerate, 700)
	w.Observe(StageGenerate, 4500)
	w.ObserveIndicator(IndicatorUnknownAction)
	w.ObserveIndicator(IndicatorUnknownAction)

	snap := w.Snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	assert.Equal(t, StageGenerate, s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 4500.0, s.LastMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Greater(t, s.P95MS, 700.0)
	assert.LessOrEqual(t, s.P95MS, 4500.0)
	assert.Equal(t, 4000.0, s.BudgetMS)
	assert.Equal(t, 1, s.OverBudget)

	assert.Equal(t, []IndicatorCount{{Name: IndicatorUnknownAction, Count: 2}}, snap.Indicators)
}

func TestStageWindowPipelineOrder(t *testing.T) {
	w := newStageWindow(4)
	w.Observe(StageTurn, 10)
	w.Observe(StageSkill, 5)
	w.Observe(StageContext, 1)
	w.Observe(Stage("render"), 3)
	w.Observe(StageGenerate, -1)

	var got []Stage
	for _, s := range w.Snapshot().Stages {
		got = append(got, s.Stage)
	}
	assert.Equal(t, []Stage{StageContext, StageSkill, StageTurn}, got)
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	w.Observe(StageTurn, 1)
	w.Observe(StageTurn, 2)
	w.Observe(StageTurn, 30)

	s := w.Snapshot().Stages[0]
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 16.0, s.AvgMS)
	assert.Equal(t, 30.0, s.LastMS)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")

	m.ObserveProviderCall("openai")
	m.ObserveProviderError("openai", "timeout")
	m.ObserveProviderFallback("openai")
	m.ObserveUnknownAction()
	m.ObserveSkill("search", "success")
	m.ObserveStage(StageSkill, 1500*time.Microsecond)

	assert.Equal(t, 1.0, counterValue(t, m.ProviderCalls.WithLabelValues("openai")))
	assert.Equal(t, 1.0, counterValue(t, m.ProviderErrors.WithLabelValues("openai", "timeout")))
	assert.Equal(t, 1.0, counterValue(t, m.UnknownActions))
	assert.Equal(t, 1.0, counterValue(t, m.SkillExecutions.WithLabelValues("search", "success")))

	snap := m.StageSnapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 1.5, snap.Stages[0].LastMS)
	assert.Len(t, snap.Indicators, 2)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveProviderCall("x")
	m.ObserveLoop(3, true)
	m.ObserveStage(StageTurn, time.Second)
	assert.Empty(t, m.StageSnapshot().Stages)
}

func counterValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}
