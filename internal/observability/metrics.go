package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Turns            *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderFallback *prometheus.CounterVec
	UnknownActions   prometheus.Counter
	SkillExecutions  *prometheus.CounterVec
	LoopIterations   prometheus.Histogram
	MemoryDegraded   *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec

	stages *stageWindow
}

// NewMetrics registers instruments with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers instruments with reg; tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled turns by mode (agent or stream).",
		}, []string{"mode"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Language model calls by provider.",
		}, []string{"provider"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and kind.",
		}, []string{"provider", "kind"}),
		ProviderFallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Fallbacks to the local provider by failed provider.",
		}, []string{"from"}),
		UnknownActions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_actions_total",
			Help:      "Model actions dropped because no such skill is registered or allowed.",
		}),
		SkillExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_executions_total",
			Help:      "Server-side skill executions by skill and status.",
		}, []string{"skill", "status"}),
		LoopIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loop_iterations",
			Help:      "Model calls per agent turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		MemoryDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_degraded_total",
			Help:      "Memory operations that continued without a source.",
		}, []string{"source"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active conversation sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) ObserveProviderCall(provider string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) ObserveProviderFallback(from string) {
	if m == nil {
		return
	}
	m.ProviderFallback.WithLabelValues(from).Inc()
	m.stages.ObserveIndicator(IndicatorProviderFallback)
}

func (m *Metrics) ObserveMemoryDegraded(source string) {
	if m == nil {
		return
	}
	m.MemoryDegraded.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveTurn(mode string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveUnknownAction() {
	if m == nil {
		return
	}
	m.UnknownActions.Inc()
	m.stages.ObserveIndicator(IndicatorUnknownAction)
}

func (m *Metrics) ObserveSkill(skill, status string) {
	if m == nil {
		return
	}
	m.SkillExecutions.WithLabelValues(skill, status).Inc()
}

func (m *Metrics) ObserveLoop(iterations int, boundReached bool) {
	if m == nil {
		return
	}
	m.LoopIterations.Observe(float64(iterations))
	if boundReached {
		m.stages.ObserveIndicator(IndicatorLoopBound)
	}
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, typ string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, typ).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// ObserveStage records a stage latency in the rolling window.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
