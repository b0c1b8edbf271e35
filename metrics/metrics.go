// Package metrics holds the prometheus collectors for generation, enrichment,
// assembly, edits and chat sessions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tripy"

type Metrics struct {
	GenerationAttempts *prometheus.CounterVec
	GenerationOutcomes *prometheus.CounterVec
	PlaceLookups       *prometheus.CounterVec
	Assemblies         *prometheus.CounterVec
	AssemblyDuration   prometheus.Histogram
	Edits              *prometheus.CounterVec
	ChatMessages       *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GenerationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Generator invocations by schema and attempt kind (initial, repair).",
		}, []string{"schema", "attempt"}),
		GenerationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_outcomes_total",
			Help:      "Contract call results by schema and outcome.",
		}, []string{"schema", "outcome"}),
		PlaceLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "place_lookups_total",
			Help:      "Place resolutions by source (local, redis, search) and result.",
		}, []string{"source", "result"}),
		Assemblies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemblies_total",
			Help:      "Itinerary assembly runs by final state.",
		}, []string{"state"}),
		AssemblyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Wall time of a full assembly run.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		Edits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Edit pipeline runs by outcome kind.",
		}, []string{"outcome"}),
		ChatMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Inbound chat messages by handling result.",
		}, []string{"result"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_active_sessions",
			Help:      "Chat sessions currently registered.",
		}),
	}
}

func (m *Metrics) GenerationAttempt(schema, attempt string) {
	if m == nil {
		return
	}
	m.GenerationAttempts.WithLabelValues(schema, attempt).Inc()
}

func (m *Metrics) GenerationOutcome(schema, outcome string) {
	if m == nil {
		return
	}
	m.GenerationOutcomes.WithLabelValues(schema, outcome).Inc()
}

func (m *Metrics) PlaceLookup(source, result string) {
	if m == nil {
		return
	}
	m.PlaceLookups.WithLabelValues(source, result).Inc()
}

func (m *Metrics) Assembly(state string, seconds float64) {
	if m == nil {
		return
	}
	m.Assemblies.WithLabelValues(state).Inc()
	m.AssemblyDuration.Observe(seconds)
}

func (m *Metrics) Edit(outcome string) {
	if m == nil {
		return
	}
	m.Edits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChatMessage(result string) {
	if m == nil {
		return
	}
	m.ChatMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
