// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FlowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_flow_transitions_total",
			Help: "Total number of step-flow transitions by event and resulting phase",
		},
		[]string{"event", "phase"},
	)

	SuggestionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_suggestion_requests_total",
			Help: "Total number of suggestion requests issued after debounce",
		},
		[]string{"question_id"},
	)

	SuggestionStaleDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_suggestion_stale_drops_total",
			Help: "Total number of suggestion responses discarded as stale",
		},
		[]string{"question_id"},
	)

	GeocodeProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_geocode_provider_attempts_total",
			Help: "Total number of geocode lookups per provider tier",
		},
		[]string{"provider"},
	)

	GeocodeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_geocode_fallbacks_total",
			Help: "Total number of permanent provider fallbacks",
		},
		[]string{"from", "to"},
	)

	AnalysisFanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "intake_analysis_fanout_duration_seconds",
			Help: "Duration of the branch-transition analysis fan-out",
		},
		[]string{"outcome"},
	)

	CohortSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_cohort_saves_total",
			Help: "Total number of cohort record save attempts by result",
		},
		[]string{"result"},
	)
)
