// Package metrics registers the Prometheus instrumentation for the core,
// grounded on the teacher's promauto-registered *Vec style in
// internal/escrow/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the core publishes.
type Metrics struct {
	MovementsIngested   *prometheus.CounterVec
	PlateReviewsCreated prometheus.Counter

	SessionsOpened       *prometheus.CounterVec
	SessionsClosed       *prometheus.CounterVec
	SessionDuration      prometheus.Histogram
	DuplicateEntrySkips  *prometheus.CounterVec

	DecisionsTotal        *prometheus.CounterVec
	DecisionsReconciled   *prometheus.CounterVec
	ReconciliationRuns    *prometheus.CounterVec

	ScheduledJobDuration *prometheus.HistogramVec
}

// New creates and registers all core metrics.
func New() *Metrics {
	return &Metrics{
		MovementsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_movements_ingested_total",
				Help: "Total number of movement-ingest calls, by result.",
			},
			[]string{"result"}, // new, duplicate
		),
		PlateReviewsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "anpr_plate_reviews_created_total",
				Help: "Total number of PlateReview records created for suspicious reads.",
			},
		),
		SessionsOpened: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_sessions_opened_total",
				Help: "Total number of sessions opened, by outcome.",
			},
			[]string{"outcome"}, // opened, duplicate_skipped
		),
		SessionsClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_sessions_closed_total",
				Help: "Total number of sessions closed, by how they closed.",
			},
			[]string{"reason"}, // completed, expired
		),
		SessionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "anpr_session_duration_minutes",
				Help:    "Duration of completed parking sessions in minutes.",
				Buckets: []float64{5, 10, 15, 30, 60, 120, 240, 480, 1440},
			},
		),
		DuplicateEntrySkips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_duplicate_entry_skips_total",
				Help: "Total number of duplicate-entry movements suppressed per site.",
			},
			[]string{"site_id"},
		),
		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_decisions_total",
				Help: "Total number of rule-engine decisions produced, by outcome and rule.",
			},
			[]string{"outcome", "rule"},
		),
		DecisionsReconciled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_decisions_reconciled_total",
				Help: "Total number of decisions changed by reconciliation, by trigger.",
			},
			[]string{"trigger"}, // payment, permit, site
		),
		ReconciliationRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anpr_reconciliation_runs_total",
				Help: "Total number of reconciliation invocations, by trigger.",
			},
			[]string{"trigger"},
		),
		ScheduledJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anpr_scheduled_job_duration_seconds",
				Help:    "Duration of scheduled job passes.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}
}
