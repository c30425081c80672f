package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	drawEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "draw",
			Name:      "evaluations_total",
			Help:      "Total number of persisted prize draw evaluations.",
		},
		[]string{"draw_type", "outcome"},
	)

	drawFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "draw",
			Name:      "evaluation_failures_total",
			Help:      "Total number of prize draw evaluations that were rejected.",
		},
		[]string{"reason"},
	)

	drawDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "loyalty",
			Subsystem: "draw",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of a single evaluation including persistence.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	cardsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "bingo",
			Name:      "cards_generated_total",
			Help:      "Total number of bingo cards issued.",
		},
	)

	cellsUnlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loyalty",
			Subsystem: "bingo",
			Name:      "cells_unlocked_total",
			Help:      "Total number of bingo cells unlocked by acquired instances.",
		},
	)
)

func init() {
	Registry.MustRegister(
		drawEvaluations,
		drawFailures,
		drawDuration,
		cardsGenerated,
		cellsUnlocked,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordEvaluation counts a persisted evaluation.
func RecordEvaluation(drawType, outcome string, duration time.Duration) {
	drawEvaluations.WithLabelValues(drawType, outcome).Inc()
	drawDuration.Observe(duration.Seconds())
}

// RecordEvaluationFailure counts a rejected evaluation by reason.
func RecordEvaluationFailure(reason string) {
	drawFailures.WithLabelValues(reason).Inc()
}

func RecordCardsGenerated(n int) {
	if n > 0 {
		cardsGenerated.Add(float64(n))
	}
}

func RecordCellsUnlocked(n int) {
	if n > 0 {
		cellsUnlocked.Add(float64(n))
	}
}
