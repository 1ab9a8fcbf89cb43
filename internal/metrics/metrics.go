// Package metrics exposes Prometheus instrumentation for the extraction pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"email-task-extractor/internal/routing"
)

var (
	// ExtractionsTotal counts processed emails.
	// Labels: outcome (success, empty, extraction_error, scoring_error)
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskx",
			Subsystem: "pipeline",
			Name:      "extractions_total",
			Help:      "Total number of emails processed by outcome",
		},
		[]string{"outcome"},
	)

	// TasksRouted counts routed tasks by tier.
	TasksRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskx",
			Subsystem: "routing",
			Name:      "tasks_total",
			Help:      "Total number of tasks routed by review status",
		},
		[]string{"status"},
	)

	// FinalConfidence observes the adjusted confidence of each routed task.
	FinalConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskx",
			Subsystem: "routing",
			Name:      "final_confidence",
			Help:      "Distribution of adjusted task confidence",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	// ExtractionDuration tracks end-to-end processing time per email.
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskx",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Duration of email processing in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)

// Outcome labels for ExtractionsTotal.
const (
	OutcomeSuccess         = "success"
	OutcomeEmpty           = "empty"
	OutcomeExtractionError = "extraction_error"
	OutcomeScoringError    = "scoring_error"
)

// Recorder is the sink the pipeline reports to.
type Recorder interface {
	ObserveExtraction(outcome string, elapsed time.Duration)
	ObserveTasks(tasks []routing.ScoredTask)
}

// Prometheus records into the package collectors.
type Prometheus struct{}

func (Prometheus) ObserveExtraction(outcome string, elapsed time.Duration) {
	ExtractionsTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		ExtractionDuration.Observe(elapsed.Seconds())
	}
}

func (Prometheus) ObserveTasks(tasks []routing.ScoredTask) {
	for _, task := range tasks {
		TasksRouted.WithLabelValues(string(task.ReviewStatus)).Inc()
		FinalConfidence.Observe(task.FinalConfidence)
	}
}
