package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsTotal counts processed documents.
	// Labels: method (extraction:llm, extraction:regex_fallback)
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adminrag",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total number of inbox documents processed, by extraction method",
		},
		[]string{"method"},
	)

	// DocumentDuration tracks per-document processing time.
	DocumentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "adminrag",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Time spent acquiring, extracting and validating one document",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// ValidationIssuesTotal counts validation findings.
	ValidationIssuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adminrag",
			Subsystem: "pipeline",
			Name:      "validation_issues_total",
			Help:      "Total number of validation issues raised",
		},
		[]string{"issue"},
	)

	// RunsTotal counts pipeline runs.
	// Labels: result (success, error), dry_run (true, false)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adminrag",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"result", "dry_run"},
	)

	// StepsTotal counts executed plan steps.
	// Labels: tool, status (ok, dry_run)
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adminrag",
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Total number of plan steps evaluated",
		},
		[]string{"tool", "status"},
	)
)
