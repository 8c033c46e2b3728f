// Package metrics defines the prometheus counters reported by the capture pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GeoTagExtractions counts extraction attempts by outcome: "resolved", "absent" or "failed".
	GeoTagExtractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specimen",
		Subsystem: "geotag",
		Name:      "extractions_total",
		Help:      "Total image metadata extractions by outcome",
	}, []string{"outcome"})

	// StaleExtractions counts extraction results dropped because the image was superseded or cleared.
	StaleExtractions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "specimen",
		Subsystem: "geotag",
		Name:      "stale_results_total",
		Help:      "Total extraction results discarded for superseded images",
	})

	// Submissions counts upload attempts by transactor and outcome: "success" or "failure".
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specimen",
		Subsystem: "submit",
		Name:      "attempts_total",
		Help:      "Total observation submission attempts",
	}, []string{"transactor", "outcome"})

	// PositionLookups counts live position lookups by provider and outcome.
	PositionLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specimen",
		Subsystem: "position",
		Name:      "lookups_total",
		Help:      "Total live device position lookups",
	}, []string{"provider", "outcome"})
)

// Outcome labels.
const (
	OutcomeResolved = "resolved"
	OutcomeAbsent   = "absent"
	OutcomeFailed   = "failed"
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
)
