// Package metrics holds the prometheus instruments for the scrape and
// ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestOutcomes counts upsert results by outcome kind
	// (created/unchanged/updated/conflict).
	IngestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queuetrack_ingest_outcomes_total",
		Help: "Total observation upserts by outcome.",
	}, []string{"outcome"})

	ScrapeCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queuetrack_scrape_cycles_total",
		Help: "Total completed scrape cycles.",
	})

	UserScrapeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queuetrack_user_scrape_failures_total",
		Help: "Total per-user scrape failures (other users keep running).",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "queuetrack_scrape_cycle_duration_seconds",
		Help:    "Duration of a full scrape cycle across all users.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
