package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level metric variables. promauto registers them on import, so the
// numerical packages can bump counters without any initialization wiring.

var (
	// AffinityBuilds counts affinity matrices built, labeled by distance metric.
	AffinityBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citefuse_affinity_builds_total",
			Help: "Total number of per-modality affinity matrices built",
		},
		[]string{"metric"},
	)

	// FusionIterations counts diffusion iterations performed across all
	// fusion runs. Useful for spotting runs that never hit early stopping.
	FusionIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citefuse_fusion_iterations_total",
			Help: "Total number of SNF diffusion iterations executed",
		},
	)

	// FusionDuration measures wall time of complete fusion runs. Buckets
	// cover small pilot datasets up to multi-minute full experiments.
	FusionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citefuse_fusion_duration_seconds",
			Help:    "Duration of complete SNF fusion runs in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// Clusterings counts clustering invocations, labeled by algorithm.
	Clusterings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citefuse_clusterings_total",
			Help: "Total number of clustering runs",
		},
		[]string{"method"},
	)

	// Embeddings counts low-dimensional embedding runs, labeled by method.
	Embeddings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citefuse_embeddings_total",
			Help: "Total number of embedding runs",
		},
		[]string{"method"},
	)
)
