package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_reviews_written_total",
			Help: "Total number of committed review writes",
		},
		[]string{"op"},
	)

	votesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_votes_cast_total",
			Help: "Total number of committed vote actions",
		},
		[]string{"action"},
	)

	summaryCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_summary_cache_requests_total",
			Help: "Summary cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)
)
