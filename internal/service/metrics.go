package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accessDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatedrop_access_decisions_total",
		Help: "Access decisions taken on info, download and preview requests, by reason.",
	}, []string{"reason"})

	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatedrop_downloads_total",
		Help: "Downloads recorded in file statistics.",
	})

	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatedrop_uploads_total",
		Help: "Files accepted for upload.",
	})

	cleanupRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatedrop_cleanup_removed_total",
		Help: "Expired files removed by cleanup sweeps.",
	})
)
