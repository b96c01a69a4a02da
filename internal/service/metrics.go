package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phivault_operations_total",
		Help: "Facade operations by method and outcome.",
	}, []string{"method", "status"})

	entitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phivault_entities_substituted_total",
		Help: "Entity occurrences substituted or restored, by category.",
	}, []string{"type"})

	detectionDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phivault_detection_degraded_total",
		Help: "Operations served with local-only detection because the external recognizer was unavailable.",
	})
)
