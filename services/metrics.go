package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hse",
		Name:      "record_operations_total",
		Help:      "Record writes by kind, operation and outcome.",
	}, []string{"kind", "operation", "outcome"})

	humanIDRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hse",
		Name:      "human_id_collisions_total",
		Help:      "Generated record identifiers that were already taken.",
	}, []string{"kind"})
)

func observe(kind, operation string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthenticated):
		outcome = "denied"
	default:
		outcome = "error"
	}
	recordOperations.WithLabelValues(kind, operation, outcome).Inc()
}
