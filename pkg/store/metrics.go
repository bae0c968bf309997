package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubusdb/kubus/pkg/constants"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubus",
			Subsystem: "store",
			Name:      "requests_total",
			Help:      "Store operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kubus",
			Subsystem: "store",
			Name:      "request_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	if reg == nil {
		return m
	}

	// Several handles may share one registry; reuse what is already there.
	if err := reg.Register(m.requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.requests = existing
			}
		}
	}
	if err := reg.Register(m.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.duration = existing
			}
		}
	}

	return m
}

func (m *metrics) observe(op string, start time.Time, err error) {
	m.requests.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, constants.ErrNotFound):
		return "not_found"
	case errors.Is(err, constants.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
