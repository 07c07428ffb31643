// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var TimeBuckets = []float64{
	0,
	1e-6, 1e-5,
	1e-4, 2.5e-4, 5e-4, 7.5e-4,
	1e-3, 2.5e-3, 5e-3, 7.5e-3,
	1e-2, 2.5e-2, 5e-2, 7.5e-2,
	1e-1, 2.5e-1, 5e-1, 7.5e-1,
	1, 2.5, 5, 10,
	math.Inf(1),
}

type commonMetrics struct {
	enabled bool
	latency *prometheus.HistogramVec
}

func newCommonMetrics(namespace string, reg prometheus.Registerer) *commonMetrics {
	// If the registry is nil, then metrics collection is disabled
	s := &commonMetrics{enabled: reg != nil}
	if !s.enabled {
		return s
	}
	s.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "latency_seconds",
		Buckets:   TimeBuckets,
	}, []string{"process"})
	reg.MustRegister(s.latency)
	return s
}

type Timer prometheus.Timer

func (s *commonMetrics) NewLatencyTimer(label string) *Timer {
	if s.enabled {
		return (*Timer)(prometheus.NewTimer(s.latency.WithLabelValues(label)))
	}
	return nil
}

func (t *Timer) Observe() {
	if t == nil {
		return
	}
	(*prometheus.Timer)(t).ObserveDuration()
}

func (s *commonMetrics) Latency(label string, startTime time.Time) {
	if s.enabled {
		s.latency.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}
}

// AuthMetrics counts request authentication outcomes.
type AuthMetrics struct {
	commonMetrics
	results *prometheus.CounterVec
}

// AuthResultOK labels an accepted request; rejections are labelled with the error kind.
const AuthResultOK = "ok"

func NewAuthMetrics(reg prometheus.Registerer) *AuthMetrics {
	const namespace = "auth"
	s := &AuthMetrics{commonMetrics: *newCommonMetrics(namespace, reg)}
	if !s.enabled {
		return s
	}

	s.results = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Authenticated and rejected requests by result",
	}, []string{"result", "delegated"})
	reg.MustRegister(s.results)
	return s
}

func (s *AuthMetrics) IncrementResult(result string, delegated bool) {
	if s.enabled {
		d := "false"
		if delegated {
			d = "true"
		}
		s.results.WithLabelValues(result, d).Inc()
	}
}

// TodoMetrics counts todo store operations.
type TodoMetrics struct {
	commonMetrics
	operations *prometheus.CounterVec
}

func NewTodoMetrics(reg prometheus.Registerer) *TodoMetrics {
	const namespace = "todo"
	s := &TodoMetrics{commonMetrics: *newCommonMetrics(namespace, reg)}
	if !s.enabled {
		return s
	}

	s.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Todo store operations by operation and status code",
	}, []string{"operation", "code"})
	reg.MustRegister(s.operations)
	return s
}

func (s *TodoMetrics) IncrementOperation(operation string, code int) {
	if s.enabled {
		s.operations.WithLabelValues(operation, codeLabel(code)).Inc()
	}
}

func codeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
