// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the gateway.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace  = "yggdrasil"
	pipelineSubsystem = "pipeline"
)

// PipelineMetrics holds the gateway's Prometheus metrics.
//
// # Fields
//
//   - RequestsTotal: pipeline requests by endpoint and outcome
//     (verified, refused, error)
//   - RefusalsTotal: refusals by reason
//   - RequestDurationSeconds: end-to-end pipeline latency by endpoint
//   - ActiveStreams: currently open SSE streams
//   - CouncilResponsesTotal: member responses observed in deliberations
type PipelineMetrics struct {
	RequestsTotal          *prometheus.CounterVec
	RefusalsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
	ActiveStreams          prometheus.Gauge
	CouncilResponsesTotal  *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all gateway metrics. Call once at
// startup.
func InitMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "requests_total",
			Help:      "Pipeline requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		RefusalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "refusals_total",
			Help:      "Refusals by reason.",
		}, []string{"reason"}),

		RequestDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: pipelineSubsystem,
			Name:      "active_streams",
			Help:      "Currently open SSE streams.",
		}),

		CouncilResponsesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "council",
			Name:      "responses_total",
			Help:      "Member responses observed in deliberations.",
		}, []string{"member"}),
	}
	DefaultMetrics = m
	return m
}

// ObserveOutcome records one finished request on the default metrics, if
// initialized.
func ObserveOutcome(endpoint, outcome string, seconds float64) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	DefaultMetrics.RequestDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// ObserveRefusal records one refusal reason on the default metrics.
func ObserveRefusal(reason string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.RefusalsTotal.WithLabelValues(reason).Inc()
}
