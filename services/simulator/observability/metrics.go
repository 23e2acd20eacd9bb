// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the simulator.
//
// Metrics cover session outcomes, critique retry rounds, and scoring
// batch item outcomes. All operations are thread-safe via Prometheus's
// internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutiansim"

const simulatorSubsystem = "simulator"

// SimulatorMetrics holds all Prometheus metrics for simulation runs.
type SimulatorMetrics struct {
	// SessionsTotal counts finished sessions by status.
	// Labels: status (completed, aborted)
	SessionsTotal *prometheus.CounterVec

	// SessionDurationSeconds measures wall-clock session duration.
	// Labels: status (completed, aborted)
	SessionDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks sessions currently in flight.
	ActiveSessions prometheus.Gauge

	// ScoringItemsTotal counts scoring batch items by outcome.
	// Labels: status (enriched, failed)
	ScoringItemsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics().
var DefaultMetrics *SimulatorMetrics

// InitMetrics creates and registers all simulator metrics on the default
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration.
func InitMetrics() *SimulatorMetrics {
	DefaultMetrics = &SimulatorMetrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: simulatorSubsystem,
				Name:      "sessions_total",
				Help:      "Total number of finished simulation sessions by status",
			},
			[]string{"status"},
		),

		SessionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: simulatorSubsystem,
				Name:      "session_duration_seconds",
				Help:      "Wall-clock duration of one simulation session",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: simulatorSubsystem,
				Name:      "active_sessions",
				Help:      "Number of simulation sessions currently in flight",
			},
		),

		ScoringItemsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: simulatorSubsystem,
				Name:      "scoring_items_total",
				Help:      "Total scoring batch items by outcome",
			},
			[]string{"status"},
		),
	}
	return DefaultMetrics
}
