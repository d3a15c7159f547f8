// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated by a Client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.SummaryVec
	pending  prometheus.Gauge
}

// NewMetrics creates the query collectors and registers them with reg.
// It must be called only once per registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lsfquery",
			Name:      "commands_total",
			Help:      "Number of LSF commands run, by program and outcome.",
		}, []string{"command", "status"}),
		duration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  "lsfquery",
			Name:       "command_duration_seconds",
			Help:       "Time taken by LSF commands, by program.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"command"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lsfquery",
			Name:      "pending_jobs",
			Help:      "Number of pending jobs reported by the most recent pending-jobs query.",
		}),
	}
	reg.MustRegister(m.commands, m.duration, m.pending)
	return m
}

func (m *Metrics) observe(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
