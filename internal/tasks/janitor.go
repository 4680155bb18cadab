// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package tasks contains the background jobs of the Gatehouse API process.
package tasks

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/gatehouse/internal/gatehouse"
)

// Janitor contains the shared state of all background jobs.
type Janitor struct {
	sessions *gatehouse.SessionRegistry
}

// NewJanitor creates a Janitor.
func NewJanitor(sessions *gatehouse.SessionRegistry) *Janitor {
	return &Janitor{sessions: sessions}
}

var sessionCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "gatehouse_live_sessions",
	Help: "Number of sessions that have not expired yet.",
})

// SessionSweepJob is a job. Each task removes all sessions whose idle
// deadline has passed. Resolve() also expires sessions lazily, so this job
// only bounds the memory held by sessions that are never touched again.
func (j *Janitor) SessionSweepJob(registerer prometheus.Registerer) jobloop.Job {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(sessionCountGauge)

	return (&jobloop.CronJob{
		Metadata: jobloop.JobMetadata{
			ReadableName: "sweep expired sessions",
			CounterOpts: prometheus.CounterOpts{
				Name: "gatehouse_session_sweeps",
				Help: "Counter for sweeps of expired sessions.",
			},
		},
		Interval: 1 * time.Minute,
		Task:     j.sweepSessions,
	}).Setup(registerer)
}

func (j *Janitor) sweepSessions(_ context.Context, _ prometheus.Labels) error {
	removed := j.sessions.Sweep()
	if removed > 0 {
		logg.Info("removed %d expired sessions", removed)
	}
	sessionCountGauge.Set(float64(j.sessions.Count()))
	return nil
}
