/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics collects Prometheus instrumentation for the healing
// pipeline: attempts, decisions, breaker trips, cascade stops, and
// sandbox run duration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision label values, matching the orchestrator's final verdicts.
const (
	DecisionPromote      = "PROMOTE"
	DecisionRetry        = "RETRY"
	DecisionRollback     = "ROLLBACK"
	DecisionStop         = "STOP"
	DecisionHumanReview  = "HUMAN_REVIEW"
	DecisionRateLimited  = "RATE_LIMITED"
)

// Breaker lane label values.
const (
	ClassSyntax = "syntax"
	ClassLogic  = "logic"
)

var (
	// AttemptsTotal counts every orchestrator attempt, labeled by the
	// error class under evaluation.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeheal",
		Subsystem: "orchestrator",
		Name:      "attempts_total",
		Help:      "Total number of healing attempts processed, labeled by error class.",
	}, []string{"error_class"})

	// DecisionsTotal counts final orchestrator decisions.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeheal",
		Subsystem: "orchestrator",
		Name:      "decisions_total",
		Help:      "Total number of final healing decisions, labeled by decision.",
	}, []string{"decision"})

	// BreakerTripsTotal counts circuit breaker lane trips.
	BreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeheal",
		Subsystem: "breaker",
		Name:      "trips_total",
		Help:      "Total number of dual circuit breaker trips, labeled by lane.",
	}, []string{"class"})

	// CascadeStopsTotal counts cascade-handler stop decisions, labeled
	// by the condition that fired.
	CascadeStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeheal",
		Subsystem: "cascade",
		Name:      "stops_total",
		Help:      "Total number of cascade stop decisions, labeled by trigger.",
	}, []string{"trigger"})

	// SandboxDuration observes sandbox execution wall-clock time.
	SandboxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codeheal",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Sandbox patch execution duration in seconds, labeled by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	// RateLimitedTotal counts sessions rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeheal",
		Subsystem: "orchestrator",
		Name:      "rate_limited_total",
		Help:      "Total number of attempts rejected by the sliding-window rate limiter.",
	})

	// KnowledgeBaseUpsertsTotal counts success-pattern upserts on
	// PROMOTE decisions.
	KnowledgeBaseUpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeheal",
		Subsystem: "knowledge",
		Name:      "upserts_total",
		Help:      "Total number of success-pattern upserts recorded after a PROMOTE decision.",
	})
)
