// Package metrics provides the Prometheus instrumentation for Tripwire.
//
// One registry per process; the HTTP server exposes it on /metrics. The
// dispatch engine reports one duration observation per rule evaluation,
// labeled with the evaluation outcome.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics contains all service-level metrics.
type Metrics struct {
	registry *prometheus.Registry

	RuleEvaluationDuration *prometheus.HistogramVec
	EventsIngested         *prometheus.CounterVec
	WebhooksDispatched     *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry, with Go
// runtime and process collectors attached.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RuleEvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tripwire",
				Subsystem: "rules",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of one rule evaluation occasion, including dispatch",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type_id", "rule_id", "rule_type", "match", "skip", "target_id", "target_success"},
		),

		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tripwire",
				Subsystem: "events",
				Name:      "ingested_total",
				Help:      "Total number of ingested events",
			},
			[]string{"event_type_id"},
		),

		WebhooksDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tripwire",
				Subsystem: "targets",
				Name:      "dispatched_total",
				Help:      "Total number of webhook invocations",
			},
			[]string{"target_id", "success"},
		),
	}

	registry.MustRegister(
		m.RuleEvaluationDuration,
		m.EventsIngested,
		m.WebhooksDispatched,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry for the /metrics
// handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Evaluation is one rule evaluation observation.
type Evaluation struct {
	EventTypeID   string
	RuleID        string
	RuleType      string
	Match         bool
	Skip          bool
	TargetID      string
	TargetSuccess *bool
	Duration      time.Duration
}

// ObserveRuleEvaluation records the duration observation for one rule
// evaluation occasion. Fire-and-forget: never returns an error.
func (m *Metrics) ObserveRuleEvaluation(e Evaluation) {
	targetSuccess := ""
	if e.TargetSuccess != nil {
		targetSuccess = strconv.FormatBool(*e.TargetSuccess)
	}
	m.RuleEvaluationDuration.WithLabelValues(
		e.EventTypeID,
		e.RuleID,
		e.RuleType,
		strconv.FormatBool(e.Match),
		strconv.FormatBool(e.Skip),
		e.TargetID,
		targetSuccess,
	).Observe(e.Duration.Seconds())

	if e.TargetSuccess != nil {
		m.WebhooksDispatched.WithLabelValues(e.TargetID, targetSuccess).Inc()
	}
}
