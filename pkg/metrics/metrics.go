// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssignmentsTotal tracks link assignments handed to new leads
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rotation",
			Name:      "assignments_total",
			Help:      "Total number of link assignments by outcome",
		},
		[]string{"outcome"},
	)

	// CompletionsTotal tracks recorded completions
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rotation",
			Name:      "completions_total",
			Help:      "Total number of recorded completions by outcome",
		},
		[]string{"outcome"},
	)

	// RotationAdvancesTotal tracks how often the active link changed
	RotationAdvancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "rotation",
			Name:      "advances_total",
			Help:      "Total number of active link rotations",
		},
	)

	// WebhookEventsTotal tracks inbound webhook events by how they were handled
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "funnel",
			Name:      "webhook_events_total",
			Help:      "Total number of inbound webhook events by handling outcome",
		},
		[]string{"event"},
	)

	// LeadsVerifiedTotal tracks leads reaching the terminal state
	LeadsVerifiedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "funnel",
			Name:      "leads_verified_total",
			Help:      "Total number of leads verified",
		},
	)

	// SMSSendsTotal tracks outbound SMS attempts
	SMSSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sms",
			Name:      "sends_total",
			Help:      "Total number of outbound SMS attempts by status",
		},
		[]string{"status"},
	)

	// MediaFetchesTotal tracks proof media downloads from the provider
	MediaFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "media",
			Name:      "fetches_total",
			Help:      "Total number of inbound media fetches by status",
		},
		[]string{"status"},
	)
)
