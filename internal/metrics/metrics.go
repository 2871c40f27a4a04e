// Package metrics exposes the coordinator's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FamilyOps counts coordinator operations by name and outcome
	// ("ok" or the machine error code).
	FamilyOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famvpn",
		Subsystem: "family",
		Name:      "operations_total",
		Help:      "Family coordinator operations by name and outcome.",
	}, []string{"op", "outcome"})

	// PanelFailures counts best-effort panel calls that failed.
	PanelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famvpn",
		Subsystem: "panel",
		Name:      "failures_total",
		Help:      "External panel call failures by operation.",
	}, []string{"op"})

	// NotifyFailures counts notification fan-out deliveries that failed.
	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famvpn",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Notification deliveries that failed, by channel.",
	}, []string{"channel"})
)
