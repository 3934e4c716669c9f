// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metaspace_sessions_connected",
		Help: "Number of websocket sessions currently connected.",
	})

	GroupsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metaspace_proximity_groups_active",
		Help: "Number of proximity groups currently alive.",
	})

	MessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metaspace_messages_in_total",
		Help: "Inbound signal messages by type.",
	}, []string{"type"})

	RelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metaspace_relay_errors_total",
		Help: "Failed RPCs against the media relay.",
	})
)
