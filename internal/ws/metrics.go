package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_total",
			Help: "Total inbound WebSocket events by type",
		},
		[]string{"event"},
	)

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Total outbound broadcasts by event type",
		},
		[]string{"event"},
	)

	messagesBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_messages_blocked_total",
			Help: "Messages rejected by the moderation gate",
		},
	)
)
