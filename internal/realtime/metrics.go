package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "boardsync",
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Open board sockets.",
	})

	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "boardsync",
		Subsystem: "realtime",
		Name:      "rooms",
		Help:      "Boards with at least one member.",
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardsync",
		Subsystem: "realtime",
		Name:      "events_published_total",
		Help:      "Board events fanned out to rooms, by type.",
	}, []string{"type"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "boardsync",
		Subsystem: "realtime",
		Name:      "events_dropped_total",
		Help:      "Frames dropped because a client send queue was full.",
	})

	joinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardsync",
		Subsystem: "realtime",
		Name:      "joins_total",
		Help:      "Room join requests, by result.",
	}, []string{"result"})
)
