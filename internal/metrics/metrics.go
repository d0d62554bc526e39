package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync engine metrics, exposed at GET /metrics.
var (
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "sync",
		Name:      "events_applied_total",
		Help:      "Events applied to conversation logs, by kind.",
	}, []string{"kind"})

	DuplicatesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "sync",
		Name:      "duplicates_resolved_total",
		Help:      "Operations short-circuited by the idempotency registry.",
	})

	UpdatesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "fanout",
		Name:      "updates_delivered_total",
		Help:      "Outbound payloads enqueued to subscriber queues.",
	})

	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quill",
		Subsystem: "fanout",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers dropped for lagging behind their queue depth.",
	})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "fanout",
		Name:      "live_subscribers",
		Help:      "Currently registered subscribers.",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quill",
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with at least one active connection.",
	})
)
