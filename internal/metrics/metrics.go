package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsAdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_bookings_admitted_total",
		Help: "Total number of bookings admitted against the daily capacity quota.",
	})

	BookingsRefusedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_bookings_refused_total",
		Help: "Total number of bookings refused because the pickup date was full.",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundry_transitions_total",
		Help: "Total number of successful order status transitions.",
	},
		[]string{"status"},
	)

	AutoAdvancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_auto_advances_total",
		Help: "Total number of expired-timer orders advanced by the poller.",
	})

	EmailsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_emails_sent_total",
		Help: "Total number of lifecycle emails dispatched.",
	})

	EmailsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_emails_failed_total",
		Help: "Total number of lifecycle emails that failed to send.",
	})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_outbox_published_total",
		Help: "Total number of lifecycle events published from the outbox.",
	})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_outbox_failed_total",
		Help: "Total number of outbox publish attempts that failed.",
	})

	HookErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundry_hook_errors_total",
		Help: "Total number of post-commit hook failures, by hook name.",
	},
		[]string{"hook"},
	)

	CapacityCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_capacity_cache_hits_total",
		Help: "Total number of capacity reads served from the redis cache.",
	})

	CapacityCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundry_capacity_cache_misses_total",
		Help: "Total number of capacity reads that fell through to the store.",
	})
)
