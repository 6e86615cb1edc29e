package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slotbook"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Count of bookings created by status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of booking attempts rejected because the slot was taken.",
		},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	bookingDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_deleted_total",
			Help:      "Count of bookings deleted.",
		},
	)

	slotsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_generated_total",
			Help:      "Count of slots created by the generator.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Count of change events published by kind and operation.",
		},
		[]string{"kind", "operation"},
	)

	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Count of events discarded from full subscriber buffers.",
		},
	)

	relayErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_relay_errors_total",
			Help:      "Count of events that could not be relayed through Redis.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Count of booking requests rejected by the rate limiter.",
		},
	)

	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Number of active event subscriptions.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingConflicts, bookingCancelled, bookingDeleted,
			slotsGenerated, eventsPublished, eventsDropped, relayErrors,
			httpRequests, rateLimited, subscribers,
		)
	})
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncBookingDeleted() {
	bookingDeleted.Inc()
}

func AddSlotsGenerated(n int) {
	slotsGenerated.Add(float64(n))
}

func IncEventPublished(kind, operation string) {
	eventsPublished.WithLabelValues(kind, operation).Inc()
}

func IncEventDropped() {
	eventsDropped.Inc()
}

func IncRelayError() {
	relayErrors.Inc()
}

func SetSubscribers(n int) {
	subscribers.Set(float64(n))
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}

func IncRateLimited() {
	rateLimited.Inc()
}
