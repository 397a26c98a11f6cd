// Package metrics holds the Prometheus collectors of the booking engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutor_booking"

var (
	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_created_total",
		Help:      "Total number of bookings created",
	})

	bookingsRescheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_rescheduled_total",
		Help:      "Total number of bookings moved to a new time",
	})

	statusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_status_changes_total",
		Help:      "Total number of booking status transitions",
	}, []string{"status"})

	cancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancellations_total",
		Help:      "Total number of cancellations by initiator and lateness",
	}, []string{"initiator", "late"})

	penaltiesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "penalties_applied_total",
		Help:      "Total number of booking penalties applied to students",
	})

	refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refunds_total",
		Help:      "Total number of refund reconciliations by outcome",
	}, []string{"outcome"})

	appealsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appeals_reviewed_total",
		Help:      "Total number of reviewed cancellation appeals",
	}, []string{"decision"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notification deliveries",
	}, []string{"sink", "outcome"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
	}, []string{"method", "route", "code"})
)

func IncBookingCreated()     { bookingsCreated.Inc() }
func IncBookingRescheduled() { bookingsRescheduled.Inc() }
func IncPenaltyApplied()     { penaltiesApplied.Inc() }

// IncStatusChange counts a transition into status
func IncStatusChange(status string) {
	statusChanges.WithLabelValues(status).Inc()
}

// IncCancellation counts a cancellation; initiator is student, tutor or admin
func IncCancellation(initiator string, late bool) {
	cancellations.WithLabelValues(initiator, strconv.FormatBool(late)).Inc()
}

// IncRefund counts a reconciliation outcome: issued, already_refunded, not_paid, failed
func IncRefund(outcome string) {
	refunds.WithLabelValues(outcome).Inc()
}

func IncAppealReviewed(decision string) {
	appealsReviewed.WithLabelValues(decision).Inc()
}

// IncNotification counts a delivery attempt of one sink
func IncNotification(sink, outcome string) {
	notifications.WithLabelValues(sink, outcome).Inc()
}

// ObserveHTTP records the latency of a served request
func ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
