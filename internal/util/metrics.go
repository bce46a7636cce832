package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketsBookedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_booked_total",
		Help: "Total number of tickets created in PENDING state",
	})

	TicketsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_cancelled_total",
		Help: "Total number of tickets cancelled by customers or admins",
	})

	BookingsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_failed_total",
		Help: "Total number of rejected booking requests",
	}, []string{"reason"})

	SeatReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "seat_reserve_latency_seconds",
		Help:    "Latency of seat reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	SeatReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_reservations_failed_total",
		Help: "Total number of failed seat reservations",
	}, []string{"reason"})

	SeatsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seats_released_total",
		Help: "Total number of seats returned to AVAILABLE",
	}, []string{"source"})

	ReclamationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_reclamation_runs_total",
		Help: "Total number of seat reclamation sweeps",
	}, []string{"result"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment intents created",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payments",
	}, []string{"stage"})

	PaymentsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_expired_total",
		Help: "Total number of pending payments expired without a callback",
	})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Total number of gateway callbacks by outcome",
	}, []string{"outcome"})

	CallbackProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_callback_latency_seconds",
		Help:    "Latency of gateway callback processing",
		Buckets: prometheus.DefBuckets,
	})

	GatewayRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_latency_seconds",
		Help:    "Latency of create-payment calls to the gateway",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
