package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// payment engine
	PaymentsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_enqueued_total",
			Help: "Payment intents accepted into the queue",
		},
	)
	PaymentsDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_deduplicated_total",
			Help: "Enqueue calls rejected by the dedup window",
		},
	)
	DispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Gateway dispatch attempts by result",
		},
		[]string{"result"}, // accepted|unavailable|rejected
	)
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Applied payment status transitions",
		},
		[]string{"to"},
	)
	CreditFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_hook_failures_total",
			Help: "Balance-credit hook invocations that failed",
		},
	)
	SweptTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_swept_timeout_total",
			Help: "Stale transactions closed out by the timeout sweeper",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current dispatch queue depth",
		},
	)
)

// /metrics endpoint handler
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(PaymentsEnqueued)
	prometheus.MustRegister(PaymentsDeduplicated)
	prometheus.MustRegister(DispatchAttempts)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(CreditFailures)
	prometheus.MustRegister(SweptTimeouts)
	prometheus.MustRegister(WorkerQueueDepth)
}
