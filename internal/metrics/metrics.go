package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP requests by route/method/status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// MutationsTotal counts accepted balance mutations by operation.
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_mutations_total",
			Help: "Total accepted balance mutations",
		},
		[]string{"op"}, // charge|use
	)
	// MutationsRejected counts mutations rejected by validation or the
	// insufficient-balance rule.
	MutationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_mutations_rejected_total",
			Help: "Total rejected balance mutations",
		},
		[]string{"op"},
	)

	// LockWaitTimeouts counts callers that gave up waiting for a user key.
	LockWaitTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lock_wait_timeouts_total",
			Help: "Total lock acquisitions abandoned on wait timeout",
		},
	)
	// LockHoldExpired counts critical sections that outlived their hold
	// deadline and were force-released.
	LockHoldExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lock_hold_expired_total",
			Help: "Total keys force-released by the hold deadline",
		},
	)

	// WorkerQueueDepth reports the audit worker queue backlog.
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(MutationsRejected)
	prometheus.MustRegister(LockWaitTimeouts)
	prometheus.MustRegister(LockHoldExpired)
	prometheus.MustRegister(WorkerQueueDepth)
}
