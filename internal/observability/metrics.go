package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	ledgerDriftCounter    *prometheus.CounterVec
	transferCounter       *prometheus.CounterVec
	paymentCounter        *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerDriftCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Number of times a wallet balance diverged from its entry log",
		}, []string{"holder"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Money movement outcomes by operation type",
		}, []string{"operation", "result"})

		paymentCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Gateway payment state transitions",
		}, []string{"status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerDriftCounter,
			transferCounter,
			paymentCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerDrift(holder string) {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.WithLabelValues(holder).Inc()
}

func IncrementTransfer(operation, result string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(operation, result).Inc()
}

func IncrementPaymentTransition(status string) {
	if paymentCounter == nil {
		return
	}
	paymentCounter.WithLabelValues(status).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
