package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTracked tracks broadcast attempts handed to the notifier
	AttemptsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_attempts_tracked_total",
			Help: "Total number of broadcast attempts tracked",
		},
		[]string{"chain", "kind"},
	)

	// AttemptsDroppedNoHash tracks attempts reported without a hash
	AttemptsDroppedNoHash = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_attempts_dropped_no_hash_total",
			Help: "Total number of attempts dropped before broadcast",
		},
		[]string{"chain"},
	)

	// ClassificationsTotal tracks terminal classifications per outcome
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_classifications_total",
			Help: "Total number of terminal outcome classifications",
		},
		[]string{"chain", "outcome"},
	)

	// FrontRunsDetected tracks front-run rewrites during failure classification
	FrontRunsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_front_runs_detected_total",
			Help: "Total number of front-run transactions detected",
		},
		[]string{"chain"},
	)

	// WaitTimeouts tracks confirmation waits that gave up without a receipt
	WaitTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_wait_timeouts_total",
			Help: "Total number of confirmation waits ended by timeout",
		},
		[]string{"chain", "mode"},
	)

	// RetriesTriggered tracks resubmissions delegated to the execution service
	RetriesTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_retries_triggered_total",
			Help: "Total number of resubmissions triggered by the retry consumer",
		},
		[]string{"chain"},
	)

	// RetriesExhausted tracks transactions past the retry ceiling
	RetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txmonitor_retries_exhausted_total",
			Help: "Total number of transactions that hit the retry ceiling",
		},
		[]string{"chain"},
	)

	// RetryQueueDepth tracks queued retry messages per relayer pool
	RetryQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txmonitor_retry_queue_depth",
			Help: "Number of queued retry messages per relayer pool",
		},
		[]string{"pool"},
	)
)
