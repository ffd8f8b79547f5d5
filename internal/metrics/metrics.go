package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultAchieved    = "achieved"
	ResultNotAchieved = "not_achieved"
	ResultCanceled    = "canceled"
)

var (
	// quorum round counter, one per fan-out to the master set
	// labels: op (acquire/extend/release/locked/next_read/next_write/reset), result
	QuorumRoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_rounds_total",
			Help: "total number of quorum rounds by operation and outcome",
		},
		[]string{"op", "result"},
	)

	// time from dispatch until the round was decided, stragglers are not included
	QuorumRoundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quorum_round_duration_seconds",
			Help:    "time taken to decide a quorum round",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"op"},
	)

	// per-master failures observed inside a round (timeouts, refused connections, script errors)
	MasterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_master_errors_total",
			Help: "total number of failed calls to individual masters",
		},
		[]string{"op", "master"},
	)

	// lock acquisition attempts, a blocking acquire counts every attempt
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redlock_acquire_total",
			Help: "total number of lock acquisition attempts",
		},
		[]string{"status"},
	)

	LockExtendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redlock_extend_total",
			Help: "total number of lock extensions",
		},
		[]string{"status"},
	)

	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redlock_release_total",
			Help: "total number of lock releases",
		},
		[]string{"status"},
	)

	// ids handed out, retries inside Next are counted by NextIDRetriesTotal
	NextIDTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nextid_generated_total",
			Help: "total number of ids returned by generators",
		},
	)

	NextIDRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nextid_retries_total",
			Help: "total number of read-compute-write cycles that lost the write quorum",
		},
	)
)

func Status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
