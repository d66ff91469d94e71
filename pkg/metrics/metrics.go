package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records OTP authentication attempts by stage and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollhive_auth_attempts_total",
			Help: "Total number of OTP authentication attempts",
		},
		[]string{"stage", "result"},
	)

	// PollsCreated counts polls created by admins.
	PollsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pollhive_polls_created_total",
			Help: "Total number of polls created",
		},
	)

	// PollsClosed counts close transitions applied to polls.
	PollsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pollhive_polls_closed_total",
			Help: "Total number of polls closed",
		},
	)

	// VotesCast counts vote casting attempts by outcome
	// (accepted|not_found|closed|invalid_option|error).
	VotesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollhive_votes_cast_total",
			Help: "Total number of vote casting attempts",
		},
		[]string{"outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pollhive_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
