// Package metrics provides Prometheus instrumentation for the moderation
// service. It exposes counters for classification and action outcomes and
// histograms for pipeline and platform latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts classified messages, labeled by risk level.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automod_messages_total",
		Help: "Total number of messages classified",
	}, []string{"level"}) // level = "SAFE", "SUSPICIOUS", "DANGEROUS"

	// ActionsTotal counts executed actions by recommended and achieved outcome.
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automod_actions_total",
		Help: "Total number of moderation actions executed",
	}, []string{"recommended", "taken"})

	// Degradations counts steps down the KICK -> MUTE -> DELETE ladder.
	Degradations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automod_degradations_total",
		Help: "Total number of action degradations",
	}, []string{"from", "to"})

	// BestEffortFailures counts swallowed failures of notices, private
	// messages, timed cleanup and mod-log posts.
	BestEffortFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automod_best_effort_failures_total",
		Help: "Total number of best-effort platform operations that failed",
	}, []string{"op"})

	// VerifyAttempts counts !verify commands, labeled by result.
	VerifyAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "automod_verify_attempts_total",
		Help: "Total number of verification attempts",
	}, []string{"result"}) // result = "verified", "rejected", "throttled", "already_verified"

	// PipelineLatency records end-to-end handling time per message.
	PipelineLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "automod_pipeline_latency_seconds",
		Help:    "Message pipeline latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// PlatformLatency records platform command round trips, labeled by op.
	PlatformLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "automod_platform_command_seconds",
		Help:    "Platform command round-trip time in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5},
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ActionsTotal,
		Degradations,
		BestEffortFailures,
		VerifyAttempts,
		PipelineLatency,
		PlatformLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
