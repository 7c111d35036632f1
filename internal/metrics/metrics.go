package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Chat metrics
	ChatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localchat_chat_turns_total",
			Help: "Total number of chat turns by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	StreamSkippedLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_stream_skipped_lines_total",
			Help: "Total number of stream lines that could not be decoded",
		},
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localchat_chat_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	// Proxy metrics
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localchat_proxy_requests_total",
			Help: "Total number of requests forwarded to the retrieval service",
		},
		[]string{"method", "status"},
	)

	ProxyUpstreamErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localchat_proxy_upstream_errors_total",
			Help: "Total number of proxied requests that failed to reach the retrieval service",
		},
	)

	// Auth metrics
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localchat_login_attempts_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ChatTurnsTotal)
	prometheus.MustRegister(StreamSkippedLinesTotal)
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(ProxyRequestsTotal)
	prometheus.MustRegister(ProxyUpstreamErrorsTotal)
	prometheus.MustRegister(LoginAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
