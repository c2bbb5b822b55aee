package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadsmith_api_calls_total",
		Help: "Total X API calls by endpoint and status class",
	}, []string{"endpoint", "status"})
	QuotaWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadsmith_quota_waits_total",
		Help: "Total rate-limit waits by endpoint",
	}, []string{"endpoint"})
	QuotaWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threadsmith_quota_wait_seconds",
		Help:    "Rate-limit wait durations in seconds",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
	})
	TokenRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threadsmith_token_refreshes_total",
		Help: "Total OAuth2 token refreshes",
	})
	ThreadsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadsmith_threads_resolved_total",
		Help: "Total threads resolved by strategy (search, single)",
	}, []string{"strategy"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadsmith_command_runs_total",
		Help: "Total CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threadsmith_command_errors_total",
		Help: "Total CLI command errors",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(APICalls, QuotaWaits, QuotaWaitSeconds, TokenRefreshes, ThreadsResolved, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveQuotaWait records one rate-limit wait for an endpoint.
func ObserveQuotaWait(endpoint string, d time.Duration) {
	QuotaWaits.WithLabelValues(endpoint).Inc()
	QuotaWaitSeconds.Observe(d.Seconds())
}

// IncAPICall increments the call counter for an endpoint/status pair.
func IncAPICall(endpoint, status string) { APICalls.WithLabelValues(endpoint, status).Inc() }

// IncCommandRun increments the run counter for a CLI command.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError increments the error counter for a CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
