package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/user/isp-cabinet/pkg/isp"
)

var (
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ispcabinet_polls_total",
			Help: "Total number of poll cycles per provider",
		},
		[]string{"provider"},
	)

	PollDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ispcabinet_poll_duration_seconds",
			Help:    "Poll cycle duration in seconds per provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	PollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ispcabinet_poll_errors_total",
			Help: "Total number of failed poll cycles per provider and failure class",
		},
		[]string{"provider", "class"},
	)

	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ispcabinet_consecutive_failures",
			Help: "Consecutive failed polls per account",
		},
		[]string{"account"},
	)

	LastSuccessTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ispcabinet_last_success_timestamp",
			Help: "Unix timestamp of the last successful poll per account",
		},
		[]string{"account"},
	)

	ConfiguredAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ispcabinet_configured_accounts",
			Help: "Number of accounts currently scheduled",
		},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ispcabinet_http_requests_total",
			Help: "Total number of API requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ispcabinet_http_request_duration_seconds",
			Help:    "API request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ispcabinet_http_request_errors_total",
			Help: "Total number of failed API requests per path and status",
		},
		[]string{"path", "status"},
	)
)

// ObserveRequest records one API request against the path label.
func ObserveRequest(path string, startedAt time.Time) {
	RequestsTotal.WithLabelValues(path).Inc()
	RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(startedAt).Seconds())
}

// ObservePoll records the outcome of one poll cycle.
func ObservePoll(provider, account string, startedAt time.Time, err error, consecutive int) {
	PollsTotal.WithLabelValues(provider).Inc()
	PollDurationSeconds.WithLabelValues(provider).Observe(time.Since(startedAt).Seconds())
	ConsecutiveFailures.WithLabelValues(account).Set(float64(consecutive))
	if err != nil {
		PollErrorsTotal.WithLabelValues(provider, string(isp.Classify(err))).Inc()
		return
	}
	LastSuccessTimestamp.WithLabelValues(account).Set(float64(time.Now().Unix()))
}

// ForgetAccount drops the per-account series after a removal.
func ForgetAccount(account string) {
	ConsecutiveFailures.DeleteLabelValues(account)
	LastSuccessTimestamp.DeleteLabelValues(account)
}
