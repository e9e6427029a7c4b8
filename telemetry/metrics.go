// Package telemetry exposes the SDK's prometheus counters.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Impression states recorded per processed impression.
const (
	ImpressionQueued  = "queued"
	ImpressionDeduped = "deduped"
	ImpressionDropped = "dropped"
)

var (
	// AuthRejections counts 401 responses from the auth endpoint.
	AuthRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flagclient_auth_rejections_total",
			Help: "Total auth requests rejected with HTTP 401",
		},
	)

	// TokenRefreshes counts successful auth handshakes.
	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flagclient_token_refreshes_total",
			Help: "Total streaming tokens obtained",
		},
	)

	// SplitFetches counts splitChanges requests by outcome.
	SplitFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagclient_split_fetches_total",
			Help: "Total splitChanges fetches by status",
		},
		[]string{"status"}, // success/error
	)

	// Impressions counts processed impressions by what happened to them.
	Impressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flagclient_impressions_total",
			Help: "Total impressions by state",
		},
		[]string{"state"}, // queued/deduped/dropped
	)
)

// RecordFetch records a splitChanges fetch outcome.
func RecordFetch(err error) {
	if err != nil {
		SplitFetches.WithLabelValues("error").Inc()
		return
	}
	SplitFetches.WithLabelValues("success").Inc()
}

// RecordImpressions adds n impressions in the given state.
func RecordImpressions(state string, n int) {
	if n <= 0 {
		return
	}
	Impressions.WithLabelValues(state).Add(float64(n))
}
