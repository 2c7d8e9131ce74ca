// Package metrics defines Prometheus metrics for the admin session gateway.
//
// Metric naming follows Prometheus conventions:
//   - rdbs_admin_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LoginsTotal counts login attempts by outcome category.
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdbs_admin_logins_total",
			Help: "Total login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// SessionResolutionsTotal counts per-request session resolutions by resulting status.
	SessionResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdbs_admin_session_resolutions_total",
			Help: "Total session resolutions by status.",
		},
		[]string{"status"},
	)

	// SessionRefreshesTotal counts silent refresh attempts by result.
	SessionRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdbs_admin_session_refreshes_total",
			Help: "Total silent session refreshes by result.",
		},
		[]string{"result"},
	)

	// GuardDenialsTotal counts requests turned away by a guard.
	GuardDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdbs_admin_guard_denials_total",
			Help: "Total requests denied by guards.",
		},
		[]string{"guard"},
	)

	// BackendRequestDurationSeconds is a histogram of backend call latency.
	BackendRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdbs_admin_backend_request_duration_seconds",
			Help:    "Duration of backend API calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "category"},
	)
)

// Register adds all gateway metrics to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		LoginsTotal,
		SessionResolutionsTotal,
		SessionRefreshesTotal,
		GuardDenialsTotal,
		BackendRequestDurationSeconds,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordLogin increments the login counter.
func RecordLogin(outcome string) {
	LoginsTotal.WithLabelValues(outcome).Inc()
}

// RecordResolution increments the session resolution counter.
func RecordResolution(status string) {
	SessionResolutionsTotal.WithLabelValues(status).Inc()
}

// RecordRefresh increments the silent refresh counter.
func RecordRefresh(result string) {
	SessionRefreshesTotal.WithLabelValues(result).Inc()
}

// RecordGuardDenial increments the guard denial counter.
func RecordGuardDenial(guard string) {
	GuardDenialsTotal.WithLabelValues(guard).Inc()
}

// ObserveBackend records the duration of a backend call.
func ObserveBackend(endpoint, category string, started time.Time) {
	BackendRequestDurationSeconds.WithLabelValues(endpoint, category).Observe(time.Since(started).Seconds())
}
