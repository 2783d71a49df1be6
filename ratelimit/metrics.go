/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector is an interface for collecting metrics about the limiter.
type MetricsCollector interface {
	// IncAllowed increments the total number of admitted requests.
	IncAllowed()

	// IncRejected increments the total number of rejected requests.
	// In dry-run mode, would-be rejections are counted here as well.
	IncRejected()

	// SetKeysAmount sets the total number of keys with tracked admission windows.
	SetKeysAmount(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// See PrometheusMetrics.MustCurryWith method for more details.
	// Keep in mind that if this list is not empty,
	// PrometheusMetrics.MustCurryWith method must be called further with the same labels.
	// Otherwise, the collector will panic.
	CurriedLabelNames []string
}

// PrometheusMetrics represents Prometheus metrics for the limiter.
type PrometheusMetrics struct {
	AllowedTotal  *prometheus.CounterVec
	RejectedTotal *prometheus.CounterVec
	KeysAmount    *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	allowedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_allowed_total",
			Help:        "Number of requests admitted by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_rejected_total",
			Help:        "Number of requests rejected by the rate limiter, dry-run rejections included.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	keysAmount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_keys_amount",
			Help:        "Total number of keys with tracked admission windows.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		AllowedTotal:  allowedTotal,
		RejectedTotal: rejectedTotal,
		KeysAmount:    keysAmount,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		AllowedTotal:  pm.AllowedTotal.MustCurryWith(labels),
		RejectedTotal: pm.RejectedTotal.MustCurryWith(labels),
		KeysAmount:    pm.KeysAmount.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.AllowedTotal,
		pm.RejectedTotal,
		pm.KeysAmount,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AllowedTotal)
	prometheus.Unregister(pm.RejectedTotal)
	prometheus.Unregister(pm.KeysAmount)
}

// IncAllowed increments the total number of admitted requests.
func (pm *PrometheusMetrics) IncAllowed() {
	pm.AllowedTotal.With(nil).Inc()
}

// IncRejected increments the total number of rejected requests.
func (pm *PrometheusMetrics) IncRejected() {
	pm.RejectedTotal.With(nil).Inc()
}

// SetKeysAmount sets the total number of keys with tracked admission windows.
func (pm *PrometheusMetrics) SetKeysAmount(amount int) {
	pm.KeysAmount.With(nil).Set(float64(amount))
}

type disabledMetrics struct{}

var disabledMetricsCollector = disabledMetrics{}

func (disabledMetrics) IncAllowed()       {}
func (disabledMetrics) IncRejected()      {}
func (disabledMetrics) SetKeysAmount(int) {}
