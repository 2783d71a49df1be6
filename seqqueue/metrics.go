/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TaskStatus is the terminal status of a processed request. It is used as a value
// of the "status" label on the tasks counter.
type TaskStatus string

// Terminal task statuses.
const (
	TaskStatusOK        TaskStatus = "ok"
	TaskStatusError     TaskStatus = "error"
	TaskStatusTimeout   TaskStatus = "timeout"
	TaskStatusCancelled TaskStatus = "cancelled"
)

const taskMetricsLabelStatus = "status"

// MetricsCollector is an interface for collecting metrics about the queue.
type MetricsCollector interface {
	// IncTasks increments the total number of finished tasks with the given terminal status.
	IncTasks(status TaskStatus)

	// SetActiveRequests sets the number of accepted submissions that are not resolved yet.
	SetActiveRequests(int)

	// SetProcessorsAmount sets the number of running per-key processors.
	SetProcessorsAmount(int)

	// SetGateOccupancy sets the number of occupied concurrency gate slots.
	SetGateOccupancy(int)
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

// PrometheusMetrics represents Prometheus metrics for the queue.
type PrometheusMetrics struct {
	TasksTotal       *prometheus.CounterVec
	ActiveRequests   *prometheus.GaugeVec
	ProcessorsAmount *prometheus.GaugeVec
	GateOccupancy    *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	makeLabelNames := func(names ...string) []string {
		l := append(make([]string, 0, len(opts.CurriedLabelNames)+len(names)), opts.CurriedLabelNames...)
		return append(l, names...)
	}

	tasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "seq_queue_tasks_total",
			Help:        "Number of finished tasks by terminal status.",
			ConstLabels: opts.ConstLabels,
		},
		makeLabelNames(taskMetricsLabelStatus),
	)

	activeRequests := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "seq_queue_active_requests",
			Help:        "Number of accepted submissions that are not resolved yet.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	processorsAmount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "seq_queue_processors_amount",
			Help:        "Number of running per-key processors.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	gateOccupancy := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "seq_queue_gate_occupancy",
			Help:        "Number of occupied concurrency gate slots.",
			ConstLabels: opts.ConstLabels,
		},
		opts.CurriedLabelNames,
	)

	return &PrometheusMetrics{
		TasksTotal:       tasksTotal,
		ActiveRequests:   activeRequests,
		ProcessorsAmount: processorsAmount,
		GateOccupancy:    gateOccupancy,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		TasksTotal:       pm.TasksTotal.MustCurryWith(labels),
		ActiveRequests:   pm.ActiveRequests.MustCurryWith(labels),
		ProcessorsAmount: pm.ProcessorsAmount.MustCurryWith(labels),
		GateOccupancy:    pm.GateOccupancy.MustCurryWith(labels),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.TasksTotal,
		pm.ActiveRequests,
		pm.ProcessorsAmount,
		pm.GateOccupancy,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.TasksTotal)
	prometheus.Unregister(pm.ActiveRequests)
	prometheus.Unregister(pm.ProcessorsAmount)
	prometheus.Unregister(pm.GateOccupancy)
}

// IncTasks increments the total number of finished tasks with the given terminal status.
func (pm *PrometheusMetrics) IncTasks(status TaskStatus) {
	pm.TasksTotal.With(prometheus.Labels{taskMetricsLabelStatus: string(status)}).Inc()
}

// SetActiveRequests sets the number of accepted submissions that are not resolved yet.
func (pm *PrometheusMetrics) SetActiveRequests(amount int) {
	pm.ActiveRequests.With(nil).Set(float64(amount))
}

// SetProcessorsAmount sets the number of running per-key processors.
func (pm *PrometheusMetrics) SetProcessorsAmount(amount int) {
	pm.ProcessorsAmount.With(nil).Set(float64(amount))
}

// SetGateOccupancy sets the number of occupied concurrency gate slots.
func (pm *PrometheusMetrics) SetGateOccupancy(amount int) {
	pm.GateOccupancy.With(nil).Set(float64(amount))
}

type disabledMetrics struct{}

var disabledMetricsCollector = disabledMetrics{}

func (disabledMetrics) IncTasks(TaskStatus)     {}
func (disabledMetrics) SetActiveRequests(int)   {}
func (disabledMetrics) SetProcessorsAmount(int) {}
func (disabledMetrics) SetGateOccupancy(int)    {}
