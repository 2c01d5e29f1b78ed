package streamkit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bufferedValues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamkit_buffer_retained_values",
		Help: "Current count of values retained per buffer.",
	}, []string{"buffer"})

	bufferReaders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamkit_buffer_readers",
		Help: "Current count of cursors attached per buffer.",
	}, []string{"buffer"})

	bufferWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_buffer_writes_total",
		Help: "Total values written per buffer.",
	}, []string{"buffer"})

	bufferReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_buffer_reads_total",
		Help: "Total cursor reads served per buffer.",
	}, []string{"buffer"})

	bufferEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_buffer_evictions_total",
		Help: "Total values evicted by retention per buffer.",
	}, []string{"buffer"})

	poolBusyWorkers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamkit_pool_busy_workers",
		Help: "Current count of slots processing a task per pool.",
	}, []string{"pool"})

	poolRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pool_task_requests_total",
		Help: "Total tasks requested per pool.",
	}, []string{"pool"})

	poolTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pool_tasks_total",
		Help: "Total tasks completed per pool.",
	}, []string{"pool"})

	poolFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pool_task_failures_total",
		Help: "Total tasks failed per pool.",
	}, []string{"pool"})
)

//***********************************
// MetricsBufferInvoker
//***********************************

// MetricsBufferInvoker implements the BufferInvoker interface,
// exporting a buffer's activity as prometheus collectors keyed by the
// giving Buffer label.
type MetricsBufferInvoker struct {
	Buffer string
}

// InvokedWrite counts the write and raises the retained gauge.
func (m MetricsBufferInvoker) InvokedWrite(_ interface{}) {
	bufferWrites.WithLabelValues(m.Buffer).Inc()
	bufferedValues.WithLabelValues(m.Buffer).Inc()
}

// InvokedRead counts the served read.
func (m MetricsBufferInvoker) InvokedRead(_ interface{}) {
	bufferReads.WithLabelValues(m.Buffer).Inc()
}

// InvokedDropped counts the eviction and lowers the retained gauge.
func (m MetricsBufferInvoker) InvokedDropped(_ interface{}) {
	bufferEvictions.WithLabelValues(m.Buffer).Inc()
	bufferedValues.WithLabelValues(m.Buffer).Dec()
}

// InvokedAttached raises the readers gauge.
func (m MetricsBufferInvoker) InvokedAttached(_ string) {
	bufferReaders.WithLabelValues(m.Buffer).Inc()
}

// InvokedDetached lowers the readers gauge.
func (m MetricsBufferInvoker) InvokedDetached(_ string) {
	bufferReaders.WithLabelValues(m.Buffer).Dec()
}

// InvokedTerminal does nothing.
func (m MetricsBufferInvoker) InvokedTerminal(_ error) {}

//***********************************
// MetricsWorkInvoker
//***********************************

// MetricsWorkInvoker implements the WorkInvoker interface, exporting
// pool task activity as prometheus collectors keyed by pool name.
type MetricsWorkInvoker struct{}

// InvokedRequest counts the task request.
func (m MetricsWorkInvoker) InvokedRequest(pool string, _ interface{}) {
	poolRequests.WithLabelValues(pool).Inc()
}

// InvokedProcessing raises the busy gauge.
func (m MetricsWorkInvoker) InvokedProcessing(pool string, _ interface{}) {
	poolBusyWorkers.WithLabelValues(pool).Inc()
}

// InvokedProcessed lowers the busy gauge and counts the completion.
func (m MetricsWorkInvoker) InvokedProcessed(pool string, _ interface{}) {
	poolBusyWorkers.WithLabelValues(pool).Dec()
	poolTasks.WithLabelValues(pool).Inc()
}

// InvokedFailed lowers the busy gauge and counts the failure.
func (m MetricsWorkInvoker) InvokedFailed(pool string, _ error) {
	poolBusyWorkers.WithLabelValues(pool).Dec()
	poolTasks.WithLabelValues(pool).Inc()
	poolFailures.WithLabelValues(pool).Inc()
}
