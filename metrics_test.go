package streamkit_test

import (
	"context"
	"strings"
	"testing"

	"github.com/gokit/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gokit/streamkit"
)

func TestMetricsBufferInvoker(t *testing.T) {
	buf := streamkit.NewBuffer(streamkit.MetricsBufferInvoker{Buffer: "metrics.buffer"})

	cursor := buf.AttachReader()
	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3))

	ctx := context.Background()
	_, err := buf.Read(ctx, cursor)
	require.NoError(t, err)
	_, err = buf.Read(ctx, cursor)
	require.NoError(t, err)

	expected := `
		# HELP streamkit_buffer_evictions_total Total values evicted by retention per buffer.
		# TYPE streamkit_buffer_evictions_total counter
		streamkit_buffer_evictions_total{buffer="metrics.buffer"} 2
		# HELP streamkit_buffer_reads_total Total cursor reads served per buffer.
		# TYPE streamkit_buffer_reads_total counter
		streamkit_buffer_reads_total{buffer="metrics.buffer"} 2
		# HELP streamkit_buffer_readers Current count of cursors attached per buffer.
		# TYPE streamkit_buffer_readers gauge
		streamkit_buffer_readers{buffer="metrics.buffer"} 1
		# HELP streamkit_buffer_retained_values Current count of values retained per buffer.
		# TYPE streamkit_buffer_retained_values gauge
		streamkit_buffer_retained_values{buffer="metrics.buffer"} 1
		# HELP streamkit_buffer_writes_total Total values written per buffer.
		# TYPE streamkit_buffer_writes_total counter
		streamkit_buffer_writes_total{buffer="metrics.buffer"} 3
	`

	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(expected),
		"streamkit_buffer_writes_total",
		"streamkit_buffer_reads_total",
		"streamkit_buffer_evictions_total",
		"streamkit_buffer_retained_values",
		"streamkit_buffer_readers"))

	buf.DetachReader(cursor)

	readers := `
		# HELP streamkit_buffer_readers Current count of cursors attached per buffer.
		# TYPE streamkit_buffer_readers gauge
		streamkit_buffer_readers{buffer="metrics.buffer"} 0
	`
	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(readers),
		"streamkit_buffer_readers"))
}

func TestMetricsWorkInvoker(t *testing.T) {
	boom := errors.New("task broke")
	pool := streamkit.NewCoroutine("metrics.pool", func(_ context.Context, input interface{}) (interface{}, error) {
		if input == "bad" {
			return nil, boom
		}
		return input, nil
	}, streamkit.CoroutineInvoker(streamkit.MetricsWorkInvoker{}))
	defer pool.Finalize()

	ctx := context.Background()
	_, err := pool.ProcessTask(ctx, "one")
	require.NoError(t, err)
	_, err = pool.ProcessTask(ctx, "two")
	require.NoError(t, err)
	_, err = pool.ProcessTask(ctx, "bad")
	require.Error(t, err)

	expected := `
		# HELP streamkit_pool_busy_workers Current count of slots processing a task per pool.
		# TYPE streamkit_pool_busy_workers gauge
		streamkit_pool_busy_workers{pool="metrics.pool"} 0
		# HELP streamkit_pool_task_failures_total Total tasks failed per pool.
		# TYPE streamkit_pool_task_failures_total counter
		streamkit_pool_task_failures_total{pool="metrics.pool"} 1
		# HELP streamkit_pool_task_requests_total Total tasks requested per pool.
		# TYPE streamkit_pool_task_requests_total counter
		streamkit_pool_task_requests_total{pool="metrics.pool"} 3
		# HELP streamkit_pool_tasks_total Total tasks completed per pool.
		# TYPE streamkit_pool_tasks_total counter
		streamkit_pool_tasks_total{pool="metrics.pool"} 3
	`

	require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(expected),
		"streamkit_pool_task_requests_total",
		"streamkit_pool_tasks_total",
		"streamkit_pool_task_failures_total",
		"streamkit_pool_busy_workers"))
}
