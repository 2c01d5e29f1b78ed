package streamkit

import (
	"context"
	"time"

	"github.com/gokit/errors"

	"github.com/gokit/streamkit/retries"
)

var _ Coroutine = (*RetryCoroutine)(nil)

// RetryCoroutine implements the Coroutine contract over another
// coroutine, re-running failing tasks through a backoff schedule
// before surfacing the failure. Cancellations and lifecycle errors
// are never retried.
type RetryCoroutine struct {
	src      Coroutine
	attempts int
	backoff  func(int) time.Duration
}

// NewRetryCoroutine returns a new instance of RetryCoroutine giving
// every task up to attempts runs on the wrapped coroutine, sleeping
// backoff between runs.
func NewRetryCoroutine(src Coroutine, attempts int, backoff func(int) time.Duration) *RetryCoroutine {
	if attempts < 1 {
		attempts = 1
	}

	return &RetryCoroutine{
		src:      src,
		attempts: attempts,
		backoff:  backoff,
	}
}

// ID returns the unique id of the wrapped coroutine.
func (co *RetryCoroutine) ID() string {
	return co.src.ID()
}

// Name returns the name of the wrapped coroutine.
func (co *RetryCoroutine) Name() string {
	return co.src.Name()
}

// ProcessTask runs giving input on the wrapped coroutine, retrying
// over the schedule when the task fails.
func (co *RetryCoroutine) ProcessTask(ctx context.Context, input interface{}) (interface{}, error) {
	var output interface{}
	var permanent error

	err := retries.DoUntil(ctx, co.attempts, co.backoff, func(_ int) error {
		out, taskErr := co.src.ProcessTask(ctx, input)
		if taskErr != nil {
			if !retryable(taskErr) {
				permanent = taskErr
				return nil
			}
			return taskErr
		}

		output = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if permanent != nil {
		return nil, permanent
	}
	return output, nil
}

// Hire reserves a worker from the wrapped coroutine, tasks sent
// through it retry over the same schedule.
func (co *RetryCoroutine) Hire(ctx context.Context) (Worker, error) {
	w, err := co.src.Hire(ctx)
	if err != nil {
		return nil, err
	}
	return &retryWorker{src: co, worker: w}, nil
}

// Finalize finalizes the wrapped coroutine.
func (co *RetryCoroutine) Finalize() error {
	return co.src.Finalize()
}

// retryable reports whether giving task failure is worth another run.
func retryable(err error) bool {
	return !errors.IsAny(err,
		ErrCoroutineFinalized,
		ErrWorkerReleased,
		context.Canceled,
		context.DeadlineExceeded)
}

// retryWorker wraps a hired worker with it's pool's retry schedule.
type retryWorker struct {
	src    *RetryCoroutine
	worker Worker
}

// ID returns the unique id of the held worker.
func (rw *retryWorker) ID() string {
	return rw.worker.ID()
}

// SendTask runs giving input on the held worker, retrying over the
// pool's schedule when the task fails.
func (rw *retryWorker) SendTask(ctx context.Context, input interface{}) (interface{}, error) {
	var output interface{}
	var permanent error

	err := retries.DoUntil(ctx, rw.src.attempts, rw.src.backoff, func(_ int) error {
		out, taskErr := rw.worker.SendTask(ctx, input)
		if taskErr != nil {
			if !retryable(taskErr) {
				permanent = taskErr
				return nil
			}
			return taskErr
		}

		output = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if permanent != nil {
		return nil, permanent
	}
	return output, nil
}

// Release returns the held worker to it's pool.
func (rw *retryWorker) Release() error {
	return rw.worker.Release()
}
