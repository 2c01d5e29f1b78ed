package streamkit_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gokit/errors"
	"github.com/stretchr/testify/require"

	"github.com/gokit/streamkit"
	"github.com/gokit/streamkit/internal"
)

func upperWork(_ context.Context, input interface{}) (interface{}, error) {
	return strings.ToUpper(input.(string)), nil
}

func TestCoroutine_ProcessTask(t *testing.T) {
	pool := streamkit.NewCoroutine("upper", upperWork)
	defer pool.Finalize()

	require.NotEmpty(t, pool.ID())
	require.Equal(t, "upper", pool.Name())
	require.Equal(t, 0, pool.Workers())

	out, err := pool.ProcessTask(context.Background(), "wombat")
	require.NoError(t, err)
	require.Equal(t, "WOMBAT", out)
	require.Equal(t, 1, pool.Workers())
}

func TestCoroutine_ReusesIdleWorker(t *testing.T) {
	pool := streamkit.NewCoroutine("upper", upperWork, streamkit.WorkerCapacity(4))
	defer pool.Finalize()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := pool.ProcessTask(ctx, "wombat")
		require.NoError(t, err)
	}

	// sequential tasks ride the same slot.
	require.Equal(t, 1, pool.Workers())
}

func TestCoroutine_TaskErrorKeepsWorker(t *testing.T) {
	boom := errors.New("no vowels")
	pool := streamkit.NewCoroutine("upper", func(_ context.Context, input interface{}) (interface{}, error) {
		if input == "bad" {
			return nil, boom
		}
		return upperWork(nil, input)
	}, streamkit.WorkerCapacity(1), streamkit.CoroutineLogs(&internal.TLog{}))
	defer pool.Finalize()

	ctx := context.Background()
	_, err := pool.ProcessTask(ctx, "bad")
	require.Error(t, err)
	require.True(t, errors.IsAny(err, boom))

	out, err := pool.ProcessTask(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, "GOOD", out)
	require.Equal(t, 1, pool.Workers())
}

func TestCoroutine_TaskPanicContained(t *testing.T) {
	pool := streamkit.NewCoroutine("upper", func(_ context.Context, input interface{}) (interface{}, error) {
		if input == "bad" {
			panic("task blew up")
		}
		return upperWork(nil, input)
	}, streamkit.WorkerCapacity(1))
	defer pool.Finalize()

	ctx := context.Background()
	_, err := pool.ProcessTask(ctx, "bad")
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrTaskPanic))

	out, err := pool.ProcessTask(ctx, "good")
	require.NoError(t, err)
	require.Equal(t, "GOOD", out)
	require.Equal(t, 1, pool.Workers())
}

func TestCoroutine_ConcurrentTasks(t *testing.T) {
	pool := streamkit.NewCoroutine("sleepy", func(_ context.Context, input interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return input, nil
	}, streamkit.WorkerCapacity(4))
	defer pool.Finalize()

	var wg sync.WaitGroup
	var failed streamkit.AtomicCounter

	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, err := pool.ProcessTask(context.Background(), n)
			if err != nil || out != n {
				failed.Inc()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(0), failed.Get())
	require.True(t, pool.Workers() <= 4)
}

func TestCoroutine_HireWorker(t *testing.T) {
	pool := streamkit.NewCoroutine("upper", upperWork)
	defer pool.Finalize()

	ctx := context.Background()
	worker, err := pool.Hire(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, worker.ID())

	out, err := worker.SendTask(ctx, "badger")
	require.NoError(t, err)
	require.Equal(t, "BADGER", out)

	out, err = worker.SendTask(ctx, "stoat")
	require.NoError(t, err)
	require.Equal(t, "STOAT", out)

	require.NoError(t, worker.Release())

	err = worker.Release()
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrWorkerReleased))

	_, err = worker.SendTask(ctx, "vole")
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrWorkerReleased))
}

func TestCoroutine_SpawnedSlotState(t *testing.T) {
	pool := streamkit.NewCoroutine("counter", nil, streamkit.WorkerCapacity(1),
		streamkit.WithSpawn(func() streamkit.WorkFunc {
			count := 0
			return func(_ context.Context, _ interface{}) (interface{}, error) {
				count++
				return count, nil
			}
		}))
	defer pool.Finalize()

	ctx := context.Background()
	worker, err := pool.Hire(ctx)
	require.NoError(t, err)

	out, err := worker.SendTask(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out)

	out, err = worker.SendTask(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out)

	require.NoError(t, worker.Release())

	// the released slot returns to rotation with it's state.
	out, err = pool.ProcessTask(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out)
}

func TestCoroutine_FinalizeRejectsWork(t *testing.T) {
	pool := streamkit.NewCoroutine("upper", upperWork)
	require.NoError(t, pool.Finalize())
	require.NoError(t, pool.Finalize())

	_, err := pool.ProcessTask(context.Background(), "wombat")
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrCoroutineFinalized))

	_, err = pool.Hire(context.Background())
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrCoroutineFinalized))
}

func TestCoroutine_FinalizeWaitsInflight(t *testing.T) {
	started := make(chan struct{})
	pool := streamkit.NewCoroutine("sleepy", func(_ context.Context, input interface{}) (interface{}, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return input, nil
	}, streamkit.WorkerCapacity(1))

	type result struct {
		out interface{}
		err error
	}

	done := make(chan result, 1)
	go func() {
		out, err := pool.ProcessTask(context.Background(), "inflight")
		done <- result{out: out, err: err}
	}()

	<-started
	require.NoError(t, pool.Finalize())

	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, "inflight", got.out)
}

func TestCoroutine_WaitHonorsContext(t *testing.T) {
	started := make(chan struct{})
	pool := streamkit.NewCoroutine("sleepy", func(_ context.Context, input interface{}) (interface{}, error) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return input, nil
	}, streamkit.WorkerCapacity(1))
	defer pool.Finalize()

	busy := make(chan struct{})
	go func() {
		_, _ = pool.ProcessTask(context.Background(), "first")
		close(busy)
	}()

	// the only slot is mid-task, contend with a short deadline.
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := pool.ProcessTask(ctx, "second")
	require.Error(t, err)
	require.True(t, errors.IsAny(err, context.DeadlineExceeded))
	<-busy
}

//***************************************************************************
// Cascade
//***************************************************************************

func addWork(delta int) streamkit.WorkFunc {
	return func(_ context.Context, input interface{}) (interface{}, error) {
		return input.(int) + delta, nil
	}
}

func TestCascade_ThreadsStages(t *testing.T) {
	inc := streamkit.NewCoroutine("inc", addWork(1))
	double := streamkit.NewCoroutine("double", func(_ context.Context, input interface{}) (interface{}, error) {
		return input.(int) * 2, nil
	})

	chain := streamkit.Cascade("math", inc, double)
	defer chain.Finalize()

	require.NotEmpty(t, chain.ID())
	require.Equal(t, "math", chain.Name())

	out, err := chain.ProcessTask(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 8, out)
}

func TestCascade_EmptyIsIdentity(t *testing.T) {
	chain := streamkit.Cascade("empty")
	defer chain.Finalize()

	out, err := chain.ProcessTask(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 42, out)
}

func TestCascade_StageErrorStopsChain(t *testing.T) {
	boom := errors.New("stage broke")
	var reached streamkit.AtomicBool

	first := streamkit.NewCoroutine("first", func(_ context.Context, _ interface{}) (interface{}, error) {
		return nil, boom
	})
	second := streamkit.NewCoroutine("second", func(_ context.Context, input interface{}) (interface{}, error) {
		reached.On()
		return input, nil
	})

	chain := streamkit.Cascade("broken", first, second)
	defer chain.Finalize()

	_, err := chain.ProcessTask(context.Background(), 1)
	require.Error(t, err)
	require.True(t, errors.IsAny(err, boom))
	require.False(t, reached.IsTrue())
}

func TestCascade_HiredWorker(t *testing.T) {
	inc := streamkit.NewCoroutine("inc", addWork(1))
	tenfold := streamkit.NewCoroutine("tenfold", func(_ context.Context, input interface{}) (interface{}, error) {
		return input.(int) * 10, nil
	})

	chain := streamkit.Cascade("math", inc, tenfold)
	defer chain.Finalize()

	ctx := context.Background()
	worker, err := chain.Hire(ctx)
	require.NoError(t, err)

	out, err := worker.SendTask(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 20, out)

	out, err = worker.SendTask(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, 50, out)

	require.NoError(t, worker.Release())
	require.Error(t, worker.Release())

	_, err = worker.SendTask(ctx, 9)
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrWorkerReleased))
}

func TestCascade_FinalizeRunsAllStages(t *testing.T) {
	inc := streamkit.NewCoroutine("inc", addWork(1))
	dec := streamkit.NewCoroutine("dec", addWork(-1))

	chain := streamkit.Cascade("math", inc, dec)
	require.NoError(t, chain.Finalize())

	_, err := inc.ProcessTask(context.Background(), 1)
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrCoroutineFinalized))

	_, err = dec.ProcessTask(context.Background(), 1)
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrCoroutineFinalized))
}

func BenchmarkCoroutine_ProcessTask(b *testing.B) {
	b.ReportAllocs()

	pool := streamkit.NewCoroutine("noop", func(_ context.Context, input interface{}) (interface{}, error) {
		return input, nil
	}, streamkit.WorkerCapacity(4))
	defer pool.Finalize()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = pool.ProcessTask(ctx, i)
	}
	b.StopTimer()
}
