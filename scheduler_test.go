package streamkit_test

import (
	"sync"
	"testing"

	"github.com/gokit/errors"
	"github.com/stretchr/testify/require"

	"github.com/gokit/streamkit"
)

func TestScheduler_RunsInOrder(t *testing.T) {
	sc := streamkit.NewScheduler(nil)

	var ml sync.Mutex
	var order []int

	waiters := make([]streamkit.ErrWaiter, 0, 5)
	for i := 0; i < 5; i++ {
		n := i
		waiters = append(waiters, sc.Schedule(func() error {
			ml.Lock()
			order = append(order, n)
			ml.Unlock()
			return nil
		}))
	}

	for _, w := range waiters {
		require.NoError(t, w.Wait())
	}

	ml.Lock()
	defer ml.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduler_OpError(t *testing.T) {
	boom := errors.New("op broke")
	sc := streamkit.NewScheduler(nil)

	w := sc.Schedule(func() error {
		return boom
	})
	require.Equal(t, boom, w.Wait())
}

func TestScheduler_OpPanic(t *testing.T) {
	sc := streamkit.NewScheduler(nil)

	w := sc.Schedule(func() error {
		panic("op blew up")
	})

	err := w.Wait()
	require.Error(t, err)
	require.True(t, errors.IsAny(err, streamkit.ErrOpPanic))

	// the run loop survives the panic.
	require.NoError(t, sc.Schedule(func() error { return nil }).Wait())
}

func TestScheduler_NilOp(t *testing.T) {
	sc := streamkit.NewScheduler(nil)
	require.NoError(t, sc.Schedule(nil).Wait())
}

func TestSchedule_Global(t *testing.T) {
	first := streamkit.GetScheduler()
	require.NotNil(t, first)
	require.Equal(t, first, streamkit.GetScheduler())

	w := streamkit.Schedule(func() error { return nil })
	require.NoError(t, w.Wait())

	boom := errors.New("op broke")
	require.Equal(t, boom, streamkit.ScheduleWait(func() error { return boom }))
}
