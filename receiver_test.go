package streamkit_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gokit/errors"
	"github.com/stretchr/testify/require"

	"github.com/gokit/streamkit"
)

// recordingSubscriber collects everything delivered to it, closing
// Done once a terminal signal lands.
type recordingSubscriber struct {
	Done chan struct{}

	nextErr   error
	panicNext bool

	mu        sync.Mutex
	values    []interface{}
	failures  []error
	completes int
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{Done: make(chan struct{})}
}

func (r *recordingSubscriber) OnNext(v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.panicNext {
		panic("next blew up")
	}

	r.values = append(r.values, v)
	return r.nextErr
}

func (r *recordingSubscriber) OnError(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
	close(r.Done)
}

func (r *recordingSubscriber) OnCompleted() {
	r.mu.Lock()
	r.completes++
	r.mu.Unlock()
	close(r.Done)
}

func (r *recordingSubscriber) Values() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interface{}(nil), r.values...)
}

func (r *recordingSubscriber) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

func (r *recordingSubscriber) Completes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}

func TestReceiver_Delivers(t *testing.T) {
	sub := newRecordingSubscriber()
	recv := streamkit.NewReceiver(sub, nil)

	recv.Next(1)
	recv.Next(2)
	require.False(t, recv.Done())

	recv.Complete()
	require.True(t, recv.Done())

	require.Equal(t, []interface{}{1, 2}, sub.Values())
	require.Equal(t, 1, sub.Completes())
}

func TestReceiver_NextErrorRedirects(t *testing.T) {
	boom := errors.New("consumer broke")

	sub := newRecordingSubscriber()
	sub.nextErr = boom
	recv := streamkit.NewReceiver(sub, nil)

	recv.Next(1)
	require.True(t, recv.Done())

	failures := sub.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, boom, failures[0])

	// delivery is over, further signals are dropped.
	recv.Next(2)
	recv.Complete()
	require.Equal(t, []interface{}{1}, sub.Values())
	require.Zero(t, sub.Completes())
}

func TestReceiver_NextPanicRedirects(t *testing.T) {
	sub := newRecordingSubscriber()
	sub.panicNext = true
	recv := streamkit.NewReceiver(sub, nil)

	recv.Next(1)
	require.True(t, recv.Done())

	failures := sub.Failures()
	require.Len(t, failures, 1)
	require.Contains(t, failures[0].Error(), "subscriber panicked")
}

func TestReceiver_TerminalOnce(t *testing.T) {
	sub := newRecordingSubscriber()
	recv := streamkit.NewReceiver(sub, nil)

	recv.Complete()
	recv.Error(errors.New("late failure"))
	recv.Complete()

	require.Equal(t, 1, sub.Completes())
	require.Empty(t, sub.Failures())
}

func TestReceiver_TerminalPanicContained(t *testing.T) {
	recv := streamkit.NewReceiver(panickyTerminalSubscriber{}, nil)
	require.NotPanics(t, func() {
		recv.Complete()
	})
	require.True(t, recv.Done())
}

type panickyTerminalSubscriber struct{}

func (panickyTerminalSubscriber) OnNext(_ interface{}) error { return nil }
func (panickyTerminalSubscriber) OnError(_ error)            { panic("error handler blew up") }
func (panickyTerminalSubscriber) OnCompleted()               { panic("complete handler blew up") }

func TestSubscriberFunc(t *testing.T) {
	var got interface{}
	sub := streamkit.SubscriberFunc(func(v interface{}) error {
		got = v
		return nil
	})

	require.NoError(t, sub.OnNext("hello"))
	require.Equal(t, "hello", got)

	sub.OnError(errors.New("ignored"))
	sub.OnCompleted()
}

func TestSubscription_StopOnce(t *testing.T) {
	var count int32
	ran := make(chan struct{}, 2)

	sub := streamkit.NewSubscription("pipeline", func() error {
		atomic.AddInt32(&count, 1)
		ran <- struct{}{}
		return nil
	}, nil)

	require.False(t, sub.Stopped())

	sub.Stop()
	require.True(t, sub.Stopped())
	sub.Stop()

	<-ran
	require.Equal(t, int32(1), atomic.LoadInt32(&count))
}
