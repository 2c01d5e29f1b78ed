package streamkit

import (
	"fmt"
	"sync"

	"github.com/gokit/errors"
	"github.com/gokit/xid"
)

//***************************************************************************
// SubscriberFunc
//***************************************************************************

// SubscriberFunc adapts a function into the Subscriber contract, the
// terminal signals are discarded.
type SubscriberFunc func(interface{}) error

// OnNext invokes giving function with the value.
func (s SubscriberFunc) OnNext(v interface{}) error {
	return s(v)
}

// OnError does nothing.
func (s SubscriberFunc) OnError(_ error) {}

// OnCompleted does nothing.
func (s SubscriberFunc) OnCompleted() {}

//***************************************************************************
// ReceiverImpl
//***************************************************************************

// ReceiverImpl guards a Subscriber behind the delivery rules of a
// subscription: values and the terminal signal are serialized, exactly
// one terminal signal is ever delivered, an error returned (or panic
// raised) from OnNext ends delivery and is redirected to OnError, and
// a panic from a terminal handler is contained and logged.
type ReceiverImpl struct {
	id     xid.ID
	logs   Logs
	target Subscriber

	mu   sync.Mutex
	done bool
}

// NewReceiver returns a new instance of ReceiverImpl for giving target.
func NewReceiver(target Subscriber, logs Logs) *ReceiverImpl {
	if logs == nil {
		logs = DrainLog{}
	}

	return &ReceiverImpl{
		id:     xid.New(),
		logs:   logs,
		target: target,
	}
}

// ID returns the unique id of giving receiver.
func (r *ReceiverImpl) ID() string {
	return r.id.String()
}

// Done returns true/false if giving receiver has delivered it's
// terminal signal.
func (r *ReceiverImpl) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Next delivers giving value to the subscriber. A failure from the
// subscriber ends the receiver and is handed to it's OnError.
func (r *ReceiverImpl) Next(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}

	if err := r.deliverNext(v); err != nil {
		r.done = true
		r.deliverError(err)
	}
}

// Error delivers giving error as the terminal signal.
func (r *ReceiverImpl) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}

	r.done = true
	r.deliverError(err)
}

// Complete delivers the completion terminal signal.
func (r *ReceiverImpl) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return
	}

	r.done = true
	r.deliverComplete()
}

func (r *ReceiverImpl) deliverNext(v interface{}) (failure error) {
	defer func() {
		if reason := recover(); reason != nil {
			failure = errors.New("subscriber panicked with: %+v", reason)
		}
	}()
	return r.target.OnNext(v)
}

func (r *ReceiverImpl) deliverError(err error) {
	defer func() {
		if reason := recover(); reason != nil {
			r.logs.Emit(ERROR, LogMsg("subscriber OnError panicked").
				String("receiver", r.id.String()).
				String("panic", fmt.Sprintf("%+v", reason)).Write())
		}
	}()
	r.target.OnError(err)
}

func (r *ReceiverImpl) deliverComplete() {
	defer func() {
		if reason := recover(); reason != nil {
			r.logs.Emit(ERROR, LogMsg("subscriber OnCompleted panicked").
				String("receiver", r.id.String()).
				String("panic", fmt.Sprintf("%+v", reason)).Write())
		}
	}()
	r.target.OnCompleted()
}

//***************************************************************************
// SubscriptionImpl
//***************************************************************************

var _ Subscription = (*SubscriptionImpl)(nil)

// SubscriptionImpl implements the Subscription contract over a
// teardown function. Stop marks the subscription stopped immediately
// and queues the teardown on the runtime scheduler exactly once,
// further calls are no-ops.
type SubscriptionImpl struct {
	id       xid.ID
	logs     Logs
	stream   string
	stopped  AtomicBool
	once     sync.Once
	teardown func() error
}

// NewSubscription returns a new instance of SubscriptionImpl running
// giving teardown when stopped.
func NewSubscription(stream string, teardown func() error, logs Logs) *SubscriptionImpl {
	if logs == nil {
		logs = DrainLog{}
	}

	return &SubscriptionImpl{
		id:       xid.New(),
		logs:     logs,
		stream:   stream,
		teardown: teardown,
	}
}

// ID returns the unique id of giving subscription.
func (s *SubscriptionImpl) ID() string {
	return s.id.String()
}

// Stopped returns true/false if giving subscription has being stopped.
func (s *SubscriptionImpl) Stopped() bool {
	return s.stopped.IsTrue()
}

// Stop ends giving subscription, releasing it's source asynchronously.
func (s *SubscriptionImpl) Stop() {
	s.stopped.On()
	s.once.Do(func() {
		Schedule(func() error {
			if s.teardown != nil {
				if err := s.teardown(); err != nil {
					s.logs.Emit(ERROR, LogMsg("subscription teardown failed").
						String("subscription", s.id.String()).
						String("stream", s.stream).
						Err("error", err).Write())
				}
			}

			Publish(SubscriptionStopped{
				ID:     s.id.String(),
				Stream: s.stream,
			})
			return nil
		})
	})
}
