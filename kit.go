package streamkit

import (
	"context"
	"time"
)

//***************************************************************************
// Item
//***************************************************************************

// Item carries a single result produced by an Iterator. A phantom item
// represents a giving value consumed internally by a pipeline stage, it
// still moves through the pipeline as a progress tick but is never
// delivered to a final consumer.
type Item struct {
	Value   interface{}
	Phantom bool
}

// PhantomItem returns a new Item flagged as a phantom progress tick.
func PhantomItem() Item {
	return Item{Phantom: true}
}

//***********************************
//  Waiter
//***********************************

// Waiter exposes a single method which blocks
// till a given condition is met.
type Waiter interface {
	Wait()
}

//***********************************
//  ErrWaiter
//***********************************

// ErrWaiter exposes a single method which blocks
// till a given condition is met or an error occurs that
// causes it to stop blocking and will return the error
// encountered.
type ErrWaiter interface {
	Wait() error
}

//***********************************
//  Identity
//***********************************

// Identity provides a method to return the ID of a process.
type Identity interface {
	ID() string
}

//***********************************
//  Named
//***********************************

// Named exposes a single method for retrieving the display
// name of implementer.
type Named interface {
	Name() string
}

//***********************************
//  Iterator
//***********************************

// Iterator defines the pull contract for consuming a stream of values.
//
// Next blocks till a result is available, the source terminates or the
// giving context expires. Once a source has ended, Next must keep
// returning the same terminal result for every later call. Stop requests
// the iteration to end early, it must be safe to call more than once and
// must reach whatever upstream the iterator consumes.
type Iterator interface {
	Next(ctx context.Context) (Item, error)
	Stop() error
}

//***********************************
//  Iterable
//***********************************

// Iterable exposes a single method which returns an iterator
// over implementer's values.
type Iterable interface {
	Iterate() Iterator
}

//***********************************
//  Sink
//***********************************

// Sink defines the write side of a value store. Write delivers a new
// value, Fail ends the store with giving error and Close ends it
// normally. After Fail or Close the store is terminal and all three
// methods return an error.
type Sink interface {
	Write(interface{}) error
	Fail(error) error
	Close() error
}

//***********************************
//  Subscriber
//***********************************

// Subscriber defines the consumer contract for push delivery from a
// stream. An error returned from OnNext redirects into OnError and ends
// delivery for giving subscriber.
type Subscriber interface {
	OnNext(interface{}) error
	OnError(error)
	OnCompleted()
}

//***********************************
//  Subscription
//***********************************

// Subscription defines a method which exposes a single method
// to remove giving subscription.
type Subscription interface {
	Stop()
}

//***********************************
//  Watchers
//***********************************

// Watchable defines a in interface that exposes methods to add
// functions to be called on some status change of the implementing
// instance.
type Watchable interface {
	Watch(func(interface{})) Subscription
}

//***********************************
//  Subscribable
//***********************************

// Subscribable exposes a single method which drives implementer's
// values into giving subscriber on a background goroutine.
type Subscribable interface {
	Subscribe(Subscriber) (Subscription, error)
}

//***********************************
//  Stream
//***********************************

// Stream defines a lazy source of values which can be consumed by
// pulling through Iterate or by push delivery through Subscribe, and
// extended with operators through Pipe.
//
// Streams are lazy, no upstream work happens till a consumer arrives.
// Every iterator handed out honors the terminal contract of Iterator.
type Stream interface {
	Named
	Identity
	Iterable
	Watchable
	Subscribable

	// Completed returns true/false if giving stream has delivered
	// a terminal result.
	Completed() bool

	// Pipe returns a new stream which applies giving operators,
	// in order, around this stream's iterators.
	Pipe(...Operator) Stream
}

//***********************************
//  Subject
//***********************************

// Subject defines a stream which is also a sink, multicasting every
// written value to all of it's attached readers according to the
// retention policy of it's underline buffer.
type Subject interface {
	Stream
	Sink
}

//***********************************
//  Worker
//***********************************

// Worker defines an exclusive hold on a coroutine slot. Tasks sent
// through a worker run in order on the same slot, letting the slot
// retain state across them. Release returns the slot to the pool
// rotation and must be called exactly once.
type Worker interface {
	Identity

	SendTask(ctx context.Context, input interface{}) (interface{}, error)
	Release() error
}

//***********************************
//  Coroutine
//***********************************

// Coroutine defines a pool of isolated slots which process one task
// each at a time. Slots communicate only through messages, a failing
// task is reported to it's caller and never retires the slot that ran
// it.
type Coroutine interface {
	Named
	Identity

	// ProcessTask runs giving input on any idle slot, blocking till
	// the slot replies or giving context expires.
	ProcessTask(ctx context.Context, input interface{}) (interface{}, error)

	// Hire reserves an idle slot exclusively for the caller.
	Hire(ctx context.Context) (Worker, error)

	// Finalize stops all slots and rejects further work. Repeated
	// calls return the first result.
	Finalize() error
}

//***********************************
//  Interceptor
//***********************************

// Interceptor exposes a single method which wraps the iterator a
// stream hands out before any consumer receives it, allowing external
// systems to observe or reshape iteration without patching the stream.
type Interceptor interface {
	InterceptIterator(stream string, it Iterator) Iterator
}

//***********************************
//  Invokers
//***********************************

// BufferInvoker defines an interface that exposes methods
// to signal status of a buffer.
type BufferInvoker interface {
	InvokedWrite(interface{})
	InvokedRead(interface{})
	InvokedDropped(interface{})
	InvokedAttached(string)
	InvokedDetached(string)
	InvokedTerminal(error)
}

// StreamInvoker defines a interface that exposes
// methods to signal different state of a stream
// for external systems to plugin.
type StreamInvoker interface {
	InvokedIterate(string)
	InvokedSubscribe(string)
	InvokedPull(string, Item)
	InvokedPhantom(string)
	InvokedStop(string)
}

// WorkInvoker defines a interface that exposes methods to signal
// the processing states of tasks within a coroutine pool.
type WorkInvoker interface {
	InvokedRequest(string, interface{})
	InvokedProcessing(string, interface{})
	InvokedProcessed(string, interface{})
	InvokedFailed(string, error)
}

//***********************************
//  Runtime Events
//***********************************

// StreamOpened is sent when a stream or subject has being created.
type StreamOpened struct {
	ID   string
	Name string
}

// StreamCompleted is sent when a stream has delivered a terminal
// result to a consumer. Err is nil for a normal completion.
type StreamCompleted struct {
	ID   string
	Name string
	Err  error
}

// SubscriptionStopped is sent after a subscription's teardown has run.
type SubscriptionStopped struct {
	ID     string
	Stream string
}

// SubjectClosed is sent when a subject's write side has terminated.
// Err is nil for a normal close.
type SubjectClosed struct {
	ID   string
	Name string
	Err  error
}

// WorkerSpawned is sent when a pool brings up a new slot.
type WorkerSpawned struct {
	ID   string
	Pool string
}

// WorkerHired is sent when a slot is reserved exclusively through Hire.
type WorkerHired struct {
	ID   string
	Pool string
}

// WorkerReleased is sent when a hired slot returns to the pool rotation.
type WorkerReleased struct {
	ID   string
	Pool string
}

// TaskRequested is sent when work has being submitted to a pool.
type TaskRequested struct {
	Pool  string
	Input interface{}
	Time  time.Time
}

// TaskProcessing is sent when a slot begins a task.
type TaskProcessing struct {
	Pool  string
	Input interface{}
	Time  time.Time
}

// TaskProcessed is sent when a slot finishes a task.
type TaskProcessed struct {
	Pool   string
	Output interface{}
	Time   time.Time
}

// TaskFailed is sent when a task ends with an error or panic. The slot
// which ran it stays in rotation.
type TaskFailed struct {
	ID   string
	Pool string
	Err  error
	Time time.Time
}

// CoroutineFinalized is sent once a pool or cascade has stopped all
// of it's slots.
type CoroutineFinalized struct {
	ID   string
	Name string
}
