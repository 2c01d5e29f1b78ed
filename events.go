package streamkit

import (
	"time"

	"github.com/gokit/es"
)

//***********************************
// Subscribe And Publish
//***********************************

var events = es.New()

// Subscribe adds handler into the runtime's global subscription,
// receiving every lifecycle event the runtime publishes.
func Subscribe(h es.EventHandler) es.Subscription {
	return events.Subscribe(h)
}

// Publish publishes to all subscribers provided value.
func Publish(h interface{}) {
	events.Publish(h)
}

//***********************************
// EventWorkInvoker
//***********************************

// EventWorkInvoker implements the WorkInvoker interface, forwarding a
// pool's task lifecycle onto giving event stream so a single pool can
// be observed apart from the runtime's global stream.
type EventWorkInvoker struct {
	Events es.EventStream
}

// InvokedRequest publishes a TaskRequested event.
func (ev EventWorkInvoker) InvokedRequest(pool string, input interface{}) {
	ev.Events.Publish(TaskRequested{Pool: pool, Input: input, Time: time.Now()})
}

// InvokedProcessing publishes a TaskProcessing event.
func (ev EventWorkInvoker) InvokedProcessing(pool string, input interface{}) {
	ev.Events.Publish(TaskProcessing{Pool: pool, Input: input, Time: time.Now()})
}

// InvokedProcessed publishes a TaskProcessed event.
func (ev EventWorkInvoker) InvokedProcessed(pool string, output interface{}) {
	ev.Events.Publish(TaskProcessed{Pool: pool, Output: output, Time: time.Now()})
}

// InvokedFailed publishes a TaskFailed event.
func (ev EventWorkInvoker) InvokedFailed(pool string, err error) {
	ev.Events.Publish(TaskFailed{Pool: pool, Err: err, Time: time.Now()})
}
