package streamkit

import (
	"sync"

	"github.com/gokit/es"

	"github.com/gokit/errors"
	"github.com/gokit/xid"
)

// errors ...
var (
	ErrPendingResolved = errors.New("Pending is resolved")
)

// PendingResolved is published when a pending result resolves with a value.
type PendingResolved struct {
	ID   string
	Data interface{}
}

// PendingRejected is published when a pending result resolves with an error.
type PendingRejected struct {
	ID  string
	Err error
}

// PendingImpl defines a one-shot result which implements the ErrWaiter
// interface. It blocks callers till it has being resolved with a value
// or rejected with an error, after which it's outcome never changes.
type PendingImpl struct {
	id     xid.ID
	events es.EventStream

	w     sync.WaitGroup
	cw    sync.Mutex
	done  bool
	err   error
	value interface{}
}

// NewPending returns a new instance of giving PendingImpl.
func NewPending() *PendingImpl {
	var pd PendingImpl
	pd.id = xid.New()
	pd.events = es.New()
	pd.w.Add(1)
	return &pd
}

// ID returns the unique id of giving pending result.
func (p *PendingImpl) ID() string {
	return p.id.String()
}

// Watch adds giving function into event system for pending result.
func (p *PendingImpl) Watch(fn func(interface{})) Subscription {
	return p.events.Subscribe(fn)
}

// Resolve marks giving pending as succeeded with provided value,
// releasing all waiters.
func (p *PendingImpl) Resolve(v interface{}) error {
	p.cw.Lock()
	if p.done {
		p.cw.Unlock()
		return errors.Wrap(ErrPendingResolved, "pending %q already resolved", p.id.String())
	}

	p.done = true
	p.value = v
	p.cw.Unlock()
	p.w.Done()

	p.events.Publish(PendingResolved{ID: p.id.String(), Data: v})
	return nil
}

// Reject marks giving pending as failed with provided error,
// releasing all waiters.
func (p *PendingImpl) Reject(err error) error {
	p.cw.Lock()
	if p.done {
		p.cw.Unlock()
		return errors.Wrap(ErrPendingResolved, "pending %q already resolved", p.id.String())
	}

	p.done = true
	p.err = err
	p.cw.Unlock()
	p.w.Done()

	p.events.Publish(PendingRejected{ID: p.id.String(), Err: err})
	return nil
}

// Wait blocks till the giving pending is resolved and returns error if
// occurred.
func (p *PendingImpl) Wait() error {
	p.w.Wait()
	return p.Err()
}

// Err returns the error for the failure of
// giving pending.
func (p *PendingImpl) Err() error {
	p.cw.Lock()
	defer p.cw.Unlock()
	return p.err
}

// Value returns the value which resolved giving pending.
func (p *PendingImpl) Value() interface{} {
	p.cw.Lock()
	defer p.cw.Unlock()
	return p.value
}

// Resolved returns true/false if giving pending has being resolved.
func (p *PendingImpl) Resolved() bool {
	p.cw.Lock()
	defer p.cw.Unlock()
	return p.done
}
