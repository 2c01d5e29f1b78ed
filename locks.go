package streamkit

import (
	"context"
	"sync"

	"github.com/gokit/errors"
)

// errors ...
var (
	ErrUnlocked = errors.New("lock is not held")
)

//***************************************************************************
// Lock
//***************************************************************************

// Lock implements a mutual exclusion gate safe for concurrent use
// across go-routines, where blocked acquirers are granted the lock
// strictly in arrival order. Unlike a sync.Mutex, a release hands the
// lock directly to the oldest waiter, late arrivals can not barge in
// ahead of goroutines already blocked.
type Lock struct {
	qm      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// NewLock returns a new instance of Lock.
func NewLock() *Lock {
	return &Lock{}
}

// Acquire blocks till the lock is granted to the caller or giving
// context expires.
func (l *Lock) Acquire(ctx context.Context) error {
	l.qm.Lock()
	if !l.held {
		l.held = true
		l.qm.Unlock()
		return nil
	}

	wait := make(chan struct{})
	l.waiters = append(l.waiters, wait)
	l.qm.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
	}

	l.qm.Lock()
	select {
	case <-wait:
		// The grant raced the cancellation, pass the lock on.
		l.release()
		l.qm.Unlock()
		return errors.WrapOnly(ctx.Err())
	default:
	}

	for i, w := range l.waiters {
		if w == wait {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			break
		}
	}
	l.qm.Unlock()
	return errors.WrapOnly(ctx.Err())
}

// Release hands the lock to the oldest waiter if any, else frees it.
// It panics with ErrUnlocked if the lock is not currently held.
func (l *Lock) Release() {
	l.qm.Lock()
	defer l.qm.Unlock()

	if !l.held {
		panic(ErrUnlocked)
	}
	l.release()
}

func (l *Lock) release() {
	if len(l.waiters) == 0 {
		l.held = false
		return
	}

	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	close(next)
}

//***************************************************************************
// OpQueue
//***************************************************************************

// OpQueue chains ops into a sequential run order, where a pushed op
// only runs after every op pushed before it has settled. A failing or
// panicking op never stalls the chain, it's outcome is reported through
// the ErrWaiter returned for it alone.
type OpQueue struct {
	logs    Logs
	qm      sync.Mutex
	last    *PendingImpl
	pending AtomicCounter
}

// NewOpQueue returns a new instance of OpQueue.
func NewOpQueue(logs Logs) *OpQueue {
	if logs == nil {
		logs = DrainLog{}
	}
	return &OpQueue{logs: logs}
}

// Push adds giving op to the back of the chain, returning a ErrWaiter
// which resolves once the op has run with whatever error it produced.
func (oq *OpQueue) Push(op Op) ErrWaiter {
	res := NewPending()
	if op == nil {
		res.Resolve(nil)
		return res
	}

	oq.qm.Lock()
	prev := oq.last
	oq.last = res
	oq.qm.Unlock()

	oq.pending.Inc()
	go func() {
		if prev != nil {
			prev.Wait()
		}

		runOp(oq.logs, op, res)
		oq.pending.IncBy(-1)
	}()

	return res
}

// Pending returns total ops still waiting or running within the chain.
func (oq *OpQueue) Pending() int {
	return int(oq.pending.Get())
}
