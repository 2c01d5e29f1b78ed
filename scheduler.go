package streamkit

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gokit/errors"
)

// ErrOpPanic is returned through a scheduled op's waiter when the op
// panicked instead of returning.
var ErrOpPanic = errors.New("op panicked")

const stackBufferSize = 1 << 13

var defaultScheduler = NewScheduler(DrainLog{})

// GetScheduler returns the package-level scheduler.
func GetScheduler() *SchedulerImpl {
	return defaultScheduler
}

// Schedule queues giving op on the package-level scheduler.
func Schedule(op Op) ErrWaiter {
	return defaultScheduler.Schedule(op)
}

// ScheduleWait queues giving op on the package-level scheduler and
// blocks till it has run, returning whatever error it produced.
func ScheduleWait(op Op) error {
	return defaultScheduler.Schedule(op).Wait()
}

// Op defines a function type representing a unit of work to be run
// by a Scheduler or OpQueue.
type Op func() error

var opNodePool = sync.Pool{New: func() interface{} {
	return new(opNode)
}}

type opNode struct {
	op   Op
	res  *PendingImpl
	next *opNode
}

// SchedulerImpl implements a run queue safe for concurrent use across
// go-routines, where every queued op runs on a single internal drain
// goroutine, strictly in queue order and never on the goroutine which
// queued it. The outcome of each op, error or recovered panic included,
// surfaces only through the ErrWaiter handed back by Schedule, a bad op
// can not take the drain goroutine down with it.
type SchedulerImpl struct {
	logs    Logs
	booted  AtomicBool
	pending AtomicCounter

	pushCond *sync.Cond
	qm       sync.Mutex
	head     *opNode
	tail     *opNode
}

// NewScheduler returns a new instance of SchedulerImpl. The internal
// drain goroutine starts on first use and runs for the life of the
// process.
func NewScheduler(logs Logs) *SchedulerImpl {
	if logs == nil {
		logs = DrainLog{}
	}

	sc := &SchedulerImpl{logs: logs}
	sc.pushCond = sync.NewCond(&sc.qm)
	return sc
}

// Schedule adds giving op to the back of the run queue, returning a
// ErrWaiter which resolves once the op has run with whatever error
// it produced.
func (sc *SchedulerImpl) Schedule(op Op) ErrWaiter {
	res := NewPending()
	if op == nil {
		res.Resolve(nil)
		return res
	}

	n := opNodePool.Get().(*opNode)
	n.op = op
	n.res = res
	n.next = nil

	sc.pushCond.L.Lock()
	if !sc.booted.IsTrue() {
		sc.booted.On()
		go sc.run()
	}

	if sc.tail == nil {
		sc.head, sc.tail = n, n
	} else {
		sc.tail.next = n
		sc.tail = n
	}
	sc.pending.Inc()
	sc.pushCond.L.Unlock()

	sc.pushCond.Broadcast()
	return res
}

// Pending returns total ops still waiting in the run queue.
func (sc *SchedulerImpl) Pending() int {
	return int(sc.pending.Get())
}

func (sc *SchedulerImpl) run() {
	for {
		sc.pushCond.L.Lock()
		for sc.head == nil {
			sc.pushCond.Wait()
		}

		n := sc.head
		sc.head = n.next
		if sc.tail == n {
			sc.tail = sc.head
		}
		sc.pending.IncBy(-1)
		sc.pushCond.L.Unlock()

		runOp(sc.logs, n.op, n.res)

		n.op = nil
		n.res = nil
		n.next = nil
		opNodePool.Put(n)
	}
}

// runOp runs giving op, resolving res with the op's outcome. A panic
// is recovered, logged and turned into a ErrOpPanic rejection.
func runOp(logs Logs, op Op, res *PendingImpl) {
	defer func() {
		if reason := recover(); reason != nil {
			trace := make([]byte, stackBufferSize)
			trace = trace[:runtime.Stack(trace, false)]

			logs.Emit(PANIC, LogMsg("op panicked").
				String("panic", fmt.Sprintf("%+v", reason)).
				QBytes("stack", trace).Write())

			res.Reject(errors.Wrap(ErrOpPanic, "op panicked with: %+v", reason))
		}
	}()

	if err := op(); err != nil {
		res.Reject(err)
		return
	}
	res.Resolve(nil)
}
