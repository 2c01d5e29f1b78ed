package streamkit

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gokit/errors"
	"github.com/gokit/xid"
	"gopkg.in/tomb.v2"
)

// errors ...
var (
	ErrCoroutineFinalized = errors.New("coroutine is finalized")
	ErrWorkerReleased     = errors.New("worker is released")
	ErrTaskPanic          = errors.New("task panicked")
)

// defaultWorkerCapacity sets the slot limit used when no capacity is
// provided.
const defaultWorkerCapacity = 8

var (
	_ Coroutine = (*CoroutineImpl)(nil)
	_ Coroutine = (*CascadeImpl)(nil)
	_ Worker    = (*WorkerImpl)(nil)
	_ Worker    = (*cascadeWorker)(nil)
)

// WorkFunc defines the function type a coroutine slot runs per task.
type WorkFunc func(ctx context.Context, input interface{}) (interface{}, error)

//***************************************************************************
// CoroutineOption
//***************************************************************************

// coroutineConfig holds construction options for a CoroutineImpl.
type coroutineConfig struct {
	capacity int
	logs     Logs
	invoker  WorkInvoker
	spawn    func() WorkFunc
}

// init initializes giving config to reasonable defaults.
func (cc *coroutineConfig) init() {
	if cc.capacity <= 0 {
		cc.capacity = defaultWorkerCapacity
	}
	if cc.logs == nil {
		cc.logs = DrainLog{}
	}
}

// CoroutineOption defines a function type to modify a coroutine's
// configuration during construction.
type CoroutineOption func(*coroutineConfig)

// WorkerCapacity sets the maximum count of slots the pool will spawn.
func WorkerCapacity(n int) CoroutineOption {
	return func(cc *coroutineConfig) {
		cc.capacity = n
	}
}

// CoroutineLogs sets the logger to be used by the pool.
func CoroutineLogs(logs Logs) CoroutineOption {
	return func(cc *coroutineConfig) {
		if logs != nil {
			cc.logs = logs
		}
	}
}

// CoroutineInvoker sets the invoker notified of the pool's task
// lifecycle.
func CoroutineInvoker(in WorkInvoker) CoroutineOption {
	return func(cc *coroutineConfig) {
		cc.invoker = in
	}
}

// WithSpawn builds each slot's work function through giving factory,
// letting every slot close over it's own private state.
func WithSpawn(spawn func() WorkFunc) CoroutineOption {
	return func(cc *coroutineConfig) {
		cc.spawn = spawn
	}
}

//***************************************************************************
// CoroutineImpl
//***************************************************************************

// CoroutineImpl implements the Coroutine contract as a lazily grown
// pool of slots, each slot a single goroutine with it's own inbox.
// Slots share nothing, a task failure or panic is reported to the
// caller while the slot stays in rotation for the next task.
type CoroutineImpl struct {
	id       xid.ID
	name     string
	logs     Logs
	work     WorkFunc
	spawn    func() WorkFunc
	capacity int
	invoker  WorkInvoker

	gate *Lock
	idle chan *slot
	quit chan struct{}

	fonce     sync.Once
	ferr      error
	finalized AtomicBool
	total     AtomicCounter

	sm    sync.Mutex
	slots []*slot
}

// NewCoroutine returns a new instance of CoroutineImpl running giving
// work function on it's slots.
func NewCoroutine(name string, work WorkFunc, ops ...CoroutineOption) *CoroutineImpl {
	var conf coroutineConfig
	for _, op := range ops {
		op(&conf)
	}
	conf.init()

	return &CoroutineImpl{
		id:       xid.New(),
		name:     name,
		logs:     conf.logs,
		work:     work,
		spawn:    conf.spawn,
		capacity: conf.capacity,
		invoker:  conf.invoker,
		gate:     NewLock(),
		idle:     make(chan *slot, conf.capacity),
		quit:     make(chan struct{}),
	}
}

// ID returns the unique id of giving pool.
func (co *CoroutineImpl) ID() string {
	return co.id.String()
}

// Name returns the name of giving pool.
func (co *CoroutineImpl) Name() string {
	return co.name
}

// Workers returns current count of spawned slots.
func (co *CoroutineImpl) Workers() int {
	return int(co.total.Get())
}

// ProcessTask runs giving input on any idle slot, spawning one when
// the pool is below capacity, blocking for a free slot otherwise.
func (co *CoroutineImpl) ProcessTask(ctx context.Context, input interface{}) (interface{}, error) {
	if co.invoker != nil {
		co.invoker.InvokedRequest(co.name, input)
	}
	Publish(TaskRequested{Pool: co.name, Input: input, Time: time.Now()})

	s, err := co.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer co.release(s)

	res, err := co.send(ctx, s, input)
	if err != nil {
		return nil, err
	}

	if waitErr := res.Wait(); waitErr != nil {
		return nil, waitErr
	}
	return res.Value(), nil
}

// Hire reserves a slot exclusively, it stays out of the pool rotation
// till the returned worker is released.
func (co *CoroutineImpl) Hire(ctx context.Context) (Worker, error) {
	s, err := co.acquire(ctx)
	if err != nil {
		return nil, err
	}

	Publish(WorkerHired{ID: s.id.String(), Pool: co.name})
	return &WorkerImpl{src: co, slot: s}, nil
}

// Finalize stops every slot after it's in-flight task, rejecting all
// further work. Repeated calls return the first result.
func (co *CoroutineImpl) Finalize() error {
	co.fonce.Do(func() {
		co.finalized.On()
		close(co.quit)

		_ = co.gate.Acquire(context.Background())
		co.sm.Lock()
		slots := co.slots
		co.slots = nil
		co.sm.Unlock()
		co.gate.Release()

	drained:
		for {
			select {
			case <-co.idle:
			default:
				break drained
			}
		}

		for _, s := range slots {
			s.tm.Kill(nil)
			if err := s.tm.Wait(); err != nil && co.ferr == nil {
				co.ferr = err
			}
		}

		co.logs.Emit(INFO, LogMsg("coroutine finalized").
			String("pool", co.name).
			Int("workers", len(slots)).Write())
		Publish(CoroutineFinalized{ID: co.id.String(), Name: co.name})
	})
	return co.ferr
}

// acquire returns an idle slot, spawning below capacity and waiting on
// the rotation otherwise.
func (co *CoroutineImpl) acquire(ctx context.Context) (*slot, error) {
	if co.finalized.IsTrue() {
		return nil, errors.Wrap(ErrCoroutineFinalized, "coroutine %q is finalized", co.name)
	}

	select {
	case s := <-co.idle:
		return s, nil
	default:
	}

	if err := co.gate.Acquire(ctx); err != nil {
		return nil, err
	}

	if co.finalized.IsTrue() {
		co.gate.Release()
		return nil, errors.Wrap(ErrCoroutineFinalized, "coroutine %q is finalized", co.name)
	}

	if int(co.total.Get()) < co.capacity {
		s := co.newSlot()
		co.gate.Release()
		return s, nil
	}
	co.gate.Release()

	select {
	case s := <-co.idle:
		return s, nil
	case <-co.quit:
		return nil, errors.Wrap(ErrCoroutineFinalized, "coroutine %q is finalized", co.name)
	case <-ctx.Done():
		return nil, errors.WrapOnly(ctx.Err())
	}
}

// release parks giving slot back into the rotation.
func (co *CoroutineImpl) release(s *slot) {
	select {
	case co.idle <- s:
	default:
	}
}

// newSlot spawns a slot goroutine. Callers must hold the gate.
func (co *CoroutineImpl) newSlot() *slot {
	work := co.work
	if co.spawn != nil {
		work = co.spawn()
	}

	s := &slot{id: xid.New(), pool: co, work: work, inbox: make(chan task)}
	s.tm.Go(s.run)

	co.total.Inc()
	co.sm.Lock()
	co.slots = append(co.slots, s)
	co.sm.Unlock()

	Publish(WorkerSpawned{ID: s.id.String(), Pool: co.name})
	return s
}

// send hands giving input to the slot's inbox, returning the pending
// result the slot will resolve.
func (co *CoroutineImpl) send(ctx context.Context, s *slot, input interface{}) (*PendingImpl, error) {
	res := NewPending()
	t := task{ctx: ctx, input: input, res: res}

	select {
	case s.inbox <- t:
		return res, nil
	case <-s.tm.Dying():
		return nil, errors.Wrap(ErrCoroutineFinalized, "worker %q is dead", s.id.String())
	case <-ctx.Done():
		return nil, errors.WrapOnly(ctx.Err())
	}
}

//***************************************************************************
// slot
//***************************************************************************

// task pairs one input with the pending result it's processing will
// resolve.
type task struct {
	ctx   context.Context
	input interface{}
	res   *PendingImpl
}

// slot is a single pool worker, one goroutine consuming one inbox.
type slot struct {
	id    xid.ID
	pool  *CoroutineImpl
	work  WorkFunc
	inbox chan task
	tm    tomb.Tomb
}

func (s *slot) run() error {
	for {
		select {
		case <-s.tm.Dying():
			return nil
		case t := <-s.inbox:
			s.process(t)
		}
	}
}

func (s *slot) process(t task) {
	if s.pool.invoker != nil {
		s.pool.invoker.InvokedProcessing(s.pool.name, t.input)
	}
	Publish(TaskProcessing{Pool: s.pool.name, Input: t.input, Time: time.Now()})

	output, err := s.invoke(t.ctx, t.input)
	if err != nil {
		if s.pool.invoker != nil {
			s.pool.invoker.InvokedFailed(s.pool.name, err)
		}

		s.pool.logs.Emit(ERROR, LogMsg("task failed").
			String("pool", s.pool.name).
			String("worker", s.id.String()).
			Err("error", err).Write())

		Publish(TaskFailed{ID: s.id.String(), Pool: s.pool.name, Err: err, Time: time.Now()})
		t.res.Reject(err)
		return
	}

	if s.pool.invoker != nil {
		s.pool.invoker.InvokedProcessed(s.pool.name, output)
	}
	Publish(TaskProcessed{Pool: s.pool.name, Output: output, Time: time.Now()})
	t.res.Resolve(output)
}

// invoke runs the slot's work function, containing panics as task
// failures so the slot survives them.
func (s *slot) invoke(ctx context.Context, input interface{}) (output interface{}, failure error) {
	defer func() {
		if reason := recover(); reason != nil {
			trace := make([]byte, stackBufferSize)
			trace = trace[:runtime.Stack(trace, false)]

			s.pool.logs.Emit(PANIC, LogMsg("task panicked").
				String("pool", s.pool.name).
				String("worker", s.id.String()).
				String("panic", fmt.Sprintf("%+v", reason)).
				QBytes("stack", trace).Write())

			failure = errors.Wrap(ErrTaskPanic, "task panicked with: %+v", reason)
		}
	}()
	return s.work(ctx, input)
}

//***************************************************************************
// WorkerImpl
//***************************************************************************

// WorkerImpl implements the Worker contract over an exclusively held
// slot. Tasks sent through it run in order on the same slot.
type WorkerImpl struct {
	src  *CoroutineImpl
	slot *slot

	rm       sync.Mutex
	released bool
}

// ID returns the unique id of the held slot.
func (w *WorkerImpl) ID() string {
	return w.slot.id.String()
}

// SendTask runs giving input on the held slot.
func (w *WorkerImpl) SendTask(ctx context.Context, input interface{}) (interface{}, error) {
	w.rm.Lock()
	if w.released {
		w.rm.Unlock()
		return nil, errors.Wrap(ErrWorkerReleased, "worker %q is released", w.slot.id.String())
	}
	w.rm.Unlock()

	if w.src.invoker != nil {
		w.src.invoker.InvokedRequest(w.src.name, input)
	}
	Publish(TaskRequested{Pool: w.src.name, Input: input, Time: time.Now()})

	res, err := w.src.send(ctx, w.slot, input)
	if err != nil {
		return nil, err
	}

	if waitErr := res.Wait(); waitErr != nil {
		return nil, waitErr
	}
	return res.Value(), nil
}

// Release returns the held slot to the pool rotation, a second call
// fails with ErrWorkerReleased.
func (w *WorkerImpl) Release() error {
	w.rm.Lock()
	if w.released {
		w.rm.Unlock()
		return errors.Wrap(ErrWorkerReleased, "worker %q is released", w.slot.id.String())
	}
	w.released = true
	w.rm.Unlock()

	Publish(WorkerReleased{ID: w.slot.id.String(), Pool: w.src.name})
	w.src.release(w.slot)
	return nil
}

//***************************************************************************
// CascadeImpl
//***************************************************************************

// CascadeImpl chains coroutines into one Coroutine, each stage's
// output feeding the next stage's input. An empty cascade is the
// identity.
type CascadeImpl struct {
	id     xid.ID
	name   string
	logs   Logs
	stages []Coroutine
}

// Cascade returns a new instance of CascadeImpl over giving stages.
func Cascade(name string, stages ...Coroutine) *CascadeImpl {
	return &CascadeImpl{
		id:     xid.New(),
		name:   name,
		logs:   DrainLog{},
		stages: stages,
	}
}

// UseLogs sets the logger to be used by the cascade.
func (ca *CascadeImpl) UseLogs(logs Logs) *CascadeImpl {
	if logs != nil {
		ca.logs = logs
	}
	return ca
}

// ID returns the unique id of giving cascade.
func (ca *CascadeImpl) ID() string {
	return ca.id.String()
}

// Name returns the name of giving cascade.
func (ca *CascadeImpl) Name() string {
	return ca.name
}

// ProcessTask threads giving input through every stage in order,
// failing fast on the first stage error.
func (ca *CascadeImpl) ProcessTask(ctx context.Context, input interface{}) (interface{}, error) {
	value := input
	for index, stage := range ca.stages {
		output, err := stage.ProcessTask(ctx, value)
		if err != nil {
			return nil, errors.Wrap(err, "cascade %q failed at stage %d", ca.name, index)
		}
		value = output
	}
	return value, nil
}

// Hire reserves one worker from every stage, returning a worker which
// threads tasks through all of them. Failure to hire any stage
// releases those already held.
func (ca *CascadeImpl) Hire(ctx context.Context) (Worker, error) {
	workers := make([]Worker, 0, len(ca.stages))
	for _, stage := range ca.stages {
		w, err := stage.Hire(ctx)
		if err != nil {
			for _, held := range workers {
				if relErr := held.Release(); relErr != nil {
					ca.logs.Emit(ERROR, LogMsg("cascade worker release failed").
						String("cascade", ca.name).
						Err("error", relErr).Write())
				}
			}
			return nil, err
		}
		workers = append(workers, w)
	}

	return &cascadeWorker{id: xid.New(), src: ca, workers: workers}, nil
}

// Finalize finalizes every stage even when earlier stages fail,
// returning the first failure seen.
func (ca *CascadeImpl) Finalize() error {
	var failure error
	for index, stage := range ca.stages {
		if err := stage.Finalize(); err != nil {
			ca.logs.Emit(ERROR, LogMsg("cascade stage finalize failed").
				String("cascade", ca.name).
				Int("stage", index).
				Err("error", err).Write())

			if failure == nil {
				failure = err
			}
		}
	}

	Publish(CoroutineFinalized{ID: ca.id.String(), Name: ca.name})
	return failure
}

// cascadeWorker holds one hired worker per cascade stage.
type cascadeWorker struct {
	id      xid.ID
	src     *CascadeImpl
	workers []Worker

	rm       sync.Mutex
	released bool
}

// ID returns the unique id of giving worker.
func (cw *cascadeWorker) ID() string {
	return cw.id.String()
}

// SendTask threads giving input through the held stage workers.
func (cw *cascadeWorker) SendTask(ctx context.Context, input interface{}) (interface{}, error) {
	cw.rm.Lock()
	if cw.released {
		cw.rm.Unlock()
		return nil, errors.Wrap(ErrWorkerReleased, "worker %q is released", cw.id.String())
	}
	cw.rm.Unlock()

	value := input
	for index, w := range cw.workers {
		output, err := w.SendTask(ctx, value)
		if err != nil {
			return nil, errors.Wrap(err, "cascade %q failed at stage %d", cw.src.name, index)
		}
		value = output
	}
	return value, nil
}

// Release returns every held stage worker to it's pool, a second call
// fails with ErrWorkerReleased.
func (cw *cascadeWorker) Release() error {
	cw.rm.Lock()
	if cw.released {
		cw.rm.Unlock()
		return errors.Wrap(ErrWorkerReleased, "worker %q is released", cw.id.String())
	}
	cw.released = true
	cw.rm.Unlock()

	var failure error
	for _, w := range cw.workers {
		if err := w.Release(); err != nil && failure == nil {
			failure = err
		}
	}
	return failure
}
