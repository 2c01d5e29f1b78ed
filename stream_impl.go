package streamkit

import (
	"context"
	"strings"
	"sync"

	"github.com/gokit/errors"
	"github.com/gokit/es"
	"github.com/gokit/xid"
	"gopkg.in/tomb.v2"
)

// errors ...
var (
	ErrNoFactory     = errors.New("stream has no source factory")
	ErrNilSubscriber = errors.New("subscriber is nil")
)

var _ Stream = (*StreamImpl)(nil)

//***************************************************************************
// StreamOption
//***************************************************************************

// StreamOption defines a function type to modify a giving StreamImpl
// during construction.
type StreamOption func(*StreamImpl)

// WithLogs sets the logger to be used by the stream.
func WithLogs(logs Logs) StreamOption {
	return func(st *StreamImpl) {
		if logs != nil {
			st.logs = logs
		}
	}
}

// WithContextLogs resolves the stream's logger from giving ContextLogs
// using the stream's name.
func WithContextLogs(logs ContextLogs) StreamOption {
	return func(st *StreamImpl) {
		if logs != nil {
			st.logs = logs.Get(st.name)
		}
	}
}

// WithInterceptor wraps every iterator the stream hands out with
// giving interceptor.
func WithInterceptor(in Interceptor) StreamOption {
	return func(st *StreamImpl) {
		st.interceptor = in
	}
}

// WithStreamInvoker sets the invoker notified of the stream's
// iteration lifecycle.
func WithStreamInvoker(in StreamInvoker) StreamOption {
	return func(st *StreamImpl) {
		st.invoker = in
	}
}

// Shared switches the stream to run it's source once, multicasting
// values to all iterators through a single tail-retained buffer. The
// source starts on the first Iterate and later iterators only observe
// values still retained for them.
func Shared() StreamOption {
	return func(st *StreamImpl) {
		st.shared = true
	}
}

//***************************************************************************
// StreamImpl
//***************************************************************************

// StreamImpl implements the Stream contract over an iterator factory.
// The stream is lazy, the factory only runs when an iterator is pulled
// through Iterate or Subscribe, and every iteration gets it's own
// source unless the stream is shared.
type StreamImpl struct {
	id      xid.ID
	name    string
	logs    Logs
	events  es.EventStream
	factory func() Iterator

	interceptor Interceptor
	invoker     StreamInvoker
	shared      bool

	cm        sync.Mutex
	completed bool
	endErr    error

	sharedOnce sync.Once
	sharedBuf  *Buffer
}

// NewStream returns a new instance of StreamImpl using giving factory
// as it's source of iterators.
func NewStream(name string, factory func() Iterator, ops ...StreamOption) *StreamImpl {
	st := &StreamImpl{
		id:      xid.New(),
		name:    name,
		logs:    DrainLog{},
		events:  es.New(),
		factory: factory,
	}

	for _, op := range ops {
		op(st)
	}

	Publish(StreamOpened{ID: st.id.String(), Name: st.name})
	return st
}

// NewValueStream returns a new instance of StreamImpl which yields
// giving values in order to every iterator.
func NewValueStream(name string, values ...interface{}) *StreamImpl {
	return NewStream(name, func() Iterator {
		var vm sync.Mutex
		var index int
		var stopped bool

		return IterFunc{
			NextFn: func(_ context.Context) (Item, error) {
				vm.Lock()
				defer vm.Unlock()

				if stopped || index >= len(values) {
					return Item{}, errors.WrapOnly(ErrEnded)
				}

				v := values[index]
				index++
				return Item{Value: v}, nil
			},
			StopFn: func() error {
				vm.Lock()
				defer vm.Unlock()
				stopped = true
				return nil
			},
		}
	})
}

// NewGeneratorStream returns a new instance of StreamImpl which runs
// giving body in it's own goroutine per iteration, values pushed into
// the provided Sink surface through the iterator. The body's context
// expires when the iterator is stopped, a nil return closes the
// stream, an error or panic fails it.
func NewGeneratorStream(name string, body func(context.Context, Sink) error, ops ...StreamOption) *StreamImpl {
	factory := func() Iterator {
		buf := NewBuffer(nil)
		cursor := buf.AttachReader()
		ctx, cancel := context.WithCancel(context.Background())

		var tm tomb.Tomb
		tm.Go(func() error {
			defer cancel()
			if err := runGenerator(ctx, buf, body); err != nil {
				buf.Fail(err)
				return nil
			}
			buf.Close()
			return nil
		})

		return IterFunc{
			NextFn: func(rctx context.Context) (Item, error) {
				return buf.Read(rctx, cursor)
			},
			StopFn: func() error {
				cancel()
				tm.Kill(nil)
				buf.DetachReader(cursor)
				if !buf.Closed() {
					buf.Close()
				}
				return nil
			},
		}
	}

	return NewStream(name, factory, ops...)
}

// runGenerator runs giving body, containing panics as stream failures.
func runGenerator(ctx context.Context, sink Sink, body func(context.Context, Sink) error) (failure error) {
	defer func() {
		if reason := recover(); reason != nil {
			failure = errors.New("generator panicked with: %+v", reason)
		}
	}()
	return body(ctx, sink)
}

// Name returns the name of giving stream.
func (st *StreamImpl) Name() string {
	return st.name
}

// ID returns the unique id of giving stream.
func (st *StreamImpl) ID() string {
	return st.id.String()
}

// Completed returns true/false if giving stream's source has reached
// it's terminal result.
func (st *StreamImpl) Completed() bool {
	st.cm.Lock()
	defer st.cm.Unlock()
	return st.completed
}

// Watch adds giving function into the stream's event stream, observing
// StreamCompleted when the source terminates.
func (st *StreamImpl) Watch(fn func(interface{})) Subscription {
	return st.events.Subscribe(fn)
}

// Iterate returns a new Iterator over the stream's values. For a cold
// stream every call starts a fresh source, for a shared stream all
// iterators feed from the single running source.
func (st *StreamImpl) Iterate() Iterator {
	if st.invoker != nil {
		st.invoker.InvokedIterate(st.name)
	}

	if st.shared {
		return st.sharedIterator()
	}
	return st.sourceIterator()
}

// Subscribe drives giving subscriber from a new iterator on it's own
// goroutine, delivering values and exactly one terminal signal. The
// returned subscription stops the drive and releases the iterator.
func (st *StreamImpl) Subscribe(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.WrapOnly(ErrNilSubscriber)
	}

	if st.invoker != nil {
		st.invoker.InvokedSubscribe(st.name)
	}

	it := st.Iterate()
	recv := NewReceiver(sub, st.logs)
	ctx, cancel := context.WithCancel(context.Background())

	var tm tomb.Tomb
	subr := NewSubscription(st.name, func() error {
		cancel()
		tm.Kill(nil)
		return it.Stop()
	}, st.logs)

	tm.Go(func() error {
		defer cancel()
		for {
			select {
			case <-tm.Dying():
				return nil
			default:
			}

			item, err := it.Next(ctx)
			if err != nil {
				if isCanceled(err) || subr.Stopped() {
					return nil
				}
				if errors.IsAny(err, ErrEnded) {
					recv.Complete()
				} else {
					recv.Error(err)
				}
				return nil
			}

			if item.Phantom {
				continue
			}
			if subr.Stopped() {
				return nil
			}
			recv.Next(item.Value)
		}
	})

	return subr, nil
}

// Pipe returns a new Stream applying giving operators over this
// stream's iterators in order. With no operators the stream itself is
// returned.
func (st *StreamImpl) Pipe(ops ...Operator) Stream {
	if len(ops) == 0 {
		return st
	}

	names := make([]string, 0, len(ops)+1)
	names = append(names, st.name)
	for _, op := range ops {
		names = append(names, op.Name())
	}

	src := st
	return NewStream(strings.Join(names, "/"), func() Iterator {
		return pipeIterator(src.Iterate(), ops)
	}, WithLogs(st.logs))
}

// sourceIterator builds a fresh sealed iterator from the factory,
// wrapped by the interceptor when one is set.
func (st *StreamImpl) sourceIterator() Iterator {
	if st.factory == nil {
		return IterFunc{
			NextFn: func(_ context.Context) (Item, error) {
				return Item{}, errors.WrapOnly(ErrNoFactory)
			},
		}
	}

	it := sealIterator(st.factory())
	if st.interceptor != nil {
		it = sealIterator(st.interceptor.InterceptIterator(st.name, it))
	}
	return &watchedIterator{src: it, st: st}
}

// sharedIterator attaches a new cursor to the multicast buffer,
// starting the single source pump on first use.
func (st *StreamImpl) sharedIterator() Iterator {
	st.sharedOnce.Do(func() {
		st.sharedBuf = NewBuffer(nil)
		waitTillRunned(st.pumpShared)
	})

	cursor := st.sharedBuf.AttachReader()
	return &bufferIterator{src: st.sharedBuf, cursor: cursor}
}

// pumpShared drains the source into the multicast buffer, phantom
// items are consumed here and never multicast.
func (st *StreamImpl) pumpShared() {
	it := st.sourceIterator()
	ctx := context.Background()

	for {
		item, err := it.Next(ctx)
		if err != nil {
			if errors.IsAny(err, ErrEnded) {
				st.sharedBuf.Close()
			} else {
				st.sharedBuf.Fail(err)
			}
			return
		}

		if item.Phantom {
			continue
		}

		if writeErr := st.sharedBuf.Write(item.Value); writeErr != nil {
			it.Stop()
			return
		}
	}
}

// markCompleted records the stream's terminal result once, publishing
// StreamCompleted on the stream's and the runtime's event streams.
func (st *StreamImpl) markCompleted(err error) {
	st.cm.Lock()
	if st.completed {
		st.cm.Unlock()
		return
	}

	var terminal error
	if !errors.IsAny(err, ErrEnded) {
		terminal = err
	}

	st.completed = true
	st.endErr = terminal
	st.cm.Unlock()

	st.logs.Emit(INFO, LogMsg("stream completed").
		String("stream", st.name).
		String("id", st.id.String()).
		Err("error", terminal).Write())

	ev := StreamCompleted{ID: st.id.String(), Name: st.name, Err: terminal}
	st.events.Publish(ev)
	Publish(ev)
}

//***************************************************************************
// watchedIterator
//***************************************************************************

// watchedIterator feeds the owning stream's terminal tracking and
// invoker from the pulls flowing through it.
type watchedIterator struct {
	src Iterator
	st  *StreamImpl
}

// Next pulls the next item, recording terminals on the stream.
func (w *watchedIterator) Next(ctx context.Context) (Item, error) {
	item, err := w.src.Next(ctx)
	if err != nil {
		if !isCanceled(err) {
			w.st.markCompleted(err)
		}
		return Item{}, err
	}

	if w.st.invoker != nil {
		if item.Phantom {
			w.st.invoker.InvokedPhantom(w.st.name)
		} else {
			w.st.invoker.InvokedPull(w.st.name, item)
		}
	}
	return item, nil
}

// Stop ends the underlying source.
func (w *watchedIterator) Stop() error {
	if w.st.invoker != nil {
		w.st.invoker.InvokedStop(w.st.name)
	}
	return w.src.Stop()
}
