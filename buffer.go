package streamkit

import (
	"context"
	"sync"

	"github.com/gokit/errors"
	"github.com/gokit/xid"
)

// errors ...
var (
	ErrEnded        = errors.New("source has ended")
	ErrBufferClosed = errors.New("buffer is closed")
	ErrNoCursor     = errors.New("cursor is not attached")
)

var _ Sink = (*Buffer)(nil)

// Retention defines a int type to represent a giving retention policy.
type Retention int

// constants.
const (
	// RetainTail keeps every value till all attached cursors have
	// consumed it. With no cursor attached values are kept till the
	// first one arrives.
	RetainTail Retention = iota

	// RetainLast keeps only the most recent value, every freshly
	// attached cursor reads it immediately.
	RetainLast

	// RetainWindow keeps the last N written values regardless of
	// cursor positions, late cursors replay exactly those.
	RetainWindow
)

// Buffer implements a multi-reader value store safe for concurrent use
// across go-routines. Values are written once and consumed by each
// attached ReadCursor independently at it's own pace, with storage
// governed by the buffer's Retention policy. Once failed or closed the
// buffer is terminal, attached cursors drain whatever the policy still
// retains and then observe the terminal result forever.
type Buffer struct {
	id      xid.ID
	policy  Retention
	window  int
	invoker BufferInvoker

	bm      sync.Mutex
	store   []interface{}
	base    uint64
	next    uint64
	closed  bool
	failure error
	cursors []*ReadCursor
	waiters []chan struct{}
}

// NewBuffer returns a new instance of a Buffer with tail retention.
func NewBuffer(invoker BufferInvoker) *Buffer {
	return &Buffer{
		id:      xid.New(),
		policy:  RetainTail,
		window:  -1,
		invoker: invoker,
	}
}

// NewBehaviorBuffer returns a new instance of a Buffer which always
// retains it's most recent value. When one or more initial values are
// provided the last becomes the buffer's current value, a nil initial
// value is a value like any other. With no initial value the buffer
// starts empty and fresh cursors block till the first write.
func NewBehaviorBuffer(invoker BufferInvoker, initial ...interface{}) *Buffer {
	bb := &Buffer{
		id:      xid.New(),
		policy:  RetainLast,
		window:  -1,
		invoker: invoker,
	}

	for _, value := range initial {
		bb.Write(value)
	}
	return bb
}

// NewReplayBuffer returns a new instance of a Buffer retaining the last
// window written values for replay to late cursors. A window value
// below zero retains everything.
func NewReplayBuffer(window int, invoker BufferInvoker) *Buffer {
	return &Buffer{
		id:      xid.New(),
		policy:  RetainWindow,
		window:  window,
		invoker: invoker,
	}
}

// ID returns the unique id of giving buffer.
func (b *Buffer) ID() string {
	return b.id.String()
}

// AttachReader returns a new ReadCursor attached to giving buffer,
// positioned at the oldest value the retention policy still holds.
func (b *Buffer) AttachReader() *ReadCursor {
	b.bm.Lock()
	rc := &ReadCursor{id: xid.New(), src: b, pos: b.base}
	b.cursors = append(b.cursors, rc)
	b.bm.Unlock()

	if b.invoker != nil {
		b.invoker.InvokedAttached(rc.id.String())
	}
	return rc
}

// DetachReader removes giving cursor from the buffer, releasing any
// values only it was holding back and waking reads blocked on it.
func (b *Buffer) DetachReader(rc *ReadCursor) {
	b.bm.Lock()
	if rc.detached {
		b.bm.Unlock()
		return
	}

	rc.detached = true
	for i, cursor := range b.cursors {
		if cursor == rc {
			b.cursors = append(b.cursors[:i], b.cursors[i+1:]...)
			break
		}
	}

	evicted := b.trim()
	waiters := b.takeWaiters()
	b.bm.Unlock()

	b.invokeDropped(evicted)
	if b.invoker != nil {
		b.invoker.InvokedDetached(rc.id.String())
	}
	for _, w := range waiters {
		close(w)
	}
}

// Write appends giving value to the buffer, waking blocked readers.
// It fails with ErrBufferClosed once the buffer is terminal.
func (b *Buffer) Write(v interface{}) error {
	b.bm.Lock()
	if b.closed {
		b.bm.Unlock()
		return errors.Wrap(ErrBufferClosed, "buffer %q is closed", b.id.String())
	}

	b.store = append(b.store, v)
	b.next++
	evicted := b.trim()
	waiters := b.takeWaiters()
	b.bm.Unlock()

	if b.invoker != nil {
		b.invoker.InvokedWrite(v)
	}
	b.invokeDropped(evicted)

	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Fail ends giving buffer with provided error, waking blocked readers.
// Retained values stay readable, after draining them every cursor
// observes the giving error. A nil error is recorded as a plain failure.
func (b *Buffer) Fail(err error) error {
	if err == nil {
		err = errors.New("buffer failed with no reason")
	}

	b.bm.Lock()
	if b.closed {
		b.bm.Unlock()
		return errors.Wrap(ErrBufferClosed, "buffer %q is closed", b.id.String())
	}

	b.closed = true
	b.failure = err
	waiters := b.takeWaiters()
	b.bm.Unlock()

	if b.invoker != nil {
		b.invoker.InvokedTerminal(err)
	}
	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Close ends giving buffer normally, waking blocked readers. Retained
// values stay readable, after draining them every cursor observes
// ErrEnded.
func (b *Buffer) Close() error {
	b.bm.Lock()
	if b.closed {
		b.bm.Unlock()
		return errors.Wrap(ErrBufferClosed, "buffer %q is closed", b.id.String())
	}

	b.closed = true
	waiters := b.takeWaiters()
	b.bm.Unlock()

	if b.invoker != nil {
		b.invoker.InvokedTerminal(nil)
	}
	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Read returns the next value for giving cursor, blocking till a value
// arrives, the buffer terminates or giving context expires. Reads on a
// terminal drained buffer keep returning the terminal result.
func (b *Buffer) Read(ctx context.Context, rc *ReadCursor) (Item, error) {
	for {
		b.bm.Lock()
		if rc.detached {
			b.bm.Unlock()
			return Item{}, errors.Wrap(ErrNoCursor, "cursor %q is detached", rc.id.String())
		}

		if rc.pos < b.base {
			rc.pos = b.base
		}

		if rc.pos < b.next {
			v := b.store[rc.pos-b.base]
			rc.pos++
			evicted := b.trim()
			b.bm.Unlock()

			if b.invoker != nil {
				b.invoker.InvokedRead(v)
			}
			b.invokeDropped(evicted)
			return Item{Value: v}, nil
		}

		if b.closed {
			rc.done = true
			failure := b.failure
			b.bm.Unlock()

			if failure != nil {
				return Item{}, errors.WrapOnly(failure)
			}
			return Item{}, errors.WrapOnly(ErrEnded)
		}

		wait := make(chan struct{})
		b.waiters = append(b.waiters, wait)
		b.bm.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			b.dropWaiter(wait)
			return Item{}, errors.WrapOnly(ctx.Err())
		}
	}
}

// Peek reports the value giving cursor would read next without
// consuming it, it never blocks. The bool result is false while
// nothing is ready for the cursor.
func (b *Buffer) Peek(rc *ReadCursor) (Item, bool) {
	b.bm.Lock()
	defer b.bm.Unlock()

	if rc.detached {
		return Item{}, false
	}

	pos := rc.pos
	if pos < b.base {
		pos = b.base
	}
	if pos < b.next {
		return Item{Value: b.store[pos-b.base]}, true
	}
	return Item{}, false
}

// Completed returns true/false if giving cursor has consumed the
// buffer's terminal result, not merely whether the buffer terminated.
func (b *Buffer) Completed(rc *ReadCursor) bool {
	b.bm.Lock()
	defer b.bm.Unlock()
	return rc.done
}

// Closed returns true/false if giving buffer has terminated.
func (b *Buffer) Closed() bool {
	b.bm.Lock()
	defer b.bm.Unlock()
	return b.closed
}

// Failure returns the error giving buffer terminated with, if any.
func (b *Buffer) Failure() error {
	b.bm.Lock()
	defer b.bm.Unlock()
	return b.failure
}

// Total returns current count of retained values.
func (b *Buffer) Total() int {
	b.bm.Lock()
	defer b.bm.Unlock()
	return len(b.store)
}

// Readers returns current count of attached cursors.
func (b *Buffer) Readers() int {
	b.bm.Lock()
	defer b.bm.Unlock()
	return len(b.cursors)
}

// trim evicts values per the retention policy, returning the evicted
// values. Callers must hold bm.
func (b *Buffer) trim() []interface{} {
	switch b.policy {
	case RetainTail:
		if len(b.cursors) == 0 {
			return nil
		}

		min := b.next
		for _, rc := range b.cursors {
			if rc.pos < min {
				min = rc.pos
			}
		}
		return b.drop(min)
	case RetainLast:
		if b.next > b.base+1 {
			return b.drop(b.next - 1)
		}
	case RetainWindow:
		if b.window >= 0 && len(b.store) > b.window {
			return b.drop(b.next - uint64(b.window))
		}
	}
	return nil
}

// drop discards values below giving position. Callers must hold bm.
func (b *Buffer) drop(to uint64) []interface{} {
	if to <= b.base {
		return nil
	}

	n := to - b.base
	evicted := make([]interface{}, n)
	copy(evicted, b.store[:n])

	b.store = b.store[n:]
	b.base = to
	return evicted
}

func (b *Buffer) invokeDropped(evicted []interface{}) {
	if b.invoker == nil {
		return
	}
	for _, v := range evicted {
		b.invoker.InvokedDropped(v)
	}
}

func (b *Buffer) takeWaiters() []chan struct{} {
	waiters := b.waiters
	b.waiters = nil
	return waiters
}

func (b *Buffer) dropWaiter(w chan struct{}) {
	b.bm.Lock()
	for i, c := range b.waiters {
		if c == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			break
		}
	}
	b.bm.Unlock()
}

//***************************************************************************
// ReadCursor
//***************************************************************************

// ReadCursor tracks a single reader's position within a Buffer. Every
// cursor consumes values strictly in write order and never sees the
// same value twice.
type ReadCursor struct {
	id       xid.ID
	src      *Buffer
	pos      uint64
	done     bool
	detached bool
}

// ID returns the unique id of giving cursor.
func (rc *ReadCursor) ID() string {
	return rc.id.String()
}

//***************************************************************************
// bufferIterator
//***************************************************************************

// bufferIterator adapts a Buffer read cursor into the Iterator contract.
type bufferIterator struct {
	src     *Buffer
	cursor  *ReadCursor
	stopped AtomicBool
}

// Next reads the cursor's next value, mapping the buffer's terminal
// results into the iterator contract.
func (b *bufferIterator) Next(ctx context.Context) (Item, error) {
	if b.stopped.IsTrue() {
		return Item{}, errors.WrapOnly(ErrEnded)
	}

	item, err := b.src.Read(ctx, b.cursor)
	if err != nil {
		if errors.IsAny(err, ErrNoCursor) {
			return Item{}, errors.WrapOnly(ErrEnded)
		}
		return Item{}, err
	}
	return item, nil
}

// Stop detaches the cursor, ending this iteration without affecting
// other readers of the buffer.
func (b *bufferIterator) Stop() error {
	if b.stopped.IsTrue() {
		return nil
	}

	b.stopped.On()
	b.src.DetachReader(b.cursor)
	return nil
}
