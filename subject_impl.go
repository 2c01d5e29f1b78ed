package streamkit

var _ Subject = (*SubjectImpl)(nil)

//***************************************************************************
// SubjectOption
//***************************************************************************

// subjectConfig holds construction options for a SubjectImpl.
type subjectConfig struct {
	logs       Logs
	invoker    BufferInvoker
	initial    []interface{}
	hasInitial bool
}

// init initializes giving config to reasonable defaults.
func (sc *subjectConfig) init() {
	if sc.logs == nil {
		sc.logs = DrainLog{}
	}
}

// SubjectOption defines a function type to modify a subject's
// configuration during construction.
type SubjectOption func(*subjectConfig)

// SubjectLogs sets the logger to be used by the subject.
func SubjectLogs(logs Logs) SubjectOption {
	return func(sc *subjectConfig) {
		sc.logs = logs
	}
}

// SubjectInvoker sets the invoker notified of the subject buffer's
// write, read and eviction activity.
func SubjectInvoker(in BufferInvoker) SubjectOption {
	return func(sc *subjectConfig) {
		sc.invoker = in
	}
}

// InitialValue seeds a behavior subject with giving value, a nil value
// seeds nil. Without this option a behavior subject starts empty and
// readers block till it's first write.
func InitialValue(v interface{}) SubjectOption {
	return func(sc *subjectConfig) {
		sc.initial = append(sc.initial, v)
		sc.hasInitial = true
	}
}

//***************************************************************************
// SubjectImpl
//***************************************************************************

// SubjectImpl implements the Subject contract, a hot stream whose
// values are pushed through it's Sink side and multicast to all
// iterators through a single retention buffer. Each constructor picks
// the buffer's retention, once failed or closed the subject rejects
// further writes and it's readers drain to the terminal result.
type SubjectImpl struct {
	name   string
	logs   Logs
	buffer *Buffer
	view   *StreamImpl
}

// NewSubject returns a new instance of SubjectImpl with tail
// retention, values are kept till every attached reader has consumed
// them and readers attached later only observe later writes.
func NewSubject(name string, ops ...SubjectOption) *SubjectImpl {
	var conf subjectConfig
	for _, op := range ops {
		op(&conf)
	}
	conf.init()

	return newSubject(name, NewBuffer(conf.invoker), conf)
}

// NewBehaviorSubject returns a new instance of SubjectImpl which
// retains it's most recent value for every fresh reader, seeded
// through InitialValue when provided.
func NewBehaviorSubject(name string, ops ...SubjectOption) *SubjectImpl {
	var conf subjectConfig
	for _, op := range ops {
		op(&conf)
	}
	conf.init()

	if conf.hasInitial {
		return newSubject(name, NewBehaviorBuffer(conf.invoker, conf.initial...), conf)
	}
	return newSubject(name, NewBehaviorBuffer(conf.invoker), conf)
}

// NewReplaySubject returns a new instance of SubjectImpl which replays
// the last window written values to every fresh reader, a window below
// zero replays everything.
func NewReplaySubject(name string, window int, ops ...SubjectOption) *SubjectImpl {
	var conf subjectConfig
	for _, op := range ops {
		op(&conf)
	}
	conf.init()

	return newSubject(name, NewReplayBuffer(window, conf.invoker), conf)
}

func newSubject(name string, buffer *Buffer, conf subjectConfig) *SubjectImpl {
	sb := &SubjectImpl{
		name:   name,
		logs:   conf.logs,
		buffer: buffer,
	}

	sb.view = NewStream(name, sb.reader, WithLogs(conf.logs))
	return sb
}

// reader attaches a fresh cursor to the subject's buffer.
func (sb *SubjectImpl) reader() Iterator {
	cursor := sb.buffer.AttachReader()
	return &bufferIterator{src: sb.buffer, cursor: cursor}
}

// Name returns the name of giving subject.
func (sb *SubjectImpl) Name() string {
	return sb.name
}

// ID returns the unique id of giving subject.
func (sb *SubjectImpl) ID() string {
	return sb.view.ID()
}

// Completed returns true/false if giving subject has being failed or
// closed.
func (sb *SubjectImpl) Completed() bool {
	return sb.buffer.Closed()
}

// Iterate returns a new Iterator over the subject's values from it's
// retention point onward.
func (sb *SubjectImpl) Iterate() Iterator {
	return sb.view.Iterate()
}

// Subscribe drives giving subscriber from a fresh reader of the
// subject.
func (sb *SubjectImpl) Subscribe(sub Subscriber) (Subscription, error) {
	return sb.view.Subscribe(sub)
}

// Pipe returns a new Stream applying giving operators over the
// subject's readers.
func (sb *SubjectImpl) Pipe(ops ...Operator) Stream {
	return sb.view.Pipe(ops...)
}

// Watch adds giving function into the subject's event stream.
func (sb *SubjectImpl) Watch(fn func(interface{})) Subscription {
	return sb.view.Watch(fn)
}

// Write pushes giving value to all readers of the subject.
func (sb *SubjectImpl) Write(v interface{}) error {
	return sb.buffer.Write(v)
}

// Fail ends giving subject with provided error, readers drain retained
// values then observe the error.
func (sb *SubjectImpl) Fail(err error) error {
	if failErr := sb.buffer.Fail(err); failErr != nil {
		return failErr
	}

	terminal := sb.buffer.Failure()
	sb.logs.Emit(WARN, LogMsg("subject failed").
		String("subject", sb.name).
		Err("error", terminal).Write())

	ev := SubjectClosed{ID: sb.view.ID(), Name: sb.name, Err: terminal}
	sb.view.events.Publish(ev)
	Publish(ev)
	return nil
}

// Close ends giving subject normally, readers drain retained values
// then observe ErrEnded.
func (sb *SubjectImpl) Close() error {
	if closeErr := sb.buffer.Close(); closeErr != nil {
		return closeErr
	}

	ev := SubjectClosed{ID: sb.view.ID(), Name: sb.name}
	sb.view.events.Publish(ev)
	Publish(ev)
	return nil
}
