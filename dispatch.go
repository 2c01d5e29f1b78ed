package streamkit

import (
	"context"
	"sync"

	"github.com/gokit/errors"
	"github.com/gokit/xid"
)

// errors ...
var (
	ErrNoMembers = errors.New("set has no members")
)

// DispatchStrategy defines a int type to represent how a coroutine
// set picks the member receiving a task.
type DispatchStrategy int

// constants.
const (
	// RoundRobinDispatch rotates tasks across members in index order.
	RoundRobinDispatch DispatchStrategy = iota

	// RandomDispatch picks a member at random per task.
	RandomDispatch

	// HashedDispatch picks members by consistent-hashing the task key,
	// the same key always lands on the same member while membership
	// holds.
	HashedDispatch
)

//***************************************************************************
// CoroutineSet
//***************************************************************************

// CoroutineSet groups coroutines offering the same service contract,
// dispatching each task to one member per it's strategy. Members may
// join and leave while the set is in use.
type CoroutineSet struct {
	id       xid.ID
	name     string
	strategy DispatchStrategy
	logs     Logs

	ml      sync.RWMutex
	members map[string]Coroutine
	robin   *RoundRobinSet
	random  *RandomSet
	hashed  *HashedSet
}

// NewCoroutineSet returns a new instance of CoroutineSet using giving
// strategy over provided members.
func NewCoroutineSet(name string, strategy DispatchStrategy, logs Logs, members ...Coroutine) *CoroutineSet {
	if logs == nil {
		logs = DrainLog{}
	}

	cs := &CoroutineSet{
		id:       xid.New(),
		name:     name,
		strategy: strategy,
		logs:     logs,
		members:  map[string]Coroutine{},
	}

	switch strategy {
	case RandomDispatch:
		cs.random = NewRandomSet()
	case HashedDispatch:
		cs.hashed = NewHashedSet(nil)
	default:
		cs.robin = NewRoundRobinSet()
	}

	for _, member := range members {
		cs.Add(member)
	}
	return cs
}

// ID returns the unique id of giving set.
func (cs *CoroutineSet) ID() string {
	return cs.id.String()
}

// Name returns the name of giving set.
func (cs *CoroutineSet) Name() string {
	return cs.name
}

// Total returns current count of members.
func (cs *CoroutineSet) Total() int {
	cs.ml.RLock()
	defer cs.ml.RUnlock()
	return len(cs.members)
}

// Add adds giving coroutine into the set's rotation.
func (cs *CoroutineSet) Add(member Coroutine) {
	cs.ml.Lock()
	defer cs.ml.Unlock()

	id := member.ID()
	if _, ok := cs.members[id]; ok {
		return
	}
	cs.members[id] = member

	switch cs.strategy {
	case RandomDispatch:
		cs.random.Add(id)
	case HashedDispatch:
		cs.hashed.Add(id)
	default:
		cs.robin.Add(id)
	}
}

// Remove removes giving coroutine from the set's rotation, it is not
// finalized.
func (cs *CoroutineSet) Remove(member Coroutine) {
	cs.ml.Lock()
	defer cs.ml.Unlock()

	id := member.ID()
	if _, ok := cs.members[id]; !ok {
		return
	}
	delete(cs.members, id)

	switch cs.strategy {
	case RandomDispatch:
		cs.random.Remove(id)
	case HashedDispatch:
		cs.hashed.Remove(id)
	default:
		cs.robin.Remove(id)
	}
}

// Dispatch runs giving input on the member picked for giving key,
// only hashed dispatch consults the key.
func (cs *CoroutineSet) Dispatch(ctx context.Context, key string, input interface{}) (interface{}, error) {
	member, err := cs.pick(key)
	if err != nil {
		return nil, err
	}
	return member.ProcessTask(ctx, input)
}

// Hire reserves a worker from the member picked for giving key.
func (cs *CoroutineSet) Hire(ctx context.Context, key string) (Worker, error) {
	member, err := cs.pick(key)
	if err != nil {
		return nil, err
	}
	return member.Hire(ctx)
}

// Finalize empties the set and finalizes every member, returning the
// first failure seen.
func (cs *CoroutineSet) Finalize() error {
	cs.ml.Lock()
	members := make([]Coroutine, 0, len(cs.members))
	for _, member := range cs.members {
		members = append(members, member)
	}
	cs.members = map[string]Coroutine{}

	switch cs.strategy {
	case RandomDispatch:
		cs.random = NewRandomSet()
	case HashedDispatch:
		cs.hashed = NewHashedSet(nil)
	default:
		cs.robin = NewRoundRobinSet()
	}
	cs.ml.Unlock()

	queue := NewOpQueue(cs.logs)
	waiters := make([]ErrWaiter, 0, len(members))
	for _, member := range members {
		waiters = append(waiters, queue.Push(member.Finalize))
	}

	var failure error
	for _, w := range waiters {
		if err := w.Wait(); err != nil && failure == nil {
			failure = err
		}
	}
	return failure
}

// pick returns the member the strategy selects for giving key.
func (cs *CoroutineSet) pick(key string) (Coroutine, error) {
	cs.ml.RLock()
	defer cs.ml.RUnlock()

	if len(cs.members) == 0 {
		return nil, errors.Wrap(ErrNoMembers, "set %q has no members", cs.name)
	}

	var id string
	switch cs.strategy {
	case RandomDispatch:
		id = cs.random.Get()
	case HashedDispatch:
		target, ok := cs.hashed.Get(key)
		if !ok {
			return nil, errors.Wrap(ErrNoMembers, "set %q has no member for key %q", cs.name, key)
		}
		id = target
	default:
		id = cs.robin.Get()
	}

	member, ok := cs.members[id]
	if !ok {
		return nil, errors.Wrap(ErrNoMembers, "set %q lost member %q", cs.name, id)
	}
	return member, nil
}
