package streamkit

import (
	"context"
	"sync"

	"github.com/gokit/errors"
	"github.com/gokit/xid"
)

//***************************************************************************
// Operator
//***************************************************************************

// Operator transforms one Iterator into another, it is the unit of
// composition for Stream.Pipe. Operators never see a source again
// after it's terminal result, the pipeline seals every stage.
type Operator struct {
	name  string
	apply func(Iterator) Iterator
}

// NewOperator returns a new instance of an Operator using giving
// function as it's transformation.
func NewOperator(name string, apply func(Iterator) Iterator) Operator {
	return Operator{name: name, apply: apply}
}

// Name returns the name of giving operator.
func (op Operator) Name() string {
	return op.name
}

// Apply runs giving operator's transformation over provided source.
func (op Operator) Apply(src Iterator) Iterator {
	return op.apply(src)
}

// pipeIterator composes giving operators over the source left to
// right, sealing each stage so no stage can pull it's upstream past a
// terminal result.
func pipeIterator(src Iterator, ops []Operator) Iterator {
	it := sealIterator(src)
	for _, op := range ops {
		it = sealIterator(op.Apply(it))
	}
	return it
}

//***************************************************************************
// sealedIterator
//***************************************************************************

// isCanceled returns true/false if giving error is a context
// cancellation rather than a terminal result of a source.
func isCanceled(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// sealedIterator enforces the terminal contract over any Iterator:
// after the first terminal result every further Next returns ErrEnded
// without touching the underlying source again. Context cancellations
// pass through without sealing, the source may still produce.
type sealedIterator struct {
	src Iterator

	mu   sync.Mutex
	done bool
}

// sealIterator wraps giving iterator with the terminal seal, already
// sealed iterators are returned as they are.
func sealIterator(src Iterator) Iterator {
	if _, sealed := src.(*sealedIterator); sealed {
		return src
	}
	return &sealedIterator{src: src}
}

// Next pulls the next item from the underlying source.
func (s *sealedIterator) Next(ctx context.Context) (Item, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return Item{}, errors.WrapOnly(ErrEnded)
	}
	s.mu.Unlock()

	item, err := s.src.Next(ctx)
	if err != nil {
		if !isCanceled(err) {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
		}
		return Item{}, err
	}
	return item, nil
}

// Stop ends giving iterator, sealing it and stopping the source.
func (s *sealedIterator) Stop() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	s.mu.Unlock()

	return s.src.Stop()
}

//***************************************************************************
// IterFunc
//***************************************************************************

// IterFunc adapts a pair of functions into the Iterator contract.
type IterFunc struct {
	NextFn func(context.Context) (Item, error)
	StopFn func() error
}

// Next invokes the next function.
func (it IterFunc) Next(ctx context.Context) (Item, error) {
	return it.NextFn(ctx)
}

// Stop invokes the stop function if provided.
func (it IterFunc) Stop() error {
	if it.StopFn == nil {
		return nil
	}
	return it.StopFn()
}

//***************************************************************************
// IterSet
//***************************************************************************

// IterSet implements a concurrency safe collection of live iterators,
// tracking inner sources spawned by flattening operators so they can
// be stopped as one.
type IterSet struct {
	ml    sync.Mutex
	items map[string]Iterator
}

// NewIterSet returns a new instance of IterSet.
func NewIterSet() *IterSet {
	return &IterSet{items: map[string]Iterator{}}
}

// Add stores giving iterator, returning the key for removal.
func (set *IterSet) Add(it Iterator) string {
	key := xid.New().String()

	set.ml.Lock()
	set.items[key] = it
	set.ml.Unlock()
	return key
}

// Delete removes the iterator stored under giving key.
func (set *IterSet) Delete(key string) {
	set.ml.Lock()
	delete(set.items, key)
	set.ml.Unlock()
}

// Total returns current count of stored iterators.
func (set *IterSet) Total() int {
	set.ml.Lock()
	defer set.ml.Unlock()
	return len(set.items)
}

// StopAll stops every stored iterator, clearing the set and returning
// the first stop failure seen.
func (set *IterSet) StopAll() error {
	set.ml.Lock()
	items := set.items
	set.items = map[string]Iterator{}
	set.ml.Unlock()

	var failure error
	for _, it := range items {
		if err := it.Stop(); err != nil && failure == nil {
			failure = err
		}
	}
	return failure
}
