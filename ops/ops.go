// Package ops provides the operator library for streamkit pipelines,
// each function returns a streamkit.Operator for use with Stream.Pipe.
package ops

import (
	"context"
	"sync"

	"github.com/gokit/errors"
	"github.com/gokit/streamkit"
)

// canceled returns true/false if giving error is a context
// cancellation rather than a terminal result.
func canceled(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// Map returns an operator transforming every value through giving
// function. A failure from the function stops the source and fails
// the pipeline with that error. Phantom items pass through untouched.
func Map(fn func(interface{}) (interface{}, error)) streamkit.Operator {
	return streamkit.NewOperator("map", func(src streamkit.Iterator) streamkit.Iterator {
		return streamkit.IterFunc{
			NextFn: func(ctx context.Context) (streamkit.Item, error) {
				item, err := src.Next(ctx)
				if err != nil {
					return streamkit.Item{}, err
				}
				if item.Phantom {
					return item, nil
				}

				out, mapErr := fn(item.Value)
				if mapErr != nil {
					src.Stop()
					return streamkit.Item{}, mapErr
				}
				return streamkit.Item{Value: out}, nil
			},
			StopFn: src.Stop,
		}
	})
}

// Filter returns an operator passing only values giving function
// accepts, rejected values surface as phantom items so pullers keep
// their cadence without seeing them.
func Filter(fn func(interface{}) bool) streamkit.Operator {
	return streamkit.NewOperator("filter", func(src streamkit.Iterator) streamkit.Iterator {
		return streamkit.IterFunc{
			NextFn: func(ctx context.Context) (streamkit.Item, error) {
				item, err := src.Next(ctx)
				if err != nil {
					return streamkit.Item{}, err
				}
				if item.Phantom {
					return item, nil
				}

				if !fn(item.Value) {
					return streamkit.PhantomItem(), nil
				}
				return item, nil
			},
			StopFn: src.Stop,
		}
	})
}

// Take returns an operator delivering the first n values then ending
// the pipeline, the source is stopped as soon as the nth value is
// delivered.
func Take(n int) streamkit.Operator {
	return streamkit.NewOperator("take", func(src streamkit.Iterator) streamkit.Iterator {
		var tm sync.Mutex
		var seen int

		return streamkit.IterFunc{
			NextFn: func(ctx context.Context) (streamkit.Item, error) {
				tm.Lock()
				if seen >= n {
					tm.Unlock()
					src.Stop()
					return streamkit.Item{}, errors.WrapOnly(streamkit.ErrEnded)
				}
				tm.Unlock()

				item, err := src.Next(ctx)
				if err != nil {
					return streamkit.Item{}, err
				}
				if item.Phantom {
					return item, nil
				}

				tm.Lock()
				seen++
				full := seen >= n
				tm.Unlock()

				if full {
					src.Stop()
				}
				return item, nil
			},
			StopFn: src.Stop,
		}
	})
}

// Scan returns an operator folding values through giving function,
// emitting the running accumulation for every value consumed.
func Scan(fn func(acc interface{}, v interface{}) interface{}, seed interface{}) streamkit.Operator {
	return streamkit.NewOperator("scan", func(src streamkit.Iterator) streamkit.Iterator {
		var sm sync.Mutex
		acc := seed

		return streamkit.IterFunc{
			NextFn: func(ctx context.Context) (streamkit.Item, error) {
				item, err := src.Next(ctx)
				if err != nil {
					return streamkit.Item{}, err
				}
				if item.Phantom {
					return item, nil
				}

				sm.Lock()
				acc = fn(acc, item.Value)
				current := acc
				sm.Unlock()
				return streamkit.Item{Value: current}, nil
			},
			StopFn: src.Stop,
		}
	})
}

// Reduce returns an operator folding the whole source through giving
// function, consumed values surface as phantom items and the final
// accumulation is emitted once when the source ends.
func Reduce(fn func(acc interface{}, v interface{}) interface{}, seed interface{}) streamkit.Operator {
	return streamkit.NewOperator("reduce", func(src streamkit.Iterator) streamkit.Iterator {
		var rm sync.Mutex
		acc := seed
		var delivered bool

		return streamkit.IterFunc{
			NextFn: func(ctx context.Context) (streamkit.Item, error) {
				rm.Lock()
				if delivered {
					rm.Unlock()
					return streamkit.Item{}, errors.WrapOnly(streamkit.ErrEnded)
				}
				rm.Unlock()

				item, err := src.Next(ctx)
				if err != nil {
					if errors.IsAny(err, streamkit.ErrEnded) {
						rm.Lock()
						delivered = true
						result := acc
						rm.Unlock()
						return streamkit.Item{Value: result}, nil
					}
					return streamkit.Item{}, err
				}
				if item.Phantom {
					return item, nil
				}

				rm.Lock()
				acc = fn(acc, item.Value)
				rm.Unlock()
				return streamkit.PhantomItem(), nil
			},
			StopFn: src.Stop,
		}
	})
}

// Tap returns an operator observing every value without changing it.
func Tap(fn func(interface{})) streamkit.Operator {
	return streamkit.NewOperator("tap", func(src streamkit.Iterator) streamkit.Iterator {
		return streamkit.IterFunc{
			NextFn: func(ctx context.Context) (streamkit.Item, error) {
				item, err := src.Next(ctx)
				if err != nil {
					return streamkit.Item{}, err
				}
				if !item.Phantom {
					fn(item.Value)
				}
				return item, nil
			},
			StopFn: src.Stop,
		}
	})
}

// MergeMap returns an operator mapping every value to a new stream
// and flattening all of them into one, values interleave in arrival
// order. The pipeline ends once the source and every inner stream
// have ended, any failure fails the whole pipeline and stops the
// rest.
func MergeMap(fn func(interface{}) streamkit.Stream) streamkit.Operator {
	return streamkit.NewOperator("mergeMap", func(src streamkit.Iterator) streamkit.Iterator {
		out := streamkit.NewBuffer(nil)
		cursor := out.AttachReader()
		inners := streamkit.NewIterSet()
		ctx, cancel := context.WithCancel(context.Background())

		var pending sync.WaitGroup

		pump := func(it streamkit.Iterator, key string) {
			defer pending.Done()
			defer inners.Delete(key)

			for {
				item, err := it.Next(ctx)
				if err != nil {
					if !errors.IsAny(err, streamkit.ErrEnded) && !canceled(err) {
						out.Fail(err)
						cancel()
					}
					return
				}
				if item.Phantom {
					continue
				}
				if writeErr := out.Write(item.Value); writeErr != nil {
					it.Stop()
					return
				}
			}
		}

		pending.Add(1)
		go func() {
			defer pending.Done()
			for {
				item, err := src.Next(ctx)
				if err != nil {
					if !errors.IsAny(err, streamkit.ErrEnded) && !canceled(err) {
						out.Fail(err)
						cancel()
					}
					return
				}
				if item.Phantom {
					continue
				}

				inner := fn(item.Value).Iterate()
				key := inners.Add(inner)
				pending.Add(1)
				go pump(inner, key)
			}
		}()

		go func() {
			pending.Wait()
			out.Close()
		}()

		return streamkit.IterFunc{
			NextFn: func(rctx context.Context) (streamkit.Item, error) {
				item, err := out.Read(rctx, cursor)
				if err != nil {
					if errors.IsAny(err, streamkit.ErrNoCursor) {
						return streamkit.Item{}, errors.WrapOnly(streamkit.ErrEnded)
					}
					return streamkit.Item{}, err
				}
				return item, nil
			},
			StopFn: func() error {
				cancel()
				stopErr := inners.StopAll()
				srcErr := src.Stop()
				out.DetachReader(cursor)

				if stopErr != nil {
					return stopErr
				}
				return srcErr
			},
		}
	})
}
