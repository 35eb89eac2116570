// Package stream provides generic combinators over channel-backed sequences.
//
// Every combinator starts one goroutine that stops when its input closes or
// ctx is cancelled, and closes its output channel on exit. Consumers that
// stop reading early must cancel ctx.
package stream

import (
	"context"
	"reflect"
)

// Merge interleaves items from all sources as they become ready.
//
// Each source keeps one pending receive in a select set; whichever source is
// ready first is forwarded and stays armed for its next item. Exhausted
// sources leave the set and the output closes once every source is done.
// Order across sources is unspecified; order within a source is preserved.
func Merge[T any](ctx context.Context, srcs ...<-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)

		cases := make([]reflect.SelectCase, 0, len(srcs)+1)
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})
		for _, src := range srcs {
			if src == nil {
				continue
			}
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(src)})
		}

		for len(cases) > 1 {
			i, v, ok := reflect.Select(cases)
			if i == 0 {
				return
			}
			if !ok {
				cases = append(cases[:i], cases[i+1:]...)
				continue
			}
			var item T
			if x := v.Interface(); x != nil {
				item = x.(T)
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Map applies fn to every item of src.
func Map[T, U any](ctx context.Context, src <-chan T, fn func(T) U) <-chan U {
	out := make(chan U)
	go func() {
		defer close(out)
		for item := range src {
			select {
			case out <- fn(item):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Filter forwards the items of src for which keep returns true.
func Filter[T any](ctx context.Context, src <-chan T, keep func(T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for item := range src {
			if !keep(item) {
				continue
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Collect drains src into a slice. It returns early with ctx.Err() if ctx
// ends first.
func Collect[T any](ctx context.Context, src <-chan T) ([]T, error) {
	var items []T
	for {
		select {
		case item, ok := <-src:
			if !ok {
				return items, nil
			}
			items = append(items, item)
		case <-ctx.Done():
			return items, ctx.Err()
		}
	}
}

// FromSlice returns a channel that yields items in order and then closes.
func FromSlice[T any](ctx context.Context, items []T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, item := range items {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
