// Package live holds single-slot latest-value broadcasters. A Value keeps the
// most recent state, replays it to every new subscriber and pushes each
// change to all current subscribers in subscription order.
package live

import (
	"context"
	"sync"
)

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Value is a latest-value broadcaster. Subscribers must not call Set,
// Update or Subscribe on the same Value from inside their callback.
type Value[T any] struct {
	deliver sync.Mutex // serializes emissions so subscribers see changes in order
	mu      sync.Mutex
	cur     T
	subs    []subscriber[T]
	nextID  uint64
}

// New returns a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial}
}

// Get returns the latest value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set stores x and notifies every subscriber.
func (v *Value[T]) Set(x T) {
	v.emit(func(T) T { return x })
}

// Update replaces the value with fn(current) and notifies subscribers.
func (v *Value[T]) Update(fn func(T) T) {
	v.emit(fn)
}

func (v *Value[T]) emit(next func(T) T) {
	v.deliver.Lock()
	defer v.deliver.Unlock()

	v.mu.Lock()
	x := next(v.cur)
	v.cur = x
	subs := make([]subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(x)
	}
}

// Subscribe registers fn, calls it immediately with the latest value and
// then on every change. The returned cancel func is idempotent.
func (v *Value[T]) Subscribe(fn func(T)) (cancel func()) {
	v.deliver.Lock()
	defer v.deliver.Unlock()

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})
	cur := v.cur
	v.mu.Unlock()

	fn(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			for i, s := range v.subs {
				if s.id == id {
					v.subs = append(v.subs[:i], v.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Changes delivers the latest value on a one-slot channel until ctx is done.
// A slow reader skips intermediate values but always sees the newest one.
// The channel is closed after ctx is done.
func (v *Value[T]) Changes(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	cancel := v.Subscribe(func(x T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- x
	})
	go func() {
		<-ctx.Done()
		cancel()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Map derives a Value that tracks fn(src). Call stop to detach it.
func Map[A, R any](src *Value[A], fn func(A) R) (derived *Value[R], stop func()) {
	derived = New(fn(src.Get()))
	stop = src.Subscribe(func(a A) {
		derived.Set(fn(a))
	})
	return derived, stop
}

// Combine derives a Value that tracks fn(a, b), recomputed whenever either
// input changes. The inputs are read under the derived Value's emission
// lock, so the last recomputation always sees the newest state of both.
func Combine[A, B, R any](a *Value[A], b *Value[B], fn func(A, B) R) (derived *Value[R], stop func()) {
	derived = New(fn(a.Get(), b.Get()))
	recompute := func() {
		derived.Update(func(R) R { return fn(a.Get(), b.Get()) })
	}
	stopA := a.Subscribe(func(A) { recompute() })
	stopB := b.Subscribe(func(B) { recompute() })
	return derived, func() {
		stopA()
		stopB()
	}
}
