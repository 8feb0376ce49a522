// Package lock serializes pipeline invocations that may overlap, such as the
// inbox watcher, the HTTP trigger and manual CLI taps.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned when the lock could not be taken within the wait.
var ErrHeld = errors.New("pipeline lock held by another invocation")

const defaultPoll = 50 * time.Millisecond

// Backend is a cross-process mutual exclusion primitive.
type Backend interface {
	// TryAcquire takes the lock without waiting. Returns false if it is held.
	TryAcquire(ctx context.Context) (bool, error)

	// Release gives the lock up if this holder still owns it.
	Release(ctx context.Context) error
}

// Lock pairs an in-process mutex with a cross-process backend.
type Lock struct {
	slot    chan struct{}
	backend Backend
	wait    time.Duration
	poll    time.Duration
}

// New creates a Lock that waits up to wait for both layers.
func New(backend Backend, wait time.Duration) *Lock {
	return &Lock{
		slot:    make(chan struct{}, 1),
		backend: backend,
		wait:    wait,
		poll:    defaultPoll,
	}
}

// Acquire blocks until the lock is held, the wait elapses (ErrHeld) or ctx
// is done. The returned release func is safe to call more than once.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case l.slot <- struct{}{}:
	case <-timer.C:
		return nil, ErrHeld
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		ok, err := l.backend.TryAcquire(ctx)
		if err != nil {
			<-l.slot
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-time.After(l.poll):
		case <-timer.C:
			<-l.slot
			return nil, ErrHeld
		case <-ctx.Done():
			<-l.slot
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.backend.Release(ctx)
			<-l.slot
		})
	}, nil
}

// Nop is a Backend for single-process use where the mutex suffices.
type Nop struct{}

func (Nop) TryAcquire(ctx context.Context) (bool, error) { return true, nil }

func (Nop) Release(ctx context.Context) error { return nil }
