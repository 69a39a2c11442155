package lib

import (
	"context"
	"errors"
	"time"
)

var ErrTimeout = errors.New("lock timeout")

// Mutex is a channel-based mutex that supports cancellable and
// time-bounded acquisition. The zero value is not usable, create it
// with NewMutex.
type Mutex struct {
	ch chan struct{}
}

func NewMutex() Mutex {
	return Mutex{ch: make(chan struct{}, 1)}
}

func (m Mutex) Lock() {
	m.ch <- struct{}{}
}

// Unlock releases the mutex. Unlock of an unlocked mutex is a no-op.
func (m Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
	}
}

// LockTimeout acquires the lock waiting at most timeout, returning
// ErrTimeout on expiry. An uncontended lock is always acquired, even
// with zero timeout.
func (m Mutex) LockTimeout(timeout time.Duration) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}

// LockCtx acquires the lock or returns the context error. An
// uncontended lock is acquired even if ctx is already cancelled.
func (m Mutex) LockCtx(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
