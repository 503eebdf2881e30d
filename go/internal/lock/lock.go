// Package lock provides the per-auction exclusive lock held for
// validate-then-commit.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the lock could not be acquired in time
var ErrLockTimeout = errors.New("lock acquire timed out")

// Locker hands out exclusive locks by key. The returned unlock func is safe
// to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Local is an in-process Locker with one weighted semaphore per key
type Local struct {
	timeout time.Duration

	mu   sync.Mutex
	sems map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLocal creates a Local locker; timeout bounds each acquire
func NewLocal(timeout time.Duration) *Local {
	return &Local{
		timeout: timeout,
		sems:    make(map[string]*entry),
	}
}

// Lock implements Locker
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	e := l.ref(key)

	acquireCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		l.unref(key)
		// the caller's own deadline or cancel is not a lock timeout
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key)
		})
	}, nil
}

func (l *Local) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.sems[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.sems[key] = e
	}
	e.refs++
	return e
}

// unref drops the semaphore once nobody holds or waits on it
func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.sems[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.sems, key)
	}
}

var _ Locker = (*Local)(nil)
