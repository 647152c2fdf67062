// Package lock provides keyed mutual exclusion for units of work, in process
// or across instances through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when a key stays held until the context is done.
var ErrNotAcquired = errors.New("lock not acquired")

type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

// Lock acquires keys in order. On failure the keys already held are released.
func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	acquired := make([]string, 0, len(keys))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			l.unlock(acquired[i])
		}
	}

	for _, key := range keys {
		if err := l.lock(ctx, key); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Local) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.drop(key, e)
		l.mu.Unlock()
		return fmt.Errorf("locking %s: %w: %v", key, ErrNotAcquired, ctx.Err())
	}
}

func (l *Local) unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return
	}
	<-e.sem
	l.drop(key, e)
}

// drop must be called with l.mu held.
func (l *Local) drop(key string, e *entry) {
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// held reports how many keys have holders or waiters. Used by tests.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
