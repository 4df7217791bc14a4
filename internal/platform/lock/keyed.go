// Package lock provides per-key mutual exclusion with bounded waiting.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"lostfound/internal/apperr"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Keyed hands out one exclusive slot per key. Entries are dropped once no
// caller holds or waits on them, so the map only grows with contention.
type Keyed struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	timeout time.Duration
}

func NewKeyed(timeout time.Duration) *Keyed {
	return &Keyed{
		entries: make(map[uuid.UUID]*entry),
		timeout: timeout,
	}
}

// Acquire blocks until key is free, the lock timeout elapses (apperr Busy)
// or ctx ends. The returned release func must be called exactly once.
func (k *Keyed) Acquire(ctx context.Context, key uuid.UUID) (release func(), err error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		k.unref(key, e)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Busy("lock", "item %s is busy, retry later", key)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.unref(key, e)
		})
	}, nil
}

func (k *Keyed) unref(key uuid.UUID, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
