// Package lock serializes booking writes per item. Locks are never global:
// different items proceed independently.
package lock

import (
	"context"
	"sync"
	"time"

	pkgerrors "rentshare-backend/internal/errors"
)

// ItemLocker grants exclusive access to one item. Acquisition gives up with an
// UNAVAILABLE error when ctx ends or the locker's wait bound elapses; it never
// blocks indefinitely. Callers must hold at most one item lock at a time, or
// acquire several in ascending item ID order.
// The returned func releases the lock.
type ItemLocker interface {
	Lock(ctx context.Context, itemID int32) (func(), error)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process ItemLocker. Idle entries are dropped so the
// map only grows with the number of items currently being booked.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[int32]*entry
	timeout time.Duration
}

// NewKeyedLocker returns a locker whose acquisitions wait at most timeout.
// A zero timeout relies on the caller's context alone.
func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	return &KeyedLocker{entries: make(map[int32]*entry), timeout: timeout}
}

func (l *KeyedLocker) Lock(ctx context.Context, itemID int32) (func(), error) {
	e := l.acquireEntry(itemID)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(itemID, e)
		return nil, pkgerrors.Wrap(pkgerrors.KindUnavailable, pkgerrors.ErrLockTimeout, ctx.Err().Error())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.releaseEntry(itemID, e)
		})
	}, nil
}

func (l *KeyedLocker) acquireEntry(itemID int32) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[itemID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[itemID] = e
	}
	e.refs++
	return e
}

func (l *KeyedLocker) releaseEntry(itemID int32, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, itemID)
	}
}

// size reports how many items currently have an entry.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
