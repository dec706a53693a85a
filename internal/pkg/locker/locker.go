// Package locker serialises work per key, across processes when Redis is
// available and within the process otherwise.
package locker

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
)

type Locker interface {
	// Lock blocks until key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

type RedsyncLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedsyncLocker holds keys for at most expiry, which should outlive the
// longest critical section.
func NewRedsyncLocker(rs *redsync.Redsync, expiry time.Duration) *RedsyncLocker {
	return &RedsyncLocker{rs: rs, expiry: expiry}
}

func (l *RedsyncLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(250*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, err
	}
	return func() {
		// nolint:errcheck
		mutex.Unlock()
	}, nil
}

type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, s, true) })
	}, nil
}

func (l *LocalLocker) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}
