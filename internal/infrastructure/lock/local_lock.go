package lock

import (
	"context"
	"sync"
)

// LocalLocker 进程内的按 key 互斥锁，单实例部署或未启用 Redis 时使用
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) NewLock(key, owner string) Lock {
	return &localLock{locker: l, key: key}
}

func (l *LocalLocker) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLock struct {
	locker *LocalLocker
	key    string
	held   *slot
}

func (k *localLock) Lock(ctx context.Context) error {
	s := k.locker.acquireSlot(k.key)
	select {
	case s.ch <- struct{}{}:
		k.held = s
		return nil
	case <-ctx.Done():
		k.locker.releaseSlot(k.key, s)
		return ctx.Err()
	}
}

func (k *localLock) Unlock(ctx context.Context) error {
	if k.held == nil {
		return nil
	}
	s := k.held
	k.held = nil
	<-s.ch
	k.locker.releaseSlot(k.key, s)
	return nil
}
