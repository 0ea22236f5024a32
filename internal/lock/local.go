package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"corebanking/internal/domain"
)

// Local is an in-process Locker backed by one single-slot channel per key.
type Local struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

func NewLocal(timeout time.Duration) *Local {
	return &Local{
		slots:   make(map[string]*slot),
		timeout: timeout,
	}
}

func (l *Local) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ordered := orderKeys(keys)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	held := make([]string, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range ordered {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.unref(key)
			release()
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockTimeout, key, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Local) ref(key string) *slot {
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

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) unlock(key string) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()
	<-s.ch
	l.unref(key)
}
