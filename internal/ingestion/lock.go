package ingestion

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// KeyedLock serializes work per key. A caller arriving while the key is
// held waits for the in-flight call and receives its result instead of
// running fn again. The key is released when fn returns, whether it
// succeeds or fails.
//
// fn runs detached from the cancellation of the caller that started it,
// bounded by the lock's timeout, so every waiter sees the same outcome.
type KeyedLock[T any] struct {
	group   singleflight.Group
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string]int
}

// NewKeyedLock creates an empty KeyedLock. timeout bounds each shared call;
// zero leaves it unbounded.
func NewKeyedLock[T any](timeout time.Duration) *KeyedLock[T] {
	return &KeyedLock[T]{timeout: timeout, waiters: make(map[string]int)}
}

// Do runs fn under key. joined reports that the result came from another
// caller's fn. If ctx ends while waiting, Do returns ctx.Err() and the
// in-flight call keeps running for the other waiters.
func (l *KeyedLock[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (result T, joined bool, err error) {
	ran := false
	ch := l.group.DoChan(key, func() (any, error) {
		ran = true
		callCtx := context.WithoutCancel(ctx)
		if l.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, l.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	l.enter(key)
	defer l.leave(key)

	select {
	case <-ctx.Done():
		return result, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return result, !ran, res.Err
		}
		return res.Val.(T), !ran, nil
	}
}

// Pending returns how many callers are waiting on key.
func (l *KeyedLock[T]) Pending(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters[key]
}

func (l *KeyedLock[T]) enter(key string) {
	l.mu.Lock()
	l.waiters[key]++
	l.mu.Unlock()
}

func (l *KeyedLock[T]) leave(key string) {
	l.mu.Lock()
	if l.waiters[key]--; l.waiters[key] <= 0 {
		delete(l.waiters, key)
	}
	l.mu.Unlock()
}
