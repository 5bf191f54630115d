package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLock_SecondCallerReusesResult(t *testing.T) {
	lock := NewKeyedLock[string](0)
	release := make(chan struct{})
	var runs atomic.Int32

	fn := func(context.Context) (string, error) {
		runs.Add(1)
		<-release
		return "paper-1", nil
	}

	type outcome struct {
		val    string
		joined bool
		err    error
	}
	results := make(chan outcome, 2)
	call := func() {
		v, joined, err := lock.Do(context.Background(), "doi:10.1/x", fn)
		results <- outcome{v, joined, err}
	}

	go call()
	require.Eventually(t, func() bool { return lock.Pending("doi:10.1/x") == 1 }, time.Second, time.Millisecond)
	go call()
	require.Eventually(t, func() bool { return lock.Pending("doi:10.1/x") == 2 }, time.Second, time.Millisecond)
	close(release)

	first, second := <-results, <-results
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, "paper-1", first.val)
	assert.Equal(t, "paper-1", second.val)
	assert.NoError(t, first.err)
	assert.NoError(t, second.err)
	assert.NotEqual(t, first.joined, second.joined, "exactly one caller ran fn")
	assert.Zero(t, lock.Pending("doi:10.1/x"))
}

func TestKeyedLock_ReleasedAfterError(t *testing.T) {
	lock := NewKeyedLock[int](0)
	boom := errors.New("boom")

	_, joined, err := lock.Do(context.Background(), "k", func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, joined)

	v, _, err := lock.Do(context.Background(), "k", func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestKeyedLock_DistinctKeysRunConcurrently(t *testing.T) {
	lock := NewKeyedLock[int](0)
	var wg sync.WaitGroup
	barrier := make(chan struct{})
	var arrived atomic.Int32

	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := lock.Do(context.Background(), []string{"a", "b"}[i], func(context.Context) (int, error) {
				if arrived.Add(1) == 2 {
					close(barrier)
				}
				<-barrier
				return i, nil
			})
			assert.NoError(t, err)
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("different keys blocked each other")
	}
}

func TestKeyedLock_WaiterCancellation(t *testing.T) {
	lock := NewKeyedLock[int](0)
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _, _ = lock.Do(context.Background(), "k", func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
	}()
	require.Eventually(t, func() bool { return lock.Pending("k") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := lock.Do(ctx, "k", func(context.Context) (int, error) { return 2, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyedLock_StarterCancelDoesNotFailWaiters(t *testing.T) {
	lock := NewKeyedLock[string](0)
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "paper-1", nil
		}
	}

	starterCtx, cancelStarter := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() {
		_, _, err := lock.Do(starterCtx, "doi:10.1/x", fn)
		starterErr <- err
	}()
	require.Eventually(t, func() bool { return lock.Pending("doi:10.1/x") == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		val    string
		joined bool
		err    error
	}
	waiter := make(chan outcome, 1)
	go func() {
		v, joined, err := lock.Do(context.Background(), "doi:10.1/x", fn)
		waiter <- outcome{v, joined, err}
	}()
	require.Eventually(t, func() bool { return lock.Pending("doi:10.1/x") == 2 }, time.Second, time.Millisecond)

	cancelStarter()
	assert.ErrorIs(t, <-starterErr, context.Canceled)
	close(release)

	got := <-waiter
	require.NoError(t, got.err)
	assert.Equal(t, "paper-1", got.val)
	assert.True(t, got.joined)
}

func TestKeyedLock_SharedCallBoundedByTimeout(t *testing.T) {
	lock := NewKeyedLock[int](20 * time.Millisecond)

	_, joined, err := lock.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, joined)
}
