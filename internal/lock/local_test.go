package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"corebanking/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, orderKeys([]string{"c", "a", "b", "a"}))
	assert.Empty(t, orderKeys(nil))
}

func TestLocal_AcquireRelease(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "00000001", "00000002")
	require.NoError(t, err)
	release()
	release()

	release, err = l.Acquire(ctx, "00000002")
	require.NoError(t, err)
	release()

	l.mu.Lock()
	assert.Empty(t, l.slots, "released keys should not be retained")
	l.mu.Unlock()
}

func TestLocal_TimeoutWhileHeld(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "00000001")
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = l.Acquire(ctx, "00000002", "00000001")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))
	assert.Less(t, time.Since(start), time.Second)

	// The partially taken key must have been given back.
	other, err := l.Acquire(ctx, "00000002")
	require.NoError(t, err)
	other()
}

func TestLocal_CancelledContext(t *testing.T) {
	l := NewLocal(0)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_MutualExclusion(t *testing.T) {
	l := NewLocal(5 * time.Second)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "shared")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocal_OppositeOrderNoDeadlock(t *testing.T) {
	l := NewLocal(5 * time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "A", "B")
			if assert.NoError(t, err) {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "B", "A")
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
}
