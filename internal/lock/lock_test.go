package lock

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexMap_IndependentKeys(t *testing.T) {
	m := NewMutexMap()
	done := make(chan struct{})

	m.Lock("task_a")
	go func() {
		m.Lock("task_b")
		m.Unlock("task_b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task_b blocked behind task_a")
	}
	m.Unlock("task_a")
}

func TestMutexMap_SerializesSameKey(t *testing.T) {
	m := NewMutexMap()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("shared")
			counter++
			m.Unlock("shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestMutexMap_Reset(t *testing.T) {
	m := NewMutexMap()
	m.Lock("k")
	m.Unlock("k")
	m.Reset()

	assert.Empty(t, m.mutexes)

	m.Lock("k")
	m.Unlock("k")
	assert.Len(t, m.mutexes, 1)
}

func TestFileLock_SecondHolderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json.lock")

	first := NewFileLock(path)
	require.NoError(t, first.TryLock())
	defer first.Unlock()

	second := NewFileLock(path)
	assert.ErrorIs(t, second.TryLock(), ErrLocked)
}

func TestFileLock_UnlockAllowsRelock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.json.lock")

	first := NewFileLock(path)
	require.NoError(t, first.TryLock())
	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock(), "double unlock is a no-op")

	second := NewFileLock(path)
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestFileLock_LockWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorecards.json.lock")

	holder := NewFileLock(path)
	require.NoError(t, holder.TryLock())

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = holder.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	waiter := NewFileLock(path)
	require.NoError(t, waiter.Lock(ctx))
	require.NoError(t, waiter.Unlock())
}

func TestFileLock_LockHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorecards.json.lock")

	holder := NewFileLock(path)
	require.NoError(t, holder.TryLock())
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := NewFileLock(path).Lock(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
