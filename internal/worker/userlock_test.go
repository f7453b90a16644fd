package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserLocksSerializesSameUser(t *testing.T) {
	locks := NewUserLocks()
	var order []int
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release := locks.Acquire(1)
			defer release()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			active--
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	require.Len(t, order, 5)
	require.Equal(t, 1, maxActive)
}

func TestUserLocksParallelAcrossUsers(t *testing.T) {
	locks := NewUserLocks()
	done := make(chan struct{}, 2)

	release1 := locks.Acquire(1)
	go func() {
		release2 := locks.Acquire(2)
		defer release2()
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for a different user should not block")
	}
	release1()
}

func TestUserLocksPurgesIdleEntries(t *testing.T) {
	locks := NewUserLocks()
	release := locks.Acquire(1)
	release()

	locks.mu.Lock()
	_, exists := locks.locks[1]
	locks.mu.Unlock()
	require.False(t, exists)
}
