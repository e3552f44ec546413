package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountKeys_SortedAndUnique(t *testing.T) {
	keys := AccountKeys(3, 1, 3, 2)
	assert.Equal(t, []string{"account:1", "account:2", "account:3"}, keys)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "account:1")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestKeyedMutex_OverlappingSetsDoNotDeadlock(t *testing.T) {
	m := NewKeyedMutex()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "b", "a")
			require.NoError(t, err)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "a", "b")
			require.NoError(t, err)
			unlock()
		}()
	}
	wg.Wait()
}

func TestKeyedMutex_ContextCancelReleasesPartial(t *testing.T) {
	m := NewKeyedMutex()
	hold, err := m.Lock(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a", "b")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// "a" must have been released by the failed call
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	hold()
}

func TestKeyedMutex_UnlockTwice(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = m.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func TestOnceUnlock_ConcurrentCalls(t *testing.T) {
	var released int32
	unlock := onceUnlock(func() { atomic.AddInt32(&released, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&released))
}

func TestRedisLocker_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, addr, "")
	require.NoError(t, err)
	defer rdb.Close()

	l := NewRedisLocker(rdb, 2*time.Second)
	unlock, err := l.Lock(ctx, "account:42", "account:7")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "account:7")
	require.Error(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock()
		}()
	}
	wg.Wait()
	unlock2, err := l.Lock(ctx, "account:7")
	require.NoError(t, err)
	unlock2()
}
