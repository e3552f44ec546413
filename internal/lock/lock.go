// Package lock serializes mutations per account.
//
// Every operation that changes an account's movement sequence takes the
// account key first. Multi-key acquisitions are sorted so two callers that
// need overlapping sets cannot deadlock.
package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Unlock releases everything acquired by one Lock call.
type Unlock func()

type Locker interface {
	Lock(ctx context.Context, keys ...string) (Unlock, error)
}

// AccountKey is the lock key for an account's movement log.
func AccountKey(accountID int64) string {
	return fmt.Sprintf("account:%d", accountID)
}

// AccountKeys builds sorted, de-duplicated keys for a set of account ids.
func AccountKeys(ids ...int64) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, AccountKey(id))
	}
	return normalize(keys)
}

func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	j := 0
	for i, k := range out {
		if i > 0 && k == out[j-1] {
			continue
		}
		out[j] = k
		j++
	}
	return out[:j]
}

// onceUnlock makes release safe to call more than once, from any goroutine.
func onceUnlock(release func()) Unlock {
	var once sync.Once
	return func() { once.Do(release) }
}

// KeyedMutex is an in-process Locker backed by one single-slot channel per key.
// Slots are never pruned: keys are account ids, a small bounded set.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]chan struct{})}
}

func (k *KeyedMutex) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

func (k *KeyedMutex) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	held := make([]chan struct{}, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, key := range keys {
		ch := k.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}
	return onceUnlock(release), nil
}
