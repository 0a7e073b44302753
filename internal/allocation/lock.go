package allocation

import (
	"sort"
	"sync"
)

// keyedLock serializes operations touching the same entities. Allot and
// deallocate read-check-then-write across two rows, so concurrent calls
// for the same room or allottee must not interleave.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLock) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// acquire locks all keys in sorted order so two calls sharing a key
// cannot deadlock each other. The returned func releases in reverse.
func (k *keyedLock) acquire(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			uniq = append(uniq, key)
		}
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, key := range uniq {
		m := k.get(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
