// ABOUTME: Per-key mutual exclusion for serializing turns within one session
// ABOUTME: Distinct keys never contend; locks are created lazily and live for the process lifetime

package session

import "sync"

// KeyedMutex provides mutual exclusion per string key. Callers with
// different keys never block each other; callers with the same key are
// serialized. Lock objects are created on first use and never removed;
// the map is bounded by the number of distinct sessions seen by the
// process, which is acceptable for session-shaped keys.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex for a key, creating it if needed.
func (k *KeyedMutex) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// WithLock runs fn while holding the lock for key. The lock is released
// on every exit path, including panics, and is never poisoned: a
// subsequent acquire on the same key succeeds regardless of how fn ended.
func (k *KeyedMutex) WithLock(key string, fn func() error) error {
	l := k.lockFor(key)
	l.Lock()
	defer l.Unlock()
	return fn()
}
