package install

import (
	"strings"
	"sync"
)

// Locker serializes operations on the same module while letting different
// modules proceed concurrently. Names are compared case-insensitively.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*moduleLock
}

type moduleLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*moduleLock)}
}

// Lock blocks until the module is free and returns the unlock function.
func (l *Locker) Lock(moduleID string) (unlock func()) {
	k := strings.ToLower(moduleID)

	l.mu.Lock()
	ml, ok := l.locks[k]
	if !ok {
		ml = &moduleLock{}
		l.locks[k] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.mu.Lock()
	return func() {
		ml.mu.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, k)
		}
		l.mu.Unlock()
	}
}
