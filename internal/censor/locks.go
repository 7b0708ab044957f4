package censor

import "sync"

// UserLocks serializes the check-then-register sequence per user, closing
// the window where two concurrent posts from the same user both pass the
// quota check before either is registered. The guarantee is per process;
// replicas sharing one store can still race.
type UserLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewUserLocks creates an empty lock table.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for the given user, creating it on first use,
// and returns the unlock function.
func (l *UserLocks) Lock(userID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
