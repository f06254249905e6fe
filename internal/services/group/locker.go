package group

import (
	"sync"

	"github.com/krich11/mls-chat/internal/domain"
)

// Locker hands out one mutex per group ID. The group and message services
// share a single Locker so all state-mutating work on a group contends on
// the same exclusive section.
type Locker struct {
	mu    sync.Mutex
	locks map[domain.GroupID]*sync.Mutex
}

// NewLocker returns an empty lock registry.
func NewLocker() *Locker {
	return &Locker{locks: make(map[domain.GroupID]*sync.Mutex)}
}

// Lock acquires the lock for id and returns the release function.
func (l *Locker) Lock(id domain.GroupID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
