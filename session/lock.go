package session

import "sync"

// TurnLock serializes turns per session. Two concurrent turns for the
// same session run one after the other; different sessions proceed in
// parallel.
type TurnLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTurnLock creates an empty lock set.
func NewTurnLock() *TurnLock {
	return &TurnLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for a session, creating it on first use.
func (l *TurnLock) Lock(sessionID string) {
	l.mu.Lock()
	m, ok := l.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[sessionID] = m
	}
	l.mu.Unlock()

	m.Lock()
}

// Unlock releases the lock for a session.
func (l *TurnLock) Unlock(sessionID string) {
	l.mu.Lock()
	m := l.locks[sessionID]
	l.mu.Unlock()

	if m != nil {
		m.Unlock()
	}
}
