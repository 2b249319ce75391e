package squad

import "sync"

// SessionLocks serializes turns per session id for integration layers that
// do not run one worker per session. Unused locks are released.
type SessionLocks struct {
	mutex sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until the session's lock is held and returns its release
// function.
func (l *SessionLocks) Lock(sessionID string) (unlock func()) {
	l.mutex.Lock()
	if l.locks == nil {
		l.locks = map[string]*sessionLock{}
	}
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		l.locks[sessionID] = lock
	}
	lock.refs++
	l.mutex.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		l.mutex.Lock()
		defer l.mutex.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, sessionID)
		}
	}
}

// Len returns the number of sessions holding or waiting for a lock.
func (l *SessionLocks) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}
