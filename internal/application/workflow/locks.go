package workflow

import "sync"

// InstanceLocks serializes operations per instance id within the process.
// Entries are dropped once no goroutine holds or waits on them.
type InstanceLocks struct {
	mu    sync.Mutex
	locks map[string]*instanceLock
}

type instanceLock struct {
	sync.Mutex
	refs int
}

// NewInstanceLocks creates an empty lock table
func NewInstanceLocks() *InstanceLocks {
	return &InstanceLocks{locks: make(map[string]*instanceLock)}
}

// Lock blocks until the instance is free and returns its unlock function
func (l *InstanceLocks) Lock(instanceID string) func() {
	l.mu.Lock()
	lk, ok := l.locks[instanceID]
	if !ok {
		lk = &instanceLock{}
		l.locks[instanceID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()

		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, instanceID)
		}
		l.mu.Unlock()
	}
}

func (l *InstanceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
