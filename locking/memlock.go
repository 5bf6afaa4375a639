package locking

import "sync"

// MemLock is a Group that uses in-process mutexes. It only excludes callers
// within one process. Locks are reference counted and released once no
// caller holds or waits for them.
type MemLock struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func NewMemLock() *MemLock {
	return &MemLock{
		locks: make(map[string]*refLock),
	}
}

func (s *MemLock) DoWithLock(key string, fn func() (interface{}, error)) (v interface{}, err error) {
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &refLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.Lock()
	defer func() {
		lock.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}()
	return fn()
}

// Len returns the number of keys currently locked or awaited.
func (s *MemLock) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
