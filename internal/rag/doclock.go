package rag

import "sync"

// docLocks hands out one mutex per document id. Entries are dropped once no
// caller holds or waits on them.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newDocLocks() *docLocks {
	return &docLocks{locks: make(map[string]*docLock)}
}

func (l *docLocks) lock(documentID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[documentID]
	if !ok {
		entry = &docLock{}
		l.locks[documentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}
