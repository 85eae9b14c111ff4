package application

import "sync"

// documentLocks serializes operations per document number. Operations on
// different documents proceed in parallel; there is no global lock.
type documentLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{entries: make(map[string]*lockEntry)}
}

// lock acquires the lock for a document and returns its release function.
func (l *documentLocks) lock(documentNo string) func() {
	l.mu.Lock()
	entry, ok := l.entries[documentNo]
	if !ok {
		entry = &lockEntry{}
		l.entries[documentNo] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, documentNo)
		}
		l.mu.Unlock()
	}
}
