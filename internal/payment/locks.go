package payment

import "sync"

// recordLocks serializes transitions per payment record while unrelated
// records proceed concurrently. Entries are reference-counted so the map
// sheds keys once the last holder releases; a single global lock would let
// one slow transaction block every other tenant.
type recordLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newRecordLocks() *recordLocks {
	return &recordLocks{entries: make(map[int64]*lockEntry)}
}

// Acquire blocks until the per-record lock for recordID is held and returns
// the release function. Callers must not perform network I/O while holding
// the lock.
func (l *recordLocks) Acquire(recordID int64) func() {
	l.mu.Lock()
	entry, ok := l.entries[recordID]
	if !ok {
		entry = &lockEntry{}
		l.entries[recordID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.entries, recordID)
			}
			l.mu.Unlock()
		})
	}
}
